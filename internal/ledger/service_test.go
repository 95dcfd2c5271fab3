package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasbuku/internal/core"
	"kasbuku/internal/storage"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	repo, err := storage.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return NewService(repo, nil)
}

func mustCreateAccount(t *testing.T, svc *Service, name string, kind core.AccountKind, opening core.Amount) core.Account {
	t.Helper()
	acc, err := svc.CreateAccount(context.Background(), core.Account{
		Name:           name,
		Kind:           kind,
		OpeningBalance: opening,
	})
	require.NoError(t, err)
	return acc
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPostMaintainsBalances(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	bca := mustCreateAccount(t, svc, "BCA", core.KindBank, 100_000_00)

	// Expense: debit synthesized category account, credit the bank.
	tx, duplicate, err := svc.Post(ctx, PostInput{
		Date:            day(2025, time.January, 10),
		Description:     "Groceries",
		Category:        "Food",
		Amount:          25_000_00,
		CreditAccountID: bca.ID,
	})
	require.NoError(t, err)
	require.False(t, duplicate)
	require.NotZero(t, tx.Seq)

	got, err := svc.Repo().Queries().GetAccount(ctx, bca.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 75_000_00, got.CurrentBalance)

	// The debit side is the [EXPENSE] Food category account.
	cat, err := svc.Repo().Queries().GetAccount(ctx, tx.DebitAccountID)
	require.NoError(t, err)
	assert.Equal(t, core.KindExpense, cat.Kind)
	assert.Equal(t, "[EXPENSE] Food", cat.Name)
	assert.EqualValues(t, 25_000_00, cat.CurrentBalance)
}

func TestPostIncomeCreditsSynthesizedAccount(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	bca := mustCreateAccount(t, svc, "BCA", core.KindBank, 0)

	tx, _, err := svc.Post(ctx, PostInput{
		Date:           day(2025, time.January, 25),
		Description:    "Salary",
		Category:       "Salary",
		Amount:         10_000_000_00,
		DebitAccountID: bca.ID,
	})
	require.NoError(t, err)

	got, err := svc.Repo().Queries().GetAccount(ctx, bca.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 10_000_000_00, got.CurrentBalance)

	cat, err := svc.Repo().Queries().GetAccount(ctx, tx.CreditAccountID)
	require.NoError(t, err)
	assert.Equal(t, core.KindIncome, cat.Kind)
	assert.Equal(t, "[INCOME] Salary", cat.Name)
}

func TestPostIdempotency(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	bca := mustCreateAccount(t, svc, "BCA", core.KindBank, 50_000_00)

	in := PostInput{
		Date:            day(2025, time.February, 1),
		Description:     "Fee",
		Category:        "Admin Fee",
		Amount:          15_000_00,
		CreditAccountID: bca.ID,
		IdempotencyKey:  "admin-fee-test-2025-02",
	}
	first, duplicate, err := svc.Post(ctx, in)
	require.NoError(t, err)
	require.False(t, duplicate)

	// Even a different amount is suppressed: the key is the sole check.
	in.Amount = 99_999_00
	second, duplicate, err := svc.Post(ctx, in)
	require.NoError(t, err)
	assert.True(t, duplicate)
	assert.Equal(t, first.ID, second.ID)
	assert.EqualValues(t, 15_000_00, second.Amount)

	got, err := svc.Repo().Queries().GetAccount(ctx, bca.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 35_000_00, got.CurrentBalance, "duplicate must not move balances")
}

func TestPostRejectsSelfTransfer(t *testing.T) {
	svc := newTestService(t)
	bca := mustCreateAccount(t, svc, "BCA", core.KindBank, 0)

	_, _, err := svc.Post(context.Background(), PostInput{
		Date:            day(2025, time.March, 1),
		Description:     "loop",
		Amount:          100,
		DebitAccountID:  bca.ID,
		CreditAccountID: bca.ID,
	})
	require.ErrorIs(t, err, core.ErrValidation)
}

func TestPostRejectsNonPositiveAmount(t *testing.T) {
	svc := newTestService(t)
	for _, amount := range []core.Amount{0, -500} {
		_, _, err := svc.Post(context.Background(), PostInput{
			Date:        day(2025, time.March, 1),
			Description: "bad",
			Category:    "Food",
			Amount:      amount,
		})
		require.ErrorIs(t, err, core.ErrValidation)
	}
}

func TestTransferBetweenAccounts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	bca := mustCreateAccount(t, svc, "BCA", core.KindBank, 1_000_000_00)
	gopay := mustCreateAccount(t, svc, "GoPay", core.KindEWallet, 0)

	_, _, err := svc.Post(ctx, PostInput{
		Date:            day(2025, time.April, 5),
		Description:     "Top up",
		Amount:          200_000_00,
		DebitAccountID:  gopay.ID,
		CreditAccountID: bca.ID,
	})
	require.NoError(t, err)

	gotBCA, err := svc.Repo().Queries().GetAccount(ctx, bca.ID)
	require.NoError(t, err)
	gotGoPay, err := svc.Repo().Queries().GetAccount(ctx, gopay.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 800_000_00, gotBCA.CurrentBalance)
	assert.EqualValues(t, 200_000_00, gotGoPay.CurrentBalance)

	// A transfer is neither income nor expense.
	sum, err := svc.Repo().Queries().GetMonthSummary(ctx, "2025-04")
	require.NoError(t, err)
	assert.EqualValues(t, 0, sum.TotalIncome)
	assert.EqualValues(t, 0, sum.TotalExpense)
	assert.EqualValues(t, 1, sum.TxCount)
}

func TestAmendAdjustsBalancesAndSummaries(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	bca := mustCreateAccount(t, svc, "BCA", core.KindBank, 500_000_00)

	tx, _, err := svc.Post(ctx, PostInput{
		Date:            day(2025, time.May, 10),
		Description:     "Dinner",
		Category:        "Food",
		Amount:          80_000_00,
		CreditAccountID: bca.ID,
	})
	require.NoError(t, err)

	newAmount := core.Amount(120_000_00)
	newCategory := "Dining"
	_, err = svc.Amend(ctx, tx.ID, AmendInput{Amount: &newAmount, Category: &newCategory})
	require.NoError(t, err)

	got, err := svc.Repo().Queries().GetAccount(ctx, bca.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 380_000_00, got.CurrentBalance)

	sum, err := svc.Repo().Queries().GetMonthSummary(ctx, "2025-05")
	require.NoError(t, err)
	assert.EqualValues(t, 120_000_00, sum.TotalExpense)
	assert.EqualValues(t, 1, sum.TxCount)

	cats, err := svc.Repo().Queries().ListCategoryMonthSummaries(ctx, "2025-05")
	require.NoError(t, err)
	byCat := map[string]core.Amount{}
	for _, c := range cats {
		byCat[c.Category] = c.TotalExpense
	}
	assert.EqualValues(t, 0, byCat["Food"], "old category bucket must be emptied")
	assert.EqualValues(t, 120_000_00, byCat["Dining"])
}

func TestAmendDateMovesMonthBucket(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	bca := mustCreateAccount(t, svc, "BCA", core.KindBank, 500_000_00)
	tx, _, err := svc.Post(ctx, PostInput{
		Date:            day(2025, time.May, 31),
		Description:     "Late dinner",
		Category:        "Food",
		Amount:          50_000_00,
		CreditAccountID: bca.ID,
	})
	require.NoError(t, err)

	newDate := day(2025, time.June, 1)
	_, err = svc.Amend(ctx, tx.ID, AmendInput{Date: &newDate})
	require.NoError(t, err)

	may, err := svc.Repo().Queries().GetMonthSummary(ctx, "2025-05")
	require.NoError(t, err)
	june, err := svc.Repo().Queries().GetMonthSummary(ctx, "2025-06")
	require.NoError(t, err)
	assert.EqualValues(t, 0, may.TotalExpense)
	assert.EqualValues(t, 0, may.TxCount)
	assert.EqualValues(t, 50_000_00, june.TotalExpense)
	assert.EqualValues(t, 1, june.TxCount)
}

func TestReverseRestoresState(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	bca := mustCreateAccount(t, svc, "BCA", core.KindBank, 300_000_00)
	tx, _, err := svc.Post(ctx, PostInput{
		Date:            day(2025, time.July, 3),
		Description:     "Cinema",
		Category:        "Entertainment",
		Amount:          60_000_00,
		CreditAccountID: bca.ID,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Reverse(ctx, tx.ID))

	got, err := svc.Repo().Queries().GetAccount(ctx, bca.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 300_000_00, got.CurrentBalance)

	sum, err := svc.Repo().Queries().GetMonthSummary(ctx, "2025-07")
	require.NoError(t, err)
	assert.EqualValues(t, 0, sum.TotalExpense)
	assert.EqualValues(t, 0, sum.TxCount)

	_, err = svc.Repo().Queries().GetTransaction(ctx, tx.ID)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestReverseUnknownTransaction(t *testing.T) {
	svc := newTestService(t)
	err := svc.Reverse(context.Background(), uuid.New())
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestCategoryAccountReuse(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	bca := mustCreateAccount(t, svc, "BCA", core.KindBank, 1_000_000_00)
	for i := 0; i < 3; i++ {
		_, _, err := svc.Post(ctx, PostInput{
			Date:            day(2025, time.August, 1+i),
			Description:     "Coffee",
			Category:        "Food",
			Amount:          30_000_00,
			CreditAccountID: bca.ID,
		})
		require.NoError(t, err)
	}

	accounts, err := svc.Repo().Queries().ListAccounts(ctx)
	require.NoError(t, err)
	var foodAccounts int
	for _, a := range accounts {
		if a.Name == "[EXPENSE] Food" {
			foodAccounts++
		}
	}
	assert.Equal(t, 1, foodAccounts, "category accounts are deduplicated by name")
}

func TestDayAndAccountSummaries(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	bca := mustCreateAccount(t, svc, "BCA", core.KindBank, 1_000_000_00)
	_, _, err := svc.Post(ctx, PostInput{
		Date:            day(2025, time.September, 14),
		Description:     "Lunch",
		Category:        "Food",
		Amount:          45_000_00,
		CreditAccountID: bca.ID,
	})
	require.NoError(t, err)
	_, _, err = svc.Post(ctx, PostInput{
		Date:            day(2025, time.September, 14),
		Description:     "Snack",
		Category:        "Food",
		Amount:          15_000_00,
		CreditAccountID: bca.ID,
	})
	require.NoError(t, err)

	days, err := svc.Repo().Queries().ListDaySummaries(ctx, "2025-09-01", "2025-09-30")
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, "2025-09-14", days[0].Day)
	assert.EqualValues(t, 60_000_00, days[0].TotalExpense)
	assert.EqualValues(t, 2, days[0].TxCount)

	accSums, err := svc.Repo().Queries().ListAccountMonthSummaries(ctx, "2025-09")
	require.NoError(t, err)
	var bcaDelta core.Amount
	for _, s := range accSums {
		if s.AccountID == bca.ID {
			bcaDelta = s.Delta
		}
	}
	assert.EqualValues(t, -60_000_00, bcaDelta, "credits subtract from the account month delta")
}
