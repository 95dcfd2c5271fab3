package automation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasbuku/internal/core"
	"kasbuku/internal/ledger"
	"kasbuku/internal/storage"
)

func newTestEngine(t *testing.T) (*Engine, *ledger.Service) {
	t.Helper()
	repo, err := storage.Open(filepath.Join(t.TempDir(), "automation.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	svc := ledger.NewService(repo, nil)
	return NewEngine(svc, nil), svc
}

func createFeeAccount(t *testing.T, svc *ledger.Service, balance core.Amount, fee core.Amount, pattern core.BillingPattern, billingDay int) core.Account {
	t.Helper()
	acc, err := svc.CreateAccount(context.Background(), core.Account{
		Name:           "BCA",
		Kind:           core.KindBank,
		OpeningBalance: balance,
		CreatedAt:      date(2024, time.December, 1),
		Automation: &core.AutomationSettings{
			AdminFeeActive:  true,
			AdminFeeNominal: fee,
			BillingPattern:  pattern,
			BillingDay:      billingDay,
		},
	})
	require.NoError(t, err)
	return acc
}

func TestRunAdminFeesPostsOncePerMonth(t *testing.T) {
	engine, svc := newTestEngine(t)
	ctx := context.Background()

	acc := createFeeAccount(t, svc, 500_000_00, 15_000_00, core.BillingFixedDay, 10)

	now := date(2025, time.March, 12)
	result, err := engine.RunAdminFees(ctx, RunOptions{Now: now})
	require.NoError(t, err)
	require.Len(t, result.Posted, 1)
	assert.EqualValues(t, 15_000_00, result.Posted[0].Amount)

	got, err := svc.Repo().Queries().GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 485_000_00, got.CurrentBalance)
	assert.Equal(t, "2025-03", got.Automation.LastChargedMonth)

	// Second run in the same month: skipped before any posting is attempted.
	result, err = engine.RunAdminFees(ctx, RunOptions{Now: now.AddDate(0, 0, 5)})
	require.NoError(t, err)
	assert.Empty(t, result.Posted)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "already processed", result.Skipped[0].Reason)

	got, err = svc.Repo().Queries().GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 485_000_00, got.CurrentBalance, "skip must not move balances")
}

func TestRunAdminFeesWaitsForBillingDate(t *testing.T) {
	engine, svc := newTestEngine(t)
	createFeeAccount(t, svc, 500_000_00, 15_000_00, core.BillingFixedDay, 20)

	result, err := engine.RunAdminFees(context.Background(), RunOptions{Now: date(2025, time.March, 12)})
	require.NoError(t, err)
	assert.Empty(t, result.Posted)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "billing date not reached", result.Skipped[0].Reason)
}

func TestRunAdminFeesNextMonthPostsAgain(t *testing.T) {
	engine, svc := newTestEngine(t)
	ctx := context.Background()
	acc := createFeeAccount(t, svc, 500_000_00, 15_000_00, core.BillingFixedDay, 10)

	_, err := engine.RunAdminFees(ctx, RunOptions{Now: date(2025, time.March, 12)})
	require.NoError(t, err)
	result, err := engine.RunAdminFees(ctx, RunOptions{Now: date(2025, time.April, 12)})
	require.NoError(t, err)
	require.Len(t, result.Posted, 1)

	got, err := svc.Repo().Queries().GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 470_000_00, got.CurrentBalance)
	assert.Equal(t, "2025-04", got.Automation.LastChargedMonth)
}

func TestRunAdminFeesDryRun(t *testing.T) {
	engine, svc := newTestEngine(t)
	ctx := context.Background()
	acc := createFeeAccount(t, svc, 500_000_00, 15_000_00, core.BillingFixedDay, 10)

	result, err := engine.RunAdminFees(ctx, RunOptions{Now: date(2025, time.March, 12), DryRun: true})
	require.NoError(t, err)
	require.Len(t, result.Posted, 1)
	assert.True(t, result.DryRun)

	got, err := svc.Repo().Queries().GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 500_000_00, got.CurrentBalance)
	assert.Empty(t, got.Automation.LastChargedMonth)
}

func createInterestAccount(t *testing.T, svc *ledger.Service, balance core.Amount, tiers []core.InterestTier) core.Account {
	t.Helper()
	acc, err := svc.CreateAccount(context.Background(), core.Account{
		Name:           "Savings",
		Kind:           core.KindBank,
		OpeningBalance: balance,
		CreatedAt:      date(2024, time.December, 1),
		Automation: &core.AutomationSettings{
			InterestActive: true,
			InterestTiers:  tiers,
		},
	})
	require.NoError(t, err)
	return acc
}

func TestRunInterestUsesMatchingTier(t *testing.T) {
	engine, svc := newTestEngine(t)
	ctx := context.Background()

	tiers := []core.InterestTier{
		{MinBalance: 0, MaxBalance: amt(999_999_00), AnnualRatePct: 2},
		{MinBalance: 1_000_000_00, MaxBalance: nil, AnnualRatePct: 3},
	}
	acc := createInterestAccount(t, svc, 1_500_000_00, tiers)

	result, err := engine.RunInterest(ctx, RunOptions{Now: date(2025, time.April, 1), Basis: BasisCurrentBalance})
	require.NoError(t, err)
	require.Len(t, result.Posted, 1)

	// 150,000,000 minor at 3%: 150000000*300*8/1200000 = 300,000 minor.
	assert.EqualValues(t, 300_000, result.Posted[0].Amount)

	got, err := svc.Repo().Queries().GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1_500_000_00+300_000, got.CurrentBalance)
	assert.Equal(t, "2025-04", got.Automation.LastCreditedMonth)
}

func TestRunInterestSkipsTinyAmounts(t *testing.T) {
	engine, svc := newTestEngine(t)

	tiers := []core.InterestTier{{MinBalance: 0, MaxBalance: nil, AnnualRatePct: 0.01}}
	createInterestAccount(t, svc, 10_00, tiers)

	result, err := engine.RunInterest(context.Background(), RunOptions{Now: date(2025, time.April, 1)})
	require.NoError(t, err)
	assert.Empty(t, result.Posted)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "amount below one minor unit", result.Skipped[0].Reason)
}

func TestRunInterestMinimumBasis(t *testing.T) {
	engine, svc := newTestEngine(t)
	ctx := context.Background()

	tiers := []core.InterestTier{{MinBalance: 0, MaxBalance: nil, AnnualRatePct: 3}}
	acc := createInterestAccount(t, svc, 2_000_000_00, tiers)

	// Dip during March: balance drops to 500,000.00 on the 10th, recovers on
	// the 20th. The minimum basis pays interest on the dip, not the month-end
	// balance.
	_, _, err := svc.Post(ctx, ledger.PostInput{
		Date:            date(2025, time.March, 10),
		Description:     "Big expense",
		Category:        "Shopping",
		Amount:          1_500_000_00,
		CreditAccountID: acc.ID,
	})
	require.NoError(t, err)
	_, _, err = svc.Post(ctx, ledger.PostInput{
		Date:           date(2025, time.March, 20),
		Description:    "Refund",
		Category:       "Refund",
		Amount:         1_500_000_00,
		DebitAccountID: acc.ID,
	})
	require.NoError(t, err)

	result, err := engine.RunInterest(ctx, RunOptions{Now: date(2025, time.April, 1), Basis: BasisMinimumBalance})
	require.NoError(t, err)
	require.Len(t, result.Posted, 1)

	// Minimum in March was 50,000,000 minor; at 3%: 50000000*300*8/1200000 = 100,000.
	assert.EqualValues(t, 100_000, result.Posted[0].Amount)
}

func TestRunInterestDuplicateStillStamps(t *testing.T) {
	engine, svc := newTestEngine(t)
	ctx := context.Background()

	tiers := []core.InterestTier{{MinBalance: 0, MaxBalance: nil, AnnualRatePct: 3}}
	acc := createInterestAccount(t, svc, 1_000_000_00, tiers)

	_, err := engine.RunInterest(ctx, RunOptions{Now: date(2025, time.April, 1)})
	require.NoError(t, err)

	// Simulate a crash between posting and stamping: clear the stamp while
	// the idempotent transaction row stays behind.
	require.NoError(t, svc.Repo().Queries().SetLastCreditedMonth(ctx, acc.ID, ""))

	result, err := engine.RunInterest(ctx, RunOptions{Now: date(2025, time.April, 2)})
	require.NoError(t, err)
	assert.Empty(t, result.Posted)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "duplicate suppressed", result.Skipped[0].Reason)

	got, err := svc.Repo().Queries().GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-04", got.Automation.LastCreditedMonth, "recovery run must restore the stamp")

	report, err := svc.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.Clean(), "no double credit may reach the ledger")
}
