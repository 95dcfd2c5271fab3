package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasbuku/internal/core"
)

func TestMinimumBalanceSingleExpense(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	acc, err := svc.CreateAccount(ctx, core.Account{
		Name:           "BCA",
		Kind:           core.KindBank,
		OpeningBalance: 1_000_000_00,
		CreatedAt:      day(2024, time.December, 1),
	})
	require.NoError(t, err)

	_, _, err = svc.Post(ctx, PostInput{
		Date:            day(2025, time.January, 20),
		Description:     "Rent",
		Category:        "Housing",
		Amount:          500_000_00,
		CreditAccountID: acc.ID,
	})
	require.NoError(t, err)

	res, err := svc.MinimumBalanceForMonth(ctx, acc.ID, 2025, time.January)
	require.NoError(t, err)
	assert.True(t, res.Existed)
	assert.EqualValues(t, 1_000_000_00, res.StartBalance)
	assert.EqualValues(t, 500_000_00, res.Minimum)
}

func TestMinimumBalanceIncludesStartOfMonth(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	acc, err := svc.CreateAccount(ctx, core.Account{
		Name:           "BCA",
		Kind:           core.KindBank,
		OpeningBalance: 200_000_00,
		CreatedAt:      day(2024, time.December, 1),
	})
	require.NoError(t, err)

	// Income first, then expense: the minimum is the month-start balance,
	// not any intra-month point.
	_, _, err = svc.Post(ctx, PostInput{
		Date:           day(2025, time.January, 5),
		Description:    "Salary",
		Category:       "Salary",
		Amount:         1_000_000_00,
		DebitAccountID: acc.ID,
	})
	require.NoError(t, err)
	_, _, err = svc.Post(ctx, PostInput{
		Date:            day(2025, time.January, 25),
		Description:     "Rent",
		Category:        "Housing",
		Amount:          300_000_00,
		CreditAccountID: acc.ID,
	})
	require.NoError(t, err)

	res, err := svc.MinimumBalanceForMonth(ctx, acc.ID, 2025, time.January)
	require.NoError(t, err)
	assert.EqualValues(t, 200_000_00, res.Minimum)
}

func TestMinimumBalanceMidMonthCreation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// Created on the 15th: the opening balance is the starting point, no
	// roll-back through a period where the account did not exist.
	acc, err := svc.CreateAccount(ctx, core.Account{
		Name:           "New Wallet",
		Kind:           core.KindEWallet,
		OpeningBalance: 50_000_00,
		CreatedAt:      day(2025, time.January, 15),
	})
	require.NoError(t, err)

	_, _, err = svc.Post(ctx, PostInput{
		Date:            day(2025, time.January, 20),
		Description:     "Snacks",
		Category:        "Food",
		Amount:          20_000_00,
		CreditAccountID: acc.ID,
	})
	require.NoError(t, err)

	res, err := svc.MinimumBalanceForMonth(ctx, acc.ID, 2025, time.January)
	require.NoError(t, err)
	assert.True(t, res.Existed)
	assert.EqualValues(t, 50_000_00, res.StartBalance)
	assert.EqualValues(t, 30_000_00, res.Minimum)
}

func TestMinimumBalanceAccountCreatedAfterMonth(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	acc, err := svc.CreateAccount(ctx, core.Account{
		Name:      "Later",
		Kind:      core.KindBank,
		CreatedAt: day(2025, time.March, 1),
	})
	require.NoError(t, err)

	res, err := svc.MinimumBalanceForMonth(ctx, acc.ID, 2025, time.January)
	require.NoError(t, err)
	assert.False(t, res.Existed)
}

func TestMinimumBalanceNegative(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// Negative balances are legal (overdraft, credit card) and the minimum
	// tracks below zero.
	acc, err := svc.CreateAccount(ctx, core.Account{
		Name:           "Overdraft",
		Kind:           core.KindBank,
		OpeningBalance: -100_000_00,
		CreatedAt:      day(2024, time.December, 1),
	})
	require.NoError(t, err)

	_, _, err = svc.Post(ctx, PostInput{
		Date:            day(2025, time.January, 10),
		Description:     "Fees",
		Category:        "Fees",
		Amount:          50_000_00,
		CreditAccountID: acc.ID,
	})
	require.NoError(t, err)

	res, err := svc.MinimumBalanceForMonth(ctx, acc.ID, 2025, time.January)
	require.NoError(t, err)
	assert.EqualValues(t, -150_000_00, res.Minimum)
}

func TestMinimumBalanceIgnoresOtherMonths(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	acc, err := svc.CreateAccount(ctx, core.Account{
		Name:           "BCA",
		Kind:           core.KindBank,
		OpeningBalance: 1_000_000_00,
		CreatedAt:      day(2024, time.December, 1),
	})
	require.NoError(t, err)

	// Later activity must not leak into January's reconstruction.
	_, _, err = svc.Post(ctx, PostInput{
		Date:            day(2025, time.February, 2),
		Description:     "Big purchase",
		Category:        "Shopping",
		Amount:          900_000_00,
		CreditAccountID: acc.ID,
	})
	require.NoError(t, err)

	res, err := svc.MinimumBalanceForMonth(ctx, acc.ID, 2025, time.January)
	require.NoError(t, err)
	assert.EqualValues(t, 1_000_000_00, res.Minimum)
}

func TestMinimumBalanceUnknownAccount(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.MinimumBalanceForMonth(context.Background(), uuid.New(), 2025, time.January)
	require.ErrorIs(t, err, core.ErrNotFound)
}
