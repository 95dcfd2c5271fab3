package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"kasbuku/internal/core"
	"kasbuku/internal/storage"
)

// MinimumBalanceResult is the outcome of reconstructing an account's balance
// over one calendar month. Existed is false when the account was created
// after the month ended; Minimum is then zero and meaningless.
type MinimumBalanceResult struct {
	AccountID    uuid.UUID
	Year         int
	Month        time.Month
	Existed      bool
	StartBalance core.Amount
	Minimum      core.Amount
}

// MinimumBalanceForMonth computes the minimum instantaneous balance the
// account held at any point during the month. Summary aggregates discard
// intra-month ordering, so this is reconstructed from the ordered
// transaction log:
//
//  1. roll the cached current balance backward to the start of the month by
//     subtracting the net of all postings dated on or after it;
//  2. if the account was created during the month, its opening balance is
//     the starting point instead (it held no balance before creation);
//  3. fold the month's transactions forward in (date, seq) order, tracking
//     the minimum seen, the starting value included.
func (s *Service) MinimumBalanceForMonth(ctx context.Context, accountID uuid.UUID, year int, month time.Month) (MinimumBalanceResult, error) {
	res := MinimumBalanceResult{AccountID: accountID, Year: year, Month: month}

	monthStart := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		acc, err := q.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}

		if !acc.CreatedAt.Before(monthEnd) {
			// Account did not exist yet during this month.
			return nil
		}
		res.Existed = true

		netSinceStart, err := q.SumAccountNetSince(ctx, accountID, monthStart)
		if err != nil {
			return err
		}
		running := acc.CurrentBalance - netSinceStart

		if !acc.CreatedAt.Before(monthStart) {
			// Created mid-month: nothing predates the opening balance.
			running = acc.OpeningBalance
		}
		res.StartBalance = running

		txs, err := q.ListAccountTransactionsBetween(ctx, accountID, monthStart, monthEnd)
		if err != nil {
			return err
		}

		minimum := running
		for _, t := range txs {
			if t.DebitAccountID == accountID {
				running += t.Amount
			} else {
				running -= t.Amount
			}
			if running < minimum {
				minimum = running
			}
		}
		res.Minimum = minimum
		return nil
	})
	if err != nil {
		return MinimumBalanceResult{}, err
	}
	return res, nil
}
