package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"kasbuku/internal/core"
	"kasbuku/internal/storage"
)

// deltaInput is the slice of a transaction the summary aggregator needs:
// date, amount, raw category label and both sides with their kinds.
type deltaInput struct {
	Date            time.Time
	Amount          core.Amount
	Category        string
	DebitAccountID  uuid.UUID
	CreditAccountID uuid.UUID
	DebitKind       core.AccountKind
	CreditKind      core.AccountKind
}

func deltaFor(t core.Transaction, debitKind, creditKind core.AccountKind) deltaInput {
	return deltaInput{
		Date:            t.Date,
		Amount:          t.Amount,
		Category:        t.Category,
		DebitAccountID:  t.DebitAccountID,
		CreditAccountID: t.CreditAccountID,
		DebitKind:       debitKind,
		CreditKind:      creditKind,
	}
}

// applyDelta feeds one transaction through all four summary buckets with
// sign +1 (add) or -1 (remove). An amend is remove-old followed by add-new.
// Bucket math is commutative, so rebuild can replay the log in any order.
//
// Rules:
//   - month bucket counts income iff the credit side is an INCOME category
//     account and expense iff the debit side is an EXPENSE one;
//   - category-month and day buckets track expenses only, keyed by the raw
//     category string and the calendar day;
//   - the account-month bucket gets the signed movement once per side:
//     debits add, credits subtract.
func applyDelta(ctx context.Context, q *storage.Queries, in deltaInput, sign int64) error {
	amt := core.Amount(sign) * in.Amount
	month := core.MonthKey(in.Date)

	var income, expense core.Amount
	if in.CreditKind == core.KindIncome {
		income = amt
	}
	if in.DebitKind == core.KindExpense {
		expense = amt
	}
	if err := q.ApplyMonthDelta(ctx, month, income, expense, sign); err != nil {
		return err
	}

	if in.DebitKind == core.KindExpense {
		if err := q.ApplyCategoryMonthDelta(ctx, month, in.Category, amt, sign); err != nil {
			return err
		}
		if err := q.ApplyDayDelta(ctx, core.DayKey(in.Date), amt, sign); err != nil {
			return err
		}
	}

	if err := q.ApplyAccountMonthDelta(ctx, month, in.DebitAccountID, amt, sign); err != nil {
		return err
	}
	if err := q.ApplyAccountMonthDelta(ctx, month, in.CreditAccountID, -amt, sign); err != nil {
		return err
	}
	return nil
}
