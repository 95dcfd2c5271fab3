// Package automation implements the recurring monthly automations: billing
// date resolution, tiered interest, and idempotent admin-fee, interest and
// installment batches posted through the ledger.
package automation

import (
	"fmt"
	"time"

	"kasbuku/internal/core"
)

// OccurrenceInMonth resolves a billing pattern to its concrete date inside
// the month containing anchor.
//
//   - FIXED_DAY uses billingDay, clamped to the month's length (a day-31
//     pattern bills on Feb 28/29);
//   - THIRD_FRIDAY is the third Friday of the month;
//   - LAST_BUSINESS_DAY is the last day, stepped back to Friday when it
//     lands on a weekend.
func OccurrenceInMonth(pattern core.BillingPattern, billingDay int, anchor time.Time) (time.Time, error) {
	first := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, time.UTC)

	switch pattern {
	case core.BillingFixedDay:
		if billingDay < 1 || billingDay > 31 {
			return time.Time{}, fmt.Errorf("%w: billing day %d out of range", core.ErrValidation, billingDay)
		}
		day := billingDay
		if last := lastDayOfMonth(first); day > last {
			day = last
		}
		return first.AddDate(0, 0, day-1), nil

	case core.BillingThirdFriday:
		// Days until the first Friday, then two more weeks.
		offset := (int(time.Friday) - int(first.Weekday()) + 7) % 7
		return first.AddDate(0, 0, offset+14), nil

	case core.BillingLastBusinessDay:
		d := first.AddDate(0, 0, lastDayOfMonth(first)-1)
		switch d.Weekday() {
		case time.Saturday:
			d = d.AddDate(0, 0, -1)
		case time.Sunday:
			d = d.AddDate(0, 0, -2)
		}
		return d, nil

	default:
		return time.Time{}, fmt.Errorf("%w: unknown billing pattern %q", core.ErrValidation, pattern)
	}
}

// NextBillingDate returns the next occurrence of the pattern on or after
// today (date precision). When this month's occurrence has already passed
// it rolls forward one period.
func NextBillingDate(pattern core.BillingPattern, billingDay int, today time.Time) (time.Time, error) {
	occ, err := OccurrenceInMonth(pattern, billingDay, today)
	if err != nil {
		return time.Time{}, err
	}
	if occ.Before(truncateToDay(today)) {
		return OccurrenceInMonth(pattern, billingDay, firstOfNextMonth(today))
	}
	return occ, nil
}

func lastDayOfMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func firstOfNextMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
