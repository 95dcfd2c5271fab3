package automation

import (
	"errors"
	"testing"
	"time"

	"kasbuku/internal/core"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestOccurrenceInMonth(t *testing.T) {
	tests := []struct {
		name       string
		pattern    core.BillingPattern
		billingDay int
		anchor     time.Time
		want       time.Time
	}{
		{"fixed day", core.BillingFixedDay, 15, date(2025, time.March, 1), date(2025, time.March, 15)},
		{"fixed day clamped february", core.BillingFixedDay, 31, date(2025, time.February, 10), date(2025, time.February, 28)},
		{"fixed day clamped leap february", core.BillingFixedDay, 31, date(2024, time.February, 10), date(2024, time.February, 29)},
		{"fixed day clamped april", core.BillingFixedDay, 31, date(2025, time.April, 2), date(2025, time.April, 30)},
		// March 2025 starts on a Saturday; Fridays are 7, 14, 21.
		{"third friday march 2025", core.BillingThirdFriday, 0, date(2025, time.March, 1), date(2025, time.March, 21)},
		// August 2025 starts on a Friday, so the first Friday is day 1.
		{"third friday august 2025", core.BillingThirdFriday, 0, date(2025, time.August, 10), date(2025, time.August, 15)},
		// May 31 2025 is a Saturday; last business day steps back to Friday the 30th.
		{"last business day weekend", core.BillingLastBusinessDay, 0, date(2025, time.May, 5), date(2025, time.May, 30)},
		// August 31 2025 is a Sunday; steps back two days to Friday the 29th.
		{"last business day sunday", core.BillingLastBusinessDay, 0, date(2025, time.August, 5), date(2025, time.August, 29)},
		// September 30 2025 is a Tuesday; no adjustment.
		{"last business day weekday", core.BillingLastBusinessDay, 0, date(2025, time.September, 5), date(2025, time.September, 30)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OccurrenceInMonth(tt.pattern, tt.billingDay, tt.anchor)
			if err != nil {
				t.Fatalf("OccurrenceInMonth() error = %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("OccurrenceInMonth() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOccurrenceInMonthErrors(t *testing.T) {
	if _, err := OccurrenceInMonth(core.BillingFixedDay, 32, date(2025, time.March, 1)); !errors.Is(err, core.ErrValidation) {
		t.Errorf("billing day 32: got %v, want ErrValidation", err)
	}
	if _, err := OccurrenceInMonth(core.BillingFixedDay, 0, date(2025, time.March, 1)); !errors.Is(err, core.ErrValidation) {
		t.Errorf("billing day 0: got %v, want ErrValidation", err)
	}
	if _, err := OccurrenceInMonth(core.BillingPattern("WEEKLY"), 1, date(2025, time.March, 1)); !errors.Is(err, core.ErrValidation) {
		t.Errorf("unknown pattern: got %v, want ErrValidation", err)
	}
}

func TestNextBillingDate(t *testing.T) {
	tests := []struct {
		name       string
		pattern    core.BillingPattern
		billingDay int
		today      time.Time
		want       time.Time
	}{
		{"before occurrence", core.BillingFixedDay, 15, date(2025, time.March, 10), date(2025, time.March, 15)},
		{"on occurrence", core.BillingFixedDay, 15, date(2025, time.March, 15), date(2025, time.March, 15)},
		{"after occurrence rolls forward", core.BillingFixedDay, 15, date(2025, time.March, 16), date(2025, time.April, 15)},
		{"roll into clamped month", core.BillingFixedDay, 31, date(2025, time.January, 31), date(2025, time.January, 31)},
		{"roll past third friday", core.BillingThirdFriday, 0, date(2025, time.March, 22), date(2025, time.April, 18)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextBillingDate(tt.pattern, tt.billingDay, tt.today)
			if err != nil {
				t.Fatalf("NextBillingDate() error = %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("NextBillingDate() = %v, want %v", got, tt.want)
			}
		})
	}
}
