package automation

import (
	"testing"

	"kasbuku/internal/core"
)

func amt(v core.Amount) *core.Amount { return &v }

func TestRateFor(t *testing.T) {
	tiers := []core.InterestTier{
		{MinBalance: 0, MaxBalance: amt(999_999_00), AnnualRatePct: 2},
		{MinBalance: 1_000_000_00, MaxBalance: nil, AnnualRatePct: 3},
	}

	tests := []struct {
		name    string
		balance core.Amount
		want    float64
	}{
		{"first tier", 500_000_00, 2},
		{"tier boundary max", 999_999_00, 2},
		{"second tier lower bound", 1_000_000_00, 3},
		{"open ended tier", 1_500_000_00, 3},
		{"negative balance matches nothing", -10_00, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RateFor(tt.balance, tiers); got != tt.want {
				t.Errorf("RateFor(%d) = %v, want %v", tt.balance, got, tt.want)
			}
		})
	}

	if got := RateFor(100, nil); got != 0 {
		t.Errorf("empty tier table: got %v, want 0", got)
	}
}

func TestRateForFirstMatchWins(t *testing.T) {
	// Overlapping tiers: the first match is used, order matters.
	tiers := []core.InterestTier{
		{MinBalance: 0, MaxBalance: nil, AnnualRatePct: 1},
		{MinBalance: 1_000_000_00, MaxBalance: nil, AnnualRatePct: 5},
	}
	if got := RateFor(2_000_000_00, tiers); got != 1 {
		t.Errorf("RateFor() = %v, want 1 (first matching tier)", got)
	}
}

func TestMonthlyInterest(t *testing.T) {
	tests := []struct {
		name    string
		balance core.Amount
		ratePct float64
		want    core.Amount
	}{
		// 1,000,000.00 at 3%: 100000000 * 300 * 8 / 1200000 = 200000 minor units.
		{"simple", 100_000_000, 3, 200_000},
		// floor, never round up: 99999 * 300 * 8 / 1200000 = 199.998 -> 199
		{"floors", 99_999, 3, 199},
		{"zero balance", 0, 3, 0},
		{"negative balance", -50_000, 3, 0},
		{"zero rate", 100_000_000, 0, 0},
		// tiny balance yields less than one minor unit
		{"below one minor unit", 100, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MonthlyInterest(tt.balance, tt.ratePct); got != tt.want {
				t.Errorf("MonthlyInterest(%d, %v) = %d, want %d", tt.balance, tt.ratePct, got, tt.want)
			}
		})
	}
}

func TestMonthlyInterestNoFloatDrift(t *testing.T) {
	// The classic 0.1+0.2 style drift cannot appear: the computation is
	// integer end to end once the rate is in basis points.
	balance := core.Amount(333_333_33)
	got := MonthlyInterest(balance, 2.5)
	// 33333333 * 250 * 8 / 1200000 = 55555.555 -> 55555
	if got != 55_555 {
		t.Errorf("MonthlyInterest() = %d, want 55555", got)
	}
}
