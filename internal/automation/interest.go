package automation

import (
	"math"

	"kasbuku/internal/core"
)

// Withholding tax on interest income: 20%, so 80% is credited.
const netInterestFactorNum, netInterestFactorDen = 8, 10

// RateFor returns the annual rate of the first tier matching the balance:
// balance ≥ min and (max is open or balance ≤ max). Zero when no tier
// matches or the table is empty.
func RateFor(balance core.Amount, tiers []core.InterestTier) float64 {
	for _, t := range tiers {
		if balance < t.MinBalance {
			continue
		}
		if t.MaxBalance != nil && balance > *t.MaxBalance {
			continue
		}
		return t.AnnualRatePct
	}
	return 0
}

// MonthlyInterest computes the net monthly interest credit for a balance:
// floor(balance · rate/100 / 12 · 0.8). Non-positive balances and amounts
// below one minor unit yield zero (skipped, never rounded up). The rate is
// carried in basis points so the division floors once, on integer math.
func MonthlyInterest(balance core.Amount, annualRatePct float64) core.Amount {
	if balance <= 0 || annualRatePct <= 0 {
		return 0
	}
	rateBp := int64(math.Round(annualRatePct * 100))
	// balance · (rateBp/10000) / 12 · (8/10)
	gross := int64(balance) * rateBp * netInterestFactorNum
	return core.Amount(gross / (10000 * 12 * netInterestFactorDen))
}
