package core

import (
	"time"

	"github.com/google/uuid"
)

// The four summary aggregates are pure caches over the transaction log.
// They are maintained incrementally by signed deltas and can always be
// rebuilt from scratch; they are never the source of truth.

// MonthSummary aggregates one calendar month.
type MonthSummary struct {
	Month        string // YYYY-MM
	TotalIncome  Amount
	TotalExpense Amount
	Net          Amount
	TxCount      int64
}

// CategoryMonthSummary aggregates expenses for one category label in one
// month. Income categories are not tracked here.
type CategoryMonthSummary struct {
	Month        string // YYYY-MM
	Category     string
	TotalExpense Amount
	TxCount      int64
}

// DaySummary aggregates expenses for one calendar day (heatmap source).
type DaySummary struct {
	Day          string // YYYY-MM-DD
	TotalExpense Amount
	TxCount      int64
}

// AccountMonthSummary aggregates the signed balance movement of one account
// in one month: debits add, credits subtract.
type AccountMonthSummary struct {
	Month     string // YYYY-MM
	AccountID uuid.UUID
	Delta     Amount
	TxCount   int64
}

// MonthKey formats a time as the YYYY-MM bucket key.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// DayKey formats a time as the YYYY-MM-DD bucket key.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
