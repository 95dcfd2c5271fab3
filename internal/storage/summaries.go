package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"kasbuku/internal/core"
)

// Summary bucket upserts. Each applies a signed delta so that add, remove
// and amend are all the same operation with different signs.

// ApplyMonthDelta adjusts one month bucket.
func (q *Queries) ApplyMonthDelta(ctx context.Context, month string, income, expense core.Amount, count int64) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO month_summaries (month, total_income, total_expense, net, tx_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(month) DO UPDATE SET
			total_income = total_income + excluded.total_income,
			total_expense = total_expense + excluded.total_expense,
			net = net + excluded.net,
			tx_count = tx_count + excluded.tx_count`,
		month, int64(income), int64(expense), int64(income-expense), count)
	if err != nil {
		return fmt.Errorf("apply month delta: %w", err)
	}
	return nil
}

// ApplyCategoryMonthDelta adjusts one category-month bucket.
func (q *Queries) ApplyCategoryMonthDelta(ctx context.Context, month, category string, expense core.Amount, count int64) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO category_month_summaries (month, category, total_expense, tx_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(month, category) DO UPDATE SET
			total_expense = total_expense + excluded.total_expense,
			tx_count = tx_count + excluded.tx_count`,
		month, category, int64(expense), count)
	if err != nil {
		return fmt.Errorf("apply category month delta: %w", err)
	}
	return nil
}

// ApplyDayDelta adjusts one heatmap-day bucket.
func (q *Queries) ApplyDayDelta(ctx context.Context, day string, expense core.Amount, count int64) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO day_summaries (day, total_expense, tx_count)
		VALUES (?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			total_expense = total_expense + excluded.total_expense,
			tx_count = tx_count + excluded.tx_count`,
		day, int64(expense), count)
	if err != nil {
		return fmt.Errorf("apply day delta: %w", err)
	}
	return nil
}

// ApplyAccountMonthDelta adjusts one account-month bucket.
func (q *Queries) ApplyAccountMonthDelta(ctx context.Context, month string, accountID uuid.UUID, delta core.Amount, count int64) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO account_month_summaries (month, account_id, delta, tx_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(month, account_id) DO UPDATE SET
			delta = delta + excluded.delta,
			tx_count = tx_count + excluded.tx_count`,
		month, accountID.String(), int64(delta), count)
	if err != nil {
		return fmt.Errorf("apply account month delta: %w", err)
	}
	return nil
}

// ClearSummaries empties all four aggregate tables ahead of a rebuild.
func (q *Queries) ClearSummaries(ctx context.Context) error {
	for _, table := range []string{
		"month_summaries", "category_month_summaries", "day_summaries", "account_month_summaries",
	} {
		if _, err := q.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// GetMonthSummary returns one month bucket; a month with no postings comes
// back zero-valued rather than as an error.
func (q *Queries) GetMonthSummary(ctx context.Context, month string) (core.MonthSummary, error) {
	s := core.MonthSummary{Month: month}
	var income, expense, net int64
	err := q.db.QueryRowContext(ctx, `
		SELECT total_income, total_expense, net, tx_count
		FROM month_summaries WHERE month = ?`, month,
	).Scan(&income, &expense, &net, &s.TxCount)
	if errors.Is(err, sql.ErrNoRows) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("get month summary: %w", err)
	}
	s.TotalIncome = core.Amount(income)
	s.TotalExpense = core.Amount(expense)
	s.Net = core.Amount(net)
	return s, nil
}

// ListCategoryMonthSummaries returns the category buckets of one month,
// largest spend first.
func (q *Queries) ListCategoryMonthSummaries(ctx context.Context, month string) ([]core.CategoryMonthSummary, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT month, category, total_expense, tx_count
		FROM category_month_summaries WHERE month = ?
		ORDER BY total_expense DESC, category`, month)
	if err != nil {
		return nil, fmt.Errorf("list category month summaries: %w", err)
	}
	defer rows.Close()

	var out []core.CategoryMonthSummary
	for rows.Next() {
		var s core.CategoryMonthSummary
		var expense int64
		if err := rows.Scan(&s.Month, &s.Category, &expense, &s.TxCount); err != nil {
			return nil, fmt.Errorf("scan category month summary: %w", err)
		}
		s.TotalExpense = core.Amount(expense)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category month summaries: %w", err)
	}
	return out, nil
}

// ListDaySummaries returns the day buckets in [fromDay, toDay].
func (q *Queries) ListDaySummaries(ctx context.Context, fromDay, toDay string) ([]core.DaySummary, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT day, total_expense, tx_count
		FROM day_summaries WHERE day >= ? AND day <= ?
		ORDER BY day`, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("list day summaries: %w", err)
	}
	defer rows.Close()

	var out []core.DaySummary
	for rows.Next() {
		var s core.DaySummary
		var expense int64
		if err := rows.Scan(&s.Day, &expense, &s.TxCount); err != nil {
			return nil, fmt.Errorf("scan day summary: %w", err)
		}
		s.TotalExpense = core.Amount(expense)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate day summaries: %w", err)
	}
	return out, nil
}

// DumpMonthSummaries returns every month bucket ordered by key. Used by
// integrity verification and rebuild comparisons.
func (q *Queries) DumpMonthSummaries(ctx context.Context) ([]core.MonthSummary, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT month, total_income, total_expense, net, tx_count
		FROM month_summaries ORDER BY month`)
	if err != nil {
		return nil, fmt.Errorf("dump month summaries: %w", err)
	}
	defer rows.Close()

	var out []core.MonthSummary
	for rows.Next() {
		var s core.MonthSummary
		var income, expense, net int64
		if err := rows.Scan(&s.Month, &income, &expense, &net, &s.TxCount); err != nil {
			return nil, fmt.Errorf("scan month summary: %w", err)
		}
		s.TotalIncome = core.Amount(income)
		s.TotalExpense = core.Amount(expense)
		s.Net = core.Amount(net)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate month summaries: %w", err)
	}
	return out, nil
}

// DumpCategoryMonthSummaries returns every category-month bucket ordered by
// key.
func (q *Queries) DumpCategoryMonthSummaries(ctx context.Context) ([]core.CategoryMonthSummary, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT month, category, total_expense, tx_count
		FROM category_month_summaries ORDER BY month, category`)
	if err != nil {
		return nil, fmt.Errorf("dump category month summaries: %w", err)
	}
	defer rows.Close()

	var out []core.CategoryMonthSummary
	for rows.Next() {
		var s core.CategoryMonthSummary
		var expense int64
		if err := rows.Scan(&s.Month, &s.Category, &expense, &s.TxCount); err != nil {
			return nil, fmt.Errorf("scan category month summary: %w", err)
		}
		s.TotalExpense = core.Amount(expense)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category month summaries: %w", err)
	}
	return out, nil
}

// DumpDaySummaries returns every day bucket ordered by key.
func (q *Queries) DumpDaySummaries(ctx context.Context) ([]core.DaySummary, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT day, total_expense, tx_count FROM day_summaries ORDER BY day`)
	if err != nil {
		return nil, fmt.Errorf("dump day summaries: %w", err)
	}
	defer rows.Close()

	var out []core.DaySummary
	for rows.Next() {
		var s core.DaySummary
		var expense int64
		if err := rows.Scan(&s.Day, &expense, &s.TxCount); err != nil {
			return nil, fmt.Errorf("scan day summary: %w", err)
		}
		s.TotalExpense = core.Amount(expense)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate day summaries: %w", err)
	}
	return out, nil
}

// DumpAccountMonthSummaries returns every account-month bucket ordered by
// key.
func (q *Queries) DumpAccountMonthSummaries(ctx context.Context) ([]core.AccountMonthSummary, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT month, account_id, delta, tx_count
		FROM account_month_summaries ORDER BY month, account_id`)
	if err != nil {
		return nil, fmt.Errorf("dump account month summaries: %w", err)
	}
	defer rows.Close()

	var out []core.AccountMonthSummary
	for rows.Next() {
		var s core.AccountMonthSummary
		var id string
		var delta int64
		if err := rows.Scan(&s.Month, &id, &delta, &s.TxCount); err != nil {
			return nil, fmt.Errorf("scan account month summary: %w", err)
		}
		if s.AccountID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse account id: %w", err)
		}
		s.Delta = core.Amount(delta)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account month summaries: %w", err)
	}
	return out, nil
}

// ListAccountMonthSummaries returns the per-account buckets of one month.
func (q *Queries) ListAccountMonthSummaries(ctx context.Context, month string) ([]core.AccountMonthSummary, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT month, account_id, delta, tx_count
		FROM account_month_summaries WHERE month = ?
		ORDER BY account_id`, month)
	if err != nil {
		return nil, fmt.Errorf("list account month summaries: %w", err)
	}
	defer rows.Close()

	var out []core.AccountMonthSummary
	for rows.Next() {
		var s core.AccountMonthSummary
		var id string
		var delta int64
		if err := rows.Scan(&s.Month, &id, &delta, &s.TxCount); err != nil {
			return nil, fmt.Errorf("scan account month summary: %w", err)
		}
		if s.AccountID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse account id: %w", err)
		}
		s.Delta = core.Amount(delta)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account month summaries: %w", err)
	}
	return out, nil
}
