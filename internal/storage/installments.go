package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"kasbuku/internal/core"
)

const planColumns = `id, description, principal, tenor_months, monthly_amount, admin_fee,
	current_index, status, debit_account_id, credit_account_id, created_at`

// CreateInstallmentPlan inserts a new plan.
func (q *Queries) CreateInstallmentPlan(ctx context.Context, p core.InstallmentPlan) error {
	debit := ""
	if p.DebitAccountID != uuid.Nil {
		debit = p.DebitAccountID.String()
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO installment_plans (`+planColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.Description, int64(p.Principal), p.TenorMonths,
		int64(p.MonthlyAmount), int64(p.AdminFee), p.CurrentIndex, string(p.Status),
		debit, p.CreditAccountID.String(), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert installment plan: %w", err)
	}
	return nil
}

func scanPlan(row interface{ Scan(...any) error }) (core.InstallmentPlan, error) {
	var (
		p                         core.InstallmentPlan
		id, status, debit, credit string
		principal, monthly, fee   int64
	)
	err := row.Scan(&id, &p.Description, &principal, &p.TenorMonths, &monthly, &fee,
		&p.CurrentIndex, &status, &debit, &credit, &p.CreatedAt)
	if err != nil {
		return core.InstallmentPlan{}, err
	}
	if p.ID, err = uuid.Parse(id); err != nil {
		return core.InstallmentPlan{}, fmt.Errorf("parse plan id: %w", err)
	}
	if debit != "" {
		if p.DebitAccountID, err = uuid.Parse(debit); err != nil {
			return core.InstallmentPlan{}, fmt.Errorf("parse plan debit account id: %w", err)
		}
	}
	if p.CreditAccountID, err = uuid.Parse(credit); err != nil {
		return core.InstallmentPlan{}, fmt.Errorf("parse plan credit account id: %w", err)
	}
	p.Principal = core.Amount(principal)
	p.MonthlyAmount = core.Amount(monthly)
	p.AdminFee = core.Amount(fee)
	p.Status = core.InstallmentStatus(status)
	return p, nil
}

// GetInstallmentPlan returns one plan by id, core.ErrNotFound when absent.
func (q *Queries) GetInstallmentPlan(ctx context.Context, id uuid.UUID) (core.InstallmentPlan, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM installment_plans WHERE id = ?`, id.String())
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.InstallmentPlan{}, fmt.Errorf("installment plan %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.InstallmentPlan{}, fmt.Errorf("get installment plan: %w", err)
	}
	return p, nil
}

// ListActiveInstallmentPlans returns every plan still being paid off.
func (q *Queries) ListActiveInstallmentPlans(ctx context.Context) ([]core.InstallmentPlan, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+planColumns+` FROM installment_plans WHERE status = ? ORDER BY created_at, id`,
		string(core.InstallmentActive))
	if err != nil {
		return nil, fmt.Errorf("list active installment plans: %w", err)
	}
	defer rows.Close()

	var plans []core.InstallmentPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan installment plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate installment plans: %w", err)
	}
	return plans, nil
}

// CountInstallmentPostings returns how many transactions reference the plan.
// Every monthly payment links its transaction to the plan, so this count is
// the authoritative installment index.
func (q *Queries) CountInstallmentPostings(ctx context.Context, planID uuid.UUID) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE installment_plan_id = ?`,
		planID.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count installment postings: %w", err)
	}
	return n, nil
}

// AdvanceInstallmentPlan moves a plan to the next installment index and
// status.
func (q *Queries) AdvanceInstallmentPlan(ctx context.Context, id uuid.UUID, index int, status core.InstallmentStatus) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE installment_plans SET current_index = ?, status = ? WHERE id = ?`,
		index, string(status), id.String())
	if err != nil {
		return fmt.Errorf("advance installment plan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance installment plan rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("installment plan %s: %w", id, core.ErrNotFound)
	}
	return nil
}
