package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"kasbuku/internal/core"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so every query can run
// auto-committed or inside WithTx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries is the hand-written query layer over the schema.
type Queries struct {
	db DBTX
}

// New wraps a database handle or transaction in a query layer.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

const accountColumns = `id, name, kind, opening_balance, current_balance, credit_limit,
	admin_fee_active, admin_fee_nominal, billing_pattern, billing_day,
	interest_active, interest_tiers, last_charged_month, last_credited_month, created_at`

// CreateAccount inserts a new account, automation settings included.
func (q *Queries) CreateAccount(ctx context.Context, a core.Account) error {
	var (
		feeActive, intActive int64
		feeNominal           int64
		pattern              string
		billingDay           int
		tiersJSON            = "[]"
		lastCharged          string
		lastCredited         string
	)
	if a.Automation != nil {
		if a.Automation.AdminFeeActive {
			feeActive = 1
		}
		if a.Automation.InterestActive {
			intActive = 1
		}
		feeNominal = int64(a.Automation.AdminFeeNominal)
		pattern = string(a.Automation.BillingPattern)
		billingDay = a.Automation.BillingDay
		lastCharged = a.Automation.LastChargedMonth
		lastCredited = a.Automation.LastCreditedMonth
		if len(a.Automation.InterestTiers) > 0 {
			raw, err := json.Marshal(a.Automation.InterestTiers)
			if err != nil {
				return fmt.Errorf("marshal interest tiers: %w", err)
			}
			tiersJSON = string(raw)
		}
	}

	var creditLimit sql.NullInt64
	if a.CreditLimit != nil {
		creditLimit = sql.NullInt64{Int64: int64(*a.CreditLimit), Valid: true}
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.Name, string(a.Kind), int64(a.OpeningBalance), int64(a.CurrentBalance),
		creditLimit, feeActive, feeNominal, pattern, billingDay,
		intActive, tiersJSON, lastCharged, lastCredited, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (q *Queries) scanAccount(row interface{ Scan(...any) error }) (core.Account, error) {
	var (
		a                    core.Account
		id, kind             string
		opening, current     int64
		creditLimit          sql.NullInt64
		feeActive, intActive int64
		feeNominal           int64
		pattern              string
		billingDay           int
		tiersJSON            string
		lastCharged          string
		lastCredited         string
	)
	err := row.Scan(&id, &a.Name, &kind, &opening, &current, &creditLimit,
		&feeActive, &feeNominal, &pattern, &billingDay,
		&intActive, &tiersJSON, &lastCharged, &lastCredited, &a.CreatedAt)
	if err != nil {
		return core.Account{}, err
	}
	a.ID, err = uuid.Parse(id)
	if err != nil {
		return core.Account{}, fmt.Errorf("parse account id: %w", err)
	}
	a.Kind = core.AccountKind(kind)
	a.OpeningBalance = core.Amount(opening)
	a.CurrentBalance = core.Amount(current)
	if creditLimit.Valid {
		cl := core.Amount(creditLimit.Int64)
		a.CreditLimit = &cl
	}
	if feeActive == 1 || intActive == 1 || lastCharged != "" || lastCredited != "" {
		auto := &core.AutomationSettings{
			AdminFeeActive:    feeActive == 1,
			AdminFeeNominal:   core.Amount(feeNominal),
			BillingPattern:    core.BillingPattern(pattern),
			BillingDay:        billingDay,
			InterestActive:    intActive == 1,
			LastChargedMonth:  lastCharged,
			LastCreditedMonth: lastCredited,
		}
		if tiersJSON != "" && tiersJSON != "[]" {
			if err := json.Unmarshal([]byte(tiersJSON), &auto.InterestTiers); err != nil {
				return core.Account{}, fmt.Errorf("unmarshal interest tiers: %w", err)
			}
		}
		a.Automation = auto
	}
	return a, nil
}

// GetAccount returns one account by id, core.ErrNotFound when absent.
func (q *Queries) GetAccount(ctx context.Context, id uuid.UUID) (core.Account, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id.String())
	a, err := q.scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, fmt.Errorf("account %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// GetAccountByKindName finds an account by its (kind, name) unique pair.
// Used for category account deduplication.
func (q *Queries) GetAccountByKindName(ctx context.Context, kind core.AccountKind, name string) (core.Account, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE kind = ? AND name = ?`,
		string(kind), name)
	a, err := q.scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, fmt.Errorf("account %s/%s: %w", kind, name, core.ErrNotFound)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account by name: %w", err)
	}
	return a, nil
}

// ListAccounts returns every account ordered by creation.
func (q *Queries) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()
	return q.collectAccounts(rows)
}

// ListAdminFeeAccounts returns accounts with the admin-fee automation on.
func (q *Queries) ListAdminFeeAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE admin_fee_active = 1 ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list admin fee accounts: %w", err)
	}
	defer rows.Close()
	return q.collectAccounts(rows)
}

// ListInterestAccounts returns accounts with the interest automation on.
func (q *Queries) ListInterestAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE interest_active = 1 ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list interest accounts: %w", err)
	}
	defer rows.Close()
	return q.collectAccounts(rows)
}

func (q *Queries) collectAccounts(rows *sql.Rows) ([]core.Account, error) {
	var accounts []core.Account
	for rows.Next() {
		a, err := q.scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// ApplyBalanceDelta adjusts one cached account balance by a signed amount.
func (q *Queries) ApplyBalanceDelta(ctx context.Context, id uuid.UUID, delta core.Amount) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE accounts SET current_balance = current_balance + ? WHERE id = ?`,
		int64(delta), id.String())
	if err != nil {
		return fmt.Errorf("apply balance delta: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("balance delta rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// SetLastChargedMonth stamps the admin-fee automation for a month.
func (q *Queries) SetLastChargedMonth(ctx context.Context, id uuid.UUID, month string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE accounts SET last_charged_month = ? WHERE id = ?`, month, id.String())
	if err != nil {
		return fmt.Errorf("set last charged month: %w", err)
	}
	return nil
}

// SetLastCreditedMonth stamps the interest automation for a month.
func (q *Queries) SetLastCreditedMonth(ctx context.Context, id uuid.UUID, month string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE accounts SET last_credited_month = ? WHERE id = ?`, month, id.String())
	if err != nil {
		return fmt.Errorf("set last credited month: %w", err)
	}
	return nil
}
