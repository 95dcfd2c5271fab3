package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kasbuku/internal/core"
)

const txColumns = `seq, id, tx_date, description, category, note, amount,
	debit_account_id, credit_account_id, idempotency_key, installment_plan_id, created_at`

// TransactionWithKinds is a transaction joined with the kinds of both of its
// accounts, the shape the summary aggregator folds over.
type TransactionWithKinds struct {
	core.Transaction
	DebitKind  core.AccountKind
	CreditKind core.AccountKind
}

// CreateTransaction inserts a transaction row and returns its sequence
// number (the insertion-order tie-break).
func (q *Queries) CreateTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	var idemKey sql.NullString
	if t.IdempotencyKey != "" {
		idemKey = sql.NullString{String: t.IdempotencyKey, Valid: true}
	}
	var planID sql.NullString
	if t.InstallmentPlanID != nil {
		planID = sql.NullString{String: t.InstallmentPlanID.String(), Valid: true}
	}

	var seq int64
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO transactions
			(id, tx_date, description, category, note, amount,
			 debit_account_id, credit_account_id, idempotency_key, installment_plan_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING seq`,
		t.ID.String(), t.Date, t.Description, t.Category, t.Note, int64(t.Amount),
		t.DebitAccountID.String(), t.CreditAccountID.String(), idemKey, planID, t.CreatedAt,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	return seq, nil
}

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var (
		t                 core.Transaction
		id, debit, credit string
		amount            int64
		idemKey           sql.NullString
		planID            sql.NullString
	)
	err := row.Scan(&t.Seq, &id, &t.Date, &t.Description, &t.Category, &t.Note, &amount,
		&debit, &credit, &idemKey, &planID, &t.CreatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	if t.ID, err = uuid.Parse(id); err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction id: %w", err)
	}
	if t.DebitAccountID, err = uuid.Parse(debit); err != nil {
		return core.Transaction{}, fmt.Errorf("parse debit account id: %w", err)
	}
	if t.CreditAccountID, err = uuid.Parse(credit); err != nil {
		return core.Transaction{}, fmt.Errorf("parse credit account id: %w", err)
	}
	t.Amount = core.Amount(amount)
	if idemKey.Valid {
		t.IdempotencyKey = idemKey.String
	}
	if planID.Valid {
		pid, err := uuid.Parse(planID.String)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("parse installment plan id: %w", err)
		}
		t.InstallmentPlanID = &pid
	}
	return t, nil
}

// GetTransaction returns one transaction by id, core.ErrNotFound when absent.
func (q *Queries) GetTransaction(ctx context.Context, id uuid.UUID) (core.Transaction, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = ?`, id.String())
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// GetTransactionByIdempotencyKey returns the transaction holding a key, or
// core.ErrNotFound. The key is the sole duplicate-prevention mechanism; no
// other field is compared.
func (q *Queries) GetTransactionByIdempotencyKey(ctx context.Context, key string) (core.Transaction, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+txColumns+` FROM transactions WHERE idempotency_key = ?`, key)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("idempotency key %q: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction by idempotency key: %w", err)
	}
	return t, nil
}

// UpdateTransaction rewrites the mutable fields of a transaction row.
func (q *Queries) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE transactions
		SET tx_date = ?, description = ?, category = ?, note = ?, amount = ?
		WHERE id = ?`,
		t.Date, t.Description, t.Category, t.Note, int64(t.Amount), t.ID.String())
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", t.ID, core.ErrNotFound)
	}
	return nil
}

// DeleteTransaction removes a transaction row.
func (q *Queries) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// ListAccountTransactionsBetween returns every transaction touching the
// account in [from, to), ordered by date with the sequence number as the
// stable tie-break. This ordering is what makes same-day balance
// reconstruction deterministic.
func (q *Queries) ListAccountTransactionsBetween(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE (debit_account_id = ? OR credit_account_id = ?)
		  AND tx_date >= ? AND tx_date < ?
		ORDER BY tx_date, seq`,
		accountID.String(), accountID.String(), from, to)
	if err != nil {
		return nil, fmt.Errorf("list account transactions: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

// SumAccountNetSince returns the net balance effect (debits − credits) of
// every posting against the account dated on or after from. Subtracting it
// from the cached balance rolls the balance back to the instant before from.
func (q *Queries) SumAccountNetSince(ctx context.Context, accountID uuid.UUID, from time.Time) (core.Amount, error) {
	var net int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN debit_account_id = ? THEN amount ELSE -amount END), 0)
		FROM transactions
		WHERE (debit_account_id = ? OR credit_account_id = ?) AND tx_date >= ?`,
		accountID.String(), accountID.String(), accountID.String(), from,
	).Scan(&net)
	if err != nil {
		return 0, fmt.Errorf("sum account net: %w", err)
	}
	return core.Amount(net), nil
}

// GetAccountPostingTotals returns the unordered debit and credit sums for
// one account over the whole log, the inputs of integrity verification.
func (q *Queries) GetAccountPostingTotals(ctx context.Context, accountID uuid.UUID) (debits, credits core.Amount, err error) {
	var d, c int64
	err = q.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN debit_account_id = ? THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN credit_account_id = ? THEN amount ELSE 0 END), 0)
		FROM transactions
		WHERE debit_account_id = ? OR credit_account_id = ?`,
		accountID.String(), accountID.String(), accountID.String(), accountID.String(),
	).Scan(&d, &c)
	if err != nil {
		return 0, 0, fmt.Errorf("sum account postings: %w", err)
	}
	return core.Amount(d), core.Amount(c), nil
}

// ForEachTransactionWithKinds streams every transaction joined with both
// account kinds, in sequence order. Used by rebuild and verification so the
// full log never has to sit in memory.
func (q *Queries) ForEachTransactionWithKinds(ctx context.Context, fn func(TransactionWithKinds) error) error {
	rows, err := q.db.QueryContext(ctx, `
		SELECT t.seq, t.id, t.tx_date, t.description, t.category, t.note, t.amount,
		       t.debit_account_id, t.credit_account_id, t.idempotency_key, t.installment_plan_id, t.created_at,
		       da.kind, ca.kind
		FROM transactions t
		JOIN accounts da ON da.id = t.debit_account_id
		JOIN accounts ca ON ca.id = t.credit_account_id
		ORDER BY t.seq`)
	if err != nil {
		return fmt.Errorf("list transactions with kinds: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			t                 core.Transaction
			id, debit, credit string
			amount            int64
			idemKey, planID   sql.NullString
			debitKind         string
			creditKind        string
		)
		err := rows.Scan(&t.Seq, &id, &t.Date, &t.Description, &t.Category, &t.Note, &amount,
			&debit, &credit, &idemKey, &planID, &t.CreatedAt, &debitKind, &creditKind)
		if err != nil {
			return fmt.Errorf("scan transaction with kinds: %w", err)
		}
		if t.ID, err = uuid.Parse(id); err != nil {
			return fmt.Errorf("parse transaction id: %w", err)
		}
		if t.DebitAccountID, err = uuid.Parse(debit); err != nil {
			return fmt.Errorf("parse debit account id: %w", err)
		}
		if t.CreditAccountID, err = uuid.Parse(credit); err != nil {
			return fmt.Errorf("parse credit account id: %w", err)
		}
		t.Amount = core.Amount(amount)
		if idemKey.Valid {
			t.IdempotencyKey = idemKey.String
		}
		row := TransactionWithKinds{
			Transaction: t,
			DebitKind:   core.AccountKind(debitKind),
			CreditKind:  core.AccountKind(creditKind),
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate transactions with kinds: %w", err)
	}
	return nil
}
