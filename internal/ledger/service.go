// Package ledger implements the double-entry posting engine: atomic
// transaction writes with incrementally maintained balances and summary
// aggregates, minimum-balance reconstruction, and integrity
// verification/rebuild over the transaction log.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"kasbuku/internal/core"
	"kasbuku/internal/storage"
)

// EventPublisher receives ledger events after a successful commit. A nil
// publisher disables events; publish failures are logged and never fail the
// write that produced them.
type EventPublisher interface {
	TransactionPosted(ctx context.Context, t core.Transaction) error
	TransactionReversed(ctx context.Context, t core.Transaction) error
}

// Service is the ledger write/read API. All mutations run inside one storage
// transaction covering the row, both cached balances and all four summary
// buckets.
type Service struct {
	repo   *storage.Repository
	events EventPublisher
}

// NewService builds a ledger service. events may be nil.
func NewService(repo *storage.Repository, events EventPublisher) *Service {
	return &Service{repo: repo, events: events}
}

// Repo exposes the repository for read-side collaborators.
func (s *Service) Repo() *storage.Repository {
	return s.repo
}

// PostInput describes one posting. A nil debit account id means "synthesize
// the [EXPENSE] category account for Category"; a nil credit account id the
// [INCOME] one. This is how expenses and income stay double-entry balanced
// without the caller managing internal accounts.
type PostInput struct {
	Date              time.Time
	Description       string
	Category          string
	Note              string
	Amount            core.Amount
	DebitAccountID    uuid.UUID
	CreditAccountID   uuid.UUID
	IdempotencyKey    string
	InstallmentPlanID *uuid.UUID
}

// Post records one transaction. When the idempotency key already exists the
// stored transaction is returned with duplicate=true and nothing is written;
// the key is the sole duplicate check, no other field is compared.
func (s *Service) Post(ctx context.Context, in PostInput) (*core.Transaction, bool, error) {
	return s.PostThen(ctx, in, nil)
}

// PostThen posts like Post and additionally runs fn inside the same storage
// transaction, after the new row (or the stored duplicate) is resolved. An
// fn error rolls back the posting too. Callers use it to keep follow-up
// state changes atomic with the posting; fn also runs on the duplicate path
// so a retry can reconcile state a crash left behind.
func (s *Service) PostThen(ctx context.Context, in PostInput, fn func(q *storage.Queries, t *core.Transaction, duplicate bool) error) (tx *core.Transaction, duplicate bool, err error) {
	if err := in.Amount.Validate(); err != nil {
		return nil, false, fmt.Errorf("post: %w", err)
	}

	err = s.repo.WithTx(ctx, func(q *storage.Queries) error {
		if in.IdempotencyKey != "" {
			existing, err := q.GetTransactionByIdempotencyKey(ctx, in.IdempotencyKey)
			if err == nil {
				tx = &existing
				duplicate = true
				if fn != nil {
					return fn(q, tx, true)
				}
				return nil
			}
			if !errors.Is(err, core.ErrNotFound) {
				return err
			}
		}

		debitAcc, err := s.resolveAccount(ctx, q, in.DebitAccountID, core.KindExpense, in.Category)
		if err != nil {
			return err
		}
		creditAcc, err := s.resolveAccount(ctx, q, in.CreditAccountID, core.KindIncome, in.Category)
		if err != nil {
			return err
		}

		t := core.Transaction{
			ID:                uuid.New(),
			Date:              in.Date,
			Description:       in.Description,
			Category:          strings.TrimSpace(in.Category),
			Note:              in.Note,
			Amount:            in.Amount,
			DebitAccountID:    debitAcc.ID,
			CreditAccountID:   creditAcc.ID,
			IdempotencyKey:    in.IdempotencyKey,
			InstallmentPlanID: in.InstallmentPlanID,
			CreatedAt:         time.Now().UTC(),
		}
		if err := t.Validate(); err != nil {
			return err
		}

		seq, err := q.CreateTransaction(ctx, t)
		if err != nil {
			return err
		}
		t.Seq = seq

		if err := q.ApplyBalanceDelta(ctx, t.DebitAccountID, t.Amount); err != nil {
			return err
		}
		if err := q.ApplyBalanceDelta(ctx, t.CreditAccountID, -t.Amount); err != nil {
			return err
		}
		if err := applyDelta(ctx, q, deltaFor(t, debitAcc.Kind, creditAcc.Kind), 1); err != nil {
			return err
		}

		tx = &t
		if fn != nil {
			return fn(q, tx, false)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if !duplicate {
		s.publishPosted(ctx, *tx)
	} else {
		slog.InfoContext(ctx, "Duplicate posting suppressed",
			"idempotency_key", in.IdempotencyKey, "transaction_id", tx.ID)
	}
	return tx, duplicate, nil
}

// AmendInput carries the mutable transaction fields; nil means unchanged.
type AmendInput struct {
	Date        *time.Time
	Description *string
	Category    *string
	Note        *string
	Amount      *core.Amount
}

// Amend rewrites the mutable fields of a transaction. The summary effect is
// always remove-old then add-new, never an overwrite, so aggregates stay
// correct whichever subset of fields changed.
func (s *Service) Amend(ctx context.Context, id uuid.UUID, in AmendInput) (*core.Transaction, error) {
	var amended core.Transaction

	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		old, err := q.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		debitAcc, err := q.GetAccount(ctx, old.DebitAccountID)
		if err != nil {
			return err
		}
		creditAcc, err := q.GetAccount(ctx, old.CreditAccountID)
		if err != nil {
			return err
		}

		updated := old
		if in.Date != nil {
			updated.Date = *in.Date
		}
		if in.Description != nil {
			updated.Description = *in.Description
		}
		if in.Category != nil {
			updated.Category = strings.TrimSpace(*in.Category)
		}
		if in.Note != nil {
			updated.Note = *in.Note
		}
		if in.Amount != nil {
			updated.Amount = *in.Amount
		}
		if err := updated.Validate(); err != nil {
			return err
		}

		if diff := updated.Amount - old.Amount; diff != 0 {
			if err := q.ApplyBalanceDelta(ctx, old.DebitAccountID, diff); err != nil {
				return err
			}
			if err := q.ApplyBalanceDelta(ctx, old.CreditAccountID, -diff); err != nil {
				return err
			}
		}

		if err := applyDelta(ctx, q, deltaFor(old, debitAcc.Kind, creditAcc.Kind), -1); err != nil {
			return err
		}
		if err := applyDelta(ctx, q, deltaFor(updated, debitAcc.Kind, creditAcc.Kind), 1); err != nil {
			return err
		}

		if err := q.UpdateTransaction(ctx, updated); err != nil {
			return err
		}
		amended = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &amended, nil
}

// Reverse undoes and deletes a transaction: inverse balance deltas on both
// accounts and a remove delta through every summary bucket.
func (s *Service) Reverse(ctx context.Context, id uuid.UUID) error {
	var reversed core.Transaction

	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		t, err := q.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		debitAcc, err := q.GetAccount(ctx, t.DebitAccountID)
		if err != nil {
			return err
		}
		creditAcc, err := q.GetAccount(ctx, t.CreditAccountID)
		if err != nil {
			return err
		}

		if err := q.ApplyBalanceDelta(ctx, t.DebitAccountID, -t.Amount); err != nil {
			return err
		}
		if err := q.ApplyBalanceDelta(ctx, t.CreditAccountID, t.Amount); err != nil {
			return err
		}
		if err := applyDelta(ctx, q, deltaFor(t, debitAcc.Kind, creditAcc.Kind), -1); err != nil {
			return err
		}
		if err := q.DeleteTransaction(ctx, t.ID); err != nil {
			return err
		}
		reversed = t
		return nil
	})
	if err != nil {
		return err
	}

	s.publishReversed(ctx, reversed)
	return nil
}

// CreateAccount validates and stores a new account.
func (s *Service) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.CurrentBalance = a.OpeningBalance
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		return q.CreateAccount(ctx, a)
	})
	if err != nil {
		return core.Account{}, err
	}
	return a, nil
}

// resolveAccount loads the referenced account, or finds/creates the internal
// category account for the posting's category label. The uniqueness check
// and the create happen inside the caller's transaction, so concurrent
// first-use cannot produce duplicate category accounts.
func (s *Service) resolveAccount(ctx context.Context, q *storage.Queries, id uuid.UUID, kind core.AccountKind, category string) (core.Account, error) {
	if id != uuid.Nil {
		return q.GetAccount(ctx, id)
	}

	category = strings.TrimSpace(category)
	if category == "" {
		return core.Account{}, fmt.Errorf("%w: category required to synthesize %s account", core.ErrValidation, kind)
	}

	name := core.CategoryAccountName(kind, category)
	acc, err := q.GetAccountByKindName(ctx, kind, name)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.Account{}, err
	}

	acc = core.Account{
		ID:        uuid.New(),
		Name:      name,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
	if err := q.CreateAccount(ctx, acc); err != nil {
		return core.Account{}, err
	}
	slog.InfoContext(ctx, "Created category account", "name", name, "kind", kind)
	return acc, nil
}

func (s *Service) publishPosted(ctx context.Context, t core.Transaction) {
	if s.events == nil {
		return
	}
	if err := s.events.TransactionPosted(ctx, t); err != nil {
		slog.WarnContext(ctx, "Failed to publish transaction posted event",
			"transaction_id", t.ID, "error", err)
	}
}

func (s *Service) publishReversed(ctx context.Context, t core.Transaction) {
	if s.events == nil {
		return
	}
	if err := s.events.TransactionReversed(ctx, t); err != nil {
		slog.WarnContext(ctx, "Failed to publish transaction reversed event",
			"transaction_id", t.ID, "error", err)
	}
}
