package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"kasbuku/internal/core"
	"kasbuku/internal/ledger"
)

// InterestBasis selects the balance the interest calculation reads. It is an
// explicit parameter of the batch, resolved from configuration by callers,
// never process-wide state.
type InterestBasis string

const (
	// BasisCurrentBalance bases interest on the account's cached balance.
	BasisCurrentBalance InterestBasis = "current"
	// BasisMinimumBalance bases interest on the minimum balance held during
	// the prior calendar month.
	BasisMinimumBalance InterestBasis = "minimum"
)

// BatchKind names a recurring automation batch.
type BatchKind string

const (
	BatchAdminFee    BatchKind = "admin-fee"
	BatchInterest    BatchKind = "interest"
	BatchInstallment BatchKind = "installment"
)

const defaultItemTimeout = 10 * time.Second

// RunOptions parameterizes one batch run.
type RunOptions struct {
	// Now is the reference instant; its month is the target month.
	Now time.Time
	// DryRun computes the result set without posting or stamping.
	DryRun bool
	// Basis applies to interest runs only.
	Basis InterestBasis
	// ItemTimeout bounds each account's posting. Zero means the default.
	ItemTimeout time.Duration
}

// ItemResult is the outcome for one account (or plan) in a batch.
type ItemResult struct {
	ID     uuid.UUID   `json:"id"`
	Name   string      `json:"name"`
	Amount core.Amount `json:"amount"`
	Reason string      `json:"reason,omitempty"`
}

// BatchResult tallies one batch run. A failed item never aborts the batch.
type BatchResult struct {
	Kind    BatchKind    `json:"kind"`
	Month   string       `json:"month"`
	DryRun  bool         `json:"dry_run"`
	Posted  []ItemResult `json:"posted"`
	Skipped []ItemResult `json:"skipped"`
	Failed  []ItemResult `json:"failed"`
}

// EventPublisher receives batch completion events. May be nil.
type EventPublisher interface {
	BatchCompleted(ctx context.Context, kind, month string, posted, skipped, failed int) error
}

// Engine runs the recurring automations against the ledger.
type Engine struct {
	ledger *ledger.Service
	events EventPublisher
}

// NewEngine builds an automation engine. events may be nil.
func NewEngine(svc *ledger.Service, events EventPublisher) *Engine {
	return &Engine{ledger: svc, events: events}
}

// RunAdminFees charges the monthly admin fee on every account with the
// automation enabled, at most once per target month per account.
func (e *Engine) RunAdminFees(ctx context.Context, opts RunOptions) (*BatchResult, error) {
	month := core.MonthKey(opts.Now)
	result := &BatchResult{Kind: BatchAdminFee, Month: month, DryRun: opts.DryRun}

	accounts, err := e.ledger.Repo().Queries().ListAdminFeeAccounts(ctx)
	if err != nil {
		return nil, err
	}

	for _, acc := range accounts {
		item := ItemResult{ID: acc.ID, Name: acc.Name}
		auto := acc.Automation
		if auto == nil {
			continue
		}

		if auto.LastChargedMonth == month {
			item.Reason = "already processed"
			result.Skipped = append(result.Skipped, item)
			continue
		}
		if err := auto.Validate(); err != nil {
			item.Reason = err.Error()
			result.Failed = append(result.Failed, item)
			continue
		}
		occ, err := OccurrenceInMonth(auto.BillingPattern, auto.BillingDay, opts.Now)
		if err != nil {
			item.Reason = err.Error()
			result.Failed = append(result.Failed, item)
			continue
		}
		if truncateToDay(opts.Now).Before(occ) {
			item.Reason = "billing date not reached"
			result.Skipped = append(result.Skipped, item)
			continue
		}
		if auto.AdminFeeNominal <= 0 {
			item.Reason = "zero amount"
			result.Skipped = append(result.Skipped, item)
			continue
		}

		item.Amount = auto.AdminFeeNominal
		if opts.DryRun {
			result.Posted = append(result.Posted, item)
			continue
		}

		err = e.postAndStamp(ctx, opts, postSpec{
			input: ledger.PostInput{
				Date:            opts.Now,
				Description:     "Monthly admin fee " + acc.Name,
				Category:        "Admin Fee",
				Amount:          auto.AdminFeeNominal,
				CreditAccountID: acc.ID,
				IdempotencyKey:  idempotencyKey(BatchAdminFee, acc.ID, month),
			},
			stamp: func(ctx context.Context) error {
				return e.ledger.Repo().Queries().SetLastChargedMonth(ctx, acc.ID, month)
			},
		}, &item, result)
		if err != nil {
			slog.ErrorContext(ctx, "Admin fee posting failed",
				"account_id", acc.ID, "month", month, "error", err)
		}
	}

	e.publishBatch(ctx, result)
	return result, nil
}

// RunInterest credits monthly interest on every account with the automation
// enabled. The basis balance is either the cached current balance or the
// minimum balance held during the prior month.
func (e *Engine) RunInterest(ctx context.Context, opts RunOptions) (*BatchResult, error) {
	month := core.MonthKey(opts.Now)
	result := &BatchResult{Kind: BatchInterest, Month: month, DryRun: opts.DryRun}

	basis := opts.Basis
	if basis == "" {
		basis = BasisCurrentBalance
	}

	accounts, err := e.ledger.Repo().Queries().ListInterestAccounts(ctx)
	if err != nil {
		return nil, err
	}

	for _, acc := range accounts {
		item := ItemResult{ID: acc.ID, Name: acc.Name}
		auto := acc.Automation
		if auto == nil {
			continue
		}

		if auto.LastCreditedMonth == month {
			item.Reason = "already processed"
			result.Skipped = append(result.Skipped, item)
			continue
		}
		if err := core.ValidateTiers(auto.InterestTiers); err != nil {
			item.Reason = err.Error()
			result.Failed = append(result.Failed, item)
			continue
		}

		balance, err := e.basisBalance(ctx, acc, basis, opts.Now)
		if err != nil {
			item.Reason = err.Error()
			result.Failed = append(result.Failed, item)
			continue
		}

		amount := MonthlyInterest(balance, RateFor(balance, auto.InterestTiers))
		if amount < 1 {
			item.Reason = "amount below one minor unit"
			result.Skipped = append(result.Skipped, item)
			continue
		}

		item.Amount = amount
		if opts.DryRun {
			result.Posted = append(result.Posted, item)
			continue
		}

		err = e.postAndStamp(ctx, opts, postSpec{
			input: ledger.PostInput{
				Date:           opts.Now,
				Description:    "Monthly interest " + acc.Name,
				Category:       "Interest",
				Amount:         amount,
				DebitAccountID: acc.ID,
				IdempotencyKey: idempotencyKey(BatchInterest, acc.ID, month),
			},
			stamp: func(ctx context.Context) error {
				return e.ledger.Repo().Queries().SetLastCreditedMonth(ctx, acc.ID, month)
			},
		}, &item, result)
		if err != nil {
			slog.ErrorContext(ctx, "Interest posting failed",
				"account_id", acc.ID, "month", month, "error", err)
		}
	}

	e.publishBatch(ctx, result)
	return result, nil
}

func (e *Engine) basisBalance(ctx context.Context, acc core.Account, basis InterestBasis, now time.Time) (core.Amount, error) {
	switch basis {
	case BasisCurrentBalance:
		return acc.CurrentBalance, nil
	case BasisMinimumBalance:
		prior := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
		res, err := e.ledger.MinimumBalanceForMonth(ctx, acc.ID, prior.Year(), prior.Month())
		if err != nil {
			return 0, err
		}
		if !res.Existed {
			// No prior-month history; nothing to pay interest on.
			return 0, nil
		}
		return res.Minimum, nil
	default:
		return 0, fmt.Errorf("%w: unknown interest basis %q", core.ErrValidation, basis)
	}
}

type postSpec struct {
	input ledger.PostInput
	stamp func(ctx context.Context) error
}

// postAndStamp posts one automation transaction under the per-item timeout
// and stamps the account's last-processed month. A duplicate suppression
// (idempotency key already present) still stamps: it means an earlier run
// posted but died before stamping.
func (e *Engine) postAndStamp(ctx context.Context, opts RunOptions, spec postSpec, item *ItemResult, result *BatchResult) error {
	timeout := opts.ItemTimeout
	if timeout <= 0 {
		timeout = defaultItemTimeout
	}
	itemCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, duplicate, err := e.ledger.Post(itemCtx, spec.input)
	if err != nil {
		item.Reason = err.Error()
		result.Failed = append(result.Failed, *item)
		return err
	}
	if err := spec.stamp(itemCtx); err != nil {
		item.Reason = "posted but stamp failed: " + err.Error()
		result.Failed = append(result.Failed, *item)
		return err
	}
	if duplicate {
		item.Reason = "duplicate suppressed"
		result.Skipped = append(result.Skipped, *item)
		return nil
	}
	result.Posted = append(result.Posted, *item)
	return nil
}

func (e *Engine) publishBatch(ctx context.Context, r *BatchResult) {
	slog.InfoContext(ctx, "Automation batch complete",
		"kind", r.Kind, "month", r.Month, "dry_run", r.DryRun,
		"posted", len(r.Posted), "skipped", len(r.Skipped), "failed", len(r.Failed))
	if e.events == nil || r.DryRun {
		return
	}
	if err := e.events.BatchCompleted(ctx, string(r.Kind), r.Month, len(r.Posted), len(r.Skipped), len(r.Failed)); err != nil {
		slog.WarnContext(ctx, "Failed to publish batch completed event",
			"kind", r.Kind, "month", r.Month, "error", err)
	}
}

func idempotencyKey(kind BatchKind, id uuid.UUID, month string) string {
	return fmt.Sprintf("%s-%s-%s", kind, id, month)
}
