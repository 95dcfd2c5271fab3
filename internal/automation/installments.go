package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"kasbuku/internal/core"
	"kasbuku/internal/ledger"
	"kasbuku/internal/storage"
)

// PayInstallment posts the month's payment for one plan: debit an internal
// expense account, credit the liability account. It recognizes the month's
// expense against the card balance; no cash moves. When the month's payment
// was already posted the stored transaction comes back with duplicate=true.
func (e *Engine) PayInstallment(ctx context.Context, planID uuid.UUID, now time.Time) (tx *core.Transaction, duplicate bool, err error) {
	plan, err := e.ledger.Repo().Queries().GetInstallmentPlan(ctx, planID)
	if err != nil {
		return nil, false, err
	}
	if plan.Status != core.InstallmentActive {
		return nil, false, fmt.Errorf("%w: installment plan %s is %s", core.ErrValidation, plan.ID, plan.Status)
	}

	month := core.MonthKey(now)
	pid := plan.ID
	var (
		index  int
		status core.InstallmentStatus
	)
	// Posting and advancing the plan commit together. The index is derived
	// from the plan's postings on record rather than incremented, so the
	// duplicate path repairs a plan whose payment exists but whose index was
	// never advanced.
	tx, duplicate, err = e.ledger.PostThen(ctx, ledger.PostInput{
		Date:              now,
		Description:       "Installment payment " + plan.Description,
		Category:          "Installment",
		Amount:            plan.MonthlyAmount,
		DebitAccountID:    plan.DebitAccountID,
		CreditAccountID:   plan.CreditAccountID,
		IdempotencyKey:    idempotencyKey(BatchInstallment, plan.ID, month),
		InstallmentPlanID: &pid,
	}, func(q *storage.Queries, _ *core.Transaction, _ bool) error {
		posted, err := q.CountInstallmentPostings(ctx, plan.ID)
		if err != nil {
			return err
		}
		index = posted
		status = core.InstallmentActive
		if index >= plan.TenorMonths {
			status = core.InstallmentPaid
		}
		if index == plan.CurrentIndex && status == plan.Status {
			return nil
		}
		return q.AdvanceInstallmentPlan(ctx, plan.ID, index, status)
	})
	if err != nil {
		return tx, duplicate, err
	}

	if duplicate {
		slog.InfoContext(ctx, "Installment already posted this month",
			"plan_id", plan.ID, "index", index, "tenor", plan.TenorMonths, "status", status)
	} else {
		slog.InfoContext(ctx, "Installment paid",
			"plan_id", plan.ID, "index", index, "tenor", plan.TenorMonths, "status", status)
	}
	return tx, duplicate, nil
}

// RunInstallments posts the month's payment for every ACTIVE plan with the
// same skip/collect semantics as the other batches.
func (e *Engine) RunInstallments(ctx context.Context, opts RunOptions) (*BatchResult, error) {
	month := core.MonthKey(opts.Now)
	result := &BatchResult{Kind: BatchInstallment, Month: month, DryRun: opts.DryRun}

	plans, err := e.ledger.Repo().Queries().ListActiveInstallmentPlans(ctx)
	if err != nil {
		return nil, err
	}

	for _, plan := range plans {
		item := ItemResult{ID: plan.ID, Name: plan.Description, Amount: plan.MonthlyAmount}
		if opts.DryRun {
			result.Posted = append(result.Posted, item)
			continue
		}

		itemCtx, cancel := context.WithTimeout(ctx, itemTimeout(opts))
		_, duplicate, err := e.PayInstallment(itemCtx, plan.ID, opts.Now)
		cancel()
		if err != nil {
			item.Reason = err.Error()
			result.Failed = append(result.Failed, item)
			slog.ErrorContext(ctx, "Installment posting failed",
				"plan_id", plan.ID, "month", month, "error", err)
			continue
		}
		if duplicate {
			item.Reason = "already posted this month"
			result.Skipped = append(result.Skipped, item)
			continue
		}
		result.Posted = append(result.Posted, item)
	}

	e.publishBatch(ctx, result)
	return result, nil
}

func itemTimeout(opts RunOptions) time.Duration {
	if opts.ItemTimeout > 0 {
		return opts.ItemTimeout
	}
	return defaultItemTimeout
}
