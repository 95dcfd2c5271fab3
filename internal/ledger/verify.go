package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"kasbuku/internal/core"
	"kasbuku/internal/storage"
)

const verifyConcurrency = 4

// BalanceMismatch is one account whose cached balance disagrees with the
// balance recomputed from the transaction log.
type BalanceMismatch struct {
	AccountID uuid.UUID   `json:"account_id"`
	Name      string      `json:"name"`
	Cached    core.Amount `json:"cached"`
	Computed  core.Amount `json:"computed"`
}

// AggregateMismatch is one summary bucket whose stored values disagree with
// the values recomputed from the log.
type AggregateMismatch struct {
	Table    string `json:"table"`
	Key      string `json:"key"`
	Cached   string `json:"cached"`
	Computed string `json:"computed"`
}

// VerifyReport is the outcome of an integrity verification run. It reports
// drift; it never corrects it.
type VerifyReport struct {
	AccountsChecked     int                 `json:"accounts_checked"`
	BalanceMismatches   []BalanceMismatch   `json:"balance_mismatches"`
	AggregateMismatches []AggregateMismatch `json:"aggregate_mismatches"`
}

// Clean reports whether no drift was found.
func (r *VerifyReport) Clean() bool {
	return len(r.BalanceMismatches) == 0 && len(r.AggregateMismatches) == 0
}

// Err converts a dirty report into a core.ErrDrift error, nil when clean.
func (r *VerifyReport) Err() error {
	if r.Clean() {
		return nil
	}
	return fmt.Errorf("%w: %d balance and %d aggregate mismatches",
		core.ErrDrift, len(r.BalanceMismatches), len(r.AggregateMismatches))
}

// Verify recomputes every account balance (opening + Σdebits − Σcredits)
// and every summary bucket from the full transaction log and compares them
// against cached state. Accounts are checked concurrently under a bounded
// errgroup; a missing bucket and a zero-valued bucket are treated as equal
// because incremental deltas may leave zero rows behind.
func (s *Service) Verify(ctx context.Context) (*VerifyReport, error) {
	q := s.repo.Queries()
	report := &VerifyReport{}

	accounts, err := q.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	report.AccountsChecked = len(accounts)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(verifyConcurrency)
	for _, acc := range accounts {
		g.Go(func() error {
			debits, credits, err := q.GetAccountPostingTotals(gctx, acc.ID)
			if err != nil {
				return err
			}
			computed := acc.OpeningBalance + debits - credits
			if computed != acc.CurrentBalance {
				mu.Lock()
				report.BalanceMismatches = append(report.BalanceMismatches, BalanceMismatch{
					AccountID: acc.ID,
					Name:      acc.Name,
					Cached:    acc.CurrentBalance,
					Computed:  computed,
				})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(report.BalanceMismatches, func(i, j int) bool {
		return report.BalanceMismatches[i].Name < report.BalanceMismatches[j].Name
	})

	if err := s.verifyAggregates(ctx, q, report); err != nil {
		return nil, err
	}

	if report.Clean() {
		slog.InfoContext(ctx, "Integrity verification clean", "accounts", report.AccountsChecked)
	} else {
		slog.WarnContext(ctx, "Integrity verification found drift",
			"balance_mismatches", len(report.BalanceMismatches),
			"aggregate_mismatches", len(report.AggregateMismatches))
	}
	return report, nil
}

type expectedAggregates struct {
	months     map[string]*core.MonthSummary
	categories map[string]*core.CategoryMonthSummary
	days       map[string]*core.DaySummary
	accounts   map[string]*core.AccountMonthSummary
}

func recomputeAggregates(ctx context.Context, q *storage.Queries) (*expectedAggregates, error) {
	exp := &expectedAggregates{
		months:     make(map[string]*core.MonthSummary),
		categories: make(map[string]*core.CategoryMonthSummary),
		days:       make(map[string]*core.DaySummary),
		accounts:   make(map[string]*core.AccountMonthSummary),
	}

	err := q.ForEachTransactionWithKinds(ctx, func(t storage.TransactionWithKinds) error {
		month := core.MonthKey(t.Date)

		m := exp.months[month]
		if m == nil {
			m = &core.MonthSummary{Month: month}
			exp.months[month] = m
		}
		if t.CreditKind == core.KindIncome {
			m.TotalIncome += t.Amount
		}
		if t.DebitKind == core.KindExpense {
			m.TotalExpense += t.Amount
		}
		m.Net = m.TotalIncome - m.TotalExpense
		m.TxCount++

		if t.DebitKind == core.KindExpense {
			ck := month + "|" + t.Category
			c := exp.categories[ck]
			if c == nil {
				c = &core.CategoryMonthSummary{Month: month, Category: t.Category}
				exp.categories[ck] = c
			}
			c.TotalExpense += t.Amount
			c.TxCount++

			day := core.DayKey(t.Date)
			d := exp.days[day]
			if d == nil {
				d = &core.DaySummary{Day: day}
				exp.days[day] = d
			}
			d.TotalExpense += t.Amount
			d.TxCount++
		}

		for _, side := range []struct {
			id    uuid.UUID
			delta core.Amount
		}{
			{t.DebitAccountID, t.Amount},
			{t.CreditAccountID, -t.Amount},
		} {
			ak := month + "|" + side.id.String()
			a := exp.accounts[ak]
			if a == nil {
				a = &core.AccountMonthSummary{Month: month, AccountID: side.id}
				exp.accounts[ak] = a
			}
			a.Delta += side.delta
			a.TxCount++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return exp, nil
}

func (s *Service) verifyAggregates(ctx context.Context, q *storage.Queries, report *VerifyReport) error {
	exp, err := recomputeAggregates(ctx, q)
	if err != nil {
		return err
	}

	addMismatch := func(table, key, cached, computed string) {
		report.AggregateMismatches = append(report.AggregateMismatches, AggregateMismatch{
			Table: table, Key: key, Cached: cached, Computed: computed,
		})
	}

	stored, err := q.DumpMonthSummaries(ctx)
	if err != nil {
		return err
	}
	seenMonths := make(map[string]bool, len(stored))
	for _, got := range stored {
		seenMonths[got.Month] = true
		want := exp.months[got.Month]
		if want == nil {
			want = &core.MonthSummary{Month: got.Month}
		}
		if *want != got {
			addMismatch("month_summaries", got.Month, fmtMonth(got), fmtMonth(*want))
		}
	}
	for key, want := range exp.months {
		if !seenMonths[key] && (want.TotalIncome != 0 || want.TotalExpense != 0 || want.TxCount != 0) {
			addMismatch("month_summaries", key, "absent", fmtMonth(*want))
		}
	}

	storedCats, err := q.DumpCategoryMonthSummaries(ctx)
	if err != nil {
		return err
	}
	seenCats := make(map[string]bool, len(storedCats))
	for _, got := range storedCats {
		key := got.Month + "|" + got.Category
		seenCats[key] = true
		want := exp.categories[key]
		if want == nil {
			want = &core.CategoryMonthSummary{Month: got.Month, Category: got.Category}
		}
		if *want != got {
			addMismatch("category_month_summaries", key, fmtCat(got), fmtCat(*want))
		}
	}
	for key, want := range exp.categories {
		if !seenCats[key] && (want.TotalExpense != 0 || want.TxCount != 0) {
			addMismatch("category_month_summaries", key, "absent", fmtCat(*want))
		}
	}

	storedDays, err := q.DumpDaySummaries(ctx)
	if err != nil {
		return err
	}
	seenDays := make(map[string]bool, len(storedDays))
	for _, got := range storedDays {
		seenDays[got.Day] = true
		want := exp.days[got.Day]
		if want == nil {
			want = &core.DaySummary{Day: got.Day}
		}
		if *want != got {
			addMismatch("day_summaries", got.Day, fmtDay(got), fmtDay(*want))
		}
	}
	for key, want := range exp.days {
		if !seenDays[key] && (want.TotalExpense != 0 || want.TxCount != 0) {
			addMismatch("day_summaries", key, "absent", fmtDay(*want))
		}
	}

	storedAccounts, err := q.DumpAccountMonthSummaries(ctx)
	if err != nil {
		return err
	}
	seenAccounts := make(map[string]bool, len(storedAccounts))
	for _, got := range storedAccounts {
		key := got.Month + "|" + got.AccountID.String()
		seenAccounts[key] = true
		want := exp.accounts[key]
		if want == nil {
			want = &core.AccountMonthSummary{Month: got.Month, AccountID: got.AccountID}
		}
		if *want != got {
			addMismatch("account_month_summaries", key, fmtAccMonth(got), fmtAccMonth(*want))
		}
	}
	for key, want := range exp.accounts {
		if !seenAccounts[key] && (want.Delta != 0 || want.TxCount != 0) {
			addMismatch("account_month_summaries", key, "absent", fmtAccMonth(*want))
		}
	}

	sort.Slice(report.AggregateMismatches, func(i, j int) bool {
		a, b := report.AggregateMismatches[i], report.AggregateMismatches[j]
		if a.Table != b.Table {
			return a.Table < b.Table
		}
		return a.Key < b.Key
	})
	return nil
}

func fmtMonth(s core.MonthSummary) string {
	return fmt.Sprintf("in=%d out=%d net=%d count=%d", s.TotalIncome, s.TotalExpense, s.Net, s.TxCount)
}

func fmtCat(s core.CategoryMonthSummary) string {
	return fmt.Sprintf("out=%d count=%d", s.TotalExpense, s.TxCount)
}

func fmtDay(s core.DaySummary) string {
	return fmt.Sprintf("out=%d count=%d", s.TotalExpense, s.TxCount)
}

func fmtAccMonth(s core.AccountMonthSummary) string {
	return fmt.Sprintf("delta=%d count=%d", s.Delta, s.TxCount)
}

// Rebuild clears all four summary tables and replays every transaction
// through the add delta exactly once, inside a single storage transaction.
// Running it twice in a row yields identical aggregate contents.
func (s *Service) Rebuild(ctx context.Context) error {
	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		if err := q.ClearSummaries(ctx); err != nil {
			return err
		}
		// Materialize before replaying: the tx holds a single connection,
		// so no statement may run while the rows cursor is open.
		var all []storage.TransactionWithKinds
		err := q.ForEachTransactionWithKinds(ctx, func(t storage.TransactionWithKinds) error {
			all = append(all, t)
			return nil
		})
		if err != nil {
			return err
		}
		for _, t := range all {
			if err := applyDelta(ctx, q, deltaFor(t.Transaction, t.DebitKind, t.CreditKind), 1); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rebuild summaries: %w", err)
	}
	slog.InfoContext(ctx, "Summary aggregates rebuilt")
	return nil
}
