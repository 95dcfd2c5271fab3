package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"kasbuku/internal/automation"
	"kasbuku/internal/core"
	"kasbuku/internal/ledger"
)

const dateLayout = "2006-01-02"

type accountRequest struct {
	Name           string                   `json:"name"`
	Kind           core.AccountKind         `json:"kind"`
	OpeningBalance string                   `json:"opening_balance"`
	CreditLimit    *string                  `json:"credit_limit,omitempty"`
	Automation     *core.AutomationSettings `json:"automation,omitempty"`
}

type accountResponse struct {
	ID               uuid.UUID        `json:"id"`
	Name             string           `json:"name"`
	Kind             core.AccountKind `json:"kind"`
	OpeningBalance   core.Amount      `json:"opening_balance"`
	CurrentBalance   core.Amount      `json:"current_balance"`
	FormattedBalance string           `json:"formatted_balance"`
	CreditLimit      *core.Amount     `json:"credit_limit,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

func (s *Server) accountResponse(a core.Account) accountResponse {
	return accountResponse{
		ID:               a.ID,
		Name:             a.Name,
		Kind:             a.Kind,
		OpeningBalance:   a.OpeningBalance,
		CurrentBalance:   a.CurrentBalance,
		FormattedBalance: s.formatAmount(a.CurrentBalance),
		CreditLimit:      a.CreditLimit,
		CreatedAt:        a.CreatedAt,
	}
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	opening := core.Amount(0)
	if req.OpeningBalance != "" {
		var err error
		opening, err = core.ParseAmount(req.OpeningBalance)
		if err != nil {
			writeError(w, r, err)
			return
		}
	}
	acc := core.Account{
		Name:           req.Name,
		Kind:           req.Kind,
		OpeningBalance: opening,
		Automation:     req.Automation,
	}
	if req.CreditLimit != nil {
		limit, err := core.ParseAmount(*req.CreditLimit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		acc.CreditLimit = &limit
	}

	created, err := s.ledger.CreateAccount(r.Context(), acc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.accountResponse(created))
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.Repo().Queries().ListAccounts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, s.accountResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

type minimumBalanceResponse struct {
	AccountID        uuid.UUID   `json:"account_id"`
	Month            string      `json:"month"`
	Existed          bool        `json:"existed"`
	StartBalance     core.Amount `json:"start_balance"`
	Minimum          core.Amount `json:"minimum"`
	FormattedMinimum string      `json:"formatted_minimum"`
}

func (s *Server) handleMinimumBalance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid account id", core.ErrValidation))
		return
	}
	// Accepts either month=YYYY-MM or year=YYYY&month=M.
	var month time.Time
	q := r.URL.Query()
	if yearStr := q.Get("year"); yearStr != "" {
		year, err := strconv.Atoi(yearStr)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid year %q", core.ErrValidation, yearStr))
			return
		}
		m, err := strconv.Atoi(q.Get("month"))
		if err != nil || m < 1 || m > 12 {
			writeError(w, r, fmt.Errorf("%w: invalid month %q", core.ErrValidation, q.Get("month")))
			return
		}
		month = time.Date(year, time.Month(m), 1, 0, 0, 0, 0, time.UTC)
	} else {
		var err error
		month, err = parseMonthParam(q.Get("month"))
		if err != nil {
			writeError(w, r, err)
			return
		}
	}

	res, err := s.ledger.MinimumBalanceForMonth(r.Context(), id, month.Year(), month.Month())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, minimumBalanceResponse{
		AccountID:        id,
		Month:            core.MonthKey(month),
		Existed:          res.Existed,
		StartBalance:     res.StartBalance,
		Minimum:          res.Minimum,
		FormattedMinimum: s.formatAmount(res.Minimum),
	})
}

type transactionRequest struct {
	Date            string  `json:"date"`
	Description     string  `json:"description"`
	Category        string  `json:"category,omitempty"`
	Note            string  `json:"note,omitempty"`
	Amount          string  `json:"amount"`
	DebitAccountID  *string `json:"debit_account_id,omitempty"`
	CreditAccountID *string `json:"credit_account_id,omitempty"`
	IdempotencyKey  string  `json:"idempotency_key,omitempty"`
}

type transactionResponse struct {
	ID              uuid.UUID   `json:"id"`
	Seq             int64       `json:"seq"`
	Date            string      `json:"date"`
	Description     string      `json:"description"`
	Category        string      `json:"category,omitempty"`
	Note            string      `json:"note,omitempty"`
	Amount          core.Amount `json:"amount"`
	FormattedAmount string      `json:"formatted_amount"`
	DebitAccountID  uuid.UUID   `json:"debit_account_id"`
	CreditAccountID uuid.UUID   `json:"credit_account_id"`
	Duplicate       bool        `json:"duplicate,omitempty"`
}

func (s *Server) transactionResponse(t core.Transaction, duplicate bool) transactionResponse {
	return transactionResponse{
		ID:              t.ID,
		Seq:             t.Seq,
		Date:            core.DayKey(t.Date),
		Description:     t.Description,
		Category:        t.Category,
		Note:            t.Note,
		Amount:          t.Amount,
		FormattedAmount: s.formatAmount(t.Amount),
		DebitAccountID:  t.DebitAccountID,
		CreditAccountID: t.CreditAccountID,
		Duplicate:       duplicate,
	}
}

func (s *Server) handlePostTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid date %q, want YYYY-MM-DD", core.ErrValidation, req.Date))
		return
	}
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	in := ledger.PostInput{
		Date:           date,
		Description:    req.Description,
		Category:       req.Category,
		Note:           req.Note,
		Amount:         amount,
		IdempotencyKey: req.IdempotencyKey,
	}
	if in.DebitAccountID, err = parseOptionalID(req.DebitAccountID); err != nil {
		writeError(w, r, err)
		return
	}
	if in.CreditAccountID, err = parseOptionalID(req.CreditAccountID); err != nil {
		writeError(w, r, err)
		return
	}

	tx, duplicate, err := s.ledger.Post(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !duplicate {
		s.invalidateSummaries()
	}

	status := http.StatusCreated
	if duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, s.transactionResponse(*tx, duplicate))
}

type amendRequest struct {
	Date        *string `json:"date,omitempty"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
	Note        *string `json:"note,omitempty"`
	Amount      *string `json:"amount,omitempty"`
}

func (s *Server) handleAmendTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid transaction id", core.ErrValidation))
		return
	}
	var req amendRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	in := ledger.AmendInput{
		Description: req.Description,
		Category:    req.Category,
		Note:        req.Note,
	}
	if req.Date != nil {
		date, err := time.Parse(dateLayout, *req.Date)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid date %q, want YYYY-MM-DD", core.ErrValidation, *req.Date))
			return
		}
		in.Date = &date
	}
	if req.Amount != nil {
		amount, err := core.ParseAmount(*req.Amount)
		if err != nil {
			writeError(w, r, err)
			return
		}
		in.Amount = &amount
	}

	tx, err := s.ledger.Amend(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateSummaries()
	writeJSON(w, http.StatusOK, s.transactionResponse(*tx, false))
}

func (s *Server) handleReverseTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid transaction id", core.ErrValidation))
		return
	}
	if err := s.ledger.Reverse(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateSummaries()
	w.WriteHeader(http.StatusNoContent)
}

type monthSummaryResponse struct {
	Month            string      `json:"month"`
	Income           core.Amount `json:"income"`
	Expense          core.Amount `json:"expense"`
	Net              core.Amount `json:"net"`
	FormattedIncome  string      `json:"formatted_income"`
	FormattedExpense string      `json:"formatted_expense"`
	TxCount          int64       `json:"tx_count"`
}

func (s *Server) handleMonthSummary(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonthParam(r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	key := "summary:month:" + core.MonthKey(month)
	if cached, ok := s.summaryCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	sum, err := s.ledger.Repo().Queries().GetMonthSummary(r.Context(), core.MonthKey(month))
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := monthSummaryResponse{
		Month:            sum.Month,
		Income:           sum.TotalIncome,
		Expense:          sum.TotalExpense,
		Net:              sum.Net,
		FormattedIncome:  s.formatAmount(sum.TotalIncome),
		FormattedExpense: s.formatAmount(sum.TotalExpense),
		TxCount:          sum.TxCount,
	}
	if resp.Month == "" {
		resp.Month = core.MonthKey(month)
	}
	s.summaryCache.Set(key, resp)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCategorySummaries(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonthParam(r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	key := "summary:categories:" + core.MonthKey(month)
	if cached, ok := s.summaryCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	sums, err := s.ledger.Repo().Queries().ListCategoryMonthSummaries(r.Context(), core.MonthKey(month))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.summaryCache.Set(key, sums)
	writeJSON(w, http.StatusOK, sums)
}

func (s *Server) handleDaySummaries(w http.ResponseWriter, r *http.Request) {
	from, err := parseDayParam(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := parseDayParam(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	sums, err := s.ledger.Repo().Queries().ListDaySummaries(r.Context(), core.DayKey(from), core.DayKey(to))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sums)
}

func (s *Server) handleAccountSummaries(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonthParam(r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	sums, err := s.ledger.Repo().Queries().ListAccountMonthSummaries(r.Context(), core.MonthKey(month))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sums)
}

func (s *Server) handleRunFees(w http.ResponseWriter, r *http.Request) {
	opts, err := s.runOptions(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.engine.RunAdminFees(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateSummaries()
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRunInterest(w http.ResponseWriter, r *http.Request) {
	opts, err := s.runOptions(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.engine.RunInterest(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateSummaries()
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRunInstallments(w http.ResponseWriter, r *http.Request) {
	opts, err := s.runOptions(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.engine.RunInstallments(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateSummaries()
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) runOptions(r *http.Request) (automation.RunOptions, error) {
	opts := automation.RunOptions{Now: time.Now().UTC(), Basis: s.basis}

	q := r.URL.Query()
	if v := q.Get("dry_run"); v != "" {
		dryRun, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("%w: invalid dry_run %q", core.ErrValidation, v)
		}
		opts.DryRun = dryRun
	}
	if v := q.Get("basis"); v != "" {
		switch automation.InterestBasis(v) {
		case automation.BasisCurrentBalance, automation.BasisMinimumBalance:
			opts.Basis = automation.InterestBasis(v)
		default:
			return opts, fmt.Errorf("%w: invalid basis %q", core.ErrValidation, v)
		}
	}
	return opts, nil
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	report, err := s.ledger.Verify(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	// A dirty report is still a successful verification; the body carries
	// the mismatches.
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Rebuild(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateSummaries()
	w.WriteHeader(http.StatusNoContent)
}

func parseOptionalID(s *string) (uuid.UUID, error) {
	if s == nil || *s == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid account id %q", core.ErrValidation, *s)
	}
	return id, nil
}

func parseMonthParam(v string) (time.Time, error) {
	if v == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse("2006-01", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid month %q, want YYYY-MM", core.ErrValidation, v)
	}
	return t, nil
}

func parseDayParam(v string) (time.Time, error) {
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q, want YYYY-MM-DD", core.ErrValidation, v)
	}
	return t, nil
}
