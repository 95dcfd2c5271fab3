package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AccountKind classifies an account. Asset and liability kinds are
// user-visible; EXPENSE and INCOME are internal category accounts that exist
// only to keep every posting double-entry balanced.
type AccountKind string

const (
	KindBank       AccountKind = "BANK"
	KindEWallet    AccountKind = "E_WALLET"
	KindCash       AccountKind = "CASH"
	KindCreditCard AccountKind = "CREDIT_CARD"
	KindExpense    AccountKind = "EXPENSE"
	KindIncome     AccountKind = "INCOME"
)

// IsAsset reports whether the kind is an asset-class account.
func (k AccountKind) IsAsset() bool {
	return k == KindBank || k == KindEWallet || k == KindCash
}

// IsCategory reports whether the kind is an internal category account.
func (k AccountKind) IsCategory() bool {
	return k == KindExpense || k == KindIncome
}

// Valid reports whether the kind is one of the known values.
func (k AccountKind) Valid() bool {
	switch k {
	case KindBank, KindEWallet, KindCash, KindCreditCard, KindExpense, KindIncome:
		return true
	}
	return false
}

// BillingPattern selects how a recurring due date is resolved within a month.
type BillingPattern string

const (
	BillingFixedDay        BillingPattern = "FIXED_DAY"
	BillingThirdFriday     BillingPattern = "THIRD_FRIDAY"
	BillingLastBusinessDay BillingPattern = "LAST_BUSINESS_DAY"
)

// Valid reports whether the pattern is one of the known values.
func (p BillingPattern) Valid() bool {
	switch p {
	case BillingFixedDay, BillingThirdFriday, BillingLastBusinessDay:
		return true
	}
	return false
}

// InterestTier maps a balance range to an annual interest rate. A nil
// MaxBalance means the tier is open-ended.
type InterestTier struct {
	MinBalance    Amount  `json:"min_balance"`
	MaxBalance    *Amount `json:"max_balance"`
	AnnualRatePct float64 `json:"annual_rate_pct"`
}

// ValidateTiers checks a tier table for structural problems: negative rates
// and inverted ranges.
func ValidateTiers(tiers []InterestTier) error {
	for i, t := range tiers {
		if t.AnnualRatePct < 0 {
			return fmt.Errorf("%w: tier %d has negative rate %v", ErrValidation, i, t.AnnualRatePct)
		}
		if t.MaxBalance != nil && *t.MaxBalance < t.MinBalance {
			return fmt.Errorf("%w: tier %d has max below min", ErrValidation, i)
		}
	}
	return nil
}

// AutomationSettings configures recurring monthly automations for one
// account. Last-processed months are YYYY-MM stamps used as the
// run-at-most-once-per-month guard.
type AutomationSettings struct {
	AdminFeeActive    bool
	AdminFeeNominal   Amount
	BillingPattern    BillingPattern
	BillingDay        int
	InterestActive    bool
	InterestTiers     []InterestTier
	LastChargedMonth  string
	LastCreditedMonth string
}

// Validate checks automation settings before they are stored or acted upon.
func (s AutomationSettings) Validate() error {
	if s.AdminFeeActive {
		if !s.BillingPattern.Valid() {
			return fmt.Errorf("%w: unknown billing pattern %q", ErrValidation, s.BillingPattern)
		}
		if s.BillingPattern == BillingFixedDay && (s.BillingDay < 1 || s.BillingDay > 31) {
			return fmt.Errorf("%w: billing day %d out of range", ErrValidation, s.BillingDay)
		}
		if s.AdminFeeNominal < 0 {
			return fmt.Errorf("%w: negative admin fee", ErrValidation)
		}
	}
	if s.InterestActive {
		if err := ValidateTiers(s.InterestTiers); err != nil {
			return err
		}
	}
	return nil
}

// Account is a ledger account. CurrentBalance is cached and maintained
// incrementally; the invariant current == opening + Σdebits − Σcredits over
// all transactions referencing the account holds at all times.
type Account struct {
	ID             uuid.UUID
	Name           string
	Kind           AccountKind
	OpeningBalance Amount
	CurrentBalance Amount
	CreditLimit    *Amount
	Automation     *AutomationSettings
	CreatedAt      time.Time
}

// Validate checks the account for storage.
func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: empty account name", ErrValidation)
	}
	if !a.Kind.Valid() {
		return fmt.Errorf("%w: unknown account kind %q", ErrValidation, a.Kind)
	}
	if a.Automation != nil {
		return a.Automation.Validate()
	}
	return nil
}

// CategoryAccountName is the deterministic display name of the internal
// category account for a label, e.g. "[EXPENSE] Groceries". Category
// accounts are deduplicated by this name within their kind.
func CategoryAccountName(kind AccountKind, category string) string {
	return "[" + string(kind) + "] " + strings.TrimSpace(category)
}

// Transaction is one balanced debit/credit posting. Seq is the monotonic
// insertion order and the stable tie-break for same-instant sequencing.
// Category is a plain string, deliberately not a foreign key, so renaming a
// category never rewrites history.
type Transaction struct {
	ID                uuid.UUID
	Seq               int64
	Date              time.Time
	Description       string
	Category          string
	Note              string
	Amount            Amount
	DebitAccountID    uuid.UUID
	CreditAccountID   uuid.UUID
	IdempotencyKey    string
	InstallmentPlanID *uuid.UUID
	CreatedAt         time.Time
}

// Validate checks a transaction before posting.
func (t Transaction) Validate() error {
	if err := t.Amount.Validate(); err != nil {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if t.Date.IsZero() {
		return fmt.Errorf("%w: zero transaction date", ErrValidation)
	}
	if t.DebitAccountID == uuid.Nil || t.CreditAccountID == uuid.Nil {
		return fmt.Errorf("%w: missing account reference", ErrValidation)
	}
	if t.DebitAccountID == t.CreditAccountID {
		return fmt.Errorf("%w: debit and credit account must differ", ErrValidation)
	}
	if len(t.Description) > 200 {
		return fmt.Errorf("%w: description too long (max 200 characters)", ErrValidation)
	}
	return nil
}

// InstallmentStatus is the lifecycle state of an installment plan.
type InstallmentStatus string

const (
	InstallmentActive InstallmentStatus = "ACTIVE"
	InstallmentPaid   InstallmentStatus = "PAID"
)

// InstallmentPlan is a fixed-tenor payment plan against a liability account.
// Each monthly payment is itself a Transaction (debit an internal expense
// account, credit the liability account); it recognizes the month's expense,
// it does not move cash.
type InstallmentPlan struct {
	ID              uuid.UUID
	Description     string
	Principal       Amount
	TenorMonths     int
	MonthlyAmount   Amount
	AdminFee        Amount
	CurrentIndex    int
	Status          InstallmentStatus
	DebitAccountID  uuid.UUID
	CreditAccountID uuid.UUID
	CreatedAt       time.Time
}

// Validate checks an installment plan for storage.
func (p InstallmentPlan) Validate() error {
	if p.TenorMonths < 1 {
		return fmt.Errorf("%w: tenor must be at least one month", ErrValidation)
	}
	if err := p.MonthlyAmount.Validate(); err != nil {
		return fmt.Errorf("%w: monthly amount must be positive", ErrValidation)
	}
	if p.CreditAccountID == uuid.Nil {
		return fmt.Errorf("%w: missing liability account", ErrValidation)
	}
	return nil
}

var (
	// ErrValidation rejects malformed input before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an unknown account or transaction id.
	ErrNotFound = errors.New("not found")
	// ErrDrift reports that cached state disagrees with the transaction log.
	ErrDrift = errors.New("ledger drift detected")
	// ErrInvalidAmount rejects unparseable or unusable amounts.
	ErrInvalidAmount = fmt.Errorf("%w: invalid amount", ErrValidation)
)
