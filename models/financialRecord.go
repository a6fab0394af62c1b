package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RecordRef identifies a row in one of the source tables.
type RecordRef struct {
	Source string `json:"source"`
	ID     string `json:"id"`
}

func (r RecordRef) String() string {
	if r.Source == "" {
		return r.ID
	}
	return fmt.Sprintf("%s:%s", r.Source, r.ID)
}

// FinancialRecord is a generic row from receipts, payments, banking_transactions or charter_charges.
// Rows read from split debit/credit columns set SplitAmounts and leave Amount zero.
type FinancialRecord struct {
	ID              string           `json:"id" validate:"required"`
	Source          string           `json:"source"`
	Date            time.Time        `json:"date" validate:"required"`
	Amount          decimal.Decimal  `json:"amount"`
	Debit           decimal.Decimal  `json:"debit"`
	Credit          decimal.Decimal  `json:"credit"`
	SplitAmounts    bool             `json:"split_amounts"`
	Description     string           `json:"description"`
	AccountRef      string           `json:"account_ref"`
	Status          RecordStatus     `json:"status"`
	DeclaredBalance *decimal.Decimal `json:"declared_balance,omitempty"`
	LinkedID        string           `json:"linked_id,omitempty"`
}

func (r FinancialRecord) Ref() RecordRef {
	return RecordRef{Source: r.Source, ID: r.ID}
}

// SignedAmount is credit positive, debit negative.
func (r FinancialRecord) SignedAmount() decimal.Decimal {
	if r.SplitAmounts {
		return r.Credit.Sub(r.Debit)
	}
	return r.Amount
}

// DebitCredit returns the row as a (debit, credit) pair, both non-negative for signed rows.
func (r FinancialRecord) DebitCredit() (debit, credit decimal.Decimal) {
	if r.SplitAmounts {
		return r.Debit, r.Credit
	}
	if r.Amount.IsNegative() {
		return r.Amount.Neg(), decimal.Zero
	}
	return decimal.Zero, r.Amount
}

func (r FinancialRecord) Magnitude() decimal.Decimal {
	return r.SignedAmount().Abs()
}

func (r FinancialRecord) IsDebit() bool {
	return r.SignedAmount().IsNegative()
}

// DateOnly truncates to the calendar day in the record's own location.
func (r FinancialRecord) DateOnly() time.Time {
	y, m, d := r.Date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween is the absolute calendar-day distance between two dates.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	days := int(da.Sub(db).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}

type MatchCandidate struct {
	LeftID           string          `json:"left_id"`
	RightID          string          `json:"right_id"`
	AmountDelta      decimal.Decimal `json:"amount_delta"`
	DateDelta        int             `json:"date_delta"`
	DescriptionScore float64         `json:"description_score"`
	CombinedScore    float64         `json:"combined_score"`
}

// ReconciliationDecision is the engine's final output per left record. RightID is empty unless Action is link.
type ReconciliationDecision struct {
	LeftID     string         `json:"left_id"`
	RightID    string         `json:"right_id,omitempty"`
	Action     DecisionAction `json:"action"`
	Confidence float64        `json:"confidence"`
	Ambiguous  bool           `json:"ambiguous"`
	Reason     string         `json:"reason,omitempty"`
}

type RunningBalanceCheckpoint struct {
	RecordID        string          `json:"record_id"`
	AccountRef      string          `json:"account_ref,omitempty"`
	DeclaredBalance decimal.Decimal `json:"declared_balance"`
	ComputedBalance decimal.Decimal `json:"computed_balance"`
	Delta           decimal.Decimal `json:"delta"`
	HasDeclared     bool            `json:"has_declared"`
	Mismatch        bool            `json:"mismatch"`
}

type SkippedRecord struct {
	RecordID string `json:"record_id"`
	Source   string `json:"source"`
	Reason   string `json:"reason"`
}

type DeleteInstruction struct {
	Ref    RecordRef `json:"ref"`
	Reason string    `json:"reason"`
}
