package reconcile

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/books_reconcile/models"
	"github.com/shopspring/decimal"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// receipt is a signed-amount row as stored in receipts.
func receipt(t *testing.T, id, date, amount, desc string) models.FinancialRecord {
	return models.FinancialRecord{
		ID:          id,
		Source:      "receipts",
		Date:        mustDate(t, date),
		Amount:      dec(amount),
		Description: desc,
	}
}

// bankDebit is a split-column banking row with only the debit side set.
func bankDebit(t *testing.T, id, date, debit, desc string) models.FinancialRecord {
	return models.FinancialRecord{
		ID:           id,
		Source:       "banking_transactions",
		Date:         mustDate(t, date),
		Debit:        dec(debit),
		Credit:       decimal.Zero,
		SplitAmounts: true,
		Description:  desc,
	}
}

func bankCredit(t *testing.T, id, date, credit, desc string) models.FinancialRecord {
	r := bankDebit(t, id, date, "0", desc)
	r.Credit = dec(credit)
	return r
}

func linkedRights(decisions []models.ReconciliationDecision) map[string]string {
	out := map[string]string{}
	for _, d := range decisions {
		if d.Action == models.DecisionActionLink {
			out[d.LeftID] = d.RightID
		}
	}
	return out
}
