package reconcile

import (
	"sort"

	"bitbucket.org/mmdatafocus/books_reconcile/models"
	"github.com/shopspring/decimal"
)

var DefaultBalanceTolerance = decimal.NewFromFloat(0.01)

// ValidateRunningBalance recomputes the running balance over ordered records and compares it
// with each declared balance. With no anchor the first declared balance (or zero) opens the
// sequence. Nothing is corrected.
func ValidateRunningBalance(ordered []models.FinancialRecord, anchor *decimal.Decimal, tolerance decimal.Decimal) []models.RunningBalanceCheckpoint {
	if len(ordered) == 0 {
		return nil
	}
	tolerance = tolerance.Abs()
	out := make([]models.RunningBalanceCheckpoint, 0, len(ordered))

	var running decimal.Decimal
	for i, r := range ordered {
		debit, credit := r.DebitCredit()
		switch {
		case i > 0:
			running = running.Sub(debit).Add(credit)
		case anchor != nil:
			running = anchor.Sub(debit).Add(credit)
		case r.DeclaredBalance != nil:
			running = *r.DeclaredBalance
		default:
			running = decimal.Zero.Sub(debit).Add(credit)
		}

		cp := models.RunningBalanceCheckpoint{
			RecordID:        r.ID,
			AccountRef:      r.AccountRef,
			ComputedBalance: running,
		}
		if r.DeclaredBalance != nil {
			cp.HasDeclared = true
			cp.DeclaredBalance = *r.DeclaredBalance
			cp.Delta = r.DeclaredBalance.Sub(running)
			if tolerance.IsZero() {
				cp.Mismatch = !cp.Delta.IsZero()
			} else {
				cp.Mismatch = cp.Delta.Abs().GreaterThanOrEqual(tolerance)
			}
		}
		out = append(out, cp)
	}
	return out
}

// SortForBalance orders by calendar date keeping the input order within a day.
func SortForBalance(records []models.FinancialRecord) []models.FinancialRecord {
	out := make([]models.FinancialRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DateOnly().Before(out[j].DateOnly())
	})
	return out
}

// ValidateByAccount runs the scan once per AccountRef, accounts in first-appearance order.
func ValidateByAccount(records []models.FinancialRecord, anchors map[string]decimal.Decimal, tolerance decimal.Decimal) []models.RunningBalanceCheckpoint {
	var accounts []string
	byAccount := map[string][]models.FinancialRecord{}
	for _, r := range records {
		if _, ok := byAccount[r.AccountRef]; !ok {
			accounts = append(accounts, r.AccountRef)
		}
		byAccount[r.AccountRef] = append(byAccount[r.AccountRef], r)
	}
	var out []models.RunningBalanceCheckpoint
	for _, acct := range accounts {
		var anchor *decimal.Decimal
		if a, ok := anchors[acct]; ok {
			anchor = &a
		}
		out = append(out, ValidateRunningBalance(byAccount[acct], anchor, tolerance)...)
	}
	return out
}

// Mismatches filters the flagged checkpoints.
func Mismatches(checkpoints []models.RunningBalanceCheckpoint) []models.RunningBalanceCheckpoint {
	var out []models.RunningBalanceCheckpoint
	for _, cp := range checkpoints {
		if cp.Mismatch {
			out = append(out, cp)
		}
	}
	return out
}
