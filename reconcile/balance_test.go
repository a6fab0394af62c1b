package reconcile

import (
	"testing"

	"bitbucket.org/mmdatafocus/books_reconcile/models"
	"github.com/shopspring/decimal"
)

func balanceFixture(t *testing.T) []models.FinancialRecord {
	rows := []struct {
		id, date, debit, credit, declared string
	}{
		{"1", "2012-01-02", "100.00", "0", "900.00"},
		{"2", "2012-01-03", "0", "250.50", "1150.50"},
		{"3", "2012-01-04", "75.25", "0", "1057.25"}, // corrupted: should be 1075.25
		{"4", "2012-01-05", "0.99", "0", "1074.26"},
		{"5", "2012-01-06", "0", "10.00", "1084.36"}, // corrupted: should be 1084.26
	}
	out := make([]models.FinancialRecord, 0, len(rows))
	for _, r := range rows {
		rec := bankDebit(t, r.id, r.date, r.debit, "")
		rec.Credit = dec(r.credit)
		rec.DeclaredBalance = decPtr(r.declared)
		out = append(out, rec)
	}
	return out
}

func TestValidateRunningBalanceWithAnchor(t *testing.T) {
	records := balanceFixture(t)
	anchor := dec("1000.00")
	got := ValidateRunningBalance(records, &anchor, DefaultBalanceTolerance)

	wantComputed := []string{"900.00", "1150.50", "1075.25", "1074.26", "1084.26"}
	wantMismatch := []bool{false, false, true, false, true}
	if len(got) != len(records) {
		t.Fatalf("want %d checkpoints, got %d", len(records), len(got))
	}
	for i, cp := range got {
		if !cp.ComputedBalance.Equal(dec(wantComputed[i])) {
			t.Fatalf("row %s computed %s, want %s", cp.RecordID, cp.ComputedBalance, wantComputed[i])
		}
		if cp.Mismatch != wantMismatch[i] {
			t.Fatalf("row %s mismatch=%v, want %v (delta %s)", cp.RecordID, cp.Mismatch, wantMismatch[i], cp.Delta)
		}
		if !cp.HasDeclared {
			t.Fatalf("row %s should have a declared balance", cp.RecordID)
		}
	}
	if !got[2].Delta.Equal(dec("-18.00")) {
		t.Fatalf("row 3 delta %s, want -18.00", got[2].Delta)
	}
	if !got[4].Delta.Equal(dec("0.10")) {
		t.Fatalf("row 5 delta %s, want 0.10", got[4].Delta)
	}
}

func TestValidateRunningBalanceWithoutAnchor(t *testing.T) {
	records := balanceFixture(t)
	got := ValidateRunningBalance(records, nil, DefaultBalanceTolerance)
	if !got[0].ComputedBalance.Equal(dec("900.00")) || got[0].Mismatch {
		t.Fatalf("first row should open at its declared balance, got %+v", got[0])
	}
	if !got[1].ComputedBalance.Equal(dec("1150.50")) {
		t.Fatalf("row 2 computed %s", got[1].ComputedBalance)
	}

	records[0].DeclaredBalance = nil
	got = ValidateRunningBalance(records, nil, DefaultBalanceTolerance)
	if !got[0].ComputedBalance.Equal(dec("-100.00")) {
		t.Fatalf("missing opening balance should start at zero, got %s", got[0].ComputedBalance)
	}
	if got[0].HasDeclared || got[0].Mismatch {
		t.Fatalf("row without declared balance can never mismatch: %+v", got[0])
	}
}

func TestValidateRunningBalanceToleranceBoundary(t *testing.T) {
	anchor := dec("0")
	rec := bankCredit(t, "1", "2012-01-01", "10.00", "")
	rec.DeclaredBalance = decPtr("10.01")
	got := ValidateRunningBalance([]models.FinancialRecord{rec}, &anchor, DefaultBalanceTolerance)
	if !got[0].Mismatch {
		t.Fatalf("delta equal to tolerance is a mismatch")
	}
	rec.DeclaredBalance = decPtr("10.009")
	got = ValidateRunningBalance([]models.FinancialRecord{rec}, &anchor, DefaultBalanceTolerance)
	if got[0].Mismatch {
		t.Fatalf("sub-tolerance delta should pass")
	}
}

func TestValidateRunningBalanceSignedAmounts(t *testing.T) {
	anchor := dec("50")
	records := []models.FinancialRecord{
		receipt(t, "a", "2012-01-01", "-20", ""),
		receipt(t, "b", "2012-01-02", "5", ""),
	}
	got := ValidateRunningBalance(records, &anchor, DefaultBalanceTolerance)
	if !got[1].ComputedBalance.Equal(dec("35")) {
		t.Fatalf("want 35, got %s", got[1].ComputedBalance)
	}
}

func TestValidateRunningBalanceEmpty(t *testing.T) {
	if got := ValidateRunningBalance(nil, nil, DefaultBalanceTolerance); len(got) != 0 {
		t.Fatalf("want no checkpoints")
	}
}

func TestSortForBalanceIsStable(t *testing.T) {
	records := []models.FinancialRecord{
		receipt(t, "c", "2012-01-02", "1", ""),
		receipt(t, "a", "2012-01-01", "1", ""),
		receipt(t, "z", "2012-01-02", "1", ""),
		receipt(t, "b", "2012-01-01", "1", ""),
	}
	got := SortForBalance(records)
	want := []string{"a", "b", "c", "z"}
	for i, r := range got {
		if r.ID != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, r.ID, want[i])
		}
	}
	if records[0].ID != "c" {
		t.Fatalf("input slice was modified")
	}
}

func TestValidateByAccount(t *testing.T) {
	a1 := receipt(t, "1", "2012-01-01", "-10", "")
	a1.AccountRef = "A"
	a1.DeclaredBalance = decPtr("90")
	b1 := receipt(t, "2", "2012-01-01", "5", "")
	b1.AccountRef = "B"
	b1.DeclaredBalance = decPtr("5")
	a2 := receipt(t, "3", "2012-01-02", "-10", "")
	a2.AccountRef = "A"
	a2.DeclaredBalance = decPtr("80")

	got := ValidateByAccount([]models.FinancialRecord{a1, b1, a2}, map[string]decimal.Decimal{"A": dec("100")}, DefaultBalanceTolerance)
	if len(got) != 3 {
		t.Fatalf("want 3 checkpoints, got %d", len(got))
	}
	if got[0].RecordID != "1" || got[1].RecordID != "3" || got[2].RecordID != "2" {
		t.Fatalf("accounts should be grouped in first-appearance order: %+v", got)
	}
	for _, cp := range got {
		if cp.Mismatch {
			t.Fatalf("unexpected mismatch %+v", cp)
		}
	}
	if n := len(Mismatches(got)); n != 0 {
		t.Fatalf("want 0 mismatches, got %d", n)
	}
}
