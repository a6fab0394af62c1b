package workflow

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/books_reconcile/models"
	mysqlDriver "github.com/go-sql-driver/mysql"
)

func sourceByName(t *testing.T, name string) models.RecordSource {
	t.Helper()
	reg, err := models.NewSourceRegistry(models.DefaultRecordSources())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	src, err := reg.Get(name)
	if err != nil {
		t.Fatalf("source %s: %v", name, err)
	}
	return src
}

func TestRecordFromRowSplitColumns(t *testing.T) {
	src := sourceByName(t, "banking_transactions")
	row := map[string]any{
		"transaction_id":        int64(42),
		"transaction_date":      time.Date(2019, 3, 4, 0, 0, 0, 0, time.UTC),
		"debit_amount":          []byte("45.00"),
		"credit_amount":         nil,
		"description":           []byte("CENTEX PETROLEUM"),
		"account_number":        "0228362",
		"reconciliation_status": nil,
		"receipt_id":            nil,
		"balance":               []byte("955.00"),
	}
	rec, err := recordFromRow(src, row)
	if err != nil {
		t.Fatalf("recordFromRow: %v", err)
	}
	if rec.ID != "42" || rec.Source != "banking_transactions" {
		t.Fatalf("identity: %+v", rec)
	}
	if !rec.SplitAmounts || rec.SignedAmount().StringFixed(2) != "-45.00" {
		t.Fatalf("signed amount = %s", rec.SignedAmount())
	}
	if rec.Status != models.RecordStatusUnmatched {
		t.Fatalf("NULL status should read as unmatched, got %q", rec.Status)
	}
	if rec.DeclaredBalance == nil || rec.DeclaredBalance.StringFixed(2) != "955.00" {
		t.Fatalf("declared balance: %v", rec.DeclaredBalance)
	}
	if rec.Description != "CENTEX PETROLEUM" || rec.LinkedID != "" {
		t.Fatalf("text columns: %+v", rec)
	}
}

func TestRecordFromRowRejectsBadValues(t *testing.T) {
	src := sourceByName(t, "receipts")
	cases := []map[string]any{
		{"receipt_id": "1", "receipt_date": "2019-03-04", "gross_amount": nil},
		{"receipt_id": "1", "receipt_date": "not a date", "gross_amount": "1.00"},
		{"receipt_id": "1", "receipt_date": "2019-03-04", "gross_amount": "1,00"},
		{"receipt_id": "1", "receipt_date": "2019-03-04", "gross_amount": "1.00", "reconciliation_status": "maybe"},
	}
	for i, row := range cases {
		if _, err := recordFromRow(src, row); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestValueTimeZeroDate(t *testing.T) {
	got, err := valueTime("0000-00-00 00:00:00")
	if err != nil || !got.IsZero() {
		t.Fatalf("zero date should read as missing: %v %v", got, err)
	}
}

func TestNormalizeRow(t *testing.T) {
	row := normalizeRow(map[string]any{
		"amount": []byte("10.50"),
		"date":   time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC),
		"n":      int64(3),
	})
	if row["amount"] != "10.50" || row["date"] != "2020-01-02 03:04:05" || row["n"] != int64(3) {
		t.Fatalf("unexpected row: %+v", row)
	}
}

func TestMapMySQLError(t *testing.T) {
	dup := fmt.Errorf("insert: %w", &mysqlDriver.MySQLError{Number: 1062, Message: "Duplicate entry"})
	if err := mapMySQLError(dup); !errors.Is(err, models.ErrConstraintViolation) {
		t.Fatalf("1062 should map to ErrConstraintViolation, got %v", err)
	}
	other := &mysqlDriver.MySQLError{Number: 1205, Message: "Lock wait timeout"}
	if err := mapMySQLError(other); errors.Is(err, models.ErrConstraintViolation) {
		t.Fatalf("1205 must not map to a constraint violation")
	}
	if mapMySQLError(nil) != nil {
		t.Fatalf("nil stays nil")
	}
}
