package utils

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
)

func TestProcessValidationErrors(t *testing.T) {
	type settings struct {
		Polarity string `validate:"oneof=expense deposit signed"`
	}
	err := validator.New().Struct(settings{Polarity: "sideways"})
	fields := ProcessValidationErrors(fmt.Errorf("invalid: %w", err))
	if fields["settings.Polarity"] != "oneof" {
		t.Fatalf("fields = %v", fields)
	}
	if got := ProcessValidationErrors(fmt.Errorf("plain")); len(got) != 0 {
		t.Fatalf("plain error should give no fields, got %v", got)
	}
}

func TestUniqueSliceKeepsFirstOccurrence(t *testing.T) {
	got := UniqueSlice([]string{"7", "3", "7", "1", "3"})
	if fmt.Sprint(got) != "[7 3 1]" {
		t.Fatalf("got %v", got)
	}
}

func TestSortedKeys(t *testing.T) {
	got := SortedKeys(map[string]int{"receipts": 1, "banking_transactions": 2, "payments": 3})
	if fmt.Sprint(got) != "[banking_transactions payments receipts]" {
		t.Fatalf("got %v", got)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate(" 2019-03-04 ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !d.Equal(time.Date(2019, 3, 4, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("got %s", d)
	}
	for _, bad := range []string{"", "2019-13-01", "04/03/2019"} {
		if _, err := ParseDate(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestParseDecimal(t *testing.T) {
	d, err := ParseDecimal(" -45.10 ")
	if err != nil || d.StringFixed(2) != "-45.10" {
		t.Fatalf("got %s, %v", d, err)
	}
	if _, err := ParseDecimal(""); err == nil {
		t.Fatalf("expected error for empty string")
	}
}

func TestRunContext(t *testing.T) {
	ctx := NewRunContext(context.Background(), "match")
	runID, ok := GetRunIdFromContext(ctx)
	if !ok || runID == "" {
		t.Fatalf("run id missing")
	}
	if cmd, _ := GetCommandFromContext(ctx); cmd != "match" {
		t.Fatalf("command = %q", cmd)
	}
	corr, _ := GetCorrelationIdFromContext(ctx)

	again := NewRunContext(ctx, "balance")
	if id, _ := GetRunIdFromContext(again); id == runID {
		t.Fatalf("every run gets its own id")
	}
	if id, _ := GetCorrelationIdFromContext(again); id != corr {
		t.Fatalf("correlation id should carry over: %q != %q", id, corr)
	}
}

func TestWithoutRedis(t *testing.T) {
	ctx := context.Background()
	release, err := ObtainRunLock(ctx, "receipts", time.Minute, "helper_test.go", "TestWithoutRedis")
	if err != nil {
		t.Fatalf("lock without redis: %v", err)
	}
	release()
	if err := StoreLastRun(ctx, "match", "receipts", map[string]int{"linked": 1}); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, err := RetrieveLastRun[map[string]int](ctx, "match", "receipts")
	if err != nil || got != nil {
		t.Fatalf("expected nothing cached, got %v, %v", got, err)
	}
}
