package reports

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/books_reconcile/reconcile"
)

type Format string

const (
	FormatText Format = "text"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

func ParseFormat(str string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(str))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatCSV, FormatJSON, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("unknown report format %q (text, csv, json, xlsx)", str)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatJSON:
		return "application/json"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/plain; charset=utf-8"
	}
}

func (f Format) Extension() string {
	if f == FormatText || f == "" {
		return "txt"
	}
	return string(f)
}

// Sheet is one table of a report; the same sheets feed CSV, XLSX and the text tables.
type Sheet struct {
	Name     string
	Headings []string
	Rows     [][]interface{}
}

var ErrNilReport = errors.New("nil report")

// ReportSheets flattens a run report into tables. Empty sections are kept so every
// export has the same shape.
func ReportSheets(r *reconcile.Report) []Sheet {
	decisions := Sheet{
		Name:     "Decisions",
		Headings: []string{"LeftID", "RightID", "Action", "Confidence", "Ambiguous", "Reason"},
	}
	for _, d := range r.Decisions {
		decisions.Rows = append(decisions.Rows, []interface{}{
			d.LeftID, d.RightID, string(d.Action), formatScore(d.Confidence), d.Ambiguous, d.Reason,
		})
	}

	duplicates := Sheet{
		Name:     "Duplicates",
		Headings: []string{"Source", "Key", "RecordID", "Date", "Amount", "Description"},
	}
	for _, g := range r.Duplicates {
		for _, rec := range g.Records {
			duplicates.Rows = append(duplicates.Rows, []interface{}{
				g.Source, g.Key, rec.ID, rec.Date.Format("2006-01-02"), rec.SignedAmount().StringFixed(2), rec.Description,
			})
		}
	}

	balance := Sheet{
		Name:     "Balance",
		Headings: []string{"RecordID", "AccountRef", "Declared", "Computed", "Delta", "Mismatch"},
	}
	for _, cp := range r.Checkpoints {
		declared := ""
		if cp.HasDeclared {
			declared = cp.DeclaredBalance.StringFixed(2)
		}
		balance.Rows = append(balance.Rows, []interface{}{
			cp.RecordID, cp.AccountRef, declared, cp.ComputedBalance.StringFixed(2), cp.Delta.StringFixed(2), cp.Mismatch,
		})
	}

	skipped := Sheet{
		Name:     "Skipped",
		Headings: []string{"Source", "RecordID", "Reason"},
	}
	for _, s := range r.Skipped {
		skipped.Rows = append(skipped.Rows, []interface{}{s.Source, s.RecordID, s.Reason})
	}

	return []Sheet{SummarySheet(r), decisions, duplicates, balance, skipped}
}

func SummarySheet(r *reconcile.Report) Sheet {
	s := r.Summary
	return Sheet{
		Name:     "Summary",
		Headings: []string{"Key", "Value"},
		Rows: [][]interface{}{
			{"run_id", r.RunID},
			{"generated_at", r.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z")},
			{"left_source", r.LeftSource},
			{"right_source", r.RightSource},
			{"left_count", s.LeftCount},
			{"right_count", s.RightCount},
			{"linked", s.Linked},
			{"no_match", s.NoMatch},
			{"orphans", s.Orphans},
			{"flagged_duplicates", s.FlaggedDuplicates},
			{"ambiguous", s.Ambiguous},
			{"duplicate_groups", s.DuplicateGroups},
			{"balance_mismatches", s.BalanceMismatches},
			{"skipped", s.Skipped},
			{"already_reconciled", s.AlreadyReconciled},
			{"linked_amount", s.LinkedAmount.StringFixed(2)},
			{"unresolved_amount", s.UnresolvedAmount.StringFixed(2)},
		},
	}
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func cellString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(t)
	}
}
