package reports

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"bitbucket.org/mmdatafocus/books_reconcile/models"
	"bitbucket.org/mmdatafocus/books_reconcile/reconcile"
)

// RenderBytes renders r in the given format.
func RenderBytes(r *reconcile.Report, format Format) ([]byte, error) {
	if r == nil {
		return nil, ErrNilReport
	}
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatText, "":
		err = writeText(&buf, r)
	case FormatCSV:
		err = writeCSV(&buf, ReportSheets(r))
	case FormatJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		err = enc.Encode(r)
	case FormatXLSX:
		err = writeExcel(&buf, ReportSheets(r))
	default:
		err = fmt.Errorf("unknown report format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeCSV puts every sheet in one file with a leading section column.
func writeCSV(w io.Writer, sheets []Sheet) error {
	cw := csv.NewWriter(w)
	for _, sh := range sheets {
		if err := cw.Write(append([]string{"section"}, sh.Headings...)); err != nil {
			return err
		}
		for _, row := range sh.Rows {
			rec := make([]string, 0, len(row)+1)
			rec = append(rec, strings.ToLower(sh.Name))
			for _, v := range row {
				rec = append(rec, cellString(v))
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeText(w io.Writer, r *reconcile.Report) error {
	for _, row := range SummarySheet(r).Rows {
		if _, err := fmt.Fprintf(w, "%s=%s\n", row[0], cellString(row[1])); err != nil {
			return err
		}
	}
	for _, sh := range ReportSheets(r)[1:] {
		if len(sh.Rows) == 0 {
			continue
		}
		if sh.Name == "Decisions" {
			sh = reviewOnly(sh)
			if len(sh.Rows) == 0 {
				continue
			}
		}
		fmt.Fprintf(w, "\n[%s]\n", strings.ToLower(sh.Name))
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(sh.Headings, "\t"))
		for _, row := range sh.Rows {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = cellString(v)
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// reviewOnly keeps the decisions a human has to look at; links are already in the summary.
func reviewOnly(sh Sheet) Sheet {
	out := Sheet{Name: "Review", Headings: sh.Headings}
	for _, row := range sh.Rows {
		if row[2] != string(models.DecisionActionLink) || row[4] == true {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// WriteApplyReport prints the outcome of ApplyChanges as key=value lines.
func WriteApplyReport(w io.Writer, a *models.ApplyReport) error {
	if a == nil {
		return nil
	}
	lines := []struct {
		key   string
		value interface{}
	}{
		{"run_id", a.RunID},
		{"mode", a.Mode},
		{"planned", a.Planned},
		{"applied", a.Applied},
		{"skipped", a.Skipped},
		{"statements_executed", a.StatementsExecuted},
		{"backup_name", a.BackupName},
		{"backup_rows", a.BackupRows},
		{"rolled_back", a.RolledBack},
		{"before_count", a.Before.Count},
		{"before_sum", a.Before.Sum.StringFixed(2)},
		{"before_matched", a.Before.Matched},
		{"after_count", a.After.Count},
		{"after_sum", a.After.Sum.StringFixed(2)},
		{"after_matched", a.After.Matched},
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%s=%v\n", l.key, l.value); err != nil {
			return err
		}
	}
	return nil
}
