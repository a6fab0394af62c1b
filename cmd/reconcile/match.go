package main

import (
	"fmt"

	"bitbucket.org/mmdatafocus/books_reconcile/models"
	"bitbucket.org/mmdatafocus/books_reconcile/reconcile"
	"bitbucket.org/mmdatafocus/books_reconcile/workflow"
	"github.com/spf13/cobra"
)

func newMatchCmd(opts *options) *cobra.Command {
	var left, right string
	var saveFindings bool
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Link records of --left to unmatched records of --right",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if left == "" || right == "" {
				return fmt.Errorf("--left and --right are required")
			}
			if left == right {
				return fmt.Errorf("--left and --right must be different sources")
			}
			rt, ctx, err := newRuntime(cmd.Context(), opts, "match")
			if err != nil {
				return err
			}
			defer rt.close()

			leftSrc, err := rt.source(left)
			if err != nil {
				return err
			}
			if _, err := rt.source(right); err != nil {
				return err
			}

			leftFilter, err := rt.filter(leftStatuses(opts.settings.CheckBalance)...)
			if err != nil {
				return err
			}
			rightFilter := widenRange(leftFilter, opts.settings.WindowFor(leftSrc))
			rightFilter.AccountRef = ""
			rightFilter.Statuses = []models.RecordStatus{models.RecordStatusUnmatched}

			leftRecords, leftSkipped, err := rt.load(ctx, left, leftFilter)
			if err != nil {
				return err
			}
			rightRecords, rightSkipped, err := rt.load(ctx, right, rightFilter)
			if err != nil {
				return err
			}

			engine, err := rt.engine(leftSrc)
			if err != nil {
				return err
			}
			report := engine.Run(reconcile.RunInput{
				LeftSource:  left,
				RightSource: right,
				Left:        leftRecords,
				Right:       rightRecords,
			})
			report.Skipped = append(append(leftSkipped, rightSkipped...), report.Skipped...)
			report.Summary.Skipped = len(report.Skipped)

			if err := rt.emit(ctx, report); err != nil {
				return err
			}
			if saveFindings {
				if err := rt.saveFindings(ctx, report); err != nil {
					return err
				}
			}
			_, err = rt.apply(ctx, []string{left, right}, report.Changes())
			return err
		},
	}
	cmd.Flags().StringVar(&left, "left", "", "source whose records are matched (e.g. banking_transactions)")
	cmd.Flags().StringVar(&right, "right", "", "source searched for candidates (e.g. receipts)")
	cmd.Flags().BoolVar(&saveFindings, "save-findings", true, "store review items in reconciliation_reports (write mode only)")
	return cmd
}

// leftStatuses limits the left load to unmatched rows unless the running balance needs every row.
// The engine leaves matched and excluded rows out of matching either way.
func leftStatuses(checkBalance bool) []models.RecordStatus {
	if checkBalance {
		return nil
	}
	return []models.RecordStatus{models.RecordStatusUnmatched}
}

// widenRange pads the date range by the match window so right records just outside it stay candidates.
func widenRange(f workflow.RecordFilter, days int) workflow.RecordFilter {
	if f.From != nil {
		from := f.From.AddDate(0, 0, -days)
		f.From = &from
	}
	if f.To != nil {
		to := f.To.AddDate(0, 0, days)
		f.To = &to
	}
	return f
}
