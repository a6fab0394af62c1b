package main

import (
	"fmt"

	"bitbucket.org/mmdatafocus/books_reconcile/models"
	"bitbucket.org/mmdatafocus/books_reconcile/reconcile"
	"github.com/spf13/cobra"
)

const keepLowestID = "lowest-id"

func newDuplicatesCmd(opts *options) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "Report duplicate groups of --source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, report, err := duplicateReport(cmd, opts, "duplicates", source)
			if err != nil {
				return err
			}
			defer rt.close()
			ctx := cmd.Context()
			if err := rt.emit(ctx, report); err != nil {
				return err
			}
			return rt.saveFindings(ctx, report)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "source to scan")
	return cmd
}

func newCleanupDuplicatesCmd(opts *options) *cobra.Command {
	var source, keep string
	cmd := &cobra.Command{
		Use:   "cleanup-duplicates",
		Short: "Delete every duplicate of --source except the kept row of each group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if keep != keepLowestID {
				return fmt.Errorf("unsupported --keep %q (only %s)", keep, keepLowestID)
			}
			mode, err := opts.parseMode()
			if err != nil {
				return err
			}
			if err := opts.requireConfirm(mode, "DELETE"); err != nil {
				return err
			}
			rt, report, err := duplicateReport(cmd, opts, "cleanup-duplicates", source)
			if err != nil {
				return err
			}
			defer rt.close()
			ctx := cmd.Context()
			if err := rt.emit(ctx, report); err != nil {
				return err
			}
			deletes := reconcile.KeepLowestID(report.DuplicateRecords(source))
			_, err = rt.apply(ctx, []string{source}, models.ChangesFromDeletes(deletes))
			return err
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "source to clean")
	cmd.Flags().StringVar(&keep, "keep", keepLowestID, "which row of a group survives")
	return cmd
}

// duplicateReport loads --source and groups its duplicates. The caller closes the runtime.
func duplicateReport(cmd *cobra.Command, opts *options, command, source string) (*runtime, *reconcile.Report, error) {
	if source == "" {
		return nil, nil, fmt.Errorf("--source is required")
	}
	rt, ctx, err := newRuntime(cmd.Context(), opts, command)
	if err != nil {
		return nil, nil, err
	}
	cmd.SetContext(ctx)

	report, err := func() (*reconcile.Report, error) {
		src, err := rt.source(source)
		if err != nil {
			return nil, err
		}
		filter, err := rt.filter()
		if err != nil {
			return nil, err
		}
		records, skipped, err := rt.load(ctx, source, filter)
		if err != nil {
			return nil, err
		}
		engine, err := rt.engine(src)
		if err != nil {
			return nil, err
		}
		report := engine.FindDuplicates(source, records)
		report.Skipped = append(skipped, report.Skipped...)
		report.Summary.Skipped = len(report.Skipped)
		return report, nil
	}()
	if err != nil {
		rt.close()
		return nil, nil, err
	}
	return rt, report, nil
}
