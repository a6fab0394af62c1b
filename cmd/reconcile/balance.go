package main

import (
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/books_reconcile/models"
	"bitbucket.org/mmdatafocus/books_reconcile/utils"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newBalanceCmd(opts *options) *cobra.Command {
	var source, opening string
	var fix bool
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Recompute the running balance of --source and report declared balances that disagree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if source == "" {
				return fmt.Errorf("--source is required")
			}
			anchors, err := openingAnchors(opening, opts.account)
			if err != nil {
				return err
			}
			rt, ctx, err := newRuntime(cmd.Context(), opts, "balance")
			if err != nil {
				return err
			}
			defer rt.close()

			src, err := rt.source(source)
			if err != nil {
				return err
			}
			if src.BalanceColumn == "" {
				return fmt.Errorf("source %s has no balance column", source)
			}
			filter, err := rt.filter()
			if err != nil {
				return err
			}
			records, skipped, err := rt.load(ctx, source, filter)
			if err != nil {
				return err
			}

			engine, err := rt.engine(src)
			if err != nil {
				return err
			}
			report := engine.CheckBalance(source, records, anchors)
			report.Skipped = append(skipped, report.Skipped...)
			report.Summary.Skipped = len(report.Skipped)

			if err := rt.emit(ctx, report); err != nil {
				return err
			}
			if err := rt.saveFindings(ctx, report); err != nil {
				return err
			}
			if !fix {
				return nil
			}
			if err := opts.requireConfirm(rt.mode, "FIX"); err != nil {
				return err
			}
			_, err = rt.apply(ctx, []string{source}, models.ChangesFromBalanceCorrections(source, report.BalanceMismatches))
			return err
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "source to scan (must have a balance column)")
	cmd.Flags().StringVar(&opening, "opening", "", "known opening balance of --account")
	cmd.Flags().BoolVar(&fix, "fix", false, "overwrite mismatched declared balances with computed ones (write mode needs --confirm=FIX)")
	return cmd
}

// openingAnchors turns --opening into an anchor for --account.
func openingAnchors(opening, account string) (map[string]decimal.Decimal, error) {
	if strings.TrimSpace(opening) == "" {
		return nil, nil
	}
	if strings.TrimSpace(account) == "" {
		return nil, fmt.Errorf("--opening needs --account")
	}
	v, err := utils.ParseDecimal(opening)
	if err != nil {
		return nil, fmt.Errorf("--opening: %w", err)
	}
	return map[string]decimal.Decimal{strings.TrimSpace(account): v}, nil
}
