package main

import (
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/books_reconcile/config"
	"bitbucket.org/mmdatafocus/books_reconcile/models"
	"bitbucket.org/mmdatafocus/books_reconcile/models/reports"
	"bitbucket.org/mmdatafocus/books_reconcile/utils"
	"github.com/spf13/cobra"
)

// options are the flags shared by every subcommand.
type options struct {
	configFile string
	mode       string
	format     string
	output     string
	logLevel   string
	confirm    string

	from    string
	to      string
	account string

	amountTolerance      string
	dateWindowDays       int
	descriptionThreshold float64
	polarity             string
	leftOrder            string
	ambiguityPolicy      string
	duplicateProtection  string

	settings *config.MatchingSettings
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&options{})
}

func buildRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "reconcile",
		Short:         "Match, validate and clean financial records across bookkeeping tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.prepare(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "YAML matching config (default $RECON_CONFIG)")
	pf.StringVar(&opts.mode, "mode", "dry-run", "dry-run or write")
	pf.StringVar(&opts.format, "format", "text", "report format: text, csv, json, xlsx")
	pf.StringVar(&opts.output, "output", "", "write the report to this file instead of stdout")
	pf.StringVar(&opts.logLevel, "log-level", "", "logrus level (default $LOG_LEVEL or info)")
	pf.StringVar(&opts.confirm, "confirm", "", "confirmation word required by destructive commands")
	pf.StringVar(&opts.from, "from", "", "first date to include (YYYY-MM-DD)")
	pf.StringVar(&opts.to, "to", "", "last date to include (YYYY-MM-DD)")
	pf.StringVar(&opts.account, "account", "", "only records of this account")
	pf.StringVar(&opts.amountTolerance, "amount-tolerance", "", "inclusive amount tolerance, e.g. 0.01")
	pf.IntVar(&opts.dateWindowDays, "date-window-days", -1, "date window in days (default: preset of the left source)")
	pf.Float64Var(&opts.descriptionThreshold, "description-threshold", -1, "minimum description similarity in [0,1]")
	pf.StringVar(&opts.polarity, "polarity", "", "expense, deposit or signed")
	pf.StringVar(&opts.leftOrder, "left-order", "", "amount_desc or date_asc")
	pf.StringVar(&opts.ambiguityPolicy, "ambiguity-policy", "", "lowest_id or flag")
	pf.StringVar(&opts.duplicateProtection, "duplicate-protection", "", "nsf_reversal or none")

	root.AddCommand(
		newMatchCmd(opts),
		newBalanceCmd(opts),
		newDuplicatesCmd(opts),
		newCleanupDuplicatesCmd(opts),
		newExcludeCmd(opts),
		newRestoreBackupCmd(opts),
		newMigrateCmd(opts),
	)
	return root
}

func (o *options) prepare(cmd *cobra.Command) error {
	if o.logLevel != "" {
		if err := config.SetLogLevel(o.logLevel); err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
	}
	if _, err := o.parseMode(); err != nil {
		return err
	}
	format, err := reports.ParseFormat(o.format)
	if err != nil {
		return err
	}
	if format == reports.FormatXLSX && o.output == "" {
		return fmt.Errorf("--format=xlsx needs --output")
	}
	settings, err := config.LoadMatchingSettings(o.configFile)
	if err == nil {
		err = o.applyOverrides(cmd, settings)
	}
	if err != nil {
		if fields := utils.ProcessValidationErrors(err); len(fields) > 0 {
			config.LogError(config.GetLogger(), "root.go", "prepare", "invalid matching settings", fields, err)
		}
		return err
	}
	o.settings = settings
	return nil
}

// applyOverrides puts explicitly set flags on top of file and env settings.
func (o *options) applyOverrides(cmd *cobra.Command, s *config.MatchingSettings) error {
	flags := cmd.Flags()
	if flags.Changed("amount-tolerance") {
		s.AmountTolerance = strings.TrimSpace(o.amountTolerance)
	}
	if flags.Changed("date-window-days") {
		days := o.dateWindowDays
		s.DateWindowDays = &days
	}
	if flags.Changed("description-threshold") {
		s.DescriptionThreshold = o.descriptionThreshold
	}
	if flags.Changed("polarity") {
		s.Polarity = models.Polarity(strings.ToLower(o.polarity))
	}
	if flags.Changed("left-order") {
		s.LeftOrder = models.LeftOrder(strings.ToLower(o.leftOrder))
	}
	if flags.Changed("ambiguity-policy") {
		s.AmbiguityPolicy = models.AmbiguityPolicy(strings.ToLower(o.ambiguityPolicy))
	}
	if flags.Changed("duplicate-protection") {
		s.DuplicateProtection = strings.ToLower(o.duplicateProtection)
	}
	return s.Validate()
}

func (o *options) parseMode() (models.Mode, error) {
	return models.ParseMode(o.mode)
}

func (o *options) reportFormat() reports.Format {
	f, _ := reports.ParseFormat(o.format)
	return f
}

// dateRange parses --from/--to; either may be empty.
func (o *options) dateRange() (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if strings.TrimSpace(o.from) != "" {
		d, err := utils.ParseDate(o.from)
		if err != nil {
			return nil, nil, fmt.Errorf("--from: %w", err)
		}
		from = &d
	}
	if strings.TrimSpace(o.to) != "" {
		d, err := utils.ParseDate(o.to)
		if err != nil {
			return nil, nil, fmt.Errorf("--to: %w", err)
		}
		to = &d
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, fmt.Errorf("--to %s is before --from %s", o.to, o.from)
	}
	return from, to, nil
}

// requireConfirm guards write mode of destructive commands.
func (o *options) requireConfirm(mode models.Mode, word string) error {
	if mode != models.ModeWrite {
		return nil
	}
	if strings.TrimSpace(o.confirm) != word {
		return fmt.Errorf("%w: set --confirm=%s", utils.ErrorConfirmRequired, word)
	}
	return nil
}
