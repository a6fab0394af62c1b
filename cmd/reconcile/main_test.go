package main

import (
	"errors"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/books_reconcile/config"
	"bitbucket.org/mmdatafocus/books_reconcile/models"
	"bitbucket.org/mmdatafocus/books_reconcile/utils"
	"bitbucket.org/mmdatafocus/books_reconcile/workflow"
)

func clearReconEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"RECON_CONFIG", "RECON_AMOUNT_TOLERANCE", "RECON_BALANCE_TOLERANCE", "RECON_DATE_WINDOW_DAYS",
		"RECON_DESCRIPTION_THRESHOLD", "RECON_POLARITY", "RECON_LEFT_ORDER", "RECON_AMBIGUITY_POLICY",
		"RECON_DUPLICATE_PROTECTION", "RECON_CHECK_BALANCE",
	} {
		t.Setenv(key, "")
	}
}

// execute runs the root command; every case here fails before a database is needed.
func execute(t *testing.T, args ...string) error {
	t.Helper()
	clearReconEnv(t)
	root := newRootCmd()
	root.SetArgs(args)
	return root.Execute()
}

func TestCommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range newRootCmd().Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"match", "balance", "duplicates", "cleanup-duplicates", "exclude", "restore-backup", "migrate"} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("command %q not registered (have %v)", want, names)
		}
	}
}

func TestApplyOverrides(t *testing.T) {
	clearReconEnv(t)
	opts := &options{}
	root := buildRootCmd(opts)
	if err := root.ParseFlags([]string{"--amount-tolerance=0.05", "--date-window-days=0", "--polarity=DEPOSIT", "--ambiguity-policy=flag"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	s := config.DefaultMatchingSettings()
	if err := opts.applyOverrides(root, s); err != nil {
		t.Fatalf("apply overrides: %v", err)
	}
	if s.AmountTolerance != "0.05" {
		t.Fatalf("amount tolerance = %s", s.AmountTolerance)
	}
	if s.DateWindowDays == nil || *s.DateWindowDays != 0 {
		t.Fatalf("date window = %v", s.DateWindowDays)
	}
	if s.Polarity != models.PolarityDeposit || s.AmbiguityPolicy != models.AmbiguityPolicyFlag {
		t.Fatalf("polarity=%s ambiguity=%s", s.Polarity, s.AmbiguityPolicy)
	}
	if s.DescriptionThreshold != 0.85 || s.LeftOrder != models.LeftOrderAmountDesc {
		t.Fatalf("unset flags must keep settings: threshold=%v order=%s", s.DescriptionThreshold, s.LeftOrder)
	}
}

func TestApplyOverridesRejectsBadValue(t *testing.T) {
	clearReconEnv(t)
	opts := &options{}
	root := buildRootCmd(opts)
	if err := root.ParseFlags([]string{"--polarity=sideways"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if err := opts.applyOverrides(root, config.DefaultMatchingSettings()); err == nil {
		t.Fatalf("expected validation error for polarity")
	}
}

func TestDateRange(t *testing.T) {
	from, to, err := (&options{from: "2019-01-01", to: "2019-12-31"}).dateRange()
	if err != nil || from == nil || to == nil {
		t.Fatalf("dateRange: %v %v %v", from, to, err)
	}
	if from.Format("2006-01-02") != "2019-01-01" || to.Format("2006-01-02") != "2019-12-31" {
		t.Fatalf("from=%s to=%s", from, to)
	}
	if from, to, err := (&options{}).dateRange(); err != nil || from != nil || to != nil {
		t.Fatalf("empty range: %v %v %v", from, to, err)
	}
	if _, _, err := (&options{from: "2019-02-01", to: "2019-01-01"}).dateRange(); err == nil {
		t.Fatalf("expected error for inverted range")
	}
	if _, _, err := (&options{from: "01/02/2019"}).dateRange(); err == nil {
		t.Fatalf("expected error for bad date")
	}
}

func TestRequireConfirm(t *testing.T) {
	o := &options{}
	if err := o.requireConfirm(models.ModeDryRun, "DELETE"); err != nil {
		t.Fatalf("dry run needs no confirmation: %v", err)
	}
	if err := o.requireConfirm(models.ModeWrite, "DELETE"); !errors.Is(err, utils.ErrorConfirmRequired) {
		t.Fatalf("expected ErrorConfirmRequired, got %v", err)
	}
	o.confirm = "delete"
	if err := o.requireConfirm(models.ModeWrite, "DELETE"); err == nil {
		t.Fatalf("confirmation word is case sensitive")
	}
	o.confirm = "DELETE"
	if err := o.requireConfirm(models.ModeWrite, "DELETE"); err != nil {
		t.Fatalf("confirmed: %v", err)
	}
}

func TestOpeningAnchors(t *testing.T) {
	anchors, err := openingAnchors("", "")
	if err != nil || anchors != nil {
		t.Fatalf("no opening: %v %v", anchors, err)
	}
	if _, err := openingAnchors("1000.00", ""); err == nil {
		t.Fatalf("expected error without --account")
	}
	if _, err := openingAnchors("abc", "0228362"); err == nil {
		t.Fatalf("expected error for bad decimal")
	}
	anchors, err = openingAnchors("1000.00", " 0228362 ")
	if err != nil {
		t.Fatalf("opening: %v", err)
	}
	if v, ok := anchors["0228362"]; !ok || v.StringFixed(2) != "1000.00" {
		t.Fatalf("anchors = %v", anchors)
	}
}

func TestBackupCounts(t *testing.T) {
	counts := backupCounts([]models.ReconciliationBackup{
		{SourceTable: "receipts"}, {SourceTable: "banking_transactions"}, {SourceTable: "receipts"},
	})
	if counts["receipts"] != 2 || counts["banking_transactions"] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestCommandArgumentErrors(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"bad mode", []string{"match", "--mode=maybe"}, "mode must be"},
		{"bad format", []string{"match", "--format=pdf"}, "pdf"},
		{"xlsx to stdout", []string{"duplicates", "--format=xlsx"}, "needs --output"},
		{"match without sources", []string{"match", "--left=receipts"}, "--left and --right are required"},
		{"match same source", []string{"match", "--left=receipts", "--right=receipts"}, "must be different"},
		{"balance without source", []string{"balance"}, "--source is required"},
		{"opening without account", []string{"balance", "--source=banking_transactions", "--opening=10"}, "--opening needs --account"},
		{"duplicates without source", []string{"duplicates"}, "--source is required"},
		{"cleanup keep policy", []string{"cleanup-duplicates", "--source=receipts", "--keep=newest"}, "unsupported --keep"},
		{"cleanup unconfirmed", []string{"cleanup-duplicates", "--source=receipts", "--mode=write"}, "--confirm=DELETE"},
		{"exclude without source", []string{"exclude", "--ids=4"}, "--source is required"},
		{"exclude without ids", []string{"exclude", "--source=receipts", "--ids= ,"}, "--ids is required"},
		{"exclude unconfirmed", []string{"exclude", "--source=receipts", "--ids=4", "--mode=write"}, "--confirm=EXCLUDE"},
		{"restore without name", []string{"restore-backup"}, "--backup-name is required"},
		{"restore wrong word", []string{"restore-backup", "--backup-name=recon_x", "--confirm=yes"}, "--confirm=RESTORE"},
		{"bad threshold", []string{"match", "--description-threshold=1.5"}, "invalid matching config"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := execute(t, tc.args...)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestWidenRange(t *testing.T) {
	o := &options{from: "2019-01-10", to: "2019-01-20"}
	from, to, err := o.dateRange()
	if err != nil {
		t.Fatalf("dateRange: %v", err)
	}
	f := widenRange(workflow.RecordFilter{From: from, To: to, AccountRef: "0228362"}, 3)
	if f.From.Format("2006-01-02") != "2019-01-07" || f.To.Format("2006-01-02") != "2019-01-23" {
		t.Fatalf("widened to %s..%s", f.From, f.To)
	}
	if from.Format("2006-01-02") != "2019-01-10" {
		t.Fatalf("original range changed: %s", from)
	}
	if open := widenRange(workflow.RecordFilter{}, 45); open.From != nil || open.To != nil {
		t.Fatalf("open range must stay open")
	}
}

func TestLeftStatuses(t *testing.T) {
	if got := leftStatuses(true); got != nil {
		t.Fatalf("balance check needs every row, got %v", got)
	}
	got := leftStatuses(false)
	if len(got) != 1 || got[0] != models.RecordStatusUnmatched {
		t.Fatalf("got %v", got)
	}
}

func TestStatusTransitions(t *testing.T) {
	ref := func(id string) models.RecordRef { return models.RecordRef{Source: "receipts", ID: id} }
	snap := func(id string, st models.RecordStatus) workflow.RecordSnapshot {
		return workflow.RecordSnapshot{Ref: ref(id), Record: models.FinancialRecord{ID: id, Source: "receipts", Status: st}}
	}
	refs := []models.RecordRef{ref("1"), ref("2"), ref("3"), ref("4")}
	snaps := []workflow.RecordSnapshot{
		snap("1", models.RecordStatusUnmatched),
		snap("2", models.RecordStatusMatched),
		snap("3", ""),
	}

	ready, refused := statusTransitions(refs, snaps, models.RecordStatusUnmatched)
	if len(ready) != 2 || ready[0] != ref("1") || ready[1] != ref("3") {
		t.Fatalf("ready = %v", ready)
	}
	if strings.Join(refused, ";") != "refused[2]=status matched;refused[4]=not found" {
		t.Fatalf("refused = %v", refused)
	}

	changes := models.ChangesFromStatus(ready, models.RecordStatusExcluded, "operator excluded")
	if len(changes) != 2 || changes[0].Kind != models.ChangeKindSetStatus || changes[1].Status != models.RecordStatusExcluded {
		t.Fatalf("changes = %+v", changes)
	}

	if ready, _ := statusTransitions(refs, snaps, models.RecordStatusExcluded); len(ready) != 0 {
		t.Fatalf("undo only touches excluded rows, got %v", ready)
	}
}
