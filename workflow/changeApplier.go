package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/books_reconcile/config"
	"bitbucket.org/mmdatafocus/books_reconcile/models"
	"bitbucket.org/mmdatafocus/books_reconcile/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrApplyRolledBack = errors.New("apply rolled back")

var tracer trace.Tracer = otel.Tracer("books_reconcile/workflow")

type ApplyOptions struct {
	RunID string
	// Sources scopes the before/after totals; defaults to every source the changes touch.
	Sources []string
	Logger  *logrus.Logger
	Now     func() time.Time
}

// BackupName is recon_<YYYYMMDDTHHMMSS>_<first 8 chars of run id>.
func BackupName(at time.Time, runID string) string {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("recon_%s_%s", at.UTC().Format("20060102T150405"), short)
}

// ApplyChanges is the only code path that mutates the record store.
// dry_run reads current totals and the rows to touch and projects the result in memory.
// write backs up every touched row, applies all changes in one transaction, re-reads the
// totals inside it and commits; any failure rolls the whole batch back and returns ErrApplyRolledBack.
// Changes pointing at rows that do not exist are counted as skipped.
func ApplyChanges(ctx context.Context, store RecordStore, changes []models.Change, mode models.Mode, opts ApplyOptions) (*models.ApplyReport, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = config.GetLogger()
	}
	if mode == "" {
		mode = models.ModeDryRun
	}
	sources := opts.Sources
	if len(sources) == 0 {
		sources = touchedSources(changes)
	}

	ctx, span := tracer.Start(ctx, "ApplyChanges", trace.WithAttributes(
		attribute.String("run_id", opts.RunID),
		attribute.String("mode", string(mode)),
		attribute.Int("changes", len(changes)),
	))
	defer span.End()

	report := &models.ApplyReport{
		RunID:     opts.RunID,
		Mode:      mode,
		Planned:   len(changes),
		StartedAt: opts.Now(),
	}
	fail := func(funcName string, err error) (*models.ApplyReport, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		config.LogError(logger, "changeApplier.go", funcName, "apply changes", map[string]any{"run_id": opts.RunID, "mode": mode}, err)
		report.FinishedAt = opts.Now()
		return report, err
	}

	before, err := store.Totals(ctx, sources)
	if err != nil {
		return fail("ApplyChanges", fmt.Errorf("read totals: %w", err))
	}
	report.Before = before

	switch mode {
	case models.ModeDryRun:
		snaps, err := store.Snapshot(ctx, touchedRefs(changes))
		if err != nil {
			return fail("ApplyChanges", fmt.Errorf("read rows: %w", err))
		}
		existing := indexSnapshots(snaps)
		for _, c := range changes {
			if !changeTargetsExist(c, existing) {
				report.Skipped++
			}
		}
		report.After = ProjectTotals(before, snaps, changes)
	case models.ModeWrite:
		report.BackupName = BackupName(report.StartedAt, opts.RunID)
		if err := applyInTransaction(ctx, store, changes, sources, report); err != nil {
			report.RolledBack = true
			report.Applied = 0
			report.StatementsExecuted = 0
			report.BackupRows = 0
			if after, terr := store.Totals(ctx, sources); terr == nil {
				report.After = after
			} else {
				report.After = before
			}
			return fail("ApplyChanges", fmt.Errorf("%w: %v", ErrApplyRolledBack, err))
		}
	default:
		return fail("ApplyChanges", fmt.Errorf("unknown mode %q", mode))
	}

	report.FinishedAt = opts.Now()
	span.SetAttributes(
		attribute.Int("applied", report.Applied),
		attribute.Int("statements", report.StatementsExecuted),
	)
	logger.WithFields(logrus.Fields{
		"module":     "changeApplier.go",
		"funcName":   "ApplyChanges",
		"run_id":     report.RunID,
		"mode":       report.Mode,
		"planned":    report.Planned,
		"applied":    report.Applied,
		"skipped":    report.Skipped,
		"statements": report.StatementsExecuted,
		"backup":     report.BackupName,
	}).Info("changes processed")
	return report, nil
}

func applyInTransaction(ctx context.Context, store RecordStore, changes []models.Change, sources []string, report *models.ApplyReport) error {
	return store.Transaction(ctx, func(tx RecordStore) error {
		snaps, err := tx.Snapshot(ctx, touchedRefs(changes))
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		existing := indexSnapshots(snaps)

		backups, err := buildBackups(report.BackupName, report.RunID, changes, existing)
		if err != nil {
			return err
		}
		if len(backups) > 0 {
			if err := tx.SaveBackup(ctx, backups); err != nil {
				return fmt.Errorf("save backup: %w", err)
			}
		}
		report.BackupRows = len(backups)

		for i, c := range changes {
			if !changeTargetsExist(c, existing) {
				report.Skipped++
				continue
			}
			n, err := tx.Apply(ctx, c)
			if err != nil {
				return fmt.Errorf("change %d (%s %s): %w", i, c.Kind, c.Ref, err)
			}
			report.StatementsExecuted += n
			report.Applied++
		}

		after, err := tx.Totals(ctx, sources)
		if err != nil {
			return fmt.Errorf("re-read totals: %w", err)
		}
		report.After = after
		return nil
	})
}

// buildBackups stores one row per touched record, the first change kind that touches it wins.
func buildBackups(backupName, runID string, changes []models.Change, existing map[models.RecordRef]RecordSnapshot) ([]models.ReconciliationBackup, error) {
	seen := map[models.RecordRef]bool{}
	var rows []models.ReconciliationBackup
	for _, c := range changes {
		for _, ref := range c.Touched() {
			snap, ok := existing[ref]
			if !ok || seen[ref] {
				continue
			}
			seen[ref] = true
			payload, err := utils.MarshalToJSON(snap.Raw)
			if err != nil {
				return nil, fmt.Errorf("backup %s: %w", ref, err)
			}
			rows = append(rows, models.ReconciliationBackup{
				BackupName:  backupName,
				RunId:       runID,
				SourceTable: ref.Source,
				RecordId:    ref.ID,
				ChangeKind:  string(c.Kind),
				Payload:     payload,
			})
		}
	}
	return rows, nil
}

// ProjectTotals applies changes to before in memory using the current row snapshots.
func ProjectTotals(before models.Totals, snaps []RecordSnapshot, changes []models.Change) models.Totals {
	bySource := map[string]*models.SourceTotals{}
	for _, s := range before.Sources {
		s := s
		bySource[s.Source] = &s
	}
	type rowState struct {
		status  models.RecordStatus
		amount  decimal.Decimal
		deleted bool
	}
	rows := map[models.RecordRef]*rowState{}
	for _, s := range snaps {
		st := s.Record.Status
		if st == "" {
			st = models.RecordStatusUnmatched
		}
		rows[s.Ref] = &rowState{status: st, amount: s.Record.SignedAmount()}
	}
	countStatus := func(src *models.SourceTotals, st models.RecordStatus, delta int64) {
		switch st {
		case models.RecordStatusMatched:
			src.Matched += delta
		case models.RecordStatusExcluded:
			src.Excluded += delta
		}
	}
	setStatus := func(ref models.RecordRef, st models.RecordStatus) {
		row, ok := rows[ref]
		src, srcOK := bySource[ref.Source]
		if !ok || row.deleted || !srcOK || row.status == st {
			return
		}
		countStatus(src, row.status, -1)
		countStatus(src, st, 1)
		row.status = st
	}

	present := func(c models.Change) bool {
		for _, ref := range c.Touched() {
			if _, ok := rows[ref]; !ok {
				return false
			}
		}
		return true
	}

	for _, c := range changes {
		if !present(c) {
			continue
		}
		switch c.Kind {
		case models.ChangeKindLink:
			setStatus(c.Ref, models.RecordStatusMatched)
			if c.LinkTo != nil {
				setStatus(*c.LinkTo, models.RecordStatusMatched)
			}
		case models.ChangeKindSetStatus:
			setStatus(c.Ref, c.Status)
		case models.ChangeKindDelete:
			row, ok := rows[c.Ref]
			src, srcOK := bySource[c.Ref.Source]
			if !ok || row.deleted || !srcOK {
				continue
			}
			src.Count--
			src.Sum = src.Sum.Sub(row.amount)
			countStatus(src, row.status, -1)
			row.deleted = true
		}
	}

	out := make([]models.SourceTotals, 0, len(bySource))
	for _, s := range bySource {
		out = append(out, *s)
	}
	return models.NewTotals(out)
}

func indexSnapshots(snaps []RecordSnapshot) map[models.RecordRef]RecordSnapshot {
	out := make(map[models.RecordRef]RecordSnapshot, len(snaps))
	for _, s := range snaps {
		out[s.Ref] = s
	}
	return out
}

func changeTargetsExist(c models.Change, existing map[models.RecordRef]RecordSnapshot) bool {
	for _, ref := range c.Touched() {
		if _, ok := existing[ref]; !ok {
			return false
		}
	}
	return true
}

func touchedRefs(changes []models.Change) []models.RecordRef {
	seen := map[models.RecordRef]bool{}
	var refs []models.RecordRef
	for _, c := range changes {
		for _, ref := range c.Touched() {
			if !seen[ref] {
				seen[ref] = true
				refs = append(refs, ref)
			}
		}
	}
	return refs
}

func touchedSources(changes []models.Change) []string {
	seen := map[string]bool{}
	for _, c := range changes {
		for _, ref := range c.Touched() {
			seen[ref.Source] = true
		}
	}
	return utils.SortedKeys(seen)
}
