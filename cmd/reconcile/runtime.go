package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/books_reconcile/config"
	"bitbucket.org/mmdatafocus/books_reconcile/models"
	"bitbucket.org/mmdatafocus/books_reconcile/models/reports"
	"bitbucket.org/mmdatafocus/books_reconcile/reconcile"
	"bitbucket.org/mmdatafocus/books_reconcile/utils"
	"bitbucket.org/mmdatafocus/books_reconcile/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	connectAttempts = 5
	runLockTTL      = 30 * time.Minute
)

// runtime is one command invocation with its connections.
type runtime struct {
	opts     *options
	command  string
	runID    string
	mode     models.Mode
	logger   *logrus.Logger
	db       *gorm.DB
	registry models.SourceRegistry
	store    *workflow.GormRecordStore
	stdout   io.Writer
}

func newRuntime(ctx context.Context, opts *options, command string) (*runtime, context.Context, error) {
	mode, err := opts.parseMode()
	if err != nil {
		return nil, ctx, err
	}
	registry, err := opts.settings.Registry()
	if err != nil {
		return nil, ctx, err
	}
	db, err := config.ConnectDatabaseWithRetry(connectAttempts)
	if err != nil {
		return nil, ctx, err
	}
	logger := config.GetLogger()
	if err := config.ConnectRedis(ctx, 1); err != nil {
		// redis only adds a second lock and a summary cache
		config.LogError(logger, "runtime.go", "newRuntime", "redis unavailable, continuing without it", nil, err)
	}
	ctx = utils.NewRunContext(ctx, command)
	ctx = utils.SetModeInContext(ctx, string(mode))
	runID, _ := utils.GetRunIdFromContext(ctx)
	return &runtime{
		opts:     opts,
		command:  command,
		runID:    runID,
		mode:     mode,
		logger:   logger,
		db:       db,
		registry: registry,
		store:    workflow.NewGormRecordStore(db, registry),
		stdout:   os.Stdout,
	}, ctx, nil
}

// lastRun is what the previous run of a command left in the cache.
type lastRun struct {
	RunID       string            `json:"run_id"`
	GeneratedAt time.Time         `json:"generated_at"`
	Summary     reconcile.Summary `json:"summary"`
}

// logFields tags a log line with the run stored on ctx.
func logFields(ctx context.Context, funcName string) logrus.Fields {
	fields := logrus.Fields{"module": "runtime.go", "funcName": funcName}
	if v, ok := utils.GetRunIdFromContext(ctx); ok {
		fields["run_id"] = v
	}
	if v, ok := utils.GetCommandFromContext(ctx); ok {
		fields["command"] = v
	}
	if v, ok := utils.GetModeFromContext(ctx); ok {
		fields["mode"] = v
	}
	return fields
}

func (rt *runtime) close() {
	_ = config.ClosePubSub()
	_ = config.CloseRedis()
	_ = config.CloseDatabase()
}

func (rt *runtime) source(name string) (models.RecordSource, error) {
	return rt.registry.Get(name)
}

func (rt *runtime) engine(leftSource models.RecordSource) (*reconcile.Engine, error) {
	cfg, err := rt.opts.settings.EngineConfig(leftSource)
	if err != nil {
		return nil, err
	}
	engine, err := reconcile.NewEngine(cfg, rt.logger)
	if err != nil {
		return nil, err
	}
	return engine.WithRunID(rt.runID), nil
}

func (rt *runtime) filter(statuses ...models.RecordStatus) (workflow.RecordFilter, error) {
	from, to, err := rt.opts.dateRange()
	if err != nil {
		return workflow.RecordFilter{}, err
	}
	return workflow.RecordFilter{From: from, To: to, AccountRef: strings.TrimSpace(rt.opts.account), Statuses: statuses}, nil
}

func (rt *runtime) load(ctx context.Context, source string, filter workflow.RecordFilter) ([]models.FinancialRecord, []models.SkippedRecord, error) {
	records, skipped, err := rt.store.LoadRecords(ctx, source, filter)
	if err != nil {
		return nil, nil, err
	}
	rt.logger.WithFields(logFields(ctx, "load")).WithFields(logrus.Fields{
		"source":  source,
		"records": len(records),
		"skipped": len(skipped),
	}).Debug("records loaded")
	return records, skipped, nil
}

// emit renders the report to --output or stdout and archives it when REPORT_GCS_BUCKET is set.
func (rt *runtime) emit(ctx context.Context, report *reconcile.Report) error {
	format := rt.opts.reportFormat()
	data, err := reports.RenderBytes(report, format)
	if err != nil {
		return err
	}
	if rt.opts.output != "" {
		if err := os.WriteFile(rt.opts.output, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(rt.stdout, "report=%s\n", rt.opts.output)
	} else if _, err := rt.stdout.Write(data); err != nil {
		return err
	}

	if bucket := os.Getenv("REPORT_GCS_BUCKET"); bucket != "" {
		object := fmt.Sprintf("reports/%s/%s.%s", rt.command, report.RunID, format.Extension())
		uri, err := utils.UploadObject(ctx, bucket, object, format.ContentType(), data)
		if err != nil {
			config.LogError(rt.logger, "runtime.go", "emit", "report upload failed", object, err)
		} else {
			fmt.Fprintf(rt.stdout, "report_uri=%s\n", uri)
		}
	}

	prev, err := utils.RetrieveLastRun[lastRun](ctx, rt.command, report.LeftSource)
	if err != nil {
		config.LogError(rt.logger, "runtime.go", "emit", "read cached summary", report.LeftSource, err)
	} else if prev != nil {
		fmt.Fprintf(rt.stdout, "previous_run_id=%s\nprevious_generated_at=%s\nprevious_linked=%d\n",
			prev.RunID, prev.GeneratedAt.UTC().Format(time.RFC3339), prev.Summary.Linked)
	}
	current := lastRun{RunID: report.RunID, GeneratedAt: report.GeneratedAt, Summary: report.Summary}
	if err := utils.StoreLastRun(ctx, rt.command, report.LeftSource, current); err != nil {
		config.LogError(rt.logger, "runtime.go", "emit", "cache summary", report.RunID, err)
	}
	return nil
}

// saveFindings stores review rows in reconciliation_reports; write mode only.
func (rt *runtime) saveFindings(ctx context.Context, report *reconcile.Report) error {
	if rt.mode != models.ModeWrite {
		return nil
	}
	correlationID, _ := utils.GetCorrelationIdFromContext(ctx)
	findings := report.Findings(correlationID)
	if err := rt.store.RecordFindings(ctx, findings); err != nil {
		return fmt.Errorf("save findings: %w", err)
	}
	fmt.Fprintf(rt.stdout, "findings_saved=%d\n", len(findings))
	return nil
}

// apply runs the change applier under the run locks and records the outcome.
func (rt *runtime) apply(ctx context.Context, sources []string, changes []models.Change) (*models.ApplyReport, error) {
	store := rt.store
	if rt.mode == models.ModeWrite {
		lock := workflow.NewSourceLock(sources)
		release, err := utils.ObtainRunLock(ctx, lock.Name(), runLockTTL, "runtime.go", "apply")
		if err != nil {
			return nil, err
		}
		defer release()
		store = store.WithLock(lock)
	}

	applied, applyErr := workflow.ApplyChanges(ctx, store, changes, rt.mode, workflow.ApplyOptions{
		RunID:   rt.runID,
		Sources: sources,
		Logger:  rt.logger,
	})
	if applied != nil {
		if err := reports.WriteApplyReport(rt.stdout, applied); err != nil {
			return applied, err
		}
	}
	if rt.mode != models.ModeWrite || applied == nil {
		return applied, applyErr
	}

	correlationID, _ := utils.GetCorrelationIdFromContext(ctx)
	run := models.NewReconciliationRun(rt.command, applied, correlationID, applyErr)
	if err := rt.store.SaveRun(ctx, run); err != nil {
		config.LogError(rt.logger, "runtime.go", "apply", "save run", rt.runID, err)
	}
	if applyErr == nil {
		rt.archiveBackup(ctx, applied.BackupName)
	}
	rt.publish(ctx, run)
	return applied, applyErr
}

// archiveBackup copies the backup rows to BACKUP_GCS_BUCKET when configured.
func (rt *runtime) archiveBackup(ctx context.Context, backupName string) {
	bucket := os.Getenv("BACKUP_GCS_BUCKET")
	if bucket == "" || backupName == "" {
		return
	}
	rows, err := rt.store.LoadBackup(ctx, backupName)
	if errors.Is(err, models.ErrBackupNotFound) {
		return
	}
	if err != nil {
		config.LogError(rt.logger, "runtime.go", "archiveBackup", "load backup", backupName, err)
		return
	}
	payload, err := utils.MarshalToJSON(rows)
	if err != nil {
		config.LogError(rt.logger, "runtime.go", "archiveBackup", "encode backup", backupName, err)
		return
	}
	uri, err := utils.UploadObject(ctx, bucket, "backups/"+backupName+".json", "application/json", []byte(payload))
	if err != nil {
		config.LogError(rt.logger, "runtime.go", "archiveBackup", "upload backup", backupName, err)
		return
	}
	fmt.Fprintf(rt.stdout, "backup_uri=%s\n", uri)
}

func (rt *runtime) publish(ctx context.Context, run *models.ReconciliationRun) {
	if !config.RunEventsEnabled() {
		return
	}
	msgID, err := config.PublishRunEvent(ctx, config.RunEventMessage{
		RunId:              run.RunId,
		Command:            run.Command,
		Mode:               string(run.Mode),
		Status:             string(run.Status),
		BackupName:         run.BackupName,
		Applied:            run.Applied,
		StatementsExecuted: run.StatementsExecuted,
		FinishedAt:         run.FinishedAt,
		CorrelationId:      run.CorrelationId,
	})
	if err != nil {
		config.LogError(rt.logger, "runtime.go", "publish", "publish run event", run.RunId, err)
		return
	}
	rt.logger.WithFields(logFields(ctx, "publish")).WithField("message_id", msgID).Info("run event published")
}
