package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/books_reconcile/models"
)

// RecordSnapshot is the current state of one source row: the parsed record plus every column as read.
type RecordSnapshot struct {
	Ref    models.RecordRef
	Record models.FinancialRecord
	Raw    map[string]any
}

// RecordStore is what the change applier needs from persistence.
// Transaction must run fn against a store bound to one transaction and roll back if fn returns an error.
type RecordStore interface {
	Transaction(ctx context.Context, fn func(tx RecordStore) error) error
	Totals(ctx context.Context, sources []string) (models.Totals, error)
	// Snapshot returns rows that exist; missing refs are simply absent from the result.
	Snapshot(ctx context.Context, refs []models.RecordRef) ([]RecordSnapshot, error)
	SaveBackup(ctx context.Context, rows []models.ReconciliationBackup) error
	// Apply executes one change and returns how many statements it ran.
	Apply(ctx context.Context, change models.Change) (int, error)
}
