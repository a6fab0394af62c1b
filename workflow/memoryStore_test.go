package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/books_reconcile/models"
	"github.com/shopspring/decimal"
)

var errInjected = errors.New("injected failure")

// memoryStore is an in-memory RecordStore. Transaction works on a copy and only
// publishes it when fn succeeds.
type memoryStore struct {
	rows    map[models.RecordRef]models.FinancialRecord
	backups []models.ReconciliationBackup
	// failOnApply makes the n-th Apply call (1-based, counted across transactions) fail.
	failOnApply int
	applyCalls  int
}

func newMemoryStore(records ...models.FinancialRecord) *memoryStore {
	s := &memoryStore{rows: map[models.RecordRef]models.FinancialRecord{}}
	for _, r := range records {
		s.rows[r.Ref()] = r
	}
	return s
}

func (s *memoryStore) clone() *memoryStore {
	cp := &memoryStore{
		rows:        make(map[models.RecordRef]models.FinancialRecord, len(s.rows)),
		backups:     append([]models.ReconciliationBackup(nil), s.backups...),
		failOnApply: s.failOnApply,
		applyCalls:  s.applyCalls,
	}
	for k, v := range s.rows {
		cp.rows[k] = v
	}
	return cp
}

func (s *memoryStore) Transaction(ctx context.Context, fn func(tx RecordStore) error) error {
	tx := s.clone()
	err := fn(tx)
	s.applyCalls = tx.applyCalls
	if err != nil {
		return err
	}
	s.rows = tx.rows
	s.backups = tx.backups
	return nil
}

func (s *memoryStore) Totals(ctx context.Context, sources []string) (models.Totals, error) {
	var out []models.SourceTotals
	for _, src := range sources {
		t := models.SourceTotals{Source: src, Sum: decimal.Zero}
		for ref, r := range s.rows {
			if ref.Source != src {
				continue
			}
			t.Count++
			t.Sum = t.Sum.Add(r.SignedAmount())
			switch r.Status {
			case models.RecordStatusMatched:
				t.Matched++
			case models.RecordStatusExcluded:
				t.Excluded++
			}
		}
		out = append(out, t)
	}
	return models.NewTotals(out), nil
}

func (s *memoryStore) Snapshot(ctx context.Context, refs []models.RecordRef) ([]RecordSnapshot, error) {
	var out []RecordSnapshot
	for _, ref := range refs {
		r, ok := s.rows[ref]
		if !ok {
			continue
		}
		out = append(out, RecordSnapshot{
			Ref:    ref,
			Record: r,
			Raw: map[string]any{
				"id":     r.ID,
				"amount": r.SignedAmount().String(),
				"status": string(r.Status),
			},
		})
	}
	return out, nil
}

func (s *memoryStore) SaveBackup(ctx context.Context, rows []models.ReconciliationBackup) error {
	s.backups = append(s.backups, rows...)
	return nil
}

func (s *memoryStore) Apply(ctx context.Context, c models.Change) (int, error) {
	s.applyCalls++
	if s.failOnApply > 0 && s.applyCalls == s.failOnApply {
		return 0, errInjected
	}
	r, ok := s.rows[c.Ref]
	if !ok {
		return 0, fmt.Errorf("%w: %s", models.ErrRecordNotFound, c.Ref)
	}
	switch c.Kind {
	case models.ChangeKindLink:
		other, ok := s.rows[*c.LinkTo]
		if !ok {
			return 0, fmt.Errorf("%w: %s", models.ErrRecordNotFound, c.LinkTo)
		}
		r.Status, r.LinkedID = models.RecordStatusMatched, c.LinkTo.ID
		other.Status, other.LinkedID = models.RecordStatusMatched, c.Ref.ID
		s.rows[c.Ref], s.rows[*c.LinkTo] = r, other
		return 2, nil
	case models.ChangeKindSetStatus:
		r.Status = c.Status
	case models.ChangeKindSetDeclaredBalance:
		b := c.Balance
		r.DeclaredBalance = &b
	case models.ChangeKindDelete:
		delete(s.rows, c.Ref)
		return 1, nil
	default:
		return 0, fmt.Errorf("unknown change kind %q", c.Kind)
	}
	s.rows[c.Ref] = r
	return 1, nil
}

func (s *memoryStore) sortedRows() []models.FinancialRecord {
	out := make([]models.FinancialRecord, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref().String() < out[j].Ref().String() })
	return out
}

func memoryRecord(source, id, amount string, status models.RecordStatus) models.FinancialRecord {
	return models.FinancialRecord{
		ID:     id,
		Source: source,
		Date:   time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC),
		Amount: decimal.RequireFromString(amount),
		Status: status,
	}
}

func TestMemoryStoreTransactionDiscardsOnError(t *testing.T) {
	store := newMemoryStore(memoryRecord("receipts", "1", "10.00", models.RecordStatusUnmatched))
	err := store.Transaction(context.Background(), func(tx RecordStore) error {
		if _, err := tx.Apply(context.Background(), models.Change{
			Kind:   models.ChangeKindSetStatus,
			Ref:    models.RecordRef{Source: "receipts", ID: "1"},
			Status: models.RecordStatusExcluded,
		}); err != nil {
			return err
		}
		return errInjected
	})
	if !errors.Is(err, errInjected) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if got := store.rows[models.RecordRef{Source: "receipts", ID: "1"}].Status; got != models.RecordStatusUnmatched {
		t.Fatalf("status leaked out of failed transaction: %s", got)
	}
}
