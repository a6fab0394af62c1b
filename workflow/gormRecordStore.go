package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/books_reconcile/models"
	"bitbucket.org/mmdatafocus/books_reconcile/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRecordStore reads and writes source tables described by RecordSource descriptors.
// Table and column names only ever come from the validated registry.
type GormRecordStore struct {
	db       *gorm.DB
	registry models.SourceRegistry
	lock     SourceLock
	inTx     bool
}

func NewGormRecordStore(db *gorm.DB, registry models.SourceRegistry) *GormRecordStore {
	return &GormRecordStore{db: db, registry: registry}
}

// WithLock makes Transaction and RestoreBackup hold lock for their whole duration.
func (s *GormRecordStore) WithLock(lock SourceLock) *GormRecordStore {
	cp := *s
	cp.lock = lock
	return &cp
}

type RecordFilter struct {
	From       *time.Time
	To         *time.Time
	AccountRef string
	Statuses   []models.RecordStatus
}

func quoteIdent(name string) string {
	return "`" + name + "`"
}

func (s *GormRecordStore) Transaction(ctx context.Context, fn func(tx RecordStore) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.lock.hold(tx, func() error {
			return fn(&GormRecordStore{db: tx, registry: s.registry, inTx: true})
		})
	})
}

func amountExpr(src models.RecordSource) string {
	if src.SplitAmounts() {
		return fmt.Sprintf("COALESCE(%s,0) - COALESCE(%s,0)", quoteIdent(src.CreditColumn), quoteIdent(src.DebitColumn))
	}
	return fmt.Sprintf("COALESCE(%s,0)", quoteIdent(src.AmountColumn))
}

func (s *GormRecordStore) Totals(ctx context.Context, sources []string) (models.Totals, error) {
	var rows []models.SourceTotals
	for _, name := range sources {
		src, err := s.registry.Get(name)
		if err != nil {
			return models.Totals{}, err
		}
		matchedExpr, excludedExpr := "0", "0"
		if src.StatusColumn != "" {
			matchedExpr = fmt.Sprintf("COALESCE(SUM(CASE WHEN %s = '%s' THEN 1 ELSE 0 END),0)", quoteIdent(src.StatusColumn), models.RecordStatusMatched)
			excludedExpr = fmt.Sprintf("COALESCE(SUM(CASE WHEN %s = '%s' THEN 1 ELSE 0 END),0)", quoteIdent(src.StatusColumn), models.RecordStatusExcluded)
		}
		var out struct {
			Cnt      int64
			Total    decimal.Decimal
			Matched  int64
			Excluded int64
		}
		query := fmt.Sprintf("SELECT COUNT(*) AS cnt, COALESCE(SUM(%s),0) AS total, %s AS matched, %s AS excluded FROM %s",
			amountExpr(src), matchedExpr, excludedExpr, quoteIdent(src.Table))
		if err := s.db.WithContext(ctx).Raw(query).Scan(&out).Error; err != nil {
			return models.Totals{}, fmt.Errorf("totals for %s: %w", name, err)
		}
		rows = append(rows, models.SourceTotals{
			Source:   name,
			Count:    out.Cnt,
			Sum:      out.Total,
			Matched:  out.Matched,
			Excluded: out.Excluded,
		})
	}
	return models.NewTotals(rows), nil
}

// LoadRecords reads one source ordered by (date, id). Rows whose values cannot be parsed
// are returned as skipped instead of failing the whole read.
func (s *GormRecordStore) LoadRecords(ctx context.Context, sourceName string, filter RecordFilter) ([]models.FinancialRecord, []models.SkippedRecord, error) {
	src, err := s.registry.Get(sourceName)
	if err != nil {
		return nil, nil, err
	}
	q := s.db.WithContext(ctx).Table(src.Table)
	dateCol := quoteIdent(src.DateColumn)
	if filter.From != nil {
		q = q.Where(dateCol+" >= ?", filter.From.Format("2006-01-02"))
	}
	if filter.To != nil {
		q = q.Where(dateCol+" <= ?", filter.To.Format("2006-01-02"))
	}
	if filter.AccountRef != "" {
		if src.AccountColumn == "" {
			return nil, nil, fmt.Errorf("source %s has no account column", sourceName)
		}
		q = q.Where(quoteIdent(src.AccountColumn)+" = ?", filter.AccountRef)
	}
	if len(filter.Statuses) > 0 && src.StatusColumn != "" {
		statusCol := quoteIdent(src.StatusColumn)
		values := make([]string, 0, len(filter.Statuses))
		includeNull := false
		for _, st := range filter.Statuses {
			values = append(values, string(st))
			if st == models.RecordStatusUnmatched {
				includeNull = true
			}
		}
		if includeNull {
			q = q.Where("("+statusCol+" IN ? OR "+statusCol+" IS NULL OR "+statusCol+" = '')", values)
		} else {
			q = q.Where(statusCol+" IN ?", values)
		}
	}

	var raw []map[string]any
	if err := q.Order(dateCol + " ASC").Order(quoteIdent(src.IDColumn) + " ASC").Find(&raw).Error; err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", sourceName, err)
	}

	records := make([]models.FinancialRecord, 0, len(raw))
	var skipped []models.SkippedRecord
	for _, row := range raw {
		rec, err := recordFromRow(src, row)
		if err != nil {
			skipped = append(skipped, models.SkippedRecord{RecordID: rec.ID, Source: sourceName, Reason: err.Error()})
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

func recordFromRow(src models.RecordSource, row map[string]any) (models.FinancialRecord, error) {
	rec := models.FinancialRecord{
		ID:           strings.TrimSpace(valueString(row[src.IDColumn])),
		Source:       src.Name,
		SplitAmounts: src.SplitAmounts(),
		Amount:       decimal.Zero,
		Debit:        decimal.Zero,
		Credit:       decimal.Zero,
	}
	date, err := valueTime(row[src.DateColumn])
	if err != nil {
		return rec, err
	}
	rec.Date = date

	if rec.SplitAmounts {
		debit, hasDebit, err := valueDecimal(row[src.DebitColumn])
		if err != nil {
			return rec, err
		}
		credit, hasCredit, err := valueDecimal(row[src.CreditColumn])
		if err != nil {
			return rec, err
		}
		if !hasDebit && !hasCredit {
			return rec, errors.New("missing debit and credit")
		}
		rec.Debit, rec.Credit = debit, credit
	} else {
		amount, ok, err := valueDecimal(row[src.AmountColumn])
		if err != nil {
			return rec, err
		}
		if !ok {
			return rec, errors.New("missing amount")
		}
		rec.Amount = amount
	}

	if src.DescriptionColumn != "" {
		rec.Description = valueString(row[src.DescriptionColumn])
	}
	if src.AccountColumn != "" {
		rec.AccountRef = valueString(row[src.AccountColumn])
	}
	if src.LinkColumn != "" {
		rec.LinkedID = valueString(row[src.LinkColumn])
	}
	if src.StatusColumn != "" {
		st, err := models.ParseRecordStatus(valueString(row[src.StatusColumn]))
		if err != nil {
			return rec, err
		}
		rec.Status = st
	} else {
		rec.Status = models.RecordStatusUnmatched
	}
	if src.BalanceColumn != "" {
		bal, ok, err := valueDecimal(row[src.BalanceColumn])
		if err != nil {
			return rec, err
		}
		if ok {
			rec.DeclaredBalance = &bal
		}
	}
	return rec, nil
}

func (s *GormRecordStore) Snapshot(ctx context.Context, refs []models.RecordRef) ([]RecordSnapshot, error) {
	bySource := map[string][]string{}
	for _, ref := range refs {
		bySource[ref.Source] = append(bySource[ref.Source], ref.ID)
	}
	var out []RecordSnapshot
	for _, name := range utils.SortedKeys(bySource) {
		src, err := s.registry.Get(name)
		if err != nil {
			return nil, err
		}
		q := s.db.WithContext(ctx).Table(src.Table)
		if s.inTx {
			// rows about to be changed stay locked until commit
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var raw []map[string]any
		err = q.Where(quoteIdent(src.IDColumn)+" IN ?", utils.UniqueSlice(bySource[name])).
			Find(&raw).Error
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", name, err)
		}
		for _, row := range raw {
			rec, _ := recordFromRow(src, row)
			out = append(out, RecordSnapshot{
				Ref:    models.RecordRef{Source: name, ID: rec.ID},
				Record: rec,
				Raw:    normalizeRow(row),
			})
		}
	}
	return out, nil
}

func (s *GormRecordStore) SaveBackup(ctx context.Context, rows []models.ReconciliationBackup) error {
	if len(rows) == 0 {
		return nil
	}
	return mapMySQLError(s.db.WithContext(ctx).CreateInBatches(rows, 200).Error)
}

func (s *GormRecordStore) Apply(ctx context.Context, change models.Change) (int, error) {
	src, err := s.registry.Get(change.Ref.Source)
	if err != nil {
		return 0, err
	}
	switch change.Kind {
	case models.ChangeKindLink:
		if change.LinkTo == nil {
			return 0, errors.New("link change without target")
		}
		target, err := s.registry.Get(change.LinkTo.Source)
		if err != nil {
			return 0, err
		}
		if err := s.update(ctx, src, change.Ref.ID, linkValues(src, change.LinkTo.ID)); err != nil {
			return 0, err
		}
		if err := s.update(ctx, target, change.LinkTo.ID, linkValues(target, change.Ref.ID)); err != nil {
			return 1, err
		}
		return 2, nil
	case models.ChangeKindSetStatus:
		if src.StatusColumn == "" {
			return 0, fmt.Errorf("source %s has no status column", src.Name)
		}
		if !change.Status.IsValid() {
			return 0, fmt.Errorf("invalid status %q", change.Status)
		}
		return 1, s.update(ctx, src, change.Ref.ID, map[string]any{src.StatusColumn: string(change.Status)})
	case models.ChangeKindSetDeclaredBalance:
		if src.BalanceColumn == "" {
			return 0, fmt.Errorf("source %s has no balance column", src.Name)
		}
		return 1, s.update(ctx, src, change.Ref.ID, map[string]any{src.BalanceColumn: change.Balance})
	case models.ChangeKindDelete:
		query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quoteIdent(src.Table), quoteIdent(src.IDColumn))
		res := s.db.WithContext(ctx).Exec(query, change.Ref.ID)
		if res.Error != nil {
			return 0, mapMySQLError(res.Error)
		}
		if res.RowsAffected == 0 {
			return 1, fmt.Errorf("%w: %s", models.ErrRecordNotFound, change.Ref)
		}
		return 1, nil
	default:
		return 0, fmt.Errorf("unknown change kind %q", change.Kind)
	}
}

// linkValues sets the link column and the matched status, whichever the source has.
func linkValues(src models.RecordSource, linkTo string) map[string]any {
	values := map[string]any{}
	if src.LinkColumn != "" {
		values[src.LinkColumn] = linkTo
	}
	if src.StatusColumn != "" {
		values[src.StatusColumn] = string(models.RecordStatusMatched)
	}
	return values
}

func (s *GormRecordStore) update(ctx context.Context, src models.RecordSource, id string, values map[string]any) error {
	if len(values) == 0 {
		return fmt.Errorf("source %s has no link or status column", src.Name)
	}
	err := s.db.WithContext(ctx).Table(src.Table).
		Where(quoteIdent(src.IDColumn)+" = ?", id).
		Updates(values).Error
	return mapMySQLError(err)
}

// RecordFindings persists review rows produced by a run.
func (s *GormRecordStore) RecordFindings(ctx context.Context, findings []models.ReconciliationReport) error {
	if len(findings) == 0 {
		return nil
	}
	return mapMySQLError(s.db.WithContext(ctx).CreateInBatches(findings, 200).Error)
}

func (s *GormRecordStore) SaveRun(ctx context.Context, run *models.ReconciliationRun) error {
	return mapMySQLError(s.db.WithContext(ctx).Create(run).Error)
}

// LoadBackup returns the rows of one backup in the order they were written.
func (s *GormRecordStore) LoadBackup(ctx context.Context, backupName string) ([]models.ReconciliationBackup, error) {
	var rows []models.ReconciliationBackup
	if err := s.db.WithContext(ctx).Where("backup_name = ?", backupName).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrBackupNotFound, backupName)
	}
	return rows, nil
}

// RestoreBackup puts every backed-up row back as it was: updated rows get their old column
// values, deleted rows are re-inserted. Runs in one transaction.
func (s *GormRecordStore) RestoreBackup(ctx context.Context, backupName string) (int, error) {
	rows, err := s.LoadBackup(ctx, backupName)
	if err != nil {
		return 0, err
	}
	restored := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.lock.hold(tx, func() error {
			n, err := restoreRows(tx, s.registry, rows, backupName)
			restored = n
			return err
		})
	})
	if err != nil {
		return 0, err
	}
	return restored, nil
}

// restoreRows writes the backed-up rows and marks the runs that produced them as restored.
func restoreRows(tx *gorm.DB, registry models.SourceRegistry, rows []models.ReconciliationBackup, backupName string) (int, error) {
	restored := 0
	for _, b := range rows {
		src, err := registry.Get(b.SourceTable)
		if err != nil {
			return restored, err
		}
		values := map[string]any{}
		if err := utils.UnmarshalFromJSON([]byte(b.Payload), &values); err != nil {
			return restored, fmt.Errorf("backup row %d: %w", b.ID, err)
		}
		for k := range values {
			if !models.IsValidIdentifier(k) {
				delete(values, k)
			}
		}
		var count int64
		if err := tx.Table(src.Table).Where(quoteIdent(src.IDColumn)+" = ?", b.RecordId).Count(&count).Error; err != nil {
			return restored, err
		}
		if count > 0 {
			update := make(map[string]any, len(values))
			for k, v := range values {
				if k != src.IDColumn {
					update[k] = v
				}
			}
			if err := tx.Table(src.Table).Where(quoteIdent(src.IDColumn)+" = ?", b.RecordId).Updates(update).Error; err != nil {
				return restored, mapMySQLError(err)
			}
		} else if err := tx.Table(src.Table).Create(values).Error; err != nil {
			return restored, mapMySQLError(err)
		}
		restored++
	}
	err := tx.Model(&models.ReconciliationRun{}).
		Where("backup_name = ?", backupName).
		Update("status", models.RunStatusRestored).Error
	return restored, err
}


// mapMySQLError folds key and foreign-key violations into ErrConstraintViolation.
func mapMySQLError(err error) error {
	if err == nil {
		return nil
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1062, 1451, 1452:
			return fmt.Errorf("%w: %v", models.ErrConstraintViolation, err)
		}
	}
	return err
}

