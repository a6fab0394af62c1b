package models

import (
	"gorm.io/gorm"
)

// MigrateTable creates the bookkeeping tables owned by this repo. Source tables
// (receipts, banking_transactions, ...) are never migrated here.
func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&ReconciliationBackup{},
		&ReconciliationReport{},
		&ReconciliationRun{},
	)
}
