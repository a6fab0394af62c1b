package models

import "time"

// ReconciliationBackup is a pre-change copy of one source row, written before a write-mode run touches it.
// Payload holds the full row as JSON so restore-backup can put it back column by column.
type ReconciliationBackup struct {
	ID          int       `gorm:"primary_key" json:"id"`
	BackupName  string    `gorm:"size:100;index;not null" json:"backup_name"`
	RunId       string    `gorm:"size:64;index;not null" json:"run_id"`
	SourceTable string    `gorm:"size:100;not null" json:"source_table"`
	RecordId    string    `gorm:"size:100;not null" json:"record_id"`
	ChangeKind  string    `gorm:"size:50;not null" json:"change_kind"`
	Payload     string    `gorm:"type:longtext" json:"payload"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
