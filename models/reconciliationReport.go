package models

import "time"

// ReconciliationReport stores findings of a reconciliation run for later review.
type ReconciliationReport struct {
	ID            int         `gorm:"primary_key" json:"id"`
	RunId         string      `gorm:"size:64;index;not null" json:"run_id"`
	FindingType   FindingType `gorm:"size:50;index;not null" json:"finding_type"` // e.g. BALANCE_MISMATCH, DUPLICATE_GROUP
	SourceTable   string      `gorm:"size:100;index;not null" json:"source_table"`
	RecordId      string      `gorm:"size:100;index;not null" json:"record_id"`
	Details       string      `gorm:"type:text" json:"details"` // human-readable mismatch detail
	CorrelationId string      `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time   `gorm:"autoCreateTime" json:"created_at"`
}
