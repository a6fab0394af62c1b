package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReconciliationRun is the audit row of a write-mode run.
type ReconciliationRun struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	RunId              string          `gorm:"size:64;uniqueIndex;not null" json:"run_id"`
	Command            string          `gorm:"size:100;not null" json:"command"`
	Mode               Mode            `gorm:"size:20;not null" json:"mode"`
	Status             RunStatus       `gorm:"size:20;index;not null" json:"status"`
	BackupName         string          `gorm:"size:100;index" json:"backup_name"`
	Planned            int             `json:"planned"`
	Applied            int             `json:"applied"`
	StatementsExecuted int             `json:"statements_executed"`
	BeforeCount        int64           `json:"before_count"`
	BeforeSum          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"before_sum"`
	AfterCount         int64           `json:"after_count"`
	AfterSum           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"after_sum"`
	LastError          *string         `gorm:"type:text" json:"last_error"`
	CorrelationId      string          `gorm:"size:64;index" json:"correlation_id"`
	StartedAt          time.Time       `json:"started_at"`
	FinishedAt         time.Time       `json:"finished_at"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func NewReconciliationRun(command string, report *ApplyReport, correlationId string, runErr error) *ReconciliationRun {
	run := &ReconciliationRun{
		RunId:              report.RunID,
		Command:            command,
		Mode:               report.Mode,
		Status:             RunStatusCommitted,
		BackupName:         report.BackupName,
		Planned:            report.Planned,
		Applied:            report.Applied,
		StatementsExecuted: report.StatementsExecuted,
		BeforeCount:        report.Before.Count,
		BeforeSum:          report.Before.Sum,
		AfterCount:         report.After.Count,
		AfterSum:           report.After.Sum,
		CorrelationId:      correlationId,
		StartedAt:          report.StartedAt,
		FinishedAt:         report.FinishedAt,
	}
	if report.RolledBack || runErr != nil {
		run.Status = RunStatusRolledBack
	}
	if runErr != nil {
		msg := runErr.Error()
		run.LastError = &msg
	}
	return run
}
