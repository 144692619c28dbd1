package models

import (
	"time"

	"gorm.io/datatypes"
)

// Run kinds recorded in sync_history
const (
	SyncRunFlush     = "flush"
	SyncRunReconcile = "reconcile"
)

// SyncHistory records each batch run against Odoo
type SyncHistory struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID       string         `gorm:"column:run_id;type:varchar(36);uniqueIndex" json:"runId"`
	Kind        string         `gorm:"column:kind;not null;index" json:"kind"`     // "flush", "reconcile"
	Status      string         `gorm:"column:status;not null;index" json:"status"` // "success", "error", "partial"
	StartedAt   time.Time      `gorm:"column:started_at;not null" json:"startedAt"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completedAt"`
	Duration    int            `gorm:"column:duration;default:0" json:"duration"` // milliseconds
	Created     int            `gorm:"column:created;default:0" json:"created"`
	Updated     int            `gorm:"column:updated;default:0" json:"updated"`
	Skipped     int            `gorm:"column:skipped;default:0" json:"skipped"`
	Errors      int            `gorm:"column:errors;default:0" json:"errors"`
	ErrorDetail string         `gorm:"column:error_detail;type:text" json:"errorDetail"`
	DebugInfo   datatypes.JSON `gorm:"column:debug_info" json:"debugInfo"` // per-item error records
	CreatedAt   time.Time      `gorm:"column:created_at" json:"-"`
	UpdatedAt   time.Time      `gorm:"column:updated_at" json:"-"`
}

// TableName specifies the table name
func (SyncHistory) TableName() string {
	return "sync_history"
}

// StatusFor derives the run status from error and total counts
func StatusFor(errors, total int) string {
	switch {
	case errors == 0:
		return "success"
	case errors >= total:
		return "error"
	}
	return "partial"
}
