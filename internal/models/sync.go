package models

import (
	"time"

	"gorm.io/datatypes"
)

// Queue row states
const (
	QueueStatusPending   = "pending"
	QueueStatusCompleted = "completed"
	QueueStatusFailed    = "failed"
	QueueStatusExcluded  = "excluded"
)

// SyncQueue represents a delayed export request drained by SyncAndFlush in id order
type SyncQueue struct {
	ID            int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	EntityType    string         `gorm:"type:varchar(64);not null;index:idx_sync_queue_key" json:"entity_type"`
	RemoteModel   string         `gorm:"type:varchar(64);not null;index:idx_sync_queue_key" json:"remote_model"`
	ExportVariant string         `gorm:"type:varchar(64);not null;index:idx_sync_queue_key" json:"export_variant"`
	LocalID       int64          `gorm:"not null;index:idx_sync_queue_key" json:"local_id"`
	Payload       datatypes.JSON `json:"payload"` // origin info, e.g. broker message id
	RetryCount    int            `gorm:"default:0" json:"retry_count"`
	MaxRetries    int            `gorm:"default:3" json:"max_retries"`
	ScheduledAt   time.Time      `gorm:"index:idx_sync_queue_pending" json:"scheduled_at"`
	ProcessedAt   *time.Time     `json:"processed_at"`
	Status        string         `gorm:"type:varchar(20);default:'pending';index:idx_sync_queue_pending" json:"status"`
	ErrorMessage  *string        `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// TableName specifies the table name
func (SyncQueue) TableName() string {
	return "sync_queue"
}
