package models

import (
	"time"
)

// SyncStatus is the state of one mapping record.
// DELETED is a tombstone: the row stays so re-creation can be decided later.
type SyncStatus string

const (
	SyncStatusNotSynced    SyncStatus = "not_synced"
	SyncStatusSynced       SyncStatus = "synced"
	SyncStatusSyncExcluded SyncStatus = "sync_excluded"
	SyncStatusDeleted      SyncStatus = "deleted"
)

// Valid reports whether s is one of the four known states
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusNotSynced, SyncStatusSynced, SyncStatusSyncExcluded, SyncStatusDeleted:
		return true
	}
	return false
}

// OdooIDMap records the correspondence between a local entity and a remote Odoo object
type OdooIDMap struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	EntityType       string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_odoo_id_map_key,priority:1" json:"entity_type"`
	RemoteModel      string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_odoo_id_map_key,priority:2;index:idx_odoo_id_map_remote,priority:1" json:"remote_model"`
	ExportVariant    string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_odoo_id_map_key,priority:3" json:"export_variant"`
	LocalID          int64      `gorm:"not null;uniqueIndex:idx_odoo_id_map_key,priority:4" json:"local_id"`
	RemoteID         *int64     `gorm:"index:idx_odoo_id_map_remote,priority:2" json:"remote_id"`
	PreviousRemoteID *int64     `json:"previous_remote_id,omitempty"`
	Status           SyncStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	LastError        *string    `gorm:"type:text" json:"last_error,omitempty"`
	LastSyncedAt     *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName specifies the table name
func (OdooIDMap) TableName() string {
	return "odoo_id_map"
}

// HasRemote reports whether the record points at a live remote object
func (m *OdooIDMap) HasRemote() bool {
	return m.RemoteID != nil && *m.RemoteID != 0
}
