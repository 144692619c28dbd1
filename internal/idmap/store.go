// Package idmap persists the correspondence between local entities and the
// Odoo objects they were exported to.
//
// A mapping row is keyed by (entity type, remote model, export variant, local id)
// and is never deleted: removal on the Odoo side turns it into a DELETED
// tombstone that remembers the last remote id.
package idmap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xelth-com/odoobridge/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNullRemoteID is returned when SYNCED is requested without a remote id
	ErrNullRemoteID = errors.New("synced mapping requires a remote id")
	// ErrInvalidStatus is returned for a status outside the four known states
	ErrInvalidStatus = errors.New("invalid sync status")
	// ErrRemoteIDConflict is returned when a synced mapping would switch to another remote id
	ErrRemoteIDConflict = errors.New("mapping already points at another remote id")
)

// Key identifies one mapping namespace
type Key struct {
	EntityType  string `json:"entity_type"`
	RemoteModel string `json:"remote_model"`
	Variant     string `json:"export_variant"`
}

// NewKey builds a Key
func NewKey(entityType, remoteModel, variant string) Key {
	return Key{EntityType: entityType, RemoteModel: remoteModel, Variant: variant}
}

func (k Key) String() string {
	return k.EntityType + "/" + k.RemoteModel + "/" + k.Variant
}

// ConflictError carries both ids of a rejected remote id change
type ConflictError struct {
	Key      Key
	LocalID  int64
	Existing int64
	Proposed int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s local %d: mapped to remote %d, refusing %d", e.Key, e.LocalID, e.Existing, e.Proposed)
}

// Is matches ErrRemoteIDConflict
func (e *ConflictError) Is(target error) bool {
	return target == ErrRemoteIDConflict
}

// Store is the gorm-backed Mapping Store
type Store struct {
	db  *gorm.DB
	log *logrus.Logger
}

// NewStore creates a Store
func NewStore(db *gorm.DB, log *logrus.Logger) *Store {
	return &Store{db: db, log: log}
}

// GetIDMap returns the remote id of every local id that is currently SYNCED.
// Local ids that were never synced, are excluded, or tombstoned are absent.
func (s *Store) GetIDMap(ctx context.Context, key Key, localIDs []int64) (map[int64]int64, error) {
	result := make(map[int64]int64, len(localIDs))
	if len(localIDs) == 0 {
		return result, nil
	}

	var rows []models.OdooIDMap
	err := s.scoped(ctx, key).
		Where("local_id IN ? AND status = ? AND remote_id IS NOT NULL", localIDs, models.SyncStatusSynced).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read id map %s: %w", key, err)
	}

	for _, row := range rows {
		result[row.LocalID] = *row.RemoteID
	}
	return result, nil
}

// Get returns the full mapping record, or nil when none exists yet
func (s *Store) Get(ctx context.Context, key Key, localID int64) (*models.OdooIDMap, error) {
	var row models.OdooIDMap
	err := s.scoped(ctx, key).Where("local_id = ?", localID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping %s/%d: %w", key, localID, err)
	}
	return &row, nil
}

// SetSyncStatus upserts the status of many local ids at once. A zero remote id
// stands for null and is rejected for SYNCED. A synced mapping is never moved to
// a different remote id; it has to be tombstoned first.
//
// DELETED moves the remote id into previous_remote_id. NOT_SYNCED and
// SYNC_EXCLUDED with a null id keep the remote id already on record so a later
// export writes to the existing object instead of creating a second one.
func (s *Store) SetSyncStatus(ctx context.Context, key Key, remoteIDs map[int64]int64, status models.SyncStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if len(remoteIDs) == 0 {
		return nil
	}

	localIDs := make([]int64, 0, len(remoteIDs))
	for localID, remoteID := range remoteIDs {
		if status == models.SyncStatusSynced && remoteID == 0 {
			return fmt.Errorf("%s local %d: %w", key, localID, ErrNullRemoteID)
		}
		localIDs = append(localIDs, localID)
	}
	sort.Slice(localIDs, func(i, j int) bool { return localIDs[i] < localIDs[j] })

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []models.OdooIDMap
		err := tx.Where("entity_type = ? AND remote_model = ? AND export_variant = ? AND local_id IN ?",
			key.EntityType, key.RemoteModel, key.Variant, localIDs).
			Find(&existing).Error
		if err != nil {
			return fmt.Errorf("failed to read mappings %s: %w", key, err)
		}
		byLocal := make(map[int64]models.OdooIDMap, len(existing))
		for _, row := range existing {
			byLocal[row.LocalID] = row
		}

		now := time.Now()
		for _, localID := range localIDs {
			prev, found := byLocal[localID]
			row, err := nextRow(key, localID, remoteIDs[localID], status, prev, found, now)
			if err != nil {
				return err
			}
			err = tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "entity_type"}, {Name: "remote_model"}, {Name: "export_variant"}, {Name: "local_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"remote_id", "previous_remote_id", "status", "last_error", "last_synced_at", "updated_at",
				}),
			}).Create(&row).Error
			if err != nil {
				return fmt.Errorf("failed to upsert mapping %s/%d: %w", key, localID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"entity_type":  key.EntityType,
		"remote_model": key.RemoteModel,
		"variant":      key.Variant,
		"count":        len(localIDs),
		"status":       status,
	}).Debug("mapping status updated")
	return nil
}

// nextRow computes the new state of one mapping row
func nextRow(key Key, localID, remoteID int64, status models.SyncStatus, prev models.OdooIDMap, found bool, now time.Time) (models.OdooIDMap, error) {
	row := models.OdooIDMap{
		EntityType:    key.EntityType,
		RemoteModel:   key.RemoteModel,
		ExportVariant: key.Variant,
		LocalID:       localID,
		Status:        status,
		UpdatedAt:     now,
	}
	if found {
		row.PreviousRemoteID = prev.PreviousRemoteID
		row.LastSyncedAt = prev.LastSyncedAt
	}

	switch status {
	case models.SyncStatusSynced:
		if found && prev.Status == models.SyncStatusSynced && prev.HasRemote() && *prev.RemoteID != remoteID {
			return row, &ConflictError{Key: key, LocalID: localID, Existing: *prev.RemoteID, Proposed: remoteID}
		}
		row.RemoteID = &remoteID
		row.LastSyncedAt = &now

	case models.SyncStatusDeleted:
		last := remoteID
		if last == 0 && found && prev.HasRemote() {
			last = *prev.RemoteID
		}
		if last != 0 {
			row.PreviousRemoteID = &last
		}
		row.LastSyncedAt = &now

	default:
		if remoteID != 0 {
			row.RemoteID = &remoteID
		} else if found && prev.Status != models.SyncStatusDeleted {
			row.RemoteID = prev.RemoteID
		}
	}
	return row, nil
}

// RecordError stores the last failure text on a mapping, creating it as
// NOT_SYNCED when it does not exist yet. The status is left untouched.
func (s *Store) RecordError(ctx context.Context, key Key, localID int64, message string) error {
	row := models.OdooIDMap{
		EntityType:    key.EntityType,
		RemoteModel:   key.RemoteModel,
		ExportVariant: key.Variant,
		LocalID:       localID,
		Status:        models.SyncStatusNotSynced,
		LastError:     &message,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entity_type"}, {Name: "remote_model"}, {Name: "export_variant"}, {Name: "local_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_error", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to record error on %s/%d: %w", key, localID, err)
	}
	return nil
}

// MappedEntities is the reverse lookup result for one remote id:
// entity type -> export variant -> local id
type MappedEntities map[string]map[string]int64

// FindMappedEntities returns, per remote id, every local entity SYNCED to it.
// Remote ids nothing maps to are absent from the result.
func (s *Store) FindMappedEntities(ctx context.Context, remoteModel string, remoteIDs []int64) (map[int64]MappedEntities, error) {
	result := make(map[int64]MappedEntities, len(remoteIDs))
	if len(remoteIDs) == 0 {
		return result, nil
	}

	var rows []models.OdooIDMap
	err := s.db.WithContext(ctx).
		Where("remote_model = ? AND remote_id IN ? AND status = ?", remoteModel, remoteIDs, models.SyncStatusSynced).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to reverse-map %s: %w", remoteModel, err)
	}

	for _, row := range rows {
		remoteID := *row.RemoteID
		byType, ok := result[remoteID]
		if !ok {
			byType = MappedEntities{}
			result[remoteID] = byType
		}
		if byType[row.EntityType] == nil {
			byType[row.EntityType] = map[string]int64{}
		}
		byType[row.EntityType][row.ExportVariant] = row.LocalID
	}
	return result, nil
}

func (s *Store) scoped(ctx context.Context, key Key) *gorm.DB {
	return s.db.WithContext(ctx).
		Where("entity_type = ? AND remote_model = ? AND export_variant = ?", key.EntityType, key.RemoteModel, key.Variant)
}
