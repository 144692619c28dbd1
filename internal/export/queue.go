package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/odoobridge/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultMaxRetries = 3
	maxRetryDelay     = time.Hour
)

// FlushReport summarizes one SyncAndFlush run
type FlushReport struct {
	RunID     string        `json:"run_id"`
	Processed int           `json:"processed"`
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Deleted   int           `json:"deleted"`
	Skipped   int           `json:"skipped"`
	Errors    []ItemError   `json:"errors"`
	Duration  time.Duration `json:"duration"`
}

// Enqueue stores a delayed export request. A pending request for the same
// entity is reused; the bool reports whether a new row was created.
func (o *Orchestrator) Enqueue(ctx context.Context, key Key, localID int64, payload map[string]interface{}) (*models.SyncQueue, bool, error) {
	if _, err := o.registry.Get(key); err != nil {
		return nil, false, err
	}

	var existing models.SyncQueue
	err := o.db.WithContext(ctx).
		Where("entity_type = ? AND remote_model = ? AND export_variant = ? AND local_id = ? AND status = ?",
			key.EntityType, key.RemoteModel, key.Variant, localID, models.QueueStatusPending).
		Order("id").
		First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("failed to check queue: %w", err)
	}

	item := models.SyncQueue{
		EntityType:    key.EntityType,
		RemoteModel:   key.RemoteModel,
		ExportVariant: key.Variant,
		LocalID:       localID,
		MaxRetries:    defaultMaxRetries,
		ScheduledAt:   time.Now(),
		Status:        models.QueueStatusPending,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, false, fmt.Errorf("failed to encode queue payload: %w", err)
		}
		item.Payload = datatypes.JSON(raw)
	}

	if err := o.db.WithContext(ctx).Create(&item).Error; err != nil {
		return nil, false, fmt.Errorf("failed to enqueue %s/%d: %w", key, localID, err)
	}
	return &item, true, nil
}

// QueueDepth counts pending requests
func (o *Orchestrator) QueueDepth(ctx context.Context) (int64, error) {
	var n int64
	err := o.db.WithContext(ctx).Model(&models.SyncQueue{}).
		Where("status = ?", models.QueueStatusPending).
		Count(&n).Error
	return n, err
}

// SyncAndFlush drains due queue rows in id order. Each item is exported on
// its own; failures are collected in the report. In strict mode the first
// failure stops the run and is returned.
func (o *Orchestrator) SyncAndFlush(ctx context.Context, strict bool) (*FlushReport, error) {
	started := time.Now()
	report := &FlushReport{RunID: uuid.NewString()}
	logger := o.log.WithField("run_id", report.RunID)

	var (
		lastID   int64
		flushErr error
	)

drain:
	for {
		if err := ctx.Err(); err != nil {
			flushErr = err
			break
		}

		var batch []models.SyncQueue
		err := o.db.WithContext(ctx).
			Where("status = ? AND scheduled_at <= ? AND id > ?", models.QueueStatusPending, started, lastID).
			Order("id").
			Limit(o.batchSize).
			Find(&batch).Error
		if err != nil {
			flushErr = fmt.Errorf("failed to read queue: %w", err)
			break
		}
		if len(batch) == 0 {
			break
		}

		for i := range batch {
			item := &batch[i]
			lastID = item.ID
			key := Key{EntityType: item.EntityType, RemoteModel: item.RemoteModel, Variant: item.ExportVariant}

			res, err := o.export(ctx, key, item.LocalID, false)
			report.Processed++

			switch {
			case err == nil:
				switch res.Action {
				case EventCreate:
					report.Created++
				case EventWrite:
					report.Updated++
				case EventDelete:
					report.Deleted++
				default:
					report.Skipped++
				}
				o.settle(ctx, item, models.QueueStatusCompleted, "")
			case errors.Is(err, ErrSyncExcluded):
				report.Skipped++
				o.settle(ctx, item, models.QueueStatusExcluded, "")
			default:
				report.Errors = append(report.Errors, NewItemError(key, item.LocalID, err))
				o.retryLater(ctx, item, err)
				if strict {
					flushErr = err
					break drain
				}
			}
		}
	}

	report.Duration = time.Since(started)
	if err := SaveRun(ctx, o.db, RunSummary{
		RunID:     report.RunID,
		Kind:      models.SyncRunFlush,
		StartedAt: started,
		Created:   report.Created,
		Updated:   report.Updated + report.Deleted,
		Skipped:   report.Skipped,
		Errors:    report.Errors,
		Err:       flushErr,
	}); err != nil {
		logger.Warnf("failed to save sync history: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"processed": report.Processed,
		"created":   report.Created,
		"updated":   report.Updated,
		"skipped":   report.Skipped,
		"errors":    len(report.Errors),
		"duration":  report.Duration,
	}).Info("✅ Queue flush finished")
	return report, flushErr
}

func (o *Orchestrator) settle(ctx context.Context, item *models.SyncQueue, status, message string) {
	now := time.Now()
	updates := map[string]interface{}{
		"status":       status,
		"retry_count":  item.RetryCount,
		"processed_at": now,
	}
	if message != "" {
		updates["error_message"] = message
	} else {
		updates["error_message"] = nil
	}
	if err := o.db.WithContext(ctx).Model(item).Updates(updates).Error; err != nil {
		o.log.WithField("queue_id", item.ID).Warnf("failed to update queue row: %v", err)
	}
}

// retryLater reschedules server errors with a growing delay; logic errors and
// exhausted retries end as failed
func (o *Orchestrator) retryLater(ctx context.Context, item *models.SyncQueue, cause error) {
	retries := item.RetryCount + 1
	if !errors.Is(cause, ErrServer) || retries >= item.MaxRetries {
		item.RetryCount = retries
		o.settle(ctx, item, models.QueueStatusFailed, cause.Error())
		return
	}

	msg := cause.Error()
	err := o.db.WithContext(ctx).Model(item).Updates(map[string]interface{}{
		"retry_count":   retries,
		"scheduled_at":  time.Now().Add(retryDelay(retries)),
		"error_message": msg,
	}).Error
	if err != nil {
		o.log.WithField("queue_id", item.ID).Warnf("failed to reschedule queue row: %v", err)
	}
}

// retryDelay doubles from one minute up to an hour
func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 7 {
		return maxRetryDelay
	}
	d := time.Minute << (attempt - 1)
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

// String summarises the report for logs and the CLI
func (r *FlushReport) String() string {
	return fmt.Sprintf("run %s: %d processed, %d created, %d updated, %d deleted, %d skipped, %d errors",
		r.RunID, r.Processed, r.Created, r.Updated, r.Deleted, r.Skipped, len(r.Errors))
}
