package export

import (
	"context"
	"encoding/json"
	"time"

	"github.com/xelth-com/odoobridge/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RunSummary is one batch run as written to sync_history
type RunSummary struct {
	RunID     string
	Kind      string
	StartedAt time.Time
	Created   int
	Updated   int
	Skipped   int
	Errors    []ItemError
	Err       error // run-level failure, e.g. the queue could not be read
}

// SaveRun appends a sync_history row
func SaveRun(ctx context.Context, db *gorm.DB, s RunSummary) error {
	completed := time.Now()
	total := s.Created + s.Updated + s.Skipped + len(s.Errors)

	history := models.SyncHistory{
		RunID:       s.RunID,
		Kind:        s.Kind,
		Status:      models.StatusFor(len(s.Errors), total),
		StartedAt:   s.StartedAt,
		CompletedAt: &completed,
		Duration:    int(completed.Sub(s.StartedAt).Milliseconds()),
		Created:     s.Created,
		Updated:     s.Updated,
		Skipped:     s.Skipped,
		Errors:      len(s.Errors),
	}

	switch {
	case s.Err != nil:
		history.ErrorDetail = s.Err.Error()
		if len(s.Errors) == 0 {
			history.Status = "error"
		}
	case len(s.Errors) > 0:
		history.ErrorDetail = s.Errors[0].Message
	}

	if len(s.Errors) > 0 {
		raw, err := json.Marshal(map[string]interface{}{"errors": s.Errors})
		if err == nil {
			history.DebugInfo = datatypes.JSON(raw)
		}
	}

	return db.WithContext(ctx).Create(&history).Error
}
