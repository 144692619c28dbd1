package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xelth-com/odoobridge/internal/export"
	"github.com/xelth-com/odoobridge/internal/models"
	"github.com/xelth-com/odoobridge/internal/services/odoo"
)

// Report is the outcome of one reconciliation run
type Report struct {
	RunID     string             `json:"run_id"`
	Checked   int                `json:"checked"`
	Created   int                `json:"created"`
	Unchanged int                `json:"unchanged"`
	Errors    []export.ItemError `json:"errors,omitempty"`
	Duration  time.Duration      `json:"duration"`
}

// Run reconciles the given remote orders. A failing order is reported and
// the run goes on with the next one.
func (e *Engine) Run(ctx context.Context, orderIDs []int64) (*Report, error) {
	started := time.Now()
	report := &Report{RunID: uuid.New().String()}
	logger := e.log.WithField("run_id", report.RunID)
	logger.Infof("🔄 Reconciling %d orders", len(orderIDs))

	batch, err := e.PreloadOrders(ctx, orderIDs)
	if err != nil {
		report.Duration = time.Since(started)
		e.save(ctx, report, started, err)
		return report, err
	}

	for _, id := range orderIDs {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(started)
			e.save(ctx, report, started, err)
			return report, err
		}

		created, err := batch.CheckAndFixInvoice(ctx, id)
		report.Checked++
		switch {
		case err != nil:
			item := export.ItemError{RemoteOrderID: id, Kind: KindOf(err), Message: err.Error()}
			report.Errors = append(report.Errors, item)
			logger.WithField("order_id", id).Errorf("❌ Reconciliation failed: %v", err)
		case created:
			report.Created++
		default:
			report.Unchanged++
		}
	}

	report.Duration = time.Since(started)
	e.save(ctx, report, started, nil)
	logger.Infof("✅ Reconciliation done: %d checked, %d invoices created, %d errors in %v",
		report.Checked, report.Created, len(report.Errors), report.Duration)
	return report, nil
}

func (e *Engine) save(ctx context.Context, r *Report, started time.Time, runErr error) {
	err := export.SaveRun(context.WithoutCancel(ctx), e.db, export.RunSummary{
		RunID:     r.RunID,
		Kind:      models.SyncRunReconcile,
		StartedAt: started,
		Created:   r.Created,
		Skipped:   r.Unchanged,
		Errors:    r.Errors,
		Err:       runErr,
	})
	if err != nil {
		e.log.WithField("run_id", r.RunID).Warnf("failed to save reconciliation history: %v", err)
	}
}

// KindOf names the failure kind of a reconciliation error
func KindOf(err error) string {
	var rerr *Error
	if errors.As(err, &rerr) {
		return string(rerr.Kind)
	}
	if odoo.IsRemote(err) {
		return export.KindServer
	}
	return export.Kind(err)
}

// String summarises the report for logs and the CLI
func (r *Report) String() string {
	return fmt.Sprintf("run %s: %d checked, %d created, %d unchanged, %d errors",
		r.RunID, r.Checked, r.Created, r.Unchanged, len(r.Errors))
}
