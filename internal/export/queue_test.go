package export

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/odoobridge/internal/models"
	"github.com/xelth-com/odoobridge/internal/services/odoo"
	"gorm.io/gorm"
)

func TestEnqueue_CoalescesPending(t *testing.T) {
	ctx := context.Background()
	stub := newStub("x.widget")
	h := newHarness(t, stub)

	first, created, err := h.orch.Enqueue(ctx, stub.key, 1, map[string]interface{}{"source": "test"})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := h.orch.Enqueue(ctx, stub.key, 1, nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	depth, err := h.orch.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)
}

func TestEnqueue_UnknownExporter(t *testing.T) {
	stub := newStub("x.widget")
	h := newHarness(t)
	_, _, err := h.orch.Enqueue(context.Background(), stub.key, 1, nil)
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func enqueueAll(t *testing.T, h *harness, stub *stubExporter, ids ...int64) {
	for _, id := range ids {
		_, _, err := h.orch.Enqueue(context.Background(), stub.key, id, nil)
		require.NoError(t, err)
	}
}

func queueRow(t *testing.T, h *harness, localID int64) models.SyncQueue {
	var row models.SyncQueue
	require.NoError(t, h.db.Where("local_id = ?", localID).First(&row).Error)
	return row
}

func TestSyncAndFlush_FIFOAndHistory(t *testing.T) {
	ctx := context.Background()
	stub := newStub("x.widget")
	for _, id := range []int64{3, 1, 2} {
		stub.put(&widget{ID: id, Name: "w"})
	}
	h := newHarness(t, stub)
	enqueueAll(t, h, stub, 3, 1, 2)

	report, err := h.orch.SyncAndFlush(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 3, report.Created)
	assert.Empty(t, report.Errors)

	// remote ids follow queue order, not local id order
	ids, err := h.store.GetIDMap(ctx, stub.key, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Less(t, ids[3], ids[1])
	assert.Less(t, ids[1], ids[2])

	assert.Equal(t, models.QueueStatusCompleted, queueRow(t, h, 1).Status)

	var history models.SyncHistory
	require.NoError(t, h.db.Where("run_id = ?", report.RunID).First(&history).Error)
	assert.Equal(t, models.SyncRunFlush, history.Kind)
	assert.Equal(t, "success", history.Status)
	assert.Equal(t, 3, history.Created)
}

func TestSyncAndFlush_IsolatesFailures(t *testing.T) {
	ctx := context.Background()
	stub := newStub("x.widget")
	stub.put(&widget{ID: 1, Name: "ok"})
	stub.put(&widget{ID: 2, Name: "bad"})
	stub.put(&widget{ID: 3, Name: "ok"})
	stub.put(&widget{ID: 4, Name: "ok", Excluded: true})
	h := newHarness(t, stub)
	h.fake.OnCreate = func(model string, values map[string]interface{}) error {
		if values["name"] == "bad" {
			return odoo.Fault("ValidationError: bad widget")
		}
		return nil
	}
	enqueueAll(t, h, stub, 1, 2, 3, 4)

	report, err := h.orch.SyncAndFlush(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Processed)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, int64(2), report.Errors[0].LocalID)
	assert.Equal(t, KindServer, report.Errors[0].Kind)

	// server errors are retried later
	failed := queueRow(t, h, 2)
	assert.Equal(t, models.QueueStatusPending, failed.Status)
	assert.Equal(t, 1, failed.RetryCount)
	assert.True(t, failed.ScheduledAt.After(time.Now()))
	require.NotNil(t, failed.ErrorMessage)
	assert.Contains(t, *failed.ErrorMessage, "bad widget")

	assert.Equal(t, models.QueueStatusExcluded, queueRow(t, h, 4).Status)

	var history models.SyncHistory
	require.NoError(t, h.db.Where("run_id = ?", report.RunID).First(&history).Error)
	assert.Equal(t, "partial", history.Status)
	assert.Equal(t, 1, history.Errors)

	// not due yet, so a second flush has nothing to do
	again, err := h.orch.SyncAndFlush(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, again.Processed)
}

func TestSyncAndFlush_StrictStopsAtFirstError(t *testing.T) {
	ctx := context.Background()
	stub := newStub("x.widget")
	stub.put(&widget{ID: 1, Name: "bad"})
	stub.put(&widget{ID: 2, Name: "ok"})
	h := newHarness(t, stub)
	h.fake.OnCreate = func(model string, values map[string]interface{}) error {
		if values["name"] == "bad" {
			return odoo.Fault("boom")
		}
		return nil
	}
	enqueueAll(t, h, stub, 1, 2)

	report, err := h.orch.SyncAndFlush(ctx, true)
	require.ErrorIs(t, err, ErrServer)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, models.QueueStatusPending, queueRow(t, h, 2).Status)
	assert.Equal(t, 1, h.fake.CountOps("create", "x.widget"))
}

func TestSyncAndFlush_LogicErrorsFailImmediately(t *testing.T) {
	ctx := context.Background()
	stub := newStub("x.widget")
	h := newHarness(t, stub)
	// widget 9 does not exist locally
	enqueueAll(t, h, stub, 9)

	report, err := h.orch.SyncAndFlush(ctx, false)
	require.NoError(t, err)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, KindGeneric, report.Errors[0].Kind)
	row := queueRow(t, h, 9)
	assert.Equal(t, models.QueueStatusFailed, row.Status)
	assert.Equal(t, 1, row.RetryCount)
	require.NotNil(t, row.ErrorMessage)
	assert.Contains(t, *row.ErrorMessage, "not found")
}

func TestSyncAndFlush_QueueWriteFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	stub := newStub("x.widget")
	h := newHarness(t, stub)
	enqueueAll(t, h, stub, 9)

	require.NoError(t, h.db.Callback().Update().Before("gorm:update").Register("test:fail_queue", func(tx *gorm.DB) {
		if tx.Statement.Table == (models.SyncQueue{}).TableName() {
			tx.AddError(errors.New("disk full"))
		}
	}))

	_, err := h.orch.SyncAndFlush(ctx, false)
	require.NoError(t, err)

	var warned bool
	for _, entry := range h.logs.AllEntries() {
		if entry.Level == logrus.WarnLevel && strings.Contains(entry.Message, "disk full") {
			warned = true
			assert.Contains(t, entry.Data, "queue_id")
		}
	}
	assert.True(t, warned)
	assert.Equal(t, models.QueueStatusPending, queueRow(t, h, 9).Status)
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, time.Minute, retryDelay(1))
	assert.Equal(t, 4*time.Minute, retryDelay(3))
	assert.Equal(t, time.Hour, retryDelay(12))
}
