package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/odoobridge/internal/export"
	"github.com/xelth-com/odoobridge/internal/idmap"
	"github.com/xelth-com/odoobridge/internal/reconcile"
)

func TestListenerCountsEventsPerKey(t *testing.T) {
	m := New()
	listen := m.Listener()
	key := idmap.NewKey("order", "sale.order", "default")

	listen(export.Event{Type: export.EventCreate, Key: key, LocalID: 1, RemoteID: 10})
	listen(export.Event{Type: export.EventWrite, Key: key, LocalID: 1, RemoteID: 10})
	listen(export.Event{Type: export.EventWrite, Key: key, LocalID: 2, RemoteID: 11})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Exports.WithLabelValues("CREATE", "order", "sale.order", "default")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Exports.WithLabelValues("WRITE", "order", "sale.order", "default")))
}

func TestObserveFlush(t *testing.T) {
	m := New()
	m.ObserveFlush(&export.FlushReport{
		Created:  2,
		Updated:  1,
		Skipped:  3,
		Errors:   []export.ItemError{{Kind: export.KindServer}},
		Duration: time.Second,
	}, 7)
	m.ObserveFlush(nil, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FlushItems.WithLabelValues("created")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.FlushItems.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlushItems.WithLabelValues("error")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.QueueBacklog))
}

func TestObserveReconcileLabelsErrorsByKind(t *testing.T) {
	m := New()
	m.ObserveReconcile(&reconcile.Report{
		Created:   1,
		Unchanged: 4,
		Errors: []export.ItemError{
			{RemoteOrderID: 5, Kind: string(reconcile.KindDuplicateOrder)},
			{RemoteOrderID: 6, Kind: string(reconcile.KindDuplicateOrder)},
		},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconcileOrders.WithLabelValues("created")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ReconcileOrders.WithLabelValues("unchanged")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReconcileOrders.WithLabelValues("duplicate_order")))
}

func TestHandlerExposesBridgeMetrics(t *testing.T) {
	m := New()
	m.BrokerMessages.WithLabelValues("queued").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `odoobridge_broker_messages_total{status="queued"} 1`)
}

func TestInstancesDoNotShareRegistry(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
