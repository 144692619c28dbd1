package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xelth-com/odoobridge/internal/export"
	"github.com/xelth-com/odoobridge/internal/reconcile"
)

// Metrics owns the bridge collectors. Each instance has its own registry so
// tests and multiple servers in one process do not collide.
type Metrics struct {
	registry *prometheus.Registry

	// Exports counts orchestrator events by action and key
	Exports *prometheus.CounterVec

	// FlushItems counts queue items by outcome (created, updated, deleted, skipped, error)
	FlushItems *prometheus.CounterVec

	// FlushDuration measures a whole SyncAndFlush run
	FlushDuration prometheus.Histogram

	// QueueBacklog is the number of pending queue rows after the last flush
	QueueBacklog prometheus.Gauge

	// ReconcileOrders counts reconciled orders by outcome; errors carry their kind
	ReconcileOrders *prometheus.CounterVec

	ReconcileDuration prometheus.Histogram

	// BrokerMessages counts consumed broker messages by status (queued, malformed, error)
	BrokerMessages *prometheus.CounterVec
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Exports: f.NewCounterVec(prometheus.CounterOpts{
			Name: "odoobridge_export_events_total",
			Help: "Remote operations performed by the export orchestrator",
		}, []string{"action", "entity_type", "remote_model", "variant"}),
		FlushItems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "odoobridge_flush_items_total",
			Help: "Queue items processed by SyncAndFlush, by outcome",
		}, []string{"outcome"}),
		FlushDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "odoobridge_flush_duration_seconds",
			Help:    "Duration of a queue flush run",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		QueueBacklog: f.NewGauge(prometheus.GaugeOpts{
			Name: "odoobridge_queue_backlog",
			Help: "Pending export requests in the sync queue",
		}),
		ReconcileOrders: f.NewCounterVec(prometheus.CounterOpts{
			Name: "odoobridge_reconcile_orders_total",
			Help: "Orders checked by invoice reconciliation, by outcome",
		}, []string{"outcome"}),
		ReconcileDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "odoobridge_reconcile_duration_seconds",
			Help:    "Duration of a reconciliation run",
			Buckets: []float64{1, 5, 15, 60, 300, 900},
		}),
		BrokerMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "odoobridge_broker_messages_total",
			Help: "Entity-change messages consumed from RabbitMQ",
		}, []string{"status"}),
	}
}

// Listener feeds orchestrator events into the export counter
func (m *Metrics) Listener() export.Listener {
	return func(ev export.Event) {
		m.Exports.WithLabelValues(string(ev.Type), ev.Key.EntityType, ev.Key.RemoteModel, ev.Key.Variant).Inc()
	}
}

// ObserveFlush records the outcome of a queue flush. A nil report is ignored.
func (m *Metrics) ObserveFlush(r *export.FlushReport, backlog int64) {
	if r == nil {
		return
	}
	m.FlushItems.WithLabelValues("created").Add(float64(r.Created))
	m.FlushItems.WithLabelValues("updated").Add(float64(r.Updated))
	m.FlushItems.WithLabelValues("deleted").Add(float64(r.Deleted))
	m.FlushItems.WithLabelValues("skipped").Add(float64(r.Skipped))
	m.FlushItems.WithLabelValues("error").Add(float64(len(r.Errors)))
	m.FlushDuration.Observe(r.Duration.Seconds())
	m.QueueBacklog.Set(float64(backlog))
}

// ObserveReconcile records the outcome of a reconciliation run
func (m *Metrics) ObserveReconcile(r *reconcile.Report) {
	if r == nil {
		return
	}
	m.ReconcileOrders.WithLabelValues("created").Add(float64(r.Created))
	m.ReconcileOrders.WithLabelValues("unchanged").Add(float64(r.Unchanged))
	for _, e := range r.Errors {
		m.ReconcileOrders.WithLabelValues(e.Kind).Inc()
	}
	m.ReconcileDuration.Observe(r.Duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
