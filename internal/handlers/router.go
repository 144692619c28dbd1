package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/odoobridge/internal/buildinfo"
	"github.com/xelth-com/odoobridge/internal/export"
	"github.com/xelth-com/odoobridge/internal/metrics"
	"github.com/xelth-com/odoobridge/internal/middleware"
	"github.com/xelth-com/odoobridge/internal/models"
	"github.com/xelth-com/odoobridge/internal/reconcile"
	"gorm.io/gorm"
)

// Syncer is the export side of the bridge
type Syncer interface {
	Export(ctx context.Context, key export.Key, localID int64, onlyIfDependency bool) (int64, error)
	Enqueue(ctx context.Context, key export.Key, localID int64, payload map[string]interface{}) (*models.SyncQueue, bool, error)
	SyncAndFlush(ctx context.Context, strict bool) (*export.FlushReport, error)
	QueueDepth(ctx context.Context) (int64, error)
}

// Reconciler repairs remote invoices
type Reconciler interface {
	Run(ctx context.Context, orderIDs []int64) (*reconcile.Report, error)
	RecentOrderIDs(ctx context.Context, since time.Time) ([]int64, error)
}

// MappingReader looks up mapping records
type MappingReader interface {
	Get(ctx context.Context, key export.Key, localID int64) (*models.OdooIDMap, error)
}

// Deps are the services behind the admin API
type Deps struct {
	Sync       Syncer
	Reconciler Reconciler
	Mappings   MappingReader
	DB         *gorm.DB
	Metrics    *metrics.Metrics
	JWTSecret  string
	Log        *logrus.Logger
}

// Router wraps the mux router and the bridge services
type Router struct {
	*mux.Router
	Deps
}

// NewRouter creates the admin API. /health and /metrics are public;
// everything under /api requires a bearer token.
func NewRouter(d Deps) *Router {
	r := &Router{
		Router: mux.NewRouter(),
		Deps:   d,
	}
	r.Use(middleware.RequestLogger(d.Log))

	r.HandleFunc("/health", r.healthCheck).Methods("GET")
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler()).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth(d.JWTSecret))

	api.HandleFunc("/export/{entity_type}/{remote_model}/{variant}/{local_id:[0-9]+}", r.exportEntity).Methods("POST")
	api.HandleFunc("/queue", r.enqueue).Methods("POST")
	api.HandleFunc("/queue/flush", r.flush).Methods("POST")
	api.HandleFunc("/reconcile", r.reconcile).Methods("POST")
	api.HandleFunc("/idmap/{entity_type}/{remote_model}/{variant}/{local_id:[0-9]+}", r.getMapping).Methods("GET")
	api.HandleFunc("/runs", r.listRuns).Methods("GET")

	return r
}

// healthCheck reports ok when the local database answers
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	depth, err := r.Sync.QueueDepth(req.Context())
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "degraded",
			"error":  err.Error(),
			"build":  buildinfo.Get(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"queue_depth": depth,
		"build":       buildinfo.Get(),
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
