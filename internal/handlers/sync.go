package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/odoobridge/internal/export"
	"github.com/xelth-com/odoobridge/internal/idmap"
	"github.com/xelth-com/odoobridge/internal/models"
)

const maxRunsPage = 100

func keyFromVars(req *http.Request) (export.Key, int64, error) {
	vars := mux.Vars(req)
	localID, err := strconv.ParseInt(vars["local_id"], 10, 64)
	if err != nil || localID <= 0 {
		return export.Key{}, 0, errors.New("local_id must be a positive integer")
	}
	return idmap.NewKey(vars["entity_type"], vars["remote_model"], vars["variant"]), localID, nil
}

// exportStatus maps an export error to an HTTP status
func exportStatus(err error) int {
	switch {
	case errors.Is(err, export.ErrUnknownExporter):
		return http.StatusNotFound
	case errors.Is(err, export.ErrServer):
		return http.StatusBadGateway
	case errors.Is(err, export.ErrGeneric):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// exportEntity runs an immediate export.
// ?only_if_dependency=true skips the write when the entity is already synced.
func (r *Router) exportEntity(w http.ResponseWriter, req *http.Request) {
	key, localID, err := keyFromVars(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	onlyIfDependency := req.URL.Query().Get("only_if_dependency") == "true"

	remoteID, err := r.Sync.Export(req.Context(), key, localID, onlyIfDependency)
	if errors.Is(err, export.ErrSyncExcluded) {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"key":      key,
			"local_id": localID,
			"excluded": true,
			"reason":   err.Error(),
		})
		return
	}
	if err != nil {
		r.Log.WithFields(logrus.Fields{
			"entity_type":  key.EntityType,
			"remote_model": key.RemoteModel,
			"variant":      key.Variant,
			"local_id":     localID,
		}).Errorf("❌ Export request failed: %v", err)
		respondJSON(w, exportStatus(err), map[string]string{
			"error": err.Error(),
			"kind":  export.Kind(err),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"key":       key,
		"local_id":  localID,
		"remote_id": remoteID,
	})
}

type enqueueRequest struct {
	EntityType    string                 `json:"entity_type"`
	RemoteModel   string                 `json:"remote_model"`
	ExportVariant string                 `json:"export_variant"`
	LocalIDs      []int64                `json:"local_ids"`
	Payload       map[string]interface{} `json:"payload"`
}

// enqueue stores delayed export requests for one key and many ids
func (r *Router) enqueue(w http.ResponseWriter, req *http.Request) {
	var body enqueueRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if body.EntityType == "" || body.RemoteModel == "" || len(body.LocalIDs) == 0 {
		respondError(w, http.StatusBadRequest, "entity_type, remote_model and local_ids are required")
		return
	}
	if body.ExportVariant == "" {
		body.ExportVariant = "default"
	}
	key := idmap.NewKey(body.EntityType, body.RemoteModel, body.ExportVariant)

	queued := make([]int64, 0, len(body.LocalIDs))
	created := 0
	for _, id := range body.LocalIDs {
		item, isNew, err := r.Sync.Enqueue(req.Context(), key, id, body.Payload)
		if errors.Is(err, export.ErrUnknownExporter) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		queued = append(queued, item.ID)
		if isNew {
			created++
		}
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"queue_ids": queued,
		"created":   created,
	})
}

// flush drains the queue now. ?strict=true stops at the first failure.
func (r *Router) flush(w http.ResponseWriter, req *http.Request) {
	strict := req.URL.Query().Get("strict") == "true"

	report, err := r.Sync.SyncAndFlush(req.Context(), strict)
	if r.Metrics != nil {
		depth, _ := r.Sync.QueueDepth(req.Context())
		r.Metrics.ObserveFlush(report, depth)
	}
	if err != nil && report == nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if err != nil {
		status = http.StatusConflict
	}
	respondJSON(w, status, report)
}

type reconcileRequest struct {
	OrderIDs      []int64 `json:"order_ids"`
	LookbackHours int     `json:"lookback_hours"`
}

// reconcile checks explicit remote orders, or the ones changed in the lookback window
func (r *Router) reconcile(w http.ResponseWriter, req *http.Request) {
	var body reconcileRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	ids := body.OrderIDs
	if len(ids) == 0 {
		if body.LookbackHours <= 0 {
			respondError(w, http.StatusBadRequest, "order_ids or lookback_hours is required")
			return
		}
		since := time.Now().Add(-time.Duration(body.LookbackHours) * time.Hour)
		recent, err := r.Reconciler.RecentOrderIDs(req.Context(), since)
		if err != nil {
			respondError(w, http.StatusBadGateway, err.Error())
			return
		}
		ids = recent
	}

	report, err := r.Reconciler.Run(req.Context(), ids)
	if r.Metrics != nil {
		r.Metrics.ObserveReconcile(report)
	}
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// getMapping returns the mapping record of one local entity
func (r *Router) getMapping(w http.ResponseWriter, req *http.Request) {
	key, localID, err := keyFromVars(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	row, err := r.Mappings.Get(req.Context(), key, localID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if row == nil {
		respondError(w, http.StatusNotFound, "Mapping not found")
		return
	}
	respondJSON(w, http.StatusOK, row)
}

// listRuns returns the latest flush and reconciliation runs, newest first.
// ?kind=flush|reconcile filters, ?limit caps the page.
func (r *Router) listRuns(w http.ResponseWriter, req *http.Request) {
	limit := 20
	if v := req.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsPage)
	}

	q := r.DB.WithContext(req.Context()).Order("started_at DESC").Limit(limit)
	if kind := req.URL.Query().Get("kind"); kind != "" {
		q = q.Where("kind = ?", kind)
	}

	var runs []models.SyncHistory
	if err := q.Find(&runs).Error; err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, runs)
}
