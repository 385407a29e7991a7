// Package v1 provides the REST API handlers for the sync core.
package v1

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/syncmesh/syncmesh-server/internal/status"
	"github.com/syncmesh/syncmesh-server/internal/store"
	syncpkg "github.com/syncmesh/syncmesh-server/internal/sync"
	"github.com/syncmesh/syncmesh-server/internal/temporal"
)

// defaultHistoryLimit bounds history responses when no limit is supplied
const defaultHistoryLimit = 50

// EndpointService is the supervisor surface the API exposes
type EndpointService interface {
	RegisterEndpoint(ctx context.Context, id string) (*status.Endpoint, error)
	RemoveEndpoint(ctx context.Context, id string) error
	EndpointStatus(ctx context.Context, id string) (*status.Endpoint, error)
	ListEndpoints(ctx context.Context) ([]*status.Endpoint, error)
	ReportFailure(ctx context.Context, id string, kind status.FailureKind, reason string) error
}

// SyncService is the synchronizer surface the API exposes
type SyncService interface {
	RegisterInstance(ctx context.Context, id, endpointID string) (*temporal.SyncInstance, error)
	GetInstance(ctx context.Context, id string) (*temporal.SyncInstance, error)
	History(ctx context.Context, id string, limit int) ([]*temporal.StateEntry, error)
	Synchronize(ctx context.Context, sourceInstanceID, targetInstanceID, syncType string, payload []byte) (*temporal.Operation, error)
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// RegisterEndpointRequest is the body for endpoint registration
type RegisterEndpointRequest struct {
	ID string `json:"id"`
}

// ReportFailureRequest is the body for caller-classified failure reports
type ReportFailureRequest struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason,omitempty"`
}

// RegisterInstanceRequest is the body for instance registration
type RegisterInstanceRequest struct {
	ID       string `json:"id"`
	Endpoint string `json:"endpoint,omitempty"`
}

// SynchronizeRequest is the body for sync requests
type SynchronizeRequest struct {
	SourceInstanceID string          `json:"sourceInstanceId"`
	TargetInstanceID string          `json:"targetInstanceId"`
	SyncType         string          `json:"syncType"`
	Payload          json.RawMessage `json:"payload"`
}

// HistoryResponse wraps an instance's temporal chain entries
type HistoryResponse struct {
	InstanceID string                 `json:"instanceId"`
	Entries    []*temporal.StateEntry `json:"entries"`
}

// Routes defines the routes for the sync API with dependency injection
type Routes struct {
	endpoints EndpointService
	syncs     SyncService
}

// Router creates a new router for the sync API
func Router(endpoints EndpointService, syncs SyncService) http.Handler {
	routes := &Routes{endpoints: endpoints, syncs: syncs}

	r := chi.NewRouter()

	r.Route("/endpoints", func(r chi.Router) {
		r.Post("/", routes.registerEndpoint)
		r.Get("/", routes.listEndpoints)
		r.Get("/{id}", routes.getEndpoint)
		r.Delete("/{id}", routes.deleteEndpoint)
		r.Post("/{id}/failure", routes.reportFailure)
	})

	r.Route("/instances", func(r chi.Router) {
		r.Post("/", routes.registerInstance)
		r.Get("/{id}", routes.getInstance)
		r.Get("/{id}/history", routes.getHistory)
	})

	r.Post("/sync", routes.synchronize)

	return r
}

func (rr *Routes) registerEndpoint(w http.ResponseWriter, r *http.Request) {
	var req RegisterEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		writeError(w, "id is required", http.StatusBadRequest)
		return
	}

	endpoint, err := rr.endpoints.RegisterEndpoint(r.Context(), req.ID)
	if err != nil {
		if errors.Is(err, store.ErrEndpointExists) {
			writeError(w, "endpoint already exists", http.StatusConflict)
			return
		}
		slog.Error("failed to register endpoint", "endpoint", req.ID, "error", err)
		writeError(w, "failed to register endpoint", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, endpoint)
}

func (rr *Routes) listEndpoints(w http.ResponseWriter, r *http.Request) {
	endpoints, err := rr.endpoints.ListEndpoints(r.Context())
	if err != nil {
		slog.Error("failed to list endpoints", "error", err)
		writeError(w, "failed to list endpoints", http.StatusInternalServerError)
		return
	}
	if endpoints == nil {
		endpoints = []*status.Endpoint{}
	}
	writeJSON(w, http.StatusOK, endpoints)
}

func (rr *Routes) getEndpoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	endpoint, err := rr.endpoints.EndpointStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrEndpointNotFound) {
			writeError(w, "endpoint not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to get endpoint", "endpoint", id, "error", err)
		writeError(w, "failed to get endpoint", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, endpoint)
}

func (rr *Routes) deleteEndpoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := rr.endpoints.RemoveEndpoint(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrEndpointNotFound) {
			writeError(w, "endpoint not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to delete endpoint", "endpoint", id, "error", err)
		writeError(w, "failed to delete endpoint", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rr *Routes) reportFailure(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ReportFailureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	kind := status.FailureKind(req.Kind)
	if kind != status.FailureNetwork && kind != status.FailureApplication {
		writeError(w, "kind must be network or application", http.StatusBadRequest)
		return
	}

	if err := rr.endpoints.ReportFailure(r.Context(), id, kind, req.Reason); err != nil {
		if errors.Is(err, store.ErrEndpointNotFound) {
			writeError(w, "endpoint not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to report endpoint failure", "endpoint", id, "error", err)
		writeError(w, "failed to report failure", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (rr *Routes) registerInstance(w http.ResponseWriter, r *http.Request) {
	var req RegisterInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		writeError(w, "id is required", http.StatusBadRequest)
		return
	}

	instance, err := rr.syncs.RegisterInstance(r.Context(), req.ID, req.Endpoint)
	if err != nil {
		if errors.Is(err, store.ErrInstanceExists) {
			writeError(w, "instance already exists", http.StatusConflict)
			return
		}
		slog.Error("failed to register instance", "instance", req.ID, "error", err)
		writeError(w, "failed to register instance", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, instance)
}

func (rr *Routes) getInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	instance, err := rr.syncs.GetInstance(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrInstanceNotFound) {
			writeError(w, "instance not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to get instance", "instance", id, "error", err)
		writeError(w, "failed to get instance", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, instance)
}

func (rr *Routes) getHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	entries, err := rr.syncs.History(r.Context(), id, limit)
	if err != nil {
		if errors.Is(err, store.ErrInstanceNotFound) {
			writeError(w, "instance not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to get sync history", "instance", id, "error", err)
		writeError(w, "failed to get sync history", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*temporal.StateEntry{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{InstanceID: id, Entries: entries})
}

func (rr *Routes) synchronize(w http.ResponseWriter, r *http.Request) {
	var req SynchronizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SourceInstanceID == "" || req.TargetInstanceID == "" {
		writeError(w, "sourceInstanceId and targetInstanceId are required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	op, err := rr.syncs.Synchronize(r.Context(), req.SourceInstanceID, req.TargetInstanceID, req.SyncType, req.Payload)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInstanceNotFound):
			writeError(w, "instance not found", http.StatusNotFound)
		case errors.Is(err, syncpkg.ErrEndpointUnavailable):
			writeError(w, "target endpoint unavailable", http.StatusServiceUnavailable)
		default:
			slog.Error("synchronize failed",
				"source", req.SourceInstanceID,
				"target", req.TargetInstanceID,
				"duration", time.Since(start),
				"error", err)
			writeError(w, "synchronize failed", http.StatusBadGateway)
		}
		return
	}
	writeJSON(w, http.StatusOK, op)
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{Error: message})
}
