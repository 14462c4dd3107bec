// Package server provides the HTTP API for attrgraph.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentic-research/attrgraph/api"
	"github.com/agentic-research/attrgraph/internal/config"
	"github.com/agentic-research/attrgraph/internal/generate"
	"github.com/agentic-research/attrgraph/internal/metrics"
	"github.com/agentic-research/attrgraph/internal/publish"
	"github.com/agentic-research/attrgraph/internal/resolve"
	"github.com/agentic-research/attrgraph/internal/schema"
	"github.com/agentic-research/attrgraph/internal/store"
)

// Deps are the services the API is built on.
type Deps struct {
	Store    *store.Store
	Publish  *publish.Manager
	Resolver *resolve.Resolver
	Invoker  *generate.Invoker
	Config   *config.Config
	Logger   *slog.Logger
}

// Handler holds the dependencies of the HTTP handlers.
type Handler struct {
	store    *store.Store
	publish  *publish.Manager
	resolver *resolve.Resolver
	invoker  *generate.Invoker
	cfg      *config.Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
	now      func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	cfg := d.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:    d.Store,
		publish:  d.Publish,
		resolver: d.Resolver,
		invoker:  d.Invoker,
		cfg:      cfg,
		logger:   logger.With("component", "server"),
		upgrader: websocket.Upgrader{CheckOrigin: originChecker(cfg.CORSOrigins)},
		now:      time.Now,
	}
}

// NewRouter creates the HTTP router with all routes and middleware registered.
func NewRouter(d Deps) http.Handler {
	h := NewHandler(d)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", metrics.Handler())

	// Composition graphs
	mux.HandleFunc("GET /api/graph/{graph_id}", h.GetGraph)
	mux.HandleFunc("POST /api/graph/{graph_id}", h.SaveGraph)
	mux.HandleFunc("DELETE /api/graph/{graph_id}", h.DeleteGraph)
	mux.HandleFunc("GET /api/graph/{graph_id}/pcds", h.ListNodeGraphs)
	mux.HandleFunc("GET /api/graph/{graph_id}/schema", h.GraphSchema)

	// Publishing
	mux.HandleFunc("POST /api/graph/{graph_id}/publish", h.Publish)
	mux.HandleFunc("GET /api/graph/{graph_id}/published/latest", h.LatestPublished)
	mux.HandleFunc("GET /api/graph/{graph_id}/published/active", h.ActivePublished)
	mux.HandleFunc("GET /api/graph/{graph_id}/version/latest", h.LatestVersion)
	mux.HandleFunc("GET /api/graph/{graph_id}/versions", h.ListVersions)
	mux.HandleFunc("GET /api/graph/{graph_id}/versions/{version}", h.GetVersion)
	mux.HandleFunc("DELETE /api/graph/{graph_id}/versions/{version}", h.DeleteVersion)
	mux.HandleFunc("POST /api/graph/{graph_id}/versions/{version}/activate", h.ActivateVersion)
	mux.HandleFunc("POST /api/graph/{graph_id}/versions/{version}/restore", h.RestoreVersion)

	// Generation
	mux.HandleFunc("POST /api/graph/{graph_id}/generate", h.Generate)
	mux.HandleFunc("GET /api/graph/{graph_id}/generate/stream", h.GenerateStream)
	mux.HandleFunc("GET /api/graph/{graph_id}/generations", h.ListGenerations)
	mux.HandleFunc("POST /api/generate", h.GenerateAdHoc)

	// Node graphs
	mux.HandleFunc("GET /api/pcd/{node_id}", h.GetNodeGraph)
	mux.HandleFunc("POST /api/pcd/{node_id}", h.SaveNodeGraph)
	mux.HandleFunc("DELETE /api/pcd/{node_id}", h.DeleteNodeGraph)
	mux.HandleFunc("GET /api/pcd/{node_id}/schema", h.NodeGraphSchema)

	return WithDefaults(mux, h.logger, h.cfg.CORSOrigins)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
	GraphID string `json:"graph_id,omitempty"`
	NodeID  string `json:"node_id,omitempty"`
	Version int    `json:"version,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := ErrorResponse{Error: msg}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		compileErr *generate.SchemaCompilationError
		backendErr *generate.BackendError
		validErr   *schema.ValidationError
		validErrs  schema.ValidationErrors
	)
	switch {
	case errors.As(err, &compileErr):
		return http.StatusBadRequest
	case errors.As(err, &backendErr):
		return http.StatusBadGateway
	case errors.As(err, &validErr), errors.As(err, &validErrs):
		return http.StatusBadRequest
	case errors.Is(err, api.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// fail writes err with the status statusFor picks and logs server-side faults.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, msg, err)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<20))
	return dec.Decode(v)
}

func pathVersion(r *http.Request) (int, error) {
	v, err := strconv.Atoi(r.PathValue("version"))
	if err != nil || v < 1 {
		return 0, errors.New("version must be a positive integer")
	}
	return v, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New(key + " must be a positive integer")
	}
	return n, nil
}

func queryBool(r *http.Request, key string) (bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}
