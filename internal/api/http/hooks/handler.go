package hooks

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/oshokin/release-mirror/internal/logger"
	"github.com/oshokin/release-mirror/internal/service/mirror"
	"github.com/oshokin/release-mirror/internal/version"
)

// Syncer abstracts the mirror operations the transport layer depends on.
type Syncer interface {
	Sync(ctx context.Context) (*mirror.Result, error)
	LastStatus() mirror.Status
}

// Handler serves the trigger endpoints.
type Handler struct {
	// syncer runs passes and reports their outcome.
	syncer Syncer
	// mux routes requests to the handlers below.
	mux *http.ServeMux
}

// NewHandler wires the provided syncer into an http.Handler.
func NewHandler(syncer Syncer) *Handler {
	h := &Handler{
		syncer: syncer,
		mux:    http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /{$}", h.handleRoot)
	h.mux.HandleFunc("POST /api/hooks/release-download-toggle", h.handleToggle)
	h.mux.HandleFunc("GET /api/status", h.handleStatus)

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type statusResponse struct {
	LastRun             *time.Time        `json:"last_run,omitempty"`
	LastUpdated         *time.Time        `json:"last_updated,omitempty"`
	Error               string            `json:"error,omitempty"`
	TrackingDirectories map[string]string `json:"tracking_directories"`
	Healthy             bool              `json:"healthy"`
}

func (h *Handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{
		Message: "release mirror " + version.Short() + ", trigger a pass with POST /api/hooks/release-download-toggle",
	})
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	// A caller that disconnects must not abort the pass halfway.
	ctx := logger.WithName(context.WithoutCancel(r.Context()), "hooks")

	logger.Info(ctx, "Sync pass requested")

	if _, err := h.syncer.Sync(ctx); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "success"})
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := h.syncer.LastStatus()

	response := statusResponse{
		TrackingDirectories: map[string]string{},
		Healthy:             status.Err == nil && status.Result != nil,
	}

	if !status.At.IsZero() {
		response.LastRun = &status.At
	}

	if status.Err != nil {
		response.Error = status.Err.Error()
	}

	if status.Result != nil {
		response.LastUpdated = &status.Result.FinishedAt
		response.TrackingDirectories = status.Result.Mapping.Versions()
	}

	writeJSON(w, http.StatusOK, response)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.ErrorKV(context.Background(), "Failed to write response", "error", err)
	}
}
