package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/aaronwang/collectible-market/internal/events"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// EventSource serves archived event history. Satisfied by *Store.
type EventSource interface {
	EventHistory(ctx context.Context, assetID string, limit int) ([]*events.Event, error)
}

// Handler exposes the archive over HTTP: the event history the chain
// itself cannot serve.
type Handler struct {
	source EventSource
}

// NewHandler creates the archive HTTP handler.
func NewHandler(source EventSource) *Handler {
	return &Handler{source: source}
}

// SetupRoutes configures the archive routes.
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/nfts/{id}/history", h.GetHistory).Methods("GET")

	return router
}

// HealthCheck returns service health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"healthy","service":"archiver"}`)
}

// GetHistory returns the most recent archived events for an asset,
// newest first.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["id"]

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= maxHistoryLimit {
			limit = n
		}
	}

	history, err := h.source.EventHistory(r.Context(), assetID, limit)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"failed to load event history"}`)
		return
	}
	if history == nil {
		history = []*events.Event{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"asset_id": assetID,
		"events":   history,
	})
}
