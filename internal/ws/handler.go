package ws

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP connections into per-asset subscriptions and
// hooks them into the manager. An optional onSubscribe callback lets
// the broadcaster start tracking an auction the moment its first
// watcher arrives.
type Handler struct {
	manager     *Manager
	onSubscribe func(assetID string)
}

// NewHandler creates a websocket handler. onSubscribe may be nil.
func NewHandler(manager *Manager, onSubscribe func(assetID string)) *Handler {
	return &Handler{manager: manager, onSubscribe: onSubscribe}
}

// SetupRoutes configures the websocket routes.
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/ws/nfts/{id}", h.HandleWebSocket)
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/stats/nfts/{id}", h.GetStats).Methods("GET")

	return router
}

// HandleWebSocket upgrades the connection and subscribes it to one
// asset's event feed.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	assetID := vars["id"]

	if assetID == "" {
		http.Error(w, "NFT ID is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Warnf("ws: failed to upgrade connection: %v", err)
		return
	}

	client := &Client{
		ID:      uuid.New().String(),
		AssetID: assetID,
		Conn:    conn,
		Send:    make(chan []byte, 256),
	}

	h.manager.RegisterClient(client)
	client.StartReadPump(h.manager.unregister)

	if h.onSubscribe != nil {
		h.onSubscribe(assetID)
	}

	welcome := fmt.Sprintf(`{"type":"connected","asset_id":%q,"client_id":%q}`, assetID, client.ID)
	client.Send <- []byte(welcome)
}

// HealthCheck returns service health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"healthy","service":"broadcaster"}`)
}

// GetStats returns the subscriber count for an asset.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	assetID := vars["id"]

	count := h.manager.SubscriberCount(assetID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"asset_id":%q,"subscribers":%d}`, assetID, count)
}
