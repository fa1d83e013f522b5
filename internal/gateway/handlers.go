package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/aaronwang/collectible-market/internal/market"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// Handler exposes the marketplace over HTTP.
type Handler struct {
	service *Service
}

// NewHandler creates the HTTP handler set.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// SetupRoutes configures all HTTP routes.
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/nfts", h.ListForSale).Methods("GET")
	api.HandleFunc("/nfts", h.Mint).Methods("POST")
	api.HandleFunc("/auctions", h.ListAuctions).Methods("GET")
	api.HandleFunc("/nfts/{id}", h.GetNFT).Methods("GET")
	api.HandleFunc("/nfts/{id}", h.Delete).Methods("DELETE")
	api.HandleFunc("/nfts/{id}/owner", h.GetOwner).Methods("GET")
	api.HandleFunc("/nfts/{id}/price", h.GetPrice).Methods("GET")
	api.HandleFunc("/nfts/{id}/winner", h.GetWinner).Methods("GET")
	api.HandleFunc("/nfts/{id}/list", h.List).Methods("POST")
	api.HandleFunc("/nfts/{id}/price", h.SetPrice).Methods("PUT")
	api.HandleFunc("/nfts/{id}/bids", h.PlaceBid).Methods("POST")
	api.HandleFunc("/nfts/{id}/purchase", h.Purchase).Methods("POST")
	api.HandleFunc("/nfts/{id}/transfer", h.Transfer).Methods("POST")
	api.HandleFunc("/owners/{addr}/nfts", h.OwnerNFTs).Methods("GET")

	router.Use(loggingMiddleware)
	router.Use(corsMiddleware)

	return router
}

// HealthCheck reports service health and marketplace initialization.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"service":     "gateway",
		"initialized": h.service.Initialized(r.Context()),
		"time":        time.Now().UTC().Format(time.RFC3339),
	})
}

// ListForSale returns one resolved page of sale listings.
func (h *Handler) ListForSale(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	respondJSON(w, http.StatusOK, h.service.ForSalePage(r.Context(), limit, offset))
}

// ListAuctions returns one resolved page of auctions with lifecycle
// state.
func (h *Handler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	respondJSON(w, http.StatusOK, h.service.AuctionPage(r.Context(), limit, offset))
}

// GetNFT returns the detail view of one asset.
func (h *Handler) GetNFT(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	nft, ok := h.service.NFTDetail(r.Context(), id)
	if !ok {
		respondError(w, http.StatusNotFound, "NFT not found in the marketplace")
		return
	}
	respondJSON(w, http.StatusOK, nft)
}

// GetOwner returns the current owner address.
func (h *Handler) GetOwner(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	respondJSON(w, http.StatusOK, map[string]string{
		"id":    id,
		"owner": h.service.Owner(r.Context(), id),
	})
}

// GetPrice returns the listing price in display units.
func (h *Handler) GetPrice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	respondJSON(w, http.StatusOK, map[string]any{
		"id":    id,
		"price": h.service.Price(r.Context(), id),
	})
}

// GetWinner returns the resolved auction winner.
func (h *Handler) GetWinner(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	respondJSON(w, http.StatusOK, map[string]string{
		"id":     id,
		"winner": h.service.AuctionWinner(r.Context(), id),
	})
}

// OwnerNFTs returns a page of asset ids held by an account.
func (h *Handler) OwnerNFTs(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["addr"]
	limit, offset := pageParams(r)
	ids := h.service.OwnerNFTs(r.Context(), addr, limit, offset)
	respondJSON(w, http.StatusOK, map[string]any{
		"owner": addr,
		"ids":   ids,
	})
}

type mintRequest struct {
	Creator     string `json:"creator"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URI         string `json:"uri"`
	Rarity      int    `json:"rarity"`
	Royalty     int    `json:"royalty_percentage"`
}

// Mint creates a new asset.
func (h *Handler) Mint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "Name is required")
		return
	}
	result := h.service.Mint(r.Context(), req.Creator, req.Name, req.Description, req.URI, req.Rarity, req.Royalty)
	respondResult(w, result)
}

type listRequest struct {
	Actor      string  `json:"actor"`
	Price      float64 `json:"price"`
	IsAuction  bool    `json:"is_auction"`
	AuctionEnd int64   `json:"auction_end"`
}

// List puts an asset up for sale or auction.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req listRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	result := h.service.List(r.Context(), id, req.Actor, req.Price, req.IsAuction, req.AuctionEnd)
	respondResult(w, result)
}

type priceRequest struct {
	Actor string  `json:"actor"`
	Price float64 `json:"price"`
}

// SetPrice changes a listing price.
func (h *Handler) SetPrice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req priceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	result := h.service.SetPrice(r.Context(), id, req.Actor, req.Price)
	respondResult(w, result)
}

type bidRequest struct {
	Bidder string  `json:"bidder"`
	Amount float64 `json:"amount"`
}

// PlaceBid bids on an open auction.
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req bidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Bidder == "" {
		respondError(w, http.StatusBadRequest, "Bidder address is required")
		return
	}
	result := h.service.Bid(r.Context(), id, req.Bidder, req.Amount)
	respondResult(w, result)
}

type purchaseRequest struct {
	Buyer   string  `json:"buyer"`
	Payment float64 `json:"payment"`
}

// Purchase buys a listing or settles an ended auction.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Buyer == "" {
		respondError(w, http.StatusBadRequest, "Buyer address is required")
		return
	}
	result := h.service.Purchase(r.Context(), id, req.Buyer, req.Payment)
	respondResult(w, result)
}

type transferRequest struct {
	Actor    string `json:"actor"`
	NewOwner string `json:"new_owner"`
}

// Transfer moves an asset to another account.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	result := h.service.Transfer(r.Context(), id, req.Actor, req.NewOwner)
	respondResult(w, result)
}

// Delete removes an unlisted asset.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	actor := r.URL.Query().Get("actor")
	result := h.service.Delete(r.Context(), id, actor)
	respondResult(w, result)
}

func pageParams(r *http.Request) (limit, offset int) {
	limit = defaultPageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= maxPageLimit {
			limit = n
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// respondResult maps the uniform write result onto an HTTP status:
// the enumerated message always wins over a generic failure string.
func respondResult(w http.ResponseWriter, result *market.TxResult) {
	if result.Success {
		respondJSON(w, http.StatusCreated, result)
		return
	}
	respondJSON(w, statusFor(result.Err), result)
}

func statusFor(err *market.Error) int {
	if err == nil {
		return http.StatusInternalServerError
	}
	switch err.Class {
	case market.ClassValidation:
		return http.StatusBadRequest
	case market.ClassRejection:
		return http.StatusConflict
	case market.ClassNotFound:
		return http.StatusNotFound
	case market.ClassTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logrus.Infof("gateway: %s %s %s", r.Method, r.RequestURI, time.Since(start))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
