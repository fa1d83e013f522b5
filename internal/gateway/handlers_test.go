package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aaronwang/collectible-market/internal/market"
)

func TestStatusFor(t *testing.T) {
	require := require.New(t)

	cases := map[int]*market.Error{
		http.StatusBadRequest:          {Class: market.ClassValidation},
		http.StatusConflict:            {Class: market.ClassRejection},
		http.StatusNotFound:            {Class: market.ClassNotFound},
		http.StatusBadGateway:          {Class: market.ClassTransport},
		http.StatusInternalServerError: {Class: market.ClassUnknown},
	}
	for status, err := range cases {
		require.Equal(status, statusFor(err), "class %v", err.Class)
	}
	require.Equal(http.StatusInternalServerError, statusFor(nil))
}

func TestPageParams(t *testing.T) {
	require := require.New(t)

	cases := []struct {
		query  string
		limit  int
		offset int
	}{
		{"", defaultPageLimit, 0},
		{"?limit=5&offset=10", 5, 10},
		{"?limit=0", defaultPageLimit, 0},
		{"?limit=500", defaultPageLimit, 0},
		{"?limit=abc&offset=-3", defaultPageLimit, 0},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/nfts"+tc.query, nil)
		limit, offset := pageParams(r)
		require.Equal(tc.limit, limit, "query %q", tc.query)
		require.Equal(tc.offset, offset, "query %q", tc.query)
	}
}

func TestGetNFTRoute(t *testing.T) {
	require := require.New(t)

	queries := &fakeQueries{details: map[string]*market.NFT{"7": fixedListing("7")}}
	handler := NewHandler(NewService(queries, nil, nil, nil, nil))
	router := handler.SetupRoutes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nfts/7", nil))
	require.Equal(http.StatusOK, rec.Code)

	var nft market.NFT
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &nft))
	require.Equal("7", nft.ID)
	require.Equal(2.5, nft.Price)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nfts/999", nil))
	require.Equal(http.StatusNotFound, rec.Code)
}

func TestPlaceBidRoute(t *testing.T) {
	require := require.New(t)

	queries := &fakeQueries{details: map[string]*market.NFT{"7": auctionListing("7")}}
	auctions := &fakeAuctions{result: &market.TxResult{Success: true, Hash: "0xdead"}}
	handler := NewHandler(NewService(queries, nil, auctions, nil, nil))
	router := handler.SetupRoutes()

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"bidder":"0xd4","amount":3}`)
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/nfts/7/bids", body))
	require.Equal(http.StatusCreated, rec.Code)

	var result market.TxResult
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &result))
	require.True(result.Success)
	require.Equal("0xdead", result.Hash)

	// A missing bidder never reaches the service.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/nfts/7/bids",
		strings.NewReader(`{"amount":3}`)))
	require.Equal(http.StatusBadRequest, rec.Code)
	require.Equal(1, auctions.bids)
}

func TestRefusedWriteStatusCode(t *testing.T) {
	require := require.New(t)

	queries := &fakeQueries{details: map[string]*market.NFT{"7": auctionListing("7")}}
	auctions := &fakeAuctions{result: &market.TxResult{
		Success: false,
		Err:     market.Validation(market.KindBidTooLow, "Bid must be higher than current highest bid"),
	}}
	handler := NewHandler(NewService(queries, nil, auctions, nil, nil))
	router := handler.SetupRoutes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/nfts/7/bids",
		strings.NewReader(`{"bidder":"0xd4","amount":1}`)))
	require.Equal(http.StatusBadRequest, rec.Code)

	var payload struct {
		Success bool `json:"success"`
		Err     struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &payload))
	require.False(payload.Success)
	require.Equal("BidTooLow", payload.Err.Kind)
	require.Equal("Bid must be higher than current highest bid", payload.Err.Message)
}
