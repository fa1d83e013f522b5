package archive

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aaronwang/collectible-market/internal/events"
)

var _ EventSource = (*Store)(nil)

type fakeSource struct {
	history map[string][]*events.Event
	limits  []int
	err     error
}

func (f *fakeSource) EventHistory(_ context.Context, assetID string, limit int) ([]*events.Event, error) {
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	return f.history[assetID], nil
}

func TestGetHistory(t *testing.T) {
	require := require.New(t)

	source := &fakeSource{history: map[string][]*events.Event{
		"7": {
			{EventID: "e2", Type: events.TypeBidPlaced, AssetID: "7", Actor: "0xd4", Amount: 2, Timestamp: time.Unix(1_700_000_100, 0).UTC()},
			{EventID: "e1", Type: events.TypeListed, AssetID: "7", Actor: "0xa1", Amount: 1.5, Timestamp: time.Unix(1_700_000_000, 0).UTC()},
		},
	}}
	router := NewHandler(source).SetupRoutes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nfts/7/history?limit=10", nil))
	require.Equal(http.StatusOK, rec.Code)
	require.Equal([]int{10}, source.limits)

	var payload struct {
		AssetID string          `json:"asset_id"`
		Events  []*events.Event `json:"events"`
	}
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal("7", payload.AssetID)
	require.Len(payload.Events, 2)
	require.Equal("e2", payload.Events[0].EventID)
	require.Equal(events.TypeBidPlaced, payload.Events[0].Type)
}

func TestGetHistoryLimitBounds(t *testing.T) {
	require := require.New(t)

	source := &fakeSource{history: map[string][]*events.Event{}}
	router := NewHandler(source).SetupRoutes()

	for _, query := range []string{"", "?limit=0", "?limit=9999", "?limit=abc"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nfts/7/history"+query, nil))
		require.Equal(http.StatusOK, rec.Code, "query %q", query)
	}
	require.Equal([]int{defaultHistoryLimit, defaultHistoryLimit, defaultHistoryLimit, defaultHistoryLimit}, source.limits)

	// An asset with no archived events answers with an empty list, not
	// null.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nfts/999/history", nil))
	var payload struct {
		Events []*events.Event `json:"events"`
	}
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &payload))
	require.NotNil(payload.Events)
	require.Empty(payload.Events)
}

func TestGetHistoryStoreFailure(t *testing.T) {
	require := require.New(t)

	source := &fakeSource{err: errors.New("connection refused")}
	router := NewHandler(source).SetupRoutes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nfts/7/history", nil))
	require.Equal(http.StatusInternalServerError, rec.Code)
}
