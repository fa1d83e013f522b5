package auction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aaronwang/collectible-market/internal/aptos"
	"github.com/aaronwang/collectible-market/internal/market"
)

type eventSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *eventSink) publish(_ string, payload []byte) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return
	}
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *eventSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func watcherHarness(t *testing.T, views map[string]string) (*Watcher, *Coordinator, *eventSink) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Function string `json:"function"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"message":"bad request"}`, http.StatusBadRequest)
			return
		}
		parts := strings.Split(req.Function, "::")
		body, ok := views[parts[len(parts)-1]]
		if !ok {
			http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	queries := market.NewQueryClient(aptos.NewClient(server.URL), testAddr)
	coord := NewCoordinator(queries, nil)
	sink := &eventSink{}
	return NewWatcher(coord, queries, sink.publish), coord, sink
}

// openAuctionDetail is a detail tuple for nft 7 auctioned until
// 1700000100 with a highest bid of 0.5 from 0xc3.
const openAuctionDetail = `["7",
	"0xa1", "0xb2", "0x61", "0x62", "0x63",
	"100000000", true, "3", "1700000000", "5",
	true, "1700000100", "50000000", "0x00c3"]`

func TestTrackRejectsNonAuctions(t *testing.T) {
	require := require.New(t)

	fixedPrice := `["7",
		"0xa1", "0xb2", "0x61", "0x62", "0x63",
		"100000000", true, "3", "1700000000", "5",
		false, "0", "0", "0x0"]`
	watcher, _, _ := watcherHarness(t, map[string]string{"get_nft_details": fixedPrice})

	require.False(watcher.Track(context.Background(), "7"))
	require.Zero(watcher.TrackedCount())
}

func TestTickEmitsCountdown(t *testing.T) {
	require := require.New(t)

	watcher, coord, sink := watcherHarness(t, map[string]string{
		"get_nft_details": openAuctionDetail,
	})
	now := func() time.Time { return time.Unix(1_700_000_090, 0) }
	watcher.now = now
	coord.now = now

	require.True(watcher.Track(context.Background(), "7"))
	require.Equal(1, watcher.TrackedCount())

	watcher.tick(context.Background())

	events := sink.all()
	require.Len(events, 1)
	require.Equal("countdown", events[0].Type)
	require.Equal("7", events[0].AssetID)
	require.Equal(int64(10), events[0].RemainingSeconds)
	require.Equal(int64(1_700_000_100), events[0].Deadline)
	// Countdown ticks never untrack.
	require.Equal(1, watcher.TrackedCount())
}

func TestTickFinalizesExpiredAuction(t *testing.T) {
	require := require.New(t)

	watcher, coord, sink := watcherHarness(t, map[string]string{
		"get_nft_details":    openAuctionDetail,
		"get_auction_winner": `["0x00c3"]`,
	})
	trackNow := func() time.Time { return time.Unix(1_700_000_090, 0) }
	watcher.now = trackNow
	coord.now = trackNow
	require.True(watcher.Track(context.Background(), "7"))

	expired := func() time.Time { return time.Unix(1_700_000_200, 0) }
	watcher.now = expired
	coord.now = expired
	watcher.tick(context.Background())

	events := sink.all()
	require.Len(events, 1)
	require.Equal("auction_ended", events[0].Type)
	require.Equal("0xc3", events[0].Winner)
	require.Equal(0.5, events[0].HighestBid)
	require.Zero(watcher.TrackedCount())
}

func TestTickRetriesWhileWinnerUnresolved(t *testing.T) {
	require := require.New(t)

	// Bids exist but the winner view is not served yet: the watcher
	// must keep the auction tracked and emit nothing terminal.
	watcher, coord, sink := watcherHarness(t, map[string]string{
		"get_nft_details": openAuctionDetail,
	})
	expired := func() time.Time { return time.Unix(1_700_000_200, 0) }
	watcher.now = expired
	coord.now = expired

	watcher.mu.Lock()
	watcher.tracked["7"] = 1_700_000_100
	watcher.mu.Unlock()

	watcher.tick(context.Background())

	require.Empty(sink.all())
	require.Equal(1, watcher.TrackedCount())
}
