package auction

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aaronwang/collectible-market/internal/market"
)

// Event is what the watcher emits for subscribed clients: a countdown
// tick while the auction is open, a terminal event once it resolves.
type Event struct {
	Type             string  `json:"type"` // "countdown" or "auction_ended"
	AssetID          string  `json:"asset_id"`
	RemainingSeconds int64   `json:"remaining_seconds"`
	Deadline         int64   `json:"deadline"`
	Winner           string  `json:"winner,omitempty"`
	HighestBid       float64 `json:"highest_bid,omitempty"`
}

// PublishFunc delivers a serialized event for one asset to whatever
// fan-out sits downstream.
type PublishFunc func(assetID string, payload []byte)

// Watcher polls tracked auctions at a fixed short interval and emits
// countdown and end events. The countdown is a presentation
// derivation only; on expiry the winner is re-derived from a fresh
// ledger query, never from the local clock alone. Run is bound to its
// context, so the ticker dies with the owning component.
type Watcher struct {
	coord   *Coordinator
	queries *market.QueryClient
	publish PublishFunc

	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	tracked map[string]int64 // asset id -> deadline (ledger seconds)
}

// NewWatcher creates a watcher emitting through publish once per
// second.
func NewWatcher(coord *Coordinator, queries *market.QueryClient, publish PublishFunc) *Watcher {
	return &Watcher{
		coord:    coord,
		queries:  queries,
		publish:  publish,
		interval: time.Second,
		now:      time.Now,
		tracked:  make(map[string]int64),
	}
}

// Track starts watching an asset's auction. The deadline is read from
// a fresh detail query; assets that are not under auction are
// ignored.
func (w *Watcher) Track(ctx context.Context, id string) bool {
	nft, ok := w.queries.NFTDetails(ctx, id)
	if !ok || !nft.IsAuction {
		return false
	}

	w.mu.Lock()
	w.tracked[id] = nft.AuctionEnd
	w.mu.Unlock()
	logrus.Infof("auction: tracking nft %s until %d", id, nft.AuctionEnd)
	return true
}

// Untrack stops watching an asset.
func (w *Watcher) Untrack(id string) {
	w.mu.Lock()
	delete(w.tracked, id)
	w.mu.Unlock()
}

// TrackedCount returns the number of auctions currently watched.
func (w *Watcher) TrackedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.tracked)
}

// Run ticks until ctx is cancelled. Each tick emits a countdown for
// every open tracked auction and finalizes the ones whose deadline
// has passed.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Infof("auction: watcher stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Watcher) tick(ctx context.Context) {
	w.mu.Lock()
	snapshot := make(map[string]int64, len(w.tracked))
	for id, deadline := range w.tracked {
		snapshot[id] = deadline
	}
	w.mu.Unlock()

	for id, deadline := range snapshot {
		remaining := Remaining(deadline, w.now())
		if remaining > 0 {
			w.emit(id, &Event{
				Type:             "countdown",
				AssetID:          id,
				RemainingSeconds: int64(remaining / time.Second),
				Deadline:         deadline,
			})
			continue
		}
		w.finalize(ctx, id, deadline)
	}
}

// finalize re-queries authoritative state for an expired auction,
// resolves the winner and emits the terminal event.
func (w *Watcher) finalize(ctx context.Context, id string, deadline int64) {
	nft, ok := w.queries.NFTDetails(ctx, id)
	if !ok {
		// Fresh state not visible yet; try again next tick.
		return
	}

	status := w.coord.Advance(ctx, nft)
	if status.Phase == PhaseEndedUnresolved && nft.HighestBidder != "" {
		// Bids exist but the winner is not visible yet; retry next tick.
		return
	}

	w.emit(id, &Event{
		Type:       "auction_ended",
		AssetID:    id,
		Deadline:   deadline,
		Winner:     status.Winner,
		HighestBid: nft.HighestBid,
	})
	w.Untrack(id)
}

func (w *Watcher) emit(id string, event *Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		logrus.Errorf("auction: failed to marshal event for nft %s: %v", id, err)
		return
	}
	w.publish(id, payload)
}
