package auction

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aaronwang/collectible-market/internal/market"
)

// Phase is the lifecycle state of one asset under auction.
type Phase int

const (
	// PhaseOpen: deadline in the future, bids accepted.
	PhaseOpen Phase = iota
	// PhaseEndedUnresolved: deadline passed, winner not yet fetched.
	PhaseEndedUnresolved
	// PhaseEndedResolved: winner fetched; only the winner may settle.
	PhaseEndedResolved
)

var phaseNames = map[Phase]string{
	PhaseOpen:            "open",
	PhaseEndedUnresolved: "ended_unresolved",
	PhaseEndedResolved:   "ended_resolved",
}

func (p Phase) String() string { return phaseNames[p] }

// Status is a point-in-time derivation of one auction's state. It is a
// presentation projection; the deadline on chain stays the source of
// truth.
type Status struct {
	ID        string        `json:"id"`
	Phase     Phase         `json:"-"`
	PhaseName string        `json:"phase"`
	Deadline  int64         `json:"deadline"`
	Remaining time.Duration `json:"-"`
	Winner    string        `json:"winner,omitempty"`
}

// Coordinator drives the auction lifecycle: phase derivation, winner
// resolution once the deadline has elapsed, and local gating of bid
// and settlement submissions. The contract remains authoritative for
// every rejection; local gates only refuse what would certainly abort.
type Coordinator struct {
	queries *market.QueryClient
	tx      *market.TxClient
	now     func() time.Time

	mu      sync.Mutex
	winners map[string]string
}

// NewCoordinator creates a coordinator on top of the read and write
// clients.
func NewCoordinator(queries *market.QueryClient, tx *market.TxClient) *Coordinator {
	return &Coordinator{
		queries: queries,
		tx:      tx,
		now:     time.Now,
		winners: make(map[string]string),
	}
}

// Remaining computes the time left before an auction deadline. The
// ledger reports deadlines in seconds; the countdown runs on a
// millisecond clock. Never negative.
func Remaining(deadline int64, now time.Time) time.Duration {
	left := deadline*1000 - now.UnixMilli()
	if left <= 0 {
		return 0
	}
	return time.Duration(left) * time.Millisecond
}

// Advance derives the current phase of an auctioned asset and, on
// crossing the deadline, resolves the winner from the ledger.
func (c *Coordinator) Advance(ctx context.Context, nft *market.NFT) Status {
	status := Status{ID: nft.ID, Deadline: nft.AuctionEnd}
	status.Remaining = Remaining(nft.AuctionEnd, c.now())

	switch {
	case status.Remaining > 0:
		status.Phase = PhaseOpen
	default:
		if winner, ok := c.resolve(ctx, nft.ID); ok {
			status.Phase = PhaseEndedResolved
			status.Winner = winner
		} else {
			status.Phase = PhaseEndedUnresolved
		}
	}
	status.PhaseName = status.Phase.String()
	return status
}

// Winner returns the cached resolved winner for an ended auction.
func (c *Coordinator) Winner(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	winner, ok := c.winners[id]
	return winner, ok
}

func (c *Coordinator) resolve(ctx context.Context, id string) (string, bool) {
	c.mu.Lock()
	if winner, ok := c.winners[id]; ok {
		c.mu.Unlock()
		return winner, true
	}
	c.mu.Unlock()

	winner := c.queries.AuctionWinner(ctx, id)
	if winner == "" {
		return "", false
	}

	c.mu.Lock()
	c.winners[id] = winner
	c.mu.Unlock()
	logrus.Infof("auction: winner for nft %s resolved to %s", id, winner)
	return winner, true
}

// Bid gates a bid locally against the latest snapshot, then submits.
// Stale snapshots mean a gate can pass and still abort on chain; the
// ledger's transaction ordering is the tie-break for concurrent bids.
func (c *Coordinator) Bid(ctx context.Context, nft *market.NFT, bidder string, amount float64) *market.TxResult {
	if !nft.IsAuction {
		return refused(market.Validation(market.KindNotAnAuction, "NFT is not part of an auction"))
	}
	if Remaining(nft.AuctionEnd, c.now()) == 0 {
		return refused(market.Validation(market.KindAuctionAlreadyEnded, "Auction has already ended"))
	}
	if amount <= 0 {
		return refused(market.Validation(market.KindBidMustBePositive, "Bid amount must be greater than zero"))
	}
	if nft.HighestBidder != "" && bidder == nft.HighestBidder {
		return refused(market.Validation(market.KindAlreadyHighestBidder, "You cannot bid if you are already the highest bidder"))
	}
	if amount <= nft.HighestBid {
		return refused(market.Validation(market.KindBidTooLow, "Bid must be higher than current highest bid"))
	}
	return c.tx.PlaceBid(ctx, nft.ID, amount)
}

// Settle submits the purchase that transfers an auctioned asset to its
// winner. It refuses locally, with no submission, unless the auction
// has ended, the winner is resolved, and the caller is that winner.
func (c *Coordinator) Settle(ctx context.Context, nft *market.NFT, caller string, payment float64) *market.TxResult {
	if !nft.IsAuction {
		return refused(market.Validation(market.KindNotAnAuction, "NFT is not part of an auction"))
	}

	status := c.Advance(ctx, nft)
	switch status.Phase {
	case PhaseOpen:
		return refused(market.Validation(market.KindAuctionNotYetEnded, "Auction has not ended yet"))
	case PhaseEndedUnresolved:
		return refused(market.Validation(market.KindAuctionNotYetEnded, "Auction winner is not resolved yet"))
	}
	if caller != status.Winner {
		return refused(market.Validation(market.KindNotHighestBidder, "Only the highest bidder can purchase"))
	}
	return c.tx.Purchase(ctx, nft.ID, payment)
}

func refused(err *market.Error) *market.TxResult {
	return &market.TxResult{Success: false, Err: err}
}
