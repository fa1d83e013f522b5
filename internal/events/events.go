package events

import (
	"time"
)

// Type enumerates the marketplace events the services publish.
type Type string

const (
	TypeMinted       Type = "minted"
	TypeListed       Type = "listed"
	TypePriceChanged Type = "price_changed"
	TypeBidPlaced    Type = "bid_placed"
	TypeSold         Type = "sold"
	TypeTransferred  Type = "transferred"
	TypeDeleted      Type = "deleted"
)

// Event is published after a successful write, once the transaction
// has finalized. It is sent to Redis pub/sub for real-time broadcast
// and to JetStream for archival; neither channel is on the write's
// critical path.
type Event struct {
	EventID   string    `json:"event_id"`
	Type      Type      `json:"type"`
	AssetID   string    `json:"asset_id"`
	Actor     string    `json:"actor,omitempty"`
	Amount    float64   `json:"amount,omitempty"`
	TxHash    string    `json:"tx_hash"`
	Timestamp time.Time `json:"timestamp"`
}
