package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aaronwang/collectible-market/internal/auction"
	"github.com/aaronwang/collectible-market/internal/events"
	"github.com/aaronwang/collectible-market/internal/market"
)

// Queries is the read surface the gateway consumes. Satisfied by
// *market.QueryClient; tests substitute a fake per case.
type Queries interface {
	IsInitialized(ctx context.Context) bool
	NFTDetails(ctx context.Context, id string) (*market.NFT, bool)
	NFTsForSale(ctx context.Context, limit, offset int) []market.ListedNFT
	NFTsInAuction(ctx context.Context, limit, offset int) []market.ListedNFT
	NFTsForOwner(ctx context.Context, owner string, limit, offset int) []string
	NFTsByRarity(ctx context.Context, rarity int) []string
	NFTsByListingDate(ctx context.Context, date int64) []string
	NFTsByPrice(ctx context.Context, price float64) []string
	ResolveDetails(ctx context.Context, ids []string) ([]market.NFT, int)
	Owner(ctx context.Context, id string) string
	Price(ctx context.Context, id string) float64
	AuctionWinner(ctx context.Context, id string) string
}

// Writer is the write surface. Satisfied by *market.TxClient.
type Writer interface {
	Mint(ctx context.Context, name, description, uri string, rarity, royalty int) *market.TxResult
	ListForSale(ctx context.Context, id string, price float64, isAuction bool, auctionEnd int64) *market.TxResult
	SetPrice(ctx context.Context, id string, price float64) *market.TxResult
	Purchase(ctx context.Context, id string, payment float64) *market.TxResult
	TransferOwnership(ctx context.Context, id, newOwner string) *market.TxResult
	Delete(ctx context.Context, id string) *market.TxResult
}

// Auctions is the lifecycle surface. Satisfied by
// *auction.Coordinator.
type Auctions interface {
	Advance(ctx context.Context, nft *market.NFT) auction.Status
	Bid(ctx context.Context, nft *market.NFT, bidder string, amount float64) *market.TxResult
	Settle(ctx context.Context, nft *market.NFT, caller string, payment float64) *market.TxResult
}

// SnapshotCache holds the latest fetched asset snapshots and the
// realtime event channel. Satisfied by *cache.Client.
type SnapshotCache interface {
	AssetSnapshot(ctx context.Context, id string) (*market.NFT, bool)
	StoreAssetSnapshot(ctx context.Context, nft *market.NFT) error
	InvalidateAsset(ctx context.Context, id string) error
	PublishMarketEvent(ctx context.Context, assetID string, event any) error
}

// EventSink archives events. Satisfied by *events.Publisher.
type EventSink interface {
	Publish(ctx context.Context, event *events.Event) error
}

// AuctionView is an auction listing joined with its derived lifecycle
// state for display.
type AuctionView struct {
	market.NFT
	Phase            string `json:"phase"`
	RemainingSeconds int64  `json:"remaining_seconds"`
	Winner           string `json:"winner,omitempty"`
}

// Page is a best-effort collection: the resolved subset of a listing
// page plus how many detail fetches failed.
type Page[T any] struct {
	Items  []T `json:"items"`
	Failed int `json:"failed"`
}

// Service coordinates the marketplace clients for the HTTP surface:
// cache-aware reads, and writes that invalidate + refetch + publish
// once the ledger confirms.
type Service struct {
	queries  Queries
	writer   Writer
	auctions Auctions
	cache    SnapshotCache
	sink     EventSink
}

// NewService wires the gateway service.
func NewService(queries Queries, writer Writer, auctions Auctions, cache SnapshotCache, sink EventSink) *Service {
	return &Service{
		queries:  queries,
		writer:   writer,
		auctions: auctions,
		cache:    cache,
		sink:     sink,
	}
}

// Initialized reports whether the marketplace contract store exists.
func (s *Service) Initialized(ctx context.Context) bool {
	return s.queries.IsInitialized(ctx)
}

// NFTDetail returns one asset, preferring the cached snapshot and
// refreshing it on a miss.
func (s *Service) NFTDetail(ctx context.Context, id string) (*market.NFT, bool) {
	if s.cache != nil {
		if nft, ok := s.cache.AssetSnapshot(ctx, id); ok {
			return nft, true
		}
	}

	nft, ok := s.queries.NFTDetails(ctx, id)
	if !ok {
		return nil, false
	}
	s.storeSnapshot(ctx, nft)
	return nft, true
}

// ForSalePage resolves one page of sale listings into full details.
func (s *Service) ForSalePage(ctx context.Context, limit, offset int) Page[market.NFT] {
	listings := s.queries.NFTsForSale(ctx, limit, offset)
	return s.resolvePage(ctx, listings)
}

// AuctionPage resolves one page of auction listings and joins each
// with its derived lifecycle status.
func (s *Service) AuctionPage(ctx context.Context, limit, offset int) Page[AuctionView] {
	listings := s.queries.NFTsInAuction(ctx, limit, offset)
	resolved := s.resolvePage(ctx, listings)

	views := make([]AuctionView, 0, len(resolved.Items))
	for i := range resolved.Items {
		nft := resolved.Items[i]
		status := s.auctions.Advance(ctx, &nft)
		views = append(views, AuctionView{
			NFT:              nft,
			Phase:            status.PhaseName,
			RemainingSeconds: int64(status.Remaining / time.Second),
			Winner:           status.Winner,
		})
	}
	return Page[AuctionView]{Items: views, Failed: resolved.Failed}
}

func (s *Service) resolvePage(ctx context.Context, listings []market.ListedNFT) Page[market.NFT] {
	ids := make([]string, 0, len(listings))
	for _, listing := range listings {
		ids = append(ids, listing.ID)
	}
	nfts, failed := s.queries.ResolveDetails(ctx, ids)
	for i := range nfts {
		s.storeSnapshot(ctx, &nfts[i])
	}
	return Page[market.NFT]{Items: nfts, Failed: failed}
}

// OwnerNFTs returns a page of asset ids held by one account.
func (s *Service) OwnerNFTs(ctx context.Context, owner string, limit, offset int) []string {
	return s.queries.NFTsForOwner(ctx, owner, limit, offset)
}

// Mint submits a mint and publishes the confirmation.
func (s *Service) Mint(ctx context.Context, creator, name, description, uri string, rarity, royalty int) *market.TxResult {
	result := s.writer.Mint(ctx, name, description, uri, rarity, royalty)
	if result.Success {
		s.publish(ctx, &events.Event{Type: events.TypeMinted, Actor: creator, TxHash: result.Hash})
	}
	return result
}

// List puts an asset up for sale or auction.
func (s *Service) List(ctx context.Context, id, actor string, price float64, isAuction bool, auctionEnd int64) *market.TxResult {
	result := s.writer.ListForSale(ctx, id, price, isAuction, auctionEnd)
	s.afterWrite(ctx, id, result, &events.Event{
		Type: events.TypeListed, AssetID: id, Actor: actor, Amount: price,
	})
	return result
}

// SetPrice changes a listing price.
func (s *Service) SetPrice(ctx context.Context, id, actor string, price float64) *market.TxResult {
	result := s.writer.SetPrice(ctx, id, price)
	s.afterWrite(ctx, id, result, &events.Event{
		Type: events.TypePriceChanged, AssetID: id, Actor: actor, Amount: price,
	})
	return result
}

// Bid places a bid through the auction coordinator's local gates.
func (s *Service) Bid(ctx context.Context, id, bidder string, amount float64) *market.TxResult {
	nft, ok := s.freshDetail(ctx, id)
	if !ok {
		return notFoundResult()
	}
	result := s.auctions.Bid(ctx, nft, bidder, amount)
	s.afterWrite(ctx, id, result, &events.Event{
		Type: events.TypeBidPlaced, AssetID: id, Actor: bidder, Amount: amount,
	})
	return result
}

// Purchase buys a fixed-price listing, or settles an ended auction
// through the coordinator when the asset is under auction.
func (s *Service) Purchase(ctx context.Context, id, buyer string, payment float64) *market.TxResult {
	nft, ok := s.freshDetail(ctx, id)
	if !ok {
		return notFoundResult()
	}

	var result *market.TxResult
	if nft.IsAuction {
		result = s.auctions.Settle(ctx, nft, buyer, payment)
	} else {
		result = s.writer.Purchase(ctx, id, payment)
	}
	s.afterWrite(ctx, id, result, &events.Event{
		Type: events.TypeSold, AssetID: id, Actor: buyer, Amount: payment,
	})
	return result
}

// Transfer moves an asset to another account.
func (s *Service) Transfer(ctx context.Context, id, actor, newOwner string) *market.TxResult {
	result := s.writer.TransferOwnership(ctx, id, newOwner)
	s.afterWrite(ctx, id, result, &events.Event{
		Type: events.TypeTransferred, AssetID: id, Actor: actor,
	})
	return result
}

// Delete removes an unlisted asset.
func (s *Service) Delete(ctx context.Context, id, actor string) *market.TxResult {
	result := s.writer.Delete(ctx, id)
	s.afterWrite(ctx, id, result, &events.Event{
		Type: events.TypeDeleted, AssetID: id, Actor: actor,
	})
	return result
}

// Owner exposes the single-field owner read.
func (s *Service) Owner(ctx context.Context, id string) string {
	return s.queries.Owner(ctx, id)
}

// Price exposes the single-field price read.
func (s *Service) Price(ctx context.Context, id string) float64 {
	return s.queries.Price(ctx, id)
}

// AuctionWinner exposes the winner read for an ended auction.
func (s *Service) AuctionWinner(ctx context.Context, id string) string {
	return s.queries.AuctionWinner(ctx, id)
}

// freshDetail always hits the ledger: write gating must never run
// against a cached snapshot.
func (s *Service) freshDetail(ctx context.Context, id string) (*market.NFT, bool) {
	return s.queries.NFTDetails(ctx, id)
}

// afterWrite implements the re-query discipline: drop the cached
// snapshot, refetch authoritative state, then publish the event on
// both channels. Local state is never mutated optimistically.
func (s *Service) afterWrite(ctx context.Context, id string, result *market.TxResult, event *events.Event) {
	if !result.Success {
		return
	}

	if s.cache != nil {
		if err := s.cache.InvalidateAsset(ctx, id); err != nil {
			logrus.Warnf("gateway: failed to invalidate snapshot for nft %s: %v", id, err)
		}
	}
	if nft, ok := s.queries.NFTDetails(ctx, id); ok {
		s.storeSnapshot(ctx, nft)
	}

	event.TxHash = result.Hash
	s.publish(ctx, event)
}

func (s *Service) publish(ctx context.Context, event *events.Event) {
	event.EventID = uuid.New().String()
	event.Timestamp = time.Now().UTC()

	if s.cache != nil && event.AssetID != "" {
		if err := s.cache.PublishMarketEvent(ctx, event.AssetID, event); err != nil {
			logrus.Warnf("gateway: failed to publish realtime event: %v", err)
		}
	}

	if s.sink != nil {
		// Archival is off the write's critical path.
		go func(ev events.Event) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.sink.Publish(ctx, &ev); err != nil {
				logrus.Warnf("gateway: failed to publish archival event: %v", err)
			}
		}(*event)
	}
}

func (s *Service) storeSnapshot(ctx context.Context, nft *market.NFT) {
	if s.cache == nil {
		return
	}
	if err := s.cache.StoreAssetSnapshot(ctx, nft); err != nil {
		logrus.Warnf("gateway: failed to cache snapshot for nft %s: %v", nft.ID, err)
	}
}

func notFoundResult() *market.TxResult {
	return &market.TxResult{
		Success: false,
		Err: &market.Error{
			Class:   market.ClassNotFound,
			Kind:    market.KindAssetNotFound,
			Message: "NFT not found in the marketplace",
		},
	}
}
