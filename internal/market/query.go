package market

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/aaronwang/collectible-market/internal/aptos"
)

// contractModule is the on-chain module every call targets.
const contractModule = "NFTMarketplace_v1"

// nftDetailArity is the number of positional fields a detail response
// must carry before it is destructured. Shorter responses are treated
// as absent, never as a partial asset.
const nftDetailArity = 14

// QueryClient is the read path: pure view calls against current ledger
// state, normalized into the domain model. Every operation is total;
// failures degrade to empty results and are logged after
// classification.
type QueryClient struct {
	chain *aptos.Client
	addr  string
}

// NewQueryClient creates a query client for the marketplace at the
// given contract address.
func NewQueryClient(chain *aptos.Client, marketplaceAddr string) *QueryClient {
	return &QueryClient{chain: chain, addr: marketplaceAddr}
}

func (q *QueryClient) function(name string) string {
	return q.addr + "::" + contractModule + "::" + name
}

// IsInitialized reports whether the marketplace store exists under the
// contract address.
func (q *QueryClient) IsInitialized(ctx context.Context) bool {
	results, err := q.chain.View(ctx, q.function("is_marketplace_initialized"), q.addr)
	if err != nil || len(results) == 0 {
		q.degrade("is_marketplace_initialized", err)
		return false
	}
	return decodeBool(results[0])
}

// NFTDetails fetches the full detail tuple for one asset. The second
// return is false when the asset does not exist or the response is
// malformed.
func (q *QueryClient) NFTDetails(ctx context.Context, id string) (*NFT, bool) {
	results, err := q.chain.View(ctx, q.function("get_nft_details"), q.addr, id)
	if err != nil {
		q.degrade("get_nft_details", err)
		return nil, false
	}
	if len(results) < nftDetailArity {
		logrus.Warnf("market: malformed detail response for nft %s: %d fields", id, len(results))
		return nil, false
	}

	nft := &NFT{
		ID:              decodeU64String(results[0]),
		Owner:           shortAddress(decodeString(results[1])),
		OriginalCreator: shortAddress(decodeString(results[2])),
		Name:            DecodeHexText(decodeString(results[3])),
		Description:     DecodeHexText(decodeString(results[4])),
		URI:             DecodeHexText(decodeString(results[5])),
		Price:           FromOctas(decodeU64(results[6])),
		ForSale:         decodeBool(results[7]),
		Rarity:          int(decodeU64(results[8])),
		ListingDate:     int64(decodeU64(results[9])),
		Royalty:         int(decodeU64(results[10])),
		IsAuction:       decodeBool(results[11]),
		AuctionEnd:      int64(decodeU64(results[12])),
		HighestBid:      FromOctas(decodeU64(results[13])),
	}
	if len(results) > nftDetailArity {
		nft.HighestBidder = bidderOrNone(decodeString(results[14]))
	}
	return nft, true
}

// listedNFTWire is the projection shape the paginated views return.
// u64 fields arrive as decimal strings.
type listedNFTWire struct {
	ID          string `json:"id"`
	Price       string `json:"price"`
	Rarity      int    `json:"rarity"`
	ListingDate string `json:"listing_date"`
}

func (w listedNFTWire) domain() ListedNFT {
	price, _ := strconv.ParseUint(w.Price, 10, 64)
	date, _ := strconv.ParseInt(w.ListingDate, 10, 64)
	return ListedNFT{
		ID:          w.ID,
		Price:       FromOctas(price),
		Rarity:      w.Rarity,
		ListingDate: date,
	}
}

// NFTsForSale returns one page of fixed-price and auction listings.
func (q *QueryClient) NFTsForSale(ctx context.Context, limit, offset int) []ListedNFT {
	return q.listedPage(ctx, "get_all_nfts_for_sale", limit, offset)
}

// NFTsInAuction returns one page of auction listings.
func (q *QueryClient) NFTsInAuction(ctx context.Context, limit, offset int) []ListedNFT {
	return q.listedPage(ctx, "get_nfts_in_auction", limit, offset)
}

func (q *QueryClient) listedPage(ctx context.Context, viewName string, limit, offset int) []ListedNFT {
	results, err := q.chain.View(ctx, q.function(viewName), q.addr,
		strconv.Itoa(limit), strconv.Itoa(offset))
	if err != nil || len(results) == 0 {
		q.degrade(viewName, err)
		return nil
	}

	var wire []listedNFTWire
	if err := json.Unmarshal(results[0], &wire); err != nil {
		q.degrade(viewName, err)
		return nil
	}
	listings := make([]ListedNFT, 0, len(wire))
	for _, w := range wire {
		listings = append(listings, w.domain())
	}
	return listings
}

// NFTsForOwner returns a page of asset ids held by one account.
func (q *QueryClient) NFTsForOwner(ctx context.Context, owner string, limit, offset int) []string {
	return q.idList(ctx, "get_all_nfts_for_owner", q.addr, owner,
		strconv.Itoa(limit), strconv.Itoa(offset))
}

// NFTsByRarity returns ids of assets with the given rarity tier.
func (q *QueryClient) NFTsByRarity(ctx context.Context, rarity int) []string {
	return q.idList(ctx, "get_nfts_by_rarity", q.addr, strconv.Itoa(rarity))
}

// NFTsByListingDate returns ids of assets listed at the given date.
func (q *QueryClient) NFTsByListingDate(ctx context.Context, date int64) []string {
	return q.idList(ctx, "get_nfts_by_listing_date", q.addr, strconv.FormatInt(date, 10))
}

// NFTsByPrice returns ids of assets listed at the given price.
func (q *QueryClient) NFTsByPrice(ctx context.Context, price float64) []string {
	return q.idList(ctx, "get_nfts_by_price", q.addr,
		strconv.FormatUint(ToOctas(price), 10))
}

func (q *QueryClient) idList(ctx context.Context, viewName string, args ...any) []string {
	results, err := q.chain.View(ctx, q.function(viewName), args...)
	if err != nil || len(results) == 0 {
		q.degrade(viewName, err)
		return nil
	}
	var ids []string
	if err := json.Unmarshal(results[0], &ids); err != nil {
		q.degrade(viewName, err)
		return nil
	}
	return ids
}

// IsForSale reports whether one asset is currently purchasable.
func (q *QueryClient) IsForSale(ctx context.Context, id string) bool {
	return q.boolView(ctx, "is_nft_for_sale", id)
}

// IsInAuction reports whether one asset is under auction.
func (q *QueryClient) IsInAuction(ctx context.Context, id string) bool {
	return q.boolView(ctx, "is_nft_for_auction", id)
}

func (q *QueryClient) boolView(ctx context.Context, viewName, id string) bool {
	results, err := q.chain.View(ctx, q.function(viewName), q.addr, id)
	if err != nil || len(results) == 0 {
		q.degrade(viewName, err)
		return false
	}
	return decodeBool(results[0])
}

// Owner returns the current owner of an asset, or "" when the read
// fails.
func (q *QueryClient) Owner(ctx context.Context, id string) string {
	return q.addressView(ctx, "get_owner", id)
}

// AuctionWinner returns the highest bidder once an auction has ended,
// or "" when the read fails.
func (q *QueryClient) AuctionWinner(ctx context.Context, id string) string {
	return q.addressView(ctx, "get_auction_winner", id)
}

func (q *QueryClient) addressView(ctx context.Context, viewName, id string) string {
	results, err := q.chain.View(ctx, q.function(viewName), q.addr, id)
	if err != nil || len(results) == 0 {
		q.degrade(viewName, err)
		return ""
	}
	return shortAddress(decodeString(results[0]))
}

// Price returns the listing price of an asset in display units, or 0
// when the read fails.
func (q *QueryClient) Price(ctx context.Context, id string) float64 {
	results, err := q.chain.View(ctx, q.function("get_nft_price"), q.addr, id)
	if err != nil || len(results) == 0 {
		q.degrade("get_nft_price", err)
		return 0
	}
	return FromOctas(decodeU64(results[0]))
}

// marketplaceResource mirrors the on-chain store for the account
// resource read. Text fields are hex-encoded, amounts are octas.
type marketplaceNFTWire struct {
	ID            string `json:"id"`
	Owner         string `json:"owner"`
	Creator       string `json:"original_creator"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	URI           string `json:"uri"`
	Price         string `json:"price"`
	ForSale       bool   `json:"for_sale"`
	Rarity        int    `json:"rarity"`
	ListingDate   string `json:"listing_date"`
	Royalty       int    `json:"royalty_percentage"`
	IsAuction     bool   `json:"is_auction"`
	AuctionEnd    string `json:"auction_end"`
	HighestBid    string `json:"highest_bid"`
	HighestBidder string `json:"highest_bidder"`
}

// MarketplaceNFTs reads the whole marketplace store in one resource
// fetch and returns the decoded for-sale assets, optionally filtered
// by rarity (0 means all tiers).
func (q *QueryClient) MarketplaceNFTs(ctx context.Context, rarity int) []NFT {
	data, err := q.chain.AccountResource(ctx, q.addr, q.addr+"::"+contractModule+"::Marketplace")
	if err != nil {
		q.degrade("marketplace_resource", err)
		return nil
	}

	var store struct {
		NFTs []marketplaceNFTWire `json:"nfts"`
	}
	if err := json.Unmarshal(data, &store); err != nil {
		q.degrade("marketplace_resource", err)
		return nil
	}

	nfts := make([]NFT, 0, len(store.NFTs))
	for _, w := range store.NFTs {
		if !w.ForSale || (rarity != 0 && w.Rarity != rarity) {
			continue
		}
		price, _ := strconv.ParseUint(w.Price, 10, 64)
		date, _ := strconv.ParseInt(w.ListingDate, 10, 64)
		end, _ := strconv.ParseInt(w.AuctionEnd, 10, 64)
		bid, _ := strconv.ParseUint(w.HighestBid, 10, 64)
		nfts = append(nfts, NFT{
			ID:              w.ID,
			Owner:           shortAddress(w.Owner),
			OriginalCreator: shortAddress(w.Creator),
			Name:            DecodeHexText(w.Name),
			Description:     DecodeHexText(w.Description),
			URI:             DecodeHexText(w.URI),
			Price:           FromOctas(price),
			ForSale:         w.ForSale,
			Rarity:          w.Rarity,
			ListingDate:     date,
			Royalty:         w.Royalty,
			IsAuction:       w.IsAuction,
			AuctionEnd:      end,
			HighestBid:      FromOctas(bid),
			HighestBidder:   bidderOrNone(w.HighestBidder),
		})
	}
	return nfts
}

// ResolveDetails fans out one detail query per id and gathers the
// subset that resolved, preserving input order, plus a count of
// failures. One failed fetch never fails the page.
func (q *QueryClient) ResolveDetails(ctx context.Context, ids []string) ([]NFT, int) {
	resolved := make([]*NFT, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			if nft, ok := q.NFTDetails(ctx, id); ok {
				resolved[i] = nft
			}
		}(i, id)
	}
	wg.Wait()

	nfts := make([]NFT, 0, len(ids))
	failed := 0
	for _, nft := range resolved {
		if nft == nil {
			failed++
			continue
		}
		nfts = append(nfts, *nft)
	}
	return nfts, failed
}

func (q *QueryClient) degrade(viewName string, err error) {
	if err == nil {
		return
	}
	classified := Classify(err, "marketplace query failed")
	logrus.Warnf("market: %s degraded (%s): %v", viewName, classified.Class, err)
}

func decodeString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func decodeBool(raw json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false
	}
	return b
}

// decodeU64 accepts both JSON numbers and the decimal strings the
// ledger uses for u64 values.
func decodeU64(raw json.RawMessage) uint64 {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		n, _ := strconv.ParseUint(s, 10, 64)
		return n
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	return 0
}

// decodeU64String renders a u64 field as its decimal string form,
// accepting either wire representation.
func decodeU64String(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatUint(n, 10)
	}
	return ""
}

// bidderOrNone maps a missing or zero highest-bidder address to the
// empty "no bidder" sentinel, so downstream comparisons never have to
// special-case the zero address.
func bidderOrNone(addr string) string {
	short := shortAddress(addr)
	if short == "0x0" {
		return ""
	}
	return short
}

// shortAddress normalizes an account address to its short form:
// lowercase, 0x-prefixed, leading zeros stripped. Empty input stays
// empty so the "no bidder" sentinel survives normalization.
func shortAddress(addr string) string {
	if addr == "" {
		return ""
	}
	trimmed := strings.TrimPrefix(strings.ToLower(addr), "0x")
	trimmed = strings.TrimLeft(trimmed, "0")
	if trimmed == "" {
		return "0x0"
	}
	return "0x" + trimmed
}
