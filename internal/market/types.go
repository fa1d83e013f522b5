package market

// Rarity tiers as recorded on chain. The contract stores them as a u8.
const (
	RarityCommon    = 1
	RarityUncommon  = 2
	RarityRare      = 3
	RarityEpic      = 4
	RarityLegendary = 5
)

var rarityNames = map[int]string{
	RarityCommon:    "Common",
	RarityUncommon:  "Uncommon",
	RarityRare:      "Rare",
	RarityEpic:      "Epic",
	RarityLegendary: "Legendary",
}

// RarityName returns the display name for a rarity tier, or "Unknown"
// for anything outside the 1-5 range.
func RarityName(rarity int) string {
	if name, ok := rarityNames[rarity]; ok {
		return name
	}
	return "Unknown"
}

// MaxRoyaltyPercentage is enforced by the contract at mint time. The
// client refuses to submit a violating mint rather than clamping it.
const MaxRoyaltyPercentage = 25

// NFT is the full detail view of a marketplace asset. Prices and bids
// are in display units (APT), already converted from octas. Name,
// description and URI are decoded from the chain's hex encoding.
//
// HighestBidder is the empty string when no bid has been placed, so
// comparisons against "no bidder" are always well-defined.
type NFT struct {
	ID              string  `json:"id"`
	Owner           string  `json:"owner"`
	OriginalCreator string  `json:"original_creator"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	URI             string  `json:"uri"`
	Price           float64 `json:"price"`
	ForSale         bool    `json:"for_sale"`
	Rarity          int     `json:"rarity"`
	ListingDate     int64   `json:"listing_date"`
	Royalty         int     `json:"royalty_percentage"`
	IsAuction       bool    `json:"is_auction"`
	AuctionEnd      int64   `json:"auction_end,omitempty"`
	HighestBid      float64 `json:"highest_bid,omitempty"`
	HighestBidder   string  `json:"highest_bidder,omitempty"`
}

// ListedNFT is the lightweight projection returned by the paginated
// browse queries: enough to render a card without a detail fetch.
type ListedNFT struct {
	ID          string  `json:"id"`
	Price       float64 `json:"price"`
	Rarity      int     `json:"rarity"`
	ListingDate int64   `json:"listing_date"`
}
