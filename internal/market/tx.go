package market

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aaronwang/collectible-market/internal/aptos"
)

// MinAuctionWindow is the contract-enforced minimum distance between
// listing time and auction deadline. Violations are refused before
// submission; the contract enforces the same bound with code 2003.
const MinAuctionWindow = time.Hour

// defaultWaitHorizon bounds the finality wait when the caller's
// context has no deadline of its own, so a write never hangs silently.
const defaultWaitHorizon = 60 * time.Second

// TxResult is the uniform outcome of every write: a success flag plus
// the classified error when it failed. Raw errors never reach the
// caller. After a successful write the caller re-queries authoritative
// state instead of trusting a local update.
type TxResult struct {
	Success bool   `json:"success"`
	Hash    string `json:"hash,omitempty"`
	Err     *Error `json:"error,omitempty"`
}

// TxClient is the write path. It converts domain arguments to wire
// arguments, builds entry-function payloads, submits them through the
// injected signer and waits for finality.
type TxClient struct {
	chain  *aptos.Client
	signer aptos.Signer
	addr   string
	now    func() time.Time
}

// NewTxClient creates a transaction client for the marketplace at the
// given contract address, submitting through the given signer.
func NewTxClient(chain *aptos.Client, signer aptos.Signer, marketplaceAddr string) *TxClient {
	return &TxClient{
		chain:  chain,
		signer: signer,
		addr:   marketplaceAddr,
		now:    time.Now,
	}
}

// Mint creates a new asset owned by its creator. Royalty above the
// contract maximum is refused before submission, never clamped.
func (c *TxClient) Mint(ctx context.Context, name, description, uri string, rarity, royalty int) *TxResult {
	if royalty < 0 || royalty > MaxRoyaltyPercentage {
		return rejected(&Error{
			Class:   ClassValidation,
			Kind:    KindRoyaltyTooHigh,
			Message: codeMessages[1000],
		})
	}
	if rarity < RarityCommon || rarity > RarityLegendary {
		return rejected(&Error{
			Class:   ClassValidation,
			Kind:    KindUnknown,
			Message: "Rarity must be between 1 and 5",
		})
	}
	return c.submit(ctx, "mint_nft", "Failed to mint NFT",
		c.addr,
		byteArg(EncodeText(name)),
		byteArg(EncodeText(description)),
		byteArg(EncodeText(uri)),
		rarity,
		royalty,
	)
}

// ListForSale puts an asset up for fixed-price sale or auction.
// auctionEnd is a unix timestamp in ledger seconds and is ignored for
// fixed-price listings.
func (c *TxClient) ListForSale(ctx context.Context, id string, price float64, isAuction bool, auctionEnd int64) *TxResult {
	if price <= 0 {
		return rejected(&Error{
			Class:   ClassValidation,
			Kind:    KindInvalidPrice,
			Message: codeMessages[2002],
		})
	}
	if isAuction && auctionEnd < c.now().Add(MinAuctionWindow).Unix() {
		return rejected(&Error{
			Class:   ClassValidation,
			Kind:    KindAuctionWindowTooShort,
			Message: codeMessages[2003],
		})
	}
	return c.submit(ctx, "list_for_sale", "Failed to list NFT for sale",
		c.addr, id,
		strconv.FormatUint(ToOctas(price), 10),
		isAuction,
		strconv.FormatInt(auctionEnd, 10),
	)
}

// SetPrice changes the listing price of an asset.
func (c *TxClient) SetPrice(ctx context.Context, id string, price float64) *TxResult {
	if price <= 0 {
		return rejected(&Error{
			Class:   ClassValidation,
			Kind:    KindInvalidPrice,
			Message: codeMessages[3001],
		})
	}
	return c.submit(ctx, "set_price", "Failed to update NFT price",
		c.addr, id, strconv.FormatUint(ToOctas(price), 10))
}

// PlaceBid bids on an open auction. Ordering between concurrent bids
// is delegated entirely to the ledger.
func (c *TxClient) PlaceBid(ctx context.Context, id string, amount float64) *TxResult {
	if amount <= 0 {
		return rejected(&Error{
			Class:   ClassValidation,
			Kind:    KindBidMustBePositive,
			Message: codeMessages[4003],
		})
	}
	return c.submit(ctx, "place_bid", "Failed to place bid",
		c.addr, id, strconv.FormatUint(ToOctas(amount), 10))
}

// Purchase buys a fixed-price listing or settles an ended auction.
func (c *TxClient) Purchase(ctx context.Context, id string, payment float64) *TxResult {
	if payment <= 0 {
		return rejected(&Error{
			Class:   ClassValidation,
			Kind:    KindInvalidPrice,
			Message: "Payment must be greater than zero",
		})
	}
	return c.submit(ctx, "purchase_nft", "Failed to purchase NFT",
		c.addr, id, strconv.FormatUint(ToOctas(payment), 10))
}

// TransferOwnership moves an asset to another account, independent of
// sale state.
func (c *TxClient) TransferOwnership(ctx context.Context, id, newOwner string) *TxResult {
	if newOwner == "" {
		return rejected(&Error{
			Class:   ClassValidation,
			Kind:    KindUnknown,
			Message: "Recipient address is required",
		})
	}
	return c.submit(ctx, "transfer_ownership", "Failed to transfer NFT ownership",
		c.addr, id, newOwner)
}

// Delete removes an unlisted asset from the marketplace.
func (c *TxClient) Delete(ctx context.Context, id string) *TxResult {
	return c.submit(ctx, "delete_nft", "Failed to delete NFT", c.addr, id)
}

func (c *TxClient) submit(ctx context.Context, entryFn, defaultMsg string, args ...any) *TxResult {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultWaitHorizon)
		defer cancel()
	}

	payload := aptos.NewEntryFunctionPayload(c.addr+"::"+contractModule+"::"+entryFn, args...)

	hash, err := c.signer.SignAndSubmit(ctx, payload)
	if err != nil {
		classified := Classify(err, defaultMsg)
		logrus.Warnf("market: %s submit failed (%s): %v", entryFn, classified.Class, err)
		return rejected(classified)
	}

	if err := c.chain.WaitForTransaction(ctx, hash); err != nil {
		classified := Classify(err, defaultMsg)
		logrus.Warnf("market: %s rejected (%s, code %d): %v", entryFn, classified.Class, classified.Code, err)
		return &TxResult{Success: false, Hash: hash, Err: classified}
	}

	logrus.Infof("market: %s finalized, tx %s", entryFn, hash)
	return &TxResult{Success: true, Hash: hash}
}

func rejected(err *Error) *TxResult {
	return &TxResult{Success: false, Err: err}
}

// byteArg renders UTF-8 bytes as the numeric array form the wire
// format expects; []byte would JSON-encode as base64.
func byteArg(b []byte) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}
