package market

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/aaronwang/collectible-market/internal/aptos"
)

// Kind is a stable semantic category for a marketplace failure,
// decoupled from the contract's raw numeric codes.
type Kind int

const (
	KindUnknown Kind = iota
	KindRoyaltyTooHigh
	KindNotOwner
	KindAlreadyListed
	KindInvalidPrice
	KindAuctionWindowTooShort
	KindAuctionAlreadyEnded
	KindPriceLockedPostAuction
	KindNotAnAuction
	KindAuctionEnded
	KindBidTooLow
	KindBidMustBePositive
	KindAlreadyHighestBidder
	KindNotListed
	KindAuctionNotYetEnded
	KindNotHighestBidder
	KindInsufficientPayment
	KindSameOwnerTransfer
	KindCannotDeleteListed
	KindAssetNotFound
)

var kindNames = map[Kind]string{
	KindUnknown:                "Unknown",
	KindRoyaltyTooHigh:         "RoyaltyTooHigh",
	KindNotOwner:               "NotOwner",
	KindAlreadyListed:          "AlreadyListed",
	KindInvalidPrice:           "InvalidPrice",
	KindAuctionWindowTooShort:  "AuctionWindowTooShort",
	KindAuctionAlreadyEnded:    "AuctionAlreadyEnded",
	KindPriceLockedPostAuction: "PriceLockedPostAuction",
	KindNotAnAuction:           "NotAnAuction",
	KindAuctionEnded:           "AuctionEnded",
	KindBidTooLow:              "BidTooLow",
	KindBidMustBePositive:      "BidMustBePositive",
	KindAlreadyHighestBidder:   "AlreadyHighestBidder",
	KindNotListed:              "NotListed",
	KindAuctionNotYetEnded:     "AuctionNotYetEnded",
	KindNotHighestBidder:       "NotHighestBidder",
	KindInsufficientPayment:    "InsufficientPayment",
	KindSameOwnerTransfer:      "SameOwnerTransfer",
	KindCannotDeleteListed:     "CannotDeleteListed",
	KindAssetNotFound:          "AssetNotFound",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Class describes where a failure originated.
type Class int

const (
	ClassUnknown    Class = iota
	ClassValidation       // detected client-side, nothing was submitted
	ClassRejection        // the contract aborted with an enumerated code
	ClassNotFound         // no matching asset / malformed response
	ClassTransport        // network, timeout, unreachable endpoint
)

var classNames = map[Class]string{
	ClassUnknown:    "unknown",
	ClassValidation: "validation",
	ClassRejection:  "rejection",
	ClassNotFound:   "not_found",
	ClassTransport:  "transport",
}

func (c Class) String() string { return classNames[c] }

// Error is the classified form every marketplace failure is reduced
// to. Code is the raw contract abort code when Class is ClassRejection,
// zero otherwise.
type Error struct {
	Class   Class  `json:"class"`
	Kind    Kind   `json:"-"`
	Code    int64  `json:"code,omitempty"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Cause }

// MarshalJSON renders class and kind by name so API consumers are not
// coupled to internal enum ordering.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Class   string `json:"class"`
		Kind    string `json:"kind"`
		Code    int64  `json:"code,omitempty"`
		Message string `json:"message"`
	}{
		Class:   e.Class.String(),
		Kind:    e.Kind.String(),
		Code:    e.Code,
		Message: e.Message,
	})
}

// The contract's abort code table. Codes are grouped by subsystem:
// 1000s mint/royalty, 2000s-3000s listing, 4000s auction, 5000s
// purchase/settlement, 6000s transfer, 7000s delete. 3000, 6000 and
// 7000 all mean "not owner" on the contract side; the table keeps one
// entry per code instead of collapsing them.
var contractCodes = map[int64]Kind{
	1000: KindRoyaltyTooHigh,
	2000: KindNotOwner,
	2001: KindAlreadyListed,
	2002: KindInvalidPrice,
	2003: KindAuctionWindowTooShort,
	3000: KindNotOwner,
	3001: KindInvalidPrice,
	3002: KindPriceLockedPostAuction,
	4000: KindNotAnAuction,
	4001: KindAuctionEnded,
	4002: KindBidTooLow,
	4003: KindBidMustBePositive,
	4004: KindAlreadyHighestBidder,
	5000: KindNotListed,
	5001: KindAuctionNotYetEnded,
	5002: KindNotHighestBidder,
	5003: KindInsufficientPayment,
	5004: KindInsufficientPayment,
	6000: KindNotOwner,
	6001: KindSameOwnerTransfer,
	7000: KindNotOwner,
	7001: KindCannotDeleteListed,
	7002: KindAssetNotFound,
}

// User-facing message per code. 5003 and 5004 share a kind but keep
// their distinct wording, matching the contract's intent.
var codeMessages = map[int64]string{
	1000: "Royalty percentage cannot exceed 25%",
	2000: "You are not the owner of this NFT",
	2001: "NFT is already listed for sale",
	2002: "Price must be greater than zero",
	2003: "Auction end time must be at least 1 hour in the future",
	3000: "You are not the owner of this NFT",
	3001: "Price must be greater than zero",
	3002: "Cannot change price after auction has ended",
	4000: "NFT is not part of an auction",
	4001: "Auction has ended",
	4002: "Bid must be higher than current highest bid",
	4003: "Bid amount must be greater than zero",
	4004: "You cannot bid if you are already the highest bidder",
	5000: "NFT is not for sale or part of an auction",
	5001: "Auction has not ended yet",
	5002: "Only the highest bidder can purchase",
	5003: "Insufficient payment for auction",
	5004: "Insufficient payment for sale",
	6000: "You are not the owner of this NFT",
	6001: "Cannot transfer to the same owner",
	7000: "You are not the owner of this NFT",
	7001: "Cannot delete an NFT that is listed for sale",
	7002: "NFT not found in the marketplace",
}

// Validation builds a client-side rejection. Nothing is submitted for
// a validation failure; the contract never sees the request.
func Validation(kind Kind, message string) *Error {
	return &Error{Class: ClassValidation, Kind: kind, Message: message}
}

// FromCode maps a contract abort code to a classified error. Codes
// outside the table map to an Unknown rejection carrying defaultMsg,
// never to a failure of the mapper itself.
func FromCode(code int64, defaultMsg string) *Error {
	if kind, ok := contractCodes[code]; ok {
		return &Error{
			Class:   ClassRejection,
			Kind:    kind,
			Code:    code,
			Message: codeMessages[code],
		}
	}
	return &Error{
		Class:   ClassRejection,
		Kind:    KindUnknown,
		Code:    code,
		Message: defaultMsg,
	}
}

// Classify reduces any failure from the read or write path to an
// Error. It is total: whatever comes in, something presentable comes
// out, with defaultMsg used when no enumerated reason applies.
func Classify(err error, defaultMsg string) *Error {
	if err == nil {
		return nil
	}

	var marketErr *Error
	if errors.As(err, &marketErr) {
		return marketErr
	}

	var txErr *aptos.TransactionFailedError
	if errors.As(err, &txErr) {
		if code, ok := abortCode(txErr.VMStatus); ok {
			return FromCode(code, defaultMsg)
		}
		return &Error{Class: ClassRejection, Kind: KindUnknown, Message: defaultMsg, Cause: err}
	}

	var apiErr *aptos.APIError
	if errors.As(err, &apiErr) {
		if apiErr.VMErrorCode != 0 {
			return FromCode(apiErr.VMErrorCode, defaultMsg)
		}
		if apiErr.StatusCode == 404 {
			return &Error{Class: ClassNotFound, Kind: KindAssetNotFound, Message: codeMessages[7002], Cause: err}
		}
		return &Error{Class: ClassTransport, Kind: KindUnknown, Message: defaultMsg, Cause: err}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Class: ClassTransport, Kind: KindUnknown, Message: defaultMsg, Cause: err}
	}

	return &Error{Class: ClassUnknown, Kind: KindUnknown, Message: defaultMsg, Cause: err}
}

// abortCode extracts the numeric abort code from a VM status string
// such as "Move abort in 0xcafe::NFTMarketplace_v1: 0x7d0". Both hex
// and decimal trailing codes are accepted.
func abortCode(vmStatus string) (int64, bool) {
	fields := strings.Fields(vmStatus)
	if len(fields) == 0 {
		return 0, false
	}
	last := strings.TrimRight(fields[len(fields)-1], ".,)")
	if hexCode, ok := strings.CutPrefix(last, "0x"); ok {
		code, err := strconv.ParseInt(hexCode, 16, 64)
		if err != nil {
			return 0, false
		}
		return code, true
	}
	code, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0, false
	}
	return code, true
}
