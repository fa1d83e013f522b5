package market

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aaronwang/collectible-market/internal/aptos"
)

func TestFromCodeCoversWholeTable(t *testing.T) {
	require := require.New(t)

	expected := map[int64]Kind{
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

	for code, kind := range expected {
		err := FromCode(code, "default")
		require.Equal(kind, err.Kind, "code %d", code)
		require.Equal(ClassRejection, err.Class, "code %d", code)
		require.Equal(code, err.Code, "code %d", code)
		require.NotEmpty(err.Message, "code %d", code)
		require.NotEqual("default", err.Message, "code %d", code)
	}
}

func TestFromCodeUnknownCode(t *testing.T) {
	require := require.New(t)

	err := FromCode(9999, "something went wrong")
	require.Equal(KindUnknown, err.Kind)
	require.Equal("something went wrong", err.Message)
}

func TestInsufficientPaymentKeepsDistinctMessages(t *testing.T) {
	require := require.New(t)

	auction := FromCode(5003, "default")
	sale := FromCode(5004, "default")
	require.Equal(auction.Kind, sale.Kind)
	require.NotEqual(auction.Message, sale.Message)
}

func TestClassifyAbortedTransaction(t *testing.T) {
	require := require.New(t)

	cases := map[string]Kind{
		"Move abort in 0xcafe::NFTMarketplace_v1: 0xfa2": KindBidTooLow,
		"Move abort in 0xcafe::NFTMarketplace_v1: 4002":  KindBidTooLow,
		"Move abort in 0xcafe::NFTMarketplace_v1: 0x3e8": KindRoyaltyTooHigh,
		"Move abort in 0xcafe::NFTMarketplace_v1: 2003":  KindAuctionWindowTooShort,
	}
	for vmStatus, kind := range cases {
		classified := Classify(&aptos.TransactionFailedError{Hash: "0xabc", VMStatus: vmStatus}, "default")
		require.Equal(kind, classified.Kind, "vm_status %q", vmStatus)
		require.Equal(ClassRejection, classified.Class, "vm_status %q", vmStatus)
	}
}

func TestClassifyAbortWithoutCode(t *testing.T) {
	require := require.New(t)

	classified := Classify(&aptos.TransactionFailedError{Hash: "0xabc", VMStatus: "out of gas"}, "it broke")
	require.Equal(KindUnknown, classified.Kind)
	require.Equal("it broke", classified.Message)
}

func TestClassifyAPIErrors(t *testing.T) {
	require := require.New(t)

	notFound := Classify(&aptos.APIError{StatusCode: 404, Message: "resource not found"}, "default")
	require.Equal(ClassNotFound, notFound.Class)
	require.Equal(KindAssetNotFound, notFound.Kind)

	abort := Classify(&aptos.APIError{StatusCode: 400, VMErrorCode: 4004}, "default")
	require.Equal(ClassRejection, abort.Class)
	require.Equal(KindAlreadyHighestBidder, abort.Kind)

	flaky := Classify(&aptos.APIError{StatusCode: 503, Message: "unavailable"}, "default")
	require.Equal(ClassTransport, flaky.Class)
	require.Equal("default", flaky.Message)
}

func TestClassifyIsTotal(t *testing.T) {
	require := require.New(t)

	require.Nil(Classify(nil, "default"))

	plain := Classify(errors.New("boom"), "default")
	require.Equal(ClassUnknown, plain.Class)
	require.Equal(KindUnknown, plain.Kind)
	require.Equal("default", plain.Message)

	// Already-classified errors pass through unchanged.
	original := Validation(KindRoyaltyTooHigh, "too high")
	require.Same(original, Classify(original, "default"))
}
