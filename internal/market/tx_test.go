package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aaronwang/collectible-market/internal/aptos"
)

// stubSigner records every submitted payload and returns a fixed hash.
type stubSigner struct {
	payloads []*aptos.EntryFunctionPayload
	hash     string
	err      error
}

func (s *stubSigner) SignAndSubmit(_ context.Context, payload *aptos.EntryFunctionPayload) (string, error) {
	s.payloads = append(s.payloads, payload)
	if s.err != nil {
		return "", s.err
	}
	return s.hash, nil
}

// finalityServer serves the transaction-by-hash poll with a canned
// terminal transaction.
func finalityServer(t *testing.T, success bool, vmStatus string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"type":"user_transaction","success":` +
			map[bool]string{true: "true", false: "false"}[success] +
			`,"vm_status":"` + vmStatus + `"}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func txClientFor(t *testing.T, signer *stubSigner, success bool, vmStatus string) *TxClient {
	t.Helper()
	server := finalityServer(t, success, vmStatus)
	return NewTxClient(aptos.NewClient(server.URL), signer, testAddr)
}

func TestMintRefusesExcessiveRoyalty(t *testing.T) {
	require := require.New(t)

	signer := &stubSigner{hash: "0xdead"}
	client := txClientFor(t, signer, true, "")

	result := client.Mint(context.Background(), "Cascade", "Misty", "https://a.b", RarityRare, 30)
	require.False(result.Success)
	require.Equal(ClassValidation, result.Err.Class)
	require.Equal(KindRoyaltyTooHigh, result.Err.Kind)
	// Refused before submission: nothing reached the signer.
	require.Empty(signer.payloads)
}

func TestMintSubmitsWireArguments(t *testing.T) {
	require := require.New(t)

	signer := &stubSigner{hash: "0xdead"}
	client := txClientFor(t, signer, true, "")

	result := client.Mint(context.Background(), "ab", "cd", "ef", RarityEpic, 10)
	require.True(result.Success)
	require.Equal("0xdead", result.Hash)
	require.Nil(result.Err)

	require.Len(signer.payloads, 1)
	payload := signer.payloads[0]
	require.Equal("entry_function_payload", payload.Type)
	require.Equal(testAddr+"::NFTMarketplace_v1::mint_nft", payload.Function)
	// Text fields travel as numeric byte arrays, not base64.
	require.Equal([]int{0x61, 0x62}, payload.Arguments[1])
	require.Equal([]int{0x63, 0x64}, payload.Arguments[2])
	require.Equal(RarityEpic, payload.Arguments[4])
	require.Equal(10, payload.Arguments[5])
}

func TestListForSaleValidation(t *testing.T) {
	require := require.New(t)

	signer := &stubSigner{hash: "0xdead"}
	client := txClientFor(t, signer, true, "")
	client.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	zero := client.ListForSale(context.Background(), "7", 0, false, 0)
	require.False(zero.Success)
	require.Equal(KindInvalidPrice, zero.Err.Kind)

	// A deadline ten minutes out is under the one-hour minimum window.
	short := client.ListForSale(context.Background(), "7", 1.5, true, 1_700_000_600)
	require.False(short.Success)
	require.Equal(ClassValidation, short.Err.Class)
	require.Equal(KindAuctionWindowTooShort, short.Err.Kind)
	require.Empty(signer.payloads)

	ok := client.ListForSale(context.Background(), "7", 1.5, true, 1_700_007_200)
	require.True(ok.Success)
	require.Len(signer.payloads, 1)
	// Octas travel as a decimal string.
	require.Equal("150000000", signer.payloads[0].Arguments[2])
	require.Equal(true, signer.payloads[0].Arguments[3])
	require.Equal("1700007200", signer.payloads[0].Arguments[4])
}

func TestPlaceBidValidation(t *testing.T) {
	require := require.New(t)

	signer := &stubSigner{hash: "0xdead"}
	client := txClientFor(t, signer, true, "")

	result := client.PlaceBid(context.Background(), "7", 0)
	require.False(result.Success)
	require.Equal(KindBidMustBePositive, result.Err.Kind)
	require.Empty(signer.payloads)
}

func TestSubmittedBidRejectedByContract(t *testing.T) {
	require := require.New(t)

	signer := &stubSigner{hash: "0xdead"}
	// 0xfa2 is abort code 4002: bid below the current highest.
	client := txClientFor(t, signer, false,
		"Move abort in "+testAddr+"::NFTMarketplace_v1: 0xfa2")

	result := client.PlaceBid(context.Background(), "7", 1.5)
	require.False(result.Success)
	// The transaction landed, so its hash survives the failure.
	require.Equal("0xdead", result.Hash)
	require.Equal(ClassRejection, result.Err.Class)
	require.Equal(KindBidTooLow, result.Err.Kind)
	require.Len(signer.payloads, 1)
}

func TestTransferRequiresRecipient(t *testing.T) {
	require := require.New(t)

	signer := &stubSigner{hash: "0xdead"}
	client := txClientFor(t, signer, true, "")

	result := client.TransferOwnership(context.Background(), "7", "")
	require.False(result.Success)
	require.Equal(ClassValidation, result.Err.Class)
	require.Empty(signer.payloads)

	ok := client.TransferOwnership(context.Background(), "7", "0xb2")
	require.True(ok.Success)
	require.Equal(testAddr+"::NFTMarketplace_v1::transfer_ownership", signer.payloads[0].Function)
}

func TestSubmitFailureIsClassified(t *testing.T) {
	require := require.New(t)

	signer := &stubSigner{err: &aptos.APIError{StatusCode: 503, Message: "mempool full"}}
	client := txClientFor(t, signer, true, "")

	result := client.Purchase(context.Background(), "7", 2.5)
	require.False(result.Success)
	require.Empty(result.Hash)
	require.Equal(ClassTransport, result.Err.Class)
	require.Equal("Failed to purchase NFT", result.Err.Message)
}
