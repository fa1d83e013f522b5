package aptos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EntryFunctionPayload names a contract entry function and its
// positional arguments, ready to be signed and submitted.
type EntryFunctionPayload struct {
	Type          string `json:"type"`
	Function      string `json:"function"`
	TypeArguments []any  `json:"type_arguments"`
	Arguments     []any  `json:"arguments"`
}

// NewEntryFunctionPayload builds a payload for the given fully
// qualified entry function.
func NewEntryFunctionPayload(function string, args ...any) *EntryFunctionPayload {
	if args == nil {
		args = []any{}
	}
	return &EntryFunctionPayload{
		Type:          "entry_function_payload",
		Function:      function,
		TypeArguments: []any{},
		Arguments:     args,
	}
}

// Signer is the injected signing capability. The marketplace client
// never touches keys: it hands a payload to the signer and gets back a
// transaction hash to wait on. Wallet agents, hardware signers and
// test fakes all fit behind this.
type Signer interface {
	SignAndSubmit(ctx context.Context, payload *EntryFunctionPayload) (string, error)
}

// RemoteSigner submits payloads to an external wallet agent over HTTP.
// The agent holds the keys and answers with the submitted transaction
// hash.
type RemoteSigner struct {
	agentURL string
	http     *http.Client
}

// NewRemoteSigner creates a signer backed by a wallet agent endpoint.
func NewRemoteSigner(agentURL string) *RemoteSigner {
	return &RemoteSigner{
		agentURL: agentURL,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// SignAndSubmit posts the payload to the wallet agent and returns the
// transaction hash it reports.
func (s *RemoteSigner) SignAndSubmit(ctx context.Context, payload *EntryFunctionPayload) (string, error) {
	body, err := json.Marshal(map[string]any{"payload": payload})
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.agentURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build signing request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("wallet agent request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read wallet agent response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("wallet agent returned %d: %s", resp.StatusCode, raw)
	}

	var result struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("failed to decode wallet agent response: %w", err)
	}
	if result.Hash == "" {
		return "", fmt.Errorf("wallet agent returned no transaction hash")
	}
	return result.Hash, nil
}
