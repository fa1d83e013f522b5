package aptos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	requestTimeout = 10 * time.Second
	waitSleep      = 500 * time.Millisecond
)

// Client is a thin REST client for a ledger fullnode. It only covers
// the surface the marketplace needs: view function calls, account
// resource reads and transaction-by-hash polling.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for the given fullnode URL.
func NewClient(fullnodeURL string) *Client {
	return &Client{
		base: strings.TrimSuffix(fullnodeURL, "/"),
		http: &http.Client{Timeout: requestTimeout},
	}
}

// APIError is a non-2xx response from the fullnode. VMErrorCode is the
// contract abort code when the node surfaces one, zero otherwise.
type APIError struct {
	StatusCode  int    `json:"-"`
	Message     string `json:"message"`
	ErrorCode   string `json:"error_code"`
	VMErrorCode int64  `json:"vm_error_code"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fullnode returned %d (%s): %s", e.StatusCode, e.ErrorCode, e.Message)
}

// TransactionFailedError is a transaction that was included on chain
// but did not execute successfully.
type TransactionFailedError struct {
	Hash     string
	VMStatus string
}

func (e *TransactionFailedError) Error() string {
	return fmt.Sprintf("transaction %s failed: %s", e.Hash, e.VMStatus)
}

type viewRequest struct {
	Function      string `json:"function"`
	TypeArguments []any  `json:"type_arguments"`
	Arguments     []any  `json:"arguments"`
}

// View calls a read-only contract function and returns its positional
// results as raw JSON values.
func (c *Client) View(ctx context.Context, function string, args ...any) ([]json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	body, err := json.Marshal(viewRequest{
		Function:      function,
		TypeArguments: []any{},
		Arguments:     args,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode view request: %w", err)
	}

	raw, err := c.do(ctx, http.MethodPost, "/v1/view", body)
	if err != nil {
		return nil, err
	}

	var results []json.RawMessage
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("failed to decode view response: %w", err)
	}
	return results, nil
}

// AccountResource fetches a typed resource stored under an account and
// returns the resource's data object.
func (c *Client) AccountResource(ctx context.Context, account, resourceType string) (json.RawMessage, error) {
	path := fmt.Sprintf("/v1/accounts/%s/resource/%s", account, resourceType)
	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var resource struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &resource); err != nil {
		return nil, fmt.Errorf("failed to decode resource response: %w", err)
	}
	return resource.Data, nil
}

type transaction struct {
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	VMStatus string `json:"vm_status"`
}

// WaitForTransaction polls the transaction until the ledger reports it
// executed. It returns nil on success, a TransactionFailedError when
// the transaction aborted, or the context error if the wait horizon is
// exhausted first.
func (c *Client) WaitForTransaction(ctx context.Context, hash string) error {
	path := "/v1/transactions/by_hash/" + hash
	for ctx.Err() == nil {
		raw, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			var apiErr *APIError
			// Unknown hash means the transaction has not landed yet.
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
				time.Sleep(waitSleep)
				continue
			}
			return err
		}

		var txn transaction
		if err := json.Unmarshal(raw, &txn); err != nil {
			return fmt.Errorf("failed to decode transaction response: %w", err)
		}
		if txn.Type == "pending_transaction" {
			time.Sleep(waitSleep)
			continue
		}
		if !txn.Success {
			return &TransactionFailedError{Hash: hash, VMStatus: txn.VMStatus}
		}
		return nil
	}
	return ctx.Err()
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fullnode request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil {
			apiErr.Message = string(raw)
		}
		return nil, apiErr
	}
	return raw, nil
}
