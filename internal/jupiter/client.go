// Package jupiter wraps the third-party swap/quote HTTP API and the
// submit-and-confirm path against the ledger. It holds no state beyond the
// follower's signing key.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Default endpoints and timeouts.
const (
	DefaultBaseURL     = "https://quote-api.jup.ag/v6"
	DefaultHTTPTimeout = 20 * time.Second
)

// Client is the stateless HTTP wrapper around the swap API.
type Client struct {
	baseURL string
	client  *http.Client
}

// Option configures Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// NewClient creates a new swap API client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetQuote requests a quote for swapping amountBaseUnits of inputMint into
// outputMint at the given slippage. Single HTTP call; errors propagate.
func (c *Client) GetQuote(ctx context.Context, inputMint, outputMint string, amountBaseUnits uint64, slippageBps int) (*Quote, error) {
	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", strconv.FormatUint(amountBaseUnits, 10))
	q.Set("slippageBps", strconv.Itoa(slippageBps))

	body, err := c.get(ctx, "/quote?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}

	var quote Quote
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("unmarshal quote: %w", err)
	}
	quote.Raw = body

	return &quote, nil
}

// GetPriorityFee requests the network-wide fee percentile recommendation.
func (c *Client) GetPriorityFee(ctx context.Context) (*PriorityFee, error) {
	body, err := c.get(ctx, "/priority-fee")
	if err != nil {
		return nil, fmt.Errorf("get priority fee: %w", err)
	}

	var fee PriorityFee
	if err := json.Unmarshal(body, &fee); err != nil {
		return nil, fmt.Errorf("unmarshal priority fee: %w", err)
	}

	return &fee, nil
}

// BuildSwap requests unsigned transaction payloads for a quote. The response
// may carry a single transaction or several; both shapes are normalized.
func (c *Client) BuildSwap(ctx context.Context, quote *Quote, userPublicKey string, feeMicroLamports uint64, wrapUnwrapSOL bool) (*SwapTransactions, error) {
	reqBody := swapRequest{
		QuoteResponse:                 quote.Raw,
		UserPublicKey:                 userPublicKey,
		WrapAndUnwrapSol:              wrapUnwrapSOL,
		ComputeUnitPriceMicroLamports: feeMicroLamports,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal swap request: %w", err)
	}

	body, err := c.post(ctx, "/swap", payload)
	if err != nil {
		return nil, fmt.Errorf("build swap: %w", err)
	}

	var resp swapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal swap response: %w", err)
	}

	txs := resp.Transactions
	if len(txs) == 0 && resp.SwapTransaction != "" {
		txs = []string{resp.SwapTransaction}
	}
	if len(txs) == 0 {
		return nil, fmt.Errorf("swap response contains no transactions")
	}

	version := resp.Version
	if version == "" {
		version = "versioned"
	}

	return &SwapTransactions{Version: version, Transactions: txs}, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
