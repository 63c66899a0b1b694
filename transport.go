package mondo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Transport executes RPC methods against a mondo backend.
type Transport interface {
	Call(ctx context.Context, method string, args ...any) (any, error)
	Close() error
}

// HTTPTransport speaks the JSON-RPC protocol over POST /v1/rpc.
type HTTPTransport struct {
	baseURL   string
	apiKey    string
	client    *http.Client
	requestID atomic.Int64
	closed    atomic.Bool
}

// HTTPTransportOptions configures an HTTPTransport.
type HTTPTransportOptions struct {
	APIKey  string
	Timeout time.Duration
}

// NewHTTPTransport creates a transport against the given base URL
// (scheme://host:port, without the /v1/rpc path).
func NewHTTPTransport(baseURL string, opts HTTPTransportOptions) *HTTPTransport {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	for len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	return &HTTPTransport{
		baseURL: baseURL,
		apiKey:  opts.APIKey,
		client:  &http.Client{Timeout: opts.Timeout},
	}
}

type wireRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type wireResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *wireError      `json:"error"`
}

// Call executes one RPC method.
func (t *HTTPTransport) Call(ctx context.Context, method string, args ...any) (any, error) {
	if t.closed.Load() {
		return nil, ErrClientDisconnected
	}
	if args == nil {
		args = []any{}
	}
	body, err := json.Marshal(wireRequest{
		JSONRPC: "2.0",
		ID:      t.requestID.Add(1),
		Method:  method,
		Params:  args,
	})
	if err != nil {
		return nil, fmt.Errorf("mondo: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/rpc", bytes.NewReader(body))
	if err != nil {
		return nil, &ConnectionError{Address: t.baseURL, Wrapped: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &ConnectionError{Address: t.baseURL, Wrapped: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &ConnectionError{Address: t.baseURL, Wrapped: fmt.Errorf("authentication failed")}
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{Address: t.baseURL, Wrapped: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ConnectionError{
			Address: t.baseURL,
			Wrapped: fmt.Errorf("http %d: %s", resp.StatusCode, raw),
		}
	}

	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("mondo: decode response: %w", err)
	}
	if wire.Error != nil {
		return nil, &CommandError{Code: wire.Error.Code, Message: wire.Error.Message}
	}
	if len(wire.Result) == 0 {
		return nil, nil
	}

	var result any
	if err := json.Unmarshal(wire.Result, &result); err != nil {
		return nil, fmt.Errorf("mondo: decode result: %w", err)
	}
	return result, nil
}

// Close marks the transport closed; subsequent calls fail.
func (t *HTTPTransport) Close() error {
	t.closed.Store(true)
	t.client.CloseIdleConnections()
	return nil
}
