// Package upstream implements the JSON-RPC 2.0 client that talks to the
// upstream market-data tool server, shielded by a circuit breaker so a dead
// upstream degrades into fast, explicit failures instead of hung requests.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// ErrBreakerOpen is gobreaker's own open-state sentinel, returned when the
// breaker is open and the call was short-circuited rather than attempted.
var ErrBreakerOpen = gobreaker.ErrOpenState

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      int64          `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type rpcResult struct {
	IsError           bool            `json:"isError"`
	Content           []rpcContent    `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Error   *rpcError       `json:"error"`
	Result  json.RawMessage `json:"result"`
}

// Client calls the upstream tool server's "tools/call" JSON-RPC method,
// normalizing its several response shapes into a single JSON payload.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[json.RawMessage]
	nextID  atomic.Int64
}

// Config configures both the HTTP transport timeout and the breaker.
type Config struct {
	BaseURL          string
	Timeout          time.Duration
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

func New(cfg Config) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}
	settings := gobreaker.Settings{
		Name:        "upstream-mcp",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	c.breaker = gobreaker.NewCircuitBreaker[json.RawMessage](settings)
	return c
}

// State reports the breaker's current state, for the diagnostics surface.
func (c *Client) State() gobreaker.State { return c.breaker.State() }

// Call invokes the named tool with params and returns its normalized data
// payload. The breaker wraps the whole round trip: an open breaker fails
// immediately without touching the network.
func (c *Client) Call(ctx context.Context, tool string, params map[string]any) (json.RawMessage, error) {
	if params == nil {
		params = map[string]any{}
	}
	if _, ok := params["response_format"]; !ok {
		params["response_format"] = "json"
	}

	return c.breaker.Execute(func() (json.RawMessage, error) {
		return c.call(ctx, tool, params)
	})
}

func (c *Client) call(ctx context.Context, tool string, params map[string]any) (json.RawMessage, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  "tools/call",
		Params: map[string]any{
			"name":      tool,
			"arguments": params,
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mcp", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	var parsed rpcResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, errors.New(parsed.Error.Message)
	}

	var result rpcResult
	if err := json.Unmarshal(parsed.Result, &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	if result.IsError {
		msg := "unknown error"
		if len(result.Content) > 0 {
			msg = result.Content[0].Text
		}
		return nil, errors.New(msg)
	}

	if len(result.StructuredContent) > 0 {
		return result.StructuredContent, nil
	}
	if len(result.Content) > 0 {
		text := result.Content[0].Text
		if json.Valid([]byte(text)) {
			return json.RawMessage(text), nil
		}
		wrapped, err := json.Marshal(map[string]string{"text": text})
		if err != nil {
			return nil, err
		}
		return wrapped, nil
	}
	return json.RawMessage("null"), nil
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("upstream request timed out: %w", err)
	}
	if strings.Contains(err.Error(), "connection refused") {
		return fmt.Errorf("failed to connect to upstream: %w", err)
	}
	return fmt.Errorf("upstream error: %w", err)
}

// Convenience wrappers, one per tool exposed by the upstream server.

const (
	toolGetPrice           = "twelvedata_get_price"
	toolGetQuote            = "twelvedata_get_quote"
	toolGetTimeSeries       = "twelvedata_get_time_series"
	toolConvertCurrency     = "twelvedata_convert_currency"
	toolListCommodities     = "twelvedata_list_commodities"
	toolTechnicalIndicator  = "twelvedata_technical_indicator"
)

func (c *Client) GetPrice(ctx context.Context, symbol string) (json.RawMessage, error) {
	return c.Call(ctx, toolGetPrice, map[string]any{"symbol": symbol})
}

func (c *Client) GetQuote(ctx context.Context, symbol string) (json.RawMessage, error) {
	return c.Call(ctx, toolGetQuote, map[string]any{"symbol": symbol})
}

func (c *Client) GetTimeSeries(ctx context.Context, symbol, interval string, outputSize int) (json.RawMessage, error) {
	return c.Call(ctx, toolGetTimeSeries, map[string]any{
		"symbol": symbol, "interval": interval, "outputsize": outputSize,
	})
}

func (c *Client) ConvertCurrency(ctx context.Context, from, to string, amount float64) (json.RawMessage, error) {
	return c.Call(ctx, toolConvertCurrency, map[string]any{
		"from": from, "to": to, "amount": amount,
	})
}

func (c *Client) ListCommodities(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, toolListCommodities, nil)
}

func (c *Client) TechnicalIndicator(ctx context.Context, indicator, symbol, interval string, timePeriod, outputSize int) (json.RawMessage, error) {
	return c.Call(ctx, toolTechnicalIndicator, map[string]any{
		"indicator": indicator, "symbol": symbol, "interval": interval, "time_period": timePeriod, "outputsize": outputSize,
	})
}
