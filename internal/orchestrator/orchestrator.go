// Package orchestrator wires the session gate, query interpreter, cache
// layer, and upstream client into the single entry point the HTTP surface
// calls: ProcessChat.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/sherajdev/chattwelve/internal/cache"
	"github.com/sherajdev/chattwelve/internal/events"
	"github.com/sherajdev/chattwelve/internal/interpreter"
	"github.com/sherajdev/chattwelve/internal/session"
	"github.com/sherajdev/chattwelve/internal/store"
	"github.com/sherajdev/chattwelve/internal/upstream"
)

const staleWarning = "[Note: this data may be out of date] "

// ChatResponse is the success-path shape.
type ChatResponse struct {
	Answer        string `json:"answer"`
	Type          string `json:"type"`
	Data          any    `json:"data"`
	Timestamp     string `json:"timestamp"`
	FormattedTime string `json:"formatted_time"`
}

// Orchestrator is the chat-processing entry point.
type Orchestrator struct {
	gate              *session.Gate
	cache             *cache.Cache
	upstream          *upstream.Client
	rateLimitRequests int
	bus               *events.Bus
	log               *slog.Logger
}

func New(gate *session.Gate, c *cache.Cache, up *upstream.Client, rateLimitRequests int, bus *events.Bus, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{gate: gate, cache: c, upstream: up, rateLimitRequests: rateLimitRequests, bus: bus, log: log}
}

func (o *Orchestrator) publish(t events.EventType, sessionID, msg string) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(events.Event{Type: t, SessionID: sessionID, Message: msg})
}

// ProcessChat runs one query through the full pipeline. Exactly one of the
// two return values is non-nil.
func (o *Orchestrator) ProcessChat(ctx context.Context, sessionID, query string) (*ChatResponse, *ErrorEnvelope) {
	sess, err := o.gate.Get(ctx, sessionID)
	switch {
	case errors.Is(err, session.ErrBadID), errors.Is(err, session.ErrNotFound):
		return nil, newError("SESSION_NOT_FOUND", "")
	case errors.Is(err, session.ErrExpired):
		o.publish(events.EventSessionExpired, sessionID, "session expired")
		return nil, newError("SESSION_EXPIRED", "")
	case err != nil:
		o.log.Error("session lookup failed", "session_id", sessionID, "error", err)
		return nil, newError("INTERNAL_ERROR", "")
	}

	quota, err := o.gate.ConsumeQuota(ctx, sessionID)
	if err != nil {
		o.log.Error("quota consume failed", "session_id", sessionID, "error", err)
		return nil, newError("INTERNAL_ERROR", "")
	}
	if quota.Limited {
		o.publish(events.EventRateLimited, sessionID, "rate limit exceeded")
		return nil, newRateLimitedError(quota.Count, o.rateLimitRequests, quota.SecondsUntilReset)
	}

	parsed := interpreter.Parse(query, sess.Context)

	resp, errEnv := o.dispatch(ctx, parsed)
	if errEnv != nil {
		return nil, errEnv
	}

	if len(parsed.Symbols) > 0 {
		entry := store.TurnContext{
			Query:     query,
			Symbols:   parsed.Symbols,
			Intent:    string(parsed.Intent),
			Indicator: parsed.Indicator,
			Interval:  parsed.Interval,
			Timestamp: time.Now().UTC(),
		}
		if err := o.gate.AppendContext(ctx, sessionID, entry); err != nil {
			o.log.Warn("append context failed", "session_id", sessionID, "error", err)
		}
	}

	return resp, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, q interpreter.ParsedQuery) (*ChatResponse, *ErrorEnvelope) {
	switch q.Intent {
	case interpreter.IntentCommoditiesList:
		return o.handleCommoditiesList(ctx)
	case interpreter.IntentConversion:
		return o.handleConversion(ctx, q)
	case interpreter.IntentComparison:
		return o.handleComparison(ctx, q)
	case interpreter.IntentIndicator:
		return o.handleIndicator(ctx, q)
	case interpreter.IntentHistorical:
		return o.handleHistorical(ctx, q)
	case interpreter.IntentQuote:
		return o.handleQuote(ctx, q)
	default:
		return o.handlePrice(ctx, q)
	}
}

// fetchOrStale implements a fresh-cache-hit-or-upstream-with-stale-fallback path: try a fresh cache hit, else call
// upstream, cache success, and fall back to a stale cache entry on failure.
func (o *Orchestrator) fetchOrStale(ctx context.Context, queryType string, params map[string]any, call func() (json.RawMessage, error)) (json.RawMessage, bool, time.Time, *ErrorEnvelope) {
	if hit, err := o.cache.Get(ctx, queryType, params, false); err == nil && hit != nil {
		return hit.Data, false, hit.CachedAt, nil
	}

	data, err := call()
	if err == nil {
		if _, setErr := o.cache.Set(ctx, queryType, params, json.RawMessage(data)); setErr != nil {
			o.log.Warn("cache write failed", "type", queryType, "error", setErr)
		}
		return data, false, time.Now().UTC(), nil
	}

	o.log.Warn("upstream call failed", "type", queryType, "error", err)
	if errors.Is(err, upstream.ErrBreakerOpen) {
		o.publish(events.EventBreakerOpen, "", fmt.Sprintf("breaker open for %s", queryType))
	} else {
		o.publish(events.EventUpstreamFailure, "", fmt.Sprintf("%s: %v", queryType, err))
	}

	if stale, staleErr := o.cache.Get(ctx, queryType, params, true); staleErr == nil && stale != nil {
		o.publish(events.EventCacheStaleServe, "", fmt.Sprintf("serving stale %s after upstream failure", queryType))
		return stale.Data, true, stale.CachedAt, nil
	}
	return nil, false, time.Time{}, newError("MCP_ERROR", err.Error())
}

func (o *Orchestrator) handlePrice(ctx context.Context, q interpreter.ParsedQuery) (*ChatResponse, *ErrorEnvelope) {
	if len(q.Symbols) == 0 {
		return nil, newError("NO_SYMBOL", "")
	}
	symbol := q.Symbols[0]
	params := map[string]any{"symbol": symbol}

	data, stale, cachedAt, errEnv := o.fetchOrStale(ctx, "price", params, func() (json.RawMessage, error) {
		return o.upstream.GetPrice(ctx, symbol)
	})
	if errEnv != nil {
		return nil, errEnv
	}

	decoded := upstream.DecodeData(data)
	price := upstream.ExtractField(decoded, "price")
	changePercent := upstream.ExtractField(decoded, "change_percent")

	var answer string
	if changePercent != nil {
		direction := "down"
		if *changePercent > 0 {
			direction = "up"
		}
		answer = fmt.Sprintf("The current price of %s is %s, %s %.2f%% today.", symbol, formatMoney(price), direction, math.Abs(*changePercent))
	} else {
		answer = fmt.Sprintf("The current price of %s is %s.", symbol, formatMoney(price))
	}

	return buildResponse("price", answer, map[string]any{
		"symbol":         symbol,
		"price":          price,
		"change_percent": changePercent,
	}, stale, cachedAt), nil
}

func (o *Orchestrator) handleQuote(ctx context.Context, q interpreter.ParsedQuery) (*ChatResponse, *ErrorEnvelope) {
	if len(q.Symbols) == 0 {
		return nil, newError("NO_SYMBOL", "")
	}
	symbol := q.Symbols[0]
	params := map[string]any{"symbol": symbol}

	data, stale, cachedAt, errEnv := o.fetchOrStale(ctx, "quote", params, func() (json.RawMessage, error) {
		return o.upstream.GetQuote(ctx, symbol)
	})
	if errEnv != nil {
		return nil, errEnv
	}

	decoded := upstream.DecodeData(data)
	result := map[string]any{
		"symbol":              symbol,
		"price":               upstream.ExtractField(decoded, "price"),
		"change":              upstream.ExtractField(decoded, "change"),
		"change_percent":      upstream.ExtractField(decoded, "change_percent"),
		"volume":              upstream.ExtractField(decoded, "volume"),
		"open":                upstream.ExtractField(decoded, "open"),
		"high":                upstream.ExtractField(decoded, "high"),
		"low":                 upstream.ExtractField(decoded, "low"),
		"previous_close":      upstream.ExtractField(decoded, "previous_close"),
		"fifty_two_week_high": upstream.ExtractField(decoded, "fifty_two_week_high"),
		"fifty_two_week_low":  upstream.ExtractField(decoded, "fifty_two_week_low"),
	}
	answer := fmt.Sprintf("Here's the latest quote for %s.", symbol)
	return buildResponse("quote", answer, result, stale, cachedAt), nil
}

func (o *Orchestrator) handleHistorical(ctx context.Context, q interpreter.ParsedQuery) (*ChatResponse, *ErrorEnvelope) {
	if len(q.Symbols) == 0 {
		return nil, newError("NO_SYMBOL", "")
	}
	symbol := q.Symbols[0]
	params := map[string]any{"symbol": symbol, "interval": q.Interval, "outputsize": q.OutputSize}

	data, stale, cachedAt, errEnv := o.fetchOrStale(ctx, "historical", params, func() (json.RawMessage, error) {
		return o.upstream.GetTimeSeries(ctx, symbol, q.Interval, q.OutputSize)
	})
	if errEnv != nil {
		return nil, errEnv
	}

	decoded := upstream.DecodeData(data)
	candles := upstream.ExtractList(decoded, 100, "values", "candles", "data")

	answer := fmt.Sprintf("Here's the %s history for %s. I found %d candles.", q.Interval, symbol, len(candles))
	return buildResponse("historical", answer, map[string]any{
		"symbol":     symbol,
		"interval":   q.Interval,
		"outputsize": q.OutputSize,
		"candles":    candles,
	}, stale, cachedAt), nil
}

func (o *Orchestrator) handleIndicator(ctx context.Context, q interpreter.ParsedQuery) (*ChatResponse, *ErrorEnvelope) {
	if len(q.Symbols) == 0 {
		return nil, newError("NO_SYMBOL", "")
	}
	if q.Indicator == "" {
		return nil, newError("NO_INDICATOR", "")
	}
	symbol := q.Symbols[0]
	params := map[string]any{
		"symbol": symbol, "indicator": q.Indicator, "interval": q.Interval, "time_period": q.TimePeriod, "outputsize": q.OutputSize,
	}

	data, stale, cachedAt, errEnv := o.fetchOrStale(ctx, "indicator", params, func() (json.RawMessage, error) {
		return o.upstream.TechnicalIndicator(ctx, q.Indicator, symbol, q.Interval, q.TimePeriod, q.OutputSize)
	})
	if errEnv != nil {
		return nil, errEnv
	}

	decoded := upstream.DecodeData(data)
	values := upstream.ExtractList(decoded, 100, "values", "data")

	answer := fmt.Sprintf("Here's the %s(%d) for %s. I calculated %d data points.", strings.ToUpper(q.Indicator), q.TimePeriod, symbol, len(values))
	return buildResponse("indicator", answer, map[string]any{
		"symbol":      symbol,
		"indicator":   q.Indicator,
		"interval":    q.Interval,
		"time_period": q.TimePeriod,
		"values":      values,
	}, stale, cachedAt), nil
}

func (o *Orchestrator) handleConversion(ctx context.Context, q interpreter.ParsedQuery) (*ChatResponse, *ErrorEnvelope) {
	if q.FromCurrency == "" || q.ToCurrency == "" {
		return nil, newError("MISSING_CURRENCIES", "")
	}
	amount := 1.0
	if q.Amount != nil {
		amount = *q.Amount
	}
	params := map[string]any{"from": q.FromCurrency, "to": q.ToCurrency, "amount": amount}

	data, stale, cachedAt, errEnv := o.fetchOrStale(ctx, "conversion", params, func() (json.RawMessage, error) {
		return o.upstream.ConvertCurrency(ctx, q.FromCurrency, q.ToCurrency, amount)
	})
	if errEnv != nil {
		return nil, errEnv
	}

	decoded := upstream.DecodeData(data)
	result := upstream.ExtractField(decoded, "result")
	rate := upstream.ExtractField(decoded, "rate")
	answer := fmt.Sprintf("%s %s is %s %s.", formatMoney(&amount), q.FromCurrency, formatMoney(result), q.ToCurrency)
	return buildResponse("conversion", answer, map[string]any{
		"from":   q.FromCurrency,
		"to":     q.ToCurrency,
		"amount": amount,
		"result": result,
		"rate":   rate,
	}, stale, cachedAt), nil
}

func (o *Orchestrator) handleComparison(ctx context.Context, q interpreter.ParsedQuery) (*ChatResponse, *ErrorEnvelope) {
	if len(q.Symbols) < 2 {
		return nil, newError("NO_SYMBOL", "")
	}
	a, b := q.Symbols[0], q.Symbols[1]

	dataA, staleA, cachedAtA, errEnv := o.fetchOrStale(ctx, "quote", map[string]any{"symbol": a}, func() (json.RawMessage, error) {
		return o.upstream.GetQuote(ctx, a)
	})
	if errEnv != nil {
		return nil, errEnv
	}
	dataB, staleB, cachedAtB, errEnv := o.fetchOrStale(ctx, "quote", map[string]any{"symbol": b}, func() (json.RawMessage, error) {
		return o.upstream.GetQuote(ctx, b)
	})
	if errEnv != nil {
		return nil, errEnv
	}

	stale := staleA || staleB
	cachedAt := cachedAtA
	if cachedAtB.Before(cachedAt) {
		cachedAt = cachedAtB
	}

	answer := fmt.Sprintf("Here's how %s and %s compare.", a, b)
	return buildResponse("comparison", answer, map[string]any{
		"comparison": map[string]any{
			a: upstream.DecodeData(dataA),
			b: upstream.DecodeData(dataB),
		},
	}, stale, cachedAt), nil
}

func (o *Orchestrator) handleCommoditiesList(ctx context.Context) (*ChatResponse, *ErrorEnvelope) {
	data, err := o.upstream.ListCommodities(ctx)
	if err != nil {
		o.log.Warn("commodities list failed", "error", err)
		return nil, newError("MCP_ERROR", err.Error())
	}
	return buildResponse("commodities_list", "Here are the available commodities.", map[string]any{
		"commodities": json.RawMessage(data),
	}, false, time.Now().UTC()), nil
}

func buildResponse(respType, answer string, data map[string]any, stale bool, cachedAt time.Time) *ChatResponse {
	if stale {
		answer = staleWarning + answer
		data["cached_at"] = cachedAt.UTC().Format(time.RFC3339)
	}
	now := time.Now().UTC()
	return &ChatResponse{
		Answer:        answer,
		Type:          respType,
		Data:          data,
		Timestamp:     now.Format(time.RFC3339),
		FormattedTime: now.Format("January 02, 2006 at 03:04 PM UTC"),
	}
}

func formatMoney(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.2f", *v)
}
