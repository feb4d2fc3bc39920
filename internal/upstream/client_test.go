package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Timeout: 2 * time.Second, FailureThreshold: 3, OpenTimeout: 50 * time.Millisecond})
}

func TestCallStructuredContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"isError":false,"structuredContent":{"price":190.5,"symbol":"AAPL"}}}`))
	})

	data, err := c.GetPrice(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetPrice: %v", err)
	}
	decoded := DecodeData(data)
	if decoded["symbol"] != "AAPL" {
		t.Fatalf("got %+v, want symbol AAPL", decoded)
	}
}

func TestCallContentTextJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"isError":false,"content":[{"type":"text","text":"{\"price\":42}"}]}}`))
	})

	data, err := c.GetPrice(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetPrice: %v", err)
	}
	decoded := DecodeData(data)
	if decoded["price"] != float64(42) {
		t.Fatalf("got %+v, want price 42", decoded)
	}
}

func TestCallContentTextPlainWrapped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"isError":false,"content":[{"type":"text","text":"not json"}]}}`))
	})

	data, err := c.GetPrice(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetPrice: %v", err)
	}
	var wrapped struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil || wrapped.Text != "not json" {
		t.Fatalf("expected wrapped text payload, got %s (err=%v)", data, err)
	}
}

func TestCallTopLevelError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-1,"message":"bad symbol"}}`))
	})

	_, err := c.GetPrice(context.Background(), "???")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestCallIsErrorResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"isError":true,"content":[{"type":"text","text":"symbol not found"}]}}`))
	})

	_, err := c.GetPrice(context.Background(), "ZZZZ")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestCallNonOKStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("down for maintenance"))
	})

	_, err := c.GetPrice(context.Background(), "AAPL")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < 3; i++ {
		if _, err := c.GetPrice(context.Background(), "AAPL"); err == nil {
			t.Fatalf("call %d: expected failure", i)
		}
	}

	_, err := c.GetPrice(context.Background(), "AAPL")
	if err == nil {
		t.Fatal("expected breaker-open error")
	}
}

func TestTechnicalIndicatorForwardsOutputSize(t *testing.T) {
	var gotArgs map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		json.NewDecoder(r.Body).Decode(&raw)
		params, _ := raw["params"].(map[string]any)
		gotArgs, _ = params["arguments"].(map[string]any)
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"isError":false,"structuredContent":{"rsi":55.2}}}`))
	})

	_, err := c.TechnicalIndicator(context.Background(), "rsi", "AAPL", "1day", 14, 30)
	if err != nil {
		t.Fatalf("TechnicalIndicator: %v", err)
	}
	if gotArgs["outputsize"] != float64(30) {
		t.Fatalf("expected outputsize=30 forwarded in call arguments, got %+v", gotArgs)
	}
}

func TestExtractFieldAliasFallback(t *testing.T) {
	data := map[string]any{"close": 101.2}
	v := ExtractField(data, "price")
	if v == nil || *v != 101.2 {
		t.Fatalf("expected alias fallback to close, got %v", v)
	}
}

func TestExtractFieldMissingReturnsNil(t *testing.T) {
	if v := ExtractField(map[string]any{}, "price"); v != nil {
		t.Fatalf("expected nil for missing field, got %v", *v)
	}
}
