package interpreter

import (
	"testing"
	"time"

	"github.com/sherajdev/chattwelve/internal/store"
)

func TestDetectIntent(t *testing.T) {
	cases := []struct {
		query string
		want  Intent
	}{
		{"show commodities available", IntentCommoditiesList},
		{"convert 100 USD to EUR", IntentConversion},
		{"what's the RSI for tesla", IntentIndicator},
		{"show me the historical chart for AAPL", IntentHistorical},
		{"give me a detailed quote for MSFT", IntentQuote},
		{"compare AAPL vs MSFT", IntentComparison},
		{"what's the price of gold?", IntentPrice},
	}
	for _, c := range cases {
		got := Parse(c.query, nil).Intent
		if got != c.want {
			t.Errorf("Parse(%q).Intent = %q, want %q", c.query, got, c.want)
		}
	}
}

func TestExtractSymbolsMetalsAndCrypto(t *testing.T) {
	p := Parse("what's the price of gold?", nil)
	if len(p.Symbols) != 1 || p.Symbols[0] != "XAU/USD" {
		t.Fatalf("got symbols %v, want [XAU/USD]", p.Symbols)
	}

	p = Parse("how much is bitcoin worth", nil)
	if len(p.Symbols) != 1 || p.Symbols[0] != "BTC/USD" {
		t.Fatalf("got symbols %v, want [BTC/USD]", p.Symbols)
	}
}

func TestExtractSymbolsCompanyName(t *testing.T) {
	p := Parse("what's tesla trading at", nil)
	if len(p.Symbols) != 1 || p.Symbols[0] != "TSLA" {
		t.Fatalf("got symbols %v, want [TSLA]", p.Symbols)
	}
}

func TestUnknownTickerWithoutFinancialIntentIsSuppressed(t *testing.T) {
	p := Parse("tell me a joke", nil)
	if len(p.Symbols) != 0 {
		t.Fatalf("got symbols %v, want none (fallback should be suppressed)", p.Symbols)
	}
	if p.Intent != IntentPrice {
		t.Fatalf("got intent %q, want price", p.Intent)
	}
}

func TestFollowUpResolution(t *testing.T) {
	first := Parse("what's the price of gold?", nil)
	if len(first.Symbols) != 1 {
		t.Fatalf("setup: expected symbols from first query, got %v", first.Symbols)
	}

	context := []store.TurnContext{{
		Query:     first.RawQuery,
		Symbols:   first.Symbols,
		Intent:    string(first.Intent),
		Timestamp: time.Now(),
	}}

	second := Parse("what about its RSI?", context)
	if second.Intent != IntentIndicator {
		t.Fatalf("got intent %q, want indicator", second.Intent)
	}
	if len(second.Symbols) != 1 || second.Symbols[0] != "XAU/USD" {
		t.Fatalf("got symbols %v, want [XAU/USD] inherited from context", second.Symbols)
	}
	if second.Indicator != "rsi" {
		t.Fatalf("got indicator %q, want rsi", second.Indicator)
	}
}

func TestParseIsPure(t *testing.T) {
	query := "what's the 14 day RSI for AAPL on the weekly chart?"
	a := Parse(query, nil)
	b := Parse(query, nil)
	if a.Intent != b.Intent || a.Indicator != b.Indicator || a.Interval != b.Interval || a.TimePeriod != b.TimePeriod {
		t.Fatalf("Parse is not idempotent: %+v vs %+v", a, b)
	}
	if len(a.Symbols) != len(b.Symbols) {
		t.Fatalf("symbol count differs across calls: %v vs %v", a.Symbols, b.Symbols)
	}
}

func TestOutputSizeCapped(t *testing.T) {
	p := Parse("give me the last 999999 days of AAPL", nil)
	if p.OutputSize != 5000 {
		t.Fatalf("got output size %d, want capped 5000", p.OutputSize)
	}
}

func TestDefaultIntervalAndTimePeriod(t *testing.T) {
	p := Parse("what's the price of AAPL", nil)
	if p.Interval != "1day" {
		t.Fatalf("got interval %q, want default 1day", p.Interval)
	}
	if p.TimePeriod != 14 {
		t.Fatalf("got time period %d, want default 14", p.TimePeriod)
	}
}

func TestConversionExtraction(t *testing.T) {
	p := Parse("convert 100 USD to EUR", nil)
	if p.Amount == nil || *p.Amount != 100 {
		t.Fatalf("got amount %v, want 100", p.Amount)
	}
	if p.FromCurrency != "USD" || p.ToCurrency != "EUR" {
		t.Fatalf("got from=%q to=%q, want USD/EUR", p.FromCurrency, p.ToCurrency)
	}
}
