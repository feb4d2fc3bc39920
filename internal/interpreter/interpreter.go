// Package interpreter turns free-form natural-language market questions into
// a typed ParsedQuery. It is a pure function of (query, prior turn context):
// no I/O, no network, no clock reads beyond what the caller supplies.
package interpreter

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sherajdev/chattwelve/internal/store"
)

// Intent is the classified purpose of a query.
type Intent string

const (
	IntentPrice           Intent = "price"
	IntentQuote           Intent = "quote"
	IntentHistorical      Intent = "historical"
	IntentIndicator       Intent = "indicator"
	IntentConversion      Intent = "conversion"
	IntentComparison      Intent = "comparison"
	IntentCommoditiesList Intent = "commodities_list"
	IntentUnknown         Intent = "unknown"
)

// ParsedQuery is the interpreter's output.
type ParsedQuery struct {
	Intent       Intent
	Symbols      []string
	Interval     string
	Indicator    string
	TimePeriod   int
	OutputSize   int
	FromCurrency string
	ToCurrency   string
	Amount       *float64
	RawQuery     string
}

// Parse interprets a query against optional prior turn context (oldest-first,
// same ordering as store.Session.Context).
func Parse(query string, context []store.TurnContext) ParsedQuery {
	lower := strings.ToLower(query)

	symbols := extractSymbols(query)
	if len(symbols) == 0 && len(context) > 0 {
		symbols = extractSymbolsFromContext(lower, context)
	}

	interval := extractInterval(lower)
	if interval == "" {
		interval = "1day"
	}
	timePeriod := extractTimePeriod(lower)
	if timePeriod == 0 {
		timePeriod = 14
	}
	outputSize := extractOutputSize(lower)
	if outputSize == 0 {
		outputSize = 30
	}
	from, to, amount := extractConversion(lower)

	return ParsedQuery{
		Intent:       detectIntent(lower),
		Symbols:      symbols,
		Interval:     interval,
		Indicator:    extractIndicator(lower),
		TimePeriod:   timePeriod,
		OutputSize:   outputSize,
		FromCurrency: from,
		ToCurrency:   to,
		Amount:       amount,
		RawQuery:     query,
	}
}

func detectIntent(lower string) Intent {
	if containsAny(lower, commoditiesListPhrases) {
		return IntentCommoditiesList
	}
	if containsAny(lower, conversionPhrases) {
		return IntentConversion
	}
	for _, e := range indicatorTable {
		if strings.Contains(lower, e.phrase) {
			return IntentIndicator
		}
	}
	if containsAny(lower, historicalPhrases) || lastNDaysRe.MatchString(lower) {
		return IntentHistorical
	}
	if containsAny(lower, quotePhrases) {
		return IntentQuote
	}
	if containsAny(lower, comparisonPhrases) {
		return IntentComparison
	}
	return IntentPrice
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// extractSymbols walks the resolution phases in a fixed order, accumulating
// unique matches.
func extractSymbols(query string) []string {
	lower := strings.ToLower(query)
	upper := strings.ToUpper(query)
	var symbols []string
	seen := make(map[string]bool)
	add := func(sym string) {
		if !seen[sym] {
			seen[sym] = true
			symbols = append(symbols, sym)
		}
	}

	for _, m := range metals {
		if strings.Contains(lower, m.name) {
			add(m.symbol)
		}
	}
	for _, c := range crypto {
		if strings.Contains(lower, c.name) {
			add(c.symbol)
		}
	}
	for _, s := range stockNames {
		if strings.Contains(lower, s.name) {
			add(s.symbol)
		}
	}
	for _, pair := range forexPairs {
		if strings.Contains(upper, pair) || strings.Contains(upper, strings.ReplaceAll(pair, "/", "")) {
			add(pair)
		}
	}

	words := tickerWordRe.FindAllString(upper, -1)
	for _, w := range words {
		if commonStocks[w] && !excludedWords[w] {
			add(w)
		}
	}

	for _, pair := range explicitPairRe.FindAllString(upper, -1) {
		add(pair)
	}

	if len(symbols) == 0 && containsAny(lower, financialIntentPhrases) {
		for _, w := range words {
			if !excludedWords[w] && len(w) >= 2 {
				add(w)
				break
			}
		}
	}

	return symbols
}

func extractInterval(lower string) string {
	for _, e := range intervalTable {
		if strings.Contains(lower, e.phrase) {
			return e.interval
		}
	}
	return ""
}

func extractIndicator(lower string) string {
	for _, e := range indicatorTable {
		if strings.Contains(lower, e.phrase) {
			return e.name
		}
	}
	return ""
}

func extractTimePeriod(lower string) int {
	for _, re := range []*regexp.Regexp{timePeriodRe1, timePeriodRe2, timePeriodRe3} {
		if m := re.FindStringSubmatch(lower); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
		}
	}
	return 0
}

func extractOutputSize(lower string) int {
	for _, re := range []*regexp.Regexp{outputSizeRe1, outputSizeRe2} {
		if m := re.FindStringSubmatch(lower); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				if n > 5000 {
					n = 5000
				}
				return n
			}
		}
	}
	return 0
}

func extractConversion(lower string) (from, to string, amount *float64) {
	if m := amountRe.FindStringSubmatch(lower); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			amount = &f
		}
	}

	for _, word := range strings.Fields(lower) {
		w := strings.TrimRight(word, "s")
		if code, ok := currencyWordMap[w]; ok {
			if from == "" {
				from = code
			} else if to == "" {
				to = code
			}
		}
	}

	codes := currencyCodeRe.FindAllString(strings.ToUpper(lower), -1)
	if len(codes) >= 2 {
		from, to = codes[0], codes[1]
	} else if len(codes) == 1 && from == "" {
		from = codes[0]
	}
	return from, to, amount
}

// extractSymbolsFromContext resolves a follow-up query's subject from the
// most recent prior turn that recorded any symbols.
func extractSymbolsFromContext(lower string, context []store.TurnContext) []string {
	isFollowUp := false
	for _, re := range followUpPatterns {
		if re.MatchString(lower) {
			isFollowUp = true
			break
		}
	}
	if !isFollowUp {
		return nil
	}

	for i := len(context) - 1; i >= 0; i-- {
		if len(context[i].Symbols) > 0 {
			return context[i].Symbols
		}
	}
	return nil
}
