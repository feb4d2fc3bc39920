package upstream

import (
	"encoding/json"
	"strconv"
)

// fieldAliases lists, for each canonical field the orchestrator cares about,
// the ranked set of upstream key names that might carry it. Providers drift
// in naming across tools and versions; centralizing the aliasing here means
// a new provider quirk is a one-line table edit, not a scattered conditional.
var fieldAliases = map[string][]string{
	"price":               {"price", "close", "last"},
	"change":              {"change"},
	"change_percent":      {"change_percent", "percent_change", "change"},
	"volume":              {"volume"},
	"open":                {"open"},
	"high":                {"high"},
	"low":                 {"low"},
	"close":               {"close", "price"},
	"fifty_two_week_high": {"fifty_two_week_high", "52_week_high"},
	"fifty_two_week_low":  {"fifty_two_week_low", "52_week_low"},
	"previous_close":      {"previous_close", "prev_close"},
	"rate":                {"rate"},
	"result":              {"result", "converted_amount"},
	"timestamp":           {"timestamp", "datetime"},
}

// ExtractField reads the canonical field from a decoded data payload,
// trying each alias in rank order, and returns it as a *float64. A missing
// or unparsable field yields nil rather than an error — per the normalizer
// contract, provider drift degrades gracefully.
func ExtractField(data map[string]any, canonical string) *float64 {
	aliases, ok := fieldAliases[canonical]
	if !ok {
		aliases = []string{canonical}
	}
	for _, alias := range aliases {
		v, ok := data[alias]
		if !ok {
			continue
		}
		if f, ok := toFloat(v); ok {
			return &f
		}
	}
	return nil
}

// ExtractString is ExtractField's string-valued counterpart, for fields like
// symbol or currency codes that aliasing still applies to.
func ExtractString(data map[string]any, canonical string) string {
	aliases, ok := fieldAliases[canonical]
	if !ok {
		aliases = []string{canonical}
	}
	for _, alias := range aliases {
		if v, ok := data[alias]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// DecodeData unmarshals a normalized upstream payload into a generic map for
// field-alias extraction. Non-object payloads (e.g. the "null" no-data case
// or an array from list_commodities) return a nil map rather than an error.
func DecodeData(raw json.RawMessage) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// ExtractList unwraps the first present list-valued key from data, trying
// each in order, and truncates it to maxLen. Providers disagree on which key
// carries the series (values, candles, data); a missing or non-list key is
// skipped rather than treated as an error.
func ExtractList(data map[string]any, maxLen int, keys ...string) []any {
	for _, key := range keys {
		v, ok := data[key]
		if !ok {
			continue
		}
		list, ok := v.([]any)
		if !ok {
			continue
		}
		if len(list) > maxLen {
			list = list[:maxLen]
		}
		return list
	}
	return nil
}
