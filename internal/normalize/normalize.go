// Package normalize maps upstream commerce records and flat-file rows into
// the storage schema. Mapping is best-effort: missing or malformed fields
// become documented defaults, and an irrecoverably malformed record yields
// nil rather than an error escaping the package.
package normalize

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Source markers distinguishing API-sourced from file-sourced records.
const (
	SourceAPI = "api"
	SourceCSV = "csv"
)

func getString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		// JSON numbers decode as float64; identifiers arrive this way
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

func getInt(v any) int {
	switch x := v.(type) {
	case float64:
		return int(x)
	case int:
		return x
	case int64:
		return int(x)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			return n
		}
	}
	return 0
}

func getBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func getMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func getSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

// stringOr returns the field as a string, or def when missing/falsy.
func stringOr(rec map[string]any, key, def string) string {
	if s := getString(rec[key]); s != "" {
		return s
	}
	return def
}

// timestampOr returns the field when it parses as an RFC3339 timestamp,
// otherwise the current time.
func timestampOr(rec map[string]any, key string) string {
	if s := getString(rec[key]); s != "" {
		if _, err := time.Parse(time.RFC3339, s); err == nil {
			return s
		}
	}
	return nowTimestamp()
}

func nowTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// money normalizes a monetary value to fixed two-decimal formatting,
// accepting either string or number input forms. Unparseable values
// default to "0.00".
func money(v any) string {
	switch x := v.(type) {
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		if err != nil {
			return "0.00"
		}
		return d.StringFixed(2)
	case float64:
		return decimal.NewFromFloat(x).StringFixed(2)
	case int:
		return decimal.NewFromInt(int64(x)).StringFixed(2)
	case int64:
		return decimal.NewFromInt(x).StringFixed(2)
	default:
		return "0.00"
	}
}

// fallbackID derives a deterministic identifier from whatever fields the
// record does carry, so re-running a sync over the same source record maps
// to the same stored item instead of minting a fresh duplicate.
func fallbackID(parts ...string) string {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("gen-%016x", h.Sum64())
}

// syntheticID mints a namespaced identifier for a nested entity that lacks
// one. Uniqueness is only claimed within the parent record.
func syntheticID(prefix string) string {
	return prefix + uuid.NewString()[:8]
}

// allEmpty reports whether every candidate identity field is absent.
func allEmpty(parts ...string) bool {
	for _, p := range parts {
		if p != "" {
			return false
		}
	}
	return true
}
