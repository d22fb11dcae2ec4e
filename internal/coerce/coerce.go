// Package coerce converts loosely typed decoded JSON into bounded scalars.
//
// Every helper is total: malformed input falls back to a documented default
// instead of returning an error, which lets normalizers rebuild state from
// stale local data or payloads written by other client versions.
package coerce

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/spf13/cast"
)

// MaxSafeInteger mirrors the largest integer a JSON number carries without precision loss.
const MaxSafeInteger int64 = 1<<53 - 1

// Decode turns raw JSON bytes into a generic value. Other values pass through.
func Decode(raw any) any {
	switch typed := raw.(type) {
	case json.RawMessage:
		return decodeBytes(typed)
	case []byte:
		return decodeBytes(typed)
	default:
		return raw
	}
}

func decodeBytes(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil
	}
	return decoded
}

// Map returns raw as an object, or an empty object.
func Map(raw any) map[string]any {
	if object, ok := Decode(raw).(map[string]any); ok {
		return object
	}
	return map[string]any{}
}

// Slice returns raw as an array, or nil.
func Slice(raw any) []any {
	if array, ok := Decode(raw).([]any); ok {
		return array
	}
	return nil
}

// IsSlice reports whether raw is an array.
func IsSlice(raw any) bool {
	_, ok := Decode(raw).([]any)
	return ok
}

// Truthy follows JSON-value truthiness: null, false, 0 and "" are false.
func Truthy(raw any) bool {
	switch typed := raw.(type) {
	case nil:
		return false
	case bool:
		return typed
	case string:
		return typed != ""
	case float64:
		return typed != 0 && !math.IsNaN(typed)
	case int:
		return typed != 0
	case int64:
		return typed != 0
	default:
		return true
	}
}

// Bool coerces raw by truthiness.
func Bool(raw any) bool {
	return Truthy(raw)
}

// String coerces raw to text; falsy values and structured values become "".
func String(raw any) string {
	if !Truthy(raw) {
		return ""
	}
	switch raw.(type) {
	case map[string]any, []any:
		return ""
	}
	text, err := cast.ToStringE(raw)
	if err != nil {
		return ""
	}
	return text
}

// StringOr returns the trimmed text of raw, or fallback when it is empty.
func StringOr(raw any, fallback string) string {
	text := strings.TrimSpace(String(raw))
	if text == "" {
		return fallback
	}
	return text
}

// OneOf returns raw when it exactly matches an allowed value, otherwise fallback.
func OneOf(raw any, allowed []string, fallback string) string {
	text, ok := raw.(string)
	if !ok {
		return fallback
	}
	for _, candidate := range allowed {
		if text == candidate {
			return text
		}
	}
	return fallback
}

// Int truncates raw to an integer clamped to [min, max]. Unparseable input yields min.
func Int(raw any, min, max int64) int64 {
	value, ok := number(raw)
	if !ok {
		return min
	}
	value = math.Trunc(value)
	if value <= float64(min) {
		return min
	}
	if value >= float64(max) {
		return max
	}
	return int64(value)
}

// IntOr coerces raw like Int, substituting fallback when raw is absent.
func IntOr(raw any, fallback, min, max int64) int64 {
	if raw == nil {
		return Int(fallback, min, max)
	}
	return Int(raw, min, max)
}

// Float clamps raw to [min, max]. Unparseable input yields min.
func Float(raw any, min, max float64) float64 {
	value, ok := number(raw)
	if !ok {
		return min
	}
	return math.Min(max, math.Max(min, value))
}

// FloatOr coerces raw like Float, substituting fallback when raw is absent.
func FloatOr(raw any, fallback, min, max float64) float64 {
	if raw == nil {
		return Float(fallback, min, max)
	}
	return Float(raw, min, max)
}

// IntRef reports the integer held by raw when it is a positive whole number.
func IntRef(raw any) (int64, bool) {
	value, ok := number(raw)
	if !ok || value < 1 || value != math.Trunc(value) || value > float64(MaxSafeInteger) {
		return 0, false
	}
	return int64(value), true
}

func number(raw any) (float64, bool) {
	switch typed := raw.(type) {
	case nil, bool, map[string]any, []any:
		return 0, false
	case string:
		if strings.TrimSpace(typed) == "" {
			return 0, false
		}
		raw = strings.TrimSpace(typed)
	}
	value, err := cast.ToFloat64E(raw)
	if err != nil || math.IsNaN(value) {
		return 0, false
	}
	return value, true
}
