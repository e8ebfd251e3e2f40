package billing

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	maxCustomDataKeys   = 20
	maxCustomDataString = 500
)

// Well-known custom data keys carried from checkout to webhook.
const (
	CustomDataOfferingKey  = "offering_key"
	CustomDataProductKey   = "product_key"
	CustomDataRequestedAt  = "requested_at"
	CustomDataCustomAmount = "custom_amount"
	CustomDataEmail        = "email"
	CustomDataName         = "name"
)

// serverCustomDataKeys are added by the checkout on top of the caller's
// data, so they count against the caller's share of the key limit.
var serverCustomDataKeys = []string{
	CustomDataOfferingKey,
	CustomDataProductKey,
	CustomDataRequestedAt,
	CustomDataCustomAmount,
}

// MaxCallerCustomDataKeys is how many keys a checkout caller may send.
var MaxCallerCustomDataKeys = maxCustomDataKeys - len(serverCustomDataKeys)

var customDataKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9_]{1,64}$`)

// CustomData is a bounded bag of scalar values (string, bool, float64,
// int64) attached to a checkout and echoed back by the provider.
type CustomData map[string]any

// SanitizeCustomData copies the caller's map keeping only well-formed keys
// with scalar values. Strings are truncated; nil and nested values are
// dropped. More than 20 keys is a validation error.
func SanitizeCustomData(in map[string]any) (CustomData, error) {
	return sanitizeCustomData(in, maxCustomDataKeys)
}

// sanitizeCallerCustomData applies the caller limit, which leaves room for
// the server keys so the merged bag still passes SanitizeCustomData when the
// provider echoes it back.
func sanitizeCallerCustomData(in map[string]any) (CustomData, error) {
	return sanitizeCustomData(in, MaxCallerCustomDataKeys)
}

func sanitizeCustomData(in map[string]any, maxKeys int) (CustomData, error) {
	if len(in) > maxKeys {
		return nil, validationError("custom data has %d keys, at most %d allowed", len(in), maxKeys)
	}
	out := make(CustomData, len(in))
	for k, v := range in {
		if !customDataKeyPattern.MatchString(k) {
			continue
		}
		if s, ok := scalar(v); ok {
			out[k] = s
		}
	}
	return out, nil
}

func scalar(v any) (any, bool) {
	switch t := v.(type) {
	case string:
		return truncate(t, maxCustomDataString), true
	case bool:
		return t, true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, false
		}
		return t, true
	case float32:
		return float64(t), true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true
		}
		if f, err := t.Float64(); err == nil {
			return f, true
		}
		return nil, false
	default:
		return nil, false
	}
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// String returns the value under the first key that holds a non-empty
// string.
func (c CustomData) String(keys ...string) string {
	for _, k := range keys {
		if s, ok := c[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// Strings renders every value as a string, which is what providers that only
// accept string metadata need.
func (c CustomData) Strings() map[string]string {
	out := make(map[string]string, len(c))
	for k, v := range c {
		switch t := v.(type) {
		case string:
			out[k] = t
		case bool:
			out[k] = strconv.FormatBool(t)
		case int64:
			out[k] = strconv.FormatInt(t, 10)
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		}
	}
	return out
}

// ParseAmount reads an integer amount in minor currency units from a JSON
// number, an integer or a digit string.
func ParseAmount(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) || math.IsNaN(t) || t > math.MaxInt64 || t < math.MinInt64 {
			return 0, validationError("amount must be a whole number of minor units")
		}
		return int64(t), nil
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return 0, validationError("amount must be a whole number of minor units")
		}
		return i, nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, validationError("amount must be numeric")
		}
		return i, nil
	default:
		return 0, validationError("amount must be numeric")
	}
}
