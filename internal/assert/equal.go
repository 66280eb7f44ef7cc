// Package assert compares observed response bodies against expected-body
// templates and harvests @{name} markers into a variable bag.
package assert

import (
	"encoding/json"
	"strconv"

	"github.com/teester/teester/internal/token"
)

// Mode selects how object keys are compared.
type Mode int

const (
	// Subset requires every expected key to exist in actual; extra
	// actual keys are ignored.
	Subset Mode = iota
	// Symmetric additionally requires both sides to have the same number
	// of keys at every level.
	Symmetric
)

func (m Mode) String() string {
	if m == Symmetric {
		return "symmetric"
	}
	return "subset"
}

// ParseMode maps "symmetric" to Symmetric and anything else to Subset.
func ParseMode(s string) Mode {
	if s == "symmetric" {
		return Symmetric
	}
	return Subset
}

// Equal reports whether actual matches the expected template in Subset mode.
func Equal(actual, expected any) bool {
	return EqualMode(actual, expected, Subset)
}

// EqualMode reports whether actual matches expected. An expected string
// containing an @{...} marker matches any actual value. Arrays compare as
// objects keyed by index.
func EqualMode(actual, expected any, mode Mode) bool {
	if s, ok := expected.(string); ok && token.HasMarker(s) {
		return true
	}

	eObj, eIsObj := asObject(expected)
	aObj, aIsObj := asObject(actual)
	if !eIsObj || !aIsObj {
		return primitiveEqual(actual, expected)
	}

	if mode == Symmetric && len(aObj) != len(eObj) {
		return false
	}
	for k, ev := range eObj {
		av, ok := aObj[k]
		if !ok || !EqualMode(av, ev, mode) {
			return false
		}
	}
	return true
}

// asObject views maps and slices as string-keyed objects.
func asObject(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case map[string]any:
		return x, true
	case []any:
		m := make(map[string]any, len(x))
		for i, e := range x {
			m[strconv.Itoa(i)] = e
		}
		return m, true
	}
	return nil, false
}

func primitiveEqual(a, b any) bool {
	if an, ok := toFloat(a); ok {
		bn, ok := toFloat(b)
		return ok && an == bn
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}
