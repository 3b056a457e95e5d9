package document

import (
	"encoding/json"
	"strconv"
)

// ScalarString returns the canonical stored form of a scalar value: strings
// verbatim, numbers as their literal text, booleans as "true"/"false".
// ok is false for nil, objects and lists.
func ScalarString(v any) (s string, ok bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

// IsContainer reports whether v is an Object or a list.
func IsContainer(v any) bool {
	switch v.(type) {
	case Object, []any:
		return true
	default:
		return false
	}
}
