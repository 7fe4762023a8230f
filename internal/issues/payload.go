package issues

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Payload is a decoded request body. Values keep the dynamic types produced by
// the decoder: strings for form bodies; strings, float64, bool, nil, slices and
// maps for JSON bodies.
type Payload map[string]any

// Truthy reports whether v counts as "sent". Nil, false, zero, NaN and the
// empty string are not truthy; everything else is.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	case int:
		return x != 0
	case json.Number:
		f, err := x.Float64()
		return err != nil || (f != 0 && !math.IsNaN(f))
	default:
		return true
	}
}

// CoerceOpen converts an "open" update value to a bool.
//
// Only the string "true" yields true. Everything else, including the JSON
// boolean true, yields false. Clients that reopen issues must therefore send
// the string form.
func CoerceOpen(v any) bool {
	s, ok := v.(string)
	return ok && s == "true"
}

// stringValue renders scalar payload values as strings. Composite or absent
// values report false.
func stringValue(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	case int:
		return strconv.Itoa(x), true
	case json.Number:
		return x.String(), true
	default:
		return "", false
	}
}

// String returns the string form of key, or "" when absent or not scalar.
func (p Payload) String(key string) string {
	s, _ := stringValue(p[key])
	return s
}

// patch returns a pointer to the string form of key when it was sent with a
// non-empty value. Used for required fields, which must never become empty.
func (p Payload) patch(key string) *string {
	v, ok := p[key]
	if !ok {
		return nil
	}
	s, ok := stringValue(v)
	if !ok || s == "" {
		return nil
	}
	return &s
}

// set returns a pointer to the string form of key whenever it was sent as a
// scalar, including "". Used for optional fields so they can be cleared.
func (p Payload) set(key string) *string {
	s, ok := stringValue(p[key])
	if !ok {
		return nil
	}
	return &s
}

// echoID renders the sent _id for error bodies. Composite values are echoed
// as their JSON text.
func echoID(v any) string {
	if s, ok := stringValue(v); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
