// Package models provides data model definitions for the field-sync core.
package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// FlexString is a string that also accepts JSON numbers and null. The remote
// API encodes identifiers both ways.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = FlexString(SafeString(v))
	return nil
}

// String returns the plain string.
func (f FlexString) String() string {
	return string(f)
}

// SafeString converts a decoded JSON value to a string. Nil becomes "".
func SafeString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}

// SafeNumber converts numbers and numeric strings to float64.
// Empty strings, nil and non-numeric values report ok=false.
func SafeNumber(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func numberPtr(v interface{}) *float64 {
	f, ok := SafeNumber(v)
	if !ok {
		return nil
	}
	return &f
}

func intPtr(v interface{}) *int64 {
	f, ok := SafeNumber(v)
	if !ok {
		return nil
	}
	n := int64(math.Round(f))
	return &n
}

func stringPtr(v interface{}) *string {
	s := SafeString(v)
	if s == "" {
		return nil
	}
	return &s
}
