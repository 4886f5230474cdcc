package listing

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Record is one row of upstream data (a user, a plant, an inverter or a fault event).
type Record map[string]any

// Get returns the raw field value, nil when absent.
func (r Record) Get(field string) any {
	if r == nil {
		return nil
	}
	return r[field]
}

// Text returns the field coerced to a string.
func (r Record) Text(field string) string {
	return Text(r.Get(field))
}

// With returns a copy of the record with fields overlaid.
func (r Record) With(fields map[string]any) Record {
	out := make(Record, len(r)+len(fields))
	for key, value := range r {
		out[key] = value
	}
	for key, value := range fields {
		out[key] = value
	}
	return out
}

// Text coerces a field value to its display string. Missing and structured values are "".
func Text(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case json.Number:
		return value.String()
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(value), 'f', -1, 32)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case int32:
		return strconv.FormatInt(int64(value), 10)
	case uint:
		return strconv.FormatUint(uint64(value), 10)
	case uint64:
		return strconv.FormatUint(value, 10)
	case bool:
		return strconv.FormatBool(value)
	case time.Time:
		if value.IsZero() {
			return ""
		}
		return value.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return value.String()
	default:
		return ""
	}
}

// Number coerces a field value to a float. Anything unparsable, NaN or infinite is 0.
func Number(v any) float64 {
	var f float64
	switch value := v.(type) {
	case float64:
		f = value
	case float32:
		f = float64(value)
	case int:
		f = float64(value)
	case int64:
		f = float64(value)
	case int32:
		f = float64(value)
	case uint:
		f = float64(value)
	case uint64:
		f = float64(value)
	case json.Number:
		f = parseNumber(value.String())
	case string:
		f = parseNumber(value)
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// parseNumber parses a full float, falling back to the leading numeric prefix ("12.5kW" -> 12.5).
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	prefix := numericPrefix(s)
	if prefix == "" {
		return 0
	}
	f, err := strconv.ParseFloat(prefix, 64)
	if err != nil {
		return 0
	}
	return f
}

func numericPrefix(s string) string {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		j := i + 1
		frac := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			frac++
		}
		if digits+frac > 0 {
			i = j
			digits += frac
		}
	}
	if digits == 0 {
		return ""
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		exp := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			exp++
		}
		if exp > 0 {
			i = j
		}
	}
	return s[:i]
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseMillis converts a field value to epoch milliseconds; ok is false when nothing parses.
// Numeric values are taken as epoch milliseconds already.
func ParseMillis(v any) (int64, bool) {
	switch value := v.(type) {
	case nil:
		return 0, false
	case time.Time:
		if value.IsZero() {
			return 0, false
		}
		return value.UnixMilli(), true
	case string:
		return parseDateString(value)
	case json.Number:
		return parseDateString(value.String())
	case float64, float32, int, int64, int32, uint, uint64:
		f := Number(value)
		return int64(f), true
	default:
		return 0, false
	}
}

// Millis is ParseMillis with unparsable values mapped to 0.
func Millis(v any) int64 {
	ms, _ := ParseMillis(v)
	return ms
}

func parseDateString(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), true
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isLetter(b byte) bool { return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') }
