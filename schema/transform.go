package schema

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Transformer converts a raw remote value during row mapping. Transformers
// never fail: when a conversion does not apply, the original value is
// returned unchanged and no error is surfaced.
type Transformer func(any) any

// builtins is the closed set of transformers a persisted schema may name.
// Custom transformer functions exist only on schemas built in-process.
var builtins = map[string]Transformer{
	"int":      toInt,
	"float":    toFloat,
	"str":      toStr,
	"bool":     toBool,
	"datetime": toDatetime,
	"date":     toDate,
	"json":     toJSON,
}

// TransformerByName resolves a built-in transformer.
func TransformerByName(name string) (Transformer, bool) {
	t, ok := builtins[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

func toInt(v any) any {
	switch n := v.(type) {
	case int64, int:
		return v
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
	case float64:
		return int64(n)
	case bool:
		if n {
			return int64(1)
		}
		return int64(0)
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i
		}
	}
	return v
}

func toFloat(v any) any {
	switch n := v.(type) {
	case float64:
		return v
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f
		}
	}
	return v
}

func toStr(v any) any {
	switch s := v.(type) {
	case string:
		return v
	case json.Number:
		return s.String()
	case nil:
		return v
	case bool:
		return strconv.FormatBool(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64)
	}
	return v
}

func toBool(v any) any {
	switch b := v.(type) {
	case bool:
		return v
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed
		}
	case json.Number:
		if i, err := b.Int64(); err == nil {
			return i != 0
		}
	case int64:
		return b != 0
	case float64:
		return b != 0
	}
	return v
}

// datetimeLayouts are the ISO-8601 shapes the engine accepts, most specific
// first.
var datetimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func toDatetime(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	for _, layout := range datetimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.Format("2006-01-02T15:04:05")
		}
	}
	return v
}

func toDate(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if ts, err := time.Parse("2006-01-02", s); err == nil {
		return ts.Format("2006-01-02")
	}
	for _, layout := range datetimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.Format("2006-01-02")
		}
	}
	return v
}

func toJSON(v any) any {
	switch v.(type) {
	case map[string]any, []any:
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
	}
	return v
}

// ParseDatetime reports whether s parses as an ISO-8601 timestamp and
// returns its parsed form. Shared with the introspector's type inference.
func ParseDatetime(s string) (time.Time, bool) {
	for _, layout := range datetimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// ParseDate reports whether s is a bare calendar date.
func ParseDate(s string) (time.Time, bool) {
	ts, err := time.Parse("2006-01-02", s)
	return ts, err == nil
}
