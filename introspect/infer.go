package introspect

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/portasync/portasync/schema"
)

// Value-shape patterns used for field name inference, tried in order.
var (
	emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	urlRe   = regexp.MustCompile(`^https?://[^\s]+$`)
	uuidRe  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	phoneRe = regexp.MustCompile(`^\+?[0-9][0-9 \-()]{6,18}[0-9]$`)
)

// inferType maps the runtime type of a sampled cell onto a FieldType.
// Numerics arrive as json.Number from the HTTP client; an in-process client
// may hand over native ints and floats.
func inferType(v any) schema.FieldType {
	switch n := v.(type) {
	case nil:
		return schema.TypeUnknown
	case bool:
		return schema.TypeBoolean
	case int, int64:
		return schema.TypeInteger
	case float64:
		if n == float64(int64(n)) {
			return schema.TypeInteger
		}
		return schema.TypeFloat
	case json.Number:
		if _, err := n.Int64(); err == nil {
			return schema.TypeInteger
		}
		return schema.TypeFloat
	case string:
		if _, ok := schema.ParseDatetime(n); ok {
			return schema.TypeDatetime
		}
		return schema.TypeString
	case map[string]any, []any:
		return schema.TypeJSON
	}
	return schema.TypeUnknown
}

// inferName guesses a field name from its position, inferred type and the
// sampled value. Returns the synthetic slot name when nothing matches.
func inferName(position int, t schema.FieldType, v any) string {
	if s, ok := v.(string); ok {
		switch {
		case emailRe.MatchString(s):
			return "email"
		case urlRe.MatchString(s):
			return "url"
		case uuidRe.MatchString(strings.TrimSpace(s)):
			return "uuid"
		case phoneRe.MatchString(s):
			return "phone"
		}
	}

	if position == 0 && t == schema.TypeInteger {
		return "id"
	}
	if t == schema.TypeDatetime {
		switch position {
		case 1:
			return "created_at"
		case 2:
			return "updated_at"
		}
	}

	return schema.SyntheticName(position)
}
