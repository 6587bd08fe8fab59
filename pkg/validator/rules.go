package validator

import (
	"encoding/json"
	"fmt"
	"strings"
)

func newRule(field, key, message string, params map[string]any, check func() bool) Rule {
	if params == nil {
		params = make(map[string]any, 1)
	}
	params["field"] = field
	return Rule{
		Check: check,
		Error: ValidationError{Field: field, Message: message, Key: key, Params: params},
	}
}

// RequiredString fails for empty or whitespace-only values.
func RequiredString(field, value string) Rule {
	return newRule(field, "validation.required", "field is required", nil, func() bool {
		return strings.TrimSpace(value) != ""
	})
}

// MaxLenString limits the length of value in bytes.
func MaxLenString(field, value string, max int) Rule {
	return newRule(field, "validation.max_length", fmt.Sprintf("must be at most %d characters long", max),
		map[string]any{"max": max},
		func() bool { return len(value) <= max })
}

// ValidKey accepts printable ASCII without spaces. Empty values pass; combine
// with RequiredString. Actor ids and idempotency keys end up in HTTP headers
// and lock names.
func ValidKey(field, value string) Rule {
	return newRule(field, "validation.key_format", "must contain printable ASCII characters only", nil, func() bool {
		for i := 0; i < len(value); i++ {
			if c := value[i]; c <= ' ' || c > '~' {
				return false
			}
		}
		return true
	})
}

// ValidJSONPayload requires raw to be a JSON value other than null.
func ValidJSONPayload(field string, raw []byte) Rule {
	return newRule(field, "validation.json_payload", "must be a JSON value", nil, func() bool {
		trimmed := strings.TrimSpace(string(raw))
		return trimmed != "" && trimmed != "null" && json.Valid(raw)
	})
}

// RequiredSlice fails for nil or empty slices.
func RequiredSlice[T any](field string, value []T) Rule {
	return newRule(field, "validation.required", "field is required", nil, func() bool {
		return len(value) > 0
	})
}

// MaxLenSlice limits the number of items.
func MaxLenSlice[T any](field string, value []T, max int) Rule {
	return newRule(field, "validation.max_items", fmt.Sprintf("must have at most %d items", max),
		map[string]any{"max": max},
		func() bool { return len(value) <= max })
}

func MinNum[T Numeric](field string, value, min T) Rule {
	return newRule(field, "validation.min", fmt.Sprintf("must be at least %v", min),
		map[string]any{"min": min},
		func() bool { return value >= min })
}

func MaxNum[T Numeric](field string, value, max T) Rule {
	return newRule(field, "validation.max", fmt.Sprintf("must be at most %v", max),
		map[string]any{"max": max},
		func() bool { return value <= max })
}
