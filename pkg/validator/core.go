package validator

import (
	"errors"
	"strings"
)

// Numeric is satisfied by the built-in integer and float types.
type Numeric interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// ValidationError is one failed rule. Message is the English text; Key and
// Params let a client render its own translation.
type ValidationError struct {
	Field   string
	Message string
	Key     string
	Params  map[string]any
}

// ValidationErrors is returned by Apply when at least one rule fails.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	var b strings.Builder
	b.WriteString("validation failed: ")
	for i, err := range ve {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(err.Field)
		b.WriteString(": ")
		b.WriteString(err.Message)
	}
	return b.String()
}

// Has reports whether field failed any rule.
func (ve ValidationErrors) Has(field string) bool {
	return len(ve.Get(field)) > 0
}

// Get returns the messages recorded for field.
func (ve ValidationErrors) Get(field string) []string {
	var messages []string
	for _, err := range ve {
		if err.Field == field {
			messages = append(messages, err.Message)
		}
	}
	return messages
}

// Prefix returns a copy with every field name prefixed, e.g. "operations[3].".
func (ve ValidationErrors) Prefix(prefix string) ValidationErrors {
	out := make(ValidationErrors, len(ve))
	for i, err := range ve {
		err.Field = prefix + err.Field
		out[i] = err
	}
	return out
}

// Rule pairs a check with the error reported when it fails.
type Rule struct {
	Check func() bool
	Error ValidationError
}

// Apply runs every rule and collects the failures. It returns nil when all
// rules pass.
func Apply(rules ...Rule) error {
	var errs ValidationErrors
	for _, r := range rules {
		if !r.Check() {
			errs = append(errs, r.Error)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ExtractValidationErrors returns the ValidationErrors wrapped in err, or nil.
func ExtractValidationErrors(err error) ValidationErrors {
	var errs ValidationErrors
	if errors.As(err, &errs) {
		return errs
	}
	return nil
}
