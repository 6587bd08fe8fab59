package handler

import (
	"maps"
	"slices"
	"strings"
)

// ValidationError maps field names to their failure messages. It renders as
// a 422 with the map as error details.
type ValidationError map[string][]string

func NewValidationError() ValidationError {
	return ValidationError{}
}

// Add appends message to the failures of field.
func (e ValidationError) Add(field, message string) {
	e[field] = append(e[field], message)
}

func (e ValidationError) Has(field string) bool {
	return len(e[field]) > 0
}

// Error lists the first message of each field, fields sorted by name.
func (e ValidationError) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	var b strings.Builder
	b.WriteString("validation error: ")
	first := true
	for _, field := range slices.Sorted(maps.Keys(e)) {
		if len(e[field]) == 0 {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(field)
		b.WriteString(": ")
		b.WriteString(e[field][0])
	}
	return b.String()
}
