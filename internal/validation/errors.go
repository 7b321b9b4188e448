package validation

import (
	"fmt"
	"sort"
	"strings"
)

// Error codes carried by FieldError.
const (
	CodeMissing       = "missing"
	CodeOutOfRange    = "out_of_range"
	CodeInvalidChoice = "invalid_choice"
	CodeInvalidType   = "invalid_type"
	CodeTooLong       = "too_long"
	CodeMalformed     = "malformed"
)

// FieldError describes why a single field was rejected.
type FieldError struct {
	Field  string `json:"field"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// ValidationError is returned when caller-supplied data violates the schema.
// Fields are ordered by schema position.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Reason))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Field returns the error recorded for the named field, if any.
func (e *ValidationError) Field(name string) (FieldError, bool) {
	for _, f := range e.Fields {
		if f.Field == name {
			return f, true
		}
	}
	return FieldError{}, false
}

// Missing returns the names of all required fields that were absent.
func (e *ValidationError) Missing() []string {
	var out []string
	for _, f := range e.Fields {
		if f.Code == CodeMissing {
			out = append(out, f.Field)
		}
	}
	return out
}

func (e *ValidationError) sort() {
	sort.SliceStable(e.Fields, func(i, j int) bool {
		return fieldOrder[e.Fields[i].Field] < fieldOrder[e.Fields[j].Field]
	})
}
