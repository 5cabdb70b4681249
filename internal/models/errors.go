package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error variables for better error handling and testability
var (
	// ErrNotFound marks a referenced entity that does not exist or is not visible to the caller.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an operation against an entity in the wrong lifecycle state.
	ErrConflict = errors.New("conflict")
)

// NotFound returns an error wrapping ErrNotFound for the given entity.
func NotFound(entity, id string) error {
	return fmt.Errorf("%s %q: %w", entity, id, ErrNotFound)
}

// Conflict returns an error wrapping ErrConflict with a formatted message.
func Conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}

// ValidationError is a client-correctable failure. Fields maps a field or question id
// to the reasons it was rejected.
type ValidationError struct {
	Message string
	Fields  map[string][]string
}

// NewValidationError creates an empty ValidationError with the given summary message.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message, Fields: make(map[string][]string)}
}

// Add records a reason for the given field.
func (e *ValidationError) Add(field, reason string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], reason)
}

// HasErrors reports whether any reason or message has been recorded.
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], "; "))
	}
	return e.Message + " (" + strings.Join(parts, ", ") + ")"
}

// Invalid returns a ValidationError with a single field reason.
func Invalid(field, reason string) *ValidationError {
	e := NewValidationError(reason)
	e.Add(field, reason)
	return e
}

// AsValidationError unwraps err into a *ValidationError if it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
