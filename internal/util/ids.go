// Package util provides small helpers shared across CareCheck components.
package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random UUID in its canonical string form. It is the primary key
// format for surveys, questions, options, assignments, check-ins and responses.
func NewID() string {
	return uuid.NewString()
}

// NewPrefixedID returns prefix followed by 32 hex characters of a random UUID.
func NewPrefixedID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsID reports whether s parses as a UUID.
func IsID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
