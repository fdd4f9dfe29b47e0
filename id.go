package codetutor

import (
	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
// Used for execution ids, run-history rows, and client ids minted by
// the bundled CLI.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
