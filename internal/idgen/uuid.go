// Package idgen generates trace and run identifiers.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUID v7 identifiers, which sort chronologically and are
// used as run trace IDs propagated through the logger.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUIDv7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}
