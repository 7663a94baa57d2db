// Package uuid provides record and run ID generation.
package uuid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator derives UUIDv5 record ids from site URLs and UUIDv7 run ids.
type Generator struct {
	namespace uuid.UUID
}

// New creates a Generator in the standard URL namespace.
func New() *Generator {
	return &Generator{namespace: uuid.NameSpaceURL}
}

// StableID returns the same id for the same key on every run. Keys are trimmed so
// that whitespace scraped around a URL does not split one contest into two ids.
func (g *Generator) StableID(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	return uuid.NewSHA1(g.namespace, []byte(key)).String()
}

// NewID returns a time-ordered UUIDv7 string.
func (g *Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}
