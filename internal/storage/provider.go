// Package storage archives raw pages behind a pluggable blob provider.
// Relational persistence lives in the postgres, sqlite and memory subpackages.
package storage

import (
	"context"
)

// Provider defines the common interface for a blob storage provider.
type Provider interface {
	// Save writes data under objectName and returns a URI for it.
	Save(ctx context.Context, objectName string, data []byte) (string, error)
}

// NoOpProvider discards everything. It backs the memory driver, whose runs keep
// nothing past the process.
type NoOpProvider struct{}

// Save for NoOpProvider does nothing and always returns an empty URI.
func (n *NoOpProvider) Save(_ context.Context, _ string, _ []byte) (string, error) {
	return "", nil
}
