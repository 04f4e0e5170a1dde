package storage

import (
	"context"
	"fmt"
	"path"
	"time"
)

// Hasher produces a stable digest for archive object names.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock supplies the archive date.
type Clock interface {
	Now() time.Time
}

// PageArchive implements crawler.Archive. Objects are named
// "<yyyy-mm-dd>/<sha256 of address>.html" so a page fetched twice on one day is kept once.
type PageArchive struct {
	provider Provider
	hasher   Hasher
	clock    Clock
}

// NewPageArchive wires a provider, hasher and clock into an archive.
func NewPageArchive(provider Provider, hasher Hasher, clock Clock) *PageArchive {
	return &PageArchive{provider: provider, hasher: hasher, clock: clock}
}

// Put stores raw under a name derived from address and the current UTC date.
func (a *PageArchive) Put(ctx context.Context, address string, raw []byte) (string, error) {
	digest, err := a.hasher.Hash([]byte(address))
	if err != nil {
		return "", fmt.Errorf("hash address: %w", err)
	}
	name := path.Join(a.clock.Now().UTC().Format("2006-01-02"), digest+".html")
	uri, err := a.provider.Save(ctx, name, raw)
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", address, err)
	}
	if uri == "" {
		uri = name
	}
	return uri, nil
}
