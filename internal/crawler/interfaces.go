package crawler

import "context"

// Fetcher returns the raw content behind an address, enforcing crawl policy first.
type Fetcher interface {
	Fetch(ctx context.Context, address string) ([]byte, error)
}

// Parser turns raw pages into structured data.
type Parser interface {
	ParseDetail(raw []byte) (ListingRecord, error)
	ParseResults(raw []byte) (ResultPage, error)
}

// URLRepository persists frontier bookkeeping.
type URLRepository interface {
	// Known returns the subset of addresses already stored.
	Known(ctx context.Context, addresses []string) (map[string]bool, error)
	// Insert stores new addresses and returns the created rows in input order.
	Insert(ctx context.Context, addresses []string) ([]URL, error)
	// Pending lists unprocessed rows ordered by id.
	Pending(ctx context.Context) ([]URL, error)
	MarkProcessed(ctx context.Context, id int64) error
}

// LocationTagRepository implements lookup-or-create for tags.
type LocationTagRepository interface {
	FindByTag(ctx context.Context, tag string) (LocationTag, error)
	Create(ctx context.Context, tag *LocationTag) error
}

// BuildingRepository stores buildings and their tag links.
type BuildingRepository interface {
	FindByAddress(ctx context.Context, address string) (Building, error)
	Create(ctx context.Context, b *Building) error
	TagIDs(ctx context.Context, buildingID int64) ([]int64, error)
	AttachTag(ctx context.Context, buildingID, tagID int64) error
}

// ApartmentRepository stores apartments keyed by Fingerprint.
type ApartmentRepository interface {
	FindByFingerprint(ctx context.Context, fp Fingerprint) (Apartment, error)
	Create(ctx context.Context, a *Apartment) error
}

// SaleRepository stores sale events; sales are never deduplicated.
type SaleRepository interface {
	Create(ctx context.Context, s *Sale) error
}

// Repositories groups the repositories of one unit of work.
type Repositories interface {
	URLs() URLRepository
	Tags() LocationTagRepository
	Buildings() BuildingRepository
	Apartments() ApartmentRepository
	Sales() SaleRepository
}

// Store is the relational store. Repositories used outside InTx auto-commit each call.
type Store interface {
	Repositories
	// InTx runs fn in a transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(Repositories) error) error
	Close() error
}

// Archive keeps raw page bytes for later offline re-parsing.
type Archive interface {
	Put(ctx context.Context, address string, raw []byte) (string, error)
}
