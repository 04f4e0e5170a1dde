package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/sold-listings-crawler/internal/crawler"
)

// Store is an in-memory crawler.Store. Transactions work on a copy of the state that
// replaces the live state only on commit.
type Store struct {
	mu     sync.Mutex
	st     *state
	closed bool
}

// Snapshot is a point-in-time copy of every table, ordered by id.
type Snapshot struct {
	URLs       []crawler.URL
	Tags       []crawler.LocationTag
	Buildings  []crawler.Building
	Apartments []crawler.Apartment
	Sales      []crawler.Sale
}

type state struct {
	nextID       int64
	urls         map[int64]crawler.URL
	urlIdx       map[string]int64
	tags         map[int64]crawler.LocationTag
	tagIdx       map[string]int64
	buildings    map[int64]crawler.Building
	buildingIdx  map[string]int64
	buildingTags map[int64][]int64
	apartments   map[int64]crawler.Apartment
	sales        map[int64]crawler.Sale
}

type executor func(fn func(*state) error) error

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{st: newState()}
}

func newState() *state {
	return &state{
		urls:         make(map[int64]crawler.URL),
		urlIdx:       make(map[string]int64),
		tags:         make(map[int64]crawler.LocationTag),
		tagIdx:       make(map[string]int64),
		buildings:    make(map[int64]crawler.Building),
		buildingIdx:  make(map[string]int64),
		buildingTags: make(map[int64][]int64),
		apartments:   make(map[int64]crawler.Apartment),
		sales:        make(map[int64]crawler.Sale),
	}
}

func (st *state) clone() *state {
	out := newState()
	out.nextID = st.nextID
	for k, v := range st.urls {
		out.urls[k] = v
	}
	for k, v := range st.urlIdx {
		out.urlIdx[k] = v
	}
	for k, v := range st.tags {
		out.tags[k] = v
	}
	for k, v := range st.tagIdx {
		out.tagIdx[k] = v
	}
	for k, v := range st.buildings {
		out.buildings[k] = v
	}
	for k, v := range st.buildingIdx {
		out.buildingIdx[k] = v
	}
	for k, v := range st.buildingTags {
		out.buildingTags[k] = append([]int64(nil), v...)
	}
	for k, v := range st.apartments {
		out.apartments[k] = v
	}
	for k, v := range st.sales {
		out.sales[k] = v
	}
	return out
}

func (st *state) id() int64 {
	st.nextID++
	return st.nextID
}

func (s *Store) auto(fn func(*state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: store closed", crawler.ErrStorage)
	}
	return fn(s.st)
}

// InTx runs fn against a private copy of the state and publishes it when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(crawler.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: store closed", crawler.ErrStorage)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: begin: %w", crawler.ErrStorage, err)
	}
	tx := s.st.clone()
	exec := func(f func(*state) error) error { return f(tx) }
	if err := fn(repos{exec: exec}); err != nil {
		return err
	}
	s.st = tx
	return nil
}

// Close marks the store closed. Later calls fail with crawler.ErrStorage.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Snapshot copies the committed state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var snap Snapshot
	for _, id := range sortedKeys(s.st.urls) {
		snap.URLs = append(snap.URLs, s.st.urls[id])
	}
	for _, id := range sortedKeys(s.st.tags) {
		snap.Tags = append(snap.Tags, s.st.tags[id])
	}
	for _, id := range sortedKeys(s.st.buildings) {
		b := s.st.buildings[id]
		b.Tags = s.st.tagsOf(id)
		snap.Buildings = append(snap.Buildings, b)
	}
	for _, id := range sortedKeys(s.st.apartments) {
		snap.Apartments = append(snap.Apartments, s.st.apartments[id])
	}
	for _, id := range sortedKeys(s.st.sales) {
		snap.Sales = append(snap.Sales, s.st.sales[id])
	}
	return snap
}

func (st *state) tagsOf(buildingID int64) []crawler.LocationTag {
	ids := st.buildingTags[buildingID]
	if len(ids) == 0 {
		return nil
	}
	out := make([]crawler.LocationTag, 0, len(ids))
	for _, id := range ids {
		out = append(out, st.tags[id])
	}
	return out
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// URLs implements crawler.Repositories outside a transaction.
func (s *Store) URLs() crawler.URLRepository { return urlRepo{exec: s.auto} }

// Tags implements crawler.Repositories outside a transaction.
func (s *Store) Tags() crawler.LocationTagRepository { return tagRepo{exec: s.auto} }

// Buildings implements crawler.Repositories outside a transaction.
func (s *Store) Buildings() crawler.BuildingRepository { return buildingRepo{exec: s.auto} }

// Apartments implements crawler.Repositories outside a transaction.
func (s *Store) Apartments() crawler.ApartmentRepository { return apartmentRepo{exec: s.auto} }

// Sales implements crawler.Repositories outside a transaction.
func (s *Store) Sales() crawler.SaleRepository { return saleRepo{exec: s.auto} }

type repos struct{ exec executor }

func (r repos) URLs() crawler.URLRepository { return urlRepo(r) }
func (r repos) Tags() crawler.LocationTagRepository { return tagRepo(r) }
func (r repos) Buildings() crawler.BuildingRepository { return buildingRepo(r) }
func (r repos) Apartments() crawler.ApartmentRepository { return apartmentRepo(r) }
func (r repos) Sales() crawler.SaleRepository { return saleRepo(r) }

type urlRepo struct{ exec executor }

func (r urlRepo) Known(_ context.Context, addresses []string) (map[string]bool, error) {
	known := make(map[string]bool)
	err := r.exec(func(st *state) error {
		for _, a := range addresses {
			if _, ok := st.urlIdx[a]; ok {
				known[a] = true
			}
		}
		return nil
	})
	return known, err
}

func (r urlRepo) Insert(_ context.Context, addresses []string) ([]crawler.URL, error) {
	var out []crawler.URL
	err := r.exec(func(st *state) error {
		for _, a := range addresses {
			if _, ok := st.urlIdx[a]; ok {
				return fmt.Errorf("%w: duplicate url %q", crawler.ErrStorage, a)
			}
		}
		for _, a := range addresses {
			u := crawler.URL{ID: st.id(), Address: a}
			st.urls[u.ID] = u
			st.urlIdx[a] = u.ID
			out = append(out, u)
		}
		return nil
	})
	return out, err
}

func (r urlRepo) Pending(_ context.Context) ([]crawler.URL, error) {
	var out []crawler.URL
	err := r.exec(func(st *state) error {
		for _, id := range sortedKeys(st.urls) {
			if u := st.urls[id]; !u.Processed {
				out = append(out, u)
			}
		}
		return nil
	})
	return out, err
}

func (r urlRepo) MarkProcessed(_ context.Context, id int64) error {
	return r.exec(func(st *state) error {
		u, ok := st.urls[id]
		if !ok {
			return fmt.Errorf("url %d: %w", id, crawler.ErrNotFound)
		}
		u.Processed = true
		st.urls[id] = u
		return nil
	})
}

type tagRepo struct{ exec executor }

func (r tagRepo) FindByTag(_ context.Context, tag string) (crawler.LocationTag, error) {
	var out crawler.LocationTag
	err := r.exec(func(st *state) error {
		id, ok := st.tagIdx[tag]
		if !ok {
			return fmt.Errorf("tag %q: %w", tag, crawler.ErrNotFound)
		}
		out = st.tags[id]
		return nil
	})
	return out, err
}

func (r tagRepo) Create(_ context.Context, tag *crawler.LocationTag) error {
	return r.exec(func(st *state) error {
		if _, ok := st.tagIdx[tag.Tag]; ok {
			return fmt.Errorf("%w: duplicate tag %q", crawler.ErrStorage, tag.Tag)
		}
		tag.ID = st.id()
		st.tags[tag.ID] = *tag
		st.tagIdx[tag.Tag] = tag.ID
		return nil
	})
}

type buildingRepo struct{ exec executor }

func (r buildingRepo) FindByAddress(_ context.Context, address string) (crawler.Building, error) {
	var out crawler.Building
	err := r.exec(func(st *state) error {
		id, ok := st.buildingIdx[address]
		if !ok {
			return fmt.Errorf("building %q: %w", address, crawler.ErrNotFound)
		}
		out = st.buildings[id]
		out.Tags = st.tagsOf(id)
		return nil
	})
	return out, err
}

func (r buildingRepo) Create(_ context.Context, b *crawler.Building) error {
	return r.exec(func(st *state) error {
		if _, ok := st.buildingIdx[b.Address]; ok {
			return fmt.Errorf("%w: duplicate building %q", crawler.ErrStorage, b.Address)
		}
		b.ID = st.id()
		row := *b
		row.Tags = nil
		st.buildings[b.ID] = row
		st.buildingIdx[b.Address] = b.ID
		return nil
	})
}

func (r buildingRepo) TagIDs(_ context.Context, buildingID int64) ([]int64, error) {
	var out []int64
	err := r.exec(func(st *state) error {
		out = append(out, st.buildingTags[buildingID]...)
		return nil
	})
	return out, err
}

func (r buildingRepo) AttachTag(_ context.Context, buildingID, tagID int64) error {
	return r.exec(func(st *state) error {
		if _, ok := st.buildings[buildingID]; !ok {
			return fmt.Errorf("%w: building %d does not exist", crawler.ErrStorage, buildingID)
		}
		if _, ok := st.tags[tagID]; !ok {
			return fmt.Errorf("%w: tag %d does not exist", crawler.ErrStorage, tagID)
		}
		for _, id := range st.buildingTags[buildingID] {
			if id == tagID {
				return nil
			}
		}
		st.buildingTags[buildingID] = append(st.buildingTags[buildingID], tagID)
		return nil
	})
}

type apartmentRepo struct{ exec executor }

func (r apartmentRepo) FindByFingerprint(_ context.Context, fp crawler.Fingerprint) (crawler.Apartment, error) {
	var out crawler.Apartment
	err := r.exec(func(st *state) error {
		for _, id := range sortedKeys(st.apartments) {
			if a := st.apartments[id]; a.LookupKey().Equal(fp) {
				out = a
				return nil
			}
		}
		return fmt.Errorf("apartment %s: %w", fp, crawler.ErrNotFound)
	})
	return out, err
}

func (r apartmentRepo) Create(_ context.Context, a *crawler.Apartment) error {
	return r.exec(func(st *state) error {
		if _, ok := st.buildings[a.BuildingID]; !ok {
			return fmt.Errorf("%w: building %d does not exist", crawler.ErrStorage, a.BuildingID)
		}
		a.ID = st.id()
		st.apartments[a.ID] = *a
		return nil
	})
}

type saleRepo struct{ exec executor }

func (r saleRepo) Create(_ context.Context, s *crawler.Sale) error {
	return r.exec(func(st *state) error {
		if _, ok := st.apartments[s.ApartmentID]; !ok {
			return fmt.Errorf("%w: apartment %d does not exist", crawler.ErrStorage, s.ApartmentID)
		}
		if _, ok := st.urls[s.URLID]; !ok {
			return fmt.Errorf("%w: url %d does not exist", crawler.ErrStorage, s.URLID)
		}
		s.ID = st.id()
		st.sales[s.ID] = *s
		return nil
	})
}
