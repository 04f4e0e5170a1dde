// Package resolver merges parsed listing records into the relational store using
// lookup-or-create semantics for buildings, tags and apartments.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/sold-listings-crawler/internal/crawler"
)

// Resolver implements crawler.Resolver on top of a crawler.Store.
type Resolver struct {
	store  crawler.Store
	logger *zap.Logger
}

// New returns a Resolver writing to store.
func New(store crawler.Store, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, logger: logger}
}

// Resolve writes the building, its tags, the apartment and a new sale for rec in a single
// transaction. onCommit runs last inside that transaction, so a failure anywhere leaves
// nothing behind. Every error is reported as crawler.ErrStorage.
func (r *Resolver) Resolve(
	ctx context.Context,
	rec crawler.ListingRecord,
	source crawler.URL,
	onCommit func(context.Context, crawler.Repositories) error,
) (crawler.Resolution, error) {
	var res crawler.Resolution
	err := r.store.InTx(ctx, func(repos crawler.Repositories) error {
		res = crawler.Resolution{}
		b, created, err := resolveBuilding(ctx, repos, rec)
		if err != nil {
			return err
		}
		if err := attachTags(ctx, repos, &b, rec.Locations); err != nil {
			return err
		}
		res.Building, res.NewBuilding = b, created

		a, created, err := resolveApartment(ctx, repos, rec, b.ID)
		if err != nil {
			return err
		}
		res.Apartment, res.NewApartment = a, created

		sale := crawler.SaleFromRecord(rec, a.ID, source.ID)
		if err := repos.Sales().Create(ctx, &sale); err != nil {
			return fmt.Errorf("create sale: %w", err)
		}
		res.Sale = sale

		if onCommit != nil {
			if err := onCommit(ctx, repos); err != nil {
				return fmt.Errorf("commit hook: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, crawler.ErrStorage) {
			err = fmt.Errorf("%w: %w", crawler.ErrStorage, err)
		}
		return crawler.Resolution{}, fmt.Errorf("resolve %q: %w", rec.Address, err)
	}
	r.logger.Debug("Resolved record",
		zap.String("address", rec.Address),
		zap.Bool("new_building", res.NewBuilding),
		zap.Bool("new_apartment", res.NewApartment),
		zap.Stringer("fingerprint", res.Apartment.LookupKey()),
	)
	return res, nil
}

// resolveBuilding reuses the stored building for the address. Stored scalar fields win.
func resolveBuilding(ctx context.Context, repos crawler.Repositories, rec crawler.ListingRecord) (crawler.Building, bool, error) {
	candidate := crawler.BuildingFromRecord(rec)
	existing, err := repos.Buildings().FindByAddress(ctx, candidate.LookupKey())
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, crawler.ErrNotFound):
		return crawler.Building{}, false, fmt.Errorf("find building: %w", err)
	}
	if err := repos.Buildings().Create(ctx, &candidate); err != nil {
		return crawler.Building{}, false, fmt.Errorf("create building: %w", err)
	}
	return candidate, true, nil
}

// attachTags unions labels into the building's tag set, creating missing tags.
func attachTags(ctx context.Context, repos crawler.Repositories, b *crawler.Building, labels []string) error {
	attachedIDs, err := repos.Buildings().TagIDs(ctx, b.ID)
	if err != nil {
		return fmt.Errorf("list building tags: %w", err)
	}
	attached := make(map[int64]struct{}, len(attachedIDs))
	for _, id := range attachedIDs {
		attached[id] = struct{}{}
	}

	for _, label := range crawler.UniqueTags(labels) {
		tag, err := lookupOrCreateTag(ctx, repos, label)
		if err != nil {
			return err
		}
		if _, ok := attached[tag.ID]; ok {
			continue
		}
		if err := repos.Buildings().AttachTag(ctx, b.ID, tag.ID); err != nil {
			return fmt.Errorf("attach tag %q: %w", label, err)
		}
		attached[tag.ID] = struct{}{}
		b.Tags = append(b.Tags, tag)
	}
	return nil
}

func lookupOrCreateTag(ctx context.Context, repos crawler.Repositories, label string) (crawler.LocationTag, error) {
	tag, err := repos.Tags().FindByTag(ctx, label)
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, crawler.ErrNotFound) {
		return crawler.LocationTag{}, fmt.Errorf("find tag %q: %w", label, err)
	}
	tag = crawler.LocationTag{Tag: label}
	if err := repos.Tags().Create(ctx, &tag); err != nil {
		return crawler.LocationTag{}, fmt.Errorf("create tag %q: %w", label, err)
	}
	return tag, nil
}

// resolveApartment reuses an apartment with the same fingerprint. The candidate is
// discarded in that case, not merged.
func resolveApartment(
	ctx context.Context,
	repos crawler.Repositories,
	rec crawler.ListingRecord,
	buildingID int64,
) (crawler.Apartment, bool, error) {
	candidate := crawler.ApartmentFromRecord(rec, buildingID)
	existing, err := repos.Apartments().FindByFingerprint(ctx, candidate.LookupKey())
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, crawler.ErrNotFound):
		return crawler.Apartment{}, false, fmt.Errorf("find apartment: %w", err)
	}
	if err := repos.Apartments().Create(ctx, &candidate); err != nil {
		return crawler.Apartment{}, false, fmt.Errorf("create apartment: %w", err)
	}
	return candidate, true, nil
}
