package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/JakeFAU/sold-listings-crawler/internal/crawler"
)

type urlRepo struct{ q querier }

func (r urlRepo) Known(ctx context.Context, addresses []string) (map[string]bool, error) {
	known := make(map[string]bool)
	if len(addresses) == 0 {
		return known, nil
	}
	rows, err := r.q.Query(ctx, `SELECT url FROM urls WHERE url = ANY($1)`, addresses)
	if err != nil {
		return nil, dbError("query known urls", err)
	}
	defer rows.Close()
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, dbError("scan url", err)
		}
		known[addr] = true
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterate urls", err)
	}
	return known, nil
}

func (r urlRepo) Insert(ctx context.Context, addresses []string) ([]crawler.URL, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	rows, err := r.q.Query(ctx,
		`INSERT INTO urls (url) SELECT unnest($1::text[]) RETURNING id, url`, addresses)
	if err != nil {
		return nil, dbError("insert urls", err)
	}
	defer rows.Close()
	ids := make(map[string]int64, len(addresses))
	for rows.Next() {
		var (
			id   int64
			addr string
		)
		if err := rows.Scan(&id, &addr); err != nil {
			return nil, dbError("scan inserted url", err)
		}
		ids[addr] = id
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("insert urls", err)
	}
	out := make([]crawler.URL, 0, len(addresses))
	for _, a := range addresses {
		out = append(out, crawler.URL{ID: ids[a], Address: a})
	}
	return out, nil
}

func (r urlRepo) Pending(ctx context.Context) ([]crawler.URL, error) {
	rows, err := r.q.Query(ctx, `SELECT id, url, processed FROM urls WHERE processed = FALSE ORDER BY id`)
	if err != nil {
		return nil, dbError("query pending urls", err)
	}
	defer rows.Close()
	var out []crawler.URL
	for rows.Next() {
		var u crawler.URL
		if err := rows.Scan(&u.ID, &u.Address, &u.Processed); err != nil {
			return nil, dbError("scan pending url", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterate pending urls", err)
	}
	return out, nil
}

func (r urlRepo) MarkProcessed(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `UPDATE urls SET processed = TRUE WHERE id = $1`, id)
	if err != nil {
		return dbError("mark processed", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("url %d: %w", id, crawler.ErrNotFound)
	}
	return nil
}

type tagRepo struct{ q querier }

func (r tagRepo) FindByTag(ctx context.Context, tag string) (crawler.LocationTag, error) {
	var t crawler.LocationTag
	err := r.q.QueryRow(ctx, `SELECT id, tag FROM location_tags WHERE tag = $1`, tag).Scan(&t.ID, &t.Tag)
	if err != nil {
		return crawler.LocationTag{}, dbError("find tag", err)
	}
	return t, nil
}

func (r tagRepo) Create(ctx context.Context, tag *crawler.LocationTag) error {
	err := r.q.QueryRow(ctx, `INSERT INTO location_tags (tag) VALUES ($1) RETURNING id`, tag.Tag).Scan(&tag.ID)
	if err != nil {
		return dbError("create tag", err)
	}
	return nil
}

type buildingRepo struct{ q querier }

func (r buildingRepo) FindByAddress(ctx context.Context, address string) (crawler.Building, error) {
	var (
		b        crawler.Building
		lat, lng float64
	)
	err := r.q.QueryRow(ctx, `
SELECT id, address, built, total_floors, has_lift, map_url, lat, lng
FROM buildings
WHERE address = $1`, address).
		Scan(&b.ID, &b.Address, &b.Built, &b.TotalFloors, &b.HasLift, &b.MapURL, &lat, &lng)
	if err != nil {
		return crawler.Building{}, dbError("find building", err)
	}
	b.Location = orb.Point{lng, lat}
	return b, nil
}

func (r buildingRepo) Create(ctx context.Context, b *crawler.Building) error {
	err := r.q.QueryRow(ctx, `
INSERT INTO buildings (address, built, total_floors, has_lift, map_url, lat, lng)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`,
		b.Address, dateOrNil(b.Built), b.TotalFloors, b.HasLift, b.MapURL, b.Lat(), b.Lng(),
	).Scan(&b.ID)
	if err != nil {
		return dbError("create building", err)
	}
	return nil
}

func (r buildingRepo) TagIDs(ctx context.Context, buildingID int64) ([]int64, error) {
	rows, err := r.q.Query(ctx,
		`SELECT location_id FROM building_location WHERE building_id = $1 ORDER BY location_id`, buildingID)
	if err != nil {
		return nil, dbError("query building tags", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, dbError("scan building tag", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterate building tags", err)
	}
	return ids, nil
}

func (r buildingRepo) AttachTag(ctx context.Context, buildingID, tagID int64) error {
	_, err := r.q.Exec(ctx, `
INSERT INTO building_location (building_id, location_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING`, buildingID, tagID)
	if err != nil {
		return dbError("attach tag", err)
	}
	return nil
}

type apartmentRepo struct{ q querier }

func (r apartmentRepo) FindByFingerprint(ctx context.Context, fp crawler.Fingerprint) (crawler.Apartment, error) {
	var a crawler.Apartment
	err := r.q.QueryRow(ctx, `
SELECT id, building_id, property_type, rooms, living_space, has_balcony, floor, avgift, driftskostnad
FROM apartments
WHERE building_id = $1
	AND rooms IS NOT DISTINCT FROM $2
	AND living_space IS NOT DISTINCT FROM $3
	AND floor IS NOT DISTINCT FROM $4
	AND has_balcony IS NOT DISTINCT FROM $5
ORDER BY id
LIMIT 1`, fp.BuildingID, fp.Rooms, fp.LivingSpace, fp.Floor, fp.HasBalcony).
		Scan(&a.ID, &a.BuildingID, &a.PropertyType, &a.Rooms, &a.LivingSpace, &a.HasBalcony,
			&a.Floor, &a.Avgift, &a.Driftskostnad)
	if err != nil {
		return crawler.Apartment{}, dbError("find apartment", err)
	}
	return a, nil
}

func (r apartmentRepo) Create(ctx context.Context, a *crawler.Apartment) error {
	err := r.q.QueryRow(ctx, `
INSERT INTO apartments (building_id, property_type, rooms, living_space, has_balcony, floor, avgift, driftskostnad)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`,
		a.BuildingID, a.PropertyType, a.Rooms, a.LivingSpace, a.HasBalcony, a.Floor, a.Avgift, a.Driftskostnad,
	).Scan(&a.ID)
	if err != nil {
		return dbError("create apartment", err)
	}
	return nil
}

type saleRepo struct{ q querier }

func (r saleRepo) Create(ctx context.Context, s *crawler.Sale) error {
	err := r.q.QueryRow(ctx, `
INSERT INTO sales (apartment_id, url_id, sale_date, asked_price, sold_price)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`,
		s.ApartmentID, s.URLID, s.SaleDate, s.AskedPrice, s.SoldPrice,
	).Scan(&s.ID)
	if err != nil {
		return dbError("create sale", err)
	}
	return nil
}

func dateOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
