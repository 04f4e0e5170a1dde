// Package sqlite provides the embedded single-file store used for local crawls.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/JakeFAU/sold-listings-crawler/internal/crawler"
)

// Config points the store at a database file.
type Config struct {
	Path string
}

// Store implements crawler.Store on SQLite through gorm.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open creates the database file if needed and migrates the schema.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create database dir: %w", crawler.ErrStorage, err)
		}
	}
	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %w", crawler.ErrStorage, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite handle: %w", crawler.ErrStorage, err)
	}
	// One connection keeps pragmas and the single writer consistent.
	sqlDB.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := db.WithContext(ctx).Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		_ = sqlDB.Close()
		return nil, dbError("enable foreign keys", err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	logger.Debug("SQLite store ready", zap.String("path", cfg.Path))
	return s, nil
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&urlRow{}, &tagRow{}, &buildingRow{}, &buildingLocationRow{}, &apartmentRow{}, &saleRow{},
	)
	if err != nil {
		return dbError("migrate", err)
	}
	return nil
}

// InTx runs fn inside a gorm transaction.
func (s *Store) InTx(ctx context.Context, fn func(crawler.Repositories) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(repos{db: tx})
	})
	if err != nil && !errors.Is(err, crawler.ErrStorage) && !errors.Is(err, crawler.ErrNotFound) {
		return dbError("transaction", err)
	}
	return err
}

// Close closes the database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return dbError("close", err)
	}
	return sqlDB.Close()
}

// URLs implements crawler.Repositories in autocommit mode.
func (s *Store) URLs() crawler.URLRepository { return urlRepo{db: s.db} }

// Tags implements crawler.Repositories in autocommit mode.
func (s *Store) Tags() crawler.LocationTagRepository { return tagRepo{db: s.db} }

// Buildings implements crawler.Repositories in autocommit mode.
func (s *Store) Buildings() crawler.BuildingRepository { return buildingRepo{db: s.db} }

// Apartments implements crawler.Repositories in autocommit mode.
func (s *Store) Apartments() crawler.ApartmentRepository { return apartmentRepo{db: s.db} }

// Sales implements crawler.Repositories in autocommit mode.
func (s *Store) Sales() crawler.SaleRepository { return saleRepo{db: s.db} }

type repos struct{ db *gorm.DB }

func (r repos) URLs() crawler.URLRepository { return urlRepo(r) }
func (r repos) Tags() crawler.LocationTagRepository { return tagRepo(r) }
func (r repos) Buildings() crawler.BuildingRepository { return buildingRepo(r) }
func (r repos) Apartments() crawler.ApartmentRepository { return apartmentRepo(r) }
func (r repos) Sales() crawler.SaleRepository { return saleRepo(r) }

func dbError(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, crawler.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, crawler.ErrStorage, err)
}

type urlRepo struct{ db *gorm.DB }

func (r urlRepo) Known(ctx context.Context, addresses []string) (map[string]bool, error) {
	known := make(map[string]bool)
	if len(addresses) == 0 {
		return known, nil
	}
	var found []string
	err := r.db.WithContext(ctx).Model(&urlRow{}).Where("url IN ?", addresses).Pluck("url", &found).Error
	if err != nil {
		return nil, dbError("query known urls", err)
	}
	for _, a := range found {
		known[a] = true
	}
	return known, nil
}

func (r urlRepo) Insert(ctx context.Context, addresses []string) ([]crawler.URL, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	rows := make([]urlRow, 0, len(addresses))
	for _, a := range addresses {
		rows = append(rows, urlRow{URL: a})
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, dbError("insert urls", err)
	}
	out := make([]crawler.URL, 0, len(rows))
	for _, row := range rows {
		out = append(out, crawler.URL{ID: row.ID, Address: row.URL})
	}
	return out, nil
}

func (r urlRepo) Pending(ctx context.Context) ([]crawler.URL, error) {
	var rows []urlRow
	if err := r.db.WithContext(ctx).Where("processed = ?", false).Order("id").Find(&rows).Error; err != nil {
		return nil, dbError("query pending urls", err)
	}
	out := make([]crawler.URL, 0, len(rows))
	for _, row := range rows {
		out = append(out, crawler.URL{ID: row.ID, Address: row.URL, Processed: row.Processed})
	}
	return out, nil
}

func (r urlRepo) MarkProcessed(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Model(&urlRow{}).Where("id = ?", id).Update("processed", true)
	if res.Error != nil {
		return dbError("mark processed", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("url %d: %w", id, crawler.ErrNotFound)
	}
	return nil
}

type tagRepo struct{ db *gorm.DB }

func (r tagRepo) FindByTag(ctx context.Context, tag string) (crawler.LocationTag, error) {
	var row tagRow
	if err := r.db.WithContext(ctx).Where("tag = ?", tag).First(&row).Error; err != nil {
		return crawler.LocationTag{}, dbError("find tag", err)
	}
	return crawler.LocationTag{ID: row.ID, Tag: row.Tag}, nil
}

func (r tagRepo) Create(ctx context.Context, tag *crawler.LocationTag) error {
	row := tagRow{Tag: tag.Tag}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return dbError("create tag", err)
	}
	tag.ID = row.ID
	return nil
}

type buildingRepo struct{ db *gorm.DB }

func (r buildingRepo) FindByAddress(ctx context.Context, address string) (crawler.Building, error) {
	var row buildingRow
	if err := r.db.WithContext(ctx).Where("address = ?", address).First(&row).Error; err != nil {
		return crawler.Building{}, dbError("find building", err)
	}
	return crawler.Building{
		ID:          row.ID,
		Address:     row.Address,
		Built:       row.Built,
		TotalFloors: row.TotalFloors,
		HasLift:     row.HasLift,
		MapURL:      row.MapURL,
		Location:    orb.Point{row.Lng, row.Lat},
	}, nil
}

func (r buildingRepo) Create(ctx context.Context, b *crawler.Building) error {
	row := buildingRow{
		Address:     b.Address,
		Built:       b.Built,
		TotalFloors: b.TotalFloors,
		HasLift:     b.HasLift,
		MapURL:      b.MapURL,
		Lat:         b.Lat(),
		Lng:         b.Lng(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return dbError("create building", err)
	}
	b.ID = row.ID
	return nil
}

func (r buildingRepo) TagIDs(ctx context.Context, buildingID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&buildingLocationRow{}).
		Where("building_id = ?", buildingID).
		Order("location_id").
		Pluck("location_id", &ids).Error
	if err != nil {
		return nil, dbError("query building tags", err)
	}
	return ids, nil
}

func (r buildingRepo) AttachTag(ctx context.Context, buildingID, tagID int64) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&buildingLocationRow{BuildingID: buildingID, LocationID: tagID}).Error
	if err != nil {
		return dbError("attach tag", err)
	}
	return nil
}

type apartmentRepo struct{ db *gorm.DB }

// FindByFingerprint matches with SQLite's null-safe IS operator so unknown values
// compare equal to each other.
func (r apartmentRepo) FindByFingerprint(ctx context.Context, fp crawler.Fingerprint) (crawler.Apartment, error) {
	var row apartmentRow
	err := r.db.WithContext(ctx).
		Where("building_id = ?", fp.BuildingID).
		Where("rooms IS ?", fp.Rooms).
		Where("living_space IS ?", fp.LivingSpace).
		Where("floor IS ?", fp.Floor).
		Where("has_balcony IS ?", fp.HasBalcony).
		First(&row).Error
	if err != nil {
		return crawler.Apartment{}, dbError("find apartment", err)
	}
	return crawler.Apartment{
		ID:            row.ID,
		BuildingID:    row.BuildingID,
		PropertyType:  row.PropertyType,
		Rooms:         row.Rooms,
		LivingSpace:   row.LivingSpace,
		HasBalcony:    row.HasBalcony,
		Floor:         row.Floor,
		Avgift:        row.Avgift,
		Driftskostnad: row.Driftskostnad,
	}, nil
}

func (r apartmentRepo) Create(ctx context.Context, a *crawler.Apartment) error {
	row := apartmentRow{
		BuildingID:    a.BuildingID,
		PropertyType:  a.PropertyType,
		Rooms:         a.Rooms,
		LivingSpace:   a.LivingSpace,
		HasBalcony:    a.HasBalcony,
		Floor:         a.Floor,
		Avgift:        a.Avgift,
		Driftskostnad: a.Driftskostnad,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return dbError("create apartment", err)
	}
	a.ID = row.ID
	return nil
}

type saleRepo struct{ db *gorm.DB }

func (r saleRepo) Create(ctx context.Context, s *crawler.Sale) error {
	row := saleRow{
		ApartmentID: s.ApartmentID,
		URLID:       s.URLID,
		SaleDate:    s.SaleDate,
		AskedPrice:  s.AskedPrice,
		SoldPrice:   s.SoldPrice,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return dbError("create sale", err)
	}
	s.ID = row.ID
	return nil
}
