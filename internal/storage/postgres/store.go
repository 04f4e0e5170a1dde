// Package postgres provides the Postgres-backed relational store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/sold-listings-crawler/internal/crawler"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type pool interface {
	querier
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Store implements crawler.Store on a pgx pool. Repositories obtained from the Store
// itself run in autocommit mode; InTx scopes them to one transaction.
type Store struct {
	pool   pool
	logger *zap.Logger
}

// NewStore connects to Postgres and applies the schema.
func NewStore(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: connect postgres: %w", crawler.ErrStorage, err)
	}
	s, err := NewStoreWithPool(p, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(p pool, logger *zap.Logger) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: p, logger: logger}, nil
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return dbError("migrate", err)
	}
	return nil
}

// InTx runs fn inside a transaction and commits when it returns nil.
func (s *Store) InTx(ctx context.Context, fn func(crawler.Repositories) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return dbError("begin", err)
	}
	if err := fn(repos{q: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("Rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return dbError("commit", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// URLs implements crawler.Repositories in autocommit mode.
func (s *Store) URLs() crawler.URLRepository { return urlRepo{q: s.pool} }

// Tags implements crawler.Repositories in autocommit mode.
func (s *Store) Tags() crawler.LocationTagRepository { return tagRepo{q: s.pool} }

// Buildings implements crawler.Repositories in autocommit mode.
func (s *Store) Buildings() crawler.BuildingRepository { return buildingRepo{q: s.pool} }

// Apartments implements crawler.Repositories in autocommit mode.
func (s *Store) Apartments() crawler.ApartmentRepository { return apartmentRepo{q: s.pool} }

// Sales implements crawler.Repositories in autocommit mode.
func (s *Store) Sales() crawler.SaleRepository { return saleRepo{q: s.pool} }

type repos struct{ q querier }

func (r repos) URLs() crawler.URLRepository { return urlRepo(r) }
func (r repos) Tags() crawler.LocationTagRepository { return tagRepo(r) }
func (r repos) Buildings() crawler.BuildingRepository { return buildingRepo(r) }
func (r repos) Apartments() crawler.ApartmentRepository { return apartmentRepo(r) }
func (r repos) Sales() crawler.SaleRepository { return saleRepo(r) }

// dbError tags driver failures as storage errors. A missing row is reported as
// crawler.ErrNotFound instead.
func dbError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, crawler.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, crawler.ErrStorage, err)
}
