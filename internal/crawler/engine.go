package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/sold-listings-crawler/internal/metrics"
)

const tracerName = "github.com/JakeFAU/sold-listings-crawler/internal/crawler"

// State is a CrawlDriver lifecycle state.
type State string

// Engine states. Aborted is terminal; Idle is the clean exit.
const (
	StateSeeding     State = "seeding"
	StateEnumerating State = "enumerating"
	StateDraining    State = "draining"
	StateIdle        State = "idle"
	StateAborted     State = "aborted"
)

// Frontier is the resumable queue of pending detail pages.
type Frontier interface {
	Enumerate(ctx context.Context, seed string, maxPages int) (int, error)
	Recover(ctx context.Context) (int, error)
	Load(ctx context.Context) (int, error)
	Pop() (URL, bool)
	Len() int
	MarkProcessed(ctx context.Context, repos Repositories, u *URL) error
}

// Resolver merges a parsed record into the store. onCommit runs inside the same
// transaction after the entities are written.
type Resolver interface {
	Resolve(
		ctx context.Context,
		rec ListingRecord,
		source URL,
		onCommit func(context.Context, Repositories) error,
	) (Resolution, error)
}

// RunOptions configures a single crawl run.
type RunOptions struct {
	Seeds    []string
	MaxPages int
	// Recover skips enumeration and drains whatever is still unprocessed.
	Recover bool
}

// Stats summarizes a run.
type Stats struct {
	Discovered int
	Queued     int
	Processed  int
	Skipped    map[string]int
}

// Engine drives seed enumeration and the sequential fetch, parse, resolve loop.
type Engine struct {
	frontier Frontier
	fetcher  Fetcher
	parser   Parser
	resolver Resolver
	archive  Archive
	logger   *zap.Logger

	mu    sync.Mutex
	state State
}

// NewEngine wires the pipeline components. archive may be nil.
func NewEngine(
	frontier Frontier,
	fetcher Fetcher,
	parser Parser,
	resolver Resolver,
	archive Archive,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		frontier: frontier,
		fetcher:  fetcher,
		parser:   parser,
		resolver: resolver,
		archive:  archive,
		logger:   logger,
		state:    StateSeeding,
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Run executes one crawl. Per-item failures are logged and skipped; storage failures
// move the engine to Aborted and are returned. Cancelling ctx stops pulling new work.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (Stats, error) {
	stats := Stats{Skipped: make(map[string]int)}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "crawler.run")
	span.SetAttributes(attribute.Bool("recover", opts.Recover), attribute.Int("seeds", len(opts.Seeds)))
	defer span.End()
	e.transition(StateSeeding)

	seeds := make([]string, 0, len(opts.Seeds))
	for _, s := range opts.Seeds {
		if s = strings.TrimSpace(s); s != "" {
			seeds = append(seeds, s)
		}
	}
	if !opts.Recover && len(seeds) == 0 {
		e.transition(StateAborted)
		return stats, errors.New("no seed queries configured")
	}

	queued, err := e.seed(ctx, seeds, opts, &stats)
	if err != nil {
		return stats, e.abort(err)
	}
	stats.Queued = queued
	metrics.SetFrontierDepth(e.frontier.Len())

	e.transition(StateDraining)
	for ctx.Err() == nil {
		u, ok := e.frontier.Pop()
		if !ok {
			break
		}
		metrics.SetFrontierDepth(e.frontier.Len())
		err := e.process(ctx, u)
		switch {
		case err == nil:
			stats.Processed++
			metrics.ObserveItem("processed")
		case IsItemError(err):
			kind := ErrorKind(err)
			stats.Skipped[kind]++
			metrics.ObserveItem(kind)
			e.logger.Warn("Skipping url", zap.String("url", u.Address), zap.String("kind", kind), zap.Error(err))
		default:
			return stats, e.abort(err)
		}
	}

	e.transition(StateIdle)
	e.logger.Info("Crawl finished",
		zap.Int("discovered", stats.Discovered),
		zap.Int("processed", stats.Processed),
		zap.Int("remaining", e.frontier.Len()),
		zap.Any("skipped", stats.Skipped),
	)
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("crawl interrupted: %w", err)
	}
	return stats, nil
}

func (e *Engine) seed(ctx context.Context, seeds []string, opts RunOptions, stats *Stats) (int, error) {
	if opts.Recover {
		e.logger.Info("Recovery mode; skipping enumeration")
		return e.frontier.Recover(ctx)
	}
	e.transition(StateEnumerating)
	for _, s := range seeds {
		if ctx.Err() != nil {
			break
		}
		added, err := e.frontier.Enumerate(ctx, s, opts.MaxPages)
		stats.Discovered += added
		if err != nil {
			return 0, err
		}
		e.logger.Info("Seed enumerated", zap.String("seed", s), zap.Int("new_urls", added))
	}
	return e.frontier.Load(ctx)
}

func (e *Engine) process(ctx context.Context, u URL) (err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "crawler.process")
	span.SetAttributes(attribute.String("url", u.Address), attribute.Int64("url.id", u.ID))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, ErrorKind(err))
		}
		span.End()
	}()

	raw, err := e.fetcher.Fetch(ctx, u.Address)
	if err != nil {
		return err
	}
	if e.archive != nil && IsRemote(u.Address) {
		if loc, aerr := e.archive.Put(ctx, u.Address, raw); aerr != nil {
			e.logger.Warn("Failed to archive page", zap.String("url", u.Address), zap.Error(aerr))
		} else {
			e.logger.Debug("Archived page", zap.String("url", u.Address), zap.String("location", loc))
		}
	}
	rec, err := e.parser.ParseDetail(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", u.Address, err)
	}
	res, err := e.resolver.Resolve(ctx, rec, u, func(ctx context.Context, repos Repositories) error {
		return e.frontier.MarkProcessed(ctx, repos, &u)
	})
	if err != nil {
		return err
	}
	e.logger.Debug("Resolved listing",
		zap.String("url", u.Address),
		zap.Int64("building_id", res.Building.ID),
		zap.Int64("apartment_id", res.Apartment.ID),
		zap.Int64("sale_id", res.Sale.ID),
		zap.Bool("new_building", res.NewBuilding),
		zap.Bool("new_apartment", res.NewApartment),
	)
	return nil
}

func (e *Engine) abort(err error) error {
	e.transition(StateAborted)
	e.logger.Error("Crawl aborted", zap.Error(err))
	return fmt.Errorf("crawl aborted: %w", err)
}

func (e *Engine) transition(to State) {
	e.mu.Lock()
	from := e.state
	e.state = to
	e.mu.Unlock()
	if from != to {
		e.logger.Info("State transition", zap.String("from", string(from)), zap.String("to", string(to)))
	}
}
