// Package frontier keeps the resumable queue of detail pages. Discovered addresses are
// persisted before they are queued so an interrupted run can pick them up again.
package frontier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/sold-listings-crawler/internal/crawler"
	"github.com/JakeFAU/sold-listings-crawler/internal/metrics"
)

// Config controls address normalization and the advisory checkpoint file.
type Config struct {
	Origin string
	// CheckpointFile holds the result page about to be fetched. Empty disables it.
	CheckpointFile string
}

// Frontier implements crawler.Frontier. It is owned by a single driver goroutine.
type Frontier struct {
	cfg     Config
	store   crawler.Store
	fetcher crawler.Fetcher
	parser  crawler.Parser
	logger  *zap.Logger

	queue  []crawler.URL
	queued map[int64]struct{}
}

// New returns an empty Frontier backed by store.
func New(cfg Config, store crawler.Store, fetcher crawler.Fetcher, parser crawler.Parser, logger *zap.Logger) *Frontier {
	if cfg.Origin == "" {
		cfg.Origin = crawler.DefaultOrigin
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Frontier{
		cfg:     cfg,
		store:   store,
		fetcher: fetcher,
		parser:  parser,
		logger:  logger,
		queued:  make(map[int64]struct{}),
	}
}

// Enumerate walks up to maxPages result pages for seed and persists every detail link
// not seen before. A page that fails to fetch or parse ends the walk for this seed but
// keeps what was found; only storage failures are returned.
func (f *Frontier) Enumerate(ctx context.Context, seed string, maxPages int) (int, error) {
	added := 0
	for _, page := range f.pages(seed, maxPages) {
		if ctx.Err() != nil {
			break
		}
		f.writeCheckpoint(page)
		result, err := f.fetchResults(ctx, page)
		if err != nil {
			f.logger.Warn("Stopping enumeration", zap.String("seed", seed), zap.String("page", page), zap.Error(err))
			break
		}
		n, err := f.persist(ctx, result.Links)
		if err != nil {
			return added, err
		}
		added += n
		f.logger.Info("Result page enumerated",
			zap.String("page", page),
			zap.Int("links", len(result.Links)),
			zap.Int("new_urls", n),
		)
		if result.NextPage == "" && n == 0 {
			break
		}
	}
	f.clearCheckpoint()
	return added, nil
}

// pages lists the result pages to visit. A local seed is a single saved page.
func (f *Frontier) pages(seed string, maxPages int) []string {
	if !crawler.IsRemote(seed) && !strings.HasPrefix(seed, "/") {
		return []string{seed}
	}
	out := make([]string, 0, maxPages)
	for i := 1; i <= maxPages; i++ {
		out = append(out, crawler.ResultPageAddress(f.cfg.Origin, seed, i))
	}
	return out
}

func (f *Frontier) fetchResults(ctx context.Context, page string) (crawler.ResultPage, error) {
	raw, err := f.fetcher.Fetch(ctx, page)
	if err != nil {
		return crawler.ResultPage{}, fmt.Errorf("%w: %w", crawler.ErrEnumeration, err)
	}
	result, err := f.parser.ParseResults(raw)
	if err != nil {
		return crawler.ResultPage{}, fmt.Errorf("%w: %s: %w", crawler.ErrEnumeration, page, err)
	}
	return result, nil
}

// persist normalizes links, drops anything already stored and inserts the rest.
func (f *Frontier) persist(ctx context.Context, links []string) (int, error) {
	seen := make(map[string]struct{}, len(links))
	candidates := make([]string, 0, len(links))
	for _, link := range links {
		addr := crawler.NormalizeAddress(f.cfg.Origin, link)
		if addr == "" {
			continue
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		candidates = append(candidates, addr)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	known, err := f.store.URLs().Known(ctx, candidates)
	if err != nil {
		return 0, storageError("check known urls", err)
	}
	fresh := candidates[:0]
	for _, addr := range candidates {
		if !known[addr] {
			fresh = append(fresh, addr)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	rows, err := f.store.URLs().Insert(ctx, fresh)
	if err != nil {
		return 0, storageError("insert urls", err)
	}
	metrics.ObserveDiscovered(len(rows))
	return len(rows), nil
}

// Recover consumes a leftover checkpoint and loads every unprocessed url.
func (f *Frontier) Recover(ctx context.Context) (int, error) {
	if hint, ok := f.takeCheckpoint(); ok {
		f.logger.Info("Found enumeration checkpoint from an earlier run", zap.String("next_page", hint))
	}
	return f.Load(ctx)
}

// Load appends unprocessed urls that are not already queued, oldest first, and
// returns the queue length.
func (f *Frontier) Load(ctx context.Context) (int, error) {
	pending, err := f.store.URLs().Pending(ctx)
	if err != nil {
		return 0, storageError("load pending urls", err)
	}
	for _, u := range pending {
		if _, ok := f.queued[u.ID]; ok {
			continue
		}
		f.queued[u.ID] = struct{}{}
		f.queue = append(f.queue, u)
	}
	return len(f.queue), nil
}

// Pop removes the oldest queued url.
func (f *Frontier) Pop() (crawler.URL, bool) {
	if len(f.queue) == 0 {
		return crawler.URL{}, false
	}
	u := f.queue[0]
	f.queue = f.queue[1:]
	delete(f.queued, u.ID)
	return u, true
}

// Len returns the number of queued urls.
func (f *Frontier) Len() int {
	return len(f.queue)
}

// MarkProcessed flags u through repos, normally the resolver's transaction.
func (f *Frontier) MarkProcessed(ctx context.Context, repos crawler.Repositories, u *crawler.URL) error {
	if repos == nil {
		repos = f.store
	}
	if err := repos.URLs().MarkProcessed(ctx, u.ID); err != nil {
		return storageError("mark processed", err)
	}
	u.Processed = true
	return nil
}

func (f *Frontier) writeCheckpoint(page string) {
	if f.cfg.CheckpointFile == "" {
		return
	}
	if err := os.WriteFile(f.cfg.CheckpointFile, []byte(page+"\n"), 0o600); err != nil {
		f.logger.Warn("Failed to write checkpoint", zap.String("path", f.cfg.CheckpointFile), zap.Error(err))
	}
}

func (f *Frontier) clearCheckpoint() {
	if f.cfg.CheckpointFile == "" {
		return
	}
	if err := os.Remove(f.cfg.CheckpointFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		f.logger.Warn("Failed to remove checkpoint", zap.String("path", f.cfg.CheckpointFile), zap.Error(err))
	}
}

func (f *Frontier) takeCheckpoint() (string, bool) {
	if f.cfg.CheckpointFile == "" {
		return "", false
	}
	data, err := os.ReadFile(f.cfg.CheckpointFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.logger.Warn("Failed to read checkpoint", zap.String("path", f.cfg.CheckpointFile), zap.Error(err))
		}
		return "", false
	}
	f.clearCheckpoint()
	return strings.TrimSpace(string(data)), true
}

func storageError(op string, err error) error {
	if errors.Is(err, crawler.ErrStorage) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, crawler.ErrStorage, err)
}
