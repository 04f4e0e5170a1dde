// Package collyfetcher implements the crawler's fetch gate using gocolly. Every remote
// fetch passes robots.txt evaluation and the process-wide politeness limiter first.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/sold-listings-crawler/internal/crawler"
	"github.com/JakeFAU/sold-listings-crawler/internal/metrics"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Waiter blocks until the next fetch may start.
type Waiter interface {
	Wait(ctx context.Context) error
}

// RobotsPolicy decides whether an address may be fetched.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) (bool, error)
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	robots        RobotsPolicy
	limiter       Waiter
	logger        *zap.Logger
	baseCollector *colly.Collector
	readFile      func(string) ([]byte, error)
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type fetchResult struct {
	status int
	body   []byte
	err    error
}

// New builds a Fetcher. robots and limiter are shared by every fetch made through it.
func New(cfg Config, robots RobotsPolicy, limiter Waiter, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = crawler.DefaultUserAgent
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		robots:        robots,
		limiter:       limiter,
		logger:        logger,
		baseCollector: c,
		readFile:      os.ReadFile,
	}
}

// Fetch returns the raw bytes stored at address. Local paths are read directly and skip
// both robots evaluation and the politeness delay.
func (f *Fetcher) Fetch(ctx context.Context, address string) ([]byte, error) {
	if !crawler.IsRemote(address) {
		body, err := f.readFile(address)
		if err != nil {
			metrics.ObserveFetch(address, "error", 0)
			return nil, fmt.Errorf("read %s: %w: %w", address, crawler.ErrNetwork, err)
		}
		metrics.ObserveFetch(address, "ok", len(body))
		return body, nil
	}

	if f.robots != nil {
		allowed, err := f.robots.Allowed(ctx, address)
		if err != nil {
			metrics.ObserveFetch(address, "robots_error", 0)
			return nil, fmt.Errorf("robots policy for %s: %w: %w", address, crawler.ErrNetwork, err)
		}
		if !allowed {
			metrics.ObserveFetch(address, "disallowed", 0)
			return nil, fmt.Errorf("%w: %s", crawler.ErrPermissionDenied, address)
		}
	}

	if f.limiter != nil {
		f.logger.Debug("Waiting for politeness delay", zap.String("url", address))
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", crawler.ErrNetwork, err)
		}
	}

	var result fetchResult
	collector := f.buildCollector(&result)
	if err := f.runCollector(ctx, collector, address, &result); err != nil {
		metrics.ObserveFetch(address, "error", 0)
		return nil, fmt.Errorf("fetch %s: %w: %w", address, crawler.ErrNetwork, err)
	}
	if result.status >= http.StatusBadRequest {
		metrics.ObserveFetch(address, "http_error", 0)
		return nil, fmt.Errorf("fetch %s: %w: status %d", address, crawler.ErrNetwork, result.status)
	}
	metrics.ObserveFetch(address, "ok", len(result.body))
	f.logger.Debug("Fetched page", zap.String("url", address), zap.Int("status", result.status), zap.Int("bytes", len(result.body)))
	return result.body, nil
}

func (f *Fetcher) buildCollector(result *fetchResult) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	// robots.txt is evaluated by the gate before the limiter, not by colly.
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	f.configureCollectorHooks(collector, result)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *fetchResult) {
	hooks.OnResponse(func(r *colly.Response) {
		result.status = r.StatusCode
		result.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= http.StatusBadRequest {
			result.status = r.StatusCode
			return
		}
		result.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, address string, result *fetchResult) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(address)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if result.status >= http.StatusBadRequest {
			return nil
		}
		if result.err != nil {
			return fmt.Errorf("colly response failed: %w", result.err)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
