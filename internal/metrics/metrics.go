// Package metrics exposes Prometheus collectors for the crawl pipeline.
package metrics

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	crawlerFetchesTotal           *prometheus.CounterVec
	crawlerBytesTotal             *prometheus.CounterVec
	crawlerItemsTotal             *prometheus.CounterVec
	crawlerDiscoveredURLsTotal    prometheus.Counter
	crawlerFrontierDepth          prometheus.Gauge
	crawlerRateLimitDelaysSeconds prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_fetches_total",
				Help: "Total number of fetch attempts, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_items_total",
				Help: "Detail pages drained from the frontier, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlerDiscoveredURLsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_discovered_urls_total",
				Help: "New detail page urls persisted by enumeration.",
			},
		)

		crawlerFrontierDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_frontier_depth",
				Help: "Number of urls waiting in the frontier.",
			},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delays_seconds",
				Help:    "Histogram of politeness delay waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 3, 5, 10},
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// Local file inputs are labeled "local"; unparsable input is "unknown".
func SanitizeSite(rawURL string) string {
	if rawURL == "" {
		return "unknown"
	}
	if !strings.HasPrefix(rawURL, "http") {
		return "local"
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveFetch records one fetch attempt.
func ObserveFetch(site, outcome string, bytesFetched int) {
	Init()
	sanitized := SanitizeSite(site)
	crawlerFetchesTotal.WithLabelValues(sanitized, outcome).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(sanitized).Add(float64(bytesFetched))
	}
}

// ObserveItem records the outcome of a drained frontier item.
func ObserveItem(outcome string) {
	Init()
	crawlerItemsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDiscovered adds n newly persisted urls.
func ObserveDiscovered(n int) {
	Init()
	if n > 0 {
		crawlerDiscoveredURLsTotal.Add(float64(n))
	}
}

// SetFrontierDepth reports the pending queue length.
func SetFrontierDepth(n int) {
	Init()
	crawlerFrontierDepth.Set(float64(n))
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	crawlerRateLimitDelaysSeconds.Observe(duration.Seconds())
}

// Push sends the default registry to a Pushgateway. Batch runs have no scrape endpoint.
func Push(ctx context.Context, gatewayURL, job string) error {
	Init()
	if gatewayURL == "" {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
