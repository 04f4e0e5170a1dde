package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sold-listings-crawler/internal/crawler"
	"github.com/JakeFAU/sold-listings-crawler/internal/metrics"
)

type crawlOptions struct {
	queries  []string
	recover  bool
	maxPages int
}

// newCrawlCmd creates the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Enumerate seed queries and extract every pending detail page",
		Long: `Enumerates the result pages of every seed query, stores newly discovered detail
page urls, then fetches, parses and resolves each unprocessed url in turn.
With --recover, enumeration is skipped and only the remaining urls are drained.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringArrayVarP(&opts.queries, "query", "q", nil, "seed query (repeatable); overrides crawler.seeds")
	cmd.Flags().BoolVar(&opts.recover, "recover", false, "skip enumeration and drain unprocessed urls")
	cmd.Flags().IntVar(&opts.maxPages, "max-pages", 0, "result pages per seed (default crawler.max_pages)")
	return cmd
}

func runCrawl(ctx context.Context, opts *crawlOptions) error {
	appInstance, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	// PersistentPostRun is skipped when RunE fails, so the store is closed here.
	defer appInstance.Close()
	cfg := appInstance.GetConfig()
	logger := appInstance.GetLogger()

	run := crawler.RunOptions{
		Seeds:    cfg.Crawler.Seeds,
		MaxPages: cfg.Crawler.MaxPages,
		Recover:  opts.recover,
	}
	if len(opts.queries) > 0 {
		run.Seeds = opts.queries
	}
	if opts.maxPages > 0 {
		run.MaxPages = opts.maxPages
	}

	stats, runErr := appInstance.GetEngine().Run(ctx, run)

	// The push uses its own context so an interrupted run still reports.
	if err := metrics.Push(context.WithoutCancel(ctx), cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
		logger.Warn("Failed to push metrics", zap.Error(err))
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run crawler: %w", runErr)
	}
	logger.Info("Crawl command finished.",
		zap.Int("discovered", stats.Discovered),
		zap.Int("processed", stats.Processed),
		zap.Any("skipped", stats.Skipped),
	)
	return nil
}
