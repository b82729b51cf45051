// Package pipeline turns configuration into ready crawl and extraction runs
// for the command line tools and the API.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/maltedev/vape-product-scraper/internal/browser"
	"github.com/maltedev/vape-product-scraper/internal/completion"
	"github.com/maltedev/vape-product-scraper/internal/config"
	"github.com/maltedev/vape-product-scraper/internal/extractor"
	"github.com/maltedev/vape-product-scraper/internal/fetcher"
	"github.com/maltedev/vape-product-scraper/internal/merge"
	"github.com/maltedev/vape-product-scraper/internal/models"
	"github.com/maltedev/vape-product-scraper/internal/parser"
	"github.com/maltedev/vape-product-scraper/internal/queue"
	"github.com/maltedev/vape-product-scraper/internal/ratelimit"
	"github.com/maltedev/vape-product-scraper/internal/scraper"
)

// FetcherFactory opens a fetcher for one site. The returned func releases it.
type FetcherFactory func(profile parser.Profile) (scraper.Fetcher, func() error, error)

type Runner struct {
	cfg        *config.Config
	newFetcher FetcherFactory
	sleeper    ratelimit.Sleeper
	completer  extractor.Completer
	logger     *slog.Logger
}

func NewRunner(cfg *config.Config, logger *slog.Logger) *Runner {
	r := &Runner{
		cfg:    cfg,
		logger: logger,
		completer: completion.NewClient(completion.Config{
			BaseURL:           cfg.LLM.BaseURL,
			Model:             cfg.LLM.Model,
			Temperature:       cfg.LLM.Temperature,
			Timeout:           cfg.LLM.Timeout,
			RequestsPerSecond: cfg.LLM.RequestsPerSecond,
			Burst:             cfg.LLM.Burst,
		}, logger),
	}
	r.newFetcher = r.openFetcher
	return r
}

func (r *Runner) Completer() extractor.Completer {
	return r.completer
}

// Profile is the site profile with config and explicit limits applied.
// Non-positive limits keep what config and the site say.
func (r *Runner) Profile(adapter parser.Adapter, maxItems, maxPages int) parser.Profile {
	profile := r.cfg.Scraper.ApplyTo(adapter.Profile())
	if maxItems > 0 {
		profile.MaxItems = maxItems
	}
	if maxPages > 0 {
		profile.MaxPages = maxPages
	}
	return profile
}

// Crawl runs one crawl of adapter's site with a fresh fetcher.
func (r *Runner) Crawl(ctx context.Context, adapter parser.Adapter, maxItems, maxPages int) ([]models.ScrapedProduct, scraper.RunSummary, error) {
	profile := r.Profile(adapter, maxItems, maxPages)

	f, release, err := r.newFetcher(profile)
	if err != nil {
		return nil, scraper.RunSummary{}, err
	}
	defer func() {
		if err := release(); err != nil {
			r.logger.Warn("failed to release fetcher", "site", adapter.Name(), "error", err)
		}
	}()

	crawler := scraper.NewCrawler(adapter, f, r.sleeper, scraper.OptionsFromProfile(profile), r.logger)
	return crawler.Run(ctx)
}

// CrawlTask runs a queued crawl job.
func (r *Runner) CrawlTask(ctx context.Context, task *queue.Task) ([]models.ScrapedProduct, scraper.RunSummary, error) {
	adapter, err := parser.Lookup(task.Site)
	if err != nil {
		return nil, scraper.RunSummary{}, err
	}
	return r.Crawl(ctx, adapter, task.MaxItems, task.MaxPages)
}

// Extract derives structured fields for every product and merges them in.
func (r *Runner) Extract(ctx context.Context, adapter parser.Adapter, products []models.ScrapedProduct) ([]models.MergedProduct, error) {
	ex := extractor.New(adapter.Schema(), r.completer, r.logger)
	structured, err := ex.ExtractAll(ctx, products)
	if err != nil {
		return nil, err
	}
	return merge.Merge(products, structured)
}

func (r *Runner) openFetcher(profile parser.Profile) (scraper.Fetcher, func() error, error) {
	switch r.cfg.Scraper.FetchMode {
	case config.FetchModeBrowser:
		opts := browser.DefaultOptions()
		opts.Headless = r.cfg.Browser.Headless
		if r.cfg.Browser.Timeout > 0 {
			opts.Timeout = r.cfg.Browser.Timeout
		}
		if r.cfg.Browser.MaxRetries > 0 {
			opts.MaxRetries = r.cfg.Browser.MaxRetries
		}
		opts.ProxyServer = r.cfg.Browser.ProxyServer
		if len(r.cfg.Scraper.UserAgents) > 0 {
			opts.UserAgent = r.cfg.Scraper.UserAgents[0]
		}
		maps.Copy(opts.ExtraHeaders, profile.Headers)

		b, err := browser.New(opts, r.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to start browser: %w", err)
		}
		return b, b.Close, nil
	default:
		f := fetcher.New(fetcher.Options{
			Timeout:    profile.Timeout,
			UserAgents: r.cfg.Scraper.UserAgents,
			Headers:    profile.Headers,
		}, r.logger)
		return f, func() error { return nil }, nil
	}
}
