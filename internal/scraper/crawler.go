package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/vape-product-scraper/internal/models"
	"github.com/maltedev/vape-product-scraper/internal/parser"
	"github.com/maltedev/vape-product-scraper/internal/ratelimit"
)

// Crawler pages through a site's listing and enriches every card with its
// detail page, strictly one request at a time.
type Crawler struct {
	adapter parser.Adapter
	fetcher Fetcher
	details *DetailExtractor
	sleeper ratelimit.Sleeper
	opts    Options
	logger  *slog.Logger
}

func NewCrawler(adapter parser.Adapter, fetcher Fetcher, sleeper ratelimit.Sleeper, opts Options, logger *slog.Logger) *Crawler {
	if sleeper == nil {
		sleeper = ratelimit.Courtesy{}
	}
	return &Crawler{
		adapter: adapter,
		fetcher: fetcher,
		details: NewDetailExtractor(adapter, fetcher, logger),
		sleeper: sleeper,
		opts:    opts,
		logger:  logger.With("component", "crawler", "site", adapter.Name()),
	}
}

// Run crawls until the item budget is spent, the page ceiling is reached or a
// listing page comes back empty. Items keep listing order. A cancelled
// context aborts the run and nothing is returned.
func (c *Crawler) Run(ctx context.Context) ([]models.ScrapedProduct, RunSummary, error) {
	start := time.Now()
	summary := RunSummary{
		RunID: uuid.New().String(),
		Site:  c.adapter.Name(),
	}
	logger := c.logger.With("run_id", summary.RunID)
	logger.Info("starting crawl", "max_items", c.opts.MaxItems, "max_pages", c.opts.MaxPages)

	items := make([]models.ScrapedProduct, 0)
	abort := func(err error) ([]models.ScrapedProduct, RunSummary, error) {
		logger.Warn("crawl aborted", "error", err, "items", len(items))
		return nil, RunSummary{}, fmt.Errorf("crawl of %s aborted: %w", summary.Site, err)
	}

	for page := 1; ; page++ {
		if len(items) >= c.opts.MaxItems {
			summary.StopReason = StopMaxItems
			break
		}
		if c.opts.MaxPages > 0 && page > c.opts.MaxPages {
			summary.StopReason = StopMaxPages
			break
		}
		if err := ctx.Err(); err != nil {
			return abort(err)
		}

		cards := c.listing(ctx, logger, page, &summary)
		if err := ctx.Err(); err != nil {
			return abort(err)
		}
		summary.Pages = page
		if len(cards) == 0 {
			logger.Info("no products on page, stopping", "page", page)
			summary.StopReason = StopExhausted
			break
		}

		for _, card := range cards {
			if len(items) >= c.opts.MaxItems {
				break
			}

			detail, degraded := c.details.Extract(ctx, card.Link)
			if err := ctx.Err(); err != nil {
				return abort(err)
			}
			if degraded {
				summary.Degraded++
			}

			product, err := models.NewScrapedProduct(card, detail)
			if err != nil {
				logger.Warn("failed to assemble product", "link", card.Link, "error", err)
				product, _ = models.NewScrapedProduct(card, models.EmptyDetail())
				summary.Degraded++
			}
			items = append(items, product)
			logger.Info("product scraped", "count", len(items), "max_items", c.opts.MaxItems, "title", card.Title)

			if err := c.sleeper.Sleep(ctx, c.opts.DetailDelay); err != nil {
				return abort(err)
			}
		}

		if len(items) >= c.opts.MaxItems {
			summary.StopReason = StopMaxItems
			break
		}
		if err := c.sleeper.Sleep(ctx, c.opts.PageDelay); err != nil {
			return abort(err)
		}
	}

	summary.Items = len(items)
	summary.Duration = time.Since(start)
	logger.Info("crawl completed",
		"items", summary.Items,
		"pages", summary.Pages,
		"degraded", summary.Degraded,
		"card_failures", summary.CardFailures,
		"stop_reason", summary.StopReason,
		"duration", summary.Duration,
	)
	return items, summary, nil
}

// listing fetches and parses one listing page. A fetch failure is reported
// and treated as an empty page.
func (c *Crawler) listing(ctx context.Context, logger *slog.Logger, page int, summary *RunSummary) []models.ListingCard {
	url := c.adapter.ListingURL(page)
	logger.Info("scraping listing page", "page", page, "url", url)

	raw, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		logger.Error("failed to fetch listing page", "page", page, "url", url, "error", err)
		return nil
	}

	doc, err := parser.NewPage(raw, url)
	if err != nil {
		logger.Error("failed to parse listing page", "page", page, "url", url, "error", err)
		return nil
	}

	listing := c.adapter.ParseListing(doc)
	for _, failure := range listing.Failures {
		logger.Warn("skipped listing card", "page", page, "card", failure.Index, "error", failure.Err)
	}
	summary.CardFailures += len(listing.Failures)
	return listing.Cards
}
