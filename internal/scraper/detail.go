package scraper

import (
	"context"
	"log/slog"

	"github.com/maltedev/vape-product-scraper/internal/models"
	"github.com/maltedev/vape-product-scraper/internal/parser"
)

// DetailExtractor fetches and parses product detail pages. It never fails:
// anything that goes wrong degrades to an empty record.
type DetailExtractor struct {
	adapter parser.Adapter
	fetcher Fetcher
	logger  *slog.Logger
}

func NewDetailExtractor(adapter parser.Adapter, fetcher Fetcher, logger *slog.Logger) *DetailExtractor {
	return &DetailExtractor{
		adapter: adapter,
		fetcher: fetcher,
		logger:  logger.With("component", "detail_extractor", "site", adapter.Name()),
	}
}

// Extract returns the detail record for url and whether it had to degrade.
func (d *DetailExtractor) Extract(ctx context.Context, url string) (models.DetailRecord, bool) {
	raw, err := d.fetcher.Fetch(ctx, url)
	if err != nil {
		d.logger.Warn("failed to fetch detail page", "url", url, "error", err)
		return models.EmptyDetail(), true
	}

	page, err := parser.NewPage(raw, url)
	if err != nil {
		d.logger.Warn("failed to parse detail page", "url", url, "error", err)
		return models.EmptyDetail(), true
	}

	detail := d.adapter.ParseDetail(page)

	if detail.MissingDescription() {
		d.logger.Warn("description not found",
			"url", url,
			"stock_status", models.Value(detail.Record.StockStatus),
			"variants", len(detail.Record.Variants),
		)
	}
	if detail.EmptyTable() {
		d.logger.Warn("variant table has no rows",
			"url", url,
			"description_source", detail.DescriptionSource,
			"stock_status", models.Value(detail.Record.StockStatus),
		)
	}

	d.logger.Debug("detail parsed",
		"url", url,
		"description_source", detail.DescriptionSource,
		"stock_source", detail.StockSource,
		"variants", len(detail.Record.Variants),
	)

	return detail.Record, false
}
