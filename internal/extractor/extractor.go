package extractor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maltedev/vape-product-scraper/internal/models"
)

// Completer sends a prompt to a text-completion service and returns the raw
// completion text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Extractor turns scraped rows into structured fields for one site.
type Extractor struct {
	schema    Schema
	completer Completer
	logger    *slog.Logger
}

func New(schema Schema, completer Completer, logger *slog.Logger) *Extractor {
	return &Extractor{
		schema:    schema,
		completer: completer,
		logger:    logger.With("component", "extractor", "site", schema.Site),
	}
}

func (e *Extractor) Schema() Schema {
	return e.schema
}

// Extract never fails. Any problem with the prompt, the service or the
// answer yields empty fields and a warning naming the product.
func (e *Extractor) Extract(ctx context.Context, p models.ScrapedProduct) models.StructuredFields {
	prompt, err := e.schema.Render(p)
	if err != nil {
		e.logger.Warn("failed to build prompt", "title", p.Title, "error", err)
		return models.Fields{}
	}

	raw, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		e.logger.Warn("completion failed", "title", p.Title, "error", err)
		return models.Fields{}
	}

	fields, err := ParseStructuredResponse(raw)
	if err != nil {
		e.logger.Warn("failed to parse completion", "title", p.Title, "error", err)
		return models.Fields{}
	}

	if missing := e.schema.Missing(fields); len(missing) > 0 {
		e.logger.Debug("completion omitted fields", "title", p.Title, "missing", missing)
	}
	if unknown := e.schema.Unknown(fields); len(unknown) > 0 {
		e.logger.Debug("completion returned undeclared fields", "title", p.Title, "unknown", unknown)
	}

	return fields
}

// ExtractAll processes the batch serially and in order. It only returns an
// error when ctx is cancelled.
func (e *Extractor) ExtractAll(ctx context.Context, products []models.ScrapedProduct) ([]models.StructuredFields, error) {
	out := make([]models.StructuredFields, 0, len(products))
	for i, p := range products {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("extraction stopped at item %d: %w", i, err)
		}
		out = append(out, e.Extract(ctx, p))

		e.logger.Info("product processed", "index", i+1, "total", len(products), "title", p.Title)
	}
	return out, nil
}
