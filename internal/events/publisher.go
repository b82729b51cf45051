package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/vape-product-scraper/internal/database"
	"github.com/maltedev/vape-product-scraper/internal/models"
)

type EventType string

const (
	// EventTypeProductExtracted is published once per merged product.
	EventTypeProductExtracted EventType = "PRODUCT_EXTRACTED"

	AggregateType = database.ProductAggregate
	Source        = "vape-product-scraper"
)

// ProductExtractedPayload is the body of a PRODUCT_EXTRACTED event.
type ProductExtractedPayload struct {
	EventID   string               `json:"event_id"`
	EventType string               `json:"event_type"`
	Timestamp time.Time            `json:"timestamp"`
	Site      string               `json:"site"`
	Link      string               `json:"link"`
	Title     string               `json:"title"`
	Product   models.MergedProduct `json:"product"`
	Source    string               `json:"source"`
}

type Transactor interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

type ProductStore interface {
	UpsertWithTx(ctx context.Context, tx pgx.Tx, site string, merged models.MergedProduct) error
}

type OutboxStore interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// Publisher stores merged products and queues their events in one
// transaction, so a product is never saved without its event.
type Publisher struct {
	db       Transactor
	products ProductStore
	outbox   OutboxStore
	stream   string
	logger   *slog.Logger
}

func NewPublisher(db *database.DB, stream string, logger *slog.Logger) *Publisher {
	return newPublisher(db, database.NewProductRepository(db), database.NewOutboxRepository(db), stream, logger)
}

func newPublisher(db Transactor, products ProductStore, outbox OutboxStore, stream string, logger *slog.Logger) *Publisher {
	if stream == "" {
		stream = database.DefaultStream
	}
	return &Publisher{
		db:       db,
		products: products,
		outbox:   outbox,
		stream:   stream,
		logger:   logger.With("component", "event_publisher"),
	}
}

// NewPayload fills the event envelope around merged.
func NewPayload(site string, merged models.MergedProduct) (*ProductExtractedPayload, error) {
	link, ok := merged.GetString(models.FieldLink)
	if !ok || link == "" {
		return nil, database.ErrMissingLink
	}
	title, _ := merged.GetString(models.FieldTitle)

	return &ProductExtractedPayload{
		EventID:   uuid.New().String(),
		EventType: string(EventTypeProductExtracted),
		Timestamp: time.Now().UTC(),
		Site:      site,
		Link:      link,
		Title:     title,
		Product:   merged,
		Source:    Source,
	}, nil
}

// PublishProduct upserts merged and writes its outbox event.
func (p *Publisher) PublishProduct(ctx context.Context, site string, merged models.MergedProduct) error {
	payload, err := NewPayload(site, merged)
	if err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	outboxEvent := database.NewProductEvent(site, payload.Link, payload.EventType, p.stream, data)

	err = p.db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := p.products.UpsertWithTx(ctx, tx, site, merged); err != nil {
			return err
		}
		return p.outbox.InsertWithTx(ctx, tx, outboxEvent)
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("event published to outbox",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"link", payload.Link,
		"outbox_id", outboxEvent.ID)

	return nil
}

// PublishBatch publishes every product of a batch and returns how many were
// stored. A product without a link is skipped with a warning.
func (p *Publisher) PublishBatch(ctx context.Context, site string, batch []models.MergedProduct) (int, error) {
	stored := 0
	for i, merged := range batch {
		if err := ctx.Err(); err != nil {
			return stored, err
		}
		err := p.PublishProduct(ctx, site, merged)
		if errors.Is(err, database.ErrMissingLink) {
			p.logger.Warn("skipping product without link", "index", i)
			continue
		}
		if err != nil {
			return stored, err
		}
		stored++
	}

	p.logger.Info("batch published", "site", site, "stored", stored, "total", len(batch))
	return stored, nil
}
