package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	OutboxStatusPending    = "pending"
	OutboxStatusProcessed  = "processed"
	OutboxStatusFailed     = "failed"
	OutboxStatusDeadLetter = "dead_letter"

	// MaxRetryCount is the number of failed publishes before an event is
	// moved to dead letter.
	MaxRetryCount = 5

	DefaultStream = "stream:vape_products"

	// ProductAggregate is the aggregate type of every product event; the
	// aggregate id is the product link.
	ProductAggregate = "vape_product"
)

var ErrMissingSite = errors.New("outbox event has no site")

// OutboxEvent is one queued product event. It is written in the same
// transaction as the product row and later relayed to a Redis stream.
type OutboxEvent struct {
	ID            uuid.UUID       `db:"id"`
	Site          string          `db:"site"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
	TargetStream  string          `db:"target_stream"`
	Status        string          `db:"status"`
	RetryCount    int             `db:"retry_count"`
	ErrorMessage  *string         `db:"error_message"`
	CreatedAt     time.Time       `db:"created_at"`
	ProcessedAt   *time.Time      `db:"processed_at"`
	NextRetryAt   *time.Time      `db:"next_retry_at"`
}

// NewProductEvent queues eventType for the product at link on site. An empty
// stream selects DefaultStream.
func NewProductEvent(site, link, eventType, stream string, payload json.RawMessage) *OutboxEvent {
	if stream == "" {
		stream = DefaultStream
	}
	return &OutboxEvent{
		Site:          site,
		AggregateType: ProductAggregate,
		AggregateID:   link,
		EventType:     eventType,
		Payload:       payload,
		TargetStream:  stream,
	}
}

type OutboxRepository struct {
	db *DB
}

func NewOutboxRepository(db *DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

const outboxColumns = `
	id, site, aggregate_type, aggregate_id, event_type,
	payload, target_stream, status, retry_count,
	error_message, created_at, processed_at, next_retry_at`

// prepare fills the defaults of a new event and rejects one that cannot be
// traced back to a stored product.
func (e *OutboxEvent) prepare(now time.Time) error {
	if e.Site == "" {
		return ErrMissingSite
	}
	if e.AggregateID == "" {
		return ErrMissingLink
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.AggregateType == "" {
		e.AggregateType = ProductAggregate
	}
	if e.Status == "" {
		e.Status = OutboxStatusPending
	}
	if e.TargetStream == "" {
		e.TargetStream = DefaultStream
	}
	e.CreatedAt = now
	if e.NextRetryAt == nil {
		e.NextRetryAt = &now
	}
	return nil
}

// InsertWithTx queues event inside the transaction that stores its product.
func (r *OutboxRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, event *OutboxEvent) error {
	if err := event.prepare(time.Now()); err != nil {
		return err
	}

	query := `
		INSERT INTO vape_product_outbox (
			id, site, aggregate_type, aggregate_id, event_type,
			payload, target_stream, status, retry_count,
			created_at, next_retry_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)`

	_, err := tx.Exec(ctx, query,
		event.ID, event.Site, event.AggregateType, event.AggregateID, event.EventType,
		[]byte(event.Payload), event.TargetStream, event.Status, event.RetryCount,
		event.CreatedAt, event.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to queue %s event for %s: %w", event.EventType, event.AggregateID, err)
	}
	return nil
}

// GetPending returns pending and failed events whose retry time has come,
// oldest first.
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT` + outboxColumns + `
		FROM vape_product_outbox
		WHERE status IN ($1, $2)
			AND next_retry_at <= $3
		ORDER BY created_at ASC, id ASC
		LIMIT $4`

	rows, err := r.db.pool.Query(ctx, query,
		OutboxStatusPending, OutboxStatusFailed, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		event := &OutboxEvent{}
		err := rows.Scan(
			&event.ID, &event.Site, &event.AggregateType, &event.AggregateID, &event.EventType,
			&event.Payload, &event.TargetStream, &event.Status, &event.RetryCount,
			&event.ErrorMessage, &event.CreatedAt, &event.ProcessedAt, &event.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return events, nil
}

func (r *OutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.pool.Exec(ctx,
		"UPDATE vape_product_outbox SET status = $1, processed_at = $2 WHERE id = $3",
		OutboxStatusProcessed, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark event %s as processed: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("event not found: %s", id)
	}
	return nil
}

// MarkFailed records a failed publish and schedules the next attempt. The row
// is locked so two relays cannot lose a retry between them.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, processErr error) error {
	return r.db.Transaction(ctx, func(tx pgx.Tx) error {
		var retryCount int
		err := tx.QueryRow(ctx,
			"SELECT retry_count FROM vape_product_outbox WHERE id = $1 FOR UPDATE", id).Scan(&retryCount)
		if err != nil {
			return fmt.Errorf("failed to get retry count of event %s: %w", id, err)
		}

		retryCount++
		_, err = tx.Exec(ctx, `
			UPDATE vape_product_outbox
			SET status = $1, retry_count = $2, error_message = $3, next_retry_at = $4
			WHERE id = $5`,
			NextStatus(retryCount), retryCount, processErr.Error(), NextRetryTime(time.Now(), retryCount), id)
		if err != nil {
			return fmt.Errorf("failed to mark event %s as failed: %w", id, err)
		}
		return nil
	})
}

// RequeueDeadLetters gives a site's dead-lettered events a fresh set of
// retries and returns how many were requeued.
func (r *OutboxRepository) RequeueDeadLetters(ctx context.Context, site string) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE vape_product_outbox
		SET status = $1, retry_count = 0, next_retry_at = $2
		WHERE status = $3 AND site = $4`,
		OutboxStatusPending, time.Now(), OutboxStatusDeadLetter, site)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue dead letters of %s: %w", site, err)
	}
	return result.RowsAffected(), nil
}

func (r *OutboxRepository) CountByStatus(ctx context.Context, statuses ...string) (int64, error) {
	var count int64
	err := r.db.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM vape_product_outbox WHERE status = ANY($1)", statuses).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count outbox events: %w", err)
	}
	return count, nil
}

func NextStatus(retryCount int) string {
	if retryCount >= MaxRetryCount {
		return OutboxStatusDeadLetter
	}
	return OutboxStatusFailed
}

// NextRetryTime backs off exponentially (2s, 4s, 8s, ...) capped at five
// minutes.
func NextRetryTime(now time.Time, retryCount int) time.Time {
	backoffSeconds := 1 << retryCount
	if backoffSeconds > 300 || retryCount > 30 {
		backoffSeconds = 300
	}
	return now.Add(time.Duration(backoffSeconds) * time.Second)
}
