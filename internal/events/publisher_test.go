package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/maltedev/vape-product-scraper/internal/database"
	"github.com/maltedev/vape-product-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeDB runs fn without a real transaction and reports whether it committed.
type fakeDB struct {
	commits   int
	rollbacks int
}

func (f *fakeDB) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	if err := fn(nil); err != nil {
		f.rollbacks++
		return err
	}
	f.commits++
	return nil
}

type MockProductStore struct {
	mock.Mock
}

func (m *MockProductStore) UpsertWithTx(ctx context.Context, tx pgx.Tx, site string, merged models.MergedProduct) error {
	args := m.Called(ctx, tx, site, merged)
	return args.Error(0)
}

type MockOutboxStore struct {
	mock.Mock
}

func (m *MockOutboxStore) InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error {
	args := m.Called(ctx, tx, event)
	return args.Error(0)
}

func mergedProduct(t *testing.T, raw string) models.MergedProduct {
	t.Helper()
	var m models.MergedProduct
	require.NoError(t, m.UnmarshalJSON([]byte(raw)))
	return m
}

func TestNewPayload(t *testing.T) {
	m := mergedProduct(t, `{"title":"Geek Bar Pulse","link":"https://vaperanger.com/geek-bar-pulse/","puff_count":"15000"}`)

	payload, err := NewPayload("vaperanger", m)
	require.NoError(t, err)

	assert.NotEmpty(t, payload.EventID)
	assert.Equal(t, "PRODUCT_EXTRACTED", payload.EventType)
	assert.Equal(t, "https://vaperanger.com/geek-bar-pulse/", payload.Link)
	assert.Equal(t, "Geek Bar Pulse", payload.Title)
	assert.Equal(t, Source, payload.Source)
	assert.False(t, payload.Timestamp.IsZero())

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"product":{"title":"Geek Bar Pulse","link":"https://vaperanger.com/geek-bar-pulse/","puff_count":"15000"}`)

	_, err = NewPayload("vaperanger", mergedProduct(t, `{"title":"orphan"}`))
	assert.ErrorIs(t, err, database.ErrMissingLink)
}

func TestPublisher_PublishProduct(t *testing.T) {
	ctx := context.Background()
	m := mergedProduct(t, `{"title":"Lost Mary MO5000","link":"https://vapewholesaleusa.com/lost-mary-mo5000/"}`)

	t.Run("product and event share the transaction", func(t *testing.T) {
		db := &fakeDB{}
		products := new(MockProductStore)
		outbox := new(MockOutboxStore)
		p := newPublisher(db, products, outbox, "", slog.Default())

		products.On("UpsertWithTx", ctx, mock.Anything, "vapewholesale", m).Return(nil)
		outbox.On("InsertWithTx", ctx, mock.Anything, mock.MatchedBy(func(e *database.OutboxEvent) bool {
			var payload ProductExtractedPayload
			if err := json.Unmarshal(e.Payload, &payload); err != nil {
				return false
			}
			return e.AggregateType == "vape_product" &&
				e.Site == "vapewholesale" &&
				e.AggregateID == "https://vapewholesaleusa.com/lost-mary-mo5000/" &&
				e.EventType == "PRODUCT_EXTRACTED" &&
				e.TargetStream == database.DefaultStream &&
				payload.Site == "vapewholesale"
		})).Return(nil)

		require.NoError(t, p.PublishProduct(ctx, "vapewholesale", m))
		assert.Equal(t, 1, db.commits)
		products.AssertExpectations(t)
		outbox.AssertExpectations(t)
	})

	t.Run("outbox failure rolls back the upsert", func(t *testing.T) {
		db := &fakeDB{}
		products := new(MockProductStore)
		outbox := new(MockOutboxStore)
		p := newPublisher(db, products, outbox, "stream:custom", slog.Default())

		products.On("UpsertWithTx", ctx, mock.Anything, "vapewholesale", m).Return(nil)
		outbox.On("InsertWithTx", ctx, mock.Anything, mock.Anything).Return(errors.New("disk full"))

		err := p.PublishProduct(ctx, "vapewholesale", m)
		assert.ErrorContains(t, err, "disk full")
		assert.Equal(t, 1, db.rollbacks)
		assert.Zero(t, db.commits)
	})
}

func TestPublisher_PublishBatch(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	db := &fakeDB{}
	products := new(MockProductStore)
	outbox := new(MockOutboxStore)
	p := newPublisher(db, products, outbox, "", logger)

	products.On("UpsertWithTx", ctx, mock.Anything, "vaperanger", mock.Anything).Return(nil)
	outbox.On("InsertWithTx", ctx, mock.Anything, mock.Anything).Return(nil)

	batch := []models.MergedProduct{
		mergedProduct(t, `{"title":"A","link":"https://vaperanger.com/a/"}`),
		mergedProduct(t, `{"title":"no link"}`),
		mergedProduct(t, `{"title":"B","link":"https://vaperanger.com/b/"}`),
	}

	stored, err := p.PublishBatch(ctx, "vaperanger", batch)
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
	assert.Equal(t, 2, db.commits)
	assert.Contains(t, logs.String(), "skipping product without link")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	stored, err = p.PublishBatch(cancelled, "vaperanger", batch)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stored)
}
