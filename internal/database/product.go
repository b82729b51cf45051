package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/maltedev/vape-product-scraper/internal/models"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrMissingLink     = errors.New("merged product has no link")
)

// StoredProduct is one row of vape_products.
type StoredProduct struct {
	Site      string
	Link      string
	Title     string
	Data      models.MergedProduct
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProductRepository persists merged products keyed by site and link.
type ProductRepository struct {
	db *DB
}

func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// UpsertWithTx stores merged under (site, link), replacing an earlier run's
// record for the same product.
func (r *ProductRepository) UpsertWithTx(ctx context.Context, tx pgx.Tx, site string, merged models.MergedProduct) error {
	link, ok := merged.GetString(models.FieldLink)
	if !ok || link == "" {
		return ErrMissingLink
	}
	title, _ := merged.GetString(models.FieldTitle)

	data, err := merged.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal product: %w", err)
	}

	query := `
		INSERT INTO vape_products (site, link, title, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (site, link) DO UPDATE SET
			title = EXCLUDED.title,
			data = EXCLUDED.data,
			updated_at = now()`

	if _, err := tx.Exec(ctx, query, site, link, title, data); err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

// List returns a site's products, oldest first. JSONB does not preserve key
// order; records read back carry the database's key order.
func (r *ProductRepository) List(ctx context.Context, site string, limit, offset int) ([]StoredProduct, error) {
	query := `
		SELECT site, link, title, data::text, created_at, updated_at
		FROM vape_products
		WHERE site = $1
		ORDER BY created_at ASC, link ASC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.pool.Query(ctx, query, site, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := make([]StoredProduct, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return products, nil
}

func (r *ProductRepository) Get(ctx context.Context, site, link string) (*StoredProduct, error) {
	query := `
		SELECT site, link, title, data::text, created_at, updated_at
		FROM vape_products
		WHERE site = $1 AND link = $2`

	p, err := scanProduct(r.db.pool.QueryRow(ctx, query, site, link))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProductRepository) Count(ctx context.Context, site string) (int64, error) {
	var count int64
	err := r.db.pool.QueryRow(ctx, "SELECT COUNT(*) FROM vape_products WHERE site = $1", site).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}

func scanProduct(row pgx.Row) (StoredProduct, error) {
	var (
		p    StoredProduct
		data string
	)
	if err := row.Scan(&p.Site, &p.Link, &p.Title, &data, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("failed to scan product: %w", err)
	}
	if err := p.Data.UnmarshalJSON([]byte(data)); err != nil {
		return p, fmt.Errorf("failed to decode product data: %w", err)
	}
	return p, nil
}
