package api

import (
	"context"
	"errors"

	"github.com/maltedev/vape-product-scraper/internal/database"
	"github.com/maltedev/vape-product-scraper/internal/models"
	"github.com/maltedev/vape-product-scraper/internal/storage"
)

// ProductSource serves merged products for one site.
type ProductSource interface {
	ListProducts(ctx context.Context, site string, limit, offset int) ([]models.MergedProduct, error)
}

// DBSource reads products from Postgres.
type DBSource struct {
	repo *database.ProductRepository
}

func NewDBSource(repo *database.ProductRepository) *DBSource {
	return &DBSource{repo: repo}
}

func (s *DBSource) ListProducts(ctx context.Context, site string, limit, offset int) ([]models.MergedProduct, error) {
	stored, err := s.repo.List(ctx, site, limit, offset)
	if err != nil {
		return nil, err
	}
	products := make([]models.MergedProduct, len(stored))
	for i, p := range stored {
		products[i] = p.Data
	}
	return products, nil
}

// FileSource reads the merged JSON batches an extractor run left in a
// directory. A site without a batch has no products.
type FileSource struct {
	dir string
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

func (s *FileSource) ListProducts(ctx context.Context, site string, limit, offset int) ([]models.MergedProduct, error) {
	batch, err := storage.ReadMerged(storage.MergedPath(s.dir, site))
	if errors.Is(err, storage.ErrInputNotFound) {
		return []models.MergedProduct{}, nil
	}
	if err != nil {
		return nil, err
	}

	if offset >= len(batch) {
		return []models.MergedProduct{}, nil
	}
	batch = batch[offset:]
	if limit > 0 && limit < len(batch) {
		batch = batch[:limit]
	}
	return batch, nil
}
