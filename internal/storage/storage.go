package storage

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/maltedev/vape-product-scraper/internal/merge"
	"github.com/maltedev/vape-product-scraper/internal/models"
)

var (
	ErrInputNotFound = errors.New("input file not found")
	ErrBadHeader     = errors.New("unexpected CSV header")
)

// RawPath is where a site's scraped table lives inside dir.
func RawPath(dir, site string) string {
	return filepath.Join(dir, site+"_products.csv")
}

// MergedPath is where a site's merged batch lives inside dir.
func MergedPath(dir, site string) string {
	return filepath.Join(dir, site+"_structured.json")
}

// WriteProducts stores the scraped table as CSV with one column per
// ScrapedColumns entry. Absent values become empty cells.
func WriteProducts(path string, products []models.ScrapedProduct) error {
	return writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(models.ScrapedColumns); err != nil {
			return err
		}
		for _, p := range products {
			if err := cw.Write(productRow(p)); err != nil {
				return fmt.Errorf("failed to write row for %s: %w", p.Link, err)
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

func productRow(p models.ScrapedProduct) []string {
	return []string{
		models.Value(p.Brand),
		p.Title,
		models.Value(p.Price),
		p.Link,
		models.Value(p.ImageURL),
		models.Value(p.Description),
		models.Value(p.StockStatus),
		p.VariantsJSON,
	}
}

// ReadProducts loads a table written by WriteProducts. Empty cells read back
// as absent values. A missing file yields ErrInputNotFound.
func ReadProducts(path string) ([]models.ScrapedProduct, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s is empty", ErrBadHeader, path)
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	for _, col := range models.ScrapedColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrBadHeader, col)
		}
	}

	products := make([]models.ScrapedProduct, 0)
	for line := 2; ; line++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read line %d: %w", line, err)
		}

		cell := func(col string) string { return record[index[col]] }
		p := models.ScrapedProduct{
			ListingCard: models.ListingCard{
				Brand:    models.OptionalString(cell(models.FieldBrand)),
				Title:    cell(models.FieldTitle),
				Price:    models.OptionalString(cell(models.FieldPrice)),
				Link:     cell(models.FieldLink),
				ImageURL: models.OptionalString(cell(models.FieldImageURL)),
			},
			DetailRecord: models.DetailRecord{
				Description: models.OptionalString(cell(models.FieldDescription)),
				StockStatus: models.OptionalString(cell(models.FieldStockStatus)),
			},
			VariantsJSON: cell(models.FieldVariantsJSON),
		}
		if variants, err := models.DecodeVariants(p.VariantsJSON); err == nil {
			p.Variants = variants
		} else {
			p.Variants = make([]models.Variant, 0)
		}
		if p.VariantsJSON == "" {
			p.VariantsJSON = "[]"
		}
		products = append(products, p)
	}

	return products, nil
}

// WriteMerged stores the merged batch as an indented JSON array.
func WriteMerged(path string, batch []models.MergedProduct) error {
	return writeAtomic(path, func(w io.Writer) error {
		return merge.Encode(w, batch)
	})
}

// ReadMerged loads a JSON array of merged records, keeping key order.
func ReadMerged(path string) ([]models.MergedProduct, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var batch []models.MergedProduct
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if batch == nil {
		batch = make([]models.MergedProduct, 0)
	}
	return batch, nil
}

// writeAtomic writes to a temp file first and renames it over path.
func writeAtomic(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmpFile, err)
	}
	if err := os.Rename(tmpFile, path); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename %s: %w", tmpFile, err)
	}
	return nil
}
