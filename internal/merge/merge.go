package merge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/maltedev/vape-product-scraper/internal/models"
)

var ErrLengthMismatch = errors.New("products and structured fields differ in length")

// MergeOne starts from the scraped row without its variants_json column and
// overlays every structured key. Structured values win on collision, so an
// explicit null from the service replaces a scraped value.
func MergeOne(p models.ScrapedProduct, structured models.StructuredFields) models.MergedProduct {
	merged := p.Fields()
	merged.Delete(models.FieldVariantsJSON)
	merged.Overlay(structured)
	return merged
}

// Merge pairs products with their structured fields by position.
func Merge(products []models.ScrapedProduct, structured []models.StructuredFields) ([]models.MergedProduct, error) {
	if len(products) != len(structured) {
		return nil, fmt.Errorf("%w: %d products, %d structured", ErrLengthMismatch, len(products), len(structured))
	}

	out := make([]models.MergedProduct, len(products))
	for i := range products {
		out[i] = MergeOne(products[i], structured[i])
	}
	return out, nil
}

// Encode writes the batch as an indented JSON array without HTML escaping.
func Encode(w io.Writer, batch []models.MergedProduct) error {
	if batch == nil {
		batch = make([]models.MergedProduct, 0)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(batch); err != nil {
		return fmt.Errorf("failed to encode merged products: %w", err)
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write merged products: %w", err)
	}
	return nil
}
