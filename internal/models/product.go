package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Field names of a scraped row, in the order they are written out.
const (
	FieldBrand        = "brand"
	FieldTitle        = "title"
	FieldPrice        = "price"
	FieldLink         = "link"
	FieldImageURL     = "image_url"
	FieldDescription  = "description"
	FieldStockStatus  = "stock_status"
	FieldVariantsJSON = "variants_json"
)

// ScrapedColumns is the column order of the intermediate scrape table.
var ScrapedColumns = []string{
	FieldBrand,
	FieldTitle,
	FieldPrice,
	FieldLink,
	FieldImageURL,
	FieldDescription,
	FieldStockStatus,
	FieldVariantsJSON,
}

// ListingCard is one product card from a listing page. Link joins it to its
// detail page.
type ListingCard struct {
	Brand    *string `json:"brand"`
	Title    string  `json:"title"`
	Price    *string `json:"price"`
	Link     string  `json:"link"`
	ImageURL *string `json:"image_url"`
}

// DetailRecord is what one detail page yields. An empty Variants slice is a
// valid result.
type DetailRecord struct {
	Description *string   `json:"description"`
	StockStatus *string   `json:"stock_status"`
	Variants    []Variant `json:"-"`
}

// EmptyDetail is the degraded record used when a detail page could not be
// fetched or parsed.
func EmptyDetail() DetailRecord {
	return DetailRecord{Variants: make([]Variant, 0)}
}

// ScrapedProduct is a listing card enriched with its detail record.
type ScrapedProduct struct {
	ListingCard
	DetailRecord
	VariantsJSON string `json:"variants_json"`
}

// StructuredFields holds the attributes the completion service derived for
// one product. An empty value means extraction failed or yielded nothing.
type StructuredFields = Fields

// MergedProduct is a scraped row overlaid by its structured fields.
type MergedProduct = Fields

func NewScrapedProduct(card ListingCard, detail DetailRecord) (ScrapedProduct, error) {
	if detail.Variants == nil {
		detail.Variants = make([]Variant, 0)
	}
	variantsJSON, err := EncodeVariants(detail.Variants)
	if err != nil {
		return ScrapedProduct{}, err
	}
	return ScrapedProduct{
		ListingCard:  card,
		DetailRecord: detail,
		VariantsJSON: variantsJSON,
	}, nil
}

// Fields renders the product as an ordered record in ScrapedColumns order.
func (p ScrapedProduct) Fields() Fields {
	f := Fields{}
	f.SetValue(FieldBrand, p.Brand)
	f.SetValue(FieldTitle, p.Title)
	f.SetValue(FieldPrice, p.Price)
	f.SetValue(FieldLink, p.Link)
	f.SetValue(FieldImageURL, p.ImageURL)
	f.SetValue(FieldDescription, p.Description)
	f.SetValue(FieldStockStatus, p.StockStatus)
	f.SetValue(FieldVariantsJSON, p.VariantsJSON)
	return f
}

// DecodedVariants parses VariantsJSON, preferring already decoded variants.
func (p ScrapedProduct) DecodedVariants() ([]Variant, error) {
	if len(p.Variants) > 0 {
		return p.Variants, nil
	}
	return DecodeVariants(p.VariantsJSON)
}

func EncodeVariants(variants []Variant) (string, error) {
	if variants == nil {
		variants = make([]Variant, 0)
	}
	raw, err := marshalValue(variants)
	if err != nil {
		return "", fmt.Errorf("failed to encode variants: %w", err)
	}
	return string(raw), nil
}

func DecodeVariants(s string) ([]Variant, error) {
	variants := make([]Variant, 0)
	if strings.TrimSpace(s) == "" {
		return variants, nil
	}
	if err := json.Unmarshal([]byte(s), &variants); err != nil {
		return nil, fmt.Errorf("failed to decode variants: %w", err)
	}
	return variants, nil
}

// String returns a pointer to s.
func String(s string) *string {
	return &s
}

// OptionalString returns nil for an empty string.
func OptionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Value dereferences s, returning "" for nil.
func Value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
