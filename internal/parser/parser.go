package parser

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/vape-product-scraper/internal/extractor"
)

var (
	ErrUnknownSite    = errors.New("unknown site")
	ErrMissingElement = errors.New("required element missing")
	ErrInvalidLink    = errors.New("invalid link")
)

// Adapter is everything the pipeline needs to know about one shop.
type Adapter interface {
	Name() string
	BaseURL() string
	ListingURL(page int) string
	ParseListing(page *Page) ListingPage
	ParseDetail(page *Page) DetailPage
	Schema() extractor.Schema
	Profile() Profile
}

// Profile carries the per-site run constants.
type Profile struct {
	MaxItems    int
	MaxPages    int // 0 means no page ceiling
	DetailDelay time.Duration
	PageDelay   time.Duration
	Timeout     time.Duration
	Headers     map[string]string
}

// Page is a fetched document together with its raw markup and source URL.
type Page struct {
	Doc *goquery.Document
	Raw string
	URL string
}

func NewPage(raw, pageURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &Page{Doc: doc, Raw: raw, URL: pageURL}, nil
}

var registry = map[string]func() Adapter{
	VapeRangerName:    func() Adapter { return NewVapeRanger() },
	VapeWholesaleName: func() Adapter { return NewVapeWholesale() },
}

func Lookup(name string) (Adapter, error) {
	newAdapter, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownSite, name, strings.Join(Sites(), ", "))
	}
	return newAdapter(), nil
}

func Sites() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func cleanText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
