package scraper

import (
	"context"
	"time"

	"github.com/maltedev/vape-product-scraper/internal/parser"
)

// Fetcher retrieves the raw markup of a page. Both the HTTP and the browser
// fetcher satisfy it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type StopReason string

const (
	StopMaxItems  StopReason = "max_items"
	StopMaxPages  StopReason = "max_pages"
	StopExhausted StopReason = "exhausted"
)

type Options struct {
	MaxItems    int
	MaxPages    int // 0 disables the page ceiling
	DetailDelay time.Duration
	PageDelay   time.Duration
}

// OptionsFromProfile takes the run constants of a site.
func OptionsFromProfile(p parser.Profile) Options {
	return Options{
		MaxItems:    p.MaxItems,
		MaxPages:    p.MaxPages,
		DetailDelay: p.DetailDelay,
		PageDelay:   p.PageDelay,
	}
}

// RunSummary describes how a crawl went.
type RunSummary struct {
	RunID        string        `json:"run_id"`
	Site         string        `json:"site"`
	Pages        int           `json:"pages"`
	Items        int           `json:"items"`
	Degraded     int           `json:"degraded"`
	CardFailures int           `json:"card_failures"`
	StopReason   StopReason    `json:"stop_reason"`
	Duration     time.Duration `json:"duration"`
}
