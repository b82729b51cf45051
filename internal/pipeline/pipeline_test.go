package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/maltedev/vape-product-scraper/internal/config"
	"github.com/maltedev/vape-product-scraper/internal/parser"
	"github.com/maltedev/vape-product-scraper/internal/queue"
	"github.com/maltedev/vape-product-scraper/internal/ratelimit"
	"github.com/maltedev/vape-product-scraper/internal/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type pageFetcher map[string]string

func (p pageFetcher) Fetch(ctx context.Context, url string) (string, error) {
	raw, ok := p[url]
	if !ok {
		return "", errors.New("404 not found")
	}
	return raw, nil
}

type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func rangerSite(adapter parser.Adapter, slugs ...string) pageFetcher {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for _, slug := range slugs {
		fmt.Fprintf(&b, `<li data-product="1"><article class="productCard" data-product-brand="Geek Bar">
			<figure class="card-figure"><img src="/img/%[1]s.jpg"></figure>
			<p class="card-title">Product %[1]s</p>
			<span class="price--withoutTax">$10.00</span>
			<a class="card-link" href="/%[1]s/">View</a>
		</article></li>`, slug)
	}
	b.WriteString("</ul></body></html>")

	pages := pageFetcher{adapter.ListingURL(1): b.String()}
	for _, slug := range slugs {
		pages[adapter.BaseURL()+slug+"/"] = `<html><body>
			<div class="productView-top-description"><p>15000 puffs</p></div>
		</body></html>`
	}
	return pages
}

type testRunner struct {
	*Runner
	opened   []parser.Profile
	released int
	sleeper  *ratelimit.Recorder
}

func newTestRunner(cfg *config.Config, pages pageFetcher, completer *MockCompleter) *testRunner {
	tr := &testRunner{sleeper: &ratelimit.Recorder{}}
	tr.Runner = &Runner{
		cfg:       cfg,
		sleeper:   tr.sleeper,
		completer: completer,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	tr.newFetcher = func(profile parser.Profile) (scraper.Fetcher, func() error, error) {
		tr.opened = append(tr.opened, profile)
		return pages, func() error { tr.released++; return nil }, nil
	}
	return tr
}

func TestProfileOverrides(t *testing.T) {
	adapter := parser.NewVapeRanger()
	cfg := &config.Config{Scraper: config.ScraperConfig{MaxItems: 7, PageDelay: time.Second}}
	r := newTestRunner(cfg, nil, nil)

	profile := r.Profile(adapter, 0, 0)
	assert.Equal(t, 7, profile.MaxItems)
	assert.Equal(t, time.Second, profile.PageDelay)
	assert.Equal(t, adapter.Profile().DetailDelay, profile.DetailDelay)

	profile = r.Profile(adapter, 3, 2)
	assert.Equal(t, 3, profile.MaxItems)
	assert.Equal(t, 2, profile.MaxPages)
}

func TestCrawlReleasesFetcher(t *testing.T) {
	adapter := parser.NewVapeRanger()
	r := newTestRunner(&config.Config{}, rangerSite(adapter, "a", "b", "c"), nil)

	items, summary, err := r.Crawl(context.Background(), adapter, 2, 0)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, scraper.StopMaxItems, summary.StopReason)
	require.Len(t, r.opened, 1)
	assert.Equal(t, 2, r.opened[0].MaxItems)
	assert.Equal(t, 1, r.released)
	assert.NotEmpty(t, r.sleeper.Delays)
}

func TestCrawlTask(t *testing.T) {
	adapter := parser.NewVapeRanger()
	r := newTestRunner(&config.Config{}, rangerSite(adapter, "a"), nil)

	items, _, err := r.CrawlTask(context.Background(), &queue.Task{Site: "vaperanger", MaxItems: 5})
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, _, err = r.CrawlTask(context.Background(), &queue.Task{Site: "vapeshop"})
	assert.ErrorIs(t, err, parser.ErrUnknownSite)
}

func TestCrawlFetcherFailure(t *testing.T) {
	r := newTestRunner(&config.Config{}, nil, nil)
	r.newFetcher = func(parser.Profile) (scraper.Fetcher, func() error, error) {
		return nil, nil, errors.New("playwright driver missing")
	}

	_, _, err := r.Crawl(context.Background(), parser.NewVapeRanger(), 1, 0)
	assert.ErrorContains(t, err, "playwright driver missing")
}

func TestExtractMergesInOrder(t *testing.T) {
	adapter := parser.NewVapeRanger()
	completer := new(MockCompleter)
	completer.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "Product a")
	})).Return(`{"puff_count": 15000}`, nil)
	completer.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "Product b")
	})).Return("no idea", nil)

	r := newTestRunner(&config.Config{}, rangerSite(adapter, "a", "b"), completer)
	products, _, err := r.Crawl(context.Background(), adapter, 2, 0)
	require.NoError(t, err)

	merged, err := r.Extract(context.Background(), adapter, products)
	require.NoError(t, err)
	require.Len(t, merged, 2)

	raw, ok := merged[0].Get("puff_count")
	require.True(t, ok)
	assert.JSONEq(t, "15000", string(raw))
	_, ok = merged[1].Get("puff_count")
	assert.False(t, ok)
	title, _ := merged[1].GetString("title")
	assert.Equal(t, "Product b", title)
}

func TestNewRunnerDefaultsToHTTPFetcher(t *testing.T) {
	r := NewRunner(&config.Config{Scraper: config.ScraperConfig{FetchMode: config.FetchModeHTTP}}, slog.Default())
	require.NotNil(t, r.Completer())

	f, release, err := r.newFetcher(parser.NewVapeWholesale().Profile())
	require.NoError(t, err)
	assert.NotNil(t, f)
	assert.NoError(t, release())
}
