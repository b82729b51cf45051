package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"
)

var (
	ErrBadStatus    = errors.New("unexpected HTTP status")
	ErrBodyTooLarge = errors.New("response body too large")
)

const maxBodyBytes = 10 * 1024 * 1024

// DefaultUserAgents is the pool a random User-Agent is drawn from per request.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
}

type Options struct {
	Timeout    time.Duration
	UserAgents []string
	Headers    map[string]string
	// MaxBodyBytes caps a page body; larger pages are an error. Zero means
	// 10 MiB.
	MaxBodyBytes int64
}

// HTTPFetcher retrieves pages with a plain GET.
type HTTPFetcher struct {
	client     *http.Client
	userAgents []string
	headers    map[string]string
	maxBody    int64
	logger     *slog.Logger
}

func New(opts Options, logger *slog.Logger) *HTTPFetcher {
	agents := opts.UserAgents
	if len(agents) == 0 {
		agents = DefaultUserAgents
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = maxBodyBytes
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
		},
		userAgents: agents,
		headers:    opts.Headers,
		maxBody:    opts.MaxBodyBytes,
		logger:     logger.With("component", "fetcher"),
	}
}

// Fetch returns the body of url. Any non-2xx answer is an error.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("User-Agent", f.userAgents[rand.IntN(len(f.userAgents))])

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: %d for %s", ErrBadStatus, resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return "", fmt.Errorf("failed to read body of %s: %w", url, err)
	}
	if int64(len(body)) > f.maxBody {
		return "", fmt.Errorf("%w: over %d bytes for %s", ErrBodyTooLarge, f.maxBody, url)
	}

	f.logger.Debug("page fetched", "url", url, "status", resp.StatusCode, "bytes", len(body), "duration", time.Since(start))
	return string(body), nil
}
