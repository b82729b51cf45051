package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/vape-product-scraper/internal/fetcher"
	"github.com/playwright-community/playwright-go"
)

var ErrChallengePage = errors.New("challenge page did not clear")

// challengeMarkers identify interstitial pages served before the real
// content.
var challengeMarkers = []string{
	"Just a moment...",
	"cf-browser-verification",
	"Checking your browser",
}

type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	opts    *Options
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
	MaxRetries     int
	ChallengeWait  time.Duration
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		TimezoneID:     "America/New_York",
		Locale:         "en-US",
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.5",
		},
		MaxRetries:    3,
		ChallengeWait: 5 * time.Second,
	}
}

func New(opts *Options, logger *slog.Logger) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--user-agent=" + opts.UserAgent,
		},
	}
	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: opts.ExtraHeaders,
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		context: bctx,
		opts:    opts,
		logger:  logger.With("component", "browser"),
	}, nil
}

// Fetch renders url in a fresh tab and returns the resulting document.
func (b *Browser) Fetch(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	page, err := b.context.NewPage()
	if err != nil {
		return "", fmt.Errorf("failed to create new page: %w", err)
	}
	defer page.Close()
	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	if err := b.navigateWithRetry(ctx, page, url); err != nil {
		return "", err
	}

	content, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}
	return content, nil
}

func (b *Browser) navigateWithRetry(ctx context.Context, page playwright.Page, url string) error {
	retries := b.opts.MaxRetries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for i := 0; i < retries; i++ {
		if i > 0 {
			b.logger.Info("retrying navigation", "attempt", i+1, "url", url)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i) * time.Second):
			}
		}

		resp, err := page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(b.opts.Timeout.Milliseconds())),
		})
		if err != nil {
			lastErr = err
			b.logger.Warn("navigation failed", "error", err, "attempt", i+1, "url", url)
			continue
		}
		// Interstitials are served with 403/503; the status only counts when
		// no challenge cleared into the real page.
		statusErr := checkStatus(resp, url)
		challenged, err := b.waitOutChallenge(page)
		if err != nil {
			lastErr = err
			continue
		}
		if statusErr != nil && !challenged {
			return statusErr
		}
		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", retries, lastErr)
}

// statusResponse is the part of playwright.Response checkStatus reads.
type statusResponse interface {
	Status() int
}

// checkStatus rejects a missing or non-2xx navigation response with
// fetcher.ErrBadStatus.
func checkStatus(resp statusResponse, url string) error {
	if resp == nil {
		return fmt.Errorf("%w: no response for %s", fetcher.ErrBadStatus, url)
	}
	if code := resp.Status(); code < 200 || code >= 300 {
		return fmt.Errorf("%w: %d for %s", fetcher.ErrBadStatus, code, url)
	}
	return nil
}

// waitOutChallenge gives an interstitial page one chance to redirect to the
// real document. It reports whether a challenge was seen and cleared.
func (b *Browser) waitOutChallenge(page playwright.Page) (bool, error) {
	content, err := page.Content()
	if err != nil {
		return false, fmt.Errorf("failed to get page content: %w", err)
	}
	if !IsChallenge(content) {
		return false, nil
	}

	b.logger.Info("challenge page detected, waiting", "wait", b.opts.ChallengeWait)
	page.WaitForTimeout(float64(b.opts.ChallengeWait.Milliseconds()))

	content, err = page.Content()
	if err != nil {
		return false, fmt.Errorf("failed to get page content: %w", err)
	}
	if IsChallenge(content) {
		return false, ErrChallengePage
	}
	return true, nil
}

// IsChallenge reports whether content looks like an anti-bot interstitial.
func IsChallenge(content string) bool {
	for _, marker := range challengeMarkers {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}
