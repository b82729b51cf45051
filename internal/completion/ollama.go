package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var ErrServiceFailure = errors.New("completion service failure")

const generatePath = "/api/generate"

type Options struct {
	Temperature float64 `json:"temperature"`
}

type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options Options `json:"options"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

type Config struct {
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
	// RequestsPerSecond <= 0 disables throttling.
	RequestsPerSecond float64
	Burst             int
}

// Client talks to an Ollama server's non-streaming generate endpoint.
type Client struct {
	httpClient  *http.Client
	endpoint    string
	model       string
	options     Options
	rateLimiter *rate.Limiter
	logger      *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		endpoint:    strings.TrimRight(cfg.BaseURL, "/") + generatePath,
		model:       cfg.Model,
		options:     Options{Temperature: cfg.Temperature},
		rateLimiter: limiter,
		logger:      logger.With("component", "completion", "model", cfg.Model),
	}
}

// Complete sends one prompt and returns the completion text. Transport
// errors, non-200 answers and undecodable bodies wrap ErrServiceFailure.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	body, err := json.Marshal(generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: c.options,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrServiceFailure, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read body: %v", ErrServiceFailure, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrServiceFailure, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result generateResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %v", ErrServiceFailure, err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrServiceFailure, result.Error)
	}

	c.logger.Debug("completion received", "duration", time.Since(start), "chars", len(result.Response))
	return result.Response, nil
}
