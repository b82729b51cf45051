package fetcher

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetchSendsHeaders(t *testing.T) {
	agents := []string{"agent-a", "agent-b"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, agents, r.Header.Get("User-Agent"))
		assert.Equal(t, "en-US,en;q=0.5", r.Header.Get("Accept-Language"))
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	f := New(Options{
		Timeout:    time.Second,
		UserAgents: agents,
		Headers:    map[string]string{"Accept-Language": "en-US,en;q=0.5"},
	}, testLogger())

	body, err := f.Fetch(context.Background(), srv.URL)

	require.NoError(t, err)
	assert.Equal(t, "<html><body>ok</body></html>", body)
}

func TestFetchNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := New(Options{Timeout: time.Second}, testLogger()).Fetch(context.Background(), srv.URL)

	assert.ErrorIs(t, err, ErrBadStatus)
	assert.Contains(t, err.Error(), "403")
}

func TestFetchBodyLimit(t *testing.T) {
	page := "<html><body><div>" + strings.Repeat("x", 64) + "</div><p>Sold Out</p></body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer srv.Close()

	t.Run("oversized page is an error", func(t *testing.T) {
		f := New(Options{Timeout: time.Second, MaxBodyBytes: int64(len(page) - 1)}, testLogger())

		body, err := f.Fetch(context.Background(), srv.URL)

		assert.ErrorIs(t, err, ErrBodyTooLarge)
		assert.Empty(t, body)
	})

	t.Run("page at the limit is complete", func(t *testing.T) {
		f := New(Options{Timeout: time.Second, MaxBodyBytes: int64(len(page))}, testLogger())

		body, err := f.Fetch(context.Background(), srv.URL)

		require.NoError(t, err)
		assert.Equal(t, page, body)
		assert.Contains(t, body, "Sold Out")
	})
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := New(Options{Timeout: 20 * time.Millisecond}, testLogger()).Fetch(context.Background(), srv.URL)

	assert.Error(t, err)
}

func TestFetchDefaultUserAgents(t *testing.T) {
	f := New(Options{}, testLogger())

	assert.Equal(t, DefaultUserAgents, f.userAgents)
	assert.Equal(t, 30*time.Second, f.client.Timeout)
}
