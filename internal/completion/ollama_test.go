package completion

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCompleteSendsGenerateRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req["model"])
		assert.Equal(t, "Extract this", req["prompt"])
		assert.Equal(t, false, req["stream"])
		assert.Equal(t, map[string]any{"temperature": float64(0)}, req["options"])

		json.NewEncoder(w).Encode(map[string]any{
			"model":    "llama3",
			"response": `{"brand":"Acme"}`,
			"done":     true,
		})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL + "/", Model: "llama3", Timeout: 5 * time.Second}, testLogger())

	out, err := client.Complete(context.Background(), "Extract this")

	require.NoError(t, err)
	assert.Equal(t, `{"brand":"Acme"}`, out)
}

func TestCompleteNon200IsServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `model "llama3" not found`, http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Model: "llama3", Timeout: 5 * time.Second}, testLogger())

	_, err := client.Complete(context.Background(), "p")

	assert.ErrorIs(t, err, ErrServiceFailure)
	assert.Contains(t, err.Error(), "404")
}

func TestCompleteErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"out of memory"}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Model: "llama3", Timeout: 5 * time.Second}, testLogger())

	_, err := client.Complete(context.Background(), "p")

	assert.ErrorIs(t, err, ErrServiceFailure)
	assert.Contains(t, err.Error(), "out of memory")
}

func TestCompleteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Model: "llama3", Timeout: 20 * time.Millisecond}, testLogger())

	_, err := client.Complete(context.Background(), "p")

	assert.ErrorIs(t, err, ErrServiceFailure)
}

func TestCompleteRespectsCancelledContext(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1", Model: "llama3", RequestsPerSecond: 0.001, Burst: 1}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Complete(ctx, "p")

	assert.Error(t, err)
}
