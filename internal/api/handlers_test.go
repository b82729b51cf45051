package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/maltedev/vape-product-scraper/internal/jobs"
	"github.com/maltedev/vape-product-scraper/internal/models"
	"github.com/maltedev/vape-product-scraper/internal/queue"
	"github.com/maltedev/vape-product-scraper/internal/scraper"
	"github.com/maltedev/vape-product-scraper/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type stubBacklog struct {
	pending, deadLetter int64
	err                 error
}

func (s stubBacklog) Backlog(ctx context.Context) (int64, int64, error) {
	return s.pending, s.deadLetter, s.err
}

type failingSource struct{}

func (failingSource) ListProducts(ctx context.Context, site string, limit, offset int) ([]models.MergedProduct, error) {
	return nil, errors.New("connection reset")
}

func newServer(t *testing.T, products ProductSource, completer *MockCompleter, manager *jobs.Manager, backlog Backlog) *httptest.Server {
	t.Helper()
	h := NewHandlers(products, completer, manager, backlog, slog.Default())
	srv := httptest.NewServer(NewRouter(h, []string{"http://localhost:*"}))
	t.Cleanup(srv.Close)
	return srv
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		backlog    Backlog
		wantCode   int
		wantStatus string
	}{
		{"no relay", nil, http.StatusOK, "ok"},
		{"quiet outbox", stubBacklog{pending: 3}, http.StatusOK, "ok"},
		{"pending pile up", stubBacklog{pending: 1500}, http.StatusOK, "warning"},
		{"dead letters", stubBacklog{deadLetter: 101}, http.StatusServiceUnavailable, "error"},
		{"outbox down", stubBacklog{err: errors.New("pool closed")}, http.StatusServiceUnavailable, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, NewFileSource(t.TempDir()), new(MockCompleter), nil, tt.backlog)

			resp, err := http.Get(srv.URL + "/health")
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, resp.StatusCode)

			var body map[string]any
			decode(t, resp, &body)
			assert.Equal(t, tt.wantStatus, body["status"])
		})
	}
}

func TestListProductsFromFile(t *testing.T) {
	dir := t.TempDir()
	var batch []models.MergedProduct
	for _, raw := range []string{
		`{"title":"A","link":"https://vaperanger.com/a/","flavor":"<Mint & Ice>"}`,
		`{"title":"B","link":"https://vaperanger.com/b/"}`,
		`{"title":"C","link":"https://vaperanger.com/c/"}`,
	} {
		var m models.MergedProduct
		require.NoError(t, m.UnmarshalJSON([]byte(raw)))
		batch = append(batch, m)
	}
	require.NoError(t, storage.WriteMerged(storage.MergedPath(dir, "vaperanger"), batch))

	srv := newServer(t, NewFileSource(dir), new(MockCompleter), nil, nil)

	t.Run("page", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/v1/products?site=vaperanger&limit=2&offset=1")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Site     string           `json:"site"`
			Products []map[string]any `json:"products"`
		}
		decode(t, resp, &body)
		assert.Equal(t, "vaperanger", body.Site)
		require.Len(t, body.Products, 2)
		assert.Equal(t, "B", body.Products[0]["title"])
		assert.Equal(t, "C", body.Products[1]["title"])
	})

	t.Run("no html escaping", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/v1/products?site=vaperanger&limit=1")
		require.NoError(t, err)
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(raw), "<Mint & Ice>")
	})

	t.Run("site without batch is empty", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/v1/products?site=vapewholesale")
		require.NoError(t, err)
		var body ListProductsResponse
		decode(t, resp, &body)
		assert.Empty(t, body.Products)
		assert.Equal(t, defaultLimit, body.Limit)
	})

	t.Run("bad query", func(t *testing.T) {
		for _, q := range []string{"site=vapeshop", "site=vaperanger&limit=0", "site=vaperanger&limit=x", "site=vaperanger&offset=-1"} {
			resp, err := http.Get(srv.URL + "/api/v1/products?" + q)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		}
	})
}

func TestListProductsSourceFailure(t *testing.T) {
	srv := newServer(t, failingSource{}, new(MockCompleter), nil, nil)

	resp, err := http.Get(srv.URL + "/api/v1/products?site=vaperanger")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestExtract(t *testing.T) {
	completer := new(MockCompleter)
	completer.On("Complete", mock.Anything, mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, "Geek Bar Pulse") && strings.Contains(prompt, "Watermelon Ice")
	})).Return(`Sure! {"brand": "Geek Bar", "puff_count": "15000", "title": "Pulse"}`, nil)

	srv := newServer(t, NewFileSource(t.TempDir()), completer, nil, nil)

	body := `{"brand":null,"title":"Geek Bar Pulse","price":"$19.99","link":"https://vaperanger.com/geek-bar-pulse/",
		"image_url":null,"description":"15000 puffs","stock_status":"In Stock",
		"variants_json":"[{\"flavor\":\"Watermelon Ice\",\"in_stock\":\"Yes\",\"price_each\":\"$19.99\"}]"}`

	resp, err := http.Post(srv.URL+"/api/v1/extract?site=vaperanger", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var merged map[string]any
	decode(t, resp, &merged)
	assert.Equal(t, "Pulse", merged["title"])
	assert.Equal(t, "Geek Bar", merged["brand"])
	assert.Equal(t, "15000", merged["puff_count"])
	assert.Equal(t, "$19.99", merged["price"])
	assert.NotContains(t, merged, "variants_json")
	completer.AssertExpectations(t)
}

func TestExtractRejectsBadInput(t *testing.T) {
	srv := newServer(t, NewFileSource(t.TempDir()), new(MockCompleter), nil, nil)

	tests := []struct {
		name string
		site string
		body string
	}{
		{"unknown site", "vapeshop", `{"title":"x"}`},
		{"not json", "vaperanger", `title=x`},
		{"no title", "vaperanger", `{"link":"https://vaperanger.com/x/"}`},
		{"bad variants", "vaperanger", `{"title":"x","variants_json":"{oops"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/v1/extract?site="+tt.site, "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestJobRoutes(t *testing.T) {
	crawl := func(ctx context.Context, task *queue.Task) ([]models.ScrapedProduct, scraper.RunSummary, error) {
		return nil, scraper.RunSummary{Site: task.Site, StopReason: scraper.StopExhausted}, nil
	}
	manager := jobs.NewManager(queue.NewInMemoryQueue(0), crawl, t.TempDir(), slog.Default())
	srv := newServer(t, NewFileSource(t.TempDir()), new(MockCompleter), manager, nil)

	resp, err := http.Post(srv.URL+"/api/v1/jobs", "application/json", strings.NewReader(`{"site":"vapewholesale","max_items":5}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created CreateJobResponse
	decode(t, resp, &created)
	assert.Equal(t, jobs.StatusPending, created.Status)

	resp, err = http.Get(srv.URL + "/api/v1/jobs/" + created.JobID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var job jobs.Job
	decode(t, resp, &job)
	assert.Equal(t, "vapewholesale", job.Site)
	assert.Equal(t, 5, job.MaxItems)

	resp, err = http.Get(srv.URL + "/api/v1/jobs/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/v1/jobs", "application/json", strings.NewReader(`{"site":"vapeshop"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/stats")
	require.NoError(t, err)
	var stats jobs.Stats
	decode(t, resp, &stats)
	assert.Equal(t, 1, stats.PendingJobs)
}

func TestJobRoutesAbsentWithoutManager(t *testing.T) {
	srv := newServer(t, NewFileSource(t.TempDir()), new(MockCompleter), nil, nil)

	resp, err := http.Get(srv.URL + "/api/v1/jobs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
