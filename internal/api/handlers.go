package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/maltedev/vape-product-scraper/internal/extractor"
	"github.com/maltedev/vape-product-scraper/internal/jobs"
	"github.com/maltedev/vape-product-scraper/internal/merge"
	"github.com/maltedev/vape-product-scraper/internal/models"
	"github.com/maltedev/vape-product-scraper/internal/parser"
)

const (
	defaultLimit = 50
	maxLimit     = 500
	maxBodyBytes = 1 << 20

	pendingWarnThreshold    = 1000
	deadLetterFailThreshold = 100
)

// Backlog reports the outbox queue depth.
type Backlog interface {
	Backlog(ctx context.Context) (pending, deadLetter int64, err error)
}

type Handlers struct {
	products  ProductSource
	completer extractor.Completer
	jobs      *jobs.Manager
	backlog   Backlog
	logger    *slog.Logger
}

// NewHandlers wires the API. jobs and backlog may be nil when the server
// runs without a job worker or an outbox relay.
func NewHandlers(products ProductSource, completer extractor.Completer, jobs *jobs.Manager, backlog Backlog, logger *slog.Logger) *Handlers {
	return &Handlers{
		products:  products,
		completer: completer,
		jobs:      jobs,
		backlog:   backlog,
		logger:    logger.With("component", "api"),
	}
}

// Health reports liveness and, with a relay, the outbox backlog.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "ok"}
	status := http.StatusOK

	if h.backlog != nil {
		pending, deadLetter, err := h.backlog.Backlog(r.Context())
		if err != nil {
			h.logger.Error("failed to read outbox backlog", "error", err)
			h.respondJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":  "error",
				"message": "outbox unavailable",
			})
			return
		}
		health["outbox"] = map[string]any{
			"pending":     pending,
			"dead_letter": deadLetter,
		}
		if pending > pendingWarnThreshold {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if deadLetter > deadLetterFailThreshold {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

// ListProductsResponse is one page of merged products.
type ListProductsResponse struct {
	Site     string                 `json:"site"`
	Limit    int                    `json:"limit"`
	Offset   int                    `json:"offset"`
	Products []models.MergedProduct `json:"products"`
}

// ListProducts handles GET /api/v1/products?site=&limit=&offset=.
func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	adapter, err := parser.Lookup(r.URL.Query().Get("site"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit, err := queryInt(r, "limit", defaultLimit)
	if err != nil || limit <= 0 || limit > maxLimit {
		h.respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		h.respondError(w, http.StatusBadRequest, "offset must not be negative")
		return
	}

	products, err := h.products.ListProducts(r.Context(), adapter.Name(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list products", "site", adapter.Name(), "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list products")
		return
	}

	h.respondJSON(w, http.StatusOK, ListProductsResponse{
		Site:     adapter.Name(),
		Limit:    limit,
		Offset:   offset,
		Products: products,
	})
}

// Extract handles POST /api/v1/extract?site=. The body is one scraped
// product; the answer is the product merged with its structured fields.
func (h *Handlers) Extract(w http.ResponseWriter, r *http.Request) {
	adapter, err := parser.Lookup(r.URL.Query().Get("site"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var product models.ScrapedProduct
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&product); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if product.Title == "" {
		h.respondError(w, http.StatusBadRequest, "title is required")
		return
	}
	if product.VariantsJSON == "" {
		product.VariantsJSON = "[]"
	}
	if product.Variants, err = models.DecodeVariants(product.VariantsJSON); err != nil {
		h.respondError(w, http.StatusBadRequest, "variants_json is not a list of variants")
		return
	}

	ex := extractor.New(adapter.Schema(), h.completer, h.logger)
	structured := ex.Extract(r.Context(), product)
	merged := merge.MergeOne(product, structured)

	h.respondJSON(w, http.StatusOK, merged)
}

// CreateJobRequest asks for a crawl. Zero limits keep the site defaults.
type CreateJobRequest struct {
	Site     string `json:"site"`
	MaxItems int    `json:"max_items"`
	MaxPages int    `json:"max_pages"`
}

type CreateJobResponse struct {
	JobID   string      `json:"job_id"`
	Status  jobs.Status `json:"status"`
	Message string      `json:"message"`
}

func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.jobs.CreateJob(req.Site, req.MaxItems, req.MaxPages)
	if errors.Is(err, parser.ErrUnknownSite) || errors.Is(err, jobs.ErrInvalidLimits) {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("failed to create job", "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "failed to create job")
		return
	}

	h.respondJSON(w, http.StatusCreated, CreateJobResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "Job created successfully",
	})
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetJob(chi.URLParam(r, "jobID"))
	if err != nil {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.ListJobs())
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.Stats())
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
