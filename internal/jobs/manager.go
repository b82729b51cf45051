package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/vape-product-scraper/internal/models"
	"github.com/maltedev/vape-product-scraper/internal/parser"
	"github.com/maltedev/vape-product-scraper/internal/queue"
	"github.com/maltedev/vape-product-scraper/internal/scraper"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrInvalidLimits = errors.New("limits must not be negative")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

const listLimit = 100

// CrawlFunc runs one crawl for a queued task.
type CrawlFunc func(ctx context.Context, task *queue.Task) ([]models.ScrapedProduct, scraper.RunSummary, error)

// Job is a crawl requested through the API.
type Job struct {
	ID          string              `json:"id"`
	Site        string              `json:"site"`
	MaxItems    int                 `json:"max_items,omitempty"`
	MaxPages    int                 `json:"max_pages,omitempty"`
	Status      Status              `json:"status"`
	Summary     *scraper.RunSummary `json:"summary,omitempty"`
	OutputPath  string              `json:"output_path,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Error       string              `json:"error,omitempty"`
}

type Stats struct {
	TotalJobs     int `json:"total_jobs"`
	PendingJobs   int `json:"pending_jobs"`
	RunningJobs   int `json:"running_jobs"`
	CompletedJobs int `json:"completed_jobs"`
	FailedJobs    int `json:"failed_jobs"`
	TotalProducts int `json:"total_products"`
}

// Manager keeps crawl jobs in memory and feeds them to a worker through a
// queue.
type Manager struct {
	queue     queue.Queue
	crawl     CrawlFunc
	outputDir string
	logger    *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewManager(q queue.Queue, crawl CrawlFunc, outputDir string, logger *slog.Logger) *Manager {
	return &Manager{
		queue:     q,
		crawl:     crawl,
		outputDir: outputDir,
		logger:    logger.With("component", "job_manager"),
		jobs:      make(map[string]*Job),
	}
}

// CreateJob queues a crawl of site. Zero limits keep the site defaults.
func (m *Manager) CreateJob(site string, maxItems, maxPages int) (Job, error) {
	adapter, err := parser.Lookup(site)
	if err != nil {
		return Job{}, err
	}
	if maxItems < 0 || maxPages < 0 {
		return Job{}, ErrInvalidLimits
	}

	job := &Job{
		ID:        uuid.New().String(),
		Site:      adapter.Name(),
		MaxItems:  maxItems,
		MaxPages:  maxPages,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	task := &queue.Task{
		ID:        job.ID,
		Site:      job.Site,
		MaxItems:  maxItems,
		MaxPages:  maxPages,
		CreatedAt: job.CreatedAt,
	}
	if err := m.queue.Push(task); err != nil {
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
		return Job{}, fmt.Errorf("failed to queue job: %w", err)
	}

	m.logger.Info("job created", "id", job.ID, "site", job.Site)
	return *job, nil
}

func (m *Manager) GetJob(id string) (Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return *job, nil
}

// ListJobs returns the most recent jobs first.
func (m *Manager) ListJobs() []Job {
	m.mu.RLock()
	jobs := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, *job)
	}
	m.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if len(jobs) > listLimit {
		jobs = jobs[:listLimit]
	}
	return jobs
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats Stats
	for _, job := range m.jobs {
		stats.TotalJobs++
		switch job.Status {
		case StatusPending:
			stats.PendingJobs++
		case StatusRunning:
			stats.RunningJobs++
		case StatusCompleted:
			stats.CompletedJobs++
		case StatusFailed:
			stats.FailedJobs++
		}
		if job.Summary != nil {
			stats.TotalProducts += job.Summary.Items
		}
	}
	return stats
}

func (m *Manager) update(id string, fn func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		fn(job)
	}
}
