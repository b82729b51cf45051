package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/maltedev/vape-product-scraper/internal/queue"
	"github.com/maltedev/vape-product-scraper/internal/storage"
)

// StartWorker runs queued jobs one at a time until ctx is done or the queue
// is closed.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started")

	for {
		task, err := m.queue.Pop(ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrQueueClosed) && !errors.Is(err, context.Canceled) {
				m.logger.Error("failed to take job", "error", err)
			}
			m.logger.Info("job worker stopping")
			return
		}
		m.processTask(ctx, task)
	}
}

func (m *Manager) processTask(ctx context.Context, task *queue.Task) {
	logger := m.logger.With("job", task.ID, "site", task.Site)
	logger.Info("processing job")

	started := time.Now()
	m.update(task.ID, func(j *Job) {
		j.Status = StatusRunning
		j.StartedAt = &started
	})

	products, summary, err := m.crawl(ctx, task)
	if err == nil {
		path := storage.RawPath(m.outputDir, task.Site+"_"+task.ID)
		if err = storage.WriteProducts(path, products); err == nil {
			m.update(task.ID, func(j *Job) { j.OutputPath = path })
		}
	}

	completed := time.Now()
	m.update(task.ID, func(j *Job) {
		j.CompletedAt = &completed
		if err != nil {
			j.Status = StatusFailed
			j.Error = err.Error()
			return
		}
		j.Status = StatusCompleted
		j.Summary = &summary
	})

	if err != nil {
		logger.Error("job failed", "error", err)
		return
	}
	logger.Info("job completed",
		"items", summary.Items,
		"stop_reason", summary.StopReason,
		"duration", completed.Sub(started))
}
