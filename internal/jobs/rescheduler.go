package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/relay/pkg/models"
)

// Rescheduler re-submits rate-limited requests as fresh jobs after a delay.
// Each deferred submission holds a cancellable timer; Stop cancels every
// outstanding wait and blocks until their goroutines exit, so a shutdown
// never leaves sleeps behind.
type Rescheduler struct {
	store  Store
	delay  time.Duration
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewRescheduler builds a rescheduler writing fresh jobs to store after
// delay.
func NewRescheduler(store Store, delay time.Duration, logger *slog.Logger) *Rescheduler {
	if delay <= 0 {
		delay = 600 * time.Second
	}
	if logger == nil {
		logger = slog.Default().With("component", "rescheduler")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Rescheduler{
		store:  store,
		delay:  delay,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Schedule arranges for a fresh job to be enqueued after the configured
// delay. The wait survives the triggering job's context; only Stop cancels
// it. Returns the id the new job will have, or "" after Stop.
func (r *Rescheduler) Schedule(backend string, req *models.ChatRequest) string {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		r.logger.Info("re-submission dropped, rescheduler stopped", "backend", backend)
		return ""
	}
	r.wg.Add(1)
	r.mu.Unlock()

	job := NewJob(backend, req)
	r.logger.Info("deferred re-submission scheduled",
		"backend", backend,
		"job_id", job.ID,
		"delay", r.delay,
	)

	go func() {
		defer r.wg.Done()

		timer := time.NewTimer(r.delay)
		defer timer.Stop()

		select {
		case <-r.ctx.Done():
			r.logger.Info("deferred re-submission cancelled", "job_id", job.ID)
			return
		case <-timer.C:
		}

		// Re-stamp so the queue orders by submission, not by failure time.
		job.CreatedAt = time.Now().UTC()
		if err := r.store.Enqueue(r.ctx, job); err != nil {
			r.logger.Error("re-enqueue failed", "job_id", job.ID, "error", err)
			return
		}
		r.logger.Info("re-enqueued rate-limited request", "backend", backend, "job_id", job.ID)
	}()

	return job.ID
}

// Stop cancels all pending waits and blocks until they have exited. Later
// Schedule calls are dropped.
func (r *Rescheduler) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}
