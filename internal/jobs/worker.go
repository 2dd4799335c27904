package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/relay/internal/notify"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/providers"
	"github.com/haasonsaas/relay/pkg/models"
)

// cronParser accepts standard 5-field and extended 6-field (with seconds)
// cron expressions plus descriptors like @hourly.
var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// DefaultRetrySignatures mark a failure as rate limiting when any of them
// appears in the backend's combined output.
var DefaultRetrySignatures = []string{"429", "RESOURCE_EXHAUSTED", "rate limit"}

// WorkerConfig configures the claim-and-run pool.
type WorkerConfig struct {
	// Workers is the number of concurrent claim goroutines. Each runs one
	// job at a time to completion. Defaults to 1.
	Workers int

	// PollInterval is how often idle claimers check for pending jobs.
	// Defaults to 2 seconds.
	PollInterval time.Duration

	// WatchPath is the queue database file. When set, a filesystem watch
	// on its directory wakes an idle claimer as soon as another process
	// writes to the queue; watch failure degrades to pure polling.
	WatchPath string

	// Retention is how long terminal jobs are kept before the sweep
	// deletes them. Defaults to 7 days.
	Retention time.Duration

	// PruneSchedule is a cron expression for the retention sweep.
	// Defaults to every six hours.
	PruneSchedule string

	// RetryDelay is how long a rate-limited request waits before it is
	// re-submitted as a fresh job. Defaults to 600 seconds.
	RetryDelay time.Duration

	// RetrySignatures override DefaultRetrySignatures. Matched
	// case-insensitively against the failure's combined output.
	RetrySignatures []string

	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer
	Notifier notify.Notifier
}

// Worker claims pending jobs and runs them through the provider registry,
// the same execution path a synchronous gateway request takes.
type Worker struct {
	store    Store
	registry *providers.Registry
	config   WorkerConfig
	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	notifier notify.Notifier
	resched  *Rescheduler
	id       string

	// wake receives one token per observed queue write; an idle claimer
	// consumes it instead of waiting out its poll interval.
	wake    chan struct{}
	watcher *fsnotify.Watcher

	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
}

// NewWorker builds a worker pool over the given store and registry.
func NewWorker(store Store, registry *providers.Registry, config WorkerConfig) *Worker {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	if config.Retention <= 0 {
		config.Retention = 7 * 24 * time.Hour
	}
	if config.PruneSchedule == "" {
		config.PruneSchedule = "0 */6 * * *"
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 600 * time.Second
	}
	if config.RetrySignatures == nil {
		config.RetrySignatures = DefaultRetrySignatures
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default().With("component", "worker")
	}
	notifier := config.Notifier
	if notifier == nil {
		notifier = notify.Noop{}
	}

	return &Worker{
		store:    store,
		registry: registry,
		config:   config,
		logger:   logger,
		metrics:  config.Metrics,
		tracer:   config.Tracer,
		notifier: notifier,
		resched:  NewRescheduler(store, config.RetryDelay, logger.With("component", "rescheduler")),
		id:       uuid.NewString(),
		wake:     make(chan struct{}, 1),
	}
}

// ID returns this worker instance's identifier. Claim stamps append the
// claimer goroutine number.
func (w *Worker) ID() string { return w.id }

// Start launches the claim loops, the queue watch, the retention sweep and
// the depth gauge. It returns immediately.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.logger.Info("starting worker",
		"worker_id", w.id,
		"workers", w.config.Workers,
		"poll_interval", w.config.PollInterval,
	)

	w.startWatch(ctx)

	for n := 1; n <= w.config.Workers; n++ {
		w.wg.Add(1)
		go w.claimLoop(ctx, n)
	}

	w.wg.Add(1)
	go w.pruneLoop(ctx)

	if w.metrics != nil {
		w.wg.Add(1)
		go w.depthLoop(ctx)
	}

	return nil
}

// Stop cancels all loops and pending re-submissions, then waits for them to
// exit. In-flight jobs are cancelled; their rows record the cancellation.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	w.logger.Info("stopping worker", "worker_id", w.id)

	if w.cancel != nil {
		w.cancel()
	}
	w.resched.Stop()
	if w.watcher != nil {
		_ = w.watcher.Close()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("worker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startWatch wires the fsnotify wake-up. Any failure leaves the worker on
// pure polling.
func (w *Worker) startWatch(ctx context.Context) {
	if w.config.WatchPath == "" {
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("queue watch unavailable, relying on polling", "error", err)
		return
	}
	if err := watcher.Add(filepath.Dir(w.config.WatchPath)); err != nil {
		w.logger.Warn("queue watch unavailable, relying on polling", "error", err)
		_ = watcher.Close()
		return
	}
	w.watcher = watcher
	w.wg.Add(1)
	go w.watchLoop(ctx)
}

func (w *Worker) watchLoop(ctx context.Context) {
	defer w.wg.Done()

	// Under WAL mode enqueues land in <db>-wal, so match the shared
	// basename prefix rather than the db file alone.
	base := filepath.Base(w.config.WatchPath)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !strings.HasPrefix(filepath.Base(event.Name), base) {
				continue
			}
			select {
			case w.wake <- struct{}{}:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("queue watch error", "error", err)
		}
	}
}

// claimLoop drains pending jobs, then sleeps until the next poll tick or a
// queue write wakes it.
func (w *Worker) claimLoop(ctx context.Context, n int) {
	defer w.wg.Done()

	workerID := fmt.Sprintf("%s/%d", w.id, n)
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		w.drain(ctx, workerID)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

func (w *Worker) drain(ctx context.Context, workerID string) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := w.store.Claim(ctx, workerID)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error("claim failed", "worker_id", workerID, "error", err)
			}
			return
		}
		if job == nil {
			return
		}
		w.runJob(ctx, job)
	}
}

func (w *Worker) runJob(ctx context.Context, job *Job) {
	logger := w.logger.With("job_id", job.ID, "backend", job.Backend)

	ctx, span := w.tracer.TraceJob(ctx, job.ID, job.Backend)
	defer span.End()

	logger.Info("job started", "worker_id", job.WorkerID)
	start := time.Now()
	resp, err := w.execute(ctx, job)
	duration := time.Since(start)

	// Terminal writes use a detached context so a job that finished during
	// shutdown still records its outcome.
	writeCtx, cancelWrite := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelWrite()

	if err != nil {
		w.tracer.RecordError(span, err)
		w.failJob(writeCtx, job, err, duration, logger)
		return
	}

	if err := w.store.Complete(writeCtx, job.ID, resp); err != nil {
		logger.Error("record job result failed", "error", err)
		return
	}
	w.metrics.JobFinished(job.Backend, string(StateDone), duration.Seconds())
	logger.Info("job done", "duration", duration)
}

func (w *Worker) execute(ctx context.Context, job *Job) (*models.ChatResponse, error) {
	p, err := w.registry.Get(job.Backend)
	if err != nil {
		return nil, err
	}
	return p.Execute(ctx, job.Request)
}

func (w *Worker) failJob(ctx context.Context, job *Job, execErr error, duration time.Duration, logger *slog.Logger) {
	if err := w.store.Fail(ctx, job.ID, execErr.Error()); err != nil {
		logger.Error("record job failure failed", "error", err)
	}
	w.metrics.JobFinished(job.Backend, string(StateFailed), duration.Seconds())
	logger.Warn("job failed", "error", execErr)

	if !w.rateLimited(execErr) {
		return
	}

	w.metrics.JobRetryScheduled(job.Backend)
	msg := fmt.Sprintf("relay: backend %s rate limited, re-submitting job in %s", job.Backend, w.config.RetryDelay)
	if err := w.notifier.Notify(ctx, msg); err != nil {
		logger.Warn("rate limit notification failed", "error", err)
	}
	w.resched.Schedule(job.Backend, job.Request)
}

// rateLimited scans the failure's combined output for a retry signature.
func (w *Worker) rateLimited(err error) bool {
	detail := err.Error()
	var perr *providers.Error
	if errors.As(err, &perr) {
		detail = perr.CombinedOutput()
	}
	detail = strings.ToLower(detail)
	for _, sig := range w.config.RetrySignatures {
		if sig == "" {
			continue
		}
		if strings.Contains(detail, strings.ToLower(sig)) {
			return true
		}
	}
	return false
}

func (w *Worker) pruneLoop(ctx context.Context) {
	defer w.wg.Done()

	sched, err := cronParser.Parse(w.config.PruneSchedule)
	if err != nil {
		w.logger.Error("invalid prune schedule, retention sweep disabled",
			"schedule", w.config.PruneSchedule,
			"error", err,
		)
		return
	}

	for {
		timer := time.NewTimer(time.Until(sched.Next(time.Now())))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			w.prune(ctx)
		}
	}
}

func (w *Worker) prune(ctx context.Context) {
	n, err := w.store.Prune(ctx, w.config.Retention)
	if err != nil {
		w.logger.Error("prune failed", "error", err)
		return
	}
	if n > 0 {
		w.logger.Info("pruned terminal jobs", "count", n, "retention", w.config.Retention)
	}
}

func (w *Worker) depthLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.refreshDepth(ctx)
		}
	}
}

func (w *Worker) refreshDepth(ctx context.Context) {
	counts, err := w.store.Counts(ctx)
	if err != nil {
		w.logger.Debug("queue depth refresh failed", "error", err)
		return
	}
	for _, state := range []State{StatePending, StateRunning, StateDone, StateFailed} {
		w.metrics.SetQueueDepth(string(state), counts[state])
	}
}
