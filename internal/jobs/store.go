package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/haasonsaas/relay/pkg/models"
)

// ErrNotFound is returned by Get when no job has the given id. The gateway
// maps it to a client error, since callers only learn ids from enqueue
// responses.
var ErrNotFound = errors.New("job not found")

// Store persists job records. Implementations must be safe for concurrent use
// from multiple goroutines and, for the SQLite store, multiple processes.
type Store interface {
	// Enqueue inserts a pending job. It never blocks on execution.
	Enqueue(ctx context.Context, job *Job) error

	// Get returns the job with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Job, error)

	// Claim atomically moves the oldest pending job to running, stamped
	// with workerID. It returns nil when nothing is pending. No two
	// claimers ever receive the same job.
	Claim(ctx context.Context, workerID string) (*Job, error)

	// Complete marks a running job done with its result. It fails if the
	// job is not in the running state, so terminal states never regress.
	Complete(ctx context.Context, id string, result *models.ChatResponse) error

	// Fail marks a running job failed with an error detail, under the same
	// running-state guard as Complete.
	Fail(ctx context.Context, id string, detail string) error

	// List returns jobs in reverse chronological order.
	List(ctx context.Context, limit, offset int) ([]*Job, error)

	// Counts returns the number of jobs per state.
	Counts(ctx context.Context) (map[State]int, error)

	// Prune deletes terminal jobs that finished more than olderThan ago
	// and returns how many were removed.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)

	Close() error
}

// MemoryStore keeps jobs in memory. It backs tests and carries the same
// state-transition guards as the SQLite store.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	keys []string
}

// NewMemoryStore returns an empty in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

// Enqueue inserts a pending job.
func (s *MemoryStore) Enqueue(ctx context.Context, job *Job) error {
	if job == nil {
		return fmt.Errorf("enqueue: nil job")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("enqueue: job %q already exists", job.ID)
	}
	s.keys = append(s.keys, job.ID)
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// Get returns a job by id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

// Claim moves the oldest pending job to running.
func (s *MemoryStore) Claim(ctx context.Context, workerID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.keys {
		job := s.jobs[id]
		if job == nil || job.State != StatePending {
			continue
		}
		job.State = StateRunning
		job.WorkerID = workerID
		job.StartedAt = time.Now().UTC()
		return cloneJob(job), nil
	}
	return nil, nil
}

// Complete marks a running job done.
func (s *MemoryStore) Complete(ctx context.Context, id string, result *models.ChatResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.State != StateRunning {
		return fmt.Errorf("complete job %q: state is %q, not running", id, job.State)
	}
	job.State = StateDone
	job.Result = result
	job.Error = ""
	job.FinishedAt = time.Now().UTC()
	return nil
}

// Fail marks a running job failed.
func (s *MemoryStore) Fail(ctx context.Context, id string, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.State != StateRunning {
		return fmt.Errorf("fail job %q: state is %q, not running", id, job.State)
	}
	job.State = StateFailed
	job.Error = detail
	job.FinishedAt = time.Now().UTC()
	return nil
}

// List returns jobs newest first.
func (s *MemoryStore) List(ctx context.Context, limit, offset int) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if offset < 0 {
		offset = 0
	}
	// keys holds insertion order; walk it backwards for newest first.
	var out []*Job
	for i := len(s.keys) - 1 - offset; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if job, ok := s.jobs[s.keys[i]]; ok {
			out = append(out, cloneJob(job))
		}
	}
	return out, nil
}

// Counts returns per-state totals.
func (s *MemoryStore) Counts(ctx context.Context) (map[State]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[State]int)
	for _, job := range s.jobs {
		counts[job.State]++
	}
	return counts, nil
}

// Prune deletes terminal jobs that finished before the cutoff.
func (s *MemoryStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	var pruned int64
	var kept []string
	for _, id := range s.keys {
		job, ok := s.jobs[id]
		if !ok {
			continue
		}
		if job.State.Terminal() && job.FinishedAt.Before(cutoff) {
			delete(s.jobs, id)
			pruned++
			continue
		}
		kept = append(kept, id)
	}
	s.keys = kept
	return pruned, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

func cloneJob(job *Job) *Job {
	if job == nil {
		return nil
	}
	clone := *job
	if job.Request != nil {
		req := *job.Request
		req.Messages = append([]models.ChatMessage(nil), job.Request.Messages...)
		clone.Request = &req
	}
	if job.Result != nil {
		res := *job.Result
		res.Choices = append([]models.ChatResponseChoice(nil), job.Result.Choices...)
		clone.Result = &res
	}
	return &clone
}
