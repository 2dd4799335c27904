// Package jobs is the durable queue shared by the gateway and worker
// processes. The gateway enqueues chat requests as pending jobs; workers
// claim them one at a time, run them through the same provider path a
// synchronous request takes, and write the terminal result back. The SQLite
// store is the durable backend; both processes open the same file.
package jobs

import (
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/relay/pkg/models"
)

// State is the lifecycle position of a job. Transitions only move forward:
// pending -> running -> done|failed.
type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Terminal reports whether the state can no longer change.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Job is one queued chat request and its outcome.
type Job struct {
	ID      string              `json:"id"`
	Backend string              `json:"backend"`
	Request *models.ChatRequest `json:"request"`
	State   State               `json:"state"`

	// WorkerID identifies the claimer while the job is running. A job that
	// stays running with a stale worker id means that worker died mid-job.
	WorkerID string `json:"worker_id,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`

	// Result is set for done jobs, Error for failed ones.
	Result *models.ChatResponse `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// NewJob builds a pending job for the given backend and request.
func NewJob(backend string, req *models.ChatRequest) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Backend:   backend,
		Request:   req,
		State:     StatePending,
		CreatedAt: time.Now().UTC(),
	}
}

// Done reports whether the job reached a terminal state.
func (j *Job) Done() bool {
	return j != nil && j.State.Terminal()
}
