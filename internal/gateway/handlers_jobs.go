package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/haasonsaas/relay/internal/jobs"
	"github.com/haasonsaas/relay/internal/providers"
)

// jobAccepted is the POST /v1/jobs response body.
type jobAccepted struct {
	Accepted bool   `json:"accepted"`
	JobID    string `json:"job_id"`
}

// jobStatus is the GET /v1/jobs/{id} response body. Result is the
// chat-completion response once the job is done, an error body once it
// failed, and null while the job is queued or running.
type jobStatus struct {
	JobID  string `json:"job_id"`
	Done   bool   `json:"done"`
	Result any    `json:"result"`
}

// handleSubmitJob accepts a chat request for deferred execution in the
// worker. The backend resolves before the job is stored, so an unknown
// name is rejected here instead of poisoning the queue.
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChatRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.registry.Get(req.Model)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	job := jobs.NewJob(p.Name(), req)
	if err := s.store.Enqueue(r.Context(), job); err != nil {
		s.writeError(w, r, fmt.Errorf("enqueue job: %w", err))
		return
	}
	s.metrics.JobEnqueued(p.Name())
	s.logger.Info("job enqueued", "job_id", job.ID, "backend", p.Name())
	writeJSON(w, http.StatusAccepted, jobAccepted{Accepted: true, JobID: job.ID})
}

// handleJobStatus reports queue state for one job. An unknown identifier
// is a client error: the gateway only hands out ids it has stored.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			s.writeError(w, r, providers.NewClientError("", "unknown job id %q", id))
			return
		}
		s.writeError(w, r, fmt.Errorf("load job %s: %w", id, err))
		return
	}
	status := jobStatus{JobID: job.ID, Done: job.Done()}
	switch job.State {
	case jobs.StateDone:
		status.Result = job.Result
	case jobs.StateFailed:
		status.Result = errorBody{Error: errorDetail{Message: job.Error, Type: "backend_error"}}
	}
	writeJSON(w, http.StatusOK, status)
}
