package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/haasonsaas/relay/internal/providers"
	"github.com/haasonsaas/relay/pkg/models"
)

// decodeChatRequest parses and validates the request body. Failures are
// client errors; nothing has been spawned yet.
func decodeChatRequest(r *http.Request) (*models.ChatRequest, error) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, providers.NewClientError("", "invalid request body: %v", err)
	}
	if err := req.Validate(); err != nil {
		return nil, providers.NewClientError("", "invalid request: %v", err)
	}
	return &req, nil
}

// handleChatCompletions serves POST /v1/chat/completions: synchronous by
// default, server-sent events when the request sets stream.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChatRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Stream {
		s.streamCompletion(w, r, req)
		return
	}
	s.completeSync(w, r, req)
}

// handleChatStream serves POST /v1/chat/completions/stream, which streams
// regardless of the request's stream flag.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChatRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.streamCompletion(w, r, req)
}

// handleBackendCompletions serves POST /v1/{backend}/completions. The path
// segment overrides whatever model the body carries.
func (s *Server) handleBackendCompletions(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChatRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	req.Model = chi.URLParam(r, "backend")
	if req.Stream {
		s.streamCompletion(w, r, req)
		return
	}
	s.completeSync(w, r, req)
}

// handleModels serves GET /v1/models with the registered backend
// identifiers, so OpenAI clients can discover what to put in model.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.ModelList())
}

func (s *Server) completeSync(w http.ResponseWriter, r *http.Request, req *models.ChatRequest) {
	p, err := s.registry.Get(req.Model)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx, span := s.tracer.TraceBackendRequest(r.Context(), p.Name(), p.Model())
	defer span.End()

	start := time.Now()
	resp, err := p.Execute(ctx, req)
	s.recordBackend(p, err, time.Since(start), resp)
	if err != nil {
		s.tracer.RecordError(span, err)
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// streamCompletion renders the answer as server-sent events. Failures
// before the first event are plain JSON errors; failures mid-stream arrive
// as an in-band error event and the stream closes without [DONE]. A
// cancelled request just tears the connection down.
func (s *Server) streamCompletion(w http.ResponseWriter, r *http.Request, req *models.ChatRequest) {
	p, err := s.registry.Get(req.Model)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sse, err := newSSEWriter(w)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, span := s.tracer.TraceBackendRequest(r.Context(), p.Name(), p.Model())
	defer span.End()

	start := time.Now()
	var last *models.ChatResponse
	for frag := range s.agg.Stream(ctx, p, req) {
		if frag.Err != nil {
			s.recordBackend(p, frag.Err, time.Since(start), nil)
			s.tracer.RecordError(span, frag.Err)
			if errors.Is(frag.Err, providers.ErrCancelled) || ctx.Err() != nil {
				return
			}
			s.logger.Warn("stream failed", "backend", p.Name(), "error", frag.Err)
			_ = sse.send(newErrorBody(frag.Err))
			return
		}
		last = frag.Response
		if err := sse.send(frag.Response); err != nil {
			s.logger.Debug("stream write failed, client gone", "backend", p.Name(), "error", err)
			return
		}
	}
	if ctx.Err() != nil {
		return
	}
	s.recordBackend(p, nil, time.Since(start), last)
	_ = sse.sendDone()
}

// recordBackend emits the per-backend request metric. Token counts come
// from the response when the backend reported usage.
func (s *Server) recordBackend(p providers.Provider, err error, elapsed time.Duration, resp *models.ChatResponse) {
	status := "success"
	if err != nil {
		status = string(providers.AsError(p.Name(), err).Kind)
	}
	var prompt, completion int
	if resp != nil && resp.Usage != nil {
		prompt = resp.Usage.PromptTokens
		completion = resp.Usage.CompletionTokens
	}
	s.metrics.RecordBackendRequest(p.Name(), p.Model(), status, elapsed.Seconds(), prompt, completion)
}
