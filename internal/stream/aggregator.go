// Package stream adapts chat backends to a common fragment-channel contract.
//
// Backends come in two shapes: hosted APIs that deliver tokens incrementally,
// and CLI subprocesses that produce the whole answer at once. The gateway's
// streaming endpoints consume a single channel type either way; this package
// owns that type and the adapter that bridges one-shot backends onto it.
package stream

import (
	"context"
	"log/slog"

	"github.com/haasonsaas/relay/pkg/models"
)

// Fragment is one unit of a streamed completion. Response carries a full
// chat-completion body whose single choice holds this fragment's slice of
// the answer; concatenating the content of every fragment in order
// reproduces the synchronous response for the same request. Err is set
// instead of Response when the backend fails mid-stream.
type Fragment struct {
	Response *models.ChatResponse
	Err      error
}

// Provider produces one complete answer per request.
type Provider interface {
	Execute(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error)
}

// StreamingProvider additionally delivers the answer as incremental
// fragments. The returned channel is closed after the final fragment. An
// error return means the stream could not be started at all.
type StreamingProvider interface {
	Provider
	ExecuteStream(ctx context.Context, req *models.ChatRequest) (<-chan Fragment, error)
}

// Config tunes the aggregator.
type Config struct {
	// Buffer is the capacity of fragment channels created for one-shot
	// backends. Zero means unbuffered.
	Buffer int
	Logger *slog.Logger
}

// Aggregator bridges any Provider onto the fragment-channel contract.
// Backends that stream natively pass through untouched; the rest run
// synchronously and the whole answer arrives as a single fragment.
type Aggregator struct {
	buffer int
	logger *slog.Logger
}

// New builds an Aggregator.
func New(cfg Config) *Aggregator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	buffer := cfg.Buffer
	if buffer < 0 {
		buffer = 0
	}
	return &Aggregator{buffer: buffer, logger: logger}
}

// Stream returns a fragment channel for the request. Failures are delivered
// in-band as a Fragment with Err set, and the channel is closed once the
// stream ends, whatever the outcome. Cancelling ctx tears the stream down.
func (a *Aggregator) Stream(ctx context.Context, p Provider, req *models.ChatRequest) <-chan Fragment {
	if sp, ok := p.(StreamingProvider); ok {
		ch, err := sp.ExecuteStream(ctx, req)
		if err == nil {
			return ch
		}
		out := make(chan Fragment, 1)
		out <- Fragment{Err: err}
		close(out)
		return out
	}

	a.logger.Debug("backend does not stream, emitting single fragment", "backend", req.Model)

	out := make(chan Fragment, a.buffer)
	go func() {
		defer close(out)
		resp, err := p.Execute(ctx, req)
		frag := Fragment{Response: resp}
		if err != nil {
			frag = Fragment{Err: err}
		}
		select {
		case out <- frag:
		case <-ctx.Done():
		}
	}()
	return out
}
