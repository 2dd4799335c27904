package gateway

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
)

// sseWriter emits server-sent events in the OpenAI streaming shape: one
// `data:` line per JSON chunk, terminated by a literal [DONE] marker
// unless the stream failed first.
type sseWriter struct {
	bw      *bufio.Writer
	flusher http.Flusher
}

// newSSEWriter prepares w for streaming. It fails when the response writer
// cannot flush, in which case the caller falls back to a plain error.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &sseWriter{bw: bufio.NewWriter(w), flusher: flusher}, nil
}

// send emits one data event carrying v as JSON and flushes it to the
// client immediately.
func (e *sseWriter) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(e.bw, "data: %s\n\n", b); err != nil {
		return err
	}
	return e.flush()
}

// sendDone emits the terminal [DONE] marker.
func (e *sseWriter) sendDone() error {
	if _, err := fmt.Fprint(e.bw, "data: [DONE]\n\n"); err != nil {
		return err
	}
	return e.flush()
}

func (e *sseWriter) flush() error {
	if err := e.bw.Flush(); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}
