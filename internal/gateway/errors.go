package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/haasonsaas/relay/internal/providers"
)

// errorBody is the JSON error envelope. The same shape is used for plain
// responses, in-band SSE error events and failed job results.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// statusForError maps a failure onto the boundary contract: a rejected
// request is the caller's fault, a missing executable is a deployment
// problem, an exceeded deadline is a gateway timeout and a backend that
// ran and failed is a bad gateway.
func statusForError(err error) int {
	var perr *providers.Error
	if errors.As(err, &perr) {
		switch perr.Kind {
		case providers.KindClient:
			return http.StatusBadRequest
		case providers.KindNotFound:
			return http.StatusInternalServerError
		case providers.KindTimeout:
			return http.StatusGatewayTimeout
		case providers.KindExecution:
			return http.StatusBadGateway
		}
	}
	return http.StatusInternalServerError
}

func errorType(err error) string {
	var perr *providers.Error
	if errors.As(err, &perr) {
		switch perr.Kind {
		case providers.KindClient:
			return "invalid_request_error"
		case providers.KindTimeout:
			return "timeout_error"
		case providers.KindExecution:
			return "backend_error"
		}
	}
	return "server_error"
}

func newErrorBody(err error) errorBody {
	return errorBody{Error: errorDetail{Message: err.Error(), Type: errorType(err)}}
}

// writeError renders a failure as JSON. Cancelled requests get nothing:
// the client is gone and the connection is already being torn down.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, providers.ErrCancelled) || r.Context().Err() != nil {
		return
	}
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	} else {
		s.logger.Warn("request rejected", "status", status, "error", err)
	}
	writeJSON(w, status, newErrorBody(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
