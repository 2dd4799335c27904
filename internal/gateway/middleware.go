package gateway

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// requireAPIKey guards the /v1 surface. An empty configured key disables
// the check entirely. Comparison is constant-time.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.config.APIKey)) != 1 {
			s.logger.Warn("request rejected, bad api key", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{
				Message: "invalid or missing API key",
				Type:    "authentication_error",
			}})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// observe wraps every request with a span, the request metrics and an
// access log line.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := s.tracer.TraceHTTPRequest(r.Context(), r.Method, r.URL.Path)
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		// The metric label uses the route pattern, not the raw path, so
		// per-job URLs do not fan out into distinct series.
		path := r.URL.Path
		if rctx := chi.RouteContext(ctx); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		s.metrics.RecordHTTPRequest(r.Method, path, strconv.Itoa(status), elapsed.Seconds())

		// Probe and scrape traffic stays out of the access log.
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			return
		}
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"remote", r.RemoteAddr,
		)
	})
}
