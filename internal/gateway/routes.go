package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler builds the full route tree. Exported so tests can serve it
// without binding a listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireAPIKey)

		r.Post("/chat/completions", s.handleChatCompletions)
		r.Post("/chat/completions/stream", s.handleChatStream)
		r.Get("/models", s.handleModels)

		r.Post("/jobs", s.handleSubmitJob)
		r.Get("/jobs/{id}", s.handleJobStatus)

		// Static routes win over the wildcard, so /chat/completions and
		// /jobs never land here.
		r.Post("/{backend}/completions", s.handleBackendCompletions)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
