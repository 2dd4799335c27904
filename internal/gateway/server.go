// Package gateway implements the HTTP boundary: an OpenAI-compatible
// chat-completions API over the configured backends, plus submission and
// status endpoints for the durable job queue.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/jobs"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/providers"
	"github.com/haasonsaas/relay/internal/stream"
)

// Options carries the gateway's optional dependencies. A nil Logger falls
// back to slog.Default; nil Metrics and Tracer disable collection.
type Options struct {
	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Server is the gateway process: one HTTP server exposing the chat surface
// and the job queue. Requests execute in-process; jobs only get stored here
// and run in the worker.
type Server struct {
	config   config.ServerConfig
	registry *providers.Registry
	store    jobs.Store
	agg      *stream.Aggregator
	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer

	httpServer *http.Server
	listener   net.Listener
}

// NewServer wires the gateway. The registry and store must be non-nil.
func NewServer(cfg config.ServerConfig, registry *providers.Registry, store jobs.Store, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:   cfg,
		registry: registry,
		store:    store,
		agg:      stream.New(stream.Config{Logger: logger.With("component", "stream")}),
		logger:   logger,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
	}
}

// Start binds the listener and begins serving. It returns once the
// listener is up; the serve loop runs until Stop.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.HTTPPort)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("gateway listening",
		"addr", listener.Addr().String(),
		"backends", s.registry.Names(),
		"default", s.registry.Default(),
	)
	return nil
}

// Addr returns the bound listen address, or "" before Start. With port 0
// in the config this is where the kernel-assigned port shows up.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("gateway shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
