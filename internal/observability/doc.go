// Package observability provides monitoring and debugging capabilities for
// relay through metrics, structured logging, and distributed tracing.
//
// # Overview
//
// The observability package implements the three pillars of observability:
//
//  1. Metrics - Quantitative measurements using Prometheus
//  2. Logging - Structured logs with sensitive data redaction
//  3. Tracing - Distributed request tracing with OpenTelemetry
//
// # Metrics
//
// Metrics are implemented using Prometheus client libraries and track:
//   - Gateway HTTP request latency and counts
//   - Backend completion latency, status, and estimated token usage
//   - Subprocess wall time, exit status, timeouts, and output truncations
//   - Job queue throughput, retries, and depth
//
// Example usage:
//
//	metrics := observability.NewMetrics()
//
//	start := time.Now()
//	// ... run completion ...
//	metrics.RecordBackendRequest("codex", "gpt-5.2", "success",
//	    time.Since(start).Seconds(), promptTokens, completionTokens)
//
// # Logging
//
// Logging is built on Go's slog package with enhancements for:
//   - Automatic request and job ID correlation from context
//   - Sensitive data redaction (API keys, bot tokens, passwords)
//   - JSON output for production, text for development
//
// Example usage:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	ctx := observability.AddRequestID(ctx, requestID)
//	logger.Info(ctx, "completion finished",
//	    "backend", "codex",
//	    "api_key", apiKey, // Automatically redacted
//	)
//
// # Tracing
//
// Distributed tracing uses OpenTelemetry with an OTLP gRPC exporter. Spans
// cover gateway requests, backend completions, subprocess runs, and job
// executions. With no endpoint configured the tracer is a no-op.
//
// Example usage:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:    "relay",
//	    ServiceVersion: version,
//	    Endpoint:       cfg.Tracing.Endpoint,
//	    SamplingRate:   cfg.Tracing.SampleRate,
//	})
//	defer shutdown(context.Background())
//
//	ctx, span := tracer.TraceSubprocess(ctx, "codex", "codex")
//	defer span.End()
//	if err != nil {
//	    tracer.RecordError(span, err)
//	}
//
// # Security Considerations
//
// The logging component automatically redacts:
//   - API keys (Anthropic, OpenAI, generic)
//   - Telegram bot tokens
//   - Passwords and secrets
//   - JWT and bearer tokens
//   - Custom patterns via configuration
package observability
