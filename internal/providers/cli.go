package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/runner"
	"github.com/haasonsaas/relay/pkg/models"
)

// cliBackend is the shared core of every backend that shells out to a local
// agent CLI. Concrete backends embed it, build a runner.Spec per request,
// and convert the captured output into a chat response.
type cliBackend struct {
	name    string
	model   string
	command string
	timeout time.Duration

	runner  Runner
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

func newCLIBackend(name string, bc config.BackendConfig, opts Options) cliBackend {
	model := bc.Model
	if model == "" {
		model = name
	}
	return cliBackend{
		name:    name,
		model:   model,
		command: bc.Command,
		timeout: bc.Timeout,
		runner:  opts.Runner,
		logger:  opts.Logger.With("component", "providers", "backend", name),
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
	}
}

func (b *cliBackend) Name() string  { return b.name }
func (b *cliBackend) Model() string { return b.model }

// run executes one subprocess and maps every non-success status onto the
// error taxonomy. A non-nil Result always means a zero exit.
func (b *cliBackend) run(ctx context.Context, spec runner.Spec) (*runner.Result, error) {
	ctx, span := b.tracer.TraceSubprocess(ctx, b.name, spec.Command)
	defer span.End()

	b.logger.Info("running backend command",
		"command", spec.Command,
		"args", len(spec.Args),
		"timeout", spec.Timeout,
	)

	res := b.runner.Run(ctx, spec)
	b.metrics.RecordSubprocess(b.name, string(res.Status), res.Duration.Seconds(), res.StdoutTruncated, res.StderrTruncated)

	switch res.Status {
	case runner.StatusSuccess:
		return res, nil

	case runner.StatusTimeout:
		err := NewBackendTimeout(b.name, spec.Timeout)
		b.tracer.RecordError(span, err)
		b.logger.Error("backend command timed out", "timeout", spec.Timeout, "duration", res.Duration)
		return nil, err

	case runner.StatusNotFound:
		var cause error
		if res.Err != "" {
			cause = errors.New(res.Err)
		}
		err := NewBackendNotFound(b.name, spec.Command, cause)
		b.tracer.RecordError(span, err)
		b.logger.Error("backend command not found", "command", spec.Command)
		return nil, err

	case runner.StatusCancelled:
		err := NewCancelled(b.name, ctx.Err())
		b.logger.Info("backend command cancelled", "duration", res.Duration)
		return nil, err

	default:
		msg := fmt.Sprintf("exited with code %d", res.ExitCode)
		if res.Err != "" {
			msg = fmt.Sprintf("%s: %s", msg, res.Err)
		}
		err := NewExecutionError(b.name, msg, nil).
			WithExitCode(res.ExitCode).
			WithOutput(res.Stdout, res.Stderr)
		b.tracer.RecordError(span, err)
		b.logger.Error("backend command failed",
			"exit_code", res.ExitCode,
			"stderr_bytes", len(res.Stderr),
			"duration", res.Duration,
		)
		return nil, err
	}
}

// respond converts extracted output into a chat response with estimated
// usage. Empty content is an execution failure, never a silent empty answer.
func (b *cliBackend) respond(prompt, content string) (*models.ChatResponse, error) {
	if content == "" {
		return nil, NewExecutionError(b.name, "backend produced no output", nil)
	}
	b.logger.Info("backend produced answer", "content_bytes", len(content))
	return models.NewChatResponse(b.name, content, models.FinishStop, EstimateUsage(prompt, content)), nil
}
