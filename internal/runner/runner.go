// Package runner executes external backend programs with piped I/O, bounded
// output capture, wall-clock timeouts, and a guaranteed reap on every exit
// path. Exactly one OS process exists per Run call; the process is never left
// behind, whether the call completes, times out, is cancelled, or fails.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Status classifies how an invocation ended.
type Status string

const (
	// StatusSuccess means the process exited with code 0.
	StatusSuccess Status = "success"
	// StatusTimeout means the timeout elapsed and the process was terminated.
	StatusTimeout Status = "timeout"
	// StatusNotFound means the executable could not be located; no process
	// was ever forked.
	StatusNotFound Status = "not-found"
	// StatusCancelled means the caller's context was cancelled mid-run.
	StatusCancelled Status = "cancelled"
	// StatusError covers non-zero exits and spawn/IO failures.
	StatusError Status = "error"
)

const (
	// DefaultCaptureLimit bounds captured bytes per stream.
	DefaultCaptureLimit = 2_000_000
	// DefaultGracePeriod is how long a terminated process may linger before
	// it is killed.
	DefaultGracePeriod = 3 * time.Second
)

// Spec describes one subprocess invocation.
type Spec struct {
	// Command is the executable name or path. Resolved via PATH when bare.
	Command string
	// Args is the ordered argument list, passed verbatim (no shell).
	Args []string
	// Stdin, when non-empty, is written to the process and followed by EOF.
	Stdin string
	// Dir is the working directory; empty inherits the caller's.
	Dir string
	// Env entries are appended to the current environment.
	Env map[string]string
	// Timeout bounds wall-clock execution. Zero means no limit.
	Timeout time.Duration
}

// Result is the outcome of one invocation. Expected failures (timeout,
// missing binary, non-zero exit, cancellation) are reported here, never as a
// Go error or panic.
type Result struct {
	Status          Status        `json:"status"`
	ExitCode        int           `json:"exit_code"`
	Stdout          string        `json:"stdout"`
	Stderr          string        `json:"stderr"`
	StdoutTruncated bool          `json:"stdout_truncated"`
	StderrTruncated bool          `json:"stderr_truncated"`
	Duration        time.Duration `json:"duration"`
	Err             string        `json:"error,omitempty"`
}

// Success reports whether the process ran to completion with exit code 0.
func (r *Result) Success() bool { return r.Status == StatusSuccess }

// Config controls a Runner.
type Config struct {
	// CaptureLimit bounds captured bytes per stream. Defaults to
	// DefaultCaptureLimit.
	CaptureLimit int
	// GracePeriod is the terminate-to-kill window. Defaults to
	// DefaultGracePeriod.
	GracePeriod time.Duration
	// Logger for invocation events.
	Logger *slog.Logger
}

// Runner runs external programs. Safe for concurrent use; each call owns its
// process and buffers exclusively.
type Runner struct {
	captureLimit int
	gracePeriod  time.Duration
	logger       *slog.Logger
}

// New creates a Runner, filling zero config values with defaults.
func New(cfg Config) *Runner {
	if cfg.CaptureLimit <= 0 {
		cfg.CaptureLimit = DefaultCaptureLimit
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "runner")
	}
	return &Runner{
		captureLimit: cfg.CaptureLimit,
		gracePeriod:  cfg.GracePeriod,
		logger:       logger,
	}
}

// Run executes the spec and always returns a Result. The process receives
// SIGTERM when the timeout elapses or ctx is cancelled; if it has not exited
// after the grace period it is killed. Duration covers spawn to final reap.
func (r *Runner) Run(ctx context.Context, spec Spec) *Result {
	res := &Result{Status: StatusError, ExitCode: -1}
	if strings.TrimSpace(spec.Command) == "" {
		res.Err = "command is required"
		return res
	}

	runCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		base := os.Environ()
		for k, v := range spec.Env {
			base = append(base, k+"="+v)
		}
		cmd.Env = base
	}

	stdout := newCaptureBuffer(r.captureLimit)
	stderr := newCaptureBuffer(r.captureLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if spec.Stdin != "" {
		cmd.Stdin = strings.NewReader(spec.Stdin)
	}

	// Terminate first, kill after the grace period.
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.gracePeriod

	start := time.Now()
	if err := cmd.Start(); err != nil {
		res.Duration = time.Since(start)
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			res.Status = StatusNotFound
			res.Err = fmt.Sprintf("executable %q not found", spec.Command)
			r.logger.Warn("executable not found", "command", spec.Command)
			return res
		}
		res.Err = fmt.Sprintf("start command: %v", err)
		return res
	}
	defer r.reap(cmd)

	waitErr := cmd.Wait()

	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.StdoutTruncated = stdout.Truncated()
	res.StderrTruncated = stderr.Truncated()
	res.ExitCode = exitCode(waitErr)

	switch {
	case ctx.Err() != nil:
		res.Status = StatusCancelled
		res.Err = "execution cancelled"
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.Status = StatusTimeout
		res.Err = fmt.Sprintf("timed out after %s", spec.Timeout)
	case waitErr == nil:
		res.Status = StatusSuccess
	default:
		res.Status = StatusError
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.Err = fmt.Sprintf("exit status %d", exitErr.ExitCode())
		} else {
			res.Err = waitErr.Error()
		}
	}

	r.logger.Debug("command finished",
		"command", spec.Command,
		"status", res.Status,
		"exit_code", res.ExitCode,
		"duration", res.Duration,
		"stdout_truncated", res.StdoutTruncated,
		"stderr_truncated", res.StderrTruncated,
	)
	return res
}

// reap kills and collects the process if it is somehow still alive. Calling
// it on an already-waited process is a no-op; it never panics and never
// blocks on a live wait.
func (r *Runner) reap(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil || cmd.ProcessState != nil {
		return
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		r.logger.Warn("reap kill failed", "pid", cmd.Process.Pid, "error", err)
	}
	_, _ = cmd.Process.Wait()
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

type captureBuffer struct {
	mu        sync.Mutex
	buf       []byte
	max       int
	truncated bool
}

func newCaptureBuffer(max int) *captureBuffer {
	return &captureBuffer{max: max}
}

// Write appends up to the configured limit and silently drops the rest,
// recording that truncation happened.
func (b *captureBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.max > 0 && len(b.buf) >= b.max {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil
	}
	if remaining := b.max - len(b.buf); b.max > 0 && len(p) > remaining {
		b.buf = append(b.buf, p[:remaining]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *captureBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

func (b *captureBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
