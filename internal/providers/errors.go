package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind categorizes a backend failure. The gateway maps each kind to an HTTP
// status and the worker uses it to decide whether a job can be retried.
type Kind string

const (
	// KindClient indicates the request itself was rejected, an unknown
	// backend name included (HTTP 400). Nothing was spawned.
	KindClient Kind = "client"

	// KindNotFound indicates the backend's executable is missing from the
	// host (HTTP 500, a deployment problem rather than a caller problem).
	KindNotFound Kind = "not_found"

	// KindTimeout indicates the backend exceeded its deadline (HTTP 504).
	KindTimeout Kind = "timeout"

	// KindExecution indicates the backend ran and failed (HTTP 502).
	KindExecution Kind = "execution"

	// KindCancelled indicates the caller abandoned the request.
	KindCancelled Kind = "cancelled"
)

// Sentinel errors for errors.Is matching. Every *Error matches exactly one
// of these through its Kind.
var (
	ErrClient    = errors.New("invalid request")
	ErrNotFound  = errors.New("backend executable not found")
	ErrTimeout   = errors.New("backend timed out")
	ErrExecution = errors.New("backend execution failed")
	ErrCancelled = errors.New("request cancelled")
)

// Error is the structured failure every backend returns. It captures the
// context needed to pick an HTTP status, log the failure, and scan for
// rate-limit signatures.
type Error struct {
	// Kind categorizes the failure.
	Kind Kind

	// Backend is the backend identifier (e.g. "codex", "openai").
	Backend string

	// Message is the human-readable description.
	Message string

	// ExitCode is the subprocess exit code for CLI backends, when known.
	ExitCode int

	// Stdout and Stderr hold captured subprocess output for diagnostics
	// and for rate-limit signature scanning.
	Stdout string
	Stderr string

	// Timeout is the deadline that was exceeded, for timeout errors.
	Timeout time.Duration

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s]", e.Kind))

	if e.Backend != "" {
		parts = append(parts, e.Backend)
	}

	if e.ExitCode != 0 {
		parts = append(parts, fmt.Sprintf("exit=%d", e.ExitCode))
	}

	if e.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("timeout=%s", e.Timeout))
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel matching this error's kind, so
// errors.Is(err, ErrTimeout) works across wrapping.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrClient:
		return e.Kind == KindClient
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrExecution:
		return e.Kind == KindExecution
	case ErrCancelled:
		return e.Kind == KindCancelled
	}
	return false
}

// NewClientError reports a request the backend refused to run.
func NewClientError(backend, format string, args ...any) *Error {
	return &Error{
		Kind:    KindClient,
		Backend: backend,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewUnknownBackend reports a backend identifier with no registration. It is
// a client error: the request named a model the gateway does not serve.
func NewUnknownBackend(backend string, available []string) *Error {
	return &Error{
		Kind:    KindClient,
		Backend: backend,
		Message: fmt.Sprintf("unknown backend %q, supported backends: %s", backend, strings.Join(available, ", ")),
	}
}

// NewBackendNotFound reports a backend whose executable is missing.
func NewBackendNotFound(backend, command string, cause error) *Error {
	return &Error{
		Kind:    KindNotFound,
		Backend: backend,
		Message: fmt.Sprintf("command %q not found", command),
		Cause:   cause,
	}
}

// NewBackendTimeout reports a backend that exceeded its deadline.
func NewBackendTimeout(backend string, timeout time.Duration) *Error {
	return &Error{
		Kind:    KindTimeout,
		Backend: backend,
		Message: fmt.Sprintf("timed out after %s", timeout),
		Timeout: timeout,
	}
}

// NewExecutionError reports a backend that ran and failed.
func NewExecutionError(backend, message string, cause error) *Error {
	return &Error{
		Kind:    KindExecution,
		Backend: backend,
		Message: message,
		Cause:   cause,
	}
}

// NewCancelled reports a request abandoned by its caller.
func NewCancelled(backend string, cause error) *Error {
	return &Error{
		Kind:    KindCancelled,
		Backend: backend,
		Message: "request cancelled",
		Cause:   cause,
	}
}

// WithExitCode records the subprocess exit code.
func (e *Error) WithExitCode(code int) *Error {
	e.ExitCode = code
	return e
}

// WithOutput records the captured subprocess streams.
func (e *Error) WithOutput(stdout, stderr string) *Error {
	e.Stdout = stdout
	e.Stderr = stderr
	return e
}

// CombinedOutput concatenates the error text with both captured streams.
// The worker scans this for rate-limit signatures.
func (e *Error) CombinedOutput() string {
	var b strings.Builder
	b.WriteString(e.Error())
	if e.Stdout != "" {
		b.WriteString("\n")
		b.WriteString(e.Stdout)
	}
	if e.Stderr != "" {
		b.WriteString("\n")
		b.WriteString(e.Stderr)
	}
	return b.String()
}

// AsError extracts a *Error from err, building an execution error around
// unstructured failures so callers always see the structured form.
func AsError(backend string, err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	if errors.Is(err, context.Canceled) {
		return NewCancelled(backend, err)
	}
	return NewExecutionError(backend, err.Error(), err)
}

// hostedError maps a hosted-API failure onto the taxonomy. Deadline
// expiration becomes a backend timeout so both backend variants report
// timeouts the same way.
func hostedError(backend string, timeout time.Duration, err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewBackendTimeout(backend, timeout)
	case errors.Is(err, context.Canceled):
		return NewCancelled(backend, err)
	}
	return NewExecutionError(backend, err.Error(), err)
}
