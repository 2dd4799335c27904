package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestErrorSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		sentinel error
		others   []error
	}{
		{
			name:     "client",
			err:      NewClientError("codex", "bad request"),
			sentinel: ErrClient,
			others:   []error{ErrTimeout, ErrExecution, ErrNotFound, ErrCancelled},
		},
		{
			name:     "unknown backend is a client error",
			err:      NewUnknownBackend("copilot", []string{"codex", "gemini"}),
			sentinel: ErrClient,
			others:   []error{ErrNotFound},
		},
		{
			name:     "not found",
			err:      NewBackendNotFound("codex", "codex", errors.New("exec: not found")),
			sentinel: ErrNotFound,
			others:   []error{ErrClient, ErrExecution},
		},
		{
			name:     "timeout",
			err:      NewBackendTimeout("opencode", 300*time.Second),
			sentinel: ErrTimeout,
			others:   []error{ErrExecution},
		},
		{
			name:     "execution",
			err:      NewExecutionError("cursor", "exited with code 1", nil),
			sentinel: ErrExecution,
			others:   []error{ErrTimeout, ErrCancelled},
		},
		{
			name:     "cancelled",
			err:      NewCancelled("codex", context.Canceled),
			sentinel: ErrCancelled,
			others:   []error{ErrExecution},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, sentinel) = false", tt.err)
			}
			wrapped := fmt.Errorf("execute: %w", tt.err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("sentinel match lost through wrapping")
			}
			for _, other := range tt.others {
				if errors.Is(tt.err, other) {
					t.Errorf("errors.Is(%v, %v) = true, want false", tt.err, other)
				}
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := NewExecutionError("codex", "exited with code 2", nil).
		WithExitCode(2).
		WithOutput("partial", "boom")

	msg := err.Error()
	for _, want := range []string{"[execution]", "codex", "exit=2", "exited with code 2"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestErrorTimeoutMessage(t *testing.T) {
	err := NewBackendTimeout("gemini", 5*time.Second)
	msg := err.Error()
	for _, want := range []string{"[timeout]", "gemini", "timeout=5s"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
	if err.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", err.Timeout)
	}
}

func TestUnknownBackendListsSupported(t *testing.T) {
	err := NewUnknownBackend("copilot", []string{"codex", "cursor", "gemini"})
	msg := err.Error()
	for _, want := range []string{"copilot", "codex", "cursor", "gemini"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestCombinedOutput(t *testing.T) {
	err := NewExecutionError("codex", "exited with code 1", nil).
		WithOutput("stdout says 429", "stderr says RESOURCE_EXHAUSTED")

	combined := err.CombinedOutput()
	if !strings.Contains(combined, "429") {
		t.Errorf("CombinedOutput missing stdout content: %q", combined)
	}
	if !strings.Contains(combined, "RESOURCE_EXHAUSTED") {
		t.Errorf("CombinedOutput missing stderr content: %q", combined)
	}
}

func TestAsError(t *testing.T) {
	t.Run("passes through structured errors", func(t *testing.T) {
		orig := NewBackendTimeout("codex", time.Second)
		got := AsError("codex", fmt.Errorf("wrapped: %w", orig))
		if got != orig {
			t.Errorf("AsError rebuilt an already structured error")
		}
	})

	t.Run("maps cancellation", func(t *testing.T) {
		got := AsError("codex", context.Canceled)
		if got.Kind != KindCancelled {
			t.Errorf("Kind = %q, want %q", got.Kind, KindCancelled)
		}
	})

	t.Run("wraps plain errors as execution", func(t *testing.T) {
		got := AsError("codex", errors.New("boom"))
		if got.Kind != KindExecution {
			t.Errorf("Kind = %q, want %q", got.Kind, KindExecution)
		}
		if got.Backend != "codex" {
			t.Errorf("Backend = %q, want codex", got.Backend)
		}
	})
}

func TestHostedError(t *testing.T) {
	t.Run("deadline becomes timeout", func(t *testing.T) {
		got := hostedError("openai", 2*time.Minute, fmt.Errorf("call: %w", context.DeadlineExceeded))
		if !errors.Is(got, ErrTimeout) {
			t.Errorf("got %v, want timeout", got)
		}
		if got.Timeout != 2*time.Minute {
			t.Errorf("Timeout = %v, want 2m", got.Timeout)
		}
	})

	t.Run("cancellation passes through", func(t *testing.T) {
		got := hostedError("openai", time.Minute, context.Canceled)
		if !errors.Is(got, ErrCancelled) {
			t.Errorf("got %v, want cancelled", got)
		}
	})

	t.Run("api errors become execution errors", func(t *testing.T) {
		got := hostedError("anthropic", time.Minute, errors.New("status 429: rate limited"))
		if !errors.Is(got, ErrExecution) {
			t.Errorf("got %v, want execution", got)
		}
		if !strings.Contains(got.Error(), "429") {
			t.Errorf("Error() = %q, missing api detail", got.Error())
		}
	})
}
