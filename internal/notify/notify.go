// Package notify delivers out-of-band operator messages, such as the worker's
// rate-limit warnings. Delivery failures are logged by callers, never fatal.
package notify

import "context"

// Notifier sends a short text message to the configured destination.
// Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Noop discards all messages. It is the default when no notifier is
// configured.
type Noop struct{}

func (Noop) Notify(context.Context, string) error { return nil }
