// Package notify publishes account lifecycle events to downstream channels.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/karoba/wellness/internal/domain"
)

// Notifier delivers an account event.
type Notifier interface {
	Notify(ctx context.Context, event domain.AccountEvent) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event domain.AccountEvent) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, event domain.AccountEvent) error {
	return f(ctx, event)
}

// Log writes events to a structured logger.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a Notifier that only logs.
func NewLog(logger *slog.Logger) Log {
	return Log{logger: logger}
}

// Notify logs the event.
func (l Log) Notify(ctx context.Context, event domain.AccountEvent) error {
	l.logger.InfoContext(ctx, "account event", "type", event.Type, "user_id", event.AccountID)
	return nil
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

// Notify delivers to all members even if some fail.
func (m Multi) Notify(ctx context.Context, event domain.AccountEvent) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
