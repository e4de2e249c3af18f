package auth

import (
	"context"
)

// Notifier dispatches account emails. Callers treat every method as fire
// and forget: a failed delivery never rolls back the change that caused it.
type Notifier interface {
	// SendVerification delivers a numeric code or a verification link
	SendVerification(ctx context.Context, email, secretOrLink string) error
	SendWelcome(ctx context.Context, email string) error
	SendTerminationNotice(ctx context.Context, email, reason string) error
}

// LogNotifier writes notifications to the logger, meant for development
type LogNotifier struct {
	logger Logger
}

// NewLogNotifier returns a Notifier that only logs
func NewLogNotifier(logger Logger) *LogNotifier {
	return &LogNotifier{logger: normalizeLogger(logger)}
}

func (n *LogNotifier) SendVerification(_ context.Context, email, secretOrLink string) error {
	n.logger.Info("notification: verification", "email", email, "payload", secretOrLink)
	return nil
}

func (n *LogNotifier) SendWelcome(_ context.Context, email string) error {
	n.logger.Info("notification: welcome", "email", email)
	return nil
}

func (n *LogNotifier) SendTerminationNotice(_ context.Context, email, reason string) error {
	n.logger.Info("notification: termination", "email", email, "reason", reason)
	return nil
}

var _ Notifier = (*LogNotifier)(nil)

type nopNotifier struct{}

func (nopNotifier) SendVerification(context.Context, string, string) error { return nil }
func (nopNotifier) SendWelcome(context.Context, string) error              { return nil }
func (nopNotifier) SendTerminationNotice(context.Context, string, string) error {
	return nil
}

// NopNotifier drops every notification
func NopNotifier() Notifier { return nopNotifier{} }

// notify runs fn and logs a failure instead of returning it
func notify(logger Logger, kind, email string, fn func() error) {
	if err := fn(); err != nil {
		normalizeLogger(logger).Warn("notification dispatch failed", "kind", kind, "email", email, "error", err)
	}
}
