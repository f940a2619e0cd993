// Package notify delivers the completion notice for a finished lead to the
// sales channel.
package notify

import (
	"context"
	"log/slog"
)

// Notifier sends the completion notice for a lead record. The boolean result
// is the ordinary success flag; an error indicates a transport failure. Both
// negative outcomes are treated the same by callers for retry purposes.
type Notifier interface {
	SendCompletionNotice(ctx context.Context, recordID string) (bool, error)
}

// LogNotifier is a stand-in notifier that only logs. Used when no Twilio
// credentials are configured, so local runs work end to end.
type LogNotifier struct{}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

// SendCompletionNotice logs the notice and reports success.
func (n *LogNotifier) SendCompletionNotice(ctx context.Context, recordID string) (bool, error) {
	slog.Info("LogNotifier.SendCompletionNotice: completion notice (log only)", "recordID", recordID)
	return true, nil
}
