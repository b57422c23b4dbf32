// Package notify delivers out-of-band notifications. Delivery is fire and
// forget: callers enqueue and move on, and failures are only logged.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Event kinds.
const (
	KindUserJoined       = "user_joined"
	KindUserKicked       = "user_kicked"
	KindPaymentSent      = "payment_sent"
	KindPaymentConfirmed = "payment_confirmed"
	KindRunStatusChanged = "run_status_changed"
	KindRunCancelled     = "run_cancelled"
)

// Event is a notification addressed to one user.
type Event struct {
	UserID  int64          `json:"user_id"`
	Kind    string         `json:"kind"`
	RunID   int64          `json:"run_id,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
	At      time.Time      `json:"at"`
}

// Sender delivers a single event.
type Sender interface {
	Send(ctx context.Context, e Event) error
}

// Notifier accepts events without blocking the caller.
type Notifier interface {
	Notify(e Event)
}

// LogSender writes events to the structured log. It is the default sender
// when no broker is configured.
type LogSender struct{}

// Send implements Sender.
func (LogSender) Send(_ context.Context, e Event) error {
	slog.Info("notification", "user", e.UserID, "kind", e.Kind, "run", e.RunID, "payload", e.Payload)
	return nil
}

// Discard drops every event.
type Discard struct{}

// Notify implements Notifier.
func (Discard) Notify(Event) {}
