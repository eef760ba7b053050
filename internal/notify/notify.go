// Package notify defines the fire-and-forget notification interface used
// by the orchestrator. Delivery (email, push) is owned by another service;
// the pipeline only hands messages over and logs failures.
package notify

import (
	"context"

	"github.com/rs/zerolog/log"
)

// AdminNotification alerts the moderation team about a pipeline event.
type AdminNotification struct {
	Subject string
	Message string
	Action  string
	QueueID string
}

// UserNotification tells a content owner about a decision on their content.
type UserNotification struct {
	UserID  string
	Subject string
	Message string
}

// Dispatcher sends notifications. Outcomes are not awaited beyond logging
// failure; a broken dispatcher must never fail a moderation action.
type Dispatcher interface {
	SendAdminNotification(ctx context.Context, n AdminNotification) error
	SendUserNotification(ctx context.Context, n UserNotification) error
}

// Pinger is implemented by dispatchers whose delivery backend can be
// reachability-checked without sending anything. Health probes must use
// this, never a real notification.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LogDispatcher writes notifications to the structured log. Used in
// development and as a safe default when no delivery backend is wired.
type LogDispatcher struct{}

// NewLogDispatcher returns a Dispatcher backed by zerolog.
func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{}
}

func (d *LogDispatcher) SendAdminNotification(ctx context.Context, n AdminNotification) error {
	log.Info().
		Str("subject", n.Subject).
		Str("action", n.Action).
		Str("queue_id", n.QueueID).
		Msg("notify: admin notification")
	return nil
}

func (d *LogDispatcher) SendUserNotification(ctx context.Context, n UserNotification) error {
	log.Info().
		Str("user_id", n.UserID).
		Str("subject", n.Subject).
		Msg("notify: user notification")
	return nil
}

// Ping always succeeds; the log is assumed writable.
func (d *LogDispatcher) Ping(ctx context.Context) error {
	return nil
}
