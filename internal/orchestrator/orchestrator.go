// Package orchestrator wraps moderation operations with the cross-cutting
// concerns the queue itself stays free of: two-phase audit logging, event
// emission, metrics, notifications, and error capture. It is the boundary
// that converts every failure into a Result; nothing above it should need
// to catch.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/captjreacher/pimp-my-brand/internal/access"
	"github.com/captjreacher/pimp-my-brand/internal/audit"
	"github.com/captjreacher/pimp-my-brand/internal/errs"
	"github.com/captjreacher/pimp-my-brand/internal/events"
	"github.com/captjreacher/pimp-my-brand/internal/metrics"
	"github.com/captjreacher/pimp-my-brand/internal/modqueue"
	"github.com/captjreacher/pimp-my-brand/internal/notify"
	"github.com/captjreacher/pimp-my-brand/internal/tracing"
)

// Action names used for audit records and operation events.
const (
	ActionModerateContent = "moderate_content"
	ActionEscalateContent = "escalate_content"
	ActionBulkModerate    = "bulk_moderate"
	ActionAutoFlag        = "auto_flag_content"
)

const defaultNotifyTimeout = 5 * time.Second

// OpFunc is one unit of work wrapped by Execute. It returns the operation's
// data, any non-fatal warnings, and an error.
type OpFunc func(ctx context.Context) (any, []string, error)

// Request describes the operation being wrapped.
type Request struct {
	Action     string
	ActorID    *string // nil = system action
	TargetType string
	TargetID   *string
	Details    map[string]string

	// Notify, when set, is delivered to the content owner after the
	// operation succeeds. Failures always alert admins instead.
	Notify *notify.UserNotification
}

// Result is the settled outcome of an orchestrated operation.
type Result struct {
	Success  bool
	Data     any
	Err      error
	Warnings []string
	AuditID  string
}

// UserError returns the safe user-facing message for the result's error,
// or "" on success.
func (r Result) UserError() string {
	return errs.UserMessage(r.Err)
}

// OperationEvent is the payload of "{action}:success" / "{action}:error"
// events.
type OperationEvent struct {
	Action   string
	ActorID  *string
	TargetID *string
	AuditID  string
	Error    string // empty on success
}

// Orchestrator wires the audit trail, event bus, notification dispatcher,
// queue and permission oracle together. Safe for concurrent use.
type Orchestrator struct {
	trail      *audit.Trail
	bus        *events.Bus
	dispatcher notify.Dispatcher
	queue      *modqueue.Queue
	acl        *access.Service

	mu     sync.Mutex
	checks []healthCheck

	notifyTimeout time.Duration
	checkTimeout  time.Duration
}

// New creates an Orchestrator. The dispatcher and permission oracle may be
// nil; notifications are then skipped and permission checks pass.
func New(trail *audit.Trail, bus *events.Bus, dispatcher notify.Dispatcher, queue *modqueue.Queue, acl *access.Service) *Orchestrator {
	return &Orchestrator{
		trail:         trail,
		bus:           bus,
		dispatcher:    dispatcher,
		queue:         queue,
		acl:           acl,
		notifyTimeout: defaultNotifyTimeout,
		checkTimeout:  healthCheckTimeout,
	}
}

// Execute runs fn wrapped with the full operation lifecycle: pre-action
// audit record, execution, outcome patch, event emission, and notification.
// It never panics upward; all failures are captured into the Result.
func (o *Orchestrator) Execute(ctx context.Context, req Request, fn OpFunc) Result {
	ctx, span := tracing.OperationSpan(ctx, req.Action)
	defer span.End()

	// The pre-action record captures intent before anything runs. If it
	// cannot be written the action must not run at all.
	auditID, err := o.trail.LogAction(ctx, req.ActorID, req.Action, req.TargetType, req.TargetID, req.Details)
	if err != nil {
		depErr := &errs.DependencyError{Service: "audit", Err: err}
		metrics.OperationsTotal.WithLabelValues(req.Action, "error").Inc()
		tracing.EndWithError(span, depErr)
		return Result{Err: depErr}
	}

	start := time.Now()
	data, warnings, opErr := runGuarded(ctx, fn)
	duration := time.Since(start)

	patch := audit.Result{Success: opErr == nil, DurationMS: duration.Milliseconds()}
	if opErr != nil {
		msg := opErr.Error()
		patch.ErrorMessage = &msg
	}
	if err := o.trail.UpdateActionResult(ctx, auditID, patch); err != nil {
		log.Error().Err(err).Str("audit_id", auditID).Msg("orchestrator: failed to patch audit result")
		warnings = append(warnings, "audit outcome was not recorded")
	}

	status := "success"
	errText := ""
	if opErr != nil {
		status = "error"
		errText = opErr.Error()
	}
	metrics.OperationsTotal.WithLabelValues(req.Action, status).Inc()
	metrics.OperationDuration.WithLabelValues(req.Action).Observe(duration.Seconds())

	o.bus.Emit(req.Action+":"+status, OperationEvent{
		Action:   req.Action,
		ActorID:  req.ActorID,
		TargetID: req.TargetID,
		AuditID:  auditID,
		Error:    errText,
	})

	o.notifyOutcome(req, auditID, opErr)

	tracing.EndWithError(span, opErr)

	return Result{
		Success:  opErr == nil,
		Data:     data,
		Err:      opErr,
		Warnings: warnings,
		AuditID:  auditID,
	}
}

// runGuarded invokes fn, converting a panic into an error so a broken
// operation can never take down the caller.
func runGuarded(ctx context.Context, fn OpFunc) (data any, warnings []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Msg("orchestrator: operation panicked")
			data, warnings = nil, nil
			err = fmt.Errorf("operation panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// notifyOutcome dispatches the post-settle notification without blocking
// the caller. Delivery failure is logged, never propagated.
func (o *Orchestrator) notifyOutcome(req Request, auditID string, opErr error) {
	if o.dispatcher == nil {
		return
	}

	if opErr != nil {
		targetID := ""
		if req.TargetID != nil {
			targetID = *req.TargetID
		}
		n := notify.AdminNotification{
			Subject: "Operation failed: " + req.Action,
			Message: opErr.Error(),
			Action:  req.Action,
			QueueID: targetID,
		}
		o.async(func(ctx context.Context) error {
			return o.dispatcher.SendAdminNotification(ctx, n)
		}, "admin")
		return
	}

	if req.Notify != nil {
		n := *req.Notify
		o.async(func(ctx context.Context) error {
			return o.dispatcher.SendUserNotification(ctx, n)
		}, "user")
	}
}

// async runs a notification send on its own goroutine with a bounded
// timeout, detached from the caller's context.
func (o *Orchestrator) async(send func(ctx context.Context) error, kind string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.notifyTimeout)
		defer cancel()
		if err := send(ctx); err != nil {
			log.Warn().Err(err).Str("kind", kind).Msg("orchestrator: notification delivery failed")
		}
	}()
}
