// Package errs defines the error taxonomy shared by the moderation pipeline.
// Expected failures are typed so callers can branch on them with errors.As;
// the orchestrator is the only layer that converts errors into results.
package errs

import (
	"errors"
	"fmt"
)

// ValidationError indicates a caller supplied invalid or missing input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error on " + e.Field + ": " + e.Message
}

// NotFoundError indicates a referenced entity does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return e.Kind + " not found: " + e.ID
}

// StateConflictError indicates an attempted transition out of a terminal
// state, or a lost optimistic-concurrency check.
type StateConflictError struct {
	Kind    string
	ID      string
	Current string
	Wanted  string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("state conflict on %s %s: cannot move from %q to %q", e.Kind, e.ID, e.Current, e.Wanted)
}

// DependencyError wraps a failure from an external collaborator
// (store, notification dispatcher, health probe).
type DependencyError struct {
	Service string
	Err     error
}

func (e *DependencyError) Error() string {
	return "dependency " + e.Service + " failed: " + e.Err.Error()
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

// PermissionDeniedError indicates the permission oracle rejected an actor
// for an administrative action.
type PermissionDeniedError struct {
	UserID     string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "user " + e.UserID + " lacks permission " + e.Permission
}

// AnalysisDegradedError signals that content text extraction failed and the
// analyzer returned a conservative zero-score result instead of propagating.
// It is recorded as a warning, never returned up the call stack.
type AnalysisDegradedError struct {
	Reason string
}

func (e *AnalysisDegradedError) Error() string {
	return "analysis degraded: " + e.Reason
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsStateConflict reports whether err is (or wraps) a StateConflictError.
func IsStateConflict(err error) bool {
	var sc *StateConflictError
	return errors.As(err, &sc)
}

// IsPermissionDenied reports whether err is (or wraps) a PermissionDeniedError.
func IsPermissionDenied(err error) bool {
	var pd *PermissionDeniedError
	return errors.As(err, &pd)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UserMessage maps any pipeline error to a message safe to show a non-admin
// user. Raw dependency error text is never surfaced.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return "Invalid request: " + ve.Message
	}

	var nf *NotFoundError
	if errors.As(err, &nf) {
		return "The requested " + nf.Kind + " could not be found."
	}

	var sc *StateConflictError
	if errors.As(err, &sc) {
		return "This item has already been handled by another moderator."
	}

	var pd *PermissionDeniedError
	if errors.As(err, &pd) {
		return "You do not have permission to perform this action."
	}

	var ad *AnalysisDegradedError
	if errors.As(err, &ad) {
		return "Content analysis is temporarily degraded. The item was queued for manual review."
	}

	return "Something went wrong. Please try again later."
}
