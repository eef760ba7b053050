// Package audit provides the append-only trail of administrative actions.
// Every action is written in two phases: a pre-action record capturing
// intent, then a single post-completion patch attaching the outcome. An
// entry that never received its patch marks an operation that crashed
// mid-flight and is surfaced through ListIncomplete.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Entry is one audit record. Append-only: the only permitted mutation is
// the single outcome patch.
type Entry struct {
	ID           string            `json:"id"`
	ActorID      *string           `json:"actor_id"` // nil = system action
	ActionType   string            `json:"action_type"`
	TargetType   string            `json:"target_type"`
	TargetID     *string           `json:"target_id,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
	Success      *bool             `json:"success,omitempty"` // nil until patched
	DurationMS   int64             `json:"duration_ms,omitempty"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Completed reports whether the entry received its outcome patch.
func (e *Entry) Completed() bool {
	return e.Success != nil
}

// Result is the outcome attached to an entry after the wrapped action
// settles.
type Result struct {
	Success      bool
	DurationMS   int64
	ErrorMessage *string
}

// ListFilter narrows and paginates audit listings.
type ListFilter struct {
	ActorID    string
	ActionType string
	TargetType string
	TargetID   string
	Since      time.Time
	Until      time.Time
	Limit      int
	Offset     int
}

// Store is the persistence interface for audit entries.
// Implementations must be safe for concurrent use.
type Store interface {
	AppendEntry(ctx context.Context, entry Entry) error
	PatchResult(ctx context.Context, entryID string, result Result) error
	GetEntry(ctx context.Context, entryID string) (*Entry, error)
	ListEntries(ctx context.Context, filter ListFilter) ([]Entry, error)
	ListIncomplete(ctx context.Context, olderThan time.Duration) ([]Entry, error)
}

// Trail is the single writer of audit entries. All other components
// request writes through it.
type Trail struct {
	store Store
}

// NewTrail creates a Trail over the given store.
func NewTrail(store Store) *Trail {
	return &Trail{store: store}
}

// LogAction writes the pre-action record and returns its id. Written
// before the action executes so intent survives a crash.
func (t *Trail) LogAction(ctx context.Context, actorID *string, actionType, targetType string, targetID *string, details map[string]string) (string, error) {
	entry := Entry{
		ID:         uuid.NewString(),
		ActorID:    actorID,
		ActionType: actionType,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    details,
		CreatedAt:  time.Now().UTC(),
	}

	if err := t.store.AppendEntry(ctx, entry); err != nil {
		return "", fmt.Errorf("failed to append audit entry: %w", err)
	}

	log.Debug().
		Str("audit_id", entry.ID).
		Str("action", actionType).
		Str("target_type", targetType).
		Msg("audit: action recorded")

	return entry.ID, nil
}

// UpdateActionResult attaches the outcome to a previously logged entry.
// Called exactly once per entry, after the wrapped action settles.
func (t *Trail) UpdateActionResult(ctx context.Context, entryID string, result Result) error {
	if err := t.store.PatchResult(ctx, entryID, result); err != nil {
		return fmt.Errorf("failed to patch audit result: %w", err)
	}
	return nil
}

// GetEntry retrieves a single entry by id.
func (t *Trail) GetEntry(ctx context.Context, entryID string) (*Entry, error) {
	return t.store.GetEntry(ctx, entryID)
}

// List returns entries matching the filter, newest first.
func (t *Trail) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	return t.store.ListEntries(ctx, filter)
}

// ListIncomplete returns entries old enough that they should have been
// patched by now. Each one is evidence of an operation that crashed
// between the two write phases.
func (t *Trail) ListIncomplete(ctx context.Context, olderThan time.Duration) ([]Entry, error) {
	return t.store.ListIncomplete(ctx, olderThan)
}
