package modqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/captjreacher/pimp-my-brand/internal/content"
	"github.com/captjreacher/pimp-my-brand/internal/errs"
)

// Queue is the moderation queue service. It owns the item lifecycle and
// nothing else: audit logging and notifications are the orchestrator's
// concern, keeping the queue free of cross-cutting dependencies.
type Queue struct {
	store Store
}

// NewQueue creates a Queue over the given store.
func NewQueue(store Store) *Queue {
	return &Queue{store: store}
}

// FlagContent creates a pending queue item for the given content. Duplicate
// flags for the same content create additional entries; each moderation
// event is tracked separately, and callers needing deduplication must check
// moderation history first.
func (q *Queue) FlagContent(ctx context.Context, contentType content.Type, contentID, userID string, opts FlagOptions) (*Item, error) {
	if !contentType.Valid() {
		return nil, &errs.ValidationError{Field: "content_type", Message: fmt.Sprintf("unknown content type %q", contentType)}
	}
	if contentID == "" {
		return nil, &errs.ValidationError{Field: "content_id", Message: "content id is required"}
	}
	if userID == "" {
		return nil, &errs.ValidationError{Field: "user_id", Message: "user id is required"}
	}
	if opts.RiskScore < 0 || opts.RiskScore > 100 {
		return nil, &errs.ValidationError{Field: "risk_score", Message: "risk score must be within [0,100]"}
	}

	priority := opts.Priority
	if priority == 0 {
		priority = PriorityForScore(opts.RiskScore)
	}
	if priority < MinPriority || priority > MaxPriority {
		return nil, &errs.ValidationError{Field: "priority", Message: fmt.Sprintf("priority must be within [%d,%d]", MinPriority, MaxPriority)}
	}

	now := time.Now().UTC()
	item := Item{
		ID:              uuid.NewString(),
		ContentType:     contentType,
		ContentID:       contentID,
		UserID:          userID,
		FlaggedBy:       opts.FlaggedBy,
		FlagReason:      opts.Reason,
		Status:          StatusPending,
		Priority:        priority,
		RiskScore:       opts.RiskScore,
		AutoFlagged:     opts.AutoFlagged,
		FlaggingDetails: opts.Details,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := q.store.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create queue item: %w", err)
	}

	log.Info().
		Str("queue_id", item.ID).
		Str("content_type", string(contentType)).
		Str("content_id", contentID).
		Int("priority", priority).
		Bool("auto_flagged", opts.AutoFlagged).
		Msg("modqueue: content flagged")

	return &item, nil
}

// ModerateContent transitions an item to approved, rejected, or escalated.
// An item already in a terminal state yields a StateConflictError; the check
// and write are atomic at the store layer, so racing calls against the same
// item resolve to exactly one winner.
func (q *Queue) ModerateContent(ctx context.Context, queueID, moderatorID string, newStatus Status, notes string) (*Item, error) {
	if moderatorID == "" {
		return nil, &errs.ValidationError{Field: "moderator_id", Message: "moderator id is required"}
	}
	if !newStatus.Valid() || newStatus == StatusPending {
		return nil, &errs.ValidationError{Field: "status", Message: fmt.Sprintf("invalid moderation status %q", newStatus)}
	}

	update := ItemUpdate{
		Status:      newStatus,
		ModeratorID: &moderatorID,
	}
	if notes != "" {
		update.ModeratorNotes = &notes
	}
	if newStatus == StatusEscalated {
		p := EscalatedPriority
		update.Priority = &p
	}

	item, err := q.store.TransitionItem(ctx, queueID, []Status{StatusPending, StatusEscalated}, update)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("queue_id", queueID).
		Str("moderator_id", moderatorID).
		Str("status", string(newStatus)).
		Msg("modqueue: item moderated")

	return item, nil
}

// EscalateContent forces an item to maximum priority for senior review.
// Allowed from pending or escalated only.
func (q *Queue) EscalateContent(ctx context.Context, queueID, moderatorID, reason string) (*Item, error) {
	if reason == "" {
		return nil, &errs.ValidationError{Field: "reason", Message: "escalation reason is required"}
	}
	return q.ModerateContent(ctx, queueID, moderatorID, StatusEscalated, reason)
}

// BulkModerate applies ModerateContent to each id independently. One item's
// failure never aborts the rest; the mixed outcome is reported as one
// combined result.
func (q *Queue) BulkModerate(ctx context.Context, queueIDs []string, moderatorID string, newStatus Status, notes string) BulkResult {
	var result BulkResult
	for _, id := range queueIDs {
		if _, err := q.ModerateContent(ctx, id, moderatorID, newStatus, notes); err != nil {
			log.Warn().Err(err).Str("queue_id", id).Msg("modqueue: bulk item failed")
			result.Failed = append(result.Failed, id)
			continue
		}
		result.Success = append(result.Success, id)
	}
	return result
}

// GetItem retrieves one item by id.
func (q *Queue) GetItem(ctx context.Context, queueID string) (*Item, error) {
	item, err := q.store.GetItem(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, &errs.NotFoundError{Kind: "queue item", ID: queueID}
	}
	return item, nil
}

// List returns items matching the filter. With no explicit sort, items come
// back in review order: highest priority first, freshest first within a
// priority.
func (q *Queue) List(ctx context.Context, filter ListFilter) ([]Item, error) {
	return q.store.ListItems(ctx, filter)
}

// GetStats aggregates queue counts, today's processed volume, the average
// time from flag to terminal decision, and the high-priority backlog.
func (q *Queue) GetStats(ctx context.Context) (*Stats, error) {
	counts, err := q.store.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue items: %w", err)
	}

	terminal, err := q.store.ListItems(ctx, ListFilter{
		Statuses: []Status{StatusApproved, StatusRejected},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list terminal items: %w", err)
	}

	stats := &Stats{CountsByStatus: counts}

	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	var totalHours float64
	for _, item := range terminal {
		totalHours += item.UpdatedAt.Sub(item.CreatedAt).Hours()
		if !item.UpdatedAt.Before(midnight) {
			stats.ProcessedToday++
		}
	}
	if len(terminal) > 0 {
		stats.AvgModerationHours = totalHours / float64(len(terminal))
	}

	highPriority, err := q.store.ListItems(ctx, ListFilter{
		Statuses:    []Status{StatusPending},
		MinPriority: HighPriorityFloor,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list high-priority items: %w", err)
	}
	stats.HighPriorityPending = len(highPriority)

	return stats, nil
}
