package orchestrator

import (
	"context"
	"strconv"
	"sync"

	"github.com/captjreacher/pimp-my-brand/internal/access"
	"github.com/captjreacher/pimp-my-brand/internal/errs"
	"github.com/captjreacher/pimp-my-brand/internal/events"
	"github.com/captjreacher/pimp-my-brand/internal/modqueue"
	"github.com/captjreacher/pimp-my-brand/internal/notify"
)

// requirePermission consults the permission oracle. With no roster
// configured the oracle is disabled and every action is allowed.
func (o *Orchestrator) requirePermission(userID string, perm access.Permission) error {
	if o.acl == nil || !o.acl.IsEnabled() {
		return nil
	}
	if !o.acl.HasPermission(userID, perm) {
		return &errs.PermissionDeniedError{UserID: userID, Permission: string(perm)}
	}
	return nil
}

// ModerateContent applies a moderator decision to a queue item, wrapped
// with the full audit/event/notification lifecycle.
func (o *Orchestrator) ModerateContent(ctx context.Context, queueID, moderatorID string, status modqueue.Status, notes string) Result {
	req := Request{
		Action:     ActionModerateContent,
		ActorID:    &moderatorID,
		TargetType: "queue_item",
		TargetID:   &queueID,
		Details: map[string]string{
			"status": string(status),
			"notes":  notes,
		},
	}

	res := o.Execute(ctx, req, func(ctx context.Context) (any, []string, error) {
		if err := o.requirePermission(moderatorID, access.PermissionModerateContent); err != nil {
			return nil, nil, err
		}
		item, err := o.queue.ModerateContent(ctx, queueID, moderatorID, status, notes)
		if err != nil {
			return nil, nil, err
		}
		return item, nil, nil
	})

	if res.Success {
		item := res.Data.(*modqueue.Item)
		o.bus.Emit(events.ContentModerated, item)
		o.notifyDecision(item)
	}
	return res
}

// EscalateContent raises a queue item to senior review at top priority.
func (o *Orchestrator) EscalateContent(ctx context.Context, queueID, moderatorID, reason string) Result {
	req := Request{
		Action:     ActionEscalateContent,
		ActorID:    &moderatorID,
		TargetType: "queue_item",
		TargetID:   &queueID,
		Details: map[string]string{
			"reason": reason,
		},
	}

	res := o.Execute(ctx, req, func(ctx context.Context) (any, []string, error) {
		if err := o.requirePermission(moderatorID, access.PermissionEscalateContent); err != nil {
			return nil, nil, err
		}
		item, err := o.queue.EscalateContent(ctx, queueID, moderatorID, reason)
		if err != nil {
			return nil, nil, err
		}
		return item, nil, nil
	})

	if res.Success {
		item := res.Data.(*modqueue.Item)
		o.bus.Emit(events.ContentEscalated, item)
		if o.dispatcher != nil {
			n := notify.AdminNotification{
				Subject: "Content escalated for senior review",
				Message: reason,
				Action:  ActionEscalateContent,
				QueueID: item.ID,
			}
			o.async(func(ctx context.Context) error {
				return o.dispatcher.SendAdminNotification(ctx, n)
			}, "admin")
		}
	}
	return res
}

// BulkModerate applies one decision to many queue items in bounded-parallel
// chunks. Items fail independently; the Result data is a
// modqueue.BulkResult and partial failure surfaces as a warning, not an
// overall error.
func (o *Orchestrator) BulkModerate(ctx context.Context, queueIDs []string, moderatorID string, status modqueue.Status, notes string, batchSize int) Result {
	req := Request{
		Action:     ActionBulkModerate,
		ActorID:    &moderatorID,
		TargetType: "queue_item",
		Details: map[string]string{
			"status": string(status),
			"count":  strconv.Itoa(len(queueIDs)),
		},
	}

	return o.Execute(ctx, req, func(ctx context.Context) (any, []string, error) {
		if err := o.requirePermission(moderatorID, access.PermissionBulkModerate); err != nil {
			return nil, nil, err
		}

		var mu sync.Mutex
		result := modqueue.BulkResult{}
		summary := ExecuteBatch(ctx, queueIDs, func(ctx context.Context, id string) error {
			item, err := o.queue.ModerateContent(ctx, id, moderatorID, status, notes)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, id)
				return err
			}
			result.Success = append(result.Success, id)
			o.bus.Emit(events.ContentModerated, item)
			return nil
		}, batchSize)

		return result, summary.Warnings, nil
	})
}

// notifyDecision tells the content owner about a terminal decision.
func (o *Orchestrator) notifyDecision(item *modqueue.Item) {
	if o.dispatcher == nil || !item.Status.Terminal() {
		return
	}

	n := notify.UserNotification{
		UserID:  item.UserID,
		Subject: "Your content has been reviewed",
	}
	switch item.Status {
	case modqueue.StatusApproved:
		n.Message = "Your content was reviewed and approved."
	case modqueue.StatusRejected:
		n.Message = "Your content was reviewed and removed for violating our guidelines."
	}

	o.async(func(ctx context.Context) error {
		return o.dispatcher.SendUserNotification(ctx, n)
	}, "user")
}
