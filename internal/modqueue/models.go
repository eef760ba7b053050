// Package modqueue holds flagged content pending a moderation decision.
// Items move through a small state machine: pending content is approved,
// rejected, or escalated; escalated items await a senior moderator; the
// approved and rejected states are terminal. Items are never hard-deleted,
// they are retained for audit.
package modqueue

import (
	"time"

	"github.com/captjreacher/pimp-my-brand/internal/content"
)

// Status is the moderation state of a queue item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusEscalated Status = "escalated"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusEscalated:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Priority bounds. EscalatedPriority is forced on every escalation.
const (
	MinPriority       = 1
	MaxPriority       = 5
	EscalatedPriority = 5
	HighPriorityFloor = 4
)

// Item is one entry in the moderation queue.
type Item struct {
	ID              string            `json:"id"`
	ContentType     content.Type      `json:"content_type"`
	ContentID       string            `json:"content_id"`
	UserID          string            `json:"user_id"`
	FlaggedBy       *string           `json:"flagged_by"` // nil = system auto-flag
	FlagReason      string            `json:"flag_reason"`
	Status          Status            `json:"status"`
	Priority        int               `json:"priority"` // 1-5, 5 highest
	RiskScore       float64           `json:"risk_score"`
	ModeratorID     *string           `json:"moderator_id,omitempty"`
	ModeratorNotes  *string           `json:"moderator_notes,omitempty"`
	AutoFlagged     bool              `json:"auto_flagged"`
	FlaggingDetails map[string]string `json:"flagging_details,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// FlagOptions carries the optional fields of a flag call.
type FlagOptions struct {
	FlaggedBy   *string // nil means the system flagged it
	Reason      string
	RiskScore   float64
	Priority    int // 0 derives priority from the risk score
	AutoFlagged bool
	Details     map[string]string
}

// PriorityForScore derives a 1-5 priority from a 0-100 risk score.
func PriorityForScore(score float64) int {
	p := int(score)/20 + 1
	if p > MaxPriority {
		p = MaxPriority
	}
	if p < MinPriority {
		p = MinPriority
	}
	return p
}

// BulkResult reports the mixed outcome of a bulk moderation call.
type BulkResult struct {
	Success []string `json:"success"`
	Failed  []string `json:"failed"`
}

// Stats aggregates queue health numbers for the moderator dashboard.
type Stats struct {
	CountsByStatus      map[Status]int `json:"counts_by_status"`
	ProcessedToday      int            `json:"processed_today"`
	AvgModerationHours  float64        `json:"avg_moderation_hours"`
	HighPriorityPending int            `json:"high_priority_pending"`
}
