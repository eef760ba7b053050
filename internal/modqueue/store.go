package modqueue

import (
	"context"
	"time"

	"github.com/captjreacher/pimp-my-brand/internal/content"
)

// SortField selects the ordering column for queue listings.
type SortField string

const (
	SortByCreatedAt SortField = "created_at"
	SortByUpdatedAt SortField = "updated_at"
	SortByPriority  SortField = "priority"
	SortByRiskScore SortField = "risk_score"
)

// ListFilter narrows and orders queue listings. The zero value lists
// everything in the default moderator-review order: priority descending,
// then created_at descending.
type ListFilter struct {
	Statuses      []Status
	ContentType   content.Type
	MinPriority   int
	MinRiskScore  float64
	CreatedAfter  time.Time
	CreatedBefore time.Time
	UpdatedAfter  time.Time

	SortBy   SortField // empty = default review order
	SortAsc  bool
	Limit    int
	Offset   int
}

// ItemUpdate is the mutation applied by a state transition.
type ItemUpdate struct {
	Status         Status
	Priority       *int
	ModeratorID    *string
	ModeratorNotes *string
}

// Store is the persistence interface for queue items. Implementations must
// be safe for concurrent use.
//
// TransitionItem is the optimistic-concurrency guard: the status check and
// the write happen atomically at the store layer, so two racing moderators
// cannot both transition the same item.
type Store interface {
	CreateItem(ctx context.Context, item Item) error
	GetItem(ctx context.Context, id string) (*Item, error)
	TransitionItem(ctx context.Context, id string, allowedFrom []Status, update ItemUpdate) (*Item, error)
	ListItems(ctx context.Context, filter ListFilter) ([]Item, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}
