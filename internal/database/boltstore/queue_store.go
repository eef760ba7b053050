package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/captjreacher/pimp-my-brand/internal/errs"
	"github.com/captjreacher/pimp-my-brand/internal/modqueue"
)

// QueueStore provides persistent storage for moderation queue items.
type QueueStore struct {
	db *bolt.DB
}

func queueStatusKey(status modqueue.Status, id string) []byte {
	return []byte(string(status) + ":" + id)
}

// CreateItem stores a new queue item and its status index entry.
func (s *QueueStore) CreateItem(ctx context.Context, item modqueue.Item) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketQueueItems)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", BucketQueueItems)
		}

		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal queue item: %w", err)
		}

		if err := bucket.Put([]byte(item.ID), data); err != nil {
			return err
		}

		index := tx.Bucket(BucketQueueByStatus)
		if index == nil {
			return fmt.Errorf("bucket not found: %s", BucketQueueByStatus)
		}
		return index.Put(queueStatusKey(item.Status, item.ID), []byte(item.ID))
	})
}

// GetItem retrieves a queue item by id. Returns (nil, nil) when absent.
func (s *QueueStore) GetItem(ctx context.Context, id string) (*modqueue.Item, error) {
	var item *modqueue.Item

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketQueueItems)
		if bucket == nil {
			return nil
		}

		data := bucket.Get([]byte(id))
		if data == nil {
			return nil
		}

		item = &modqueue.Item{}
		return json.Unmarshal(data, item)
	})

	return item, err
}

// TransitionItem applies the update only while the item's current status is
// in allowedFrom. The check and the write share one read-write transaction,
// so two racing moderators cannot both transition the same item.
func (s *QueueStore) TransitionItem(ctx context.Context, id string, allowedFrom []modqueue.Status, update modqueue.ItemUpdate) (*modqueue.Item, error) {
	var item modqueue.Item

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketQueueItems)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", BucketQueueItems)
		}

		data := bucket.Get([]byte(id))
		if data == nil {
			return &errs.NotFoundError{Kind: "queue item", ID: id}
		}
		if err := json.Unmarshal(data, &item); err != nil {
			return fmt.Errorf("failed to unmarshal queue item: %w", err)
		}

		allowed := false
		for _, status := range allowedFrom {
			if item.Status == status {
				allowed = true
				break
			}
		}
		if !allowed {
			return &errs.StateConflictError{
				Kind:    "queue item",
				ID:      id,
				Current: string(item.Status),
				Wanted:  string(update.Status),
			}
		}

		previous := item.Status
		item.Status = update.Status
		if update.Priority != nil {
			item.Priority = *update.Priority
		}
		item.ModeratorID = update.ModeratorID
		item.ModeratorNotes = update.ModeratorNotes
		item.UpdatedAt = time.Now().UTC()
		if !item.UpdatedAt.After(item.CreatedAt) {
			item.UpdatedAt = item.CreatedAt.Add(time.Millisecond)
		}

		newData, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal queue item: %w", err)
		}
		if err := bucket.Put([]byte(id), newData); err != nil {
			return err
		}

		index := tx.Bucket(BucketQueueByStatus)
		if index == nil {
			return fmt.Errorf("bucket not found: %s", BucketQueueByStatus)
		}
		if err := index.Delete(queueStatusKey(previous, id)); err != nil {
			return err
		}
		return index.Put(queueStatusKey(item.Status, id), []byte(id))
	})
	if err != nil {
		return nil, err
	}

	return &item, nil
}

// ListItems returns items matching the filter in the requested order.
func (s *QueueStore) ListItems(ctx context.Context, filter modqueue.ListFilter) ([]modqueue.Item, error) {
	var items []modqueue.Item

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketQueueItems)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var item modqueue.Item
			if err := json.Unmarshal(v, &item); err != nil {
				return err
			}
			if matchesFilter(&item, filter) {
				items = append(items, item)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sortItems(items, filter)

	if filter.Offset > 0 {
		if filter.Offset >= len(items) {
			return nil, nil
		}
		items = items[filter.Offset:]
	}
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}

	return items, nil
}

// CountByStatus tallies items per status from the status index.
func (s *QueueStore) CountByStatus(ctx context.Context) (map[modqueue.Status]int, error) {
	counts := make(map[modqueue.Status]int)

	err := s.db.View(func(tx *bolt.Tx) error {
		index := tx.Bucket(BucketQueueByStatus)
		if index == nil {
			return nil
		}

		return index.ForEach(func(k, v []byte) error {
			sep := bytes.IndexByte(k, ':')
			if sep < 0 {
				return nil
			}
			counts[modqueue.Status(k[:sep])]++
			return nil
		})
	})

	return counts, err
}

func matchesFilter(item *modqueue.Item, filter modqueue.ListFilter) bool {
	if len(filter.Statuses) > 0 {
		ok := false
		for _, status := range filter.Statuses {
			if item.Status == status {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if filter.ContentType != "" && item.ContentType != filter.ContentType {
		return false
	}
	if item.Priority < filter.MinPriority {
		return false
	}
	if item.RiskScore < filter.MinRiskScore {
		return false
	}
	if !filter.CreatedAfter.IsZero() && !item.CreatedAt.After(filter.CreatedAfter) {
		return false
	}
	if !filter.CreatedBefore.IsZero() && !item.CreatedAt.Before(filter.CreatedBefore) {
		return false
	}
	if !filter.UpdatedAfter.IsZero() && !item.UpdatedAt.After(filter.UpdatedAfter) {
		return false
	}
	return true
}

func sortItems(items []modqueue.Item, filter modqueue.ListFilter) {
	less := func(a, b *modqueue.Item) bool {
		switch filter.SortBy {
		case modqueue.SortByCreatedAt:
			return a.CreatedAt.Before(b.CreatedAt)
		case modqueue.SortByUpdatedAt:
			return a.UpdatedAt.Before(b.UpdatedAt)
		case modqueue.SortByPriority:
			return a.Priority < b.Priority
		case modqueue.SortByRiskScore:
			return a.RiskScore < b.RiskScore
		}
		return false
	}

	if filter.SortBy == "" {
		// Default review order: highest severity first, freshest first.
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].Priority != items[j].Priority {
				return items[i].Priority > items[j].Priority
			}
			return items[i].CreatedAt.After(items[j].CreatedAt)
		})
		return
	}

	sort.SliceStable(items, func(i, j int) bool {
		if filter.SortAsc {
			return less(&items[i], &items[j])
		}
		return less(&items[j], &items[i])
	})
}
