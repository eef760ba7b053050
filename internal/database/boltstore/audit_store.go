package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/captjreacher/pimp-my-brand/internal/audit"
	"github.com/captjreacher/pimp-my-brand/internal/errs"
)

// AuditStore provides persistent storage for the audit trail.
type AuditStore struct {
	db *bolt.DB
}

// AppendEntry stores a new audit entry under a timestamp-ordered key and
// records the id-to-key mapping for later patching.
func (s *AuditStore) AppendEntry(ctx context.Context, entry audit.Entry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketAuditLog)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", BucketAuditLog)
		}

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal audit entry: %w", err)
		}

		// Timestamp-based key for chronological ordering; the id suffix
		// keeps keys unique.
		key := fmt.Sprintf("%d:%s", entry.CreatedAt.UnixNano(), entry.ID)
		if err := bucket.Put([]byte(key), data); err != nil {
			return err
		}

		index := tx.Bucket(BucketAuditByID)
		if index == nil {
			return fmt.Errorf("bucket not found: %s", BucketAuditByID)
		}
		return index.Put([]byte(entry.ID), []byte(key))
	})
}

// PatchResult attaches the outcome to a previously appended entry. This is
// the only permitted mutation of an audit record.
func (s *AuditStore) PatchResult(ctx context.Context, entryID string, result audit.Result) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		entry, key, err := getEntryTx(tx, entryID)
		if err != nil {
			return err
		}

		entry.Success = &result.Success
		entry.DurationMS = result.DurationMS
		entry.ErrorMessage = result.ErrorMessage

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal audit entry: %w", err)
		}
		return tx.Bucket(BucketAuditLog).Put(key, data)
	})
}

// GetEntry retrieves an entry by id.
func (s *AuditStore) GetEntry(ctx context.Context, entryID string) (*audit.Entry, error) {
	var entry *audit.Entry

	err := s.db.View(func(tx *bolt.Tx) error {
		found, _, err := getEntryTx(tx, entryID)
		if err != nil {
			return err
		}
		entry = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

func getEntryTx(tx *bolt.Tx, entryID string) (*audit.Entry, []byte, error) {
	index := tx.Bucket(BucketAuditByID)
	bucket := tx.Bucket(BucketAuditLog)
	if index == nil || bucket == nil {
		return nil, nil, fmt.Errorf("audit buckets not initialized")
	}

	key := index.Get([]byte(entryID))
	if key == nil {
		return nil, nil, &errs.NotFoundError{Kind: "audit entry", ID: entryID}
	}

	data := bucket.Get(key)
	if data == nil {
		return nil, nil, &errs.NotFoundError{Kind: "audit entry", ID: entryID}
	}

	entry := &audit.Entry{}
	if err := json.Unmarshal(data, entry); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal audit entry: %w", err)
	}
	return entry, key, nil
}

// ListEntries returns entries matching the filter in reverse chronological
// order (newest first).
func (s *AuditStore) ListEntries(ctx context.Context, filter audit.ListFilter) ([]audit.Entry, error) {
	var entries []audit.Entry
	skipped := 0

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketAuditLog)
		if bucket == nil {
			return nil
		}

		cursor := bucket.Cursor()
		for k, v := cursor.Last(); k != nil; k, v = cursor.Prev() {
			var entry audit.Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				continue // Skip malformed entries
			}
			if !matchesAuditFilter(&entry, filter) {
				continue
			}
			if skipped < filter.Offset {
				skipped++
				continue
			}
			entries = append(entries, entry)
			if filter.Limit > 0 && len(entries) >= filter.Limit {
				return nil
			}
		}
		return nil
	})

	return entries, err
}

// ListIncomplete returns unpatched entries older than the given age. Each
// one marks an operation that crashed between its two write phases.
func (s *AuditStore) ListIncomplete(ctx context.Context, olderThan time.Duration) ([]audit.Entry, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	var entries []audit.Entry

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketAuditLog)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var entry audit.Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return nil // Skip malformed entries
			}
			if !entry.Completed() && entry.CreatedAt.Before(cutoff) {
				entries = append(entries, entry)
			}
			return nil
		})
	})

	return entries, err
}

func matchesAuditFilter(entry *audit.Entry, filter audit.ListFilter) bool {
	if filter.ActorID != "" && (entry.ActorID == nil || *entry.ActorID != filter.ActorID) {
		return false
	}
	if filter.ActionType != "" && entry.ActionType != filter.ActionType {
		return false
	}
	if filter.TargetType != "" && entry.TargetType != filter.TargetType {
		return false
	}
	if filter.TargetID != "" && (entry.TargetID == nil || *entry.TargetID != filter.TargetID) {
		return false
	}
	if !filter.Since.IsZero() && entry.CreatedAt.Before(filter.Since) {
		return false
	}
	if !filter.Until.IsZero() && entry.CreatedAt.After(filter.Until) {
		return false
	}
	return true
}
