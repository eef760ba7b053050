package boltstore

import (
	"context"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/captjreacher/pimp-my-brand/internal/content"
)

// ContentStore provides persistent storage for content records. The
// pipeline only reads it; the host process that owns content creation
// writes through PutRecord.
type ContentStore struct {
	db *bolt.DB
}

func contentKey(contentType content.Type, id string) []byte {
	return []byte(string(contentType) + ":" + id)
}

// PutRecord stores or replaces a content record and its user index entry.
func (s *ContentStore) PutRecord(ctx context.Context, record content.Record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketContentRecords)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", BucketContentRecords)
		}

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal content record: %w", err)
		}

		key := contentKey(record.ContentType, record.ID)
		if err := bucket.Put(key, data); err != nil {
			return err
		}

		index := tx.Bucket(BucketContentByUser)
		if index == nil {
			return fmt.Errorf("bucket not found: %s", BucketContentByUser)
		}
		return index.Put([]byte(record.UserID+":"+string(key)), key)
	})
}

// GetContent retrieves a record by type and id. Returns (nil, nil) when
// absent.
func (s *ContentStore) GetContent(ctx context.Context, contentType content.Type, id string) (*content.Record, error) {
	var record *content.Record

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketContentRecords)
		if bucket == nil {
			return nil
		}

		data := bucket.Get(contentKey(contentType, id))
		if data == nil {
			return nil
		}

		record = &content.Record{}
		return json.Unmarshal(data, record)
	})

	return record, err
}

// ListContentByUser returns all records owned by the given user.
func (s *ContentStore) ListContentByUser(ctx context.Context, userID string) ([]content.Record, error) {
	var records []content.Record

	err := s.db.View(func(tx *bolt.Tx) error {
		index := tx.Bucket(BucketContentByUser)
		bucket := tx.Bucket(BucketContentRecords)
		if index == nil || bucket == nil {
			return nil
		}

		cursor := index.Cursor()
		prefix := []byte(userID + ":")

		for k, v := cursor.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = cursor.Next() {
			data := bucket.Get(v)
			if data == nil {
				continue
			}

			var record content.Record
			if err := json.Unmarshal(data, &record); err != nil {
				continue
			}
			records = append(records, record)
		}

		return nil
	})

	return records, err
}
