// Package boltstore provides persistent storage using BoltDB (bbolt).
// It implements the queue, audit, and content store interfaces consumed by
// the moderation pipeline.
package boltstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names for organizing data
var (
	// BucketQueueItems stores moderation queue items keyed by id
	BucketQueueItems = []byte("queue_items")

	// BucketQueueByStatus indexes queue item ids as "status:id"
	BucketQueueByStatus = []byte("queue_by_status")

	// BucketAuditLog stores audit entries keyed by "unixnano:id" for
	// chronological ordering
	BucketAuditLog = []byte("audit_log")

	// BucketAuditByID maps an audit entry id to its chronological key
	BucketAuditByID = []byte("audit_by_id")

	// BucketContentRecords stores content records keyed by "type:id"
	BucketContentRecords = []byte("content_records")

	// BucketContentByUser indexes content keys as "userID:type:id"
	BucketContentByUser = []byte("content_by_user")
)

// Store wraps a BoltDB database and provides access to specialized stores.
type Store struct {
	db *bolt.DB
}

// Options configures the BoltDB store.
type Options struct {
	// Path to the database file. Parent directories will be created if needed.
	Path string

	// Timeout for obtaining a file lock on the database.
	// If zero, a default of 5 seconds is used.
	Timeout time.Duration

	// FileMode for creating the database file.
	// If zero, 0600 is used.
	FileMode os.FileMode
}

// DefaultOptions returns sensible defaults for development.
func DefaultOptions() Options {
	return Options{
		Path:     "moderation.db",
		Timeout:  5 * time.Second,
		FileMode: 0600,
	}
}

// Open creates or opens a BoltDB database at the specified path.
// It creates all necessary buckets if they don't exist.
func Open(opts Options) (*Store, error) {
	if opts.Path == "" {
		opts.Path = "moderation.db"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.FileMode == 0 {
		opts.FileMode = 0600
	}

	// Ensure parent directory exists
	dir := filepath.Dir(opts.Path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := bolt.Open(opts.Path, opts.FileMode, &bolt.Options{
		Timeout: opts.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			BucketQueueItems,
			BucketQueueByStatus,
			BucketAuditLog,
			BucketAuditByID,
			BucketContentRecords,
			BucketContentByUser,
		}

		for _, bucket := range buckets {
			_, err := tx.CreateBucketIfNotExists(bucket)
			if err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying BoltDB instance for advanced operations.
func (s *Store) DB() *bolt.DB {
	return s.db
}

// QueueStore returns a moderation queue store backed by this database.
func (s *Store) QueueStore() *QueueStore {
	return &QueueStore{db: s.db}
}

// AuditStore returns an audit log store backed by this database.
func (s *Store) AuditStore() *AuditStore {
	return &AuditStore{db: s.db}
}

// ContentStore returns a content record store backed by this database.
func (s *Store) ContentStore() *ContentStore {
	return &ContentStore{db: s.db}
}

// Stats returns database statistics.
func (s *Store) Stats() bolt.Stats {
	return s.db.Stats()
}

// hasPrefix checks if a byte slice has a given prefix.
func hasPrefix(s, prefix []byte) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i, b := range prefix {
		if s[i] != b {
			return false
		}
	}
	return true
}
