// Package database selects the persistence backend for the moderation
// pipeline. This abstraction allows swapping BoltDB for SQLite (or other
// backends) without touching the services built on the store interfaces.
package database

import (
	"context"
	"fmt"

	"github.com/captjreacher/pimp-my-brand/internal/audit"
	"github.com/captjreacher/pimp-my-brand/internal/content"
	"github.com/captjreacher/pimp-my-brand/internal/database/boltstore"
	"github.com/captjreacher/pimp-my-brand/internal/database/sqlitestore"
	"github.com/captjreacher/pimp-my-brand/internal/modqueue"
)

// Supported backend names.
const (
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
)

// Store bundles the persistence interfaces consumed by the pipeline.
type Store interface {
	Queue() modqueue.Store
	Audit() audit.Store

	// Content returns the content record store, or nil when the backend
	// does not host content (the SQLite backend stores only queue and
	// audit data; content then lives with the service that owns it).
	Content() content.Store

	Close() error
}

// Open opens the named backend at path. An empty backend defaults to bolt.
func Open(ctx context.Context, backend, path string) (Store, error) {
	switch backend {
	case BackendBolt, "":
		store, err := boltstore.Open(boltstore.Options{Path: path})
		if err != nil {
			return nil, err
		}
		return &boltBackend{store: store}, nil
	case BackendSQLite:
		store, err := sqlitestore.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		return &sqliteBackend{store: store}, nil
	}
	return nil, fmt.Errorf("unknown database backend: %q", backend)
}

type boltBackend struct {
	store *boltstore.Store
}

func (b *boltBackend) Queue() modqueue.Store  { return b.store.QueueStore() }
func (b *boltBackend) Audit() audit.Store     { return b.store.AuditStore() }
func (b *boltBackend) Content() content.Store { return b.store.ContentStore() }
func (b *boltBackend) Close() error           { return b.store.Close() }

type sqliteBackend struct {
	store *sqlitestore.Store
}

func (b *sqliteBackend) Queue() modqueue.Store  { return b.store.QueueStore() }
func (b *sqliteBackend) Audit() audit.Store     { return b.store.AuditStore() }
func (b *sqliteBackend) Content() content.Store { return nil }
func (b *sqliteBackend) Close() error           { return b.store.Close() }
