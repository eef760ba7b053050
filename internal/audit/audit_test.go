package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is a minimal in-memory Store for exercising the Trail.
type memStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	order   []string
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]Entry)}
}

func (m *memStore) AppendEntry(ctx context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.ID] = entry
	m.order = append(m.order, entry.ID)
	return nil
}

func (m *memStore) PatchResult(ctx context.Context, entryID string, result Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[entryID]
	if !ok {
		return assert.AnError
	}
	success := result.Success
	e.Success = &success
	e.DurationMS = result.DurationMS
	e.ErrorMessage = result.ErrorMessage
	m.entries[entryID] = e
	return nil
}

func (m *memStore) GetEntry(ctx context.Context, entryID string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[entryID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *memStore) ListEntries(ctx context.Context, filter ListFilter) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, m.entries[m.order[i]])
	}
	return out, nil
}

func (m *memStore) ListIncomplete(ctx context.Context, olderThan time.Duration) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []Entry
	for _, id := range m.order {
		e := m.entries[id]
		if !e.Completed() && e.CreatedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestTwoPhaseWrite(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	trail := NewTrail(store)

	actor := "mod-1"
	target := "queue-42"
	id, err := trail.LogAction(ctx, &actor, "moderate_content", "queue_item", &target, map[string]string{"status": "approved"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// Pre-action record exists and has no outcome yet.
	entry, err := trail.GetEntry(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.False(t, entry.Completed())
	assert.Equal(t, "moderate_content", entry.ActionType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "mod-1", *entry.ActorID)

	require.NoError(t, trail.UpdateActionResult(ctx, id, Result{Success: true, DurationMS: 12}))

	entry, err = trail.GetEntry(ctx, id)
	require.NoError(t, err)
	assert.True(t, entry.Completed())
	assert.True(t, *entry.Success)
	assert.EqualValues(t, 12, entry.DurationMS)
}

func TestSystemActionHasNilActor(t *testing.T) {
	ctx := context.Background()
	trail := NewTrail(newMemStore())

	id, err := trail.LogAction(ctx, nil, "auto_flag", "content", nil, nil)
	require.NoError(t, err)

	entry, err := trail.GetEntry(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, entry.ActorID)
}

func TestFailureOutcomeRecorded(t *testing.T) {
	ctx := context.Background()
	trail := NewTrail(newMemStore())

	id, err := trail.LogAction(ctx, nil, "bulk_moderate", "queue_item", nil, nil)
	require.NoError(t, err)

	msg := "store unavailable"
	require.NoError(t, trail.UpdateActionResult(ctx, id, Result{Success: false, DurationMS: 40, ErrorMessage: &msg}))

	entry, err := trail.GetEntry(ctx, id)
	require.NoError(t, err)
	assert.False(t, *entry.Success)
	require.NotNil(t, entry.ErrorMessage)
	assert.Equal(t, "store unavailable", *entry.ErrorMessage)
}

func TestListIncompleteSurfacesCrashedOperations(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	trail := NewTrail(store)

	// One patched, one left hanging.
	done, err := trail.LogAction(ctx, nil, "moderate_content", "queue_item", nil, nil)
	require.NoError(t, err)
	require.NoError(t, trail.UpdateActionResult(ctx, done, Result{Success: true}))

	hanging, err := trail.LogAction(ctx, nil, "moderate_content", "queue_item", nil, nil)
	require.NoError(t, err)

	// Backdate the hanging entry past the cutoff.
	store.mu.Lock()
	e := store.entries[hanging]
	e.CreatedAt = e.CreatedAt.Add(-time.Hour)
	store.entries[hanging] = e
	store.mu.Unlock()

	incomplete, err := trail.ListIncomplete(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, incomplete, 1)
	assert.Equal(t, hanging, incomplete[0].ID)
}
