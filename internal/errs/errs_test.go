package errs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrorMatching(t *testing.T) {
	base := &NotFoundError{Kind: "queue item", ID: "q1"}
	wrapped := fmt.Errorf("moderate: %w", base)

	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsStateConflict(wrapped))
	assert.False(t, IsValidation(wrapped))

	conflict := fmt.Errorf("store: %w", &StateConflictError{
		Kind: "queue item", ID: "q2", Current: "approved", Wanted: "rejected",
	})
	assert.True(t, IsStateConflict(conflict))
}

func TestDependencyErrorUnwrap(t *testing.T) {
	inner := fmt.Errorf("connection refused")
	dep := &DependencyError{Service: "audit", Err: inner}

	assert.ErrorIs(t, dep, inner)
	assert.Contains(t, dep.Error(), "audit")
}

func TestUserMessage(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		assert.Empty(t, UserMessage(nil))
	})

	t.Run("validation surfaces message", func(t *testing.T) {
		err := &ValidationError{Field: "reason", Message: "reason is required"}
		assert.Equal(t, "Invalid request: reason is required", UserMessage(err))
	})

	t.Run("not found names the kind only", func(t *testing.T) {
		err := &NotFoundError{Kind: "queue item", ID: "secret-id"}
		msg := UserMessage(err)
		assert.Contains(t, msg, "queue item")
		assert.NotContains(t, msg, "secret-id")
	})

	t.Run("state conflict", func(t *testing.T) {
		err := &StateConflictError{Kind: "queue item", ID: "q1", Current: "approved", Wanted: "rejected"}
		assert.Contains(t, UserMessage(err), "already been handled")
	})

	t.Run("permission denied hides the permission name", func(t *testing.T) {
		err := &PermissionDeniedError{UserID: "mod-1", Permission: "bulk_moderate"}
		assert.True(t, IsPermissionDenied(err))
		msg := UserMessage(err)
		assert.Contains(t, msg, "permission")
		assert.NotContains(t, msg, "bulk_moderate")
	})

	t.Run("dependency text never leaks", func(t *testing.T) {
		err := &DependencyError{Service: "notify", Err: fmt.Errorf("dial tcp 10.0.0.5:5432")}
		msg := UserMessage(err)
		assert.NotContains(t, msg, "10.0.0.5")
		assert.NotContains(t, msg, "notify")
	})
}
