package access

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRoster = `{
	"roles": {
		"admin": {
			"description": "Full moderation control",
			"permissions": ["flag_content", "moderate_content", "escalate_content", "bulk_moderate", "view_queue", "view_audit_log"]
		},
		"moderator": {
			"description": "Day-to-day content review",
			"permissions": ["flag_content", "moderate_content", "view_queue"]
		}
	},
	"users": [
		{"user_id": "admin-1", "name": "Ana", "role": "admin", "note": "on-call"},
		{"user_id": "mod-1", "name": "Sam", "role": "moderator"}
	]
}`

func writeRoster(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "moderators.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestNewService_NoRoster(t *testing.T) {
	svc, err := NewService("")
	require.NoError(t, err)
	assert.False(t, svc.IsEnabled())
	assert.False(t, svc.HasPermission("admin-1", PermissionModerateContent))
}

func TestNewService_MissingFile(t *testing.T) {
	svc, err := NewService("/nonexistent/path/moderators.json")
	require.NoError(t, err)
	assert.False(t, svc.IsEnabled())
}

func TestNewService_InvalidJSON(t *testing.T) {
	path := writeRoster(t, "not valid json")
	_, err := NewService(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse roster file")
}

func TestNewService_UnknownRole(t *testing.T) {
	path := writeRoster(t, `{
		"roles": {"admin": {"permissions": ["moderate_content"]}},
		"users": [{"user_id": "u-1", "role": "nonexistent"}]
	}`)
	_, err := NewService(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
}

func TestHasPermission(t *testing.T) {
	svc, err := NewService(writeRoster(t, testRoster))
	require.NoError(t, err)
	require.True(t, svc.IsEnabled())

	assert.True(t, svc.HasPermission("admin-1", PermissionBulkModerate))
	assert.True(t, svc.HasPermission("admin-1", PermissionViewAuditLog))

	assert.True(t, svc.HasPermission("mod-1", PermissionModerateContent))
	assert.False(t, svc.HasPermission("mod-1", PermissionBulkModerate))
	assert.False(t, svc.HasPermission("mod-1", PermissionEscalateContent))

	assert.False(t, svc.HasPermission("stranger", PermissionViewQueue))
}

func TestGetRole(t *testing.T) {
	svc, err := NewService(writeRoster(t, testRoster))
	require.NoError(t, err)

	role, ok := svc.GetRole("admin-1")
	require.True(t, ok)
	assert.Equal(t, RoleAdmin, role.Name)

	// Returned role is a copy; mutating it must not affect the service.
	role.Permissions = nil
	assert.True(t, svc.HasPermission("admin-1", PermissionModerateContent))

	_, ok = svc.GetRole("stranger")
	assert.False(t, ok)
}

func TestListModerators(t *testing.T) {
	svc, err := NewService(writeRoster(t, testRoster))
	require.NoError(t, err)

	users := svc.ListModerators()
	assert.Len(t, users, 2)
}

func TestReload(t *testing.T) {
	path := writeRoster(t, `{
		"roles": {"admin": {"permissions": ["moderate_content"]}},
		"users": [{"user_id": "admin-1", "role": "admin"}]
	}`)

	svc, err := NewService(path)
	require.NoError(t, err)
	assert.False(t, svc.HasPermission("admin-2", PermissionModerateContent))

	require.NoError(t, os.WriteFile(path, []byte(`{
		"roles": {"admin": {"permissions": ["moderate_content"]}},
		"users": [
			{"user_id": "admin-1", "role": "admin"},
			{"user_id": "admin-2", "role": "admin"}
		]
	}`), 0644))

	require.NoError(t, svc.Reload())
	assert.True(t, svc.HasPermission("admin-2", PermissionModerateContent))
}

func TestRole_HasPermission(t *testing.T) {
	role := &Role{
		Name:        RoleModerator,
		Permissions: []Permission{PermissionViewQueue, PermissionModerateContent},
	}
	assert.True(t, role.HasPermission(PermissionViewQueue))
	assert.False(t, role.HasPermission(PermissionBulkModerate))
}
