// Package access is the permission oracle consulted before any moderating
// action. Roles and moderator users are loaded from a JSON roster file.
// With no roster configured the service reports IsEnabled false and callers
// skip enforcement entirely (fail open, for single-operator deployments);
// HasPermission itself still answers false for any user it does not know.
package access

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
)

// Permission represents one administrative action that can be performed.
type Permission string

const (
	PermissionFlagContent     Permission = "flag_content"
	PermissionModerateContent Permission = "moderate_content"
	PermissionEscalateContent Permission = "escalate_content"
	PermissionBulkModerate    Permission = "bulk_moderate"
	PermissionViewQueue       Permission = "view_queue"
	PermissionViewAuditLog    Permission = "view_audit_log"
)

// AllPermissions returns every available permission.
func AllPermissions() []Permission {
	return []Permission{
		PermissionFlagContent,
		PermissionModerateContent,
		PermissionEscalateContent,
		PermissionBulkModerate,
		PermissionViewQueue,
		PermissionViewAuditLog,
	}
}

// RoleName names a configured role.
type RoleName string

const (
	RoleAdmin           RoleName = "admin"
	RoleModerator       RoleName = "moderator"
	RoleSeniorModerator RoleName = "senior_moderator"
)

// Role defines a set of permissions.
type Role struct {
	Name        RoleName     `json:"-"` // set from the map key during loading
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`
}

// HasPermission checks if this role grants the given permission.
func (r *Role) HasPermission(perm Permission) bool {
	for _, p := range r.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Moderator is one user with moderation privileges.
type Moderator struct {
	UserID string   `json:"user_id"`
	Name   string   `json:"name,omitempty"`
	Role   RoleName `json:"role"`
	Note   string   `json:"note,omitempty"`
}

// Config is the roster loaded from JSON.
type Config struct {
	Roles map[RoleName]*Role `json:"roles"`
	Users []Moderator        `json:"users"`
}

// Validate checks the roster for consistency and fills in role names.
func (c *Config) Validate() error {
	if c.Roles == nil {
		c.Roles = make(map[RoleName]*Role)
	}

	for _, user := range c.Users {
		if _, ok := c.Roles[user.Role]; !ok {
			return &ConfigError{
				Field:   "users",
				Message: "user " + user.UserID + " references unknown role: " + string(user.Role),
			}
		}
	}

	for name, role := range c.Roles {
		role.Name = name
	}

	return nil
}

// ConfigError represents a roster validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "access config error in " + e.Field + ": " + e.Message
}

// Service answers permission queries. Safe for concurrent use.
type Service struct {
	mu         sync.RWMutex
	config     *Config
	configPath string

	userRoles map[string]*Role // user id -> role
}

// NewService creates the permission oracle. An empty configPath yields a
// disabled service; see IsEnabled.
func NewService(configPath string) (*Service, error) {
	s := &Service{
		configPath: configPath,
		userRoles:  make(map[string]*Role),
	}

	if configPath == "" {
		log.Info().Msg("access: no roster path provided, service disabled")
		return s, nil
	}

	if err := s.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load access roster: %w", err)
	}

	return s, nil
}

func (s *Service) loadConfig() error {
	data, err := os.ReadFile(s.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", s.configPath).Msg("access: roster file not found, service disabled")
			return nil
		}
		return fmt.Errorf("failed to read roster file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse roster file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid roster: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.config = &config
	s.userRoles = make(map[string]*Role)
	for i := range config.Users {
		user := &config.Users[i]
		if role, ok := config.Roles[user.Role]; ok {
			s.userRoles[user.UserID] = role
		}
	}

	log.Info().
		Int("roles", len(config.Roles)).
		Int("users", len(config.Users)).
		Str("path", s.configPath).
		Msg("access: roster loaded")

	return nil
}

// Reload re-reads the roster from disk.
func (s *Service) Reload() error {
	if s.configPath == "" {
		return nil
	}
	return s.loadConfig()
}

// IsEnabled returns true when a roster with at least one user is loaded.
// Enforcing callers check this first and allow every action while the
// service is disabled, rather than consulting HasPermission (which would
// deny everything without a roster).
func (s *Service) IsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config != nil && len(s.config.Users) > 0
}

// HasPermission reports whether the given user may perform the action.
func (s *Service) HasPermission(userID string, permission Permission) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.userRoles[userID]
	if !ok {
		return false
	}
	return role.HasPermission(permission)
}

// GetRole returns the role for the given user, if any.
func (s *Service) GetRole(userID string) (*Role, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.userRoles[userID]
	if !ok {
		return nil, false
	}
	roleCopy := *role
	return &roleCopy, true
}

// ListModerators returns the configured roster.
func (s *Service) ListModerators() []Moderator {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.config == nil {
		return nil
	}

	result := make([]Moderator, len(s.config.Users))
	copy(result, s.config.Users)
	return result
}
