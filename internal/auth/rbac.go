// Package auth provides authentication and authorization services.
package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/logpeak/logpeak/internal/store"
)

// RBAC errors.
var (
	ErrOwnerExists      = errors.New("owner already exists, public registration is disabled")
	ErrPermissionDenied = errors.New("permission denied")
	ErrUserNotFound     = errors.New("user not found")
)

// Permission represents an action that can be performed.
type Permission string

const (
	// PermissionManageApps allows creating, updating and deleting apps,
	// rotating their keys and editing their flag rules.
	PermissionManageApps Permission = "manage_apps"
	// PermissionViewApps allows viewing apps.
	PermissionViewApps Permission = "view_apps"
	// PermissionViewLogs allows reading the tail, history and chart views.
	PermissionViewLogs Permission = "view_logs"
	// PermissionManageAlerts allows alert rule CRUD.
	PermissionManageAlerts Permission = "manage_alerts"
	// PermissionManageRetention allows manual sweeps and aggregation runs.
	PermissionManageRetention Permission = "manage_retention"
	// PermissionPurgeLogs allows wiping logs for one or all apps.
	PermissionPurgeLogs Permission = "purge_logs"
)

// rolePermissions defines which permissions each role has. Every
// administrative operation checks an explicit permission; no role gets
// implicit all-access.
var rolePermissions = map[store.Role][]Permission{
	store.RoleOwner: {
		PermissionManageApps,
		PermissionViewApps,
		PermissionViewLogs,
		PermissionManageAlerts,
		PermissionManageRetention,
		PermissionPurgeLogs,
	},
	store.RoleMember: {
		PermissionViewApps,
		PermissionViewLogs,
		PermissionManageAlerts,
	},
}

// RBACService provides role-based access control functionality.
type RBACService struct {
	store  store.Store
	logger *slog.Logger
}

// NewRBACService creates a new RBAC service.
func NewRBACService(st store.Store, logger *slog.Logger) *RBACService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RBACService{
		store:  st,
		logger: logger,
	}
}

// CanRegister checks if public registration is allowed.
// Returns true if no owner exists, false otherwise.
func (s *RBACService) CanRegister(ctx context.Context) (bool, error) {
	count, err := s.store.Users().CountByRole(ctx, store.RoleOwner)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// CheckPermission verifies a user has permission for an action.
func (s *RBACService) CheckPermission(ctx context.Context, userID string, permission Permission) error {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return CheckRolePermission(user.Role, permission)
}

// CheckRolePermission checks if a role has a specific permission.
func CheckRolePermission(role store.Role, permission Permission) error {
	permissions, ok := rolePermissions[role]
	if !ok {
		return ErrPermissionDenied
	}
	for _, p := range permissions {
		if p == permission {
			return nil
		}
	}
	return ErrPermissionDenied
}
