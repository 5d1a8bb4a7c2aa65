package identity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/adminkit/adminkit/pkg/errors"
	"github.com/adminkit/adminkit/pkg/interfaces"
)

// Manager coordinates user and role administration. Every mutation
// that changes what a user is allowed to do invalidates the matching
// permission cache entries before returning, so cached decisions never
// outlive the write by more than the in-flight requests.
type Manager struct {
	repository  *Repository
	permissions interfaces.PermissionChecker
	logger      interfaces.Logger
}

// NewManager creates a user management service
func NewManager(repository *Repository, permissions interfaces.PermissionChecker, logger interfaces.Logger) *Manager {
	return &Manager{
		repository:  repository,
		permissions: permissions,
		logger:      logger,
	}
}

// CreateUserParams holds the input for creating a user
type CreateUserParams struct {
	Username string   `json:"username" binding:"required,min=3"`
	Email    string   `json:"email" binding:"omitempty,email"`
	FullName string   `json:"full_name"`
	Password string   `json:"password" binding:"required,min=8"`
	RoleIDs  []string `json:"role_ids"`
}

// AuditInfo identifies who performed an operation and from where
type AuditInfo struct {
	ActorID   string
	IPAddress string
}

// User operations

// CreateUser creates a user, assigns the requested roles, and records
// the action
func (m *Manager) CreateUser(ctx context.Context, params CreateUserParams, audit AuditInfo) (*User, error) {
	existing, err := m.repository.GetUserByName(ctx, params.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, errors.NewAlreadyExistsError("user")
	}

	hash, err := HashPassword(params.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		UserName:     params.Username,
		Email:        params.Email,
		FullName:     params.FullName,
		PasswordHash: hash,
		IsActive:     true,
	}
	created, err := m.repository.CreateUser(ctx, user)
	if err != nil {
		return nil, err
	}

	for _, roleID := range params.RoleIDs {
		if err := m.repository.AssignRole(ctx, created.UserID, roleID); err != nil {
			return nil, err
		}
	}

	m.audit(ctx, audit, "user.create", "users", created.UserID, true,
		fmt.Sprintf("created user %s", created.UserName))
	return created.Sanitized(), nil
}

// GetUser retrieves a user by ID
func (m *Manager) GetUser(ctx context.Context, userID string) (*User, error) {
	user, err := m.repository.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.NewNotFoundError("user")
	}
	return user.Sanitized(), nil
}

// ListUsers returns active users with pagination
func (m *Manager) ListUsers(ctx context.Context, limit, offset int) ([]User, int64, error) {
	users, total, err := m.repository.ListUsers(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, total, nil
}

// UpdateUserParams holds the mutable user fields
type UpdateUserParams struct {
	Email    *string `json:"email" binding:"omitempty,email"`
	FullName *string `json:"full_name"`
	Password *string `json:"password" binding:"omitempty,min=8"`
}

// UpdateUser applies the provided fields to a user
func (m *Manager) UpdateUser(ctx context.Context, userID string, params UpdateUserParams, audit AuditInfo) (*User, error) {
	user, err := m.repository.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.NewNotFoundError("user")
	}

	if params.Email != nil {
		user.Email = *params.Email
	}
	if params.FullName != nil {
		user.FullName = *params.FullName
	}
	if params.Password != nil {
		hash, err := HashPassword(*params.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	if err := m.repository.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	m.audit(ctx, audit, "user.update", "users", userID, true, "")
	return user.Sanitized(), nil
}

// DeactivateUser soft deletes a user and drops their cached
// permissions so stale grants cannot be served for a removed account
func (m *Manager) DeactivateUser(ctx context.Context, userID string, audit AuditInfo) error {
	if err := m.repository.DeactivateUser(ctx, userID); err != nil {
		return err
	}
	if err := m.permissions.InvalidateUserPermissionsCache(ctx, userID); err != nil {
		return err
	}
	m.audit(ctx, audit, "user.deactivate", "users", userID, true, "")
	return nil
}

// Role assignment operations

// AssignRole grants a role to a user and invalidates the user's cached
// permission set
func (m *Manager) AssignRole(ctx context.Context, userID, roleID string, audit AuditInfo) error {
	role, err := m.repository.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role == nil {
		return errors.NewNotFoundError("role")
	}

	if err := m.repository.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	if err := m.permissions.InvalidateUserPermissionsCache(ctx, userID); err != nil {
		return err
	}

	m.audit(ctx, audit, "role.assign", "roles", roleID, true,
		fmt.Sprintf("assigned role %s to user %s", role.RoleName, userID))
	return nil
}

// RemoveRole revokes a role from a user and invalidates the user's
// cached permission set
func (m *Manager) RemoveRole(ctx context.Context, userID, roleID string, audit AuditInfo) error {
	if err := m.repository.RemoveRole(ctx, userID, roleID); err != nil {
		return err
	}
	if err := m.permissions.InvalidateUserPermissionsCache(ctx, userID); err != nil {
		return err
	}
	m.audit(ctx, audit, "role.remove", "roles", roleID, true,
		fmt.Sprintf("removed role from user %s", userID))
	return nil
}

// Role operations

// CreateRoleParams holds the input for creating a role
type CreateRoleParams struct {
	Name        string   `json:"name" binding:"required,min=2"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// CreateRole creates a role with an initial set of permission claims
func (m *Manager) CreateRole(ctx context.Context, params CreateRoleParams, audit AuditInfo) (*Role, error) {
	existing, err := m.repository.GetRoleByName(ctx, params.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errors.NewAlreadyExistsError("role")
	}

	role := &Role{
		RoleName:    params.Name,
		Description: params.Description,
	}
	created, err := m.repository.CreateRole(ctx, role)
	if err != nil {
		return nil, err
	}

	if len(params.Permissions) > 0 {
		claims := permissionClaims(params.Permissions)
		if err := m.repository.ReplaceRoleClaims(ctx, created.RoleID, claims); err != nil {
			return nil, err
		}
	}

	m.audit(ctx, audit, "role.create", "roles", created.RoleID, true,
		fmt.Sprintf("created role %s", created.RoleName))
	return m.repository.GetRole(ctx, created.RoleID)
}

// GetRole retrieves a role with its claims
func (m *Manager) GetRole(ctx context.Context, roleID string) (*Role, error) {
	role, err := m.repository.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, errors.NewNotFoundError("role")
	}
	return role, nil
}

// ListRoles returns all roles
func (m *Manager) ListRoles(ctx context.Context) ([]Role, error) {
	return m.repository.ListRoles(ctx)
}

// SetRolePermissions replaces a role's permission claims and then
// invalidates the cached permission sets of every holder. The cache is
// touched only after the write committed.
func (m *Manager) SetRolePermissions(ctx context.Context, roleID string, permissions []string, audit AuditInfo) (*Role, error) {
	role, err := m.repository.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, errors.NewNotFoundError("role")
	}

	if err := m.repository.ReplaceRoleClaims(ctx, roleID, permissionClaims(permissions)); err != nil {
		return nil, err
	}
	if err := m.permissions.InvalidateRolePermissionsCache(ctx, roleID); err != nil {
		return nil, err
	}

	m.audit(ctx, audit, "role.set_permissions", "roles", roleID, true,
		fmt.Sprintf("replaced permissions of role %s", role.RoleName))
	return m.repository.GetRole(ctx, roleID)
}

// DeleteRole removes a role. Holder IDs are captured before the delete
// because the assignments are gone afterwards; each holder's cached
// permission set is invalidated once the delete committed.
func (m *Manager) DeleteRole(ctx context.Context, roleID string, audit AuditInfo) error {
	holders, err := m.repository.GetUsersByRole(ctx, roleID)
	if err != nil {
		return err
	}

	if err := m.repository.DeleteRole(ctx, roleID); err != nil {
		return err
	}

	for _, userID := range holders {
		if err := m.permissions.InvalidateUserPermissionsCache(ctx, userID); err != nil {
			return err
		}
	}

	m.audit(ctx, audit, "role.delete", "roles", roleID, true, "")
	return nil
}

// Audit operations

// ListAuditLogs returns audit entries with pagination and filtering
func (m *Manager) ListAuditLogs(ctx context.Context, limit, offset int, userID, action, resource string) ([]AuditLog, int64, error) {
	return m.repository.ListAuditLogs(ctx, limit, offset, userID, action, resource)
}

// audit records the action, logging instead of failing when the write
// itself fails
func (m *Manager) audit(ctx context.Context, info AuditInfo, action, resource, resourceID string, success bool, details string) {
	entry := &AuditLog{
		UserID:     info.ActorID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    details,
		IPAddress:  info.IPAddress,
		Success:    success,
	}
	if err := m.repository.CreateAuditLog(ctx, entry); err != nil {
		m.logger.Error("failed to write audit log", err, map[string]interface{}{
			"action":   action,
			"resource": resource,
		})
	}
}

// permissionClaims builds permission claims from plain names
func permissionClaims(permissions []string) []RoleClaim {
	claims := make([]RoleClaim, 0, len(permissions))
	for _, name := range permissions {
		claims = append(claims, RoleClaim{
			ClaimType: ClaimTypePermission,
			ClaimName: name,
		})
	}
	return claims
}

// MarshalDetails encodes structured audit details as JSON text
func MarshalDetails(details map[string]interface{}) string {
	if len(details) == 0 {
		return ""
	}
	data, err := json.Marshal(details)
	if err != nil {
		return ""
	}
	return string(data)
}
