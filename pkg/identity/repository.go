package identity

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/adminkit/adminkit/pkg/config"
	"github.com/adminkit/adminkit/pkg/interfaces"
)

// Repository provides data access for users, roles, and audit logs
type Repository struct {
	db *gorm.DB
}

// NewRepository opens the relational store, migrates the schema, and
// seeds the default roles and admin account
func NewRepository(cfg *config.DatabaseConfig) (*Repository, error) {
	var db *gorm.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		db, err = gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := &Repository{db: db}

	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := repo.seedDefaults(); err != nil {
		return nil, fmt.Errorf("failed to seed default data: %w", err)
	}

	return repo, nil
}

// migrate runs database migrations
func (r *Repository) migrate() error {
	return r.db.AutoMigrate(
		&User{},
		&Role{},
		&UserRoleAssignment{},
		&RoleClaim{},
		&AuditLog{},
	)
}

// seedDefaults creates the built-in roles and the initial admin user.
// Idempotent: existing rows are left untouched.
func (r *Repository) seedDefaults() error {
	defaultRoles := []struct {
		name        string
		description string
		isDefault   bool
		permissions []string
	}{
		{
			name:        "admin",
			description: "Full administrative access",
			permissions: []string{
				"permission.users.view", "permission.users.manage",
				"permission.roles.view", "permission.roles.manage",
				"permission.audit.view",
				"permission.system.manage",
			},
		},
		{
			name:        "viewer",
			description: "Read-only access",
			isDefault:   true,
			permissions: []string{
				"permission.users.view",
				"permission.roles.view",
			},
		},
	}

	var adminRoleID string
	for _, def := range defaultRoles {
		var role Role
		result := r.db.Where("role_name = ?", def.name).First(&role)
		if result.Error == gorm.ErrRecordNotFound {
			role = Role{
				RoleName:    def.name,
				Description: def.description,
				IsDefault:   def.isDefault,
			}
			if err := r.db.Create(&role).Error; err != nil {
				return fmt.Errorf("failed to create role %s: %w", def.name, err)
			}
			for _, perm := range def.permissions {
				claim := RoleClaim{
					RoleID:    role.RoleID,
					ClaimType: ClaimTypePermission,
					ClaimName: perm,
				}
				if err := r.db.Create(&claim).Error; err != nil {
					return fmt.Errorf("failed to create claim %s: %w", perm, err)
				}
			}
		} else if result.Error != nil {
			return result.Error
		}
		if def.name == "admin" {
			adminRoleID = role.RoleID
		}
	}

	var admin User
	result := r.db.Where("user_name = ?", "admin").First(&admin)
	if result.Error == gorm.ErrRecordNotFound {
		admin = User{
			UserName: "admin",
			Email:    "admin@adminkit.local",
			FullName: "Administrator",
			// Default: "admin123", must be rotated on first login.
			PasswordHash: "$2a$10$alWcOKYF8z9xQQHKZpLNTup2dLlKt7YANsRc.EqvUsBiPXquHHZdy",
			IsActive:     true,
		}
		if err := r.db.Create(&admin).Error; err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}
		assignment := UserRoleAssignment{UserID: admin.UserID, RoleID: adminRoleID}
		if err := r.db.Create(&assignment).Error; err != nil {
			return fmt.Errorf("failed to assign admin role: %w", err)
		}
	} else if result.Error != nil {
		return result.Error
	}

	return nil
}

// User operations

// CreateUser creates a new user
func (r *Repository) CreateUser(ctx context.Context, user *User) (*User, error) {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUser retrieves an active user by ID, nil when absent
func (r *Repository) GetUser(ctx context.Context, userID string) (*User, error) {
	var user User
	err := r.db.WithContext(ctx).Preload("Roles").
		Where("user_id = ? AND is_active = ?", userID, true).First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetUserByName retrieves an active user by username, nil when absent
func (r *Repository) GetUserByName(ctx context.Context, username string) (*User, error) {
	var user User
	err := r.db.WithContext(ctx).
		Where("user_name = ? AND is_active = ?", username, true).First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by name: %w", err)
	}
	return &user, nil
}

// UpdateUser persists changes to a user
func (r *Repository) UpdateUser(ctx context.Context, user *User) error {
	if err := r.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// DeactivateUser soft deletes a user
func (r *Repository) DeactivateUser(ctx context.Context, userID string) error {
	result := r.db.WithContext(ctx).Model(&User{}).
		Where("user_id = ?", userID).Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("user not found")
	}
	return nil
}

// ListUsers returns active users with pagination
func (r *Repository) ListUsers(ctx context.Context, limit, offset int) ([]User, int64, error) {
	var users []User
	var total int64

	if err := r.db.WithContext(ctx).Model(&User{}).
		Where("is_active = ?", true).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	if err := r.db.WithContext(ctx).Preload("Roles").
		Where("is_active = ?", true).
		Order("created_at DESC").Limit(limit).Offset(offset).
		Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}

	return users, total, nil
}

// Role operations

// CreateRole creates a new role
func (r *Repository) CreateRole(ctx context.Context, role *Role) (*Role, error) {
	if err := r.db.WithContext(ctx).Create(role).Error; err != nil {
		return nil, fmt.Errorf("failed to create role: %w", err)
	}
	return role, nil
}

// GetRole retrieves a role with its claims, nil when absent
func (r *Repository) GetRole(ctx context.Context, roleID string) (*Role, error) {
	var role Role
	err := r.db.WithContext(ctx).Preload("Claims").
		Where("role_id = ?", roleID).First(&role).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

// GetRoleByName retrieves a role by name, nil when absent
func (r *Repository) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	var role Role
	err := r.db.WithContext(ctx).Preload("Claims").
		Where("role_name = ?", name).First(&role).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get role by name: %w", err)
	}
	return &role, nil
}

// UpdateRole persists changes to a role
func (r *Repository) UpdateRole(ctx context.Context, role *Role) error {
	if err := r.db.WithContext(ctx).Save(role).Error; err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return nil
}

// DeleteRole removes a role together with its claims and assignments
func (r *Repository) DeleteRole(ctx context.Context, roleID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role_id = ?", roleID).Delete(&RoleClaim{}).Error; err != nil {
			return fmt.Errorf("failed to delete role claims: %w", err)
		}
		if err := tx.Where("role_id = ?", roleID).Delete(&UserRoleAssignment{}).Error; err != nil {
			return fmt.Errorf("failed to delete role assignments: %w", err)
		}
		result := tx.Where("role_id = ?", roleID).Delete(&Role{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete role: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("role not found")
		}
		return nil
	})
}

// ListRoles returns all roles with their claims
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	var roles []Role
	if err := r.db.WithContext(ctx).Preload("Claims").
		Order("role_name").Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return roles, nil
}

// AssignRole links a user to a role. Assigning an already held role is
// a no-op.
func (r *Repository) AssignRole(ctx context.Context, userID, roleID string) error {
	var existing UserRoleAssignment
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND role_id = ?", userID, roleID).First(&existing)
	if result.Error == gorm.ErrRecordNotFound {
		assignment := UserRoleAssignment{UserID: userID, RoleID: roleID}
		if err := r.db.WithContext(ctx).Create(&assignment).Error; err != nil {
			return fmt.Errorf("failed to assign role: %w", err)
		}
		return nil
	}
	if result.Error != nil {
		return fmt.Errorf("failed to check role assignment: %w", result.Error)
	}
	return nil
}

// RemoveRole unlinks a user from a role
func (r *Repository) RemoveRole(ctx context.Context, userID, roleID string) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		Delete(&UserRoleAssignment{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove role: %w", result.Error)
	}
	return nil
}

// ReplaceRoleClaims swaps the full claim set of a role in one
// transaction
func (r *Repository) ReplaceRoleClaims(ctx context.Context, roleID string, claims []RoleClaim) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role_id = ?", roleID).Delete(&RoleClaim{}).Error; err != nil {
			return fmt.Errorf("failed to clear role claims: %w", err)
		}
		for i := range claims {
			claims[i].RoleID = roleID
			claims[i].ClaimID = ""
			if err := tx.Create(&claims[i]).Error; err != nil {
				return fmt.Errorf("failed to create role claim: %w", err)
			}
		}
		return nil
	})
}

// Permission contract

// GetUserPermissions returns the distinct permission claim names across
// every role assigned to the user
func (r *Repository) GetUserPermissions(ctx context.Context, userID string) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).Model(&RoleClaim{}).
		Distinct("role_claims.claim_name").
		Joins("JOIN user_role_assignments ON user_role_assignments.role_id = role_claims.role_id").
		Where("user_role_assignments.user_id = ? AND role_claims.claim_type = ?", userID, ClaimTypePermission).
		Pluck("role_claims.claim_name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load user permissions: %w", err)
	}
	return names, nil
}

// GetUsersByRole returns the IDs of every user holding the role
func (r *Repository) GetUsersByRole(ctx context.Context, roleID string) ([]string, error) {
	var userIDs []string
	err := r.db.WithContext(ctx).Model(&UserRoleAssignment{}).
		Where("role_id = ?", roleID).
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list users for role: %w", err)
	}
	return userIDs, nil
}

// Audit log operations

// CreateAuditLog records an administrative action
func (r *Repository) CreateAuditLog(ctx context.Context, log *AuditLog) error {
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// ListAuditLogs returns audit entries with pagination and optional
// filtering by user, action, and resource
func (r *Repository) ListAuditLogs(ctx context.Context, limit, offset int, userID, action, resource string) ([]AuditLog, int64, error) {
	var logs []AuditLog
	var total int64

	query := r.db.WithContext(ctx).Model(&AuditLog{})
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if action != "" {
		query = query.Where("action = ?", action)
	}
	if resource != "" {
		query = query.Where("resource = ?", resource)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}

	return logs, total, nil
}

// HealthCheck performs a database ping
func (r *Repository) HealthCheck() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}

var _ interfaces.PermissionRepository = (*Repository)(nil)
