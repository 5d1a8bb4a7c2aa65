// Package identity provides user and role management backed by a
// relational store. It implements the repository side of the permission
// service contract: effective permissions are role claims of type
// "permission" joined through the user's role assignments.
package identity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ClaimTypePermission marks role claims that grant a permission.
// Other claim types may exist on a role but never reach authorization.
const ClaimTypePermission = "permission"

// User represents an account in the system
type User struct {
	UserID       string    `gorm:"primaryKey;type:varchar(36)" json:"user_id"`
	UserName     string    `gorm:"uniqueIndex;not null" json:"user_name"`
	Email        string    `gorm:"uniqueIndex" json:"email,omitempty"`
	FullName     string    `json:"full_name,omitempty"`
	PasswordHash string    `gorm:"not null" json:"-"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`

	// Relationships
	Roles     []Role     `gorm:"many2many:user_role_assignments;foreignKey:UserID;joinForeignKey:UserID;References:RoleID;joinReferences:RoleID" json:"roles,omitempty"`
	AuditLogs []AuditLog `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// BeforeCreate hook for User model
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UserID == "" {
		u.UserID = uuid.New().String()
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = time.Now()
	return nil
}

// BeforeUpdate hook for User model
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}

// Role represents a named bundle of claims assignable to users
type Role struct {
	RoleID      string    `gorm:"primaryKey;type:varchar(36)" json:"role_id"`
	RoleName    string    `gorm:"uniqueIndex;not null" json:"role_name"`
	Description string    `json:"description,omitempty"`
	IsDefault   bool      `gorm:"not null;default:false" json:"is_default"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`

	// Relationships
	Claims []RoleClaim `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE" json:"claims,omitempty"`
	Users  []User      `gorm:"many2many:user_role_assignments;foreignKey:RoleID;joinForeignKey:RoleID;References:UserID;joinReferences:UserID" json:"-"`
}

// BeforeCreate hook for Role model
func (r *Role) BeforeCreate(tx *gorm.DB) error {
	if r.RoleID == "" {
		r.RoleID = uuid.New().String()
	}
	r.CreatedAt = time.Now()
	r.UpdatedAt = time.Now()
	return nil
}

// BeforeUpdate hook for Role model
func (r *Role) BeforeUpdate(tx *gorm.DB) error {
	r.UpdatedAt = time.Now()
	return nil
}

// UserRoleAssignment links a user to a role
type UserRoleAssignment struct {
	UserID    string    `gorm:"primaryKey;type:varchar(36)" json:"user_id"`
	RoleID    string    `gorm:"primaryKey;type:varchar(36)" json:"role_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"-"`
	Role Role `gorm:"foreignKey:RoleID" json:"-"`
}

// BeforeCreate hook for UserRoleAssignment
func (a *UserRoleAssignment) BeforeCreate(tx *gorm.DB) error {
	a.CreatedAt = time.Now()
	return nil
}

// RoleClaim represents a typed claim attached to a role. Claims with
// ClaimType "permission" carry a permission name in ClaimName.
type RoleClaim struct {
	ClaimID   string    `gorm:"primaryKey;type:varchar(36)" json:"claim_id"`
	RoleID    string    `gorm:"not null;type:varchar(36);index" json:"role_id"`
	ClaimType string    `gorm:"not null;index" json:"claim_type"`
	ClaimName string    `gorm:"not null" json:"claim_name"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`

	// Relationships
	Role Role `gorm:"foreignKey:RoleID" json:"-"`
}

// BeforeCreate hook for RoleClaim
func (c *RoleClaim) BeforeCreate(tx *gorm.DB) error {
	if c.ClaimID == "" {
		c.ClaimID = uuid.New().String()
	}
	c.CreatedAt = time.Now()
	return nil
}

// AuditLog records an administrative action for later review
type AuditLog struct {
	LogID      string    `gorm:"primaryKey;type:varchar(36)" json:"log_id"`
	UserID     string    `gorm:"type:varchar(36);index" json:"user_id,omitempty"`
	Action     string    `gorm:"not null" json:"action"`
	Resource   string    `gorm:"not null" json:"resource"`
	ResourceID string    `gorm:"type:varchar(36)" json:"resource_id,omitempty"`
	Details    string    `gorm:"type:text" json:"details,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	Success    bool      `gorm:"not null" json:"success"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

// BeforeCreate hook for AuditLog model
func (l *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if l.LogID == "" {
		l.LogID = uuid.New().String()
	}
	l.CreatedAt = time.Now()
	return nil
}

// Sanitized returns a copy safe to hand to API responses
func (u *User) Sanitized() *User {
	clone := *u
	clone.PasswordHash = ""
	return &clone
}
