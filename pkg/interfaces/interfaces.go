// Package interfaces defines the core interfaces for AdminKit
package interfaces

import (
	"context"
	"time"

	"github.com/adminkit/adminkit/pkg/types"
)

// Cache defines the key-value cache contract shared by all backends.
//
// Get returns (nil, nil) on a miss; a non-nil error always means the
// backend itself failed, never that the key was absent. A hit on a key
// stored with a sliding expiration re-arms the expiration timer.
type Cache interface {
	// Get retrieves a value, refreshing sliding expiration on hit.
	// Returns (nil, nil) when the key is absent or expired.
	Get(ctx context.Context, key string) (interface{}, error)

	// Set stores a value. A zero sliding duration means no expiration.
	// Overwrites both the value and the expiration policy.
	Set(ctx context.Context, key string, value interface{}, sliding time.Duration) error

	// Refresh re-arms the expiration timer without touching the value.
	// Returns false if the key is absent or already expired.
	Refresh(ctx context.Context, key string) (bool, error)

	// Remove deletes a key, reporting whether it existed.
	Remove(ctx context.Context, key string) (bool, error)

	// Exists reports whether a key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	// Clear drops every entry in the backend. Not key-prefixed: callers
	// sharing one backend across namespaces lose all of them.
	Clear(ctx context.Context) error

	// Increment atomically adds delta to the counter at key and returns
	// the new value. When ttl is non-zero and this call created the key
	// (new value == delta), the ttl is applied; it is never re-applied
	// on subsequent increments.
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// Stats returns backend-specific counters, always including "type".
	Stats(ctx context.Context) (types.CacheStats, error)

	// Close releases backend resources, stopping any background work.
	Close() error
}

// PermissionRepository provides the relational source of truth for
// user permissions derived from role assignments
type PermissionRepository interface {
	// GetUserPermissions returns the distinct permission claim names
	// reachable through the user's role assignments
	GetUserPermissions(ctx context.Context, userID string) ([]string, error)

	// GetUsersByRole returns the IDs of all users holding the role
	GetUsersByRole(ctx context.Context, roleID string) ([]string, error)
}

// PermissionChecker performs cached permission lookups and checks
type PermissionChecker interface {
	// GetUserPermissions returns the user's effective permission set
	GetUserPermissions(ctx context.Context, userID string) (types.PermissionSet, error)

	// HasPermission checks membership of a single permission
	HasPermission(ctx context.Context, userID, permission string) (bool, error)

	// HasAnyPermission checks OR semantics over the given permissions
	HasAnyPermission(ctx context.Context, userID string, permissions []string) (bool, error)

	// HasAllPermissions checks AND semantics over the given permissions
	HasAllPermissions(ctx context.Context, userID string, permissions []string) (bool, error)

	// Authorize evaluates the required permissions under the given mode
	// and returns an explicit decision instead of an error
	Authorize(ctx context.Context, userID string, required []string, mode types.MatchMode) (types.Decision, error)

	// InvalidateUserPermissionsCache drops the cached set for one user
	InvalidateUserPermissionsCache(ctx context.Context, userID string) error

	// InvalidateRolePermissionsCache drops the cached sets of every user
	// currently holding the role
	InvalidateRolePermissionsCache(ctx context.Context, roleID string) error
}

// RateLimiter performs fixed-window rate limit accounting
type RateLimiter interface {
	// Check counts a request against the globally configured limit
	Check(ctx context.Context, key string) (types.RateLimitResult, error)

	// CheckCustom counts a request against a caller-supplied limit
	CheckCustom(ctx context.Context, key string, maxRequests int64, window time.Duration) (types.RateLimitResult, error)

	// CurrentCount peeks at the current window's counter without incrementing
	CurrentCount(ctx context.Context, key string) (int64, error)

	// Reset removes the counter for the current window only
	Reset(ctx context.Context, key string) (bool, error)
}

// Logger defines the logging interface
type Logger interface {
	// Debug logs debug level messages
	Debug(msg string, fields ...map[string]interface{})

	// Info logs info level messages
	Info(msg string, fields ...map[string]interface{})

	// Warn logs warning level messages
	Warn(msg string, fields ...map[string]interface{})

	// Error logs error level messages
	Error(msg string, err error, fields ...map[string]interface{})

	// Fatal logs fatal level messages and exits
	Fatal(msg string, err error, fields ...map[string]interface{})

	// WithFields returns a logger with additional fields
	WithFields(fields map[string]interface{}) Logger
}

// Metrics defines the metrics collection interface
type Metrics interface {
	// Counter increments a counter metric
	Counter(name string, value float64, labels map[string]string)

	// Gauge sets a gauge metric
	Gauge(name string, value float64, labels map[string]string)

	// Histogram records a histogram metric
	Histogram(name string, value float64, labels map[string]string)

	// Timer records timing metrics
	Timer(name string, duration float64, labels map[string]string)
}
