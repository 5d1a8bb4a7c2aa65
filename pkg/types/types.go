// Package types provides shared types for AdminKit
package types

import "time"

// ErrorType represents the category of an error
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
)

// CacheBackend identifies a cache backend implementation
type CacheBackend string

const (
	CacheBackendMemory CacheBackend = "memory"
	CacheBackendRedis  CacheBackend = "redis"
)

// IsValid checks if the CacheBackend is a supported backend
func (b CacheBackend) IsValid() bool {
	switch b {
	case CacheBackendMemory, CacheBackendRedis:
		return true
	default:
		return false
	}
}

// String returns the string representation of CacheBackend
func (b CacheBackend) String() string {
	return string(b)
}

// CacheStats holds backend-specific cache counters keyed by name.
// Every backend includes a "type" entry.
type CacheStats map[string]interface{}

// PermissionSet represents the effective permission names of a user
type PermissionSet map[string]struct{}

// NewPermissionSet creates a PermissionSet from a list of permission names
func NewPermissionSet(names []string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

// Has checks if the set contains a specific permission
func (p PermissionSet) Has(permission string) bool {
	_, ok := p[permission]
	return ok
}

// HasAny checks if the set contains at least one of the given permissions
func (p PermissionSet) HasAny(permissions []string) bool {
	for _, permission := range permissions {
		if p.Has(permission) {
			return true
		}
	}
	return false
}

// HasAll checks if the set contains every one of the given permissions
func (p PermissionSet) HasAll(permissions []string) bool {
	for _, permission := range permissions {
		if !p.Has(permission) {
			return false
		}
	}
	return true
}

// Missing returns the subset of the given permissions absent from the set
func (p PermissionSet) Missing(permissions []string) []string {
	var missing []string
	for _, permission := range permissions {
		if !p.Has(permission) {
			missing = append(missing, permission)
		}
	}
	return missing
}

// ToList returns the permissions as a sorted-independent list, suitable
// for JSON serialization at the cache boundary
func (p PermissionSet) ToList() []string {
	list := make([]string, 0, len(p))
	for name := range p {
		list = append(list, name)
	}
	return list
}

// MatchMode selects OR versus AND semantics for authorization checks
type MatchMode string

const (
	MatchAny MatchMode = "any" // at least one required permission
	MatchAll MatchMode = "all" // every required permission
)

// Decision is the outcome of an authorization check. Denials carry the
// permissions the user lacked; translating a denial into an HTTP status
// is the caller's concern.
type Decision struct {
	Allowed bool     `json:"allowed"`
	Missing []string `json:"missing,omitempty"`
}

// RateLimitResult describes the outcome of a rate limit check
type RateLimitResult struct {
	Limited    bool  `json:"limited"`
	Limit      int64 `json:"limit"`
	Remaining  int64 `json:"remaining"`
	ResetAt    int64 `json:"reset_at"`    // unix seconds when the window ends
	RetryAfter int64 `json:"retry_after"` // seconds until retry, 0 unless limited
}

// Clock returns the current time. Services take a Clock so window and
// expiry arithmetic is testable without sleeping.
type Clock func() time.Time
