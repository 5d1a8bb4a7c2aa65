// Package permissions provides cached role-based permission checks.
//
// The service is a stateless facade over the relational repository and
// an optional cache. Permission sets are loaded read-through per user
// and invalidated explicitly when role assignments or role claims
// change; in between, a bounded staleness window (the cache TTL)
// applies.
package permissions

import (
	"context"
	"fmt"
	"time"

	"github.com/adminkit/adminkit/pkg/interfaces"
	"github.com/adminkit/adminkit/pkg/types"
)

// CacheKeyPrefix namespaces cached permission sets
const CacheKeyPrefix = "permissions"

// DefaultCacheTTL is the sliding expiration for cached permission sets
const DefaultCacheTTL = 300 * time.Second

// Service implements cached permission lookups over a repository
type Service struct {
	repo   interfaces.PermissionRepository
	cache  interfaces.Cache
	ttl    time.Duration
	logger interfaces.Logger
}

// NewService creates a permission service. A nil cache is valid: every
// lookup then goes straight to the repository, trading latency for
// simplicity when no cache backend is configured.
func NewService(repo interfaces.PermissionRepository, cache interfaces.Cache, ttl time.Duration, logger interfaces.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// CacheKey returns the cache key for a user's permission set
func CacheKey(userID string) string {
	return fmt.Sprintf("%s:%s", CacheKeyPrefix, userID)
}

// GetUserPermissions returns the user's effective permission set,
// reading through the cache when one is configured. A cache backend
// failure is logged and treated as a miss so authorization keeps
// working against the repository.
func (s *Service) GetUserPermissions(ctx context.Context, userID string) (types.PermissionSet, error) {
	key := CacheKey(userID)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("permission cache read failed, falling back to repository", map[string]interface{}{
				"user_id": userID,
				"error":   err.Error(),
			})
		} else if cached != nil {
			if set, ok := permissionSetFromCache(cached); ok {
				return set, nil
			}
			s.logger.Warn("unexpected permission cache value, reloading", map[string]interface{}{
				"user_id": userID,
			})
		}
	}

	names, err := s.repo.GetUserPermissions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions for user %s: %w", userID, err)
	}
	set := types.NewPermissionSet(names)

	if s.cache != nil {
		// Stored as a list so the value survives JSON serialization in
		// the remote backend.
		if err := s.cache.Set(ctx, key, set.ToList(), s.ttl); err != nil {
			s.logger.Warn("failed to cache permissions", map[string]interface{}{
				"user_id": userID,
				"error":   err.Error(),
			})
		}
	}

	return set, nil
}

// permissionSetFromCache rebuilds a PermissionSet from the two shapes a
// cached list can take: []string from the memory backend and
// []interface{} after a JSON round-trip through Redis
func permissionSetFromCache(cached interface{}) (types.PermissionSet, bool) {
	switch list := cached.(type) {
	case []string:
		return types.NewPermissionSet(list), true
	case []interface{}:
		names := make([]string, 0, len(list))
		for _, item := range list {
			name, ok := item.(string)
			if !ok {
				return nil, false
			}
			names = append(names, name)
		}
		return types.NewPermissionSet(names), true
	default:
		return nil, false
	}
}

// HasPermission checks if a user holds a specific permission
func (s *Service) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	set, err := s.GetUserPermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.Has(permission), nil
}

// HasAnyPermission checks if a user holds at least one of the given
// permissions (OR semantics)
func (s *Service) HasAnyPermission(ctx context.Context, userID string, permissions []string) (bool, error) {
	set, err := s.GetUserPermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.HasAny(permissions), nil
}

// HasAllPermissions checks if a user holds every one of the given
// permissions (AND semantics)
func (s *Service) HasAllPermissions(ctx context.Context, userID string, permissions []string) (bool, error) {
	set, err := s.GetUserPermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.HasAll(permissions), nil
}

// Authorize evaluates the required permissions and returns an explicit
// decision. Denials carry the missing permissions; mapping a denial to
// an HTTP 403 is the transport layer's job, not this package's.
func (s *Service) Authorize(ctx context.Context, userID string, required []string, mode types.MatchMode) (types.Decision, error) {
	set, err := s.GetUserPermissions(ctx, userID)
	if err != nil {
		return types.Decision{}, err
	}

	switch mode {
	case types.MatchAny:
		if set.HasAny(required) {
			return types.Decision{Allowed: true}, nil
		}
		return types.Decision{Allowed: false, Missing: required}, nil
	default:
		missing := set.Missing(required)
		if len(missing) == 0 {
			return types.Decision{Allowed: true}, nil
		}
		return types.Decision{Allowed: false, Missing: missing}, nil
	}
}

// InvalidateUserPermissionsCache drops the cached set for one user.
// Must be called after any change to the user's role assignments.
func (s *Service) InvalidateUserPermissionsCache(ctx context.Context, userID string) error {
	if s.cache == nil {
		return nil
	}
	if _, err := s.cache.Remove(ctx, CacheKey(userID)); err != nil {
		return fmt.Errorf("failed to invalidate permissions for user %s: %w", userID, err)
	}
	return nil
}

// InvalidateRolePermissionsCache drops the cached sets of every user
// holding the role. Sequential on purpose: role claim edits are rare
// administrative operations, not a hot path.
func (s *Service) InvalidateRolePermissionsCache(ctx context.Context, roleID string) error {
	if s.cache == nil {
		return nil
	}

	userIDs, err := s.repo.GetUsersByRole(ctx, roleID)
	if err != nil {
		return fmt.Errorf("failed to list users for role %s: %w", roleID, err)
	}

	for _, userID := range userIDs {
		if err := s.InvalidateUserPermissionsCache(ctx, userID); err != nil {
			return err
		}
	}

	s.logger.Debug("invalidated permission cache for role", map[string]interface{}{
		"role_id": roleID,
		"users":   len(userIDs),
	})
	return nil
}

var _ interfaces.PermissionChecker = (*Service)(nil)
