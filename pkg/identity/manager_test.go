package identity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adminkit/adminkit/pkg/cache"
	"github.com/adminkit/adminkit/pkg/errors"
	"github.com/adminkit/adminkit/pkg/logger"
	"github.com/adminkit/adminkit/pkg/permissions"
)

// setupManager wires a real repository, memory cache, and permission
// service together so invalidation behavior is observable end to end
func setupManager(t *testing.T) (*Manager, *permissions.Service, *Repository) {
	t.Helper()

	repo := setupRepositoryAt(t, filepath.Join(t.TempDir(), "manager.db"))

	backend := cache.NewMemoryCache(time.Minute, logger.NewTestLogger())
	t.Cleanup(func() { _ = backend.Close() })

	perms := permissions.NewService(repo, backend, time.Minute, logger.NewTestLogger())
	mgr := NewManager(repo, perms, logger.NewTestLogger())

	return mgr, perms, repo
}

var testAudit = AuditInfo{ActorID: "test-actor", IPAddress: "127.0.0.1"}

func TestManager_CreateUser(t *testing.T) {
	mgr, _, repo := setupManager(t)
	ctx := context.Background()

	role, err := repo.GetRoleByName(ctx, "viewer")
	require.NoError(t, err)

	user, err := mgr.CreateUser(ctx, CreateUserParams{
		Username: "carol",
		Email:    "carol@example.com",
		Password: "s3cret-password",
		RoleIDs:  []string{role.RoleID},
	}, testAudit)
	require.NoError(t, err)
	assert.Empty(t, user.PasswordHash)

	perms, err := repo.GetUserPermissions(ctx, user.UserID)
	require.NoError(t, err)
	assert.Contains(t, perms, "permission.users.view")

	// The creation is on the audit trail.
	logs, _, err := mgr.ListAuditLogs(ctx, 10, 0, "test-actor", "user.create", "")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, user.UserID, logs[0].ResourceID)
}

func TestManager_CreateUser_DuplicateUsername(t *testing.T) {
	mgr, _, _ := setupManager(t)
	ctx := context.Background()

	_, err := mgr.CreateUser(ctx, CreateUserParams{
		Username: "carol", Password: "s3cret-password",
	}, testAudit)
	require.NoError(t, err)

	_, err = mgr.CreateUser(ctx, CreateUserParams{
		Username: "carol", Password: "another-password",
	}, testAudit)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeAlreadyExists))
}

func TestManager_AssignRoleInvalidatesCache(t *testing.T) {
	mgr, perms, repo := setupManager(t)
	ctx := context.Background()

	user, err := mgr.CreateUser(ctx, CreateUserParams{
		Username: "carol", Password: "s3cret-password",
	}, testAudit)
	require.NoError(t, err)

	// Warm the cache with the empty permission set.
	set, err := perms.GetUserPermissions(ctx, user.UserID)
	require.NoError(t, err)
	require.Empty(t, set)

	role, err := repo.GetRoleByName(ctx, "viewer")
	require.NoError(t, err)
	require.NoError(t, mgr.AssignRole(ctx, user.UserID, role.RoleID, testAudit))

	// Without invalidation this would still be the stale empty set.
	set, err = perms.GetUserPermissions(ctx, user.UserID)
	require.NoError(t, err)
	assert.True(t, set.Has("permission.users.view"))
}

func TestManager_RemoveRoleInvalidatesCache(t *testing.T) {
	mgr, perms, repo := setupManager(t)
	ctx := context.Background()

	role, err := repo.GetRoleByName(ctx, "viewer")
	require.NoError(t, err)

	user, err := mgr.CreateUser(ctx, CreateUserParams{
		Username: "carol", Password: "s3cret-password",
		RoleIDs: []string{role.RoleID},
	}, testAudit)
	require.NoError(t, err)

	set, err := perms.GetUserPermissions(ctx, user.UserID)
	require.NoError(t, err)
	require.True(t, set.Has("permission.users.view"))

	require.NoError(t, mgr.RemoveRole(ctx, user.UserID, role.RoleID, testAudit))

	set, err = perms.GetUserPermissions(ctx, user.UserID)
	require.NoError(t, err)
	assert.False(t, set.Has("permission.users.view"))
}

func TestManager_SetRolePermissionsInvalidatesHolders(t *testing.T) {
	mgr, perms, _ := setupManager(t)
	ctx := context.Background()

	role, err := mgr.CreateRole(ctx, CreateRoleParams{
		Name:        "operators",
		Permissions: []string{"permission.jobs.run"},
	}, testAudit)
	require.NoError(t, err)

	user, err := mgr.CreateUser(ctx, CreateUserParams{
		Username: "carol", Password: "s3cret-password",
		RoleIDs: []string{role.RoleID},
	}, testAudit)
	require.NoError(t, err)

	set, err := perms.GetUserPermissions(ctx, user.UserID)
	require.NoError(t, err)
	require.True(t, set.Has("permission.jobs.run"))

	_, err = mgr.SetRolePermissions(ctx, role.RoleID,
		[]string{"permission.jobs.view"}, testAudit)
	require.NoError(t, err)

	set, err = perms.GetUserPermissions(ctx, user.UserID)
	require.NoError(t, err)
	assert.False(t, set.Has("permission.jobs.run"))
	assert.True(t, set.Has("permission.jobs.view"))
}

func TestManager_DeleteRoleInvalidatesHolders(t *testing.T) {
	mgr, perms, _ := setupManager(t)
	ctx := context.Background()

	role, err := mgr.CreateRole(ctx, CreateRoleParams{
		Name:        "operators",
		Permissions: []string{"permission.jobs.run"},
	}, testAudit)
	require.NoError(t, err)

	user, err := mgr.CreateUser(ctx, CreateUserParams{
		Username: "carol", Password: "s3cret-password",
		RoleIDs: []string{role.RoleID},
	}, testAudit)
	require.NoError(t, err)

	set, err := perms.GetUserPermissions(ctx, user.UserID)
	require.NoError(t, err)
	require.True(t, set.Has("permission.jobs.run"))

	require.NoError(t, mgr.DeleteRole(ctx, role.RoleID, testAudit))

	set, err = perms.GetUserPermissions(ctx, user.UserID)
	require.NoError(t, err)
	assert.False(t, set.Has("permission.jobs.run"))
}

func TestManager_DeactivateUserInvalidatesCache(t *testing.T) {
	mgr, perms, repo := setupManager(t)
	ctx := context.Background()

	role, err := repo.GetRoleByName(ctx, "viewer")
	require.NoError(t, err)

	user, err := mgr.CreateUser(ctx, CreateUserParams{
		Username: "carol", Password: "s3cret-password",
		RoleIDs: []string{role.RoleID},
	}, testAudit)
	require.NoError(t, err)

	_, err = perms.GetUserPermissions(ctx, user.UserID)
	require.NoError(t, err)

	require.NoError(t, mgr.DeactivateUser(ctx, user.UserID, testAudit))

	exists, err := repo.GetUser(ctx, user.UserID)
	require.NoError(t, err)
	assert.Nil(t, exists)
}

func TestManager_UpdateUser(t *testing.T) {
	mgr, _, _ := setupManager(t)
	ctx := context.Background()

	user, err := mgr.CreateUser(ctx, CreateUserParams{
		Username: "carol", Password: "s3cret-password",
	}, testAudit)
	require.NoError(t, err)

	email := "carol@corp.example.com"
	name := "Carol Jones"
	updated, err := mgr.UpdateUser(ctx, user.UserID, UpdateUserParams{
		Email:    &email,
		FullName: &name,
	}, testAudit)
	require.NoError(t, err)
	assert.Equal(t, email, updated.Email)
	assert.Equal(t, name, updated.FullName)
}

func TestManager_GetUser_NotFound(t *testing.T) {
	mgr, _, _ := setupManager(t)

	_, err := mgr.GetUser(context.Background(), "missing-id")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}
