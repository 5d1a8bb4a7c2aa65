package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adminkit/adminkit/pkg/cache"
	"github.com/adminkit/adminkit/pkg/config"
	"github.com/adminkit/adminkit/pkg/identity"
	"github.com/adminkit/adminkit/pkg/logger"
	"github.com/adminkit/adminkit/pkg/metrics"
	"github.com/adminkit/adminkit/pkg/permissions"
	"github.com/adminkit/adminkit/pkg/ratelimit"
)

// newTestServer wires a complete server against a temp sqlite database
// and an in-process memory cache
func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.LogLevel = "error"
	cfg.Database.Path = filepath.Join(t.TempDir(), "api.db")
	cfg.Auth.JWTSecret = "api-test-secret-key"
	if mutate != nil {
		mutate(cfg)
	}

	log := logger.NewTestLogger()

	backend := cache.NewMemoryCache(cfg.Cache.CleanupInterval, log)
	t.Cleanup(func() { _ = backend.Close() })

	repo, err := identity.NewRepository(&cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	perms := permissions.NewService(repo, backend, cfg.Permissions.CacheTTL(), log)
	limiter := ratelimit.NewService(backend, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window(), log)
	manager := identity.NewManager(repo, perms, log)
	auth := identity.NewAuthService(&cfg.Auth, repo)

	return NewServer(cfg, Deps{
		Cache:       backend,
		Permissions: perms,
		Limiter:     limiter,
		Repository:  repo,
		Manager:     manager,
		Auth:        auth,
		Metrics:     metrics.NewInMemoryMetrics(),
	}, log)
}

func doJSON(t *testing.T, s *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func loginAs(t *testing.T, s *Server, username, password string) string {
	t.Helper()

	w := doJSON(t, s, http.MethodPost, "/auth/login", "", identity.LoginCredentials{
		Username: username,
		Password: password,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp identity.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.AccessToken
}

func adminToken(t *testing.T, s *Server) string {
	return loginAs(t, s, "admin", "admin123")
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, nil)

	w := doJSON(t, s, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "ok", resp.Checks["database"])
	assert.Equal(t, "ok", resp.Checks["cache"])
}

func TestServer_Login(t *testing.T) {
	s := newTestServer(t, nil)

	token := adminToken(t, s)
	assert.NotEmpty(t, token)

	w := doJSON(t, s, http.MethodPost, "/auth/login", "", identity.LoginCredentials{
		Username: "admin", Password: "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_RequiresAuthentication(t *testing.T) {
	s := newTestServer(t, nil)

	w := doJSON(t, s, http.MethodGet, "/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, s, http.MethodGet, "/users", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_UserLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	token := adminToken(t, s)

	w := doJSON(t, s, http.MethodPost, "/users", token, identity.CreateUserParams{
		Username: "carol",
		Email:    "carol@example.com",
		Password: "s3cret-password",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created BaseResponse[identity.User]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	userID := created.Data.UserID
	require.NotEmpty(t, userID)

	w = doJSON(t, s, http.MethodGet, "/users/"+userID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/users", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list ListResponse[identity.User]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, int64(2), list.Meta.Total, "admin plus carol")

	w = doJSON(t, s, http.MethodDelete, "/users/"+userID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/users/"+userID, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_DuplicateUserConflicts(t *testing.T) {
	s := newTestServer(t, nil)
	token := adminToken(t, s)

	body := identity.CreateUserParams{Username: "carol", Password: "s3cret-password"}
	w := doJSON(t, s, http.MethodPost, "/users", token, body)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, s, http.MethodPost, "/users", token, body)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestServer_PermissionDenialListsMissing(t *testing.T) {
	s := newTestServer(t, nil)
	admin := adminToken(t, s)

	// A viewer can list users but cannot create them.
	w := doJSON(t, s, http.MethodGet, "/roles", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var roles ListResponse[identity.Role]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &roles))

	var viewerRoleID string
	for _, role := range roles.Data {
		if role.RoleName == "viewer" {
			viewerRoleID = role.RoleID
		}
	}
	require.NotEmpty(t, viewerRoleID)

	w = doJSON(t, s, http.MethodPost, "/users", admin, identity.CreateUserParams{
		Username: "carol",
		Password: "s3cret-password",
		RoleIDs:  []string{viewerRoleID},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	viewer := loginAs(t, s, "carol", "s3cret-password")

	w = doJSON(t, s, http.MethodGet, "/users", viewer, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodPost, "/users", viewer, identity.CreateUserParams{
		Username: "dave", Password: "s3cret-password",
	})
	require.Equal(t, http.StatusForbidden, w.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, []string{"permission.users.manage"}, errResp.Missing)
}

func TestServer_RoleGrantTakesEffectImmediately(t *testing.T) {
	s := newTestServer(t, nil)
	admin := adminToken(t, s)

	w := doJSON(t, s, http.MethodPost, "/users", admin, identity.CreateUserParams{
		Username: "carol", Password: "s3cret-password",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created BaseResponse[identity.User]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	userID := created.Data.UserID

	carol := loginAs(t, s, "carol", "s3cret-password")

	// No roles yet, so even viewing is denied.
	w = doJSON(t, s, http.MethodGet, "/users", carol, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	// Create a role granting view access and assign it.
	w = doJSON(t, s, http.MethodPost, "/roles", admin, identity.CreateRoleParams{
		Name:        "support",
		Permissions: []string{"permission.users.view"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var role BaseResponse[identity.Role]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &role))

	w = doJSON(t, s, http.MethodPost, "/users/"+userID+"/roles", admin, AssignRoleRequest{
		RoleID: role.Data.RoleID,
	})
	require.Equal(t, http.StatusOK, w.Code)

	// The cached denial must not survive the assignment.
	w = doJSON(t, s, http.MethodGet, "/users", carol, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_SetRolePermissions(t *testing.T) {
	s := newTestServer(t, nil)
	admin := adminToken(t, s)

	w := doJSON(t, s, http.MethodPost, "/roles", admin, identity.CreateRoleParams{
		Name:        "operators",
		Permissions: []string{"permission.jobs.run"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var role BaseResponse[identity.Role]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &role))

	w = doJSON(t, s, http.MethodPut, "/roles/"+role.Data.RoleID+"/permissions", admin,
		SetPermissionsRequest{Permissions: []string{"permission.jobs.view"}})
	require.Equal(t, http.StatusOK, w.Code)

	var updated BaseResponse[identity.Role]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	require.Len(t, updated.Data.Claims, 1)
	assert.Equal(t, "permission.jobs.view", updated.Data.Claims[0].ClaimName)
}

func TestServer_AuditLogs(t *testing.T) {
	s := newTestServer(t, nil)
	admin := adminToken(t, s)

	w := doJSON(t, s, http.MethodPost, "/users", admin, identity.CreateUserParams{
		Username: "carol", Password: "s3cret-password",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, s, http.MethodGet, "/audit-logs?action=user.create", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var logs ListResponse[identity.AuditLog]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	require.Equal(t, int64(1), logs.Meta.Total)
	assert.Equal(t, "users", logs.Data[0].Resource)
	assert.True(t, logs.Data[0].Success)
}

func TestServer_AdminCacheEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	admin := adminToken(t, s)

	w := doJSON(t, s, http.MethodGet, "/admin/cache/stats", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats BaseResponse[map[string]interface{}]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, "memory", (*stats.Data)["type"])

	w = doJSON(t, s, http.MethodPost, "/admin/cache/clear", admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_AdminRateLimitEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	admin := adminToken(t, s)

	// Seed a counter for an arbitrary client key.
	_, err := s.limiter.Check(context.Background(), "198.51.100.7")
	require.NoError(t, err)

	w := doJSON(t, s, http.MethodGet, "/admin/ratelimit/198.51.100.7", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status BaseResponse[RateLimitStatusResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, int64(1), status.Data.Count)

	w = doJSON(t, s, http.MethodDelete, "/admin/ratelimit/198.51.100.7", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/admin/ratelimit/198.51.100.7", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, int64(0), status.Data.Count)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	// Generate one request so counters exist.
	doJSON(t, s, http.MethodGet, "/health", "", nil)

	w := doJSON(t, s, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp MetricsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Metrics)
}

func TestServer_RequestIDPropagation(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))

	// One is generated when the client sends none.
	w2 := doJSON(t, s, http.MethodGet, "/health", "", nil)
	assert.NotEmpty(t, w2.Header().Get("X-Request-ID"))
}

func TestServer_BadRequestOnMalformedBody(t *testing.T) {
	s := newTestServer(t, nil)
	admin := adminToken(t, s)

	req := httptest.NewRequest(http.MethodPost, "/users", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+admin)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_StartAndShutdown(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping listener test in short mode")
	}

	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.Host = "127.0.0.1"
		cfg.Server.Port = 18094
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	// Wait until the listener answers.
	url := fmt.Sprintf("http://127.0.0.1:%d/health", 18094)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
