package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adminkit/adminkit/pkg/errors"
	"github.com/adminkit/adminkit/pkg/identity"
	"github.com/adminkit/adminkit/pkg/types"
)

// healthCheck reports server, database, and cache status
func (s *Server) healthCheck(c *gin.Context) {
	checks := map[string]string{"server": "ok"}
	status := "healthy"

	if err := s.repository.HealthCheck(); err != nil {
		checks["database"] = err.Error()
		status = "degraded"
	} else {
		checks["database"] = "ok"
	}

	if _, err := s.cache.Stats(c.Request.Context()); err != nil {
		checks["cache"] = err.Error()
		status = "degraded"
	} else {
		checks["cache"] = "ok"
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
		Uptime:    time.Since(s.startedAt).String(),
		Checks:    checks,
	})
}

// getMetrics returns the collected counters and gauges
func (s *Server) getMetrics(c *gin.Context) {
	snapshot := map[string]interface{}{}
	if provider, ok := s.metrics.(interface{ Snapshot() map[string]float64 }); ok {
		for name, value := range provider.Snapshot() {
			snapshot[name] = value
		}
	}

	c.JSON(http.StatusOK, MetricsResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startedAt).String(),
		Metrics:   snapshot,
	})
}

// login authenticates credentials and returns an access token
func (s *Server) login(c *gin.Context) {
	var req identity.LoginCredentials
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	resp, err := s.auth.Authenticate(c.Request.Context(), req)
	if err != nil {
		s.handleError(c, "Authentication failed", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// User handlers

func (s *Server) listUsers(c *gin.Context) {
	limit := s.parseIntParam(c, "limit", 50)
	offset := s.parseIntParam(c, "offset", 0)

	users, total, err := s.manager.ListUsers(c.Request.Context(), limit, offset)
	if err != nil {
		s.handleError(c, "Failed to list users", err)
		return
	}

	c.JSON(http.StatusOK, ListResponse[identity.User]{
		Code:    http.StatusOK,
		Message: "Users retrieved successfully",
		Data:    users,
		Meta:    ListMeta{Total: total, Limit: limit, Offset: offset},
	})
}

func (s *Server) createUser(c *gin.Context) {
	var req identity.CreateUserParams
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	user, err := s.manager.CreateUser(c.Request.Context(), req, s.auditInfo(c))
	if err != nil {
		s.handleError(c, "Failed to create user", err)
		return
	}

	c.JSON(http.StatusCreated, BaseResponse[identity.User]{
		Code:    http.StatusCreated,
		Message: "User created successfully",
		Data:    user,
	})
}

func (s *Server) getUser(c *gin.Context) {
	user, err := s.manager.GetUser(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		s.handleError(c, "Failed to get user", err)
		return
	}

	c.JSON(http.StatusOK, BaseResponse[identity.User]{
		Code:    http.StatusOK,
		Message: "User retrieved successfully",
		Data:    user,
	})
}

func (s *Server) updateUser(c *gin.Context) {
	var req identity.UpdateUserParams
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	user, err := s.manager.UpdateUser(c.Request.Context(), c.Param("user_id"), req, s.auditInfo(c))
	if err != nil {
		s.handleError(c, "Failed to update user", err)
		return
	}

	c.JSON(http.StatusOK, BaseResponse[identity.User]{
		Code:    http.StatusOK,
		Message: "User updated successfully",
		Data:    user,
	})
}

func (s *Server) deactivateUser(c *gin.Context) {
	if err := s.manager.DeactivateUser(c.Request.Context(), c.Param("user_id"), s.auditInfo(c)); err != nil {
		s.handleError(c, "Failed to deactivate user", err)
		return
	}

	c.JSON(http.StatusOK, SimpleResponse{
		Code:    http.StatusOK,
		Message: "User deactivated successfully",
	})
}

func (s *Server) assignRole(c *gin.Context) {
	var req AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	err := s.manager.AssignRole(c.Request.Context(), c.Param("user_id"), req.RoleID, s.auditInfo(c))
	if err != nil {
		s.handleError(c, "Failed to assign role", err)
		return
	}

	c.JSON(http.StatusOK, SimpleResponse{
		Code:    http.StatusOK,
		Message: "Role assigned successfully",
	})
}

func (s *Server) removeRole(c *gin.Context) {
	err := s.manager.RemoveRole(c.Request.Context(), c.Param("user_id"), c.Param("role_id"), s.auditInfo(c))
	if err != nil {
		s.handleError(c, "Failed to remove role", err)
		return
	}

	c.JSON(http.StatusOK, SimpleResponse{
		Code:    http.StatusOK,
		Message: "Role removed successfully",
	})
}

// Role handlers

func (s *Server) listRoles(c *gin.Context) {
	roles, err := s.manager.ListRoles(c.Request.Context())
	if err != nil {
		s.handleError(c, "Failed to list roles", err)
		return
	}

	c.JSON(http.StatusOK, ListResponse[identity.Role]{
		Code:    http.StatusOK,
		Message: "Roles retrieved successfully",
		Data:    roles,
		Meta:    ListMeta{Total: int64(len(roles)), Limit: len(roles)},
	})
}

func (s *Server) createRole(c *gin.Context) {
	var req identity.CreateRoleParams
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	role, err := s.manager.CreateRole(c.Request.Context(), req, s.auditInfo(c))
	if err != nil {
		s.handleError(c, "Failed to create role", err)
		return
	}

	c.JSON(http.StatusCreated, BaseResponse[identity.Role]{
		Code:    http.StatusCreated,
		Message: "Role created successfully",
		Data:    role,
	})
}

func (s *Server) getRole(c *gin.Context) {
	role, err := s.manager.GetRole(c.Request.Context(), c.Param("role_id"))
	if err != nil {
		s.handleError(c, "Failed to get role", err)
		return
	}

	c.JSON(http.StatusOK, BaseResponse[identity.Role]{
		Code:    http.StatusOK,
		Message: "Role retrieved successfully",
		Data:    role,
	})
}

func (s *Server) setRolePermissions(c *gin.Context) {
	var req SetPermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	role, err := s.manager.SetRolePermissions(c.Request.Context(), c.Param("role_id"), req.Permissions, s.auditInfo(c))
	if err != nil {
		s.handleError(c, "Failed to set role permissions", err)
		return
	}

	c.JSON(http.StatusOK, BaseResponse[identity.Role]{
		Code:    http.StatusOK,
		Message: "Role permissions updated successfully",
		Data:    role,
	})
}

func (s *Server) deleteRole(c *gin.Context) {
	if err := s.manager.DeleteRole(c.Request.Context(), c.Param("role_id"), s.auditInfo(c)); err != nil {
		s.handleError(c, "Failed to delete role", err)
		return
	}

	c.JSON(http.StatusOK, SimpleResponse{
		Code:    http.StatusOK,
		Message: "Role deleted successfully",
	})
}

// Audit handlers

func (s *Server) listAuditLogs(c *gin.Context) {
	limit := s.parseIntParam(c, "limit", 50)
	offset := s.parseIntParam(c, "offset", 0)

	logs, total, err := s.manager.ListAuditLogs(c.Request.Context(), limit, offset,
		c.Query("user_id"), c.Query("action"), c.Query("resource"))
	if err != nil {
		s.handleError(c, "Failed to list audit logs", err)
		return
	}

	c.JSON(http.StatusOK, ListResponse[identity.AuditLog]{
		Code:    http.StatusOK,
		Message: "Audit logs retrieved successfully",
		Data:    logs,
		Meta:    ListMeta{Total: total, Limit: limit, Offset: offset},
	})
}

// Admin handlers

func (s *Server) cacheStats(c *gin.Context) {
	stats, err := s.cache.Stats(c.Request.Context())
	if err != nil {
		s.handleError(c, "Failed to read cache stats", err)
		return
	}

	data := map[string]interface{}(stats)
	c.JSON(http.StatusOK, BaseResponse[map[string]interface{}]{
		Code:    http.StatusOK,
		Message: "Cache stats retrieved successfully",
		Data:    &data,
	})
}

// cacheClear flushes the whole backend. Global on purpose: every
// consumer of the shared backend loses its entries, including
// permission sets and rate limit counters.
func (s *Server) cacheClear(c *gin.Context) {
	if err := s.cache.Clear(c.Request.Context()); err != nil {
		s.handleError(c, "Failed to clear cache", err)
		return
	}

	s.logger.Warn("cache cleared by administrator", map[string]interface{}{
		"user_id":    c.GetString("user_id"),
		"request_id": c.GetString("request_id"),
	})

	c.JSON(http.StatusOK, SimpleResponse{
		Code:    http.StatusOK,
		Message: "Cache cleared successfully",
	})
}

func (s *Server) rateLimitStatus(c *gin.Context) {
	key := c.Param("key")

	count, err := s.limiter.CurrentCount(c.Request.Context(), key)
	if err != nil {
		s.handleError(c, "Failed to read rate limit counter", err)
		return
	}

	c.JSON(http.StatusOK, BaseResponse[RateLimitStatusResponse]{
		Code:    http.StatusOK,
		Message: "Rate limit status retrieved successfully",
		Data: &RateLimitStatusResponse{
			Key:   key,
			Count: count,
			Limit: s.config.RateLimit.MaxRequests,
		},
	})
}

func (s *Server) rateLimitReset(c *gin.Context) {
	removed, err := s.limiter.Reset(c.Request.Context(), c.Param("key"))
	if err != nil {
		s.handleError(c, "Failed to reset rate limit counter", err)
		return
	}

	message := "No active window for key"
	if removed {
		message = "Rate limit counter reset successfully"
	}

	c.JSON(http.StatusOK, SimpleResponse{
		Code:    http.StatusOK,
		Message: message,
	})
}

// Helpers

// auditInfo captures who is acting from the request context
func (s *Server) auditInfo(c *gin.Context) identity.AuditInfo {
	return identity.AuditInfo{
		ActorID:   c.GetString("user_id"),
		IPAddress: c.ClientIP(),
	}
}

// badRequest reports a request binding failure
func (s *Server) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Code:    http.StatusBadRequest,
		Message: "Invalid request format",
		Error:   err.Error(),
	})
}

// handleError maps structured errors onto HTTP status codes and logs
// the failure with its request ID
func (s *Server) handleError(c *gin.Context, message string, err error) {
	status := http.StatusInternalServerError
	if adminErr := errors.GetAdminError(err); adminErr != nil {
		switch adminErr.Type {
		case types.ErrorTypeValidation:
			status = http.StatusBadRequest
			if adminErr.Code == errors.ErrCodeAlreadyExists {
				status = http.StatusConflict
			}
		case types.ErrorTypeNotFound:
			status = http.StatusNotFound
		case types.ErrorTypeUnauthorized:
			status = http.StatusUnauthorized
		}
	}

	if status == http.StatusInternalServerError {
		s.logger.Error(message, err, map[string]interface{}{
			"request_id": c.GetString("request_id"),
			"path":       c.Request.URL.Path,
			"method":     c.Request.Method,
		})
	}

	c.JSON(status, ErrorResponse{
		Code:    status,
		Message: message,
		Error:   err.Error(),
	})
}

// parseIntParam safely parses integer query parameters
func (s *Server) parseIntParam(c *gin.Context, param string, defaultValue int) int {
	valueStr := c.Query(param)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil || value < 0 {
		return defaultValue
	}
	return value
}
