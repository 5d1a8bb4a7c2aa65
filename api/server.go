// Package api provides the HTTP REST surface for AdminKit
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/adminkit/adminkit/pkg/config"
	"github.com/adminkit/adminkit/pkg/identity"
	"github.com/adminkit/adminkit/pkg/interfaces"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// Server represents the API server instance
type Server struct {
	config      *config.Config
	logger      interfaces.Logger
	metrics     interfaces.Metrics
	router      *gin.Engine
	server      *http.Server
	cache       interfaces.Cache
	permissions interfaces.PermissionChecker
	limiter     interfaces.RateLimiter
	repository  *identity.Repository
	manager     *identity.Manager
	auth        *identity.AuthService
	startedAt   time.Time
}

// Deps bundles the collaborators the server dispatches to
type Deps struct {
	Cache       interfaces.Cache
	Permissions interfaces.PermissionChecker
	Limiter     interfaces.RateLimiter
	Repository  *identity.Repository
	Manager     *identity.Manager
	Auth        *identity.AuthService
	Metrics     interfaces.Metrics
}

// NewServer creates a new API server instance
func NewServer(cfg *config.Config, deps Deps, logger interfaces.Logger) *Server {
	if cfg.LogLevel == "error" || cfg.LogLevel == "warn" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	s := &Server{
		config:      cfg,
		logger:      logger,
		metrics:     deps.Metrics,
		router:      gin.New(),
		cache:       deps.Cache,
		permissions: deps.Permissions,
		limiter:     deps.Limiter,
		repository:  deps.Repository,
		manager:     deps.Manager,
		auth:        deps.Auth,
		startedAt:   time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(s.metricsMiddleware())

	if s.config.Server.CORSEnabled {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = s.config.Server.CORSOrigins
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
		corsConfig.ExposeHeaders = []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"}
		s.router.Use(cors.New(corsConfig))
	}

	if s.config.RateLimit.Enabled {
		s.router.Use(s.rateLimitMiddleware())
	}

	s.router.Use(s.authMiddleware())
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", s.getMetrics)

	// Login carries its own tight budget on top of the global limit.
	s.router.POST("/auth/login", s.RateLimit(10, time.Minute), s.login)

	users := s.router.Group("/users")
	{
		users.GET("", s.RequirePermission("permission.users.view"), s.listUsers)
		users.POST("", s.RequirePermission("permission.users.manage"), s.createUser)
		users.GET("/:user_id", s.RequirePermission("permission.users.view"), s.getUser)
		users.PUT("/:user_id", s.RequirePermission("permission.users.manage"), s.updateUser)
		users.DELETE("/:user_id", s.RequirePermission("permission.users.manage"), s.deactivateUser)
		users.POST("/:user_id/roles", s.RequireAllPermissions("permission.users.manage", "permission.roles.view"), s.assignRole)
		users.DELETE("/:user_id/roles/:role_id", s.RequireAllPermissions("permission.users.manage", "permission.roles.view"), s.removeRole)
	}

	roles := s.router.Group("/roles")
	{
		roles.GET("", s.RequirePermission("permission.roles.view"), s.listRoles)
		roles.POST("", s.RequirePermission("permission.roles.manage"), s.createRole)
		roles.GET("/:role_id", s.RequirePermission("permission.roles.view"), s.getRole)
		roles.PUT("/:role_id/permissions", s.RequirePermission("permission.roles.manage"), s.setRolePermissions)
		roles.DELETE("/:role_id", s.RequirePermission("permission.roles.manage"), s.deleteRole)
	}

	s.router.GET("/audit-logs", s.RequirePermission("permission.audit.view"), s.listAuditLogs)

	admin := s.router.Group("/admin", s.RequirePermission("permission.system.manage"))
	{
		admin.GET("/cache/stats", s.cacheStats)
		admin.POST("/cache/clear", s.cacheClear)
		admin.GET("/ratelimit/:key", s.rateLimitStatus)
		admin.DELETE("/ratelimit/:key", s.rateLimitReset)
	}
}

// Start runs the server until the context is cancelled, then shuts
// down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.Server.Timeout,
		WriteTimeout: s.config.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting API server", map[string]interface{}{
		"addr": s.server.Addr,
		"mode": gin.Mode(),
	})

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down API server", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// Stop gracefully stops the API server
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Handler exposes the router, used by tests and embedding callers
func (s *Server) Handler() http.Handler {
	return s.router
}
