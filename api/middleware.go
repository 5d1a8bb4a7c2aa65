package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/adminkit/adminkit/pkg/types"
)

// loggingMiddleware provides request logging
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		s.logger.Info("HTTP Request", map[string]interface{}{
			"method":      param.Method,
			"path":        param.Path,
			"status_code": param.StatusCode,
			"latency":     param.Latency,
			"client_ip":   param.ClientIP,
			"user_agent":  param.Request.UserAgent(),
			"request_id":  param.Keys["request_id"],
		})
		return ""
	})
}

// requestIDMiddleware adds a unique request ID to each request
func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// metricsMiddleware counts requests and records latency per route
func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		labels := map[string]string{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": strconv.Itoa(c.Writer.Status()),
		}
		s.metrics.Counter("http_requests_total", 1, labels)
		s.metrics.Timer("http_request", float64(time.Since(start).Milliseconds()), labels)
	}
}

// clientKey derives the rate limit key for a request. The first entry
// of X-Forwarded-For wins when present, then X-Real-IP, then the
// connection's remote address.
func clientKey(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			forwarded = forwarded[:idx]
		}
		if ip := strings.TrimSpace(forwarded); ip != "" {
			return ip
		}
	}
	if ip := c.GetHeader("X-Real-IP"); ip != "" {
		return ip
	}
	if addr := c.Request.RemoteAddr; addr != "" {
		if idx := strings.LastIndexByte(addr, ':'); idx > 0 {
			return addr[:idx]
		}
		return addr
	}
	return "unknown"
}

// setRateLimitHeaders exposes the window state on every counted
// response, not only on rejections
func setRateLimitHeaders(c *gin.Context, result types.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))
}

// rateLimitMiddleware applies the global fixed-window limit to every
// request whose path is not under an exempt prefix. A limiter backend
// failure fails the request closed.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	exempt := s.config.RateLimit.ExemptPaths

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, prefix := range exempt {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		result, err := s.limiter.Check(c.Request.Context(), clientKey(c))
		if err != nil {
			s.logger.Error("rate limiter unavailable", err, map[string]interface{}{
				"path": path,
			})
			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
				Code:    http.StatusInternalServerError,
				Message: "rate limiter unavailable",
			})
			return
		}

		setRateLimitHeaders(c, result)
		if result.Limited {
			c.Header("Retry-After", strconv.FormatInt(result.RetryAfter, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Code:    http.StatusTooManyRequests,
				Message: "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}

// RateLimit returns a per-route limiter with its own budget, keyed by
// route so it never shares a counter with the global limit
func (s *Server) RateLimit(maxRequests int64, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:%s", c.FullPath(), clientKey(c))

		result, err := s.limiter.CheckCustom(c.Request.Context(), key, maxRequests, window)
		if err != nil {
			s.logger.Error("rate limiter unavailable", err, map[string]interface{}{
				"path": c.FullPath(),
			})
			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
				Code:    http.StatusInternalServerError,
				Message: "rate limiter unavailable",
			})
			return
		}

		setRateLimitHeaders(c, result)
		if result.Limited {
			c.Header("Retry-After", strconv.FormatInt(result.RetryAfter, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Code:    http.StatusTooManyRequests,
				Message: "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}

// requirePermissions evaluates the authorization decision for the
// authenticated user and rejects with the missing permissions on denial
func (s *Server) requirePermissions(required []string, mode types.MatchMode) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Code:    http.StatusUnauthorized,
				Message: "authentication required",
			})
			return
		}

		decision, err := s.permissions.Authorize(c.Request.Context(), userID, required, mode)
		if err != nil {
			s.logger.Error("authorization check failed", err, map[string]interface{}{
				"user_id": userID,
			})
			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
				Code:    http.StatusInternalServerError,
				Message: "authorization check failed",
			})
			return
		}

		if !decision.Allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Code:    http.StatusForbidden,
				Message: "insufficient permissions",
				Missing: decision.Missing,
			})
			return
		}

		c.Next()
	}
}

// RequirePermission guards a route with a single permission
func (s *Server) RequirePermission(permission string) gin.HandlerFunc {
	return s.requirePermissions([]string{permission}, types.MatchAll)
}

// RequireAnyPermission guards a route with OR semantics
func (s *Server) RequireAnyPermission(permissions ...string) gin.HandlerFunc {
	return s.requirePermissions(permissions, types.MatchAny)
}

// RequireAllPermissions guards a route with AND semantics
func (s *Server) RequireAllPermissions(permissions ...string) gin.HandlerFunc {
	return s.requirePermissions(permissions, types.MatchAll)
}
