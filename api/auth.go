package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// publicPaths need no Bearer token
var publicPaths = map[string]struct{}{
	"/health":     {},
	"/metrics":    {},
	"/auth/login": {},
}

// authMiddleware validates the Bearer token and attaches the
// authenticated user to the request context
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := publicPaths[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Code:    http.StatusUnauthorized,
				Message: "missing authorization header",
			})
			return
		}

		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Code:    http.StatusUnauthorized,
				Message: "invalid authorization header",
			})
			return
		}

		user, err := s.auth.ValidateToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Code:    http.StatusUnauthorized,
				Message: "invalid or expired token",
			})
			return
		}

		c.Set("user_id", user.UserID)
		c.Set("username", user.UserName)
		c.Next()
	}
}
