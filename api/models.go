package api

// BaseResponse represents the base structure for all API responses
type BaseResponse[T any] struct {
	Code    int    `json:"code" example:"200"`
	Message string `json:"message" example:"Operation successful"`
	Data    *T     `json:"data,omitempty"`
}

// SimpleResponse for operations without data return
type SimpleResponse = BaseResponse[interface{}]

// ErrorResponse represents an error response
type ErrorResponse struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Error   string   `json:"error,omitempty"`
	Missing []string `json:"missing_permissions,omitempty"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks"`
}

// MetricsResponse represents metrics response
type MetricsResponse struct {
	Timestamp string                 `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Metrics   map[string]interface{} `json:"metrics"`
}

// ListMeta carries pagination totals alongside list payloads
type ListMeta struct {
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// ListResponse wraps a page of items with its pagination metadata
type ListResponse[T any] struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Data    []T      `json:"data"`
	Meta    ListMeta `json:"meta"`
}

// AssignRoleRequest names the role to grant or revoke
type AssignRoleRequest struct {
	RoleID string `json:"role_id" binding:"required"`
}

// SetPermissionsRequest replaces a role's permission claims
type SetPermissionsRequest struct {
	Permissions []string `json:"permissions" binding:"required"`
}

// RateLimitStatusResponse reports the current window counter for a key
type RateLimitStatusResponse struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
	Limit int64  `json:"limit"`
}
