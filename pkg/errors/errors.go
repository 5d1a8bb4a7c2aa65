// Package errors provides structured error handling for AdminKit
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/adminkit/adminkit/pkg/types"
)

// ErrorCode represents specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation    ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField  ErrorCode = "MISSING_FIELD"
	ErrCodeSerialization ErrorCode = "SERIALIZATION_ERROR"

	// Authentication/Authorization errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeTokenExpired ErrorCode = "TOKEN_EXPIRED"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"

	// Resource errors
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	ErrCodeConflict      ErrorCode = "CONFLICT"

	// System errors
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeCacheUnavailable   ErrorCode = "CACHE_UNAVAILABLE"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"

	// Database errors
	ErrCodeDatabaseError    ErrorCode = "DATABASE_ERROR"
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	ErrCodeQueryFailed      ErrorCode = "QUERY_FAILED"

	// Configuration errors
	ErrCodeConfigError    ErrorCode = "CONFIG_ERROR"
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"
)

// AdminError represents a structured error in AdminKit
type AdminError struct {
	Type    types.ErrorType        `json:"type"`
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *AdminError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (caused by: %v)", e.Code, e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AdminError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *AdminError) WithDetail(key string, value interface{}) *AdminError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewAdminError creates a new AdminKit error
func NewAdminError(errType types.ErrorType, code ErrorCode, message string) *AdminError {
	return &AdminError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// NewAdminErrorWithCause creates a new AdminKit error with a cause
func NewAdminErrorWithCause(errType types.ErrorType, code ErrorCode, message string, cause error) *AdminError {
	return &AdminError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Validation error constructors
func NewValidationError(message string) *AdminError {
	return NewAdminError(types.ErrorTypeValidation, ErrCodeValidation, message)
}

func NewInvalidInputError(message string) *AdminError {
	return NewAdminError(types.ErrorTypeValidation, ErrCodeInvalidInput, message)
}

func NewMissingFieldError(field string) *AdminError {
	return NewAdminError(types.ErrorTypeValidation, ErrCodeMissingField,
		fmt.Sprintf("missing required field: %s", field)).WithDetail("field", field)
}

// NewSerializationError reports a value the cache backend could not encode
func NewSerializationError(message string, cause error) *AdminError {
	return NewAdminErrorWithCause(types.ErrorTypeValidation, ErrCodeSerialization, message, cause)
}

// Authentication/Authorization error constructors
func NewUnauthorizedError(message string) *AdminError {
	return NewAdminError(types.ErrorTypeUnauthorized, ErrCodeUnauthorized, message)
}

func NewForbiddenError(message string) *AdminError {
	return NewAdminError(types.ErrorTypeUnauthorized, ErrCodeForbidden, message)
}

func NewTokenExpiredError() *AdminError {
	return NewAdminError(types.ErrorTypeUnauthorized, ErrCodeTokenExpired, "token has expired")
}

func NewInvalidTokenError() *AdminError {
	return NewAdminError(types.ErrorTypeUnauthorized, ErrCodeInvalidToken, "invalid token")
}

// Resource error constructors
func NewNotFoundError(resource string) *AdminError {
	return NewAdminError(types.ErrorTypeNotFound, ErrCodeNotFound,
		fmt.Sprintf("%s not found", resource)).WithDetail("resource", resource)
}

func NewAlreadyExistsError(resource string) *AdminError {
	return NewAdminError(types.ErrorTypeValidation, ErrCodeAlreadyExists,
		fmt.Sprintf("%s already exists", resource)).WithDetail("resource", resource)
}

func NewConflictError(message string) *AdminError {
	return NewAdminError(types.ErrorTypeValidation, ErrCodeConflict, message)
}

// System error constructors
func NewInternalError(message string) *AdminError {
	return NewAdminError(types.ErrorTypeInternal, ErrCodeInternal, message)
}

func NewInternalErrorWithCause(message string, cause error) *AdminError {
	return NewAdminErrorWithCause(types.ErrorTypeInternal, ErrCodeInternal, message, cause)
}

// NewCacheUnavailableError reports a cache backend connectivity failure.
// Distinct from a miss so callers can choose fail-open or fail-closed.
func NewCacheUnavailableError(backend string, cause error) *AdminError {
	return NewAdminErrorWithCause(types.ErrorTypeExternal, ErrCodeCacheUnavailable,
		fmt.Sprintf("%s cache backend unavailable", backend), cause).WithDetail("backend", backend)
}

func NewServiceUnavailableError(service string) *AdminError {
	return NewAdminError(types.ErrorTypeInternal, ErrCodeServiceUnavailable,
		fmt.Sprintf("%s service is unavailable", service)).WithDetail("service", service)
}

func NewRateLimitedError(message string) *AdminError {
	return NewAdminError(types.ErrorTypeInternal, ErrCodeRateLimited, message)
}

// Database error constructors
func NewDatabaseError(message string) *AdminError {
	return NewAdminError(types.ErrorTypeInternal, ErrCodeDatabaseError, message)
}

func NewDatabaseErrorWithCause(message string, cause error) *AdminError {
	return NewAdminErrorWithCause(types.ErrorTypeInternal, ErrCodeDatabaseError, message, cause)
}

func NewConnectionFailedError(target string) *AdminError {
	return NewAdminError(types.ErrorTypeInternal, ErrCodeConnectionFailed,
		fmt.Sprintf("failed to connect to %s", target)).WithDetail("target", target)
}

// Configuration error constructors
func NewConfigError(message string) *AdminError {
	return NewAdminError(types.ErrorTypeValidation, ErrCodeConfigError, message)
}

func NewConfigNotFoundError(configPath string) *AdminError {
	return NewAdminError(types.ErrorTypeNotFound, ErrCodeConfigNotFound,
		fmt.Sprintf("configuration file not found: %s", configPath)).WithDetail("config_path", configPath)
}

func NewConfigInvalidError(message string) *AdminError {
	return NewAdminError(types.ErrorTypeValidation, ErrCodeConfigInvalid, message)
}

// IsAdminError checks if an error is an AdminError
func IsAdminError(err error) bool {
	var adminErr *AdminError
	return stderrors.As(err, &adminErr)
}

// GetAdminError extracts an AdminError from an error chain
func GetAdminError(err error) *AdminError {
	var adminErr *AdminError
	if stderrors.As(err, &adminErr) {
		return adminErr
	}
	return nil
}

// HasCode checks whether the error chain contains an AdminError with the code
func HasCode(err error, code ErrorCode) bool {
	adminErr := GetAdminError(err)
	return adminErr != nil && adminErr.Code == code
}

// IsCacheUnavailable checks whether the error marks the cache backend as
// unreachable, as opposed to a plain miss or any other failure
func IsCacheUnavailable(err error) bool {
	return HasCode(err, ErrCodeCacheUnavailable)
}

// WrapError wraps an error as an AdminError
func WrapError(err error, errType types.ErrorType, code ErrorCode, message string) *AdminError {
	return NewAdminErrorWithCause(errType, code, message, err)
}

// ErrorList represents a list of errors
type ErrorList struct {
	Errors []*AdminError `json:"errors"`
}

// Error implements the error interface
func (el *ErrorList) Error() string {
	var messages []string
	for _, err := range el.Errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// Add adds an error to the list
func (el *ErrorList) Add(err *AdminError) {
	el.Errors = append(el.Errors, err)
}

// HasErrors returns true if there are errors
func (el *ErrorList) HasErrors() bool {
	return len(el.Errors) > 0
}

// ToError returns the ErrorList as an error if it has errors, otherwise nil
func (el *ErrorList) ToError() error {
	if el.HasErrors() {
		return el
	}
	return nil
}

// NewErrorList creates a new error list
func NewErrorList() *ErrorList {
	return &ErrorList{
		Errors: make([]*AdminError, 0),
	}
}
