package errors

import (
	"errors"
	"fmt"
	"net/http"

	"uplinkpolicy/internal/core/domain"
	"uplinkpolicy/pkg/circuitbreaker"
)

type ErrorCode string

const (
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeInvalidPolicy      ErrorCode = "INVALID_POLICY"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeRateLimit          ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// AppError carries what the HTTP layer needs to render a failure.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	appErr := NewAppError(code, message, httpStatus)
	appErr.Cause = err
	return appErr
}

func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewUnauthorizedError(message string) *AppError {
	return NewAppError(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func NewForbiddenError(message string) *AppError {
	return NewAppError(ErrCodeForbidden, message, http.StatusForbidden)
}

func NewConflictError(message string) *AppError {
	return NewAppError(ErrCodeConflict, message, http.StatusConflict)
}

func NewRateLimitError() *AppError {
	return NewAppError(ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

func NewServiceUnavailableError(message string) *AppError {
	return NewAppError(ErrCodeServiceUnavailable, message, http.StatusServiceUnavailable)
}

// NewInvalidPolicyError lists every validation issue found in a table
// under the "issues" context key.
func NewInvalidPolicyError(err error) *AppError {
	appErr := WrapError(err, ErrCodeInvalidPolicy, "policy table is invalid", http.StatusUnprocessableEntity)

	issues := domain.ValidationIssues(err)
	if len(issues) == 0 {
		appErr.WithContext("issues", []string{err.Error()})
		return appErr
	}
	lines := make([]string, len(issues))
	for i, issue := range issues {
		lines[i] = issue.Error()
	}
	appErr.WithContext("issues", lines)
	return appErr
}

// FromDomain maps core errors onto their HTTP representation. Unknown
// errors become internal errors.
func FromDomain(err error) *AppError {
	if appErr := GetAppError(err); appErr != nil {
		return appErr
	}

	var appErr *AppError
	switch {
	case errors.Is(err, domain.ErrPolicyNotFound):
		appErr = NewNotFoundError("policy")
	case errors.Is(err, domain.ErrSenderNotFound):
		appErr = NewNotFoundError("sender decision")
	case errors.Is(err, domain.ErrSessionNotFound):
		appErr = NewNotFoundError("session")
	case errors.Is(err, domain.ErrDefaultPolicyRequired):
		appErr = NewConflictError("the default policy cannot be deleted")
	case errors.Is(err, domain.ErrInvalidPolicy):
		return NewInvalidPolicyError(err)
	case errors.Is(err, domain.ErrNoUplinkEstimate):
		appErr = NewInvalidInputError("packet carries no uplink estimate")
	case errors.Is(err, circuitbreaker.ErrOpen):
		appErr = NewServiceUnavailableError("policy store is unavailable")
	default:
		appErr = NewInternalError("internal server error")
	}
	appErr.Cause = err
	return appErr
}

func IsAppError(err error) bool {
	return GetAppError(err) != nil
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}
