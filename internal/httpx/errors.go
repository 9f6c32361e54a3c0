package httpx

import (
	"errors"
	"fmt"
	"net/http"

	"go_certbot/internal/order"
)

// Business error codes
const (
	// Success
	CodeSuccess = 0

	// Authentication/Authorization errors (1000-1099)
	CodeUnauthorized = 1001 // Token missing
	CodeInvalidToken = 1002 // Token invalid
	CodeTokenExpired = 1003 // Token expired
	CodeForbidden    = 1004 // Scope not allowed

	// Parameter errors (2000-2099)
	CodeParamMissing = 2001 // Parameter missing
	CodeParamInvalid = 2002 // Parameter format error

	// Resource/Business errors (3000-3999)
	CodeNotFound       = 3001 // Resource not found
	CodeAlreadyExists  = 3002 // Open order for the domain already exists
	CodeStateConflict  = 3003 // Current status does not allow the action
	CodeQuotaExhausted = 3004 // No requests left

	// System errors (5000-5999)
	CodeInternalError = 5001 // Internal service error
	CodeDatabaseError = 5002 // Database error
	CodeExternalError = 5003 // Certificate tool or DNS failure
)

// AppError represents an application error with HTTP status and business code
type AppError struct {
	HTTPStatus int    // HTTP status code
	Code       int    // Business error code
	Message    string // User-facing error message
	Err        error  // Internal error (for logging only, not returned to client)
	Data       any    // Additional data, e.g. the order snapshot
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code=%d, message=%s, err=%v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("code=%d, message=%s", e.Code, e.Message)
}

// WithData adds additional data to the error
func (e *AppError) WithData(data any) *AppError {
	e.Data = data
	return e
}

// NewAppError creates a new AppError
func NewAppError(httpStatus, code int, message string, err error) *AppError {
	return &AppError{
		HTTPStatus: httpStatus,
		Code:       code,
		Message:    message,
		Err:        err,
	}
}

func orDefault(message, fallback string) string {
	if message == "" {
		return fallback
	}
	return message
}

// ErrUnauthorized creates a 401 unauthorized error
func ErrUnauthorized(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeUnauthorized, orDefault(message, "unauthorized"), nil)
}

// ErrInvalidToken creates a 401 invalid token error
func ErrInvalidToken(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeInvalidToken, orDefault(message, "invalid token"), nil)
}

// ErrTokenExpired creates a 401 token expired error
func ErrTokenExpired(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeTokenExpired, orDefault(message, "token expired"), nil)
}

// ErrForbidden creates a 403 forbidden error
func ErrForbidden(message string) *AppError {
	return NewAppError(http.StatusForbidden, CodeForbidden, orDefault(message, "forbidden"), nil)
}

// ErrParamMissing creates a 400 parameter missing error
func ErrParamMissing(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeParamMissing, orDefault(message, "parameter missing"), nil)
}

// ErrParamInvalid creates a 400 parameter invalid error
func ErrParamInvalid(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeParamInvalid, orDefault(message, "parameter format error"), nil)
}

// ErrNotFound creates a 404 not found error
func ErrNotFound(message string) *AppError {
	return NewAppError(http.StatusNotFound, CodeNotFound, orDefault(message, "resource not found"), nil)
}

// ErrAlreadyExists creates a 409 already exists error
func ErrAlreadyExists(message string) *AppError {
	return NewAppError(http.StatusConflict, CodeAlreadyExists, orDefault(message, "resource already exists"), nil)
}

// ErrStateConflict creates a 409 state conflict error
func ErrStateConflict(message string) *AppError {
	return NewAppError(http.StatusConflict, CodeStateConflict, orDefault(message, "current state does not allow operation"), nil)
}

// ErrQuotaExhausted creates a 403 quota error
func ErrQuotaExhausted(message string) *AppError {
	return NewAppError(http.StatusForbidden, CodeQuotaExhausted, orDefault(message, "quota exhausted"), nil)
}

// ErrInternalError creates a 500 internal error
func ErrInternalError(message string, err error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeInternalError, orDefault(message, "internal error"), err)
}

// ErrDatabaseError creates a 500 database error
func ErrDatabaseError(message string, err error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeDatabaseError, orDefault(message, "database error"), err)
}

// ErrExternalError creates a 502 external dependency error
func ErrExternalError(message string, err error) *AppError {
	return NewAppError(http.StatusBadGateway, CodeExternalError, orDefault(message, "external dependency failure"), err)
}

// FromOrderError maps an order failure onto a response error. The order
// snapshot, when present, is attached as Data.
func FromOrderError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var orderErr *order.Error
	if !errors.As(err, &orderErr) {
		return ErrInternalError("", err)
	}

	var out *AppError
	switch {
	case errors.Is(err, order.ErrValidation):
		out = ErrParamInvalid(orderErr.Message)
	case errors.Is(err, order.ErrQuotaExhausted):
		out = ErrQuotaExhausted(orderErr.Message)
	case errors.Is(err, order.ErrDuplicateOrder):
		out = ErrAlreadyExists(orderErr.Message)
	case errors.Is(err, order.ErrNotFound):
		out = ErrNotFound(orderErr.Message)
	case errors.Is(err, order.ErrIllegalTransition),
		errors.Is(err, order.ErrTerminalFailure),
		errors.Is(err, order.ErrPropagationPending):
		out = ErrStateConflict(orderErr.Message)
	case errors.Is(err, order.ErrExternalTool):
		out = ErrExternalError(orderErr.Message, orderErr.Err)
	default:
		out = ErrInternalError(orderErr.Message, err)
	}
	if orderErr.Order != nil {
		out.Data = orderErr.Order
	}
	return out
}
