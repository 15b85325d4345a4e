package error

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

const (
	// Authentication Errors (1xxx)
	ErrCodeInvalidCredentials ErrorCode = "AUTH_1001"
	ErrCodeUnauthorized       ErrorCode = "AUTH_1009"

	// Validation Errors (2xxx)
	ErrCodeInvalidEmail    ErrorCode = "VALID_2001"
	ErrCodeInvalidPassword ErrorCode = "VALID_2002"
	ErrCodeInvalidRequest  ErrorCode = "VALID_2005"

	// Rate Limiting Errors (3xxx)
	ErrCodeRateLimitExceeded ErrorCode = "RATE_3001"

	// Server Errors (6xxx)
	ErrCodeInternalServerError ErrorCode = "SERVER_6001"
	ErrCodeConfigurationError  ErrorCode = "SERVER_6003"
	ErrCodeSigningError        ErrorCode = "SERVER_6005"

	// Security Errors (7xxx)
	ErrCodeForbidden        ErrorCode = "SEC_7003"
	ErrCodeInvalidCsrfToken ErrorCode = "SEC_7004"
)

var httpStatusByCode = map[ErrorCode]int{
	ErrCodeInvalidCredentials:  http.StatusUnauthorized,
	ErrCodeUnauthorized:        http.StatusUnauthorized,
	ErrCodeInvalidEmail:        http.StatusUnprocessableEntity,
	ErrCodeInvalidPassword:     http.StatusUnprocessableEntity,
	ErrCodeInvalidRequest:      http.StatusBadRequest,
	ErrCodeRateLimitExceeded:   http.StatusTooManyRequests,
	ErrCodeInternalServerError: http.StatusInternalServerError,
	ErrCodeConfigurationError:  http.StatusInternalServerError,
	ErrCodeSigningError:        http.StatusInternalServerError,
	ErrCodeForbidden:           http.StatusForbidden,
	ErrCodeInvalidCsrfToken:    http.StatusForbidden,
}

// AppError represents a structured application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on code so callers can use errors.Is against the constructors below.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func NewAppError(code ErrorCode, message string, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// ErrInvalidCredentials is the login failure. The message is identical for an
// unknown email and a wrong password.
func ErrInvalidCredentials() *AppError {
	return NewAppError(ErrCodeInvalidCredentials, "Invalid email or password", "", nil)
}

// ErrUnauthorized means no valid session exists; the client must log in again.
func ErrUnauthorized(details string) *AppError {
	return NewAppError(ErrCodeUnauthorized, "Unauthorized", details, nil)
}

func ErrForbidden(details string) *AppError {
	return NewAppError(ErrCodeForbidden, "Forbidden", details, nil)
}

// ErrInvalidCsrfToken is deliberately vague toward the client.
func ErrInvalidCsrfToken() *AppError {
	return NewAppError(ErrCodeInvalidCsrfToken, "Request rejected", "", nil)
}

func ErrSigning(cause error) *AppError {
	return NewAppError(ErrCodeSigningError, "Token signing unavailable", "", cause)
}

func ErrInvalidEmail(email string) *AppError {
	return NewAppError(ErrCodeInvalidEmail, "Invalid email format", "", nil)
}

func ErrInvalidPassword(details string) *AppError {
	return NewAppError(ErrCodeInvalidPassword, "Invalid password", details, nil)
}

func ErrInvalidRequest(details string) *AppError {
	return NewAppError(ErrCodeInvalidRequest, "Invalid request", details, nil)
}

func ErrRateLimitExceeded() *AppError {
	return NewAppError(ErrCodeRateLimitExceeded, "Too many requests. Please try again later.", "", nil)
}

func ErrInternalServerError(details string, cause error) *AppError {
	return NewAppError(ErrCodeInternalServerError, "Internal server error", details, cause)
}

func ErrConfigurationError(config string) *AppError {
	return NewAppError(ErrCodeConfigurationError, "Configuration error", fmt.Sprintf("Config: %s", config), nil)
}

// HTTPStatus maps any error to the status code the API answers with.
// Errors outside the catalog are 500.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if status, ok := httpStatusByCode[appErr.Code]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

// PublicMessage is the text safe to show a client for err.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != ErrCodeInternalServerError && appErr.Code != ErrCodeSigningError {
		return appErr.Message
	}
	return "Internal server error"
}
