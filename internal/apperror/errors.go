// Package apperror provides domain-specific error types for Gradebook.
// These errors carry an HTTP status code and a user-safe message. The Echo
// error handler maps them to appropriate HTTP responses automatically.
//
// NEVER return raw database or infrastructure errors to the client. Always
// wrap them in an apperror type or return a generic internal error.
package apperror

import (
	"fmt"
	"net/http"
)

// Error type classifiers. Machine-readable, stable across releases.
// Clients and tests match on these rather than on message text.
const (
	TypeInvalidCredentials = "invalid_credentials"
	TypeValidation         = "validation_failed"
	TypeDuplicateEmail     = "duplicate_email"
	TypeTokenNotFound      = "token_not_found"
	TypeTokenExpired       = "token_expired"
	TypeCsrfMismatch       = "csrf_mismatch"
	TypeNotFound           = "not_found"
	TypeForbidden          = "forbidden"
	TypeUnauthorized       = "unauthorized"
	TypeInternal           = "internal_error"
)

// AppError is the base error type for all domain errors. It carries an
// HTTP status code, a machine-readable error type, and a human-readable
// message safe to show to the client.
type AppError struct {
	// Code is the HTTP status code (e.g., 404, 400, 500).
	Code int `json:"-"`

	// Type is a machine-readable error classifier (e.g., "token_expired").
	Type string `json:"type"`

	// Message is a human-readable description safe for the client.
	Message string `json:"message"`

	// Internal holds the underlying error for logging. Never exposed to client.
	Internal error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Internal
}

// IsType reports whether err is an *AppError with the given type classifier.
func IsType(err error, errType string) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Type == errType
}

// --- Constructors for the domain error taxonomy ---

// NewInvalidCredentials creates the single generic 401 returned for every
// failed login or password re-verification. The message is identical whether
// the email is unknown or the password is wrong, so the response never
// discloses account existence.
func NewInvalidCredentials() *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    TypeInvalidCredentials,
		Message: "invalid email or password",
	}
}

// NewValidation creates a 422 Unprocessable Entity error for input that
// failed server-side validation.
func NewValidation(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnprocessableEntity,
		Type:    TypeValidation,
		Message: message,
	}
}

// NewDuplicateEmail creates a 409 Conflict error for registration with an
// email that already has an account.
func NewDuplicateEmail() *AppError {
	return &AppError{
		Code:    http.StatusConflict,
		Type:    TypeDuplicateEmail,
		Message: "an account with this email already exists",
	}
}

// NewTokenNotFound creates a 400 error for a reset token that does not
// exist, was already redeemed, or was consumed by a concurrent redemption.
// All three cases look identical to the caller.
func NewTokenNotFound() *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Type:    TypeTokenNotFound,
		Message: "invalid or already used reset token",
	}
}

// NewTokenExpired creates a 400 error for a reset token past its expiry.
func NewTokenExpired() *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Type:    TypeTokenExpired,
		Message: "this reset link has expired",
	}
}

// NewCsrfMismatch creates a 403 error for a missing or wrong anti-forgery
// token. The message does not say which part of the check failed.
func NewCsrfMismatch() *AppError {
	return &AppError{
		Code:    http.StatusForbidden,
		Type:    TypeCsrfMismatch,
		Message: "request could not be verified",
	}
}

// NewNotFound creates a 404 Not Found error.
func NewNotFound(message string) *AppError {
	return &AppError{
		Code:    http.StatusNotFound,
		Type:    TypeNotFound,
		Message: message,
	}
}

// NewForbidden creates a 403 Forbidden error.
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:    http.StatusForbidden,
		Type:    TypeForbidden,
		Message: message,
	}
}

// NewUnauthorized creates a 401 Unauthorized error.
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    TypeUnauthorized,
		Message: message,
	}
}

// NewInternal creates a 500 Internal Server Error wrapping a backing-store
// or infrastructure failure. The real error is stored in Internal for
// logging but the client only sees a generic message.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Type:     TypeInternal,
		Message:  "An unexpected error occurred. Please try again.",
		Internal: err,
	}
}

// SafeMessage returns the client-safe error message from an error. If the
// error is an AppError, returns its Message field (which is safe to expose).
// For any other error type, returns a generic message to prevent leaking
// internal details like table names, query structure, or stack traces.
func SafeMessage(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Message
	}
	return "an unexpected error occurred"
}

// SafeCode returns the HTTP status code from an AppError, or 500 for
// any other error type.
func SafeCode(err error) int {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return http.StatusInternalServerError
}
