// Package apperror provides the domain error types for Single-Login.
// Every error carries an HTTP status code and a user-safe message. The Echo
// error handler maps them to JSON responses automatically.
//
// NEVER return raw database or infrastructure errors to the client. Always
// wrap them in an apperror type or return a generic internal error.
package apperror

import (
	"fmt"
	"net/http"
)

// AppError is the base error type for all domain errors. It carries an
// HTTP status code, a machine-readable error type, and a human-readable
// message safe to show to the client.
type AppError struct {
	// Code is the HTTP status code (e.g., 401, 409, 503).
	Code int `json:"-"`

	// Type is a machine-readable error classifier (e.g., "invalid_credential").
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

// IsType reports whether err is an AppError with the given Type.
func IsType(err error, errType string) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Type == errType
}

// --- Generic constructors ---

// Error type constants for the generic errors.
const (
	TypeNotFound        = "not_found"
	TypeBadRequest      = "bad_request"
	TypeValidation      = "validation_error"
	TypeInternal        = "internal_error"
	TypeUnauthenticated = "unauthenticated"
	TypeForbidden       = "forbidden"
)

// NewNotFound creates a 404 Not Found error.
func NewNotFound(message string) *AppError {
	return &AppError{
		Code:    http.StatusNotFound,
		Type:    TypeNotFound,
		Message: message,
	}
}

// NewBadRequest creates a 400 Bad Request error.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Type:    TypeBadRequest,
		Message: message,
	}
}

// NewValidation creates a 422 Unprocessable Entity error for validation failures.
func NewValidation(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnprocessableEntity,
		Type:    TypeValidation,
		Message: message,
	}
}

// NewUnauthenticated creates a 401 for requests that require a valid
// session credential and did not present one.
func NewUnauthenticated() *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    TypeUnauthenticated,
		Message: "a valid session credential is required",
	}
}

// NewForbidden creates a 403 for authenticated callers acting outside
// their own account.
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:    http.StatusForbidden,
		Type:    TypeForbidden,
		Message: message,
	}
}

// NewInternal creates a 500 Internal Server Error. The real error is stored
// in Internal for logging but the client only sees a generic message.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Type:     TypeInternal,
		Message:  "An unexpected error occurred. Please try again.",
		Internal: err,
	}
}

// --- Authentication error taxonomy ---
//
// These constructors cover every failure a login attempt can surface.
// The Type strings are part of the client contract: the UI switches on
// them to decide which remediation to show.

// Error type constants for the authentication taxonomy. Exposed so the
// coordinator and its tests can classify outcomes without string literals.
const (
	TypeInvalidCredential = "invalid_credential"
	TypeUsernameTaken     = "username_taken"
	TypeEmailConflict     = "email_conflict"
	TypeWeakCredential    = "weak_credential"
	TypeEmailNotVerified  = "email_not_verified"
	TypeAlreadyActive     = "already_active_elsewhere"
	TypeNeedsStepUp       = "needs_step_up"
	TypeInvalidCode       = "invalid_code"
	TypeCodeExpired       = "code_expired"
	TypeStoreUnavailable  = "store_unavailable"
)

// NewInvalidCredential creates a 401 for a failed username/password check.
// The message deliberately does not reveal which of the two was wrong.
func NewInvalidCredential() *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    TypeInvalidCredential,
		Message: "invalid username or password",
	}
}

// NewUsernameTaken creates a 409 for a registration against an existing username.
func NewUsernameTaken(username string) *AppError {
	return &AppError{
		Code:    http.StatusConflict,
		Type:    TypeUsernameTaken,
		Message: fmt.Sprintf("the username %q is already registered", username),
	}
}

// NewEmailConflict creates a 409 when the email is already bound to another
// credential at the identity provider.
func NewEmailConflict() *AppError {
	return &AppError{
		Code:    http.StatusConflict,
		Type:    TypeEmailConflict,
		Message: "an account with this email already exists",
	}
}

// NewWeakCredential creates a 422 when the password fails the identity
// provider's policy.
func NewWeakCredential(reason string) *AppError {
	return &AppError{
		Code:    http.StatusUnprocessableEntity,
		Type:    TypeWeakCredential,
		Message: reason,
	}
}

// NewEmailNotVerified creates a 403 for logins before the email challenge
// has been completed.
func NewEmailNotVerified() *AppError {
	return &AppError{
		Code:    http.StatusForbidden,
		Type:    TypeEmailNotVerified,
		Message: "your email address has not been verified yet - check your inbox for the verification link",
	}
}

// NewAlreadyActive creates a 409 for the single-session refusal. The message
// differs for same-device and other-device collisions but the handling is
// identical: the caller must sign out the active session first.
func NewAlreadyActive(sameDevice bool) *AppError {
	msg := "this account is already active on another device - sign out there first"
	if sameDevice {
		msg = "this account already has an active session on this device - sign out first"
	}
	return &AppError{
		Code:    http.StatusConflict,
		Type:    TypeAlreadyActive,
		Message: msg,
	}
}

// NewNeedsStepUp creates a 401 signaling that an additional factor is
// required before a session can be granted.
func NewNeedsStepUp() *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    TypeNeedsStepUp,
		Message: "sign-in from this network requires a one-time code",
	}
}

// NewStepUpNotProvisioned creates a 403 for the fail-closed refusal when a
// suspicious login arrives and step-up was never set up. There is no
// workaround; the remediation is to enroll an authenticator from a trusted
// network first.
func NewStepUpNotProvisioned() *AppError {
	return &AppError{
		Code:    http.StatusForbidden,
		Type:    TypeNeedsStepUp,
		Message: "sign-in from this network requires a one-time code, but none has been set up - enroll an authenticator from a trusted network first",
	}
}

// NewInvalidCode creates a 401 for a step-up code that failed validation.
func NewInvalidCode() *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    TypeInvalidCode,
		Message: "the code is not valid",
	}
}

// NewCodeExpired creates a 401 for a step-up code submitted after its window.
func NewCodeExpired() *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    TypeCodeExpired,
		Message: "the code has expired - request a new one",
	}
}

// NewStoreUnavailable creates a 503 for account-store outages. Fatal to the
// current operation, not to the process.
func NewStoreUnavailable(err error) *AppError {
	return &AppError{
		Code:     http.StatusServiceUnavailable,
		Type:     TypeStoreUnavailable,
		Message:  "the account service is temporarily unavailable - please try again",
		Internal: err,
	}
}

// --- Safe accessors ---

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
