package errors

import (
	"errors"
	"fmt"
	"time"
)

// Family groups error codes into the two classes the portal distinguishes:
// credential/session problems (auth) and domain-state problems (business).
type Family string

const (
	FamilyAuth     Family = "auth"
	FamilyBusiness Family = "business"
)

// Severity indicates how an error should be logged and surfaced.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ErrorCode is a stable category of application error. Codes are part of
// the API contract; clients switch on them.
type ErrorCode string

const (
	// Auth family.

	// ErrCodeInvalidCredentials indicates a bad password or unknown account.
	ErrCodeInvalidCredentials ErrorCode = "invalid_credentials"
	// ErrCodeInvalidSession indicates a missing, inactive, or expired session.
	ErrCodeInvalidSession ErrorCode = "invalid_session"
	// ErrCodeUnauthorized indicates the session lacks the required section role.
	ErrCodeUnauthorized ErrorCode = "unauthorized"
	// ErrCodeEmailNotVerified indicates the account email is unverified.
	ErrCodeEmailNotVerified ErrorCode = "email_not_verified"
	// ErrCodeUserDisabled indicates the identity backend has the account disabled.
	ErrCodeUserDisabled ErrorCode = "user_disabled"
	// ErrCodeUnknown indicates an unclassified authentication failure.
	ErrCodeUnknown ErrorCode = "unknown"

	// Business family.

	// ErrCodeUserNotFound indicates no directory record exists for the user.
	ErrCodeUserNotFound ErrorCode = "user_not_found"
	// ErrCodeUserExists indicates a conflicting directory record.
	ErrCodeUserExists ErrorCode = "user_exists"
	// ErrCodeUserBlocked indicates the account is administratively blocked.
	ErrCodeUserBlocked ErrorCode = "user_blocked"
	// ErrCodeUserDeleted indicates the account is soft-deleted.
	ErrCodeUserDeleted ErrorCode = "user_deleted"
	// ErrCodeSessionConflict indicates an active-session conflict for a
	// user that does not allow concurrent sessions.
	ErrCodeSessionConflict ErrorCode = "session_conflict"
	// ErrCodeSyncFailure indicates role synchronization between the
	// directory and the identity backend failed.
	ErrCodeSyncFailure ErrorCode = "sync_failure"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates an operation timed out.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// authCodes is the membership set for FamilyAuth; every other code is
// business. Unclassified failures land in the auth family so handlers
// never surface more than a generic message for them.
var authCodes = map[ErrorCode]bool{
	ErrCodeInvalidCredentials: true,
	ErrCodeInvalidSession:     true,
	ErrCodeUnauthorized:       true,
	ErrCodeEmailNotVerified:   true,
	ErrCodeUserDisabled:       true,
	ErrCodeUnknown:            true,
}

// AppError is a structured application error with a stable code, severity,
// and timestamp. It supports wrapping for use with errors.Is and
// errors.As. The cause is logged but never serialized to clients.
type AppError struct {
	Code      ErrorCode
	Message   string
	Severity  Severity
	Timestamp time.Time
	// Cause is the underlying error (optional).
	Cause error
	// Field is the specific field that caused the error (optional, for
	// validation errors).
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Family returns which error class the code belongs to.
func (e *AppError) Family() Family {
	if authCodes[e.Code] {
		return FamilyAuth
	}
	return FamilyBusiness
}

// New creates an AppError with the given code and message, stamping the
// current time and a default severity of error.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Severity:  SeverityError,
		Timestamp: time.Now().UTC(),
	}
}

// Newf creates an AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// WithSeverity returns e with the severity replaced.
func (e *AppError) WithSeverity(s Severity) *AppError {
	e.Severity = s
	return e
}

// InvalidCredentials creates an invalid-credentials auth error.
func InvalidCredentials(message string) *AppError {
	return New(ErrCodeInvalidCredentials, message).WithSeverity(SeverityWarning)
}

// InvalidSession creates an invalid-session auth error.
func InvalidSession(message string) *AppError {
	return New(ErrCodeInvalidSession, message).WithSeverity(SeverityWarning)
}

// Unauthorized creates an unauthorized auth error.
func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message).WithSeverity(SeverityWarning)
}

// EmailNotVerified creates an email-not-verified auth error.
func EmailNotVerified(message string) *AppError {
	return New(ErrCodeEmailNotVerified, message).WithSeverity(SeverityWarning)
}

// UserDisabled creates a user-disabled auth error.
func UserDisabled(message string) *AppError {
	return New(ErrCodeUserDisabled, message)
}

// UserNotFound creates a user-not-found business error.
func UserNotFound(message string) *AppError {
	return New(ErrCodeUserNotFound, message)
}

// UserNotFoundf creates a user-not-found business error with a formatted
// message.
func UserNotFoundf(format string, args ...any) *AppError {
	return Newf(ErrCodeUserNotFound, format, args...)
}

// UserExists creates a user-exists business error.
func UserExists(message string) *AppError {
	return New(ErrCodeUserExists, message)
}

// UserBlocked creates a user-blocked business error.
func UserBlocked(message string) *AppError {
	return New(ErrCodeUserBlocked, message)
}

// UserDeleted creates a user-deleted business error.
func UserDeleted(message string) *AppError {
	return New(ErrCodeUserDeleted, message)
}

// SessionConflict creates an active-session-conflict business error.
func SessionConflict(message string) *AppError {
	return New(ErrCodeSessionConflict, message)
}

// SyncFailure creates a role-sync business error.
func SyncFailure(message string) *AppError {
	return New(ErrCodeSyncFailure, message).WithSeverity(SeverityCritical)
}

// Validation creates a validation business error.
func Validation(message string) *AppError {
	return New(ErrCodeValidation, message).WithSeverity(SeverityWarning)
}

// ValidationField creates a validation error for a specific field.
func ValidationField(field, message string) *AppError {
	e := Validation(message)
	e.Field = field
	return e
}

// Internal creates an internal business error.
func Internal(message string) *AppError {
	return New(ErrCodeInternal, message).WithSeverity(SeverityCritical)
}

// Internalf creates an internal error with a formatted message.
func Internalf(format string, args ...any) *AppError {
	return Internal(fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	e := New(code, message)
	e.Cause = err
	return e
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsInvalidCredentials checks for an invalid-credentials error.
func IsInvalidCredentials(err error) bool { return isCode(err, ErrCodeInvalidCredentials) }

// IsInvalidSession checks for an invalid-session error.
func IsInvalidSession(err error) bool { return isCode(err, ErrCodeInvalidSession) }

// IsUnauthorized checks for an unauthorized error.
func IsUnauthorized(err error) bool { return isCode(err, ErrCodeUnauthorized) }

// IsEmailNotVerified checks for an email-not-verified error.
func IsEmailNotVerified(err error) bool { return isCode(err, ErrCodeEmailNotVerified) }

// IsUserNotFound checks for a user-not-found error.
func IsUserNotFound(err error) bool { return isCode(err, ErrCodeUserNotFound) }

// IsUserBlocked checks for a user-blocked error.
func IsUserBlocked(err error) bool { return isCode(err, ErrCodeUserBlocked) }

// IsValidation checks for a validation error.
func IsValidation(err error) bool { return isCode(err, ErrCodeValidation) }

// IsInternal checks for an internal error.
func IsInternal(err error) bool { return isCode(err, ErrCodeInternal) }

// GetCode returns the ErrorCode from an error, or ErrCodeUnknown when the
// error is not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeUnknown
}

// GetField returns the Field from an error, or empty string if not set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}

// ClientMessage returns the message safe to show to clients: the AppError
// message for expected errors, a generic one otherwise.
func ClientMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "An unexpected error occurred. Please try again."
}
