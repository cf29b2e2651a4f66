// Package errors defines the coded application errors shared by the job stores, the runner,
// and the HTTP layer.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies an AppError. The HTTP layer maps codes to status codes and metrics use
// them as error_class tags.
type ErrorCode string

// Codes produced by the job record store and the runner.
const (
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeInvalidTransition rejects a status change that is not strictly forward, or any
	// write to a terminal job or step.
	ErrCodeInvalidTransition     ErrorCode = "invalid_transition"
	ErrCodeCredentialUnavailable ErrorCode = "credential_unavailable"
	ErrCodeExternalActionFailed  ErrorCode = "external_action_failed"
	ErrCodeStoreWriteFailed      ErrorCode = "store_write_failed"
	// ErrCodeConflict covers duplicate step ids and lost optimistic-concurrency races.
	ErrCodeConflict   ErrorCode = "conflict"
	ErrCodeValidation ErrorCode = "validation"
	ErrCodeInternal   ErrorCode = "internal"
	ErrCodeTimeout    ErrorCode = "timeout"
	ErrCodeCanceled   ErrorCode = "canceled"
)

// AppError is an error with a code, an optional cause, and for validation failures the
// offending field.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Field   string
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *AppError) Unwrap() error { return e.Cause }

// New builds an AppError with a formatted message.
func New(code ErrorCode, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches code and message to err. It returns nil for a nil err.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// NotFoundf reports a missing job or step.
func NotFoundf(format string, args ...any) *AppError {
	return New(ErrCodeNotFound, format, args...)
}

// InvalidTransitionf reports a rejected status change or a write to a terminal job or step.
func InvalidTransitionf(format string, args ...any) *AppError {
	return New(ErrCodeInvalidTransition, format, args...)
}

// CredentialUnavailablef reports that no fresh enough one-time password was obtained.
func CredentialUnavailablef(format string, args ...any) *AppError {
	return New(ErrCodeCredentialUnavailable, format, args...)
}

// Conflictf reports a clash with existing data.
func Conflictf(format string, args ...any) *AppError {
	return New(ErrCodeConflict, format, args...)
}

// Internalf reports a broken invariant.
func Internalf(format string, args ...any) *AppError {
	return New(ErrCodeInternal, format, args...)
}

// Validation reports invalid input that is not tied to one field.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// ValidationField reports invalid input in field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// ExternalActionFailed wraps a failure reported by the automation worker or another
// collaborator.
func ExternalActionFailed(err error, message string) *AppError {
	return &AppError{Code: ErrCodeExternalActionFailed, Message: message, Cause: err}
}

// StoreWriteFailed wraps a failed durable write of a job record.
func StoreWriteFailed(err error, message string) *AppError {
	return &AppError{Code: ErrCodeStoreWriteFailed, Message: message, Cause: err}
}

func asAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// GetCode returns the code of the outermost AppError in err's chain, or "".
func GetCode(err error) ErrorCode {
	if appErr, ok := asAppError(err); ok {
		return appErr.Code
	}
	return ""
}

// GetField returns the field of the outermost AppError in err's chain, or "".
func GetField(err error) string {
	if appErr, ok := asAppError(err); ok {
		return appErr.Field
	}
	return ""
}

// HasCode reports whether the outermost AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool { return GetCode(err) == code }

// IsNotFound reports ErrCodeNotFound.
func IsNotFound(err error) bool { return HasCode(err, ErrCodeNotFound) }

// IsInvalidTransition reports ErrCodeInvalidTransition.
func IsInvalidTransition(err error) bool { return HasCode(err, ErrCodeInvalidTransition) }

// IsCredentialUnavailable reports ErrCodeCredentialUnavailable.
func IsCredentialUnavailable(err error) bool { return HasCode(err, ErrCodeCredentialUnavailable) }

// IsExternalActionFailed reports ErrCodeExternalActionFailed.
func IsExternalActionFailed(err error) bool { return HasCode(err, ErrCodeExternalActionFailed) }

// IsStoreWriteFailed reports ErrCodeStoreWriteFailed.
func IsStoreWriteFailed(err error) bool { return HasCode(err, ErrCodeStoreWriteFailed) }

// IsConflict reports ErrCodeConflict.
func IsConflict(err error) bool { return HasCode(err, ErrCodeConflict) }

// IsValidation reports ErrCodeValidation.
func IsValidation(err error) bool { return HasCode(err, ErrCodeValidation) }
