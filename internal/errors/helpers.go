package errors

import (
	"fmt"
)

// Common error creators for frequent use cases

// NewValidationError creates a validation error with field context
func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewDatabaseError creates an outbox database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewLogSourceError creates an error for a failed ordered log source call.
// Server-side failures and throttling are retryable by re-invoking the
// same user gesture.
func NewLogSourceError(endpoint string, statusCode int, err error) *AppError {
	retryable := statusCode >= 500 || statusCode == 429 || statusCode == 408

	appErr := Wrap(err, ErrCodeLogSourceAPI, "log source call failed").
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)

	if retryable {
		appErr.Retryable = true
	}

	return appErr
}

// NewUploadError creates an error for a failed attachment upload. Uploads
// never mutate engine state, so they are always retryable.
func NewUploadError(filename string, err error) *AppError {
	return WrapRetryable(err, ErrCodeUploadFailed, "attachment upload failed").
		WithContext("filename", filename).
		WithUserMessage("Upload failed, your message was kept for retry")
}

// NewPermissionError creates a permission error for a denied mutation
func NewPermissionError(action, reason string) *AppError {
	return New(ErrCodePermissionDenied, fmt.Sprintf("%s denied: %s", action, reason)).
		WithContext("action", action).
		WithUserMessage("You are not allowed to do that")
}

// NewStaleConversationError marks an async result that arrived after the
// conversation it belongs to was closed or replaced. Callers drop it
// silently; it never surfaces to the user.
func NewStaleConversationError(requested, current string) *AppError {
	return New(ErrCodeStaleConversation, "result for closed conversation discarded").
		WithContext("requested", requested).
		WithContext("current", current)
}

// IsStaleConversation checks whether an error is a stale-conversation discard
func IsStaleConversation(err error) bool {
	return GetCode(err) == ErrCodeStaleConversation
}

// IsPermissionDenied checks whether an error is a permission denial
func IsPermissionDenied(err error) bool {
	return GetCode(err) == ErrCodePermissionDenied
}
