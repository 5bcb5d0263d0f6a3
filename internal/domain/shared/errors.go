// Package shared contains common domain types, errors and events that are
// used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState = errors.New("invalid state")
	ErrExpired      = errors.New("expired")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Persistence errors
	ErrPersistence = errors.New("persistence error")
	ErrCorruptData = errors.New("corrupt stored data")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "stats", "account", "leaderboard"
	Op      string // Operation that failed, e.g., "Load", "Save"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Account domain errors
var (
	ErrUserNotFound      = NewDomainError("account", "Find", ErrNotFound, "user not found")
	ErrUserAlreadyExists = NewDomainError("account", "Create", ErrAlreadyExists, "user already exists")
	ErrInvalidUsername   = NewDomainError("account", "Validate", ErrInvalidInput, "invalid username")
	ErrInvalidEmail      = NewDomainError("account", "Validate", ErrInvalidFormat, "invalid email address")
	ErrWrongPassword     = NewDomainError("account", "Authenticate", ErrUnauthorized, "wrong password")
)

// Stats domain errors
var (
	ErrMalformedAggregate = NewDomainError("stats", "Load", ErrCorruptData, "stored aggregate is malformed")
	ErrInvalidSession     = NewDomainError("stats", "Validate", ErrValidation, "invalid game session")
	ErrUnknownCategory    = NewDomainError("stats", "Validate", ErrInvalidInput, "unknown exercise category")
	ErrInvalidSnapshot    = NewDomainError("stats", "Import", ErrInvalidFormat, "invalid snapshot document")
)

// Leaderboard domain errors
var (
	ErrLeaderboardEmpty = NewDomainError("leaderboard", "Find", ErrNotFound, "leaderboard is empty")
	ErrLeaderboardStale = NewDomainError("leaderboard", "Refresh", ErrExpired, "leaderboard cache is stale")
)

// Chat domain errors
var (
	ErrConversationNotFound = NewDomainError("chat", "Find", ErrNotFound, "conversation not found")
	ErrConversationExpired  = NewDomainError("chat", "Append", ErrExpired, "conversation expired")
	ErrEmptyMessage         = NewDomainError("chat", "Validate", ErrEmptyValue, "message cannot be empty")
)

// External service errors
var (
	ErrCompletionUnavailable = NewDomainError("genai", "Request", ErrServiceUnavailable, "completion API is unavailable")
	ErrCompletionRateLimited = NewDomainError("genai", "Request", ErrRateLimited, "completion API rate limit exceeded")
	ErrCompletionTimeout     = NewDomainError("genai", "Request", ErrTimeout, "completion API request timeout")
	ErrCompletionBadResponse = NewDomainError("genai", "Parse", ErrInvalidFormat, "invalid response from completion API")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable checks if the operation can be retried.
// Corrupt data and validation failures are never retryable.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrPersistence)
}
