// Package apperrors defines the error taxonomy shared by every layer of the
// API and its mapping onto HTTP responses.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthKind classifies why a request could not be authenticated or authorized.
type AuthKind string

const (
	KindMalformed      AuthKind = "malformed"
	KindExpired        AuthKind = "expired"
	KindNotYetValid    AuthKind = "not_yet_valid"
	KindUnknownKey     AuthKind = "unknown_key"
	KindKeyFetchFailed AuthKind = "key_fetch_failed"
	KindInvalid        AuthKind = "invalid"
	KindForbidden      AuthKind = "forbidden"
)

type AuthError struct {
	Kind   AuthKind
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	msg := "auth: " + string(e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches on Kind so callers can compare against the sentinels below.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind && t.Reason == "" && t.Err == nil
}

var (
	ErrMalformed      = &AuthError{Kind: KindMalformed}
	ErrExpired        = &AuthError{Kind: KindExpired}
	ErrNotYetValid    = &AuthError{Kind: KindNotYetValid}
	ErrUnknownKey     = &AuthError{Kind: KindUnknownKey}
	ErrKeyFetchFailed = &AuthError{Kind: KindKeyFetchFailed}
	ErrInvalidToken   = &AuthError{Kind: KindInvalid}
	ErrForbidden      = &AuthError{Kind: KindForbidden}
)

func NewAuthError(kind AuthKind, reason string, err error) *AuthError {
	return &AuthError{Kind: kind, Reason: reason, Err: err}
}

// Forbidden builds the error returned by access guards.
func Forbidden(reason string) *AuthError {
	return &AuthError{Kind: KindForbidden, Reason: reason}
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func NotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

type ConflictError struct {
	Resource string
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Reason)
}

func Conflict(resource, reason string) *ConflictError {
	return &ConflictError{Resource: resource, Reason: reason}
}

// BusinessError is a well-formed request that violates a domain rule.
type BusinessError struct {
	Code    string
	Message string
}

func (e *BusinessError) Error() string {
	return e.Code + ": " + e.Message
}

func Business(code, message string) *BusinessError {
	return &BusinessError{Code: code, Message: message}
}

// StorageError wraps a failure of the persistence layer. Its details are
// logged but never sent to clients.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func Storage(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// RateLimitError rejects a caller that exceeded its request budget.
type RateLimitError struct {
	Key string
}

func (e *RateLimitError) Error() string {
	return "rate limit exceeded for " + e.Key
}

func RateLimited(key string) *RateLimitError {
	return &RateLimitError{Key: key}
}

const genericMessage = "An unexpected error occurred"

// HTTPStatus maps an error onto the status code the API responds with.
func HTTPStatus(err error) int {
	var (
		authErr       *AuthError
		validationErr *ValidationError
		notFoundErr   *NotFoundError
		conflictErr   *ConflictError
		businessErr   *BusinessError
		rateLimitErr  *RateLimitError
	)
	switch {
	case errors.As(err, &authErr):
		if authErr.Kind == KindForbidden {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.As(err, &conflictErr):
		return http.StatusConflict
	case errors.As(err, &businessErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &rateLimitErr):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the client-facing message for err. Authentication
// failures collapse into a single message so callers cannot probe which
// check rejected them; internal failures never leak their cause.
func PublicMessage(err error) string {
	var (
		authErr       *AuthError
		validationErr *ValidationError
		notFoundErr   *NotFoundError
		conflictErr   *ConflictError
		businessErr   *BusinessError
		rateLimitErr  *RateLimitError
	)
	switch {
	case errors.As(err, &authErr):
		if authErr.Kind == KindForbidden {
			return "Access denied"
		}
		return "Authentication required"
	case errors.As(err, &validationErr):
		return validationErr.Error()
	case errors.As(err, &notFoundErr):
		return notFoundErr.Error()
	case errors.As(err, &conflictErr):
		return conflictErr.Error()
	case errors.As(err, &businessErr):
		return businessErr.Message
	case errors.As(err, &rateLimitErr):
		return "Too many requests, please slow down"
	default:
		return genericMessage
	}
}
