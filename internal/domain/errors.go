package domain

import (
	"errors"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
// Implementing this interface enables extensible error handling.
type HTTPError interface {
	error
	StatusCode() int
}

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrRateLimited  = errors.New("rate limited")
)

// LimitReachedError indicates an anonymous session has used up its
// message allowance. This is a first-class terminal state, not a
// failure: the client disables input and prompts for signup instead of
// showing an error.
type LimitReachedError struct {
	Token string
}

func (e *LimitReachedError) Error() string {
	return "message limit reached for this session"
}

func (e *LimitReachedError) StatusCode() int { return http.StatusForbidden }

// Is allows errors.Is() to match against ErrForbidden
func (e *LimitReachedError) Is(target error) bool {
	return target == ErrForbidden
}

// InsufficientBalanceError indicates a gate purchase was attempted
// without enough credit.
type InsufficientBalanceError struct {
	Gate         string
	PriceCents   int64
	BalanceCents int64
}

func (e *InsufficientBalanceError) Error() string {
	return "insufficient balance to unlock gate " + e.Gate
}

func (e *InsufficientBalanceError) StatusCode() int { return http.StatusPaymentRequired }

// ConflictError represents a resource conflict with details about the
// existing resource.
type ConflictError struct {
	Message      string
	ResourceType string
	ResourceID   string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func (e *ConflictError) StatusCode() int {
	return http.StatusConflict
}

// Is allows errors.Is() to match against ErrConflict
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
