package service

import (
	"errors"
	"fmt"

	"postpilot/internal/transfer"
)

// Failure classes for the publish pipeline. Callers branch on these to decide
// whether anything may be retried: auth and validation failures never are,
// external transient failures only inside the poll loop's own budget.

var (
	ErrInvalidState      = errors.New("invalid or expired state")
	ErrNoBusinessAccount = errors.New("no instagram business accounts found on your pages")
)

// AuthError means a credential is missing, expired or rejected. Requires
// reconnecting the account; never retried automatically.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return e.Reason
}

// ValidationError rejects bad input (URL, media type, size) before any
// external call is made.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ExternalError wraps a failure talking to the platform. Transient covers
// network errors and timeouts; everything the platform explicitly rejected
// is permanent and surfaced verbatim.
type ExternalError struct {
	Message   string
	Transient bool
}

func (e *ExternalError) Error() string {
	return e.Message
}

// QuotaExceededError blocks a publish attempt before any external call.
type QuotaExceededError struct {
	Status transfer.LimitStatus
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("publishing limit reached (%d/%d this month)", e.Status.Used, e.Status.Limit)
}
