// Package services defines the business logic for the request intake,
// offer lifecycle, and rating pipeline. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer;
// translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRequestNotFound indicates that the referenced part request does not
	// exist or is not accessible to the current user.
	ErrRequestNotFound = errors.New("request not found")

	// ErrOfferNotFound indicates that the referenced offer does not exist or
	// is not accessible to the current user. Ownership failures intentionally
	// collapse into this error so existence is never leaked.
	ErrOfferNotFound = errors.New("offer not found")

	// ErrStateConflict is returned when a transition is invalid for the
	// current state (double-accept, unlock before accept, complete before
	// unlock). The attempt is rejected atomically with no partial mutation;
	// callers should refetch current state.
	ErrStateConflict = errors.New("state conflict")

	// ErrOwnRequestOffer is returned when a seller attempts to make an offer
	// on their own request.
	ErrOwnRequestOffer = errors.New("cannot offer on own request")

	// ErrInvalidRating is returned when a rating value is outside 1–5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrDuplicateRating is returned when a buyer attempts to rate an offer
	// they have already rated. The original review is never overwritten.
	ErrDuplicateRating = errors.New("rating already exists")

	// ErrNotRatable is returned when the offer's transaction has not been
	// completed, which is the sole gate for rating eligibility.
	ErrNotRatable = errors.New("transaction not completed")
)

// ValidationError reports malformed input rejected before any state
// mutation. Fully recoverable by resubmitting corrected input.
type ValidationError struct {
	Field string
	Msg   string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// invalidf builds a ValidationError for a field.
func invalidf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// SpamRejectionError reports a duplicate or rate-limited submission.
// RetryAfter is zero for duplicates, where waiting does not help.
type SpamRejectionError struct {
	Reason     string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *SpamRejectionError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("submission rejected (%s); retry after %s", e.Reason, e.RetryAfter)
	}
	return fmt.Sprintf("submission rejected (%s)", e.Reason)
}
