package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no open session matches the lookup key
	ErrNotFound = errors.New("session not found")

	// ErrConflict matches every *ConflictError via errors.Is
	ErrConflict = errors.New("binding conflict")
)

// ConflictError reports a bind attempt that collides with an existing binding
type ConflictError struct {
	UserID         UserID
	ThreadID       ThreadID
	ExistingUser   UserID
	ExistingThread ThreadID
}

func (e *ConflictError) Error() string {
	if e.ExistingThread != 0 {
		return fmt.Sprintf("user %s already bound to thread %d, cannot bind thread %d",
			e.UserID, e.ExistingThread, e.ThreadID)
	}
	return fmt.Sprintf("thread %d already bound to user %s, cannot bind user %s",
		e.ThreadID, e.ExistingUser, e.UserID)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// OrphanThreadError is returned when a thread was created on the staff
// surface but could not be registered. ThreadID names the external thread so
// it can be cleaned up.
type OrphanThreadError struct {
	ThreadID ThreadID
	Cleaned  bool // The orphan was closed again on the staff surface
	Err      error
}

func (e *OrphanThreadError) Error() string {
	return fmt.Sprintf("thread %d created but not registered (cleaned=%v): %v", e.ThreadID, e.Cleaned, e.Err)
}

func (e *OrphanThreadError) Unwrap() error {
	return e.Err
}

// DeliveryKind classifies transport failures
type DeliveryKind string

const (
	DeliveryRateLimited DeliveryKind = "rate_limited"
	DeliveryTransient   DeliveryKind = "transient"
	DeliveryForbidden   DeliveryKind = "forbidden"
	DeliveryNotFound    DeliveryKind = "not_found"
	DeliveryTooOld      DeliveryKind = "too_old"
	DeliveryRejected    DeliveryKind = "rejected"
)

// DeliveryError wraps a failed transport call
type DeliveryError struct {
	Op         string
	Kind       DeliveryKind
	RetryAfter time.Duration // Hint from the platform for rate limits
	Err        error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed
func (e *DeliveryError) Retryable() bool {
	return e.Kind == DeliveryRateLimited || e.Kind == DeliveryTransient
}

// DeliveryKindOf extracts the DeliveryKind from err, or "" if err is not a
// delivery failure
func DeliveryKindOf(err error) DeliveryKind {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
