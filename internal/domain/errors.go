package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind classifies an error for callers. Only the kind plus entity/version
// context crosses the API boundary; storage-engine detail never does.
type Kind string

const (
	KindNotFound               Kind = "not_found"
	KindForbidden              Kind = "forbidden"
	KindValidation             Kind = "validation_error"
	KindAlreadyDeleted         Kind = "already_deleted"
	KindConcurrentModification Kind = "concurrent_modification"
	KindStorageTimeout         Kind = "storage_timeout"
)

// Error is the taxonomy error surfaced by the core. EventID and Version are
// zero when the failure is not tied to a specific record.
type Error struct {
	Kind    Kind
	EventID uuid.UUID
	Version int64
	Message string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	switch {
	case e.EventID != uuid.Nil && e.Version > 0:
		return fmt.Sprintf("%s: event %s version %d", msg, e.EventID, e.Version)
	case e.EventID != uuid.Nil:
		return fmt.Sprintf("%s: event %s", msg, e.EventID)
	default:
		return msg
	}
}

// Is matches any *Error of the same kind, so sentinel comparisons like
// errors.Is(err, domain.ErrNotFound) work regardless of attached context.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// Kind sentinels for errors.Is checks.
var (
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrForbidden              = &Error{Kind: KindForbidden}
	ErrValidation             = &Error{Kind: KindValidation}
	ErrAlreadyDeleted         = &Error{Kind: KindAlreadyDeleted}
	ErrConcurrentModification = &Error{Kind: KindConcurrentModification}
	ErrStorageTimeout         = &Error{Kind: KindStorageTimeout}
)

// NotFound reports a missing event, or a missing version when version > 0.
func NotFound(eventID uuid.UUID, version int64) error {
	msg := "event not found"
	if version > 0 {
		msg = "version not found"
	}
	return &Error{Kind: KindNotFound, EventID: eventID, Version: version, Message: msg}
}

// Forbidden reports a failed authorization check for the given actor.
func Forbidden(eventID uuid.UUID, actor string) error {
	return &Error{Kind: KindForbidden, EventID: eventID, Message: fmt.Sprintf("actor %s is not authorized", actor)}
}

// Validation reports a structural invariant violation detected before any write.
func Validation(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

// AlreadyDeleted reports a mutation against a logically deleted event.
func AlreadyDeleted(eventID uuid.UUID) error {
	return &Error{Kind: KindAlreadyDeleted, EventID: eventID, Message: "event is deleted"}
}

// ConcurrentModification reports an optimistic-concurrency conflict on append.
func ConcurrentModification(eventID uuid.UUID) error {
	return &Error{Kind: KindConcurrentModification, EventID: eventID, Message: "concurrent modification"}
}

// StorageTimeout reports a store operation that exceeded its time budget.
// It is ambiguous whether the write committed, so it is never retried.
func StorageTimeout(eventID uuid.UUID) error {
	return &Error{Kind: KindStorageTimeout, EventID: eventID, Message: "storage operation timed out"}
}

// KindOf extracts the taxonomy kind from an error chain.
func KindOf(err error) (Kind, bool) {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind, true
	}
	return "", false
}
