// Package apperr defines the error taxonomy shared by the reservation and
// event lifecycle layers. Every failure a caller can observe carries a Kind
// and a stable machine-checkable Code; raw driver errors never cross the
// repository boundary.
package apperr

import (
	"errors"
	"fmt"
)

// Kind groups error codes into the categories callers act upon.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalid
	KindNotFound
	KindConflict
	KindForbidden
	KindInvalidState
	KindTransient
	KindUnauthenticated
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindInvalidState:
		return "invalid_state"
	case KindTransient:
		return "transient"
	case KindUnauthenticated:
		return "unauthenticated"
	default:
		return "internal"
	}
}

// Error is the structured error returned by the service layer.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so sentinels compare equal to copies carrying a cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinel errors. Wrap them with fmt.Errorf("%w") or With to add context.
var (
	ErrEventNotFound           = &Error{Kind: KindNotFound, Code: "event_not_found", Message: "event not found"}
	ErrReservationNotFound     = &Error{Kind: KindNotFound, Code: "reservation_not_found", Message: "reservation not found"}
	ErrEventFull               = &Error{Kind: KindConflict, Code: "event_full", Message: "event is full"}
	ErrAlreadyReserved         = &Error{Kind: KindConflict, Code: "already_reserved", Message: "already reserved for this event"}
	ErrNotAuthorized           = &Error{Kind: KindForbidden, Code: "not_authorized", Message: "not authorized for this event"}
	ErrEventPast               = &Error{Kind: KindInvalidState, Code: "event_past", Message: "event has already taken place"}
	ErrCapacityBelowAttendance = &Error{Kind: KindInvalidState, Code: "capacity_below_attendance", Message: "capacity is below current attendance"}
	ErrUnauthenticated         = &Error{Kind: KindUnauthenticated, Code: "unauthenticated", Message: "unauthenticated"}
	ErrAssetUpload             = &Error{Kind: KindTransient, Code: "asset_upload_failed", Message: "image upload failed"}
)

// With returns a copy of sentinel carrying cause.
func With(sentinel *Error, cause error) *Error {
	cp := *sentinel
	cp.Err = cause
	return &cp
}

// Invalid reports rejected input.
func Invalid(format string, args ...any) *Error {
	return &Error{Kind: KindInvalid, Code: "invalid_input", Message: fmt.Sprintf(format, args...)}
}

// Transient wraps a store or infrastructure failure that is safe to retry.
// Already classified errors are returned unchanged.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindTransient, Code: "transient", Message: "temporary storage failure", Err: err}
}

// KindOf reports the Kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// CodeOf reports the stable code of err.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return "internal_error"
}

// MessageOf reports the caller-facing message of err without wrapped causes.
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "internal error"
}
