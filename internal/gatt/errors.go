package gatt

import (
	"errors"
	"fmt"
)

// FailureKind classifies every failure the core can report. Each entry maps
// to exactly one user-visible condition; nothing in this module returns a
// bare untyped error.
type FailureKind string

const (
	DiscoveryUnavailable    FailureKind = "discovery_unavailable"
	ConnectTimeout          FailureKind = "connect_timeout"
	ConnectRefused          FailureKind = "connect_refused"
	SessionBusy             FailureKind = "session_busy"
	NoCapableCharacteristic FailureKind = "no_capable_characteristic"
	MalformedPayload        FailureKind = "malformed_payload"
	WriteRejected           FailureKind = "write_rejected"
	ReadFailed              FailureKind = "read_failed"
	LinkLost                FailureKind = "link_lost"
	CapacityExceeded        FailureKind = "adapter_capacity_exceeded"
	InvalidState            FailureKind = "invalid_state"
)

// Error is a classified failure with a human-readable detail string and an
// optional wrapped cause.
type Error struct {
	Kind   FailureKind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := string(e.Kind)
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is allows errors.Is to compare Error values by Kind, so sentinels below
// match any instance of the same kind regardless of detail.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinels for errors.Is checks.
var (
	ErrDiscoveryUnavailable    = &Error{Kind: DiscoveryUnavailable}
	ErrConnectTimeout          = &Error{Kind: ConnectTimeout}
	ErrConnectRefused          = &Error{Kind: ConnectRefused}
	ErrSessionBusy             = &Error{Kind: SessionBusy}
	ErrNoCapableCharacteristic = &Error{Kind: NoCapableCharacteristic}
	ErrMalformedPayload        = &Error{Kind: MalformedPayload}
	ErrWriteRejected           = &Error{Kind: WriteRejected}
	ErrReadFailed              = &Error{Kind: ReadFailed}
	ErrLinkLost                = &Error{Kind: LinkLost}
	ErrCapacityExceeded        = &Error{Kind: CapacityExceeded}
	ErrInvalidState            = &Error{Kind: InvalidState}
)

// Errorf builds a classified error with a formatted detail string.
func Errorf(kind FailureKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// WrapError builds a classified error around a cause.
func WrapError(kind FailureKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the failure kind from err, or "" when err carries none.
func KindOf(err error) FailureKind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return ""
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind FailureKind) bool {
	return KindOf(err) == kind
}
