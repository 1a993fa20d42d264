// Package errors defines unified error types for secret store operations.
// All backend-specific failures are mapped to these standard error kinds.
package errors

import (
	stderrors "errors"
	"fmt"
)

// StoreError represents a standardized error from a secret store operation.
// It carries the failure kind, the key involved (when one exists), an
// optional backend diagnostic, and the wrapped cause.
type StoreError struct {
	Kind   string
	Key    string
	Detail string
	Err    error
}

// Error implements the error interface. Detail usually repeats the wrapped
// cause, so only one of the two is printed.
func (e *StoreError) Error() string {
	msg := e.message()
	if e.Key != "" {
		msg = fmt.Sprintf("%s (key=%s)", msg, e.Key)
	}
	switch {
	case e.Detail != "":
		msg += ": " + e.Detail
	case e.Err != nil:
		msg += ": " + e.Err.Error()
	}
	return "[" + e.Kind + "] " + msg
}

// Unwrap returns the underlying cause so errors.Is and errors.As can
// reach it.
func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) message() string {
	switch e.Kind {
	case KindEncodingFailed:
		return "value cannot be encoded for storage"
	case KindCorruptValue:
		return "stored bytes are not decodable"
	case KindNotFound:
		return "secret not found"
	case KindBackendUnavailable:
		return "backend cannot be reached"
	case KindAddFailed:
		return "secret could not be written"
	case KindDeleteFailed:
		return "secret could not be removed"
	default:
		return "secret store failure"
	}
}

// Common error kinds as constants for consistency.
const (
	KindEncodingFailed     = "encoding_failed"
	KindCorruptValue       = "corrupt_value"
	KindNotFound           = "not_found"
	KindBackendUnavailable = "backend_unavailable"
	KindAddFailed          = "add_failed"
	KindDeleteFailed       = "delete_failed"
)

// NewEncodingFailedError creates an error for input that cannot be encoded.
func NewEncodingFailedError(cause error) *StoreError {
	return &StoreError{
		Kind: KindEncodingFailed,
		Err:  cause,
	}
}

// NewCorruptValueError creates an error for stored bytes that fail decoding.
func NewCorruptValueError(key string, cause error) *StoreError {
	return &StoreError{
		Kind: KindCorruptValue,
		Key:  key,
		Err:  cause,
	}
}

// NewNotFoundError creates an error for a key with no stored value.
func NewNotFoundError(key string) *StoreError {
	return &StoreError{
		Kind: KindNotFound,
		Key:  key,
	}
}

// NewBackendUnavailableError creates an error for a backend that cannot be
// queried at all, as opposed to one that answered with a miss.
func NewBackendUnavailableError(cause error) *StoreError {
	return &StoreError{
		Kind: KindBackendUnavailable,
		Err:  cause,
	}
}

// NewAddFailedError creates an error for a write that did not complete.
// Because writes replace any prior record before inserting, a failed write
// may have already discarded the previous value for the key.
func NewAddFailedError(key string, cause error) *StoreError {
	return &StoreError{
		Kind: KindAddFailed,
		Key:  key,
		Err:  cause,
	}
}

// NewDeleteFailedError creates an error for a removal that did not complete,
// including removal of a key that was never stored. The detail string
// carries the backend diagnostic when one exists and is empty otherwise.
func NewDeleteFailedError(key, detail string, cause error) *StoreError {
	return &StoreError{
		Kind:   KindDeleteFailed,
		Key:    key,
		Detail: detail,
		Err:    cause,
	}
}

// Kind returns the store error kind carried by err, or the empty string if
// err has no StoreError in its chain. Useful for metrics labels.
func Kind(err error) string {
	var se *StoreError
	if stderrors.As(err, &se) {
		return se.Kind
	}
	return ""
}

func hasKind(err error, kind string) bool {
	var se *StoreError
	return stderrors.As(err, &se) && se.Kind == kind
}

// IsEncodingFailed reports whether err is an encoding failure.
func IsEncodingFailed(err error) bool {
	return hasKind(err, KindEncodingFailed)
}

// IsCorruptValue reports whether err is a corrupt value failure.
func IsCorruptValue(err error) bool {
	return hasKind(err, KindCorruptValue)
}

// IsNotFound reports whether err is a missing-key failure.
func IsNotFound(err error) bool {
	return hasKind(err, KindNotFound)
}

// IsBackendUnavailable reports whether err is an unreachable-backend failure.
func IsBackendUnavailable(err error) bool {
	return hasKind(err, KindBackendUnavailable)
}

// IsAddFailed reports whether err is a failed-write failure.
func IsAddFailed(err error) bool {
	return hasKind(err, KindAddFailed)
}

// IsDeleteFailed reports whether err is a failed-removal failure.
func IsDeleteFailed(err error) bool {
	return hasKind(err, KindDeleteFailed)
}
