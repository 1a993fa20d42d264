// Package codec converts secret values between their string form and the
// raw bytes a backend stores.
package codec

import (
	"errors"
	"unicode/utf8"
)

// ErrInvalidEncoding reports bytes or strings that do not form valid UTF-8.
var ErrInvalidEncoding = errors.New("codec: invalid UTF-8 sequence")

// Codec converts secret values to and from stored bytes. Implementations
// must be exact: a decode failure is an error, never a lossy substitution,
// and Decode(Encode(v)) returns v unchanged for every encodable value.
type Codec interface {
	Encode(value string) ([]byte, error)
	Decode(data []byte) (string, error)
}

// UTF8 is the default codec. Encoding succeeds for every valid UTF-8
// string; decoding fails with ErrInvalidEncoding when the stored bytes were
// written by something else and do not form UTF-8.
type UTF8 struct{}

// Encode returns the UTF-8 bytes of value. Go strings may carry arbitrary
// bytes, so strings that are not valid UTF-8 are rejected rather than
// stored unreadably.
func (UTF8) Encode(value string) ([]byte, error) {
	if !utf8.ValidString(value) {
		return nil, ErrInvalidEncoding
	}
	return []byte(value), nil
}

// Decode interprets data as UTF-8 text.
func (UTF8) Decode(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", ErrInvalidEncoding
	}
	return string(data), nil
}
