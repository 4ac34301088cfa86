package errkind

import (
	"errors"
	"strings"
)

// ErrMissingCredential is reported before any network call when no API key is configured.
var ErrMissingCredential = New(Transport, "API key is missing. Please check your environment configuration.")

// Error attaches a Kind to an underlying error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error with the given message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Err: errors.New(msg)}
}

// Wrap attaches kind to err. It is a no-op if err is nil or already classified.
func Wrap(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	var ke *Error
	if errors.As(err, &ke) {
		return err
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the kind from err, if present.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return Unknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Message returns the single human-readable message for a failure.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" && msg != string(KindOf(err)) {
		return msg
	}
	return FallbackMessage
}
