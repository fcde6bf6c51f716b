// Package apperr defines the error categories surfaced by the core services.
// Every failure leaving internal/auth or internal/query carries a Kind and a
// human-readable message that is safe to show to clients.
package apperr

import "errors"

type Kind string

const (
	Conflict              Kind = "conflict"
	Unauthorized          Kind = "unauthorized"
	Unauthenticated       Kind = "unauthenticated"
	InvalidToken          Kind = "invalid_token"
	Forbidden             Kind = "forbidden"
	NotFound              Kind = "not_found"
	InvalidOrExpiredToken Kind = "invalid_or_expired_token"
	PageOutOfRange        Kind = "page_out_of_range"
	DeliveryError         Kind = "delivery_error"
	StoreUnavailable      Kind = "store_unavailable"
	InvalidInput          Kind = "invalid_input"
	Internal              Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap keeps err for logs and errors.Is/As; only message reaches clients.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns Internal for errors that carry no Kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Message returns the client-safe message, or fallback when err has none.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
