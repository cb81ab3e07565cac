package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the gateways.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindInvalidTransition
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified domain error. Msg is safe to show to clients,
// except for KindInternal where Err carries the cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

var (
	ErrUnauthenticated     = &Error{Kind: KindUnauthenticated, Msg: "not authorized"}
	ErrSelfChat            = &Error{Kind: KindValidation, Msg: "cannot chat with yourself"}
	ErrInvalidCursor       = &Error{Kind: KindValidation, Msg: "cursor does not belong to this chat"}
	ErrUserNotFound        = &Error{Kind: KindNotFound, Msg: "user not found"}
	ErrChatNotFound        = &Error{Kind: KindNotFound, Msg: "chat not found"}
	ErrMessageNotFound     = &Error{Kind: KindNotFound, Msg: "message not found"}
	ErrForbidden           = &Error{Kind: KindForbidden, Msg: "forbidden"}
	ErrSenderCannotAdvance = &Error{Kind: KindInvalidTransition, Msg: "sender cannot change the status of their own message"}
	ErrInvalidTransition   = &Error{Kind: KindInvalidTransition, Msg: "invalid status transition"}
	ErrConflict            = &Error{Kind: KindConflict, Msg: "message status changed concurrently, retry"}
)

// Validation returns a KindValidation error with a client-facing message.
func Validation(msg string) error {
	return &Error{Kind: KindValidation, Msg: msg}
}

// Internal wraps an infrastructure fault.
func Internal(op string, err error) error {
	return &Error{Kind: KindInternal, Msg: op, Err: err}
}

// KindOf reports the kind of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the client-facing text for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Msg
	}
	return "internal error"
}
