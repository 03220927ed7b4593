// Package failure defines the error taxonomy shared by every skillforge
// operation. Each failure carries a Kind so that callers at the operation
// boundary can label the outcome without string matching.
package failure

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure
type Kind string

const (
	// KindValidation is a missing or blank required input, caught before any external call
	KindValidation Kind = "validation"
	// KindService is a failed call to the completion service
	KindService Kind = "service"
	// KindFormat is a completion response that does not match the expected shape
	KindFormat Kind = "format"
	// KindState is an operation invoked against a precondition that does not hold
	KindState Kind = "state"
	// KindPersistence is a skill store read or write failure
	KindPersistence Kind = "persistence"
)

// Label returns a short human readable label for the kind
func (k Kind) Label() string {
	switch k {
	case KindValidation:
		return "Invalid input"
	case KindService:
		return "Completion service error"
	case KindFormat:
		return "Malformed response"
	case KindState:
		return "Not allowed now"
	case KindPersistence:
		return "Storage error"
	default:
		return "Error"
	}
}

// Error is a labeled failure of a named operation
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a failure without an underlying cause
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Newf creates a failure with a formatted message
func Newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap labels err with kind. A nil err yields nil.
func Wrap(kind Kind, op string, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// KindOf reports the kind of the outermost labeled failure in err's chain
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Message returns the user facing message for err: the kind label followed by
// the error text.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if k, ok := KindOf(err); ok {
		return fmt.Sprintf("%s: %v", k.Label(), err)
	}
	return err.Error()
}
