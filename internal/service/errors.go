package service

import (
	"errors"
	"fmt"
)

// Kind classifies business failures. The transport maps each kind onto a
// status code; nothing below the transport knows about HTTP.
type Kind int

const (
	InvalidArgument Kind = iota + 1
	NotFound
	DuplicateKey
	Conflict
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid argument"
	case NotFound:
		return "not found"
	case DuplicateKey:
		return "duplicate key"
	case Conflict:
		return "conflict"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a business failure with a fixed, client-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind and message so wrapped copies compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

var (
	ErrBookNotFound      = &Error{Kind: NotFound, Message: "Book not found"}
	ErrDuplicatedISBN    = &Error{Kind: DuplicateKey, Message: "Duplicated isbn"}
	ErrNullBookID        = &Error{Kind: InvalidArgument, Message: "Book id can't be null"}
	ErrNullBook          = &Error{Kind: InvalidArgument, Message: "Book can't be null"}
	ErrBookAlreadyLoaned = &Error{Kind: Conflict, Message: "Book already loaned"}
	ErrLoanNotFound      = &Error{Kind: NotFound, Message: "Loan not found"}
	ErrBookHasLoans      = &Error{Kind: Conflict, Message: "Book has loans"}
)

// wrap returns a copy of sentinel carrying cause.
func wrap(sentinel *Error, cause error) error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Err: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
