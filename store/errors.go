package store

import (
	"errors"
	"fmt"
)

// Kind is one of the stable error identifiers every engine and modality
// surfaces. Kinds are carried in the error string (via Error.Error) and are
// also inspectable with errors.As, so callers can branch on them without
// string matching.
type Kind string

const (
	ErrorArgsWrong          Kind = "args_wrong"
	ErrorMissingCollection  Kind = "missing_collection"
	ErrorConflict           Kind = "conflict"
	ErrorTransactionRequired Kind = "transaction_required"
	ErrorUnimplemented      Kind = "unimplemented"
	ErrorOutOfMemory        Kind = "out_of_memory"
	ErrorIO                 Kind = "io"
	ErrorCorruption         Kind = "corruption"
	ErrorUnknown            Kind = "unknown"
)

// Error is the error type returned across the whole store API. It always
// carries a Kind, so callers can distinguish "go reset and retry" (conflict)
// from "fatal, this handle is now poisoned" (io, corruption) without parsing
// strings.
type Error struct {
	Kind  Kind
	Msg   string
	cause error
}

func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Is allows errors.Is(err, store.ErrConflict) style checks against the
// package-level sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is comparisons, one per Kind. They carry no message
// and are never returned directly — Error values built with NewError/Wrap
// compare equal to these via (*Error).Is.
var (
	ErrArgsWrong           = &Error{Kind: ErrorArgsWrong}
	ErrMissingCollection   = &Error{Kind: ErrorMissingCollection}
	ErrConflict            = &Error{Kind: ErrorConflict}
	ErrTransactionRequired = &Error{Kind: ErrorTransactionRequired}
	ErrUnimplemented       = &Error{Kind: ErrorUnimplemented}
	ErrOutOfMemory         = &Error{Kind: ErrorOutOfMemory}
	ErrIO                  = &Error{Kind: ErrorIO}
	ErrCorruption          = &Error{Kind: ErrorCorruption}
	ErrUnknown             = &Error{Kind: ErrorUnknown}
)

// KindOf extracts the Kind carried by err, or ErrorUnknown if err doesn't
// wrap a *Error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ErrorUnknown
}
