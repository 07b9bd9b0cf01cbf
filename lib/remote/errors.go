package remote

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the error type of all transports. It carries a return code that
// classifies the failure and optionally the underlying cause.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message
	Err  error   // The cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("TransportError (%s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("TransportError (%s): %s", e.Code, e.Msg)
}

// Unwrap returns the cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a transport error with the same code.
// This makes errors.Is(err, remote.ErrIO) match every IO error.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new transport error. cause may be nil.
func NewError(code RetCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
		Err:  cause,
	}
}

// AsError returns err as a transport error. Errors that already are transport
// errors are returned unchanged, everything else is wrapped with code.
func AsError(code RetCode, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return NewError(code, err, format, args...)
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

// RetCode classifies transport errors
type RetCode int

const (
	RetCConnError  RetCode = iota + 1 // endpoint refused, unreachable or connection dropped
	RetCAllocError                    // remote memory server rejected an allocation
	RetCIOError                       // a read, write or free failed
)

func (c RetCode) String() string {
	switch c {
	case RetCConnError:
		return "ConnError"
	case RetCAllocError:
		return "AllocError"
	case RetCIOError:
		return "IOError"
	default:
		return "Unknown"
	}
}

// Sentinel values for errors.Is
var (
	ErrConn  = &Error{Code: RetCConnError, Msg: "connection error"}
	ErrAlloc = &Error{Code: RetCAllocError, Msg: "allocation error"}
	ErrIO    = &Error{Code: RetCIOError, Msg: "io error"}
)
