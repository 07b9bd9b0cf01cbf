package objstore

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/dMem/lib/async"
	"github.com/ValentinKolb/dMem/lib/remote"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IObjectStore maps object ids to typed values living in remote memory.
// All methods are safe for concurrent use. Concurrent puts and gets of the
// same id race, the result is whichever write reaches the memory server last.
type IObjectStore[T any] interface {
	// Put stores v under id. The first put of an id allocates remote memory.
	Put(id uint64, v T) error
	// Get returns the value stored under id, or ErrNoSuchID.
	Get(id uint64) (T, error)
	// PutAsync is Put without blocking on the write
	PutAsync(id uint64, v T) *async.Op[struct{}]
	// GetAsync is Get without blocking on the read
	GetAsync(id uint64) *async.Op[T]
	// Remove frees the remote memory of id and forgets it, or returns ErrNoSuchID.
	Remove(id uint64) error
}

// RemoteLocation is where the value of an object lives
type RemoteLocation struct {
	Size   uint64        `json:"size"`   // allocated bytes
	Length uint64        `json:"length"` // bytes of the current value
	Handle remote.Handle `json:"handle"`
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is returned by the object store for failures of the store itself.
// Transport failures are returned as *remote.Error.
type Error struct {
	Code RetCode // The return code
	ID   uint64  // The object id
	Msg  string  // The error message
	Err  error   // The cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ObjectStoreError (%s, id %d): %s: %v", e.Code, e.ID, e.Msg, e.Err)
	}
	return fmt.Sprintf("ObjectStoreError (%s, id %d): %s", e.Code, e.ID, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is compares return codes, so errors.Is(err, ErrNoSuchID) matches every id
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new object store error. cause may be nil.
func NewError(code RetCode, id uint64, cause error, format string, args ...any) *Error {
	return &Error{
		Code: code,
		ID:   id,
		Msg:  fmt.Sprintf(format, args...),
		Err:  cause,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode int

const (
	RetCNoSuchID     RetCode = iota + 1 // id was never put or has been removed
	RetCSizeMismatch                    // value does not fit the allocation of the id
	RetCCorrupt                         // stored bytes cannot be deserialized
)

func (c RetCode) String() string {
	switch c {
	case RetCNoSuchID:
		return "NoSuchID"
	case RetCSizeMismatch:
		return "SizeMismatch"
	case RetCCorrupt:
		return "Corrupt"
	default:
		return "Unknown"
	}
}

// Sentinel values for errors.Is
var (
	ErrNoSuchID     = &Error{Code: RetCNoSuchID, Msg: "no such id"}
	ErrSizeMismatch = &Error{Code: RetCSizeMismatch, Msg: "size mismatch"}
	ErrCorrupt      = &Error{Code: RetCCorrupt, Msg: "corrupt value"}
)
