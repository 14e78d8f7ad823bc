// ABOUTME: Error types for best-effort draft persistence
// ABOUTME: PersistError carries the failing operation and key to diagnostics

package draft

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Flush after Close.
var ErrClosed = errors.New("draft store closed")

// Op names the persistence step that failed.
type Op string

const (
	OpRead   Op = "read"   // backing store Get failed
	OpDecode Op = "decode" // persisted value did not decode
	OpEncode Op = "encode" // in-memory value did not encode
	OpWrite  Op = "write"  // backing store Set failed
)

// PersistError describes a swallowed persistence failure.
type PersistError struct {
	Op  Op
	Key string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("draft %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// ErrorHandler receives persistence failures that are not returned to the
// caller. It is called with the store's lock held and must not call back
// into the store.
type ErrorHandler func(err *PersistError)
