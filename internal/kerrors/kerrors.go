// Package kerrors defines the small error-kind taxonomy the kernel core
// returns instead of panicking: validation, resource-exhaustion, and policy
// failures all become a negative syscall return value. A Fatal kind marks
// an internal invariant violation; Code maps it to a negative value like
// the other kinds, and nothing in this package halts the machine.
package kerrors

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// Kind classifies why an operation failed.
type Kind int

const (
	// NotFound means a key, tid, pid, or virtual address was not present
	// where the caller expected it.
	NotFound Kind = iota
	// NoMemory means a frame, node, or page-table allocation failed.
	NoMemory
	// Overflow means an address or length computation would wrap or leave
	// the addressable range.
	Overflow
	// Overlap means a requested range intersects an existing mapping.
	Overlap
	// BadPointer means a user-supplied pointer failed permission
	// validation against the current page directory.
	BadPointer
	// NotRunnable means a yield/make-runnable target was not in the
	// expected pool.
	NotRunnable
	// NotOwner means the caller does not own the resource it is trying
	// to release (e.g. unlocking a mutex it never locked).
	NotOwner
	// AlreadyInState means a requested state transition is a no-op or
	// contradicts the object's current state (e.g. descheduling a thread
	// that is already WAITING).
	AlreadyInState
	// Fatal means an internal invariant was violated.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case NoMemory:
		return "no memory"
	case Overflow:
		return "overflow"
	case Overlap:
		return "overlap"
	case BadPointer:
		return "bad pointer"
	case NotRunnable:
		return "not runnable"
	case NotOwner:
		return "not owner"
	case AlreadyInState:
		return "already in state"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps a Kind with a contextual message. It implements error and
// carries no stack trace: that is reserved for FatalError, via NewFatal.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
}

// New builds an *Error for the given kind.
func New(op string, kind Kind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// Code maps an error returned by a component operation onto the negative
// syscall return value convention of §6/§7: every kind, Fatal included,
// becomes a small distinct negative integer, nil becomes 0.
func Code(err error) int64 {
	if err == nil {
		return 0
	}
	var k *Error
	if e, ok := err.(*Error); ok {
		k = e
	} else {
		return -1
	}
	switch k.Kind {
	case NotFound:
		return -2
	case NoMemory:
		return -3
	case Overflow:
		return -4
	case Overlap:
		return -5
	case BadPointer:
		return -6
	case NotRunnable:
		return -7
	case NotOwner:
		return -8
	case AlreadyInState:
		return -9
	case Fatal:
		return -10
	default:
		return -1
	}
}

// FatalError wraps an invariant violation with a captured stack trace.
// Constructing one does not stop anything; no caller in this module
// builds one.
type FatalError struct {
	*goerrors.Error
	Reason string
}

// NewFatal captures the current stack and wraps reason into a FatalError.
func NewFatal(reason string) *FatalError {
	return &FatalError{
		Error:  goerrors.Wrap(fmt.Errorf("%s", reason), 1),
		Reason: reason,
	}
}
