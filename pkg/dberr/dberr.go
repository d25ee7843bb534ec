// Package dberr collects the error sentinels the buffer pool and its
// collaborators raise. Callers match with errors.Is; wrapping goes through
// github.com/pkg/errors so IO failures carry a stack trace.
package dberr

import (
	"github.com/pkg/errors"
)

var (
	// ErrTransactionAborted is returned by the lock table when granting a
	// request would close a waits-for cycle, and by any buffer-pool
	// operation that acquires locks on the caller's behalf. The caller
	// must abort the transaction; retrying after a jittered delay is the
	// usual response.
	ErrTransactionAborted = errors.New("transaction aborted: deadlock detected")

	// ErrResourceExhausted is returned when every cached page is dirty or
	// locked, so eviction has no victim to choose from.
	ErrResourceExhausted = errors.New("buffer pool exhausted: all pages dirty or locked")

	// ErrBadInput marks a synchronous, non-retryable caller mistake: a nil
	// tuple, a missing table, a schema mismatch.
	ErrBadInput = errors.New("invalid input")

	// ErrIO marks a page store read/write failure.
	ErrIO = errors.New("page store I/O error")
)

// Aborted reports whether err is (or wraps) ErrTransactionAborted.
func Aborted(err error) bool { return errors.Is(err, ErrTransactionAborted) }

// Exhausted reports whether err is (or wraps) ErrResourceExhausted.
func Exhausted(err error) bool { return errors.Is(err, ErrResourceExhausted) }

// WrapIO wraps a page store failure so that errors.Is(err, ErrIO), the
// underlying cause, and a stack trace all survive. Used uniformly on read
// and write paths; a failed read is an error, never a silent empty page.
func WrapIO(err error, context string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(joinErr{ErrIO, err}, "%s", context)
}

// BadInput wraps ErrBadInput with a descriptive message.
func BadInput(format string, args ...any) error {
	return errors.Wrapf(ErrBadInput, format, args...)
}

// joinErr lets errors.Is see both the sentinel and the underlying cause.
type joinErr struct {
	sentinel error
	cause    error
}

func (j joinErr) Error() string   { return j.cause.Error() }
func (j joinErr) Unwrap() []error { return []error{j.sentinel, j.cause} }
