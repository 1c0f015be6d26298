package lumen

import (
	"errors"
	"fmt"
)

// Sentinel errors for the store and sync layers. Callers classify failures
// with errors.Is rather than by message.
var (
	// ErrNotFound means the document id is unknown. Services recover from it
	// locally and return (nil, nil) across their boundary.
	ErrNotFound = errors.New("document not found")

	// ErrConflict means a write carried a stale revision token. The caller
	// must re-read and retry; the store never auto-merges.
	ErrConflict = errors.New("revision conflict")

	// ErrStorageUnavailable wraps disk or filesystem failures. It is fatal
	// for the calling operation and always propagates.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ConflictError reports a stale-revision write with enough detail for the
// caller to log and retry.
type ConflictError struct {
	ID      string
	Given   string
	Current string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("revision conflict on %s: have %s, want %s", e.ID, e.Given, e.Current)
}

// Unwrap makes errors.Is(err, ErrConflict) work.
func (e *ConflictError) Unwrap() error { return ErrConflict }

// IsNotFound reports whether err means an unknown document id.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err means a stale-revision write.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
