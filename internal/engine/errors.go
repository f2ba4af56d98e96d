package engine

import (
	"context"
	"errors"
	"fmt"

	db "github.com/parley-labs/parley/internal/db/gorm"
)

// ErrValidation is returned for requests with missing or empty required
// fields. Nothing is persisted before the check.
var ErrValidation = errors.New("validation failed")

// ErrNotFound is returned for unknown sessions. It is the store's
// sentinel so callers can check either package.
var ErrNotFound = db.ErrNotFound

// ErrConflict is returned when a session refuses the operation in its
// current state: appending to a completed session, a second append
// while one is in flight, or a stale suggestion index.
var ErrConflict = errors.New("conflict")

// ErrPreconditionFailed is returned when a capsule is requested for a
// session that is not complete or has no final report.
var ErrPreconditionFailed = errors.New("precondition failed")

// ErrUpstream is returned when the generation backend fails or its
// output cannot be parsed after the degrade retry.
var ErrUpstream = errors.New("generation backend failed")

// upstreamErr classifies a backend failure. Context cancellation passes
// through so a client disconnect is not reported as a backend fault.
func upstreamErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUpstream, err)
}

func validationErr(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func conflictf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func preconditionf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrPreconditionFailed, fmt.Sprintf(format, args...))
}
