package exam

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrEmptyTest          = errors.New("test has no usable questions")
	ErrUnauthenticated    = errors.New("no authenticated student")
	ErrAlreadyCompleted   = errors.New("attempt already completed")
	ErrPersistence        = errors.New("could not persist attempt")
	ErrConflict           = errors.New("attempt was modified concurrently")
	ErrInvalidAnswer      = errors.New("invalid answer")
	ErrTimeUp             = errors.New("time is up")
	ErrSubmissionInFlight = errors.New("submission in progress")
	ErrTestUnavailable    = errors.New("test is not active")
	ErrNotOpen            = errors.New("test has not opened yet")
	ErrWindowClosed       = errors.New("test window has closed")
	// ErrTestInUse rejects edits that would change a test under running attempts.
	ErrTestInUse = errors.New("test has attempts in progress")
)

// CompletedError is returned when a student re-enters a finished attempt.
// Callers should send the student to the results view.
type CompletedError struct {
	AttemptID uuid.UUID
}

func (e *CompletedError) Error() string {
	return fmt.Sprintf("attempt %s already completed", e.AttemptID)
}

func (e *CompletedError) Is(target error) bool { return target == ErrAlreadyCompleted }
