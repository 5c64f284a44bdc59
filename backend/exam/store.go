package exam

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence contract the take-test flow depends on.
type Store interface {
	// FetchTest returns ErrNotFound when the test does not exist.
	FetchTest(ctx context.Context, id uint) (*Test, error)
	// FetchQuestionsForTest returns the test's questions in display order,
	// whatever schema they are stored in.
	FetchQuestionsForTest(ctx context.Context, testID uint) ([]Question, error)
	// FetchAttempt returns nil, nil when the student has no attempt for the test.
	FetchAttempt(ctx context.Context, testID, studentID uint) (*Attempt, error)
	FetchAttemptByID(ctx context.Context, id uuid.UUID) (*Attempt, error)
	// CreateAttempt returns ErrConflict when an attempt for the pair already exists.
	CreateAttempt(ctx context.Context, a *Attempt) error
	// UpdateAttempt applies u only if the stored version equals version and
	// the attempt is still in progress. It returns ErrConflict on a version
	// mismatch and ErrAlreadyCompleted when the attempt is finished.
	UpdateAttempt(ctx context.Context, id uuid.UUID, version int, u AttemptUpdate) (*Attempt, error)
	ListExpiredAttempts(ctx context.Context, now time.Time, limit int) ([]Attempt, error)
}

type AttemptUpdate struct {
	Answers  Answers
	Complete *Completion
}

type Completion struct {
	Result           Result
	SubmittedAt      time.Time
	TimeTakenSeconds int
	SubmittedBy      Trigger
	Late             bool
}
