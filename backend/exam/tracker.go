package exam

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"examhub/backend/utils"
)

// Tracker owns the live sessions of in-progress attempts and keeps at most
// one attempt per (test, student).
type Tracker struct {
	store         Store
	loader        *Loader
	defaultScheme Scheme
	autosave      AutosaveConfig
	now           func() time.Time
	newTicker     func(time.Duration) Ticker
	expireTimeout time.Duration

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

type TrackerOption func(*Tracker)

func WithDefaultScheme(s Scheme) TrackerOption { return func(t *Tracker) { t.defaultScheme = s } }

func WithAutosave(cfg AutosaveConfig) TrackerOption { return func(t *Tracker) { t.autosave = cfg } }

func WithClock(now func() time.Time) TrackerOption { return func(t *Tracker) { t.now = now } }

func WithTicker(newTicker func(time.Duration) Ticker) TrackerOption {
	return func(t *Tracker) { t.newTicker = newTicker }
}

func NewTracker(store Store, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		store:         store,
		loader:        NewLoader(store),
		defaultScheme: SchemePercentage,
		autosave:      DefaultAutosaveConfig(),
		now:           time.Now,
		newTicker:     NewRealTicker,
		expireTimeout: 30 * time.Second,
		sessions:      map[uuid.UUID]*Session{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) Loader() *Loader { return t.loader }

// Begin starts or resumes the student's attempt at a test. A finished
// attempt yields a *CompletedError. A resumed attempt whose time has run
// out is finalized before Begin returns.
func (t *Tracker) Begin(ctx context.Context, student Student, testID uint) (*Session, error) {
	if student.ID == 0 {
		return nil, ErrUnauthenticated
	}
	log := utils.WithContext(ctx).WithFields(logrus.Fields{"test_id": testID, "student_id": student.ID})

	loaded, err := t.loader.Load(ctx, testID)
	if err != nil {
		return nil, err
	}

	// a concurrent Begin may win the insert; the second pass resumes its attempt
	for pass := 0; pass < 2; pass++ {
		existing, err := t.store.FetchAttempt(ctx, testID, student.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch attempt: %w", err)
		}
		if existing != nil {
			return t.resume(ctx, loaded, *existing, TriggerTimer)
		}

		attempt, err := t.newAttempt(loaded, student)
		if err != nil {
			return nil, err
		}
		if err := t.store.CreateAttempt(ctx, &attempt); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return nil, fmt.Errorf("create attempt: %w: %v", ErrPersistence, err)
		}
		log.WithField("attempt_id", attempt.ID).Info("Attempt started")
		return t.open(loaded, attempt), nil
	}
	return nil, ErrConflict
}

// Resume reopens an attempt by id on behalf of its owner.
func (t *Tracker) Resume(ctx context.Context, student Student, attemptID uuid.UUID) (*Session, error) {
	if student.ID == 0 {
		return nil, ErrUnauthenticated
	}
	if s, ok := t.Session(attemptID); ok {
		if s.student.ID != student.ID {
			return nil, ErrNotFound
		}
		return s, nil
	}

	attempt, err := t.store.FetchAttemptByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.StudentID != student.ID {
		return nil, ErrNotFound
	}
	if attempt.Completed() {
		return nil, &CompletedError{AttemptID: attempt.ID}
	}
	return t.Begin(ctx, student, attempt.TestID)
}

func (t *Tracker) newAttempt(loaded *LoadedTest, student Student) (Attempt, error) {
	test := loaded.Test
	now := t.now()

	if !test.Active {
		return Attempt{}, ErrTestUnavailable
	}
	if test.StartsAt != nil && now.Before(*test.StartsAt) {
		return Attempt{}, ErrNotOpen
	}
	if test.EndsAt != nil && !now.Before(*test.EndsAt) && !test.AllowLateSubmission {
		return Attempt{}, ErrWindowClosed
	}

	return Attempt{
		ID:             uuid.New(),
		TestID:         test.ID,
		StudentID:      student.ID,
		Status:         StatusInProgress,
		StartedAt:      now,
		DeadlineAt:     deadlineFor(loaded, now),
		Answers:        Answers{},
		TotalQuestions: len(loaded.Questions),
		Version:        1,
	}, nil
}

// deadlineFor is start+budget, cut at the window end unless late work is allowed.
func deadlineFor(loaded *LoadedTest, startedAt time.Time) time.Time {
	deadline := startedAt.Add(loaded.Budget)
	if end := loaded.Test.EndsAt; end != nil && !loaded.Test.AllowLateSubmission && end.Before(deadline) {
		deadline = *end
	}
	return deadline
}

func (t *Tracker) resume(ctx context.Context, loaded *LoadedTest, attempt Attempt, expiredBy Trigger) (*Session, error) {
	if attempt.Completed() {
		return nil, &CompletedError{AttemptID: attempt.ID}
	}
	if s, ok := t.Session(attempt.ID); ok {
		return s, nil
	}

	if attempt.Answers == nil {
		attempt.Answers = Answers{}
	}
	// the deadline fixed at start wins over later edits to the test
	if attempt.DeadlineAt.IsZero() {
		attempt.DeadlineAt = deadlineFor(loaded, attempt.StartedAt)
	}

	if !t.now().Before(attempt.DeadlineAt) {
		s := t.newSession(loaded, attempt)
		if _, err := s.Finalize(ctx, expiredBy); err != nil {
			return nil, err
		}
		return s, nil
	}

	utils.WithContext(ctx).WithField("attempt_id", attempt.ID).Info("Attempt resumed")
	return t.open(loaded, attempt), nil
}

// open registers a live session and starts its countdown.
func (t *Tracker) open(loaded *LoadedTest, attempt Attempt) *Session {
	t.mu.Lock()
	if s, ok := t.sessions[attempt.ID]; ok {
		t.mu.Unlock()
		return s
	}
	s := t.newSession(loaded, attempt)
	t.sessions[attempt.ID] = s
	s.startCountdown()
	t.mu.Unlock()
	return s
}

func (t *Tracker) Session(id uuid.UUID) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	return s, ok
}

func (t *Tracker) forget(s *Session) {
	t.mu.Lock()
	if t.sessions[s.id] == s {
		delete(t.sessions, s.id)
	}
	t.mu.Unlock()
}

// Leave tears down the live session for an attempt, if any. The attempt
// stays in progress in the store.
func (t *Tracker) Leave(id uuid.UUID) {
	if s, ok := t.Session(id); ok {
		s.Close()
	}
}

// FinalizeExpired finishes in-progress attempts whose deadline has passed
// and returns how many were completed.
func (t *Tracker) FinalizeExpired(ctx context.Context, limit int) (int, error) {
	log := utils.WithContext(ctx)

	expired, err := t.store.ListExpiredAttempts(ctx, t.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("list expired attempts: %w", err)
	}

	done := 0
	for _, a := range expired {
		if s, ok := t.Session(a.ID); ok {
			if _, err := s.Finalize(ctx, TriggerSweeper); err != nil {
				log.WithError(err).WithField("attempt_id", a.ID).Error("Could not finalize expired attempt")
				continue
			}
			done++
			continue
		}

		loaded, err := t.loader.Load(ctx, a.TestID)
		if err != nil {
			log.WithError(err).WithField("attempt_id", a.ID).Error("Could not load test for expired attempt")
			continue
		}
		s, err := t.resume(ctx, loaded, a, TriggerSweeper)
		if err != nil {
			if !errors.Is(err, ErrAlreadyCompleted) {
				log.WithError(err).WithField("attempt_id", a.ID).Error("Could not finalize expired attempt")
			}
			continue
		}
		if s.Attempt().Completed() {
			done++
		}
	}
	return done, nil
}

// Shutdown closes every live session.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	live := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		live = append(live, s)
	}
	t.mu.Unlock()

	for _, s := range live {
		s.Close()
	}
}
