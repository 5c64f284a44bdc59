package exam

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"examhub/backend/utils"
)

type sessionState int

const (
	stateActive sessionState = iota
	stateFinalizing
	stateCompleted
	stateClosed
)

// Session is one live view of an in-progress attempt.
type Session struct {
	tracker *Tracker
	id      uuid.UUID
	test    *LoadedTest
	student Student
	log     *logrus.Entry

	mu      sync.Mutex
	attempt Attempt
	state   sessionState

	countdown *Countdown
	autosave  *Autosaver
	flight    singleflight.Group
}

func (t *Tracker) newSession(loaded *LoadedTest, attempt Attempt) *Session {
	log := utils.WithContext(context.Background()).WithFields(logrus.Fields{
		"attempt_id": attempt.ID,
		"test_id":    attempt.TestID,
		"student_id": attempt.StudentID,
	})
	s := &Session{
		tracker: t,
		id:      attempt.ID,
		test:    loaded,
		student: Student{ID: attempt.StudentID},
		log:     log,
		attempt: attempt,
	}
	s.autosave = NewAutosaver(t.autosave, s.persistAnswers, log)
	return s
}

func (s *Session) startCountdown() {
	s.countdown = NewCountdown(s.attempt.DeadlineAt, s.tracker.now, s.tracker.newTicker, s.expire)
	s.countdown.Start()
}

func (s *Session) expire() {
	ctx, cancel := context.WithTimeout(context.Background(), s.tracker.expireTimeout)
	defer cancel()
	if _, err := s.Finalize(ctx, TriggerTimer); err != nil {
		s.log.WithError(err).Error("Auto-submission failed")
	}
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) StudentID() uint { return s.student.ID }

func (s *Session) Test() *LoadedTest { return s.test }

// Attempt returns a copy of the current attempt state.
func (s *Session) Attempt() Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.attempt
	a.Answers = s.attempt.Answers.Clone()
	return a
}

func (s *Session) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateCompleted {
		return 0
	}
	rem := s.attempt.DeadlineAt.Sub(s.tracker.now())
	if rem < 0 {
		return 0
	}
	return rem
}

// Unsaved reports whether recent answers failed to autosave.
func (s *Session) Unsaved() bool { return s.autosave.Unsaved() }

// RecordAnswer stores the selected option and schedules an autosave.
func (s *Session) RecordAnswer(ctx context.Context, questionID uint, option int) error {
	q, ok := s.test.Question(questionID)
	if !ok {
		return fmt.Errorf("%w: question %d is not part of this test", ErrInvalidAnswer, questionID)
	}
	if option < 0 || option >= len(q.Options) {
		return fmt.Errorf("%w: option %d out of range", ErrInvalidAnswer, option)
	}

	s.mu.Lock()
	switch s.state {
	case stateCompleted:
		s.mu.Unlock()
		return &CompletedError{AttemptID: s.id}
	case stateFinalizing:
		s.mu.Unlock()
		return ErrSubmissionInFlight
	case stateClosed:
		s.mu.Unlock()
		return fmt.Errorf("session closed: %w", ErrNotFound)
	}
	if !s.tracker.now().Before(s.attempt.DeadlineAt) {
		s.mu.Unlock()
		return ErrTimeUp
	}
	s.attempt.Answers[questionID] = option
	snapshot := s.attempt.Answers.Clone()
	s.mu.Unlock()

	s.autosave.Enqueue(snapshot)
	utils.WithContext(ctx).WithFields(logrus.Fields{"attempt_id": s.id, "question_id": questionID}).Debug("Answer recorded")
	return nil
}

func (s *Session) persistAnswers(ctx context.Context, answers Answers) error {
	s.mu.Lock()
	if s.state == stateFinalizing || s.state == stateCompleted {
		s.mu.Unlock()
		return ErrAlreadyCompleted
	}
	version := s.attempt.Version
	s.mu.Unlock()

	updated, err := s.tracker.store.UpdateAttempt(ctx, s.id, version, AttemptUpdate{Answers: answers})
	if err == nil {
		s.mu.Lock()
		if updated.Version > s.attempt.Version {
			s.attempt.Version = updated.Version
		}
		s.mu.Unlock()
		return nil
	}
	if !errors.Is(err, ErrConflict) {
		return err
	}

	// another writer moved the version on; take it and let the retry overwrite
	stored, ferr := s.tracker.store.FetchAttemptByID(ctx, s.id)
	if ferr != nil {
		return err
	}
	if stored.Completed() {
		return ErrAlreadyCompleted
	}
	s.mu.Lock()
	s.attempt.Version = stored.Version
	s.mu.Unlock()
	return err
}

// Finalize scores and completes the attempt. Concurrent calls share one
// execution; calls after completion return the stored attempt unchanged.
func (s *Session) Finalize(ctx context.Context, by Trigger) (Attempt, error) {
	v, err, _ := s.flight.Do("finalize", func() (interface{}, error) {
		return s.finalize(ctx, by)
	})
	if err != nil {
		return Attempt{}, err
	}
	return v.(Attempt), nil
}

func (s *Session) finalize(ctx context.Context, by Trigger) (Attempt, error) {
	s.mu.Lock()
	if s.state == stateCompleted {
		s.mu.Unlock()
		return s.Attempt(), nil
	}
	prev := s.state
	s.state = stateFinalizing
	answers := s.attempt.Answers.Clone()
	startedAt := s.attempt.StartedAt
	deadline := s.attempt.DeadlineAt
	s.mu.Unlock()

	s.autosave.Discard()

	var (
		updated *Attempt
		err     error
	)
	for try := 0; try < 3; try++ {
		var stored *Attempt
		stored, err = s.tracker.store.FetchAttemptByID(ctx, s.id)
		if err != nil {
			break
		}
		if stored.Completed() {
			updated = stored
			break
		}

		now := s.tracker.now()
		completion := &Completion{
			Result:           Score(s.scheme(), s.test.Questions, answers),
			SubmittedAt:      now,
			TimeTakenSeconds: timeTaken(startedAt, deadline, now),
			SubmittedBy:      by,
			Late:             s.test.Test.EndsAt != nil && now.After(*s.test.Test.EndsAt),
		}
		updated, err = s.tracker.store.UpdateAttempt(ctx, s.id, stored.Version, AttemptUpdate{
			Answers:  answers,
			Complete: completion,
		})
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrAlreadyCompleted) {
			// an autosave landed or another process finished it; re-read
			continue
		}
		break
	}

	if err != nil || updated == nil {
		s.mu.Lock()
		if s.state == stateFinalizing {
			s.state = prev
		}
		s.mu.Unlock()
		if prev == stateActive {
			s.autosave.Enqueue(answers)
		}
		if err == nil {
			err = ErrConflict
		}
		s.log.WithError(err).WithField("trigger", by).Error("Finalize failed")
		return Attempt{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.mu.Lock()
	s.attempt = *updated
	if s.attempt.Answers == nil {
		s.attempt.Answers = Answers{}
	}
	s.state = stateCompleted
	s.mu.Unlock()

	s.teardown()
	s.log.WithFields(logrus.Fields{
		"trigger": updated.SubmittedBy,
		"score":   updated.Result.Score,
	}).Info("Attempt completed")
	return s.Attempt(), nil
}

func (s *Session) scheme() Scheme {
	if s.test.Test.Scheme != "" {
		return s.test.Test.Scheme
	}
	return s.tracker.defaultScheme
}

// timeTaken is capped at the attempt's own allowance.
func timeTaken(startedAt, deadline, now time.Time) int {
	if now.After(deadline) {
		now = deadline
	}
	taken := now.Sub(startedAt)
	if taken < 0 {
		taken = 0
	}
	return int(taken / time.Second)
}

// Close leaves the view: pending answers are written once, then ticking
// stops. The attempt stays in progress.
func (s *Session) Close() {
	s.mu.Lock()
	wasActive := s.state == stateActive
	if wasActive {
		s.state = stateClosed
	}
	s.mu.Unlock()

	if wasActive {
		s.autosave.Flush()
	}
	s.teardown()
}

func (s *Session) teardown() {
	if s.countdown != nil {
		s.countdown.Stop()
	}
	s.autosave.Close()
	s.tracker.forget(s)
}
