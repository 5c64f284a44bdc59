// Package exam holds the take-test flow: loading a test, tracking a
// student's attempt, counting down the time budget and scoring the answers.
package exam

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Trigger records what finalized an attempt.
type Trigger string

const (
	TriggerStudent Trigger = "student"
	TriggerTimer   Trigger = "timer"
	TriggerSweeper Trigger = "sweeper"
)

const DefaultBudget = 60 * time.Minute

// Student is the authenticated caller on whose behalf an attempt runs.
type Student struct {
	ID uint
}

type Test struct {
	ID                  uint
	Title               string
	Subject             string
	DurationMinutes     int
	TimeLimitMinutes    *int
	StartsAt            *time.Time
	EndsAt              *time.Time
	AllowLateSubmission bool
	Active              bool
	Scheme              Scheme
}

// Question is the normalized form every storage schema is converted to.
// CorrectOption is a zero-based index into Options.
type Question struct {
	ID            uint
	Text          string
	ImageURL      string
	Kind          string
	Options       []string
	CorrectOption int
	Explanation   string
	Marks         *float64
	NegativeMarks *float64
	Difficulty    string
}

// Answers maps question id to the selected option index.
type Answers map[uint]int

func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

type Attempt struct {
	ID               uuid.UUID
	TestID           uint
	StudentID        uint
	Status           Status
	StartedAt        time.Time
	DeadlineAt       time.Time
	SubmittedAt      *time.Time
	Answers          Answers
	TotalQuestions   int
	Result           Result
	TimeTakenSeconds int
	SubmittedBy      Trigger
	Late             bool
	Version          int
}

func (a Attempt) Completed() bool { return a.Status == StatusCompleted }
