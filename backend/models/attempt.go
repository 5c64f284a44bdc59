package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Attempt is a student's run at a test (the test_result record).
type Attempt struct {
	ID               uuid.UUID                        `gorm:"type:uuid;primaryKey" json:"id"`
	TestID           uint                             `gorm:"not null;uniqueIndex:idx_attempt_test_student" json:"test_id"`
	StudentID        uint                             `gorm:"not null;uniqueIndex:idx_attempt_test_student" json:"student_id"`
	Status           string                           `gorm:"not null;index" json:"status"`
	StartedAt        time.Time                        `json:"started_at"`
	DeadlineAt       time.Time                        `gorm:"index" json:"deadline_at"`
	SubmittedAt      *time.Time                       `json:"submitted_at,omitempty"`
	Answers          datatypes.JSONType[map[uint]int] `json:"answers"`
	TotalQuestions   int                              `json:"total_questions"`
	CorrectCount     int                              `json:"correct_count"`
	WrongCount       int                              `json:"wrong_count"`
	UnattemptedCount int                              `json:"unattempted_count"`
	Score            float64                          `json:"score"`
	ScoredMarks      float64                          `json:"scored_marks"`
	TotalMarks       float64                          `json:"total_marks"`
	ScoringScheme    string                           `json:"scoring_scheme"`
	TimeTakenSeconds int                              `json:"time_taken_seconds"`
	SubmittedBy      string                           `json:"submitted_by,omitempty"`
	Late             bool                             `json:"late"`
	Version          int                              `gorm:"not null" json:"version"`
	CreatedAt        time.Time                        `json:"created_at"`
	UpdatedAt        time.Time                        `json:"updated_at"`
}

func (a *Attempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
