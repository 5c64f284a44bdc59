package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Test struct {
	gorm.Model
	Title               string     `gorm:"not null" json:"title"`
	Subject             string     `json:"subject"`
	AuthorID            uint       `gorm:"index" json:"author_id"`
	DurationMinutes     int        `json:"duration_minutes"`
	TimeLimitMinutes    *int       `json:"time_limit_minutes,omitempty"`
	StartsAt            *time.Time `json:"starts_at,omitempty"`
	EndsAt              *time.Time `json:"ends_at,omitempty"`
	AllowLateSubmission bool       `json:"allow_late_submission"`
	Active              bool       `gorm:"not null" json:"active"`
	ScoringScheme       string     `json:"scoring_scheme"` // percentage, weighted
	// EmbeddedQuestions is the legacy inline schema: a JSON array of
	// EmbeddedQuestion. Ignored once the test has TestQuestion rows.
	EmbeddedQuestions datatypes.JSON `json:"-"`
	Questions         []TestQuestion `json:"-"`
}

type Question struct {
	gorm.Model
	AuthorID      uint           `gorm:"index" json:"author_id"`
	Text          string         `gorm:"type:text;not null" json:"text"`
	ImageURL      string         `json:"image_url,omitempty"`
	Kind          string         `gorm:"default:text" json:"kind"` // text, image
	Options       datatypes.JSON `gorm:"not null" json:"options"`  // JSON array of strings
	CorrectOption int            `json:"correct_option"`
	Explanation   string         `gorm:"type:text" json:"explanation,omitempty"`
	Marks         *float64       `json:"marks,omitempty"`
	NegativeMarks *float64       `json:"negative_marks,omitempty"`
	Difficulty    string         `json:"difficulty,omitempty"` // easy, medium, hard
}

// TestQuestion orders questions within a test.
type TestQuestion struct {
	ID            uint     `gorm:"primaryKey"`
	TestID        uint     `gorm:"not null;uniqueIndex:idx_test_question"`
	QuestionID    uint     `gorm:"not null;uniqueIndex:idx_test_question"`
	SequenceOrder int      `gorm:"not null"`
	Question      Question `gorm:"constraint:OnDelete:CASCADE"`
}

// EmbeddedQuestion is one entry of Test.EmbeddedQuestions. CorrectOption
// may hold an index or, in older rows, the text of the correct option.
type EmbeddedQuestion struct {
	ID            uint        `json:"id"`
	Text          string      `json:"text"`
	ImageURL      string      `json:"image_url,omitempty"`
	Kind          string      `json:"kind,omitempty"`
	Options       []string    `json:"options"`
	CorrectOption interface{} `json:"correct_option"`
	Explanation   string      `json:"explanation,omitempty"`
	Marks         *float64    `json:"marks,omitempty"`
	NegativeMarks *float64    `json:"negative_marks,omitempty"`
	Difficulty    string      `json:"difficulty,omitempty"`
}
