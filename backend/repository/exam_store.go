package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"examhub/backend/exam"
	"examhub/backend/models"
)

// ExamStore implements exam.Store on top of GORM.
type ExamStore struct {
	db *gorm.DB
}

func NewExamStore(db *gorm.DB) *ExamStore {
	return &ExamStore{db: db}
}

var _ exam.Store = (*ExamStore)(nil)

func (s *ExamStore) FetchTest(ctx context.Context, id uint) (*exam.Test, error) {
	var t models.Test
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, exam.ErrNotFound
		}
		return nil, err
	}
	out := ToExamTest(t)
	return &out, nil
}

// FetchQuestionsForTest prefers the ordered join table and falls back to the
// embedded array. Both come out as exam.Question with an index answer key.
func (s *ExamStore) FetchQuestionsForTest(ctx context.Context, testID uint) ([]exam.Question, error) {
	db := s.db.WithContext(ctx)

	var links []models.TestQuestion
	if err := db.Preload("Question").
		Where("test_id = ?", testID).
		Order("sequence_order ASC, id ASC").
		Find(&links).Error; err != nil {
		return nil, err
	}

	questions := make([]exam.Question, 0, len(links))
	for _, link := range links {
		if link.Question.ID == 0 {
			continue
		}
		questions = append(questions, ToExamQuestion(link.Question))
	}
	if len(questions) > 0 {
		return questions, nil
	}

	var t models.Test
	if err := db.Select("id", "embedded_questions").First(&t, testID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, exam.ErrNotFound
		}
		return nil, err
	}
	return decodeEmbedded(t.EmbeddedQuestions)
}

func decodeEmbedded(raw datatypes.JSON) ([]exam.Question, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var embedded []models.EmbeddedQuestion
	if err := json.Unmarshal(raw, &embedded); err != nil {
		return nil, fmt.Errorf("decode embedded questions: %w", err)
	}

	out := make([]exam.Question, 0, len(embedded))
	for i, eq := range embedded {
		id := eq.ID
		if id == 0 {
			id = uint(i + 1)
		}
		out = append(out, exam.Question{
			ID:            id,
			Text:          eq.Text,
			ImageURL:      eq.ImageURL,
			Kind:          eq.Kind,
			Options:       eq.Options,
			CorrectOption: resolveCorrectOption(eq.Options, eq.CorrectOption),
			Explanation:   eq.Explanation,
			Marks:         eq.Marks,
			NegativeMarks: eq.NegativeMarks,
			Difficulty:    eq.Difficulty,
		})
	}
	return out, nil
}

// resolveCorrectOption turns a stored key into an index, -1 when it cannot.
// A string key must equal exactly one option.
func resolveCorrectOption(options []string, key interface{}) int {
	switch v := key.(type) {
	case float64:
		if v != math.Trunc(v) {
			return -1
		}
		return int(v)
	case string:
		idx := -1
		for i, opt := range options {
			if opt == v {
				if idx >= 0 {
					return -1
				}
				idx = i
			}
		}
		return idx
	}
	return -1
}

func (s *ExamStore) FetchAttempt(ctx context.Context, testID, studentID uint) (*exam.Attempt, error) {
	var a models.Attempt
	err := s.db.WithContext(ctx).
		Where("test_id = ? AND student_id = ?", testID, studentID).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	out := ToExamAttempt(a)
	return &out, nil
}

func (s *ExamStore) FetchAttemptByID(ctx context.Context, id uuid.UUID) (*exam.Attempt, error) {
	var a models.Attempt
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, exam.ErrNotFound
		}
		return nil, err
	}
	out := ToExamAttempt(a)
	return &out, nil
}

func (s *ExamStore) CreateAttempt(ctx context.Context, a *exam.Attempt) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Version == 0 {
		a.Version = 1
	}
	row := fromExamAttempt(*a)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if IsDuplicate(err) {
			return exam.ErrConflict
		}
		return err
	}
	return nil
}

func (s *ExamStore) UpdateAttempt(ctx context.Context, id uuid.UUID, version int, u exam.AttemptUpdate) (*exam.Attempt, error) {
	answers := map[uint]int(u.Answers)
	if answers == nil {
		answers = map[uint]int{}
	}
	updates := map[string]interface{}{
		"answers": datatypes.NewJSONType(answers),
		"version": gorm.Expr("version + 1"),
	}
	if c := u.Complete; c != nil {
		submittedAt := c.SubmittedAt.UTC()
		updates["status"] = string(exam.StatusCompleted)
		updates["submitted_at"] = &submittedAt
		updates["correct_count"] = c.Result.Correct
		updates["wrong_count"] = c.Result.Wrong
		updates["unattempted_count"] = c.Result.Unattempted
		updates["total_questions"] = c.Result.Total
		updates["score"] = c.Result.Score
		updates["scored_marks"] = c.Result.ScoredMarks
		updates["total_marks"] = c.Result.TotalMarks
		updates["scoring_scheme"] = string(c.Result.Scheme)
		updates["time_taken_seconds"] = c.TimeTakenSeconds
		updates["submitted_by"] = string(c.SubmittedBy)
		updates["late"] = c.Late
	}

	res := s.db.WithContext(ctx).Model(&models.Attempt{}).
		Where("id = ? AND version = ? AND status = ?", id, version, string(exam.StatusInProgress)).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}

	current, err := s.FetchAttemptByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		if current.Completed() {
			return nil, exam.ErrAlreadyCompleted
		}
		return nil, exam.ErrConflict
	}
	return current, nil
}

func (s *ExamStore) ListExpiredAttempts(ctx context.Context, now time.Time, limit int) ([]exam.Attempt, error) {
	var rows []models.Attempt
	q := s.db.WithContext(ctx).
		Where("status = ? AND deadline_at <= ?", string(exam.StatusInProgress), now.UTC()).
		Order("deadline_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]exam.Attempt, 0, len(rows))
	for _, r := range rows {
		out = append(out, ToExamAttempt(r))
	}
	return out, nil
}

// IsDuplicate reports a unique-constraint violation from any supported driver.
func IsDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
