package repository

import (
	"encoding/json"

	"gorm.io/datatypes"

	"examhub/backend/exam"
	"examhub/backend/models"
)

func ToExamTest(t models.Test) exam.Test {
	scheme, err := exam.ParseScheme(t.ScoringScheme)
	if err != nil {
		scheme = ""
	}
	return exam.Test{
		ID:                  t.ID,
		Title:               t.Title,
		Subject:             t.Subject,
		DurationMinutes:     t.DurationMinutes,
		TimeLimitMinutes:    t.TimeLimitMinutes,
		StartsAt:            t.StartsAt,
		EndsAt:              t.EndsAt,
		AllowLateSubmission: t.AllowLateSubmission,
		Active:              t.Active,
		Scheme:              scheme,
	}
}

func ToExamQuestion(q models.Question) exam.Question {
	var options []string
	if len(q.Options) > 0 {
		if err := json.Unmarshal(q.Options, &options); err != nil {
			options = nil
		}
	}
	return exam.Question{
		ID:            q.ID,
		Text:          q.Text,
		ImageURL:      q.ImageURL,
		Kind:          q.Kind,
		Options:       options,
		CorrectOption: q.CorrectOption,
		Explanation:   q.Explanation,
		Marks:         q.Marks,
		NegativeMarks: q.NegativeMarks,
		Difficulty:    q.Difficulty,
	}
}

// EncodeOptions is the column form of a question's options.
func EncodeOptions(options []string) (datatypes.JSON, error) {
	b, err := json.Marshal(options)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func ToExamAttempt(a models.Attempt) exam.Attempt {
	answers := exam.Answers(a.Answers.Data())
	if answers == nil {
		answers = exam.Answers{}
	}
	return exam.Attempt{
		ID:             a.ID,
		TestID:         a.TestID,
		StudentID:      a.StudentID,
		Status:         exam.Status(a.Status),
		StartedAt:      a.StartedAt,
		DeadlineAt:     a.DeadlineAt,
		SubmittedAt:    a.SubmittedAt,
		Answers:        answers,
		TotalQuestions: a.TotalQuestions,
		Result: exam.Result{
			Scheme:      exam.Scheme(a.ScoringScheme),
			Score:       a.Score,
			Correct:     a.CorrectCount,
			Wrong:       a.WrongCount,
			Unattempted: a.UnattemptedCount,
			Total:       a.TotalQuestions,
			ScoredMarks: a.ScoredMarks,
			TotalMarks:  a.TotalMarks,
		},
		TimeTakenSeconds: a.TimeTakenSeconds,
		SubmittedBy:      exam.Trigger(a.SubmittedBy),
		Late:             a.Late,
		Version:          a.Version,
	}
}

func fromExamAttempt(a exam.Attempt) models.Attempt {
	return models.Attempt{
		ID:             a.ID,
		TestID:         a.TestID,
		StudentID:      a.StudentID,
		Status:         string(a.Status),
		StartedAt:      a.StartedAt.UTC(),
		DeadlineAt:     a.DeadlineAt.UTC(),
		Answers:        datatypes.NewJSONType(map[uint]int(a.Answers.Clone())),
		TotalQuestions: a.TotalQuestions,
		ScoringScheme:  string(a.Result.Scheme),
		Version:        a.Version,
	}
}
