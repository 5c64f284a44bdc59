package controllers

import (
	"errors"

	"examhub/backend/config"
	"examhub/backend/exam"
	"examhub/backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AttemptsController struct {
	DB      *gorm.DB
	Cfg     *config.Config
	Tracker *exam.Tracker
	Store   exam.Store
}

func NewAttemptsController(db *gorm.DB, cfg *config.Config, tracker *exam.Tracker, store exam.Store) *AttemptsController {
	return &AttemptsController{DB: db, Cfg: cfg, Tracker: tracker, Store: store}
}

type questionView struct {
	ID       uint          `json:"id"`
	Text     string        `json:"text"`
	ImageURL string        `json:"image_url,omitempty"`
	Kind     string        `json:"kind,omitempty"`
	Options  []exam.Option `json:"options"`
	Selected *int          `json:"selected"`
}

func sessionView(s *exam.Session) fiber.Map {
	a := s.Attempt()
	loaded := s.Test()
	remaining := s.Remaining()

	questions := make([]questionView, 0, len(loaded.Questions))
	for _, q := range loaded.Questions {
		qv := questionView{
			ID:       q.ID,
			Text:     q.Text,
			ImageURL: q.ImageURL,
			Kind:     q.Kind,
			Options:  exam.RenderOptions(q.Options),
		}
		if opt, ok := a.Answers[q.ID]; ok {
			selected := opt
			qv.Selected = &selected
		}
		questions = append(questions, qv)
	}

	return fiber.Map{
		"attempt_id":        a.ID,
		"test_id":           a.TestID,
		"title":             loaded.Test.Title,
		"status":            a.Status,
		"started_at":        a.StartedAt,
		"deadline_at":       a.DeadlineAt,
		"remaining_seconds": int(remaining.Seconds()),
		"remaining":         exam.FormatClock(remaining),
		"answered":          len(a.Answers),
		"total_questions":   len(loaded.Questions),
		"unsaved":           s.Unsaved(),
		"questions":         questions,
	}
}

func resultView(a exam.Attempt) fiber.Map {
	return fiber.Map{
		"attempt_id":         a.ID,
		"test_id":            a.TestID,
		"status":             a.Status,
		"result":             a.Result,
		"submitted_at":       a.SubmittedAt,
		"submitted_by":       a.SubmittedBy,
		"time_taken_seconds": a.TimeTakenSeconds,
		"late":               a.Late,
	}
}

// BeginAttempt godoc
// @Summary Start or resume the caller's attempt at a test
// @Description A finished attempt answers 303 See Other pointing at its result
// @Tags attempts
// @Produce json
// @Param id path int true "Test ID"
// @Success 200 {object} utils.SuccessResponse
// @Success 303 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /tests/{id}/attempt [post]
func (ac *AttemptsController) BeginAttempt(c *fiber.Ctx) error {
	testID, err := parseUintParam(c, "id")
	if err != nil {
		return respondExamError(c, err)
	}

	s, err := ac.Tracker.Begin(c.UserContext(), currentStudent(c), testID)
	if err != nil {
		return respondExamError(c, err)
	}
	// time ran out while the student was away
	if a := s.Attempt(); a.Completed() {
		return respondExamError(c, &exam.CompletedError{AttemptID: a.ID})
	}
	return utils.Success(c, fiber.StatusOK, sessionView(s))
}

// GetAttempt godoc
// @Summary Current state of an in-progress attempt
// @Tags attempts
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} utils.SuccessResponse
// @Success 303 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /attempts/{id} [get]
func (ac *AttemptsController) GetAttempt(c *fiber.Ctx) error {
	s, err := ac.session(c)
	if err != nil {
		return respondExamError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, sessionView(s))
}

type AnswerInput struct {
	QuestionID uint `json:"question_id"`
	Option     *int `json:"option"`
}

// RecordAnswer godoc
// @Summary Select an option for one question
// @Description The answer is saved in the background shortly after
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path string true "Attempt ID"
// @Param answer body AnswerInput true "Answer"
// @Success 200 {object} utils.SuccessResponse
// @Failure 400 {object} utils.ErrorResponse
// @Failure 403 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /attempts/{id}/answers [put]
func (ac *AttemptsController) RecordAnswer(c *fiber.Ctx) error {
	var input AnswerInput
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	if input.QuestionID == 0 || input.Option == nil {
		return utils.ValidationError(c, map[string]string{"answer": "question_id and option are required"})
	}

	s, err := ac.session(c)
	if err != nil {
		return respondExamError(c, err)
	}
	if err := s.RecordAnswer(c.UserContext(), input.QuestionID, *input.Option); err != nil {
		return respondExamError(c, err)
	}

	remaining := s.Remaining()
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"question_id":       input.QuestionID,
		"option":            *input.Option,
		"answered":          len(s.Attempt().Answers),
		"remaining_seconds": int(remaining.Seconds()),
		"remaining":         exam.FormatClock(remaining),
		"unsaved":           s.Unsaved(),
	})
}

// SubmitAttempt godoc
// @Summary Submit the attempt for scoring
// @Description Submitting a finished attempt returns its stored result
// @Tags attempts
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} utils.SuccessResponse
// @Failure 503 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /attempts/{id}/submit [post]
func (ac *AttemptsController) SubmitAttempt(c *fiber.Ctx) error {
	s, err := ac.session(c)
	var completed *exam.CompletedError
	if errors.As(err, &completed) {
		a, ferr := ac.Store.FetchAttemptByID(c.UserContext(), completed.AttemptID)
		if ferr != nil {
			return respondExamError(c, ferr)
		}
		return utils.Success(c, fiber.StatusOK, resultView(*a))
	}
	if err != nil {
		return respondExamError(c, err)
	}

	a, err := s.Finalize(c.UserContext(), exam.TriggerStudent)
	if err != nil {
		return respondExamError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, resultView(a))
}

// LeaveAttempt godoc
// @Summary Leave the test view
// @Description Pending answers are saved and the countdown stops; the attempt stays in progress
// @Tags attempts
// @Param id path string true "Attempt ID"
// @Success 200 {object} utils.SuccessResponse
// @Security ApiKeyAuth
// @Router /attempts/{id}/session [delete]
func (ac *AttemptsController) LeaveAttempt(c *fiber.Ctx) error {
	id, err := parseAttemptID(c)
	if err != nil {
		return respondExamError(c, err)
	}
	s, ok := ac.Tracker.Session(id)
	if !ok || s.StudentID() != currentStudent(c).ID {
		return respondExamError(c, exam.ErrNotFound)
	}
	ac.Tracker.Leave(id)
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "Session closed"})
}

// GetResult godoc
// @Summary Result of a finished attempt with per-question review
// @Tags attempts
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} utils.SuccessResponse
// @Failure 409 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /attempts/{id}/result [get]
func (ac *AttemptsController) GetResult(c *fiber.Ctx) error {
	id, err := parseAttemptID(c)
	if err != nil {
		return respondExamError(c, err)
	}

	a, err := ac.Store.FetchAttemptByID(c.UserContext(), id)
	if err != nil {
		return respondExamError(c, err)
	}
	if a.StudentID != currentStudent(c).ID {
		return respondExamError(c, exam.ErrNotFound)
	}
	if !a.Completed() {
		return utils.Error(c, fiber.StatusConflict, errors.New("attempt is still in progress"))
	}

	view := resultView(*a)
	if loaded, err := ac.Tracker.Loader().Load(c.UserContext(), a.TestID); err == nil {
		review := make([]fiber.Map, 0, len(loaded.Questions))
		for _, q := range loaded.Questions {
			item := fiber.Map{
				"question_id":    q.ID,
				"text":           q.Text,
				"options":        exam.RenderOptions(q.Options),
				"correct_option": q.CorrectOption,
				"explanation":    q.Explanation,
			}
			if opt, ok := a.Answers[q.ID]; ok {
				item["selected"] = opt
				item["correct"] = opt == q.CorrectOption
			}
			review = append(review, item)
		}
		view["title"] = loaded.Test.Title
		view["review"] = review
	} else {
		utils.WithContext(c.UserContext()).WithError(err).Warn("Result review unavailable")
	}
	return utils.Success(c, fiber.StatusOK, view)
}

// session reopens the caller's attempt named by :id.
func (ac *AttemptsController) session(c *fiber.Ctx) (*exam.Session, error) {
	id, err := parseAttemptID(c)
	if err != nil {
		return nil, err
	}
	s, err := ac.Tracker.Resume(c.UserContext(), currentStudent(c), id)
	if err != nil {
		return nil, err
	}
	if a := s.Attempt(); a.Completed() {
		return nil, &exam.CompletedError{AttemptID: a.ID}
	}
	return s, nil
}
