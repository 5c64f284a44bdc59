package controllers

import (
	"errors"
	"strings"
	"time"

	"examhub/backend/config"
	"examhub/backend/exam"
	"examhub/backend/middleware"
	"examhub/backend/models"
	"examhub/backend/repository"
	"examhub/backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type TestsController struct {
	DB  *gorm.DB
	Cfg *config.Config
}

func NewTestsController(db *gorm.DB, cfg *config.Config) *TestsController {
	return &TestsController{DB: db, Cfg: cfg}
}

type TestInput struct {
	Title               *string    `json:"title"`
	Subject             *string    `json:"subject"`
	DurationMinutes     *int       `json:"duration_minutes"`
	TimeLimitMinutes    *int       `json:"time_limit_minutes"`
	StartsAt            *time.Time `json:"starts_at"`
	EndsAt              *time.Time `json:"ends_at"`
	AllowLateSubmission *bool      `json:"allow_late_submission"`
	Active              *bool      `json:"active"`
	ScoringScheme       *string    `json:"scoring_scheme"`
}

// apply copies the set fields onto test and reports validation problems.
func (in TestInput) apply(test *models.Test) map[string]string {
	problems := map[string]string{}
	if in.Title != nil {
		test.Title = strings.TrimSpace(*in.Title)
	}
	if in.Subject != nil {
		test.Subject = *in.Subject
	}
	if in.DurationMinutes != nil {
		if *in.DurationMinutes < 0 {
			problems["duration_minutes"] = "must not be negative"
		}
		test.DurationMinutes = *in.DurationMinutes
	}
	if in.TimeLimitMinutes != nil {
		if *in.TimeLimitMinutes < 0 {
			problems["time_limit_minutes"] = "must not be negative"
		}
		test.TimeLimitMinutes = in.TimeLimitMinutes
	}
	if in.StartsAt != nil {
		test.StartsAt = in.StartsAt
	}
	if in.EndsAt != nil {
		test.EndsAt = in.EndsAt
	}
	if in.AllowLateSubmission != nil {
		test.AllowLateSubmission = *in.AllowLateSubmission
	}
	if in.Active != nil {
		test.Active = *in.Active
	}
	if in.ScoringScheme != nil {
		if *in.ScoringScheme != "" {
			if _, err := exam.ParseScheme(*in.ScoringScheme); err != nil {
				problems["scoring_scheme"] = "must be percentage or weighted"
			}
		}
		test.ScoringScheme = *in.ScoringScheme
	}

	if test.Title == "" {
		problems["title"] = "is required"
	}
	if test.StartsAt != nil && test.EndsAt != nil && !test.EndsAt.After(*test.StartsAt) {
		problems["ends_at"] = "must be after starts_at"
	}
	return problems
}

// locksAttempts reports whether the input changes how running attempts are
// timed or scored.
func (in TestInput) locksAttempts() bool {
	return in.DurationMinutes != nil || in.TimeLimitMinutes != nil ||
		in.EndsAt != nil || in.AllowLateSubmission != nil || in.ScoringScheme != nil
}

func testView(t models.Test) fiber.Map {
	return fiber.Map{
		"id":                    t.ID,
		"title":                 t.Title,
		"subject":               t.Subject,
		"author_id":             t.AuthorID,
		"duration_minutes":      t.DurationMinutes,
		"time_limit_minutes":    t.TimeLimitMinutes,
		"budget_seconds":        int(exam.BudgetFor(repository.ToExamTest(t)).Seconds()),
		"starts_at":             t.StartsAt,
		"ends_at":               t.EndsAt,
		"allow_late_submission": t.AllowLateSubmission,
		"active":                t.Active,
		"scoring_scheme":        t.ScoringScheme,
	}
}

// GetAvailableTests godoc
// @Summary List active tests
// @Description Active tests with the caller's attempt status for each
// @Tags tests
// @Produce json
// @Success 200 {object} utils.SuccessResponse
// @Security ApiKeyAuth
// @Router /tests [get]
func (tc *TestsController) GetAvailableTests(c *fiber.Ctx) error {
	identity, _ := middleware.CurrentIdentity(c)

	query := tc.DB.Model(&models.Test{}).Where("active = ?", true)
	if subject := c.Query("subject"); subject != "" {
		query = query.Where("subject = ?", subject)
	}

	var tests []models.Test
	if err := query.Order("id ASC").Find(&tests).Error; err != nil {
		return utils.InternalServerError(c, "Could not query database")
	}

	ids := make([]uint, 0, len(tests))
	for _, t := range tests {
		ids = append(ids, t.ID)
	}
	var attempts []models.Attempt
	if len(ids) > 0 {
		if err := tc.DB.Where("student_id = ? AND test_id IN ?", identity.UserID, ids).Find(&attempts).Error; err != nil {
			return utils.InternalServerError(c, "Could not query database")
		}
	}
	byTest := make(map[uint]models.Attempt, len(attempts))
	for _, a := range attempts {
		byTest[a.TestID] = a
	}

	result := make([]fiber.Map, 0, len(tests))
	for _, t := range tests {
		view := testView(t)
		view["attempt_status"] = string(exam.StatusNotStarted)
		if a, ok := byTest[t.ID]; ok {
			view["attempt_status"] = a.Status
			view["attempt_id"] = a.ID
			if a.Status == string(exam.StatusCompleted) {
				view["score"] = a.Score
			}
		}
		result = append(result, view)
	}
	return utils.Success(c, fiber.StatusOK, result)
}

// CreateTest godoc
// @Summary Create a test
// @Tags teacher
// @Accept json
// @Produce json
// @Param test body TestInput true "Test"
// @Success 201 {object} utils.SuccessResponse
// @Failure 422 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /teacher/tests [post]
func (tc *TestsController) CreateTest(c *fiber.Ctx) error {
	identity, _ := middleware.CurrentIdentity(c)

	var input TestInput
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}

	test := models.Test{AuthorID: identity.UserID}
	if problems := input.apply(&test); len(problems) > 0 {
		return utils.ValidationError(c, problems)
	}

	if err := tc.DB.Create(&test).Error; err != nil {
		return utils.InternalServerError(c, "Could not create test")
	}
	utils.WithContext(c.UserContext()).WithField("test_id", test.ID).Info("Test created")

	return utils.Created(c, testView(test))
}

// UpdateTest godoc
// @Summary Update a test
// @Description Only the fields present in the body change
// @Tags teacher
// @Accept json
// @Produce json
// @Param id path int true "Test ID"
// @Param test body TestInput true "Fields to change"
// @Success 200 {object} utils.SuccessResponse
// @Security ApiKeyAuth
// @Router /teacher/tests/{id} [put]
func (tc *TestsController) UpdateTest(c *fiber.Ctx) error {
	test, err := tc.managedTest(c)
	if err != nil {
		return respondExamError(c, err)
	}

	var input TestInput
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	if input.locksAttempts() {
		if err := tc.ensureNoRunningAttempts(test.ID); err != nil {
			return respondExamError(c, err)
		}
	}
	if problems := input.apply(&test); len(problems) > 0 {
		return utils.ValidationError(c, problems)
	}

	if err := tc.DB.Save(&test).Error; err != nil {
		return utils.InternalServerError(c, "Could not update test")
	}
	return utils.Success(c, fiber.StatusOK, testView(test))
}

type QuestionInput struct {
	Text          string   `json:"text"`
	ImageURL      string   `json:"image_url"`
	Kind          string   `json:"kind"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_option"`
	Explanation   string   `json:"explanation"`
	Marks         *float64 `json:"marks"`
	NegativeMarks *float64 `json:"negative_marks"`
	Difficulty    string   `json:"difficulty"`
	SequenceOrder int      `json:"sequence_order"`
}

// AddQuestion godoc
// @Summary Add a question to a test
// @Description Options prefixed with [IMG] are image URLs; correct_option is a zero-based index
// @Tags teacher
// @Accept json
// @Produce json
// @Param id path int true "Test ID"
// @Param question body QuestionInput true "Question"
// @Success 201 {object} utils.SuccessResponse
// @Failure 422 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /teacher/tests/{id}/questions [post]
func (tc *TestsController) AddQuestion(c *fiber.Ctx) error {
	test, err := tc.managedTest(c)
	if err != nil {
		return respondExamError(c, err)
	}

	var input QuestionInput
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	if err := tc.ensureNoRunningAttempts(test.ID); err != nil {
		return respondExamError(c, err)
	}
	if input.Kind == "" {
		input.Kind = "text"
	}

	candidate := exam.Question{
		Text:          input.Text,
		Options:       input.Options,
		CorrectOption: input.CorrectOption,
	}
	if err := exam.ValidateQuestion(candidate); err != nil {
		return utils.ValidationError(c, map[string]string{"question": err.Error()})
	}
	if (input.Marks != nil && *input.Marks < 0) || (input.NegativeMarks != nil && *input.NegativeMarks < 0) {
		return utils.ValidationError(c, map[string]string{"marks": "must not be negative"})
	}

	options, err := repository.EncodeOptions(input.Options)
	if err != nil {
		return utils.InternalServerError(c, "Could not encode options")
	}

	identity, _ := middleware.CurrentIdentity(c)
	question := models.Question{
		AuthorID:      identity.UserID,
		Text:          input.Text,
		ImageURL:      input.ImageURL,
		Kind:          input.Kind,
		Options:       options,
		CorrectOption: input.CorrectOption,
		Explanation:   input.Explanation,
		Marks:         input.Marks,
		NegativeMarks: input.NegativeMarks,
		Difficulty:    input.Difficulty,
	}

	var link models.TestQuestion
	err = tc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&question).Error; err != nil {
			return err
		}
		order := input.SequenceOrder
		if order <= 0 {
			var count int64
			if err := tx.Model(&models.TestQuestion{}).Where("test_id = ?", test.ID).Count(&count).Error; err != nil {
				return err
			}
			order = int(count) + 1
		}
		link = models.TestQuestion{TestID: test.ID, QuestionID: question.ID, SequenceOrder: order}
		return tx.Create(&link).Error
	})
	if err != nil {
		return utils.InternalServerError(c, "Could not create question")
	}

	return utils.Created(c, fiber.Map{
		"id":             question.ID,
		"test_id":        test.ID,
		"sequence_order": link.SequenceOrder,
		"text":           question.Text,
		"options":        exam.RenderOptions(input.Options),
		"correct_option": question.CorrectOption,
	})
}

// ensureNoRunningAttempts returns exam.ErrTestInUse while any attempt at the
// test is still in progress.
func (tc *TestsController) ensureNoRunningAttempts(testID uint) error {
	var running int64
	if err := tc.DB.Model(&models.Attempt{}).
		Where("test_id = ? AND status = ?", testID, string(exam.StatusInProgress)).
		Count(&running).Error; err != nil {
		return err
	}
	if running > 0 {
		return exam.ErrTestInUse
	}
	return nil
}

// managedTest loads the :id test and checks the caller may manage it.
func (tc *TestsController) managedTest(c *fiber.Ctx) (models.Test, error) {
	testID, err := parseUintParam(c, "id")
	if err != nil {
		return models.Test{}, err
	}

	var test models.Test
	if err := tc.DB.First(&test, testID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Test{}, exam.ErrNotFound
		}
		return models.Test{}, err
	}
	if !canManage(c, test) {
		return models.Test{}, fiber.NewError(fiber.StatusForbidden, "You don't have permission to manage this test")
	}
	return test, nil
}
