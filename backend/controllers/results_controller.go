package controllers

import (
	"fmt"
	"time"

	"examhub/backend/config"
	"examhub/backend/models"
	"examhub/backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const resultsSheet = "Sheet1"

type ResultsController struct {
	DB    *gorm.DB
	Cfg   *config.Config
	Tests *TestsController
}

func NewResultsController(db *gorm.DB, cfg *config.Config, tests *TestsController) *ResultsController {
	return &ResultsController{DB: db, Cfg: cfg, Tests: tests}
}

type resultRow struct {
	AttemptID        string     `json:"attempt_id"`
	StudentID        uint       `json:"student_id"`
	Username         string     `json:"username"`
	Status           string     `json:"status"`
	Score            float64    `json:"score"`
	Correct          int        `json:"correct"`
	Wrong            int        `json:"wrong"`
	Unattempted      int        `json:"unattempted"`
	ScoredMarks      float64    `json:"scored_marks"`
	TotalMarks       float64    `json:"total_marks"`
	TimeTakenSeconds int        `json:"time_taken_seconds"`
	SubmittedBy      string     `json:"submitted_by,omitempty"`
	Late             bool       `json:"late"`
	StartedAt        time.Time  `json:"started_at"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`
}

func (rc *ResultsController) rows(test models.Test) ([]resultRow, error) {
	var attempts []models.Attempt
	if err := rc.DB.Where("test_id = ?", test.ID).
		Order("score DESC, submitted_at ASC").
		Find(&attempts).Error; err != nil {
		return nil, err
	}

	studentIDs := make([]uint, 0, len(attempts))
	for _, a := range attempts {
		studentIDs = append(studentIDs, a.StudentID)
	}
	names := map[uint]string{}
	if len(studentIDs) > 0 {
		var users []models.User
		if err := rc.DB.Where("id IN ?", studentIDs).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			names[u.ID] = u.Username
		}
	}

	rows := make([]resultRow, 0, len(attempts))
	for _, a := range attempts {
		rows = append(rows, resultRow{
			AttemptID:        a.ID.String(),
			StudentID:        a.StudentID,
			Username:         names[a.StudentID],
			Status:           a.Status,
			Score:            a.Score,
			Correct:          a.CorrectCount,
			Wrong:            a.WrongCount,
			Unattempted:      a.UnattemptedCount,
			ScoredMarks:      a.ScoredMarks,
			TotalMarks:       a.TotalMarks,
			TimeTakenSeconds: a.TimeTakenSeconds,
			SubmittedBy:      a.SubmittedBy,
			Late:             a.Late,
			StartedAt:        a.StartedAt,
			SubmittedAt:      a.SubmittedAt,
		})
	}
	return rows, nil
}

// ListResults godoc
// @Summary Attempts at a test, best score first
// @Tags teacher
// @Produce json
// @Param id path int true "Test ID"
// @Success 200 {object} utils.SuccessResponse
// @Security ApiKeyAuth
// @Router /teacher/tests/{id}/results [get]
func (rc *ResultsController) ListResults(c *fiber.Ctx) error {
	test, err := rc.Tests.managedTest(c)
	if err != nil {
		return respondExamError(c, err)
	}

	rows, err := rc.rows(test)
	if err != nil {
		return utils.InternalServerError(c, "Could not query database")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"test":    testView(test),
		"results": rows,
	})
}

// ExportResults godoc
// @Summary Download a test's attempts as an Excel workbook
// @Tags teacher
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path int true "Test ID"
// @Success 200 {file} file
// @Security ApiKeyAuth
// @Router /teacher/tests/{id}/results/export [get]
func (rc *ResultsController) ExportResults(c *fiber.Ctx) error {
	test, err := rc.Tests.managedTest(c)
	if err != nil {
		return respondExamError(c, err)
	}

	rows, err := rc.rows(test)
	if err != nil {
		return utils.InternalServerError(c, "Could not query database")
	}

	f := excelize.NewFile()
	defer f.Close()

	header := []interface{}{
		"Attempt", "Student", "Status", "Score %", "Correct", "Wrong", "Unattempted",
		"Marks", "Total marks", "Time taken (s)", "Submitted by", "Late", "Started at", "Submitted at",
	}
	if err := f.SetSheetRow(resultsSheet, "A1", &header); err != nil {
		return utils.InternalServerError(c, "Could not build workbook")
	}
	for i, r := range rows {
		submitted := ""
		if r.SubmittedAt != nil {
			submitted = r.SubmittedAt.UTC().Format(time.RFC3339)
		}
		line := []interface{}{
			r.AttemptID, r.Username, r.Status, r.Score, r.Correct, r.Wrong, r.Unattempted,
			r.ScoredMarks, r.TotalMarks, r.TimeTakenSeconds, r.SubmittedBy, r.Late,
			r.StartedAt.UTC().Format(time.RFC3339), submitted,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return utils.InternalServerError(c, "Could not build workbook")
		}
		if err := f.SetSheetRow(resultsSheet, cell, &line); err != nil {
			return utils.InternalServerError(c, "Could not build workbook")
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return utils.InternalServerError(c, "Could not write workbook")
	}

	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="test-%d-results.xlsx"`, test.ID))
	return c.Send(buf.Bytes())
}
