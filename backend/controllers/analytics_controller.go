package controllers

import (
	"examhub/backend/config"
	"examhub/backend/exam"
	"examhub/backend/models"
	"examhub/backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AnalyticsController struct {
	DB      *gorm.DB
	Cfg     *config.Config
	Tests   *TestsController
	Tracker *exam.Tracker
}

func NewAnalyticsController(db *gorm.DB, cfg *config.Config, tests *TestsController, tracker *exam.Tracker) *AnalyticsController {
	return &AnalyticsController{DB: db, Cfg: cfg, Tests: tests, Tracker: tracker}
}

type questionStat struct {
	QuestionID  uint    `json:"question_id"`
	Text        string  `json:"text"`
	Answered    int     `json:"answered"`
	Correct     int     `json:"correct"`
	CorrectRate float64 `json:"correct_rate"`
	// OptionPicks counts selections per option index.
	OptionPicks []int `json:"option_picks"`
}

// GetTestAnalytics godoc
// @Summary Score and per-question statistics for a test
// @Tags teacher
// @Produce json
// @Param id path int true "Test ID"
// @Success 200 {object} utils.SuccessResponse
// @Security ApiKeyAuth
// @Router /teacher/tests/{id}/analytics [get]
func (ac *AnalyticsController) GetTestAnalytics(c *fiber.Ctx) error {
	test, err := ac.Tests.managedTest(c)
	if err != nil {
		return respondExamError(c, err)
	}

	var stats struct {
		Attempts     int64   `json:"attempts"`
		Completed    int64   `json:"completed"`
		InProgress   int64   `json:"in_progress"`
		AvgScore     float64 `json:"avg_score"`
		MaxScore     float64 `json:"max_score"`
		MinScore     float64 `json:"min_score"`
		AvgTimeTaken float64 `json:"avg_time_taken_seconds"`
		Late         int64   `json:"late"`
	}

	completed := ac.DB.Model(&models.Attempt{}).Where("test_id = ? AND status = ?", test.ID, string(exam.StatusCompleted)).
		Session(&gorm.Session{})
	ac.DB.Model(&models.Attempt{}).Where("test_id = ?", test.ID).Count(&stats.Attempts)
	completed.Count(&stats.Completed)
	ac.DB.Model(&models.Attempt{}).
		Where("test_id = ? AND status = ?", test.ID, string(exam.StatusInProgress)).
		Count(&stats.InProgress)
	completed.Where("late = ?", true).Count(&stats.Late)

	var agg struct {
		AvgScore float64
		MaxScore float64
		MinScore float64
		AvgTime  float64
	}
	completed.
		Select("COALESCE(AVG(score), 0) AS avg_score, COALESCE(MAX(score), 0) AS max_score, " +
			"COALESCE(MIN(score), 0) AS min_score, COALESCE(AVG(time_taken_seconds), 0) AS avg_time").
		Scan(&agg)
	stats.AvgScore, stats.MaxScore, stats.MinScore, stats.AvgTimeTaken = agg.AvgScore, agg.MaxScore, agg.MinScore, agg.AvgTime

	var byTrigger []struct {
		SubmittedBy string `json:"submitted_by"`
		Count       int64  `json:"count"`
	}
	completed.
		Select("submitted_by, COUNT(*) AS count").
		Group("submitted_by").
		Scan(&byTrigger)

	var attempts []models.Attempt
	if err := completed.Select("id", "answers").Find(&attempts).Error; err != nil {
		return utils.InternalServerError(c, "Could not query database")
	}

	var questions []questionStat
	if loaded, err := ac.Tracker.Loader().Load(c.UserContext(), test.ID); err == nil {
		questions = questionStats(loaded.Questions, attempts)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"test":           testView(test),
		"stats":          stats,
		"submitted_by":   byTrigger,
		"question_stats": questions,
	})
}

func questionStats(questions []exam.Question, attempts []models.Attempt) []questionStat {
	out := make([]questionStat, len(questions))
	index := make(map[uint]int, len(questions))
	for i, q := range questions {
		out[i] = questionStat{QuestionID: q.ID, Text: q.Text, OptionPicks: make([]int, len(q.Options))}
		index[q.ID] = i
	}

	for _, a := range attempts {
		for qid, opt := range a.Answers.Data() {
			i, ok := index[qid]
			if !ok {
				continue
			}
			out[i].Answered++
			if opt >= 0 && opt < len(out[i].OptionPicks) {
				out[i].OptionPicks[opt]++
			}
			if opt == questions[i].CorrectOption {
				out[i].Correct++
			}
		}
	}
	for i := range out {
		if out[i].Answered > 0 {
			out[i].CorrectRate = float64(out[i].Correct) / float64(out[i].Answered) * 100
		}
	}
	return out
}

// GetPlatformAnalytics godoc
// @Summary Platform-wide counters
// @Tags admin
// @Produce json
// @Success 200 {object} utils.SuccessResponse
// @Security ApiKeyAuth
// @Router /admin/analytics [get]
func (ac *AnalyticsController) GetPlatformAnalytics(c *fiber.Ctx) error {
	var metrics struct {
		TotalUsers        int64   `json:"total_users"`
		Students          int64   `json:"students"`
		Teachers          int64   `json:"teachers"`
		TotalTests        int64   `json:"total_tests"`
		ActiveTests       int64   `json:"active_tests"`
		TotalAttempts     int64   `json:"total_attempts"`
		CompletedAttempts int64   `json:"completed_attempts"`
		AvgScore          float64 `json:"avg_score"`
	}

	ac.DB.Model(&models.User{}).Count(&metrics.TotalUsers)
	ac.DB.Model(&models.User{}).Where("role = ?", models.RoleStudent).Count(&metrics.Students)
	ac.DB.Model(&models.User{}).Where("role = ?", models.RoleTeacher).Count(&metrics.Teachers)
	ac.DB.Model(&models.Test{}).Count(&metrics.TotalTests)
	ac.DB.Model(&models.Test{}).Where("active = ?", true).Count(&metrics.ActiveTests)
	ac.DB.Model(&models.Attempt{}).Count(&metrics.TotalAttempts)
	ac.DB.Model(&models.Attempt{}).Where("status = ?", string(exam.StatusCompleted)).Count(&metrics.CompletedAttempts)
	ac.DB.Model(&models.Attempt{}).
		Where("status = ?", string(exam.StatusCompleted)).
		Select("COALESCE(AVG(score), 0)").
		Scan(&metrics.AvgScore)

	// Самые популярные тесты
	var popularTests []struct {
		ID       uint    `json:"id"`
		Title    string  `json:"title"`
		Attempts int64   `json:"attempts"`
		AvgScore float64 `json:"avg_score"`
	}
	ac.DB.Raw(`
		SELECT
			t.id,
			t.title,
			COUNT(a.id) AS attempts,
			COALESCE(AVG(a.score), 0) AS avg_score
		FROM tests t
		LEFT JOIN attempts a ON a.test_id = t.id AND a.status = ?
		WHERE t.deleted_at IS NULL
		GROUP BY t.id, t.title
		ORDER BY attempts DESC
		LIMIT 5
	`, string(exam.StatusCompleted)).Scan(&popularTests)

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"metrics":       metrics,
		"popular_tests": popularTests,
	})
}
