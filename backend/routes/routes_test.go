package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"examhub/backend/config"
	"examhub/backend/exam"
	"examhub/backend/models"
	"examhub/backend/repository"
	"examhub/backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type testEnv struct {
	app *fiber.App
	db  *gorm.DB
	cfg *config.Config
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{JWTSecret: "testsecret", DefaultScoringScheme: "percentage"}

	db, err := utils.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, utils.Migrate(db))

	store := repository.NewExamStore(db)
	tracker := exam.NewTracker(store, exam.WithAutosave(exam.AutosaveConfig{
		Debounce: 10 * time.Millisecond,
		MaxDelay: 50 * time.Millisecond,
		Retries:  2,
		Backoff:  time.Millisecond,
	}))
	t.Cleanup(tracker.Shutdown)

	app := fiber.New()
	SetupRoutes(app, db, cfg, tracker, store)
	return &testEnv{app: app, db: db, cfg: cfg}
}

func (e *testEnv) userToken(t *testing.T, username, role string) (models.User, string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	user := models.User{Username: username, Email: username + "@example.com", PasswordHash: string(hash), Role: role}
	require.NoError(t, e.db.Create(&user).Error)
	token, err := utils.GenerateJWTToken(user.ID, role, e.cfg)
	require.NoError(t, err)
	return user, "Bearer " + token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func data(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	d, ok := body["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %v", body)
	return d
}

// createTestWithQuestions builds a test with four two-option questions whose
// correct option is always 1.
func (e *testEnv) createTestWithQuestions(t *testing.T, token string, extra map[string]interface{}) uint {
	t.Helper()
	body := map[string]interface{}{"title": "Mechanics", "subject": "physics", "duration_minutes": 20, "active": true}
	for k, v := range extra {
		body[k] = v
	}
	resp, out := e.do(t, "POST", "/api/teacher/tests", token, body)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, out)
	testID := uint(data(t, out)["id"].(float64))

	for i := 0; i < 4; i++ {
		resp, out = e.do(t, "POST", fmt.Sprintf("/api/teacher/tests/%d/questions", testID), token, map[string]interface{}{
			"text":           fmt.Sprintf("question %d", i+1),
			"options":        []string{"wrong", "[IMG] https://cdn.example.com/right.png"},
			"correct_option": 1,
		})
		require.Equal(t, fiber.StatusCreated, resp.StatusCode, out)
	}
	return testID
}

func TestRegisterAndLogin(t *testing.T) {
	e := setup(t)

	resp, out := e.do(t, "POST", "/api/auth/register", "", map[string]interface{}{
		"username": "student1", "email": "student1@example.com", "password": "password123",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	user := data(t, out)["user"].(map[string]interface{})
	assert.Equal(t, "student", user["role"])

	resp, _ = e.do(t, "POST", "/api/auth/register", "", map[string]interface{}{
		"username": "student1", "email": "other@example.com", "password": "password123",
	})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, out = e.do(t, "POST", "/api/auth/login", "", map[string]interface{}{
		"username": "student1", "password": "password123",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	token := data(t, out)["token"].(string)

	resp, out = e.do(t, "GET", "/api/user/profile", "Bearer "+token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "student1", data(t, out)["username"])

	resp, _ = e.do(t, "POST", "/api/auth/login", "", map[string]interface{}{
		"username": "student1", "password": "nope",
	})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRoleGuards(t *testing.T) {
	e := setup(t)
	_, studentToken := e.userToken(t, "stud", models.RoleStudent)
	student, _ := e.userToken(t, "promoted", models.RoleStudent)
	_, adminToken := e.userToken(t, "root", models.RoleAdmin)

	resp, _ := e.do(t, "GET", "/api/tests", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = e.do(t, "POST", "/api/teacher/tests", studentToken, map[string]interface{}{"title": "x"})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = e.do(t, "GET", "/api/admin/users", studentToken, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, out := e.do(t, "PUT", fmt.Sprintf("/api/admin/users/%d/role", student.ID), adminToken, map[string]interface{}{"role": "teacher"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "teacher", data(t, out)["role"])

	resp, _ = e.do(t, "PUT", fmt.Sprintf("/api/admin/users/%d/role", student.ID), adminToken, map[string]interface{}{"role": "owner"})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	resp, out = e.do(t, "GET", "/api/admin/users?role=teacher", adminToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, data(t, out)["total"])
}

func TestTakeTestFlow(t *testing.T) {
	e := setup(t)
	_, teacherToken := e.userToken(t, "teach", models.RoleTeacher)
	_, studentToken := e.userToken(t, "stud", models.RoleStudent)
	testID := e.createTestWithQuestions(t, teacherToken, nil)

	resp, out := e.do(t, "GET", "/api/tests", studentToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	listed := out["data"].([]interface{})
	require.Len(t, listed, 1)
	assert.Equal(t, "not_started", listed[0].(map[string]interface{})["attempt_status"])

	resp, out = e.do(t, "POST", fmt.Sprintf("/api/tests/%d/attempt", testID), studentToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, out)
	view := data(t, out)
	attemptID := view["attempt_id"].(string)
	assert.Equal(t, "00:20:00", view["remaining"])
	questions := view["questions"].([]interface{})
	require.Len(t, questions, 4)
	firstOptions := questions[0].(map[string]interface{})["options"].([]interface{})
	assert.Equal(t, "https://cdn.example.com/right.png", firstOptions[1].(map[string]interface{})["image_url"])

	for i := 0; i < 3; i++ {
		qid := questions[i].(map[string]interface{})["id"]
		resp, out = e.do(t, "PUT", "/api/attempts/"+attemptID+"/answers", studentToken, map[string]interface{}{
			"question_id": qid, "option": 1,
		})
		require.Equal(t, fiber.StatusOK, resp.StatusCode, out)
	}

	resp, _ = e.do(t, "PUT", "/api/attempts/"+attemptID+"/answers", studentToken, map[string]interface{}{
		"question_id": questions[3].(map[string]interface{})["id"], "option": 5,
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, out = e.do(t, "GET", "/api/attempts/"+attemptID, studentToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, data(t, out)["answered"])

	resp, out = e.do(t, "POST", "/api/attempts/"+attemptID+"/submit", studentToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, out)
	result := data(t, out)["result"].(map[string]interface{})
	assert.InDelta(t, 75.0, result["score"], 1e-9)
	assert.EqualValues(t, 3, result["correct"])
	assert.EqualValues(t, 1, result["unattempted"])

	// submitting again returns the stored result
	resp, out = e.do(t, "POST", "/api/attempts/"+attemptID+"/submit", studentToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "student", data(t, out)["submitted_by"])

	resp, _ = e.do(t, "POST", fmt.Sprintf("/api/tests/%d/attempt", testID), studentToken, nil)
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/api/attempts/"+attemptID+"/result", resp.Header.Get("Location"))

	resp, _ = e.do(t, "PUT", "/api/attempts/"+attemptID+"/answers", studentToken, map[string]interface{}{
		"question_id": questions[3].(map[string]interface{})["id"], "option": 1,
	})
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)

	resp, out = e.do(t, "GET", "/api/attempts/"+attemptID+"/result", studentToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	review := data(t, out)["review"].([]interface{})
	require.Len(t, review, 4)
	assert.Equal(t, true, review[0].(map[string]interface{})["correct"])

	_, otherToken := e.userToken(t, "other", models.RoleStudent)
	resp, _ = e.do(t, "GET", "/api/attempts/"+attemptID+"/result", otherToken, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestLeaveAndResume(t *testing.T) {
	e := setup(t)
	_, teacherToken := e.userToken(t, "teach", models.RoleTeacher)
	_, studentToken := e.userToken(t, "stud", models.RoleStudent)
	testID := e.createTestWithQuestions(t, teacherToken, nil)

	_, out := e.do(t, "POST", fmt.Sprintf("/api/tests/%d/attempt", testID), studentToken, nil)
	view := data(t, out)
	attemptID := view["attempt_id"].(string)
	qid := view["questions"].([]interface{})[0].(map[string]interface{})["id"]

	resp, _ := e.do(t, "PUT", "/api/attempts/"+attemptID+"/answers", studentToken, map[string]interface{}{"question_id": qid, "option": 0})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = e.do(t, "DELETE", "/api/attempts/"+attemptID+"/session", studentToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, out = e.do(t, "POST", fmt.Sprintf("/api/tests/%d/attempt", testID), studentToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resumed := data(t, out)
	assert.Equal(t, attemptID, resumed["attempt_id"])
	assert.EqualValues(t, 1, resumed["answered"])
	assert.LessOrEqual(t, resumed["remaining_seconds"].(float64), 20*60.0)
}

func TestEmptyTestIsBlocking(t *testing.T) {
	e := setup(t)
	_, teacherToken := e.userToken(t, "teach", models.RoleTeacher)
	_, studentToken := e.userToken(t, "stud", models.RoleStudent)

	resp, out := e.do(t, "POST", "/api/teacher/tests", teacherToken, map[string]interface{}{"title": "Empty", "active": true})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	testID := uint(data(t, out)["id"].(float64))

	resp, out = e.do(t, "POST", fmt.Sprintf("/api/tests/%d/attempt", testID), studentToken, nil)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	details := out["details"].(map[string]interface{})
	assert.Equal(t, true, details["retry"])

	resp, _ = e.do(t, "POST", "/api/tests/9999/attempt", studentToken, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestAddQuestionValidation(t *testing.T) {
	e := setup(t)
	_, teacherToken := e.userToken(t, "teach", models.RoleTeacher)
	_, otherTeacher := e.userToken(t, "teach2", models.RoleTeacher)

	resp, out := e.do(t, "POST", "/api/teacher/tests", teacherToken, map[string]interface{}{"title": "Quiz"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	testID := uint(data(t, out)["id"].(float64))
	path := fmt.Sprintf("/api/teacher/tests/%d/questions", testID)

	resp, _ = e.do(t, "POST", path, teacherToken, map[string]interface{}{
		"text": "q", "options": []string{"a", "b"}, "correct_option": 2,
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = e.do(t, "POST", path, teacherToken, map[string]interface{}{
		"text": "q", "options": []string{"a", "[IMG]"}, "correct_option": 0,
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = e.do(t, "POST", path, otherTeacher, map[string]interface{}{
		"text": "q", "options": []string{"a", "b"}, "correct_option": 0,
	})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = e.do(t, "PUT", fmt.Sprintf("/api/teacher/tests/%d", testID), teacherToken, map[string]interface{}{
		"scoring_scheme": "curve",
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	resp, out = e.do(t, "PUT", fmt.Sprintf("/api/teacher/tests/%d", testID), teacherToken, map[string]interface{}{
		"scoring_scheme": "weighted", "active": true,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "weighted", data(t, out)["scoring_scheme"])
	assert.Equal(t, "Quiz", data(t, out)["title"])
}

func TestResultsExport(t *testing.T) {
	e := setup(t)
	_, teacherToken := e.userToken(t, "teach", models.RoleTeacher)
	_, studentToken := e.userToken(t, "stud", models.RoleStudent)
	testID := e.createTestWithQuestions(t, teacherToken, map[string]interface{}{"scoring_scheme": "weighted"})

	_, out := e.do(t, "POST", fmt.Sprintf("/api/tests/%d/attempt", testID), studentToken, nil)
	view := data(t, out)
	attemptID := view["attempt_id"].(string)
	questions := view["questions"].([]interface{})
	for i, opt := range []int{1, 1, 0} {
		qid := questions[i].(map[string]interface{})["id"]
		resp, _ := e.do(t, "PUT", "/api/attempts/"+attemptID+"/answers", studentToken, map[string]interface{}{"question_id": qid, "option": opt})
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
	resp, out := e.do(t, "POST", "/api/attempts/"+attemptID+"/submit", studentToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.InDelta(t, 43.75, data(t, out)["result"].(map[string]interface{})["score"], 1e-9)

	resp, out = e.do(t, "GET", fmt.Sprintf("/api/teacher/tests/%d/results", testID), teacherToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	results := data(t, out)["results"].([]interface{})
	require.Len(t, results, 1)
	assert.Equal(t, "stud", results[0].(map[string]interface{})["username"])

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/teacher/tests/%d/results/export", testID), nil)
	req.Header.Set("Authorization", teacherToken)
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "spreadsheetml")

	book, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows("Sheet1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Attempt", rows[0][0])
	assert.Equal(t, attemptID, rows[1][0])
	assert.Equal(t, "stud", rows[1][1])
}

func TestTestAnalytics(t *testing.T) {
	e := setup(t)
	_, teacherToken := e.userToken(t, "teach", models.RoleTeacher)
	_, adminToken := e.userToken(t, "root", models.RoleAdmin)
	testID := e.createTestWithQuestions(t, teacherToken, nil)

	for n, picks := range [][]int{{1, 1, 0}, {1}} {
		_, token := e.userToken(t, fmt.Sprintf("stud%d", n), models.RoleStudent)
		_, out := e.do(t, "POST", fmt.Sprintf("/api/tests/%d/attempt", testID), token, nil)
		view := data(t, out)
		attemptID := view["attempt_id"].(string)
		questions := view["questions"].([]interface{})
		for i, opt := range picks {
			qid := questions[i].(map[string]interface{})["id"]
			resp, _ := e.do(t, "PUT", "/api/attempts/"+attemptID+"/answers", token, map[string]interface{}{"question_id": qid, "option": opt})
			require.Equal(t, fiber.StatusOK, resp.StatusCode)
		}
		resp, _ := e.do(t, "POST", "/api/attempts/"+attemptID+"/submit", token, nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, out := e.do(t, "GET", fmt.Sprintf("/api/teacher/tests/%d/analytics", testID), teacherToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, out)
	body := data(t, out)

	stats := body["stats"].(map[string]interface{})
	assert.EqualValues(t, 2, stats["completed"])
	assert.EqualValues(t, 0, stats["in_progress"])
	assert.InDelta(t, 37.5, stats["avg_score"], 1e-9)
	assert.InDelta(t, 50.0, stats["max_score"], 1e-9)
	assert.InDelta(t, 25.0, stats["min_score"], 1e-9)

	qs := body["question_stats"].([]interface{})
	require.Len(t, qs, 4)
	first := qs[0].(map[string]interface{})
	assert.EqualValues(t, 2, first["answered"])
	assert.InDelta(t, 100.0, first["correct_rate"], 1e-9)
	third := qs[2].(map[string]interface{})
	assert.EqualValues(t, 1, third["answered"])
	assert.EqualValues(t, 0, third["correct"])
	assert.Equal(t, []interface{}{1.0, 0.0}, third["option_picks"])
	assert.EqualValues(t, 0, qs[3].(map[string]interface{})["answered"])

	_, otherTeacher := e.userToken(t, "teach2", models.RoleTeacher)
	resp, _ = e.do(t, "GET", fmt.Sprintf("/api/teacher/tests/%d/analytics", testID), otherTeacher, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, out = e.do(t, "GET", "/api/admin/analytics", adminToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	metrics := data(t, out)["metrics"].(map[string]interface{})
	assert.EqualValues(t, 2, metrics["completed_attempts"])
	assert.EqualValues(t, 1, metrics["active_tests"])
}

func TestTestEditsBlockedWhileAttemptsRun(t *testing.T) {
	e := setup(t)
	_, teacherToken := e.userToken(t, "teach", models.RoleTeacher)
	_, studentToken := e.userToken(t, "stud", models.RoleStudent)
	testID := e.createTestWithQuestions(t, teacherToken, nil)
	testPath := fmt.Sprintf("/api/teacher/tests/%d", testID)
	question := map[string]interface{}{"text": "extra", "options": []string{"a", "b"}, "correct_option": 0}

	_, out := e.do(t, "POST", fmt.Sprintf("/api/tests/%d/attempt", testID), studentToken, nil)
	attemptID := data(t, out)["attempt_id"].(string)

	resp, _ := e.do(t, "PUT", testPath, teacherToken, map[string]interface{}{"duration_minutes": 60})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	resp, _ = e.do(t, "PUT", testPath, teacherToken, map[string]interface{}{"scoring_scheme": "weighted"})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	resp, _ = e.do(t, "POST", testPath+"/questions", teacherToken, question)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, out = e.do(t, "PUT", testPath, teacherToken, map[string]interface{}{"title": "Mechanics II"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 20, data(t, out)["duration_minutes"])

	resp, out = e.do(t, "POST", "/api/attempts/"+attemptID+"/submit", studentToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	result := data(t, out)["result"].(map[string]interface{})
	assert.EqualValues(t, 4, result["total"])

	resp, _ = e.do(t, "PUT", testPath, teacherToken, map[string]interface{}{"duration_minutes": 60})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, _ = e.do(t, "POST", testPath+"/questions", teacherToken, question)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var stored models.Attempt
	require.NoError(t, e.db.First(&stored, "id = ?", attemptID).Error)
	assert.Equal(t, 4, stored.TotalQuestions)
	assert.Equal(t, stored.TotalQuestions, stored.CorrectCount+stored.WrongCount+stored.UnattemptedCount)
}

func TestAvailableTestsReportsAttemptLookupFailure(t *testing.T) {
	e := setup(t)
	_, teacherToken := e.userToken(t, "teach", models.RoleTeacher)
	_, studentToken := e.userToken(t, "stud", models.RoleStudent)
	e.createTestWithQuestions(t, teacherToken, nil)

	require.NoError(t, e.db.Migrator().DropTable(&models.Attempt{}))

	resp, _ := e.do(t, "GET", "/api/tests", studentToken, nil)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
