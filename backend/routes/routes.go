package routes

import (
	"examhub/backend/config"
	"examhub/backend/controllers"
	"examhub/backend/exam"
	"examhub/backend/middleware"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupRoutes(app *fiber.App, db *gorm.DB, cfg *config.Config, tracker *exam.Tracker, store exam.Store) {
	// Auth routes
	authController := controllers.NewAuthController(db, cfg)
	app.Post("/api/auth/register", authController.Register)
	app.Post("/api/auth/login", authController.Login)

	// Middleware
	authMiddleware := middleware.AuthMiddleware(cfg)
	adminMiddleware := middleware.AdminMiddleware()
	teacherMiddleware := middleware.TeacherMiddleware()

	// User routes
	userController := controllers.NewUserController(db, cfg)
	app.Get("/api/user/profile", authMiddleware, userController.GetProfile)
	app.Put("/api/user/profile", authMiddleware, userController.UpdateProfile)

	// Admin routes
	admin := app.Group("/api/admin", authMiddleware, adminMiddleware)
	admin.Get("/users", userController.ListUsers)
	admin.Put("/users/:id/role", userController.SetRole)

	// Teacher routes
	testsController := controllers.NewTestsController(db, cfg)
	resultsController := controllers.NewResultsController(db, cfg, testsController)
	analyticsController := controllers.NewAnalyticsController(db, cfg, testsController, tracker)
	admin.Get("/analytics", analyticsController.GetPlatformAnalytics)
	teacher := app.Group("/api/teacher/tests", authMiddleware, teacherMiddleware)
	teacher.Post("/", testsController.CreateTest)
	teacher.Put("/:id", testsController.UpdateTest)
	teacher.Post("/:id/questions", testsController.AddQuestion)
	teacher.Get("/:id/results", resultsController.ListResults)
	teacher.Get("/:id/results/export", resultsController.ExportResults)
	teacher.Get("/:id/analytics", analyticsController.GetTestAnalytics)

	// Taking tests
	attemptsController := controllers.NewAttemptsController(db, cfg, tracker, store)
	tests := app.Group("/api/tests", authMiddleware)
	tests.Get("/", testsController.GetAvailableTests)
	tests.Post("/:id/attempt", attemptsController.BeginAttempt)

	attempts := app.Group("/api/attempts", authMiddleware)
	attempts.Get("/:id", attemptsController.GetAttempt)
	attempts.Put("/:id/answers", attemptsController.RecordAnswer)
	attempts.Post("/:id/submit", attemptsController.SubmitAttempt)
	attempts.Delete("/:id/session", attemptsController.LeaveAttempt)
	attempts.Get("/:id/result", attemptsController.GetResult)
}
