package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"examhub/backend/config"
	"examhub/backend/exam"
	"examhub/backend/middleware"
	"examhub/backend/repository"
	"examhub/backend/routes"
	"examhub/backend/scheduler"
	"examhub/backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	logger := utils.InitLogger(utils.LoggerConfig{Format: cfg.LogFormat, Level: cfg.LogLevel})

	db, err := utils.InitDB(cfg)
	if err != nil {
		logger.Fatalf("Error initializing database: %v", err)
	}

	scheme, err := exam.ParseScheme(cfg.DefaultScoringScheme)
	if err != nil {
		logger.Warnf("%v, falling back to %s", err, exam.SchemePercentage)
		scheme = exam.SchemePercentage
	}

	store := repository.NewExamStore(db)
	tracker := exam.NewTracker(store,
		exam.WithDefaultScheme(scheme),
		exam.WithAutosave(exam.AutosaveConfig{
			Debounce: cfg.AutosaveDebounce,
			MaxDelay: cfg.AutosaveMaxDelay,
			Retries:  cfg.AutosaveRetries,
		}),
	)

	sweeper := scheduler.New(tracker, cfg.SweepInterval)
	if err := sweeper.Start(); err != nil {
		logger.Fatalf("Error starting scheduler: %v", err)
	}

	app := fiber.New()

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(middleware.LoggingMiddleware(logger))

	routes.SetupRoutes(app, db, cfg, tracker, store)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit

		logger.Info("Shutting down")
		sweeper.Stop()
		if err := app.Shutdown(); err != nil {
			logger.WithError(err).Error("Server shutdown failed")
		}
	}()

	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logger.Fatalf("Server stopped: %v", err)
	}
	// save pending answers of open sessions before exiting
	tracker.Shutdown()
}
