package middleware

import (
	"errors"
	"time"

	"examhub/backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// LoggingMiddleware puts a request-scoped logger in the user context and
// logs every request once it has been handled. It expects the requestid
// middleware to run first.
func LoggingMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		entry := logger.WithFields(logrus.Fields{
			"request_id": c.GetRespHeader(fiber.HeaderXRequestID),
			"method":     c.Method(),
			"path":       c.Path(),
		})
		c.SetUserContext(utils.ContextWithLogger(c.UserContext(), entry))

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}

		done := entry.WithFields(logrus.Fields{
			"status":  status,
			"latency": time.Since(start).String(),
			"ip":      c.IP(),
		})
		if err != nil {
			done = done.WithError(err)
		}
		switch {
		case status >= fiber.StatusInternalServerError:
			done.Error("Request failed")
		case status >= fiber.StatusBadRequest:
			done.Warn("Request rejected")
		default:
			done.Info("Request handled")
		}
		return err
	}
}
