package controllers

import (
	"errors"
	"strconv"

	"examhub/backend/exam"
	"examhub/backend/middleware"
	"examhub/backend/models"
	"examhub/backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}
	return uint(id), nil
}

func parseAttemptID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "Invalid attempt ID")
	}
	return id, nil
}

func currentStudent(c *fiber.Ctx) exam.Student {
	identity, _ := middleware.CurrentIdentity(c)
	return exam.Student{ID: identity.UserID}
}

// canManage reports whether the caller may edit a test and see its results.
func canManage(c *fiber.Ctx, test models.Test) bool {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return false
	}
	return identity.Role == models.RoleAdmin || test.AuthorID == identity.UserID
}

func resultURL(id uuid.UUID) string {
	return "/api/attempts/" + id.String() + "/result"
}

// respondExamError maps take-test failures onto HTTP responses.
func respondExamError(c *fiber.Ctx, err error) error {
	var completed *exam.CompletedError
	switch {
	case errors.As(err, &completed):
		url := resultURL(completed.AttemptID)
		c.Location(url)
		return utils.Error(c, fiber.StatusSeeOther, err, fiber.Map{
			"attempt_id": completed.AttemptID,
			"result_url": url,
		})
	case errors.Is(err, exam.ErrUnauthenticated):
		return utils.Error(c, fiber.StatusUnauthorized, err)
	case errors.Is(err, exam.ErrNotFound):
		return utils.Error(c, fiber.StatusNotFound, err)
	case errors.Is(err, exam.ErrEmptyTest):
		return utils.Error(c, fiber.StatusUnprocessableEntity, err, utils.Actions{Retry: true, Dashboard: "/api/tests"})
	case errors.Is(err, exam.ErrInvalidAnswer):
		return utils.Error(c, fiber.StatusBadRequest, err)
	case errors.Is(err, exam.ErrTimeUp),
		errors.Is(err, exam.ErrWindowClosed),
		errors.Is(err, exam.ErrNotOpen),
		errors.Is(err, exam.ErrTestUnavailable):
		return utils.Error(c, fiber.StatusForbidden, err)
	case errors.Is(err, exam.ErrConflict),
		errors.Is(err, exam.ErrSubmissionInFlight),
		errors.Is(err, exam.ErrAlreadyCompleted),
		errors.Is(err, exam.ErrTestInUse):
		return utils.Error(c, fiber.StatusConflict, err)
	case errors.Is(err, exam.ErrPersistence):
		return utils.Error(c, fiber.StatusServiceUnavailable, err, utils.Actions{Retry: true, Dashboard: "/api/tests"})
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return utils.Error(c, fe.Code, err)
	}
	utils.WithContext(c.UserContext()).WithError(err).Error("Unhandled error")
	return utils.InternalServerError(c, "Internal server error")
}
