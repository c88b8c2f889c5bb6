package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/cbc-grading-api/internal/dto"
	"github.com/noah-isme/cbc-grading-api/internal/middleware"
	"github.com/noah-isme/cbc-grading-api/internal/service"
	"github.com/noah-isme/cbc-grading-api/internal/utils"
)

// MasteryHandler serves student progress reports.
type MasteryHandler struct {
	service service.MasteryService
	logger  zerolog.Logger
}

// NewMasteryHandler constructs the handler.
func NewMasteryHandler(service service.MasteryService, logger zerolog.Logger) *MasteryHandler {
	return &MasteryHandler{
		service: service,
		logger:  logger.With().Str("component", "mastery_handler").Logger(),
	}
}

// Register attaches the student report routes.
func (h *MasteryHandler) Register(router fiber.Router) {
	router.Get("/:id/mastery", middleware.WithAuth(h.mastery, middleware.AuthOptions{RequireUser: true}))
}

func (h *MasteryHandler) mastery(c *fiber.Ctx) error {
	studentID, err := parseParamUint(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid student id")
	}

	// Students may only read their own report.
	if userRoleFromContext(c) == middleware.AuthRoleStudent && userIDFromContext(c) != studentID {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	areaID, err := parseQueryUint(c, "learning_area")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid learning area")
	}

	report, err := h.service.StudentMastery(c.UserContext(), dto.MasteryRequest{StudentID: studentID, LearningAreaID: areaID})
	if err != nil {
		switch {
		case isValidationError(err):
			return utils.SendError(c, fiber.StatusBadRequest, "learning_area is required")
		case errors.Is(err, service.ErrLearningAreaNotFound):
			return utils.SendError(c, fiber.StatusNotFound, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("student_id", studentID).Msg("failed to build mastery report")
		return utils.SendError(c, fiber.StatusBadGateway, "failed to build mastery report")
	}

	return utils.SendSuccess(c, "mastery report", report)
}
