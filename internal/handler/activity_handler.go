package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/cbc-grading-api/internal/dto"
	"github.com/noah-isme/cbc-grading-api/internal/service"
	"github.com/noah-isme/cbc-grading-api/internal/utils"
)

// ActivityHandler exposes the grading audit trail.
type ActivityHandler struct {
	service service.ActivityService
	logger  zerolog.Logger
}

// NewActivityHandler constructs the handler.
func NewActivityHandler(service service.ActivityService, logger zerolog.Logger) *ActivityHandler {
	return &ActivityHandler{
		service: service,
		logger:  logger.With().Str("component", "activity_handler").Logger(),
	}
}

// Register attaches activity routes to the router group.
func (h *ActivityHandler) Register(router fiber.Router) {
	router.Get("", h.list)
}

func (h *ActivityHandler) list(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	if page <= 0 {
		page = 1
	}

	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page size")
	}
	if pageSize <= 0 {
		pageSize = 25
	} else if pageSize > 100 {
		pageSize = 100
	}

	assignmentID, err := parseQueryUint(c, "assignment_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid assignment id")
	}

	req := dto.ActivityListRequest{
		Page:         page,
		PageSize:     pageSize,
		AssignmentID: assignmentID,
		Action:       c.Query("action"),
	}

	// Admins see every teacher's trail; teachers see their own.
	teacherID := userIDFromContext(c)
	if userRoleFromContext(c) == "admin" {
		teacherID = 0
		if requested, err := parseQueryUint(c, "teacher_id"); err == nil {
			teacherID = requested
		}
	}

	response, err := h.service.List(c.UserContext(), teacherID, req)
	if err != nil {
		if isValidationError(err) {
			return utils.SendError(c, fiber.StatusBadRequest, validationMessage(err))
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list grading activity")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list grading activity")
	}

	return utils.SendSuccess(c, "grading activity", response)
}
