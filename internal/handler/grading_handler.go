package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/cbc-grading-api/internal/backend"
	"github.com/noah-isme/cbc-grading-api/internal/cbc"
	"github.com/noah-isme/cbc-grading-api/internal/dto"
	"github.com/noah-isme/cbc-grading-api/internal/service"
	"github.com/noah-isme/cbc-grading-api/internal/utils"
)

// GradingHandler exposes the keyboard-driven grading session endpoints.
type GradingHandler struct {
	sessions service.GradingSessionService
	logger   zerolog.Logger
}

// NewGradingHandler constructs the handler.
func NewGradingHandler(sessions service.GradingSessionService, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		sessions: sessions,
		logger:   logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register attaches session routes. actionGuards run before the routes that
// write to the records backend.
func (h *GradingHandler) Register(router fiber.Router, actionGuards ...fiber.Handler) {
	router.Post("", h.open)
	router.Get("/:id", h.get)
	router.Delete("/:id", h.close)
	router.Post("/:id/reload", h.reload)
	router.Post("/:id/select", h.selectLevel)
	router.Post("/:id/commit", guarded(actionGuards, h.commit)...)
	router.Post("/:id/keys", guarded(actionGuards, h.key)...)
	router.Post("/:id/next", h.next)
	router.Post("/:id/previous", h.previous)
}

func (h *GradingHandler) open(c *fiber.Ctx) error {
	teacherID := userIDFromContext(c)
	if teacherID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	var payload dto.GradingSessionOpenRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	snapshot, err := h.sessions.Open(c.UserContext(), teacherID, payload)
	if err != nil {
		return h.sendSessionError(c, err, nil, "failed to open grading session")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "grading session opened", snapshot)
}

func (h *GradingHandler) get(c *fiber.Ctx) error {
	snapshot, err := h.sessions.Get(userIDFromContext(c), c.Params("id"))
	if err != nil {
		return h.sendSessionError(c, err, nil, "failed to load grading session")
	}
	return utils.SendSuccess(c, "grading session", snapshot)
}

func (h *GradingHandler) close(c *fiber.Ctx) error {
	if err := h.sessions.Close(userIDFromContext(c), c.Params("id")); err != nil {
		return h.sendSessionError(c, err, nil, "failed to close grading session")
	}
	return utils.SendSuccess(c, "grading session closed", nil)
}

func (h *GradingHandler) reload(c *fiber.Ctx) error {
	snapshot, err := h.sessions.Reload(c.UserContext(), userIDFromContext(c), c.Params("id"))
	if err != nil {
		return h.sendSessionError(c, err, &snapshot, "failed to reload grading session")
	}
	return utils.SendSuccess(c, "grading session reloaded", snapshot)
}

func (h *GradingHandler) selectLevel(c *fiber.Ctx) error {
	var payload dto.GradingSelectRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	snapshot, err := h.sessions.Select(userIDFromContext(c), c.Params("id"), payload)
	if err != nil {
		return h.sendSessionError(c, err, &snapshot, "failed to select level")
	}
	return utils.SendSuccess(c, "level selected", snapshot)
}

func (h *GradingHandler) commit(c *fiber.Ctx) error {
	var payload dto.GradingCommitRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
		}
	}

	snapshot, err := h.sessions.Commit(c.UserContext(), userIDFromContext(c), c.Params("id"), payload)
	if err != nil {
		return h.sendSessionError(c, err, &snapshot, "failed to record assessment")
	}
	return utils.SendSuccess(c, "assessment recorded", snapshot)
}

func (h *GradingHandler) key(c *fiber.Ctx) error {
	var payload dto.GradingKeyRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.sessions.HandleKey(c.UserContext(), userIDFromContext(c), c.Params("id"), payload)
	if err != nil {
		return h.sendSessionError(c, err, &result.Session, "failed to handle key")
	}
	return utils.SendSuccess(c, "key handled", result)
}

func (h *GradingHandler) next(c *fiber.Ctx) error {
	snapshot, err := h.sessions.Next(userIDFromContext(c), c.Params("id"))
	if err != nil {
		return h.sendSessionError(c, err, &snapshot, "failed to move to next student")
	}
	return utils.SendSuccess(c, "moved to next student", snapshot)
}

func (h *GradingHandler) previous(c *fiber.Ctx) error {
	snapshot, err := h.sessions.Previous(userIDFromContext(c), c.Params("id"))
	if err != nil {
		return h.sendSessionError(c, err, &snapshot, "failed to move to previous student")
	}
	return utils.SendSuccess(c, "moved to previous student", snapshot)
}

// sendSessionError maps session errors onto HTTP statuses. When a snapshot is
// available it is returned as details so the surface can re-render.
func (h *GradingHandler) sendSessionError(c *fiber.Ctx, err error, snapshot *dto.GradingSessionResponse, fallback string) error {
	var details interface{}
	if snapshot != nil && snapshot.ID != "" {
		details = snapshot
	}

	if recErr, ok := service.IsRecordingError(err); ok {
		status := fiber.StatusMultiStatus
		if recErr.Stage == service.StageAssessments && len(recErr.Succeeded) == 0 {
			status = fiber.StatusBadGateway
		}
		failure := dto.RecordingFailureResponse{
			Stage:             string(recErr.Stage),
			SucceededOutcomes: nonNilIDs(recErr.Succeeded),
			FailedOutcomes:    nonNilIDs(recErr.Failed),
		}
		if snapshot != nil {
			failure.Session = *snapshot
		}
		requestLogger(h.logger, c).Warn().Err(err).Str("stage", failure.Stage).Msg("grading commit partially failed")
		return utils.Fail(c, status, fallback, failure)
	}

	switch {
	case isValidationError(err):
		return utils.Fail(c, fiber.StatusBadRequest, validationMessage(err), details)
	case errors.Is(err, cbc.ErrInvalidInput):
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), details)
	case errors.Is(err, service.ErrSessionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, backend.ErrNotFound):
		return utils.Fail(c, fiber.StatusNotFound, "assignment not found", details)
	case errors.Is(err, service.ErrNoSelection):
		return utils.Fail(c, fiber.StatusUnprocessableEntity, err.Error(), details)
	case errors.Is(err, service.ErrSessionClosed):
		return utils.SendError(c, fiber.StatusGone, err.Error())
	case errors.Is(err, service.ErrCommitInFlight),
		errors.Is(err, service.ErrStudentNotQueued),
		errors.Is(err, service.ErrSessionNotReady),
		errors.Is(err, service.ErrQueueEmpty):
		return utils.Fail(c, fiber.StatusConflict, err.Error(), details)
	}

	requestLogger(h.logger, c).Error().Err(err).Msg(fallback)
	return utils.Fail(c, fiber.StatusBadGateway, fallback, details)
}

func guarded(guards []fiber.Handler, handler fiber.Handler) []fiber.Handler {
	chain := make([]fiber.Handler, 0, len(guards)+1)
	chain = append(chain, guards...)
	return append(chain, handler)
}

func nonNilIDs(ids []uint) []uint {
	if ids == nil {
		return []uint{}
	}
	return ids
}
