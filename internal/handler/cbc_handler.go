package handler

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/cbc-grading-api/internal/cbc"
	"github.com/noah-isme/cbc-grading-api/internal/dto"
	"github.com/noah-isme/cbc-grading-api/internal/utils"
)

// CBCHandler exposes the competency scale.
type CBCHandler struct{}

// NewCBCHandler constructs the scale handler.
func NewCBCHandler() *CBCHandler {
	return &CBCHandler{}
}

// Register attaches scale routes.
func (h *CBCHandler) Register(router fiber.Router) {
	router.Get("/levels", h.levels)
	router.Get("/classify", h.classify)
}

func (h *CBCHandler) levels(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "competency levels", dto.NewLevelResponses())
}

func (h *CBCHandler) classify(c *fiber.Ctx) error {
	score, err := parseQueryFloat(c, "score")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "score must be a number")
	}
	total, err := parseQueryFloat(c, "total")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "total must be a number")
	}

	level, err := cbc.Classify(score, total)
	if err != nil {
		if errors.Is(err, cbc.ErrInvalidInput) {
			return utils.SendError(c, fiber.StatusBadRequest, "score and total must be non-negative and total greater than zero")
		}
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to classify score")
	}

	return utils.SendSuccess(c, "score classified", dto.ClassifyResponse{
		Score:      score,
		Total:      total,
		Percentage: cbc.Percentage(score, total),
		Level:      level,
		Label:      level.Label(),
	})
}

func parseQueryFloat(c *fiber.Ctx, key string) (float64, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, errors.New("missing " + key)
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(parsed, 0) || math.IsNaN(parsed) {
		return 0, errors.New(key + " must be finite")
	}
	return parsed, nil
}
