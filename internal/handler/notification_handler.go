package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/cbc-grading-api/internal/dto"
	"github.com/noah-isme/cbc-grading-api/internal/middleware"
	"github.com/noah-isme/cbc-grading-api/internal/service"
	"github.com/noah-isme/cbc-grading-api/internal/utils"
)

const defaultToastLimit = 20

// NotificationHandler serves grading toasts as a feed and as an SSE stream.
type NotificationHandler struct {
	toasts    service.ToastCenter
	logger    zerolog.Logger
	keepAlive time.Duration
}

// NewNotificationHandler constructs a handler instance.
func NewNotificationHandler(toasts service.ToastCenter, logger zerolog.Logger, keepAlive time.Duration) *NotificationHandler {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	return &NotificationHandler{
		toasts:    toasts,
		logger:    logger.With().Str("component", "notification_handler").Logger(),
		keepAlive: keepAlive,
	}
}

// Register binds the notification routes.
func (h *NotificationHandler) Register(router fiber.Router) {
	router.Get("/toasts", h.list)
	router.Get("/stream", h.stream)
}

func (h *NotificationHandler) list(c *fiber.Ctx) error {
	teacherID := userIDFromContext(c)
	if teacherID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil || limit < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	if limit == 0 {
		limit = defaultToastLimit
	}

	return utils.SendSuccess(c, "toasts", h.toasts.Recent(teacherID, limit))
}

func (h *NotificationHandler) stream(c *fiber.Ctx) error {
	teacherID := userIDFromContext(c)
	if teacherID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx := middleware.ContextWithCorrelation(context.Background(), middleware.GetCorrelationID(c))
	ctx, cancel := context.WithCancel(ctx)

	stream, cleanup := h.toasts.Subscribe(teacherID)
	logger := requestLogger(h.logger, c).With().Uint("teacher_id", teacherID).Logger()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			cleanup()
			cancel()
		}()

		ticker := time.NewTicker(h.keepAlive / 2)
		defer ticker.Stop()

		for {
			select {
			case toast, ok := <-stream:
				if !ok {
					return
				}
				if err := writeToastEvent(w, toast); err != nil {
					logger.Debug().Err(err).Msg("failed to write toast event")
					return
				}
			case <-ticker.C:
				if err := writeKeepAlive(w); err != nil {
					logger.Debug().Err(err).Msg("failed to write toast keepalive")
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

func writeToastEvent(w *bufio.Writer, toast dto.ToastResponse) error {
	payload, err := json.Marshal(toast)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "id: %s\nevent: toast\n", toast.ID); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": keep-alive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.Flush()
}
