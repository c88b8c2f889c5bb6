package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/cbc-grading-api/internal/dto"
	"github.com/noah-isme/cbc-grading-api/internal/observability"
)

const (
	toastBufferSize   = 16
	defaultToastFeed  = 50
	ToastKindSuccess  = "success"
	ToastKindError    = "error"
	ToastKindWarning  = "warning"
	ToastKindInfo     = "info"
	toastTitleMaxSize = 120
)

// Toast is a transient message addressed to one teacher.
type Toast struct {
	TeacherID uint
	Kind      string
	Title     string
	Message   string
}

// Notifier shows transient messages on the grading surface.
type Notifier interface {
	Toast(ctx context.Context, toast Toast) error
}

// ToastCenter keeps a short per-teacher feed of toasts and streams new ones.
type ToastCenter interface {
	Notifier
	Recent(teacherID uint, limit int) []dto.ToastResponse
	Subscribe(teacherID uint) (<-chan dto.ToastResponse, func())
	Start(ctx context.Context)
}

type toastCenter struct {
	mu          sync.RWMutex
	feeds       map[uint][]dto.ToastResponse
	subscribers map[uint]map[chan dto.ToastResponse]struct{}
	feedSize    int

	nats        *nats.Conn
	natsSubject string
	nodeID      string
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	now         func() time.Time
}

type toastEvent struct {
	Source    string            `json:"source"`
	TeacherID uint              `json:"teacher_id"`
	Toast     dto.ToastResponse `json:"toast"`
}

// NewToastCenter builds a toast center. When natsConn is set toasts are shared
// with other instances on "<channel>.toasts".
func NewToastCenter(natsConn *nats.Conn, channelBase string, feedSize int, logger zerolog.Logger) ToastCenter {
	if feedSize <= 0 {
		feedSize = defaultToastFeed
	}
	subject := ""
	if channelBase != "" {
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".toasts"
	}
	return &toastCenter{
		feeds:       make(map[uint][]dto.ToastResponse),
		subscribers: make(map[uint]map[chan dto.ToastResponse]struct{}),
		feedSize:    feedSize,
		nats:        natsConn,
		natsSubject: subject,
		nodeID:      uuid.NewString(),
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "toast_center").Logger(),
		now:         time.Now,
	}
}

func (c *toastCenter) Toast(ctx context.Context, toast Toast) error {
	if toast.TeacherID == 0 {
		return errors.New("toast recipient is required")
	}
	message := strings.TrimSpace(c.sanitizer.Sanitize(toast.Message))
	title := strings.TrimSpace(c.sanitizer.Sanitize(toast.Title))
	if message == "" && title == "" {
		return errors.New("toast is empty after sanitization")
	}
	if len(title) > toastTitleMaxSize {
		title = title[:toastTitleMaxSize]
	}
	kind := toast.Kind
	if kind == "" {
		kind = ToastKindInfo
	}

	response := dto.ToastResponse{
		ID:        uuid.NewString(),
		Kind:      kind,
		Title:     title,
		Message:   message,
		CreatedAt: c.now().UTC(),
	}

	c.deliver(toast.TeacherID, response)
	observability.ToastsPublished().WithLabelValues(kind).Inc()

	if err := c.publish(toast.TeacherID, response); err != nil {
		c.logger.Warn().Err(err).Msg("failed to publish toast to broker")
	}
	return nil
}

func (c *toastCenter) Recent(teacherID uint, limit int) []dto.ToastResponse {
	c.mu.RLock()
	defer c.mu.RUnlock()

	feed := c.feeds[teacherID]
	if limit <= 0 || limit > len(feed) {
		limit = len(feed)
	}
	out := make([]dto.ToastResponse, 0, limit)
	for i := len(feed) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, feed[i])
	}
	return out
}

func (c *toastCenter) Subscribe(teacherID uint) (<-chan dto.ToastResponse, func()) {
	channel := make(chan dto.ToastResponse, toastBufferSize)

	c.mu.Lock()
	if _, ok := c.subscribers[teacherID]; !ok {
		c.subscribers[teacherID] = make(map[chan dto.ToastResponse]struct{})
	}
	c.subscribers[teacherID][channel] = struct{}{}
	c.mu.Unlock()
	observability.ToastStreamsActive().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			c.mu.Lock()
			if subscribers, ok := c.subscribers[teacherID]; ok {
				delete(subscribers, channel)
				if len(subscribers) == 0 {
					delete(c.subscribers, teacherID)
				}
			}
			c.mu.Unlock()
			close(channel)
			observability.ToastStreamsActive().Dec()
		})
	}
	return channel, cleanup
}

func (c *toastCenter) Start(ctx context.Context) {
	if c.nats == nil || c.natsSubject == "" {
		return
	}
	sub, err := c.nats.Subscribe(c.natsSubject, func(msg *nats.Msg) {
		c.handleEvent(msg.Data)
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to subscribe to nats toast subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			c.logger.Warn().Err(err).Msg("failed to drain toast nats subscription")
		}
	}()
}

func (c *toastCenter) deliver(teacherID uint, toast dto.ToastResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	feed := append(c.feeds[teacherID], toast)
	if len(feed) > c.feedSize {
		feed = append([]dto.ToastResponse(nil), feed[len(feed)-c.feedSize:]...)
	}
	c.feeds[teacherID] = feed

	for ch := range c.subscribers[teacherID] {
		select {
		case ch <- toast:
		default:
		}
	}
}

func (c *toastCenter) publish(teacherID uint, toast dto.ToastResponse) error {
	if c.nats == nil || c.natsSubject == "" {
		return nil
	}
	payload, err := json.Marshal(toastEvent{Source: c.nodeID, TeacherID: teacherID, Toast: toast})
	if err != nil {
		return err
	}
	return c.nats.Publish(c.natsSubject, payload)
}

func (c *toastCenter) handleEvent(payload []byte) {
	var event toastEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		c.logger.Warn().Err(err).Msg("invalid toast event payload")
		return
	}
	if event.Source == c.nodeID || event.TeacherID == 0 {
		return
	}
	c.deliver(event.TeacherID, event.Toast)
}
