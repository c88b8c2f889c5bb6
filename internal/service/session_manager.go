package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/cbc-grading-api/internal/backend"
	"github.com/noah-isme/cbc-grading-api/internal/cbc"
	"github.com/noah-isme/cbc-grading-api/internal/dto"
	"github.com/noah-isme/cbc-grading-api/internal/models"
	"github.com/noah-isme/cbc-grading-api/internal/observability"
)

// ErrSessionNotFound indicates the session does not exist or belongs to someone else.
var ErrSessionNotFound = errors.New("grading session not found")

const defaultSessionTTL = 2 * time.Hour

// GradingSessionService manages the grading sessions held by this process.
type GradingSessionService interface {
	Open(ctx context.Context, teacherID uint, req dto.GradingSessionOpenRequest) (dto.GradingSessionResponse, error)
	Get(teacherID uint, sessionID string) (dto.GradingSessionResponse, error)
	Reload(ctx context.Context, teacherID uint, sessionID string) (dto.GradingSessionResponse, error)
	Select(teacherID uint, sessionID string, req dto.GradingSelectRequest) (dto.GradingSessionResponse, error)
	Commit(ctx context.Context, teacherID uint, sessionID string, req dto.GradingCommitRequest) (dto.GradingSessionResponse, error)
	HandleKey(ctx context.Context, teacherID uint, sessionID string, req dto.GradingKeyRequest) (dto.GradingKeyResponse, error)
	Next(teacherID uint, sessionID string) (dto.GradingSessionResponse, error)
	Previous(teacherID uint, sessionID string) (dto.GradingSessionResponse, error)
	Close(teacherID uint, sessionID string) error
	Sweep() int
	Start(ctx context.Context, interval time.Duration)
}

// SessionManagerOption customises the session manager.
type SessionManagerOption func(*sessionManager)

// WithNotifier sends toasts for commit outcomes.
func WithNotifier(notifier Notifier) SessionManagerOption {
	return func(m *sessionManager) { m.notifier = notifier }
}

// WithSessionActivity records session lifecycle activity.
func WithSessionActivity(activity ActivityRecorder) SessionManagerOption {
	return func(m *sessionManager) { m.activity = activity }
}

// WithSessionTTL sets how long an idle session is kept.
func WithSessionTTL(ttl time.Duration) SessionManagerOption {
	return func(m *sessionManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

type sessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*GradingSession

	backend   backend.GradingBackend
	recorder  AssessmentRecorder
	notifier  Notifier
	activity  ActivityRecorder
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	ttl       time.Duration
	now       func() time.Time
}

// NewSessionManager constructs the in-memory session registry.
func NewSessionManager(gradingBackend backend.GradingBackend, recorder AssessmentRecorder, validate *validator.Validate, logger zerolog.Logger, opts ...SessionManagerOption) GradingSessionService {
	m := &sessionManager{
		sessions:  make(map[string]*GradingSession),
		backend:   gradingBackend,
		recorder:  recorder,
		validator: validate,
		logger:    logger.With().Str("component", "grading_sessions").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/cbc-grading-api/internal/service/grading"),
		ttl:       defaultSessionTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *sessionManager) Open(ctx context.Context, teacherID uint, req dto.GradingSessionOpenRequest) (dto.GradingSessionResponse, error) {
	if err := m.validator.Struct(req); err != nil {
		return dto.GradingSessionResponse{}, err
	}
	if teacherID == 0 {
		return dto.GradingSessionResponse{}, errors.New("teacher is required")
	}

	ctx, span := m.tracer.Start(ctx, "grading.session.open", trace.WithAttributes(
		attribute.Int64("grading.assignment_id", int64(req.AssignmentID)),
	))
	defer span.End()

	session := NewGradingSession(uuid.NewString(), teacherID, m.backend, m.recorder, m.logger)
	if err := session.Load(ctx, req.AssignmentID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load_failed")
		return dto.GradingSessionResponse{}, err
	}

	m.mu.Lock()
	m.sessions[session.ID()] = session
	active := len(m.sessions)
	m.mu.Unlock()
	observability.GradingSessionsActive().Set(float64(active))

	snapshot := session.Snapshot()
	m.audit(ctx, teacherID, models.ActivitySessionOpened, req.AssignmentID, map[string]interface{}{
		"session_id": session.ID(),
		"queue":      snapshot.Remaining,
	})

	m.logger.Info().
		Str("session_id", session.ID()).
		Uint("teacher_id", teacherID).
		Uint("assignment_id", req.AssignmentID).
		Msg("grading session opened")

	return snapshot, nil
}

func (m *sessionManager) Get(teacherID uint, sessionID string) (dto.GradingSessionResponse, error) {
	session, err := m.lookup(teacherID, sessionID)
	if err != nil {
		return dto.GradingSessionResponse{}, err
	}
	return session.Snapshot(), nil
}

func (m *sessionManager) Reload(ctx context.Context, teacherID uint, sessionID string) (dto.GradingSessionResponse, error) {
	session, err := m.lookup(teacherID, sessionID)
	if err != nil {
		return dto.GradingSessionResponse{}, err
	}
	if err := session.Load(ctx, session.AssignmentID()); err != nil {
		return session.Snapshot(), err
	}
	return session.Snapshot(), nil
}

func (m *sessionManager) Select(teacherID uint, sessionID string, req dto.GradingSelectRequest) (dto.GradingSessionResponse, error) {
	if err := m.validator.Struct(req); err != nil {
		return dto.GradingSessionResponse{}, err
	}
	session, err := m.lookup(teacherID, sessionID)
	if err != nil {
		return dto.GradingSessionResponse{}, err
	}
	level, err := cbc.ParseLevel(req.Level)
	if err != nil {
		return dto.GradingSessionResponse{}, err
	}
	if err := session.SelectLevel(req.StudentID, level, req.Comment); err != nil {
		return session.Snapshot(), err
	}
	return session.Snapshot(), nil
}

func (m *sessionManager) Commit(ctx context.Context, teacherID uint, sessionID string, req dto.GradingCommitRequest) (dto.GradingSessionResponse, error) {
	session, err := m.lookup(teacherID, sessionID)
	if err != nil {
		return dto.GradingSessionResponse{}, err
	}
	err = m.commit(ctx, session, req.Advance)
	return session.Snapshot(), err
}

func (m *sessionManager) commit(ctx context.Context, session *GradingSession, advance bool) error {
	result, err := session.Commit(ctx, advance)
	m.notifyCommit(ctx, session, result, err)
	if err == nil && result.Completed {
		m.audit(ctx, session.TeacherID(), models.ActivitySessionCompleted, session.AssignmentID(), map[string]interface{}{
			"session_id": session.ID(),
			"graded":     result.Graded,
		})
	}
	return err
}

func (m *sessionManager) notifyCommit(ctx context.Context, session *GradingSession, result CommitResult, err error) {
	if m.notifier == nil {
		return
	}

	toast := Toast{TeacherID: session.TeacherID()}
	switch {
	case err == nil:
		toast.Kind = ToastKindSuccess
		toast.Title = "Assessment Recorded"
		toast.Message = fmt.Sprintf("%s recorded for %s", result.Level.Label(), studentLabel(result))
	case errors.Is(err, ErrNoSelection):
		toast.Kind = ToastKindWarning
		toast.Title = "Please select a competency level"
	case errors.Is(err, ErrCommitInFlight), errors.Is(err, ErrSessionClosed):
		return
	default:
		toast.Kind = ToastKindError
		toast.Title = "Failed to record assessment"
		toast.Message = err.Error()
	}

	if notifyErr := m.notifier.Toast(ctx, toast); notifyErr != nil {
		m.logger.Warn().Err(notifyErr).Str("session_id", session.ID()).Msg("failed to send toast")
	}
}

func studentLabel(result CommitResult) string {
	if result.StudentName != "" {
		return result.StudentName
	}
	return fmt.Sprintf("student %d", result.StudentID)
}

func (m *sessionManager) HandleKey(ctx context.Context, teacherID uint, sessionID string, req dto.GradingKeyRequest) (dto.GradingKeyResponse, error) {
	if err := m.validator.Struct(req); err != nil {
		return dto.GradingKeyResponse{}, err
	}
	session, err := m.lookup(teacherID, sessionID)
	if err != nil {
		return dto.GradingKeyResponse{}, err
	}

	stroke := Keystroke{
		Key:         req.Key,
		Ctrl:        req.Ctrl,
		Meta:        req.Meta,
		Shift:       req.Shift,
		InTextField: req.InTextField,
	}

	action, _ := ResolveKey(stroke)
	switch action {
	case KeyCommit:
		err = m.commit(ctx, session, false)
	case KeyCommitAndAdvance:
		err = m.commit(ctx, session, true)
	default:
		_, err = session.HandleKey(ctx, stroke)
	}

	return dto.GradingKeyResponse{Action: string(action), Session: session.Snapshot()}, err
}

func (m *sessionManager) Next(teacherID uint, sessionID string) (dto.GradingSessionResponse, error) {
	session, err := m.lookup(teacherID, sessionID)
	if err != nil {
		return dto.GradingSessionResponse{}, err
	}
	err = session.Next()
	return session.Snapshot(), err
}

func (m *sessionManager) Previous(teacherID uint, sessionID string) (dto.GradingSessionResponse, error) {
	session, err := m.lookup(teacherID, sessionID)
	if err != nil {
		return dto.GradingSessionResponse{}, err
	}
	err = session.Previous()
	return session.Snapshot(), err
}

func (m *sessionManager) Close(teacherID uint, sessionID string) error {
	session, err := m.lookup(teacherID, sessionID)
	if err != nil {
		return err
	}
	session.Close()

	m.mu.Lock()
	delete(m.sessions, sessionID)
	active := len(m.sessions)
	m.mu.Unlock()
	observability.GradingSessionsActive().Set(float64(active))

	m.logger.Info().Str("session_id", sessionID).Uint("teacher_id", teacherID).Msg("grading session closed")
	return nil
}

// Sweep closes sessions idle for longer than the TTL and returns how many
// were removed.
func (m *sessionManager) Sweep() int {
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	expired := make([]*GradingSession, 0)
	for id, session := range m.sessions {
		if session.LastActive().Before(cutoff) {
			expired = append(expired, session)
			delete(m.sessions, id)
		}
	}
	active := len(m.sessions)
	m.mu.Unlock()

	for _, session := range expired {
		session.Close()
	}
	observability.GradingSessionsActive().Set(float64(active))
	if len(expired) > 0 {
		m.logger.Info().Int("expired", len(expired)).Msg("idle grading sessions closed")
	}
	return len(expired)
}

// Start sweeps idle sessions until ctx is done.
func (m *sessionManager) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}

func (m *sessionManager) lookup(teacherID uint, sessionID string) (*GradingSession, error) {
	m.mu.RLock()
	session, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok || session.TeacherID() != teacherID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (m *sessionManager) audit(ctx context.Context, teacherID uint, action string, assignmentID uint, metadata map[string]interface{}) {
	if m.activity == nil {
		return
	}
	entry := ActivityEntry{
		TeacherID: teacherID,
		Action:    action,
		Metadata:  metadata,
	}
	if assignmentID > 0 {
		entry.AssignmentID = &assignmentID
	}
	if err := m.activity.Record(ctx, entry); err != nil {
		m.logger.Warn().Err(err).Str("action", action).Msg("failed to persist grading activity")
	}
}
