package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
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

// ErrLearningAreaNotFound indicates the requested learning area does not exist.
var ErrLearningAreaNotFound = errors.New("learning area not found")

// MasteryService builds student progress reports from assessment history.
type MasteryService interface {
	MasteryInvalidator
	StudentMastery(ctx context.Context, req dto.MasteryRequest) (dto.MasteryResponse, error)
}

type masteryService struct {
	backend   backend.ReportingBackend
	cache     *redis.Client
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewMasteryService constructs the mastery reporting service. A nil cache
// disables caching.
func NewMasteryService(reporting backend.ReportingBackend, cache *redis.Client, ttl time.Duration, validate *validator.Validate, logger zerolog.Logger) MasteryService {
	return &masteryService{
		backend:   reporting,
		cache:     cache,
		cacheTTL:  ttl,
		validator: validate,
		logger:    logger.With().Str("component", "mastery_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/cbc-grading-api/internal/service/mastery"),
		now:       time.Now,
	}
}

func masteryCacheKey(studentID, learningAreaID uint) string {
	return fmt.Sprintf("mastery:student:%d:area:%d", studentID, learningAreaID)
}

func (s *masteryService) StudentMastery(ctx context.Context, req dto.MasteryRequest) (dto.MasteryResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.MasteryResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "mastery.student", trace.WithAttributes(
		attribute.Int64("mastery.student_id", int64(req.StudentID)),
		attribute.Int64("mastery.learning_area_id", int64(req.LearningAreaID)),
	))
	defer span.End()

	cacheKey := masteryCacheKey(req.StudentID, req.LearningAreaID)
	if cached, ok := s.readCache(ctx, cacheKey); ok {
		return cached, nil
	}

	area, err := s.backend.GetCurriculum(ctx, req.LearningAreaID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "curriculum_failed")
		if errors.Is(err, backend.ErrNotFound) {
			return dto.MasteryResponse{}, ErrLearningAreaNotFound
		}
		return dto.MasteryResponse{}, fmt.Errorf("load curriculum: %w", err)
	}

	query := backend.AssessmentQuery{StudentID: req.StudentID, LearningAreaID: req.LearningAreaID}
	assessments, err := s.backend.ListAssessments(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assessments_failed")
		return dto.MasteryResponse{}, fmt.Errorf("load assessments: %w", err)
	}

	evidence := make([]cbc.Evidence, 0, len(assessments))
	for _, assessment := range assessments {
		evidence = append(evidence, assessment.EvidenceItem())
	}

	quizSubmissions, err := s.backend.ListQuizSubmissions(ctx, query)
	if err != nil {
		// Report on assessment evidence alone.
		s.logger.Warn().Err(err).Uint("student_id", req.StudentID).Msg("failed to load quiz submissions")
	} else {
		for _, attempt := range BestQuizAttempts(quizSubmissions) {
			evidence = append(evidence, attempt.EvidenceItems()...)
		}
	}

	evidence, dropped := cbc.CleanEvidence(evidence)
	if dropped > 0 {
		s.logger.Debug().Int("dropped", dropped).Uint("student_id", req.StudentID).Msg("ignored malformed evidence")
	}

	curriculum := cbc.NewCurriculum(area)
	reports := cbc.BuildReports(evidence, curriculum)
	report := cbc.AreaReport{LearningAreaID: area.ID, Code: area.Code, Name: area.Name, Breakdown: cbc.Breakdown{}, Strands: []cbc.StrandReport{}}
	if len(reports) > 0 {
		report = reports[0]
	}

	response := dto.MasteryResponse{
		StudentID:     req.StudentID,
		Report:        report,
		EvidenceCount: len(evidence),
		GeneratedAt:   s.now().UTC(),
	}

	s.writeCache(ctx, cacheKey, response)
	span.SetAttributes(attribute.Int("mastery.percentage", report.Mastery.Percentage))

	return response, nil
}

// Invalidate drops every cached report for the student.
func (s *masteryService) Invalidate(ctx context.Context, studentID uint) error {
	if s.cache == nil {
		return nil
	}
	pattern := fmt.Sprintf("mastery:student:%d:*", studentID)
	iter := s.cache.Scan(ctx, 0, pattern, 100).Iterator()
	keys := make([]string, 0)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.cache.Del(ctx, keys...).Err()
}

func (s *masteryService) readCache(ctx context.Context, key string) (dto.MasteryResponse, bool) {
	if s.cache == nil {
		return dto.MasteryResponse{}, false
	}
	cached, err := s.cache.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			observability.MasteryCacheLookups().WithLabelValues("miss").Inc()
		} else {
			observability.MasteryCacheLookups().WithLabelValues("error").Inc()
			s.logger.Warn().Err(err).Msg("failed to read mastery cache")
		}
		return dto.MasteryResponse{}, false
	}

	var response dto.MasteryResponse
	if err := json.Unmarshal([]byte(cached), &response); err != nil {
		observability.MasteryCacheLookups().WithLabelValues("error").Inc()
		return dto.MasteryResponse{}, false
	}
	observability.MasteryCacheLookups().WithLabelValues("hit").Inc()
	s.logger.Debug().Str("key", key).Msg("mastery cache hit")
	return response, true
}

func (s *masteryService) writeCache(ctx context.Context, key string, response dto.MasteryResponse) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	payload, err := json.Marshal(response)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store mastery cache")
	}
}

// BestQuizAttempts keeps the highest scoring scored attempt per quiz,
// preferring the latest submission on equal scores.
func BestQuizAttempts(submissions []models.QuizSubmission) []models.QuizSubmission {
	best := make(map[uint]models.QuizSubmission)
	order := make([]uint, 0)
	for _, submission := range submissions {
		if !submission.Scored() {
			continue
		}
		current, ok := best[submission.QuizID]
		if !ok {
			order = append(order, submission.QuizID)
			best[submission.QuizID] = submission
			continue
		}
		if submission.Score > current.Score ||
			(submission.Score == current.Score && submission.SubmittedAt.After(current.SubmittedAt)) {
			best[submission.QuizID] = submission
		}
	}

	out := make([]models.QuizSubmission, 0, len(order))
	for _, quizID := range order {
		out = append(out, best[quizID])
	}
	return out
}
