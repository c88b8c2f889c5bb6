package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/cbc-grading-api/internal/backend"
	"github.com/noah-isme/cbc-grading-api/internal/cbc"
	"github.com/noah-isme/cbc-grading-api/internal/models"
	"github.com/noah-isme/cbc-grading-api/internal/observability"
)

const defaultWriteConcurrency = 4

// RecordingStage names the half of a grading action that failed.
type RecordingStage string

const (
	// StageAssessments means one or more outcome rows were not written.
	StageAssessments RecordingStage = "assessments"
	// StageSubmission means every outcome row was written but the submission update failed.
	StageSubmission RecordingStage = "submission"
)

// RecordingError reports a partially applied grading action. Callers must not
// assume the submission is graded; Retry builds a command that re-issues only
// the writes that failed.
type RecordingError struct {
	SubmissionID uint
	Stage        RecordingStage
	Succeeded    []uint
	Failed       []uint
	Err          error
}

func (e *RecordingError) Error() string {
	if e.Stage == StageSubmission {
		return fmt.Sprintf("recording submission %d: submission update failed: %v", e.SubmissionID, e.Err)
	}
	return fmt.Sprintf("recording submission %d: %d of %d outcome writes failed (%v): %v",
		e.SubmissionID, len(e.Failed), len(e.Failed)+len(e.Succeeded), e.Failed, e.Err)
}

func (e *RecordingError) Unwrap() error {
	return e.Err
}

// Retry narrows cmd to the writes that did not complete.
func (e *RecordingError) Retry(cmd GradeCommand) GradeCommand {
	only := make([]uint, len(e.Failed))
	copy(only, e.Failed)
	cmd.OnlyOutcomes = only
	return cmd
}

// GradeCommand is one grading decision for one submission.
type GradeCommand struct {
	StudentID    uint `validate:"required,gt=0"`
	SubmissionID uint `validate:"required,gt=0"`
	AssignmentID uint
	TeacherID    uint      `validate:"required,gt=0"`
	Level        cbc.Level `validate:"required,oneof=EE ME AE BE"`
	Comment      string    `validate:"max=2000"`
	Evidence     string    `validate:"max=2000"`
	Outcomes     cbc.OutcomeSet
	// OnlyOutcomes, when non-nil, restricts outcome writes to these ids. An
	// empty non-nil slice writes no outcome rows and only updates the submission.
	OnlyOutcomes []uint
}

func (c GradeCommand) outcomeTargets() []uint {
	if c.OnlyOutcomes == nil {
		return c.Outcomes.Sorted()
	}
	set := cbc.NewOutcomeSet(c.OnlyOutcomes...)
	return set.Sorted()
}

// GradedEvent is published after a grading action is fully recorded.
type GradedEvent struct {
	StudentID    uint      `json:"student_id"`
	SubmissionID uint      `json:"submission_id"`
	AssignmentID uint      `json:"assignment_id"`
	TeacherID    uint      `json:"teacher_id"`
	Level        cbc.Level `json:"competency_level"`
	Outcomes     []uint    `json:"outcomes"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// GradedEventPublisher fans grading events out to other services.
type GradedEventPublisher interface {
	PublishGraded(ctx context.Context, event GradedEvent) error
}

// MasteryInvalidator drops cached progress reports for a student.
type MasteryInvalidator interface {
	Invalidate(ctx context.Context, studentID uint) error
}

// AssessmentRecorder writes competency assessments and grades submissions.
type AssessmentRecorder interface {
	RecordGrade(ctx context.Context, cmd GradeCommand) error
}

// RecorderOption customises the recorder.
type RecorderOption func(*assessmentRecorder)

// WithGradedEventPublisher publishes an event after every fully recorded grade.
func WithGradedEventPublisher(publisher GradedEventPublisher) RecorderOption {
	return func(r *assessmentRecorder) { r.events = publisher }
}

// WithMasteryInvalidator invalidates cached reports after grading.
func WithMasteryInvalidator(invalidator MasteryInvalidator) RecorderOption {
	return func(r *assessmentRecorder) { r.invalidator = invalidator }
}

// WithActivityRecorder audits grading actions.
func WithActivityRecorder(activity ActivityRecorder) RecorderOption {
	return func(r *assessmentRecorder) { r.activity = activity }
}

// WithWriteConcurrency bounds concurrent outcome writes.
func WithWriteConcurrency(limit int) RecorderOption {
	return func(r *assessmentRecorder) {
		if limit > 0 {
			r.concurrency = limit
		}
	}
}

// WithWriteTimeout bounds the detached write context.
func WithWriteTimeout(timeout time.Duration) RecorderOption {
	return func(r *assessmentRecorder) { r.writeTimeout = timeout }
}

type assessmentRecorder struct {
	backend      backend.GradingBackend
	validator    *validator.Validate
	sanitizer    *bluemonday.Policy
	events       GradedEventPublisher
	invalidator  MasteryInvalidator
	activity     ActivityRecorder
	logger       zerolog.Logger
	tracer       trace.Tracer
	concurrency  int
	writeTimeout time.Duration
	now          func() time.Time
}

// NewAssessmentRecorder constructs the recorder.
func NewAssessmentRecorder(gradingBackend backend.GradingBackend, validate *validator.Validate, logger zerolog.Logger, opts ...RecorderOption) AssessmentRecorder {
	r := &assessmentRecorder{
		backend:      gradingBackend,
		validator:    validate,
		sanitizer:    bluemonday.StrictPolicy(),
		logger:       logger.With().Str("component", "assessment_recorder").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/cbc-grading-api/internal/service/recorder"),
		concurrency:  defaultWriteConcurrency,
		writeTimeout: 30 * time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordGrade appends one assessment row per outcome and then marks the
// submission graded. Writes are issued on a context detached from ctx's
// cancellation so a write that was started still commits when the caller
// goes away. Nothing is retried here.
func (r *assessmentRecorder) RecordGrade(ctx context.Context, cmd GradeCommand) error {
	started := r.now()
	ctx, span := r.tracer.Start(ctx, "grading.record")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("grading.submission_id", int64(cmd.SubmissionID)),
		attribute.Int64("grading.student_id", int64(cmd.StudentID)),
		attribute.String("grading.level", string(cmd.Level)),
	)

	if err := r.validator.Struct(cmd); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return err
	}

	cmd.Comment = strings.TrimSpace(r.sanitizer.Sanitize(cmd.Comment))
	cmd.Evidence = strings.TrimSpace(r.sanitizer.Sanitize(cmd.Evidence))

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.writeTimeout)
	defer cancel()

	recordedAt := r.now().UTC()
	targets := cmd.outcomeTargets()
	succeeded, failed, firstErr := r.writeAssessments(writeCtx, cmd, targets, recordedAt)
	span.SetAttributes(
		attribute.Int("grading.outcomes", len(targets)),
		attribute.Int("grading.outcomes_failed", len(failed)),
	)

	if len(failed) > 0 {
		recErr := &RecordingError{
			SubmissionID: cmd.SubmissionID,
			Stage:        StageAssessments,
			Succeeded:    succeeded,
			Failed:       failed,
			Err:          firstErr,
		}
		r.fail(ctx, span, cmd, recErr)
		return recErr
	}

	status := models.SubmissionStatusGraded
	level := cmd.Level
	comment := cmd.Comment
	teacherID := cmd.TeacherID
	patch := backend.SubmissionPatch{
		Status:            &status,
		CompetencyLevel:   &level,
		CompetencyComment: &comment,
		GradedBy:          &teacherID,
		GradedAt:          &recordedAt,
	}
	if err := r.backend.PatchSubmission(writeCtx, cmd.SubmissionID, patch); err != nil {
		recErr := &RecordingError{
			SubmissionID: cmd.SubmissionID,
			Stage:        StageSubmission,
			Succeeded:    succeeded,
			Failed:       []uint{},
			Err:          err,
		}
		r.fail(ctx, span, cmd, recErr)
		return recErr
	}

	observability.GradingCommits().WithLabelValues("success").Inc()
	observability.RecordDuration().Observe(r.now().Sub(started).Seconds())
	r.afterRecorded(writeCtx, cmd, succeeded, recordedAt)

	return nil
}

func (r *assessmentRecorder) writeAssessments(ctx context.Context, cmd GradeCommand, targets []uint, recordedAt time.Time) ([]uint, []uint, error) {
	if len(targets) == 0 {
		return []uint{}, nil, nil
	}

	var (
		mu       sync.Mutex
		results  = make(map[uint]error, len(targets))
		group    errgroup.Group
		submitID = cmd.SubmissionID
	)
	group.SetLimit(r.concurrency)

	for _, outcomeID := range targets {
		group.Go(func() error {
			row := models.CompetencyAssessment{
				StudentID:         cmd.StudentID,
				LearningOutcomeID: outcomeID,
				CompetencyLevel:   cmd.Level,
				TeacherID:         cmd.TeacherID,
				TeacherComment:    cmd.Comment,
				Evidence:          cmd.Evidence,
				SubmissionID:      &submitID,
				AssessedAt:        recordedAt,
			}
			err := r.backend.CreateAssessment(ctx, &row)

			mu.Lock()
			results[outcomeID] = err
			mu.Unlock()

			if err != nil {
				observability.AssessmentWrites().WithLabelValues("failure").Inc()
				r.logger.Warn().Err(err).
					Uint("submission_id", cmd.SubmissionID).
					Uint("outcome_id", outcomeID).
					Msg("failed to write competency assessment")
			} else {
				observability.AssessmentWrites().WithLabelValues("success").Inc()
			}
			return nil
		})
	}
	_ = group.Wait()

	succeeded := make([]uint, 0, len(targets))
	failed := make([]uint, 0)
	var firstErr error
	for _, outcomeID := range targets {
		if err := results[outcomeID]; err != nil {
			failed = append(failed, outcomeID)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		succeeded = append(succeeded, outcomeID)
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i] < failed[j] })

	return succeeded, failed, firstErr
}

func (r *assessmentRecorder) fail(ctx context.Context, span trace.Span, cmd GradeCommand, recErr *RecordingError) {
	span.RecordError(recErr)
	span.SetStatus(codes.Error, "recording_failed")

	result := "failure"
	if len(recErr.Succeeded) > 0 {
		result = "partial_failure"
	}
	observability.GradingCommits().WithLabelValues(result).Inc()

	r.logger.Error().Err(recErr.Err).
		Uint("submission_id", cmd.SubmissionID).
		Str("stage", string(recErr.Stage)).
		Interface("failed_outcomes", recErr.Failed).
		Msg("grading action not fully recorded")

	r.audit(ctx, cmd, models.ActivityRecordingFailed, map[string]interface{}{
		"stage":              string(recErr.Stage),
		"failed_outcomes":    recErr.Failed,
		"succeeded_outcomes": recErr.Succeeded,
	})
}

func (r *assessmentRecorder) afterRecorded(ctx context.Context, cmd GradeCommand, outcomes []uint, recordedAt time.Time) {
	if r.invalidator != nil {
		if err := r.invalidator.Invalidate(ctx, cmd.StudentID); err != nil {
			r.logger.Warn().Err(err).Uint("student_id", cmd.StudentID).Msg("failed to invalidate mastery cache")
		}
	}

	if r.events != nil {
		event := GradedEvent{
			StudentID:    cmd.StudentID,
			SubmissionID: cmd.SubmissionID,
			AssignmentID: cmd.AssignmentID,
			TeacherID:    cmd.TeacherID,
			Level:        cmd.Level,
			Outcomes:     cmd.Outcomes.Sorted(),
			RecordedAt:   recordedAt,
		}
		if err := r.events.PublishGraded(ctx, event); err != nil {
			r.logger.Warn().Err(err).Uint("submission_id", cmd.SubmissionID).Msg("failed to publish graded event")
		}
	}

	r.audit(ctx, cmd, models.ActivitySubmissionGraded, map[string]interface{}{
		"competency_level": string(cmd.Level),
		"outcomes":         outcomes,
	})
}

func (r *assessmentRecorder) audit(ctx context.Context, cmd GradeCommand, action string, metadata map[string]interface{}) {
	if r.activity == nil {
		return
	}
	entry := ActivityEntry{
		TeacherID:    cmd.TeacherID,
		Action:       action,
		SubmissionID: &cmd.SubmissionID,
		StudentID:    &cmd.StudentID,
		Metadata:     metadata,
	}
	if cmd.AssignmentID > 0 {
		entry.AssignmentID = &cmd.AssignmentID
	}
	if err := r.activity.Record(ctx, entry); err != nil {
		r.logger.Warn().Err(err).Str("action", action).Msg("failed to persist grading activity")
	}
}

// IsRecordingError extracts a RecordingError from err.
func IsRecordingError(err error) (*RecordingError, bool) {
	var recErr *RecordingError
	if errors.As(err, &recErr) {
		return recErr, true
	}
	return nil, false
}
