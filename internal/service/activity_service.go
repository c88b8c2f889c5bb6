package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/cbc-grading-api/internal/dto"
	"github.com/noah-isme/cbc-grading-api/internal/models"
	"github.com/noah-isme/cbc-grading-api/internal/repository"
)

// ActivityEntry captures the details required to persist an audit entry.
type ActivityEntry struct {
	TeacherID    uint
	Action       string
	AssignmentID *uint
	SubmissionID *uint
	StudentID    *uint
	Metadata     map[string]interface{}
}

// ActivityRecorder defines behaviour for recording grading activity.
type ActivityRecorder interface {
	Record(ctx context.Context, entry ActivityEntry) error
}

// ActivityService exposes methods to query and persist grading activity.
type ActivityService interface {
	ActivityRecorder
	List(ctx context.Context, teacherID uint, req dto.ActivityListRequest) (dto.ActivityListResponse, error)
}

type activityService struct {
	repo      repository.ActivityRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewActivityService constructs the activity service.
func NewActivityService(repo repository.ActivityRepository, validator *validator.Validate, logger zerolog.Logger) ActivityService {
	return &activityService{
		repo:      repo,
		validator: validator,
		logger:    logger.With().Str("component", "activity_service").Logger(),
	}
}

func (s *activityService) Record(ctx context.Context, entry ActivityEntry) error {
	if strings.TrimSpace(entry.Action) == "" {
		return fmt.Errorf("action is required")
	}
	if entry.TeacherID == 0 {
		return fmt.Errorf("teacher is required")
	}

	model := models.GradingActivity{
		TeacherID:    entry.TeacherID,
		Action:       strings.ToLower(strings.TrimSpace(entry.Action)),
		AssignmentID: entry.AssignmentID,
		SubmissionID: entry.SubmissionID,
		StudentID:    entry.StudentID,
		Metadata:     sanitizeMetadata(entry.Metadata),
	}

	if err := s.repo.Create(ctx, &model); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist grading activity")
		return err
	}

	return nil
}

func (s *activityService) List(ctx context.Context, teacherID uint, req dto.ActivityListRequest) (dto.ActivityListResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ActivityListResponse{}, err
	}

	filter := repository.ActivityFilter{
		Page:     req.Page,
		PageSize: req.PageSize,
		Action:   strings.TrimSpace(req.Action),
	}
	if teacherID > 0 {
		filter.TeacherID = &teacherID
	}
	if req.AssignmentID > 0 {
		filter.AssignmentID = &req.AssignmentID
	}

	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.ActivityListResponse{}, err
	}

	responses := make([]dto.ActivityResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, dto.NewActivityResponse(entry))
	}

	pagination := dto.PaginationMeta{
		Page:       maxInt(req.Page, 1),
		PageSize:   req.PageSize,
		TotalItems: total,
	}
	if req.PageSize > 0 {
		pagination.TotalPages = int(math.Ceil(float64(total) / float64(req.PageSize)))
	} else {
		pagination.TotalPages = 1
	}

	return dto.ActivityListResponse{Items: responses, Pagination: pagination}, nil
}

func sanitizeMetadata(metadata map[string]interface{}) datatypes.JSONMap {
	if metadata == nil {
		return datatypes.JSONMap{}
	}

	sanitized := datatypes.JSONMap{}
	for key, value := range metadata {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "token") || strings.Contains(lower, "secret") {
			sanitized[key] = "***"
			continue
		}
		sanitized[key] = value
	}
	return sanitized
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
