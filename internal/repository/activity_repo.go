package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/cbc-grading-api/internal/models"
)

// ActivityFilter narrows grading activity queries.
type ActivityFilter struct {
	Page         int
	PageSize     int
	TeacherID    *uint
	AssignmentID *uint
	Action       string
}

// ActivityRepository persists the grading audit trail.
type ActivityRepository interface {
	Create(ctx context.Context, entry *models.GradingActivity) error
	List(ctx context.Context, filter ActivityFilter) ([]models.GradingActivity, int64, error)
}

type activityRepository struct {
	db *gorm.DB
}

// NewActivityRepository constructs the activity repository.
func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Create(ctx context.Context, entry *models.GradingActivity) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *activityRepository) List(ctx context.Context, filter ActivityFilter) ([]models.GradingActivity, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.GradingActivity{})

	if filter.TeacherID != nil {
		query = query.Where("teacher_id = ?", *filter.TeacherID)
	}

	if filter.AssignmentID != nil {
		query = query.Where("assignment_id = ?", *filter.AssignmentID)
	}

	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		offset := (page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	var entries []models.GradingActivity
	if err := query.Order("created_at DESC").Order("id DESC").Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
