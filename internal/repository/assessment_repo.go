package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/cbc-grading-api/internal/models"
)

// AssessmentFilter narrows competency assessment queries.
type AssessmentFilter struct {
	StudentID      *uint
	LearningAreaID *uint
	SubmissionID   *uint
}

// AssessmentRepository persists the append-only competency assessment log.
type AssessmentRepository interface {
	Create(ctx context.Context, assessment *models.CompetencyAssessment) error
	List(ctx context.Context, filter AssessmentFilter) ([]models.CompetencyAssessment, error)
}

type assessmentRepository struct {
	db *gorm.DB
}

// NewAssessmentRepository constructs the assessment repository.
func NewAssessmentRepository(db *gorm.DB) AssessmentRepository {
	return &assessmentRepository{db: db}
}

func (r *assessmentRepository) Create(ctx context.Context, assessment *models.CompetencyAssessment) error {
	return r.db.WithContext(ctx).Create(assessment).Error
}

func (r *assessmentRepository) List(ctx context.Context, filter AssessmentFilter) ([]models.CompetencyAssessment, error) {
	query := r.db.WithContext(ctx).Model(&models.CompetencyAssessment{})

	if filter.StudentID != nil {
		query = query.Where("competency_assessments.student_id = ?", *filter.StudentID)
	}

	if filter.SubmissionID != nil {
		query = query.Where("competency_assessments.submission_id = ?", *filter.SubmissionID)
	}

	if filter.LearningAreaID != nil {
		query = query.
			Joins("JOIN learning_outcomes ON learning_outcomes.id = competency_assessments.learning_outcome_id").
			Joins("JOIN sub_strands ON sub_strands.id = learning_outcomes.sub_strand_id").
			Joins("JOIN strands ON strands.id = sub_strands.strand_id").
			Where("strands.learning_area_id = ?", *filter.LearningAreaID)
	}

	var assessments []models.CompetencyAssessment
	if err := query.Order("competency_assessments.assessed_at DESC").Order("competency_assessments.id DESC").Find(&assessments).Error; err != nil {
		return nil, err
	}

	return assessments, nil
}
