package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/cbc-grading-api/internal/backend"
	"github.com/noah-isme/cbc-grading-api/internal/cbc"
	"github.com/noah-isme/cbc-grading-api/internal/models"
)

// GradingStore implements backend.Backend directly over the school database.
type GradingStore struct {
	assignments AssignmentRepository
	submissions SubmissionRepository
	assessments AssessmentRepository
	curriculum  CurriculumRepository
	quizzes     QuizSubmissionRepository
}

var _ backend.Backend = (*GradingStore)(nil)

// NewGradingStore wires the repositories that back the grading core.
func NewGradingStore(db *gorm.DB) *GradingStore {
	return &GradingStore{
		assignments: NewAssignmentRepository(db),
		submissions: NewSubmissionRepository(db),
		assessments: NewAssessmentRepository(db),
		curriculum:  NewCurriculumRepository(db),
		quizzes:     NewQuizSubmissionRepository(db),
	}
}

func (s *GradingStore) GetAssignment(ctx context.Context, id uint) (models.Assignment, error) {
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		return models.Assignment{}, notFound(err, "assignment", id)
	}
	return assignment, nil
}

func (s *GradingStore) ListSubmissions(ctx context.Context, assignmentID uint) ([]models.Submission, error) {
	if _, err := s.assignments.GetByID(ctx, assignmentID); err != nil {
		return nil, notFound(err, "assignment", assignmentID)
	}
	return s.submissions.List(ctx, SubmissionFilter{AssignmentID: &assignmentID})
}

func (s *GradingStore) CreateAssessment(ctx context.Context, assessment *models.CompetencyAssessment) error {
	assessment.ID = 0
	return s.assessments.Create(ctx, assessment)
}

func (s *GradingStore) PatchSubmission(ctx context.Context, id uint, patch backend.SubmissionPatch) error {
	if patch.Empty() {
		return nil
	}
	if err := s.submissions.UpdateColumns(ctx, id, patch.Columns()); err != nil {
		return notFound(err, "submission", id)
	}
	return nil
}

func (s *GradingStore) ListAssessments(ctx context.Context, query backend.AssessmentQuery) ([]models.CompetencyAssessment, error) {
	filter := AssessmentFilter{StudentID: &query.StudentID}
	if query.LearningAreaID > 0 {
		filter.LearningAreaID = &query.LearningAreaID
	}
	return s.assessments.List(ctx, filter)
}

func (s *GradingStore) GetCurriculum(ctx context.Context, learningAreaID uint) (cbc.AreaNode, error) {
	area, err := s.curriculum.GetLearningAreaTree(ctx, learningAreaID)
	if err != nil {
		return cbc.AreaNode{}, notFound(err, "learning area", learningAreaID)
	}
	return area.Node(), nil
}

func (s *GradingStore) ListQuizSubmissions(ctx context.Context, query backend.AssessmentQuery) ([]models.QuizSubmission, error) {
	var area *uint
	if query.LearningAreaID > 0 {
		area = &query.LearningAreaID
	}
	return s.quizzes.ListScored(ctx, query.StudentID, area)
}

func notFound(err error, resource string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %d: %w", resource, id, backend.ErrNotFound)
	}
	return err
}
