package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/cbc-grading-api/internal/models"
)

// QuizSubmissionRepository reads scored quiz attempts.
type QuizSubmissionRepository interface {
	ListScored(ctx context.Context, studentID uint, learningAreaID *uint) ([]models.QuizSubmission, error)
}

type quizSubmissionRepository struct {
	db *gorm.DB
}

// NewQuizSubmissionRepository constructs the repository.
func NewQuizSubmissionRepository(db *gorm.DB) QuizSubmissionRepository {
	return &quizSubmissionRepository{db: db}
}

func (r *quizSubmissionRepository) ListScored(ctx context.Context, studentID uint, learningAreaID *uint) ([]models.QuizSubmission, error) {
	query := r.db.WithContext(ctx).Model(&models.QuizSubmission{}).
		Preload("Quiz").
		Where("quiz_submissions.student_id = ?", studentID).
		Where("quiz_submissions.status IN ?", []string{models.QuizSubmissionAutoGraded, models.QuizSubmissionGraded})

	if learningAreaID != nil {
		query = query.
			Joins("JOIN quizzes ON quizzes.id = quiz_submissions.quiz_id").
			Where("quizzes.learning_area_id = ?", *learningAreaID)
	}

	var submissions []models.QuizSubmission
	if err := query.Order("quiz_submissions.submitted_at DESC").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}
