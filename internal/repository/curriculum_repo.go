package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/cbc-grading-api/internal/models"
)

// CurriculumRepository reads the grade → area → strand → sub-strand → outcome tree.
type CurriculumRepository interface {
	GetLearningAreaTree(ctx context.Context, id uint) (models.LearningArea, error)
}

type curriculumRepository struct {
	db *gorm.DB
}

// NewCurriculumRepository constructs the curriculum repository.
func NewCurriculumRepository(db *gorm.DB) CurriculumRepository {
	return &curriculumRepository{db: db}
}

func (r *curriculumRepository) GetLearningAreaTree(ctx context.Context, id uint) (models.LearningArea, error) {
	var area models.LearningArea
	err := r.db.WithContext(ctx).
		Preload("Strands", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("strands.\"order\" ASC")
		}).
		Preload("Strands.SubStrands", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("sub_strands.\"order\" ASC")
		}).
		Preload("Strands.SubStrands.LearningOutcomes", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("learning_outcomes.\"order\" ASC")
		}).
		First(&area, id).Error
	if err != nil {
		return models.LearningArea{}, err
	}

	return area, nil
}
