package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/cbc-grading-api/internal/cbc"
)

// Quiz status values for submissions that carry a usable score.
const (
	QuizSubmissionAutoGraded = "auto_graded"
	QuizSubmissionGraded     = "graded"
)

// Quiz is an auto-marked assessment linked to learning outcomes.
type Quiz struct {
	ID               uint                      `gorm:"primaryKey" json:"id"`
	Title            string                    `gorm:"size:255;not null" json:"title"`
	LearningAreaID   *uint                     `gorm:"index" json:"learning_area_id"`
	PrimaryOutcomeID *uint                     `json:"learning_outcome"`
	TestedOutcomeIDs datatypes.JSONSlice[uint] `gorm:"type:json" json:"tested_outcomes"`
	TotalPoints      float64                   `gorm:"not null" json:"total_points"`
}

// PrimaryOutcome returns the legacy outcome link.
func (q Quiz) PrimaryOutcome() *uint {
	return q.PrimaryOutcomeID
}

// TestedOutcomes returns the explicitly tested outcome ids.
func (q Quiz) TestedOutcomes() []uint {
	return q.TestedOutcomeIDs
}

// QuizSubmission is one attempt at a quiz.
type QuizSubmission struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	QuizID      uint      `gorm:"not null;index" json:"quiz"`
	StudentID   uint      `gorm:"not null;index" json:"student"`
	Score       float64   `json:"score"`
	Status      string    `gorm:"size:32;not null" json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
	Quiz        Quiz      `json:"quiz_detail"`
}

// Scored reports whether the attempt has a final score.
func (s QuizSubmission) Scored() bool {
	return s.Status == QuizSubmissionAutoGraded || s.Status == QuizSubmissionGraded
}

// EvidenceItems turns a scored attempt into one evidence item per assessed
// outcome, classified on the shared threshold table.
func (s QuizSubmission) EvidenceItems() []cbc.Evidence {
	if !s.Scored() {
		return nil
	}
	level, err := cbc.Classify(s.Score, s.Quiz.TotalPoints)
	if err != nil {
		return nil
	}
	outcomes := cbc.ResolveOutcomes(s.Quiz).Sorted()
	items := make([]cbc.Evidence, 0, len(outcomes))
	for _, outcomeID := range outcomes {
		items = append(items, cbc.Evidence{
			OutcomeID:  outcomeID,
			Level:      level,
			AssessedAt: s.SubmittedAt,
			Seq:        s.ID,
		})
	}
	return items
}
