package models

import (
	"time"

	"github.com/noah-isme/cbc-grading-api/internal/cbc"
)

// CompetencyAssessment records that a student demonstrated a level for an
// outcome on one occasion. Rows are append-only: regrading adds rows.
type CompetencyAssessment struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	StudentID         uint      `gorm:"not null;index:idx_assessment_student_outcome" json:"student"`
	LearningOutcomeID uint      `gorm:"not null;index:idx_assessment_student_outcome" json:"learning_outcome"`
	CompetencyLevel   cbc.Level `gorm:"size:2;not null" json:"competency_level"`
	TeacherID         uint      `gorm:"not null" json:"teacher"`
	TeacherComment    string    `gorm:"type:text" json:"teacher_comment"`
	Evidence          string    `gorm:"type:text" json:"evidence"`
	SubmissionID      *uint     `gorm:"index" json:"assignment_submission"`
	AssessedAt        time.Time `gorm:"index;not null" json:"assessment_date"`
}

// EvidenceItem converts the row for mastery aggregation.
func (a CompetencyAssessment) EvidenceItem() cbc.Evidence {
	return cbc.Evidence{
		OutcomeID:  a.LearningOutcomeID,
		Level:      a.CompetencyLevel,
		AssessedAt: a.AssessedAt,
		Seq:        a.ID,
	}
}
