package models

import (
	"time"

	"github.com/noah-isme/cbc-grading-api/internal/cbc"
)

// Submission is a student's handed-in work for an assignment.
type Submission struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	AssignmentID      uint       `gorm:"not null;index" json:"assignment"`
	StudentID         uint       `gorm:"not null;index" json:"student"`
	Status            string     `gorm:"size:32;not null" json:"status"`
	CompetencyLevel   *cbc.Level `gorm:"size:2" json:"competency_level"`
	CompetencyComment string     `gorm:"type:text" json:"competency_comment"`
	Content           string     `gorm:"type:text" json:"content"`
	FileURL           string     `gorm:"size:512" json:"file"`
	SubmittedAt       time.Time  `json:"submitted_at"`
	GradedAt          *time.Time `json:"graded_at"`
	GradedBy          *uint      `json:"graded_by"`
	UpdatedAt         time.Time  `json:"updated_at"`
	Student           *Student   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"student_detail,omitempty"`
}

const (
	// SubmissionStatusPending indicates the submission awaits a teacher decision.
	SubmissionStatusPending = "pending"
	// SubmissionStatusGraded indicates a competency level has been recorded.
	SubmissionStatusGraded = "graded"
)

// IsGraded reports whether a level has been recorded for the submission.
func (s Submission) IsGraded() bool {
	return s.Status == SubmissionStatusGraded
}
