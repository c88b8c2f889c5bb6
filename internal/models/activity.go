package models

import (
	"time"

	"gorm.io/datatypes"
)

// Grading activity actions.
const (
	ActivitySubmissionGraded = "submission.graded"
	ActivityRecordingFailed  = "submission.grading_failed"
	ActivitySessionOpened    = "session.opened"
	ActivitySessionCompleted = "session.completed"
)

// GradingActivity is an audit entry for grading actions taken by a teacher.
type GradingActivity struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	TeacherID    uint              `gorm:"not null;index" json:"teacher_id"`
	Action       string            `gorm:"size:64;not null;index" json:"action"`
	AssignmentID *uint             `gorm:"index" json:"assignment_id"`
	SubmissionID *uint             `json:"submission_id"`
	StudentID    *uint             `json:"student_id"`
	Metadata     datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt    time.Time         `json:"created_at"`
}
