// Package backend defines the contract the grading core needs from the school
// records system. It is implemented over HTTP by package client and directly
// over the database by package repository.
package backend

import (
	"context"
	"errors"
	"time"

	"github.com/noah-isme/cbc-grading-api/internal/cbc"
	"github.com/noah-isme/cbc-grading-api/internal/models"
)

// ErrNotFound is wrapped by implementations when a record does not exist.
var ErrNotFound = errors.New("resource not found")

// SubmissionPatch is a partial submission update. Nil fields are left untouched.
type SubmissionPatch struct {
	Status            *string    `json:"status,omitempty"`
	CompetencyLevel   *cbc.Level `json:"competency_level,omitempty"`
	CompetencyComment *string    `json:"competency_comment,omitempty"`
	GradedBy          *uint      `json:"graded_by,omitempty"`
	GradedAt          *time.Time `json:"graded_at,omitempty"`
}

// Columns returns the database columns set by the patch.
func (p SubmissionPatch) Columns() map[string]interface{} {
	columns := make(map[string]interface{}, 5)
	if p.Status != nil {
		columns["status"] = *p.Status
	}
	if p.CompetencyLevel != nil {
		columns["competency_level"] = string(*p.CompetencyLevel)
	}
	if p.CompetencyComment != nil {
		columns["competency_comment"] = *p.CompetencyComment
	}
	if p.GradedBy != nil {
		columns["graded_by"] = *p.GradedBy
	}
	if p.GradedAt != nil {
		columns["graded_at"] = *p.GradedAt
	}
	return columns
}

// Empty reports whether the patch changes nothing.
func (p SubmissionPatch) Empty() bool {
	return len(p.Columns()) == 0
}

// AssessmentQuery narrows assessment history to one student and learning area.
type AssessmentQuery struct {
	StudentID      uint
	LearningAreaID uint
}

// GradingBackend is what the grading session and recorder need.
type GradingBackend interface {
	GetAssignment(ctx context.Context, id uint) (models.Assignment, error)
	ListSubmissions(ctx context.Context, assignmentID uint) ([]models.Submission, error)
	// CreateAssessment always inserts a new row; it never merges with history.
	CreateAssessment(ctx context.Context, assessment *models.CompetencyAssessment) error
	PatchSubmission(ctx context.Context, id uint, patch SubmissionPatch) error
}

// ReportingBackend is what mastery reporting needs.
type ReportingBackend interface {
	GetCurriculum(ctx context.Context, learningAreaID uint) (cbc.AreaNode, error)
	ListAssessments(ctx context.Context, query AssessmentQuery) ([]models.CompetencyAssessment, error)
	ListQuizSubmissions(ctx context.Context, query AssessmentQuery) ([]models.QuizSubmission, error)
}

// Backend is the full collaborator contract.
type Backend interface {
	GradingBackend
	ReportingBackend
}
