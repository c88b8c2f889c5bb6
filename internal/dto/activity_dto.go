package dto

import (
	"time"

	"github.com/noah-isme/cbc-grading-api/internal/models"
)

// ActivityListRequest captures query options for the grading audit trail.
type ActivityListRequest struct {
	Page         int    `query:"page" validate:"omitempty,min=1"`
	PageSize     int    `query:"page_size" validate:"omitempty,min=1,max=100"`
	AssignmentID uint   `query:"assignment_id"`
	Action       string `query:"action" validate:"omitempty,max=64"`
}

// PaginationMeta describes pagination details.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// ActivityResponse serialises a grading activity entry.
type ActivityResponse struct {
	ID           uint                   `json:"id"`
	TeacherID    uint                   `json:"teacher_id"`
	Action       string                 `json:"action"`
	AssignmentID *uint                  `json:"assignment_id"`
	SubmissionID *uint                  `json:"submission_id"`
	StudentID    *uint                  `json:"student_id"`
	Metadata     map[string]interface{} `json:"metadata"`
	CreatedAt    time.Time              `json:"created_at"`
}

// ActivityListResponse wraps a page of activity entries.
type ActivityListResponse struct {
	Items      []ActivityResponse `json:"items"`
	Pagination PaginationMeta     `json:"pagination"`
}

// NewActivityResponse converts the model into its API shape.
func NewActivityResponse(model models.GradingActivity) ActivityResponse {
	metadata := map[string]interface{}{}
	for key, value := range model.Metadata {
		metadata[key] = value
	}
	return ActivityResponse{
		ID:           model.ID,
		TeacherID:    model.TeacherID,
		Action:       model.Action,
		AssignmentID: model.AssignmentID,
		SubmissionID: model.SubmissionID,
		StudentID:    model.StudentID,
		Metadata:     metadata,
		CreatedAt:    model.CreatedAt,
	}
}
