package dto

import (
	"time"

	"github.com/noah-isme/cbc-grading-api/internal/cbc"
)

// GradingSessionOpenRequest opens a grading surface for an assignment.
type GradingSessionOpenRequest struct {
	AssignmentID uint `json:"assignment_id" validate:"required,gt=0"`
}

// GradingSelectRequest stores a pending level choice for a student.
type GradingSelectRequest struct {
	StudentID uint    `json:"student_id" validate:"required,gt=0"`
	Level     string  `json:"level" validate:"required,oneof=EE ME AE BE ee me ae be"`
	Comment   *string `json:"comment" validate:"omitempty,max=2000"`
}

// GradingCommitRequest confirms the current student's pending choice.
type GradingCommitRequest struct {
	Advance bool `json:"advance"`
}

// GradingKeyRequest forwards a keystroke from the grading surface.
type GradingKeyRequest struct {
	Key         string `json:"key" validate:"required,max=32"`
	Ctrl        bool   `json:"ctrl"`
	Meta        bool   `json:"meta"`
	Shift       bool   `json:"shift"`
	InTextField bool   `json:"in_text_field"`
}

// GradingQueueItem is one pending student in the session queue.
type GradingQueueItem struct {
	StudentID     uint       `json:"student_id"`
	StudentName   string     `json:"student_name"`
	SubmissionID  uint       `json:"submission_id"`
	SubmittedAt   time.Time  `json:"submitted_at"`
	SelectedLevel *cbc.Level `json:"selected_level"`
	Comment       string     `json:"comment"`
	InFlight      bool       `json:"in_flight"`
}

// GradingCurrentItem is the entry shown to the teacher.
type GradingCurrentItem struct {
	GradingQueueItem
	Content        string     `json:"content"`
	FileURL        string     `json:"file_url"`
	Graded         bool       `json:"graded"`
	GradedLevel    *cbc.Level `json:"graded_level"`
	FailedOutcomes []uint     `json:"failed_outcomes,omitempty"`
}

// GradingSessionResponse is a snapshot of a grading session.
type GradingSessionResponse struct {
	ID              string              `json:"id"`
	AssignmentID    uint                `json:"assignment_id"`
	AssignmentTitle string              `json:"assignment_title"`
	State           string              `json:"state"`
	Outcomes        []uint              `json:"outcomes"`
	Queue           []GradingQueueItem  `json:"queue"`
	Current         *GradingCurrentItem `json:"current"`
	Position        int                 `json:"position"`
	Remaining       int                 `json:"remaining"`
	GradedCount     int                 `json:"graded_count"`
	LastError       string              `json:"last_error,omitempty"`
	OpenedAt        time.Time           `json:"opened_at"`
}

// GradingKeyResponse reports what a keystroke did.
type GradingKeyResponse struct {
	Action  string                 `json:"action"`
	Session GradingSessionResponse `json:"session"`
}

// RecordingFailureResponse lists the parts of a grading action that failed.
type RecordingFailureResponse struct {
	Stage             string                 `json:"stage"`
	SucceededOutcomes []uint                 `json:"succeeded_outcomes"`
	FailedOutcomes    []uint                 `json:"failed_outcomes"`
	Session           GradingSessionResponse `json:"session"`
}

// LevelResponse describes one level of the competency scale.
type LevelResponse struct {
	Code       cbc.Level `json:"code"`
	Label      string    `json:"label"`
	MinPercent float64   `json:"min_percent"`
	Shortcut   string    `json:"shortcut"`
	Mastered   bool      `json:"mastered"`
}

// ClassifyResponse is the result of classifying a raw score.
type ClassifyResponse struct {
	Score      float64   `json:"score"`
	Total      float64   `json:"total"`
	Percentage float64   `json:"percentage"`
	Level      cbc.Level `json:"level"`
	Label      string    `json:"label"`
}

// NewLevelResponses describes the scale best first.
func NewLevelResponses() []LevelResponse {
	shortcuts := map[cbc.Level]string{}
	for _, key := range []string{"1", "2", "3", "4"} {
		if level, ok := cbc.LevelForKey(key); ok {
			shortcuts[level] = key
		}
	}
	responses := make([]LevelResponse, 0, len(cbc.Thresholds))
	for _, threshold := range cbc.Thresholds {
		responses = append(responses, LevelResponse{
			Code:       threshold.Level,
			Label:      threshold.Level.Label(),
			MinPercent: threshold.MinPercent,
			Shortcut:   shortcuts[threshold.Level],
			Mastered:   cbc.Mastered(threshold.Level),
		})
	}
	return responses
}
