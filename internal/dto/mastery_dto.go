package dto

import (
	"time"

	"github.com/noah-isme/cbc-grading-api/internal/cbc"
)

// MasteryRequest selects the student and learning area for a progress report.
type MasteryRequest struct {
	StudentID      uint `validate:"required,gt=0"`
	LearningAreaID uint `validate:"required,gt=0"`
}

// MasteryResponse is a student's progress report for one learning area.
type MasteryResponse struct {
	StudentID     uint           `json:"student_id"`
	Report        cbc.AreaReport `json:"report"`
	EvidenceCount int            `json:"evidence_count"`
	GeneratedAt   time.Time      `json:"generated_at"`
}
