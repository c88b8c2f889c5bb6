package models

import (
	"time"

	"gorm.io/datatypes"
)

// Assignment is a piece of graded work. Its assessed outcomes are the tested
// outcomes plus the legacy primary outcome.
type Assignment struct {
	ID               uint                      `gorm:"primaryKey" json:"id"`
	Title            string                    `gorm:"size:255;not null" json:"title"`
	Description      string                    `gorm:"type:text" json:"description"`
	LearningAreaID   *uint                     `gorm:"index" json:"learning_area_id"`
	StrandID         *uint                     `json:"strand_id"`
	SubStrandID      *uint                     `json:"sub_strand_id"`
	PrimaryOutcomeID *uint                     `json:"learning_outcome"`
	TestedOutcomeIDs datatypes.JSONSlice[uint] `gorm:"type:json" json:"tested_outcomes"`
	DueDate          *time.Time                `json:"due_date"`
	CreatedAt        time.Time                 `json:"created_at"`
	UpdatedAt        time.Time                 `json:"updated_at"`
	Submissions      []Submission              `json:"-"`
}

// PrimaryOutcome returns the legacy outcome link.
func (a Assignment) PrimaryOutcome() *uint {
	return a.PrimaryOutcomeID
}

// TestedOutcomes returns the explicitly tested outcome ids.
func (a Assignment) TestedOutcomes() []uint {
	return a.TestedOutcomeIDs
}

// IsPastDue returns true when the assignment deadline has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return a.DueDate != nil && reference.After(*a.DueDate)
}
