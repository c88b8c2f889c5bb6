package models

import "time"

// Student is a learner enrolled in the school.
type Student struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	AdmissionNo  string    `gorm:"size:64;uniqueIndex" json:"admission_number"`
	GradeLevelID *uint     `json:"grade_level_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
