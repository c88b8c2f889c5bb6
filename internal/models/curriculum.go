package models

import (
	"time"

	"github.com/noah-isme/cbc-grading-api/internal/cbc"
)

// Curriculum types supported by a grade level.
const (
	CurriculumCBC = "CBC"
	Curriculum844 = "8-4-4"
)

// GradeLevel is a school grade such as "Grade 4".
type GradeLevel struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Name           string         `gorm:"size:20;not null" json:"name"`
	CurriculumType string         `gorm:"size:10;not null" json:"curriculum_type"`
	Order          int            `gorm:"uniqueIndex;not null" json:"order"`
	IsActive       bool           `gorm:"not null;default:true" json:"is_active"`
	LearningAreas  []LearningArea `json:"learning_areas,omitempty"`
}

// IsCBC reports whether the grade follows the competency based curriculum.
func (g GradeLevel) IsCBC() bool {
	return g.CurriculumType == CurriculumCBC
}

// LearningArea is the CBC replacement for a subject, scoped to one grade.
type LearningArea struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:100;not null" json:"name"`
	Code         string    `gorm:"size:20;uniqueIndex;not null" json:"code"`
	GradeLevelID uint      `gorm:"not null;index" json:"grade_level_id"`
	Description  string    `gorm:"type:text" json:"description"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Strands      []Strand  `json:"strands,omitempty"`
}

// Strand is a major theme within a learning area.
type Strand struct {
	ID             uint        `gorm:"primaryKey" json:"id"`
	LearningAreaID uint        `gorm:"not null;index" json:"learning_area_id"`
	Name           string      `gorm:"size:200;not null" json:"name"`
	Code           string      `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Order          int         `gorm:"not null" json:"order"`
	SubStrands     []SubStrand `json:"sub_strands,omitempty"`
}

// SubStrand is a specific topic within a strand.
type SubStrand struct {
	ID               uint              `gorm:"primaryKey" json:"id"`
	StrandID         uint              `gorm:"not null;index" json:"strand_id"`
	Name             string            `gorm:"size:200;not null" json:"name"`
	Code             string            `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Order            int               `gorm:"not null" json:"order"`
	LearningOutcomes []LearningOutcome `json:"learning_outcomes,omitempty"`
}

// LearningOutcome is the finest grained assessable unit of the curriculum.
type LearningOutcome struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	SubStrandID uint   `gorm:"not null;index" json:"sub_strand_id"`
	Code        string `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Description string `gorm:"type:text;not null" json:"description"`
	Order       int    `gorm:"not null" json:"order"`
}

// Node converts a fully preloaded learning area into the aggregation tree.
func (a LearningArea) Node() cbc.AreaNode {
	node := cbc.AreaNode{
		ID:           a.ID,
		Code:         a.Code,
		Name:         a.Name,
		GradeLevelID: a.GradeLevelID,
		Strands:      make([]cbc.StrandNode, 0, len(a.Strands)),
	}
	for _, strand := range a.Strands {
		strandNode := cbc.StrandNode{
			ID:         strand.ID,
			Code:       strand.Code,
			Name:       strand.Name,
			SubStrands: make([]cbc.SubStrandNode, 0, len(strand.SubStrands)),
		}
		for _, sub := range strand.SubStrands {
			subNode := cbc.SubStrandNode{
				ID:       sub.ID,
				Code:     sub.Code,
				Name:     sub.Name,
				Outcomes: make([]cbc.OutcomeNode, 0, len(sub.LearningOutcomes)),
			}
			for _, outcome := range sub.LearningOutcomes {
				subNode.Outcomes = append(subNode.Outcomes, cbc.OutcomeNode{
					ID:          outcome.ID,
					Code:        outcome.Code,
					Description: outcome.Description,
				})
			}
			strandNode.SubStrands = append(strandNode.SubStrands, subNode)
		}
		node.Strands = append(node.Strands, strandNode)
	}
	return node
}
