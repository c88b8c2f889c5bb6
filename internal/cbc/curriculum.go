package cbc

// OutcomeNode is a learning outcome leaf of the curriculum tree.
type OutcomeNode struct {
	ID          uint   `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

// SubStrandNode groups learning outcomes.
type SubStrandNode struct {
	ID       uint          `json:"id"`
	Code     string        `json:"code"`
	Name     string        `json:"name"`
	Outcomes []OutcomeNode `json:"learning_outcomes"`
}

// StrandNode groups sub-strands.
type StrandNode struct {
	ID         uint            `json:"id"`
	Code       string          `json:"code"`
	Name       string          `json:"name"`
	SubStrands []SubStrandNode `json:"sub_strands"`
}

// AreaNode is a learning area and its full strand tree.
type AreaNode struct {
	ID           uint         `json:"id"`
	Code         string       `json:"code"`
	Name         string       `json:"name"`
	GradeLevelID uint         `json:"grade_level_id"`
	Strands      []StrandNode `json:"strands"`
}

// OutcomePath locates an outcome in the curriculum tree.
type OutcomePath struct {
	OutcomeID      uint
	SubStrandID    uint
	StrandID       uint
	LearningAreaID uint
}

// Curriculum indexes outcome membership across one or more learning areas.
// It is read only once built.
type Curriculum struct {
	areas []AreaNode
	paths map[uint]OutcomePath
}

// NewCurriculum indexes the given learning area trees.
func NewCurriculum(areas ...AreaNode) *Curriculum {
	c := &Curriculum{
		areas: areas,
		paths: make(map[uint]OutcomePath),
	}
	for _, area := range areas {
		for _, strand := range area.Strands {
			for _, sub := range strand.SubStrands {
				for _, outcome := range sub.Outcomes {
					c.paths[outcome.ID] = OutcomePath{
						OutcomeID:      outcome.ID,
						SubStrandID:    sub.ID,
						StrandID:       strand.ID,
						LearningAreaID: area.ID,
					}
				}
			}
		}
	}
	return c
}

// Areas returns the indexed learning areas.
func (c *Curriculum) Areas() []AreaNode {
	if c == nil {
		return nil
	}
	return c.areas
}

// Path returns the location of an outcome.
func (c *Curriculum) Path(outcomeID uint) (OutcomePath, bool) {
	if c == nil {
		return OutcomePath{}, false
	}
	path, ok := c.paths[outcomeID]
	return path, ok
}

// InScope reports whether the outcome sits under scope.
func (c *Curriculum) InScope(outcomeID uint, scope Scope) bool {
	path, ok := c.Path(outcomeID)
	if !ok {
		return false
	}
	switch scope.Kind {
	case ScopeSubStrand:
		return path.SubStrandID == scope.ID
	case ScopeStrand:
		return path.StrandID == scope.ID
	case ScopeLearningArea:
		return path.LearningAreaID == scope.ID
	default:
		return false
	}
}
