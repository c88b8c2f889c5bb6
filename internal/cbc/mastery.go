package cbc

import (
	"math"
	"time"
)

// ScopeKind names a level of the curriculum tree used for aggregation.
type ScopeKind string

const (
	ScopeSubStrand    ScopeKind = "sub_strand"
	ScopeStrand       ScopeKind = "strand"
	ScopeLearningArea ScopeKind = "learning_area"
)

// Scope selects a node of the curriculum tree.
type Scope struct {
	Kind ScopeKind
	ID   uint
}

// SubStrand returns the scope for a sub-strand.
func SubStrand(id uint) Scope { return Scope{Kind: ScopeSubStrand, ID: id} }

// Strand returns the scope for a strand.
func Strand(id uint) Scope { return Scope{Kind: ScopeStrand, ID: id} }

// LearningArea returns the scope for a learning area.
func LearningArea(id uint) Scope { return Scope{Kind: ScopeLearningArea, ID: id} }

// Evidence is one observed level for an outcome. Seq breaks ties between
// evidence recorded at the same instant; higher Seq is more recent.
type Evidence struct {
	OutcomeID  uint
	Level      Level
	AssessedAt time.Time
	Seq        uint
}

func (e Evidence) newerThan(other Evidence) bool {
	if e.AssessedAt.Equal(other.AssessedAt) {
		return e.Seq > other.Seq
	}
	return e.AssessedAt.After(other.AssessedAt)
}

// Mastery is the mastered share of assessed outcomes in a scope.
type Mastery struct {
	Total      int `json:"total"`
	Mastered   int `json:"mastered"`
	Percentage int `json:"percentage"`
}

// NewMastery computes the rounded percentage, zero when total is zero.
func NewMastery(mastered, total int) Mastery {
	m := Mastery{Total: total, Mastered: mastered}
	if total > 0 {
		m.Percentage = int(math.Round(100 * float64(mastered) / float64(total)))
	}
	return m
}

// Add combines two masteries by outcome count.
func (m Mastery) Add(other Mastery) Mastery {
	return NewMastery(m.Mastered+other.Mastered, m.Total+other.Total)
}

// Breakdown counts outcomes by their latest level.
type Breakdown map[Level]int

// CleanEvidence drops entries without an outcome or with an unknown level and
// reports how many were dropped.
func CleanEvidence(evidence []Evidence) ([]Evidence, int) {
	valid := make([]Evidence, 0, len(evidence))
	for _, item := range evidence {
		if item.OutcomeID == 0 || !item.Level.Valid() {
			continue
		}
		valid = append(valid, item)
	}
	return valid, len(evidence) - len(valid)
}

// LatestByOutcome keeps the most recent valid evidence for each outcome.
func LatestByOutcome(evidence []Evidence) map[uint]Evidence {
	valid, _ := CleanEvidence(evidence)
	latest := make(map[uint]Evidence, len(valid))
	for _, item := range valid {
		current, ok := latest[item.OutcomeID]
		if !ok || item.newerThan(current) {
			latest[item.OutcomeID] = item
		}
	}
	return latest
}

// Aggregate rolls the evidence up into a mastery figure for scope. Total is
// the number of distinct outcomes in scope with at least one assessment and
// Mastered those whose latest level is ME or EE. Wider scopes are weighted by
// outcome count, never by averaging child percentages.
func Aggregate(evidence []Evidence, curriculum *Curriculum, scope Scope) Mastery {
	return aggregateLatest(LatestByOutcome(evidence), curriculum, scope)
}

// BreakdownFor counts latest levels of in-scope outcomes.
func BreakdownFor(evidence []Evidence, curriculum *Curriculum, scope Scope) Breakdown {
	breakdown := Breakdown{}
	for outcomeID, item := range LatestByOutcome(evidence) {
		if curriculum.InScope(outcomeID, scope) {
			breakdown[item.Level]++
		}
	}
	return breakdown
}

func aggregateLatest(latest map[uint]Evidence, curriculum *Curriculum, scope Scope) Mastery {
	total, mastered := 0, 0
	for outcomeID, item := range latest {
		if !curriculum.InScope(outcomeID, scope) {
			continue
		}
		total++
		if Mastered(item.Level) {
			mastered++
		}
	}
	return NewMastery(mastered, total)
}
