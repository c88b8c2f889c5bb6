package cbc

import "sort"

// Assessable is anything that assesses learning outcomes: assignments and quizzes.
type Assessable interface {
	// PrimaryOutcome returns the legacy single outcome link, if any.
	PrimaryOutcome() *uint
	// TestedOutcomes returns the explicitly tested outcome ids.
	TestedOutcomes() []uint
}

// OutcomeSet is a duplicate free set of learning outcome ids.
type OutcomeSet map[uint]struct{}

// NewOutcomeSet builds a set from ids, collapsing duplicates.
func NewOutcomeSet(ids ...uint) OutcomeSet {
	set := make(OutcomeSet, len(ids))
	for _, id := range ids {
		set.Add(id)
	}
	return set
}

// Add inserts id. Zero ids are ignored.
func (s OutcomeSet) Add(id uint) {
	if id == 0 {
		return
	}
	s[id] = struct{}{}
}

// Contains reports membership.
func (s OutcomeSet) Contains(id uint) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of outcomes.
func (s OutcomeSet) Len() int {
	return len(s)
}

// Sorted returns the ids in ascending order.
func (s OutcomeSet) Sorted() []uint {
	ids := make([]uint, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Equal reports whether both sets hold the same ids.
func (s OutcomeSet) Equal(other OutcomeSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Contains(id) {
			return false
		}
	}
	return true
}

// ResolveOutcomes returns the full set of outcomes assessed by item: the tested
// outcomes plus the primary outcome when it is not already among them. A nil
// item or one without outcome links resolves to the empty set.
func ResolveOutcomes(item Assessable) OutcomeSet {
	if item == nil {
		return OutcomeSet{}
	}
	set := NewOutcomeSet(item.TestedOutcomes()...)
	if primary := item.PrimaryOutcome(); primary != nil && !set.Contains(*primary) {
		set.Add(*primary)
	}
	return set
}
