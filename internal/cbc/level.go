// Package cbc implements the Competency-Based Curriculum grading model: the
// four-level competency scale, learning outcome resolution for assessable
// work, and mastery aggregation over the curriculum tree.
package cbc

import (
	"fmt"
	"strings"
)

// Level is a CBC competency level. Levels are totally ordered BE < AE < ME < EE.
type Level string

const (
	// LevelBE is Below Expectations.
	LevelBE Level = "BE"
	// LevelAE is Approaching Expectations.
	LevelAE Level = "AE"
	// LevelME is Meeting Expectations.
	LevelME Level = "ME"
	// LevelEE is Exceeding Expectations.
	LevelEE Level = "EE"
)

// Levels lists every level from worst to best.
var Levels = []Level{LevelBE, LevelAE, LevelME, LevelEE}

var levelRanks = map[Level]int{
	LevelBE: 1,
	LevelAE: 2,
	LevelME: 3,
	LevelEE: 4,
}

var levelLabels = map[Level]string{
	LevelBE: "Below Expectations",
	LevelAE: "Approaching Expectations",
	LevelME: "Meeting Expectations",
	LevelEE: "Exceeding Expectations",
}

// ParseLevel converts a level code such as "me" or " EE " into a Level.
func ParseLevel(value string) (Level, error) {
	level := Level(strings.ToUpper(strings.TrimSpace(value)))
	if !level.Valid() {
		return "", fmt.Errorf("%w: unknown competency level %q", ErrInvalidInput, value)
	}
	return level, nil
}

// Valid reports whether the level is one of the four scale codes.
func (l Level) Valid() bool {
	_, ok := levelRanks[l]
	return ok
}

// Rank returns the ordinal position of the level, 1 for BE through 4 for EE.
// Unknown levels rank 0.
func (l Level) Rank() int {
	return levelRanks[l]
}

// Less reports whether l is strictly below other on the scale.
func (l Level) Less(other Level) bool {
	return l.Rank() < other.Rank()
}

// Label returns the human readable name of the level.
func (l Level) Label() string {
	return levelLabels[l]
}

func (l Level) String() string {
	return string(l)
}

// Mastered reports whether the level counts towards mastery (ME or EE).
func Mastered(level Level) bool {
	return level.Rank() >= LevelME.Rank()
}

// shortcutLevels maps the grading keyboard digits to levels, best first.
var shortcutLevels = map[string]Level{
	"1": LevelEE,
	"2": LevelME,
	"3": LevelAE,
	"4": LevelBE,
}

// LevelForKey returns the level bound to a grading shortcut digit.
func LevelForKey(key string) (Level, bool) {
	level, ok := shortcutLevels[key]
	return level, ok
}
