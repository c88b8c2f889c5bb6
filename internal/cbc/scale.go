package cbc

import (
	"errors"
	"math"
)

// ErrInvalidInput reports malformed input to the competency scale.
var ErrInvalidInput = errors.New("invalid competency input")

// Threshold is the inclusive lower percentage bound for a level.
type Threshold struct {
	Level      Level
	MinPercent float64
}

// Thresholds is the single score to level table, ordered from best to worst.
// Every percentage based classification in the service goes through it.
var Thresholds = []Threshold{
	{Level: LevelEE, MinPercent: 90},
	{Level: LevelME, MinPercent: 70},
	{Level: LevelAE, MinPercent: 40},
	{Level: LevelBE, MinPercent: 0},
}

// Percentage returns 100*score/total. It returns 0 when total is not positive.
func Percentage(score, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return 100 * score / total
}

// Classify maps a raw score out of total onto the competency scale.
//
// A non-positive total, a negative score or a NaN input yields LevelBE together
// with ErrInvalidInput, so reporting callers may keep the level and write paths
// may reject the input.
func Classify(score, total float64) (Level, error) {
	if math.IsNaN(score) || math.IsNaN(total) || total <= 0 || score < 0 {
		return LevelBE, ErrInvalidInput
	}
	return ClassifyPercentage(Percentage(score, total)), nil
}

// ClassifyOrBelow is Classify without the error, for reporting views.
func ClassifyOrBelow(score, total float64) Level {
	level, _ := Classify(score, total)
	return level
}

// ClassifyPercentage maps an already computed percentage onto the scale.
func ClassifyPercentage(percent float64) Level {
	for _, threshold := range Thresholds {
		if percent >= threshold.MinPercent {
			return threshold.Level
		}
	}
	return LevelBE
}
