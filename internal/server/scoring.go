package server

import (
	"math"
	"unicode/utf8"
)

const (
	lengthModifier    = 1.25
	newLetterModifier = 1.5
	missedPenaltyRate = -0.25
)

type durationBucket struct {
	threshold float64
	modifier  float64
}

// Checked in ascending threshold order; the smallest matching bucket wins.
var durationModifiers = []durationBucket{
	{5, 1.8},
	{10, 1.5},
	{15, 1.2},
}

// calculateScore scores one completed turn. A nil word is a timed-out turn
// and scores a penalty proportional to the time wasted; an empty string is
// a malformed submission and is rejected.
//
// Word scores are rounded to two decimals and then truncated toward zero,
// so the result is always integer-valued (matching int(round(x, 2))).
func calculateScore(word *string, duration float64, isNewLetterUsed bool) (float64, error) {
	if math.IsNaN(duration) || duration < 0 {
		return 0, errValidation("duration must be a non-negative number")
	}
	if word == nil {
		return missedPenaltyRate * duration, nil
	}
	if *word == "" {
		return 0, errValidation("word must not be empty")
	}
	score := float64(utf8.RuneCountInString(*word)) * lengthModifier
	for _, bucket := range durationModifiers {
		if duration <= bucket.threshold {
			score *= bucket.modifier
			break
		}
	}
	if isNewLetterUsed {
		score *= newLetterModifier
	}
	return math.Trunc(roundTo(score, 2)), nil
}

func roundTo(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(value*factor) / factor
}
