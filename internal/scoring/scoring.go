// Package scoring computes points, streaks and multipliers for answers.
// Everything here is pure: the same inputs always produce the same outcome.
package scoring

import (
	"math"

	"quiz-lobby-service/internal/domain"
)

// Rules holds the tunable scoring constants.
type Rules struct {
	BasePoints      int
	TimeBonusWeight float64
	MultiplierCap   int
	StreakStep      int
}

// DefaultRules returns the constants used when none are configured.
func DefaultRules() Rules {
	return Rules{
		BasePoints:      100,
		TimeBonusWeight: 1.0,
		MultiplierCap:   5,
		StreakStep:      1,
	}
}

// Input describes one player's answer (or absence of one) to a question.
type Input struct {
	Question domain.Question
	// Choice is nil when the player did not answer.
	Choice                *int
	TimeRemainingFraction float64
	Multiplier            int
	Streak                int
}

// Outcome is the result of scoring an Input.
type Outcome struct {
	Correct    bool
	Points     int
	Streak     int
	Multiplier int
}

// Score applies the rules to an answer.
func (r Rules) Score(in Input) Outcome {
	correct := in.Choice != nil && *in.Choice == in.Question.CorrectChoiceIndex
	if !correct {
		return Outcome{Multiplier: 1}
	}

	multiplier := in.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	fraction := clamp(in.TimeRemainingFraction)
	timeBonus := int(math.Round(float64(r.BasePoints) * fraction * r.TimeBonusWeight))

	streak := in.Streak + 1
	return Outcome{
		Correct:    true,
		Points:     (r.BasePoints + timeBonus) * multiplier,
		Streak:     streak,
		Multiplier: r.multiplierFor(streak),
	}
}

func (r Rules) multiplierFor(streak int) int {
	step := r.StreakStep
	if step < 1 {
		step = 1
	}
	limit := r.MultiplierCap
	if limit < 1 {
		limit = 1
	}
	return min(limit, 1+streak/step)
}

// RemainingFraction returns the share of the answer window left, in [0, 1].
func RemainingFraction(remaining, window float64) float64 {
	if window <= 0 {
		return 0
	}
	return clamp(remaining / window)
}

func clamp(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
