package guardrail

import (
	"fmt"

	"interview-service/internal/policy"
)

// Candidate is one piece of generator output: a question or follow-up that
// has not yet been checked against the level policy.
type Candidate struct {
	Question   string            `json:"question"`
	Topic      string            `json:"topic"`
	Difficulty policy.Difficulty `json:"difficulty"`
	LevelScore *float64          `json:"level_score,omitempty"`
}

// ValidationResult reports whether a candidate satisfies the level policy
// and, when it does not, what the corrected values would be.
type ValidationResult struct {
	Valid               bool
	Reason              string
	CorrectedDifficulty policy.Difficulty
	CorrectedLevelScore float64
}

// Validate runs the two policy checks independently: difficulty label
// membership and, when a numeric level score is present, band containment.
// A candidate with no level score passes the band check.
func Validate(c *Candidate, level policy.Level) ValidationResult {
	result := ValidationResult{Valid: true, CorrectedDifficulty: c.Difficulty}
	if c.LevelScore != nil {
		result.CorrectedLevelScore = *c.LevelScore
	}

	if !policy.AllowsDifficulty(c.Difficulty, level) {
		result.Valid = false
		result.Reason = fmt.Sprintf("difficulty %q not allowed for level %q", c.Difficulty, level)
		result.CorrectedDifficulty = policy.ClampDifficulty(c.Difficulty, level)
	}

	if c.LevelScore != nil {
		band := policy.ConfigFor(level).Band
		if *c.LevelScore < band.Min || *c.LevelScore > band.Max {
			result.Valid = false
			if result.Reason != "" {
				result.Reason += "; "
			}
			result.Reason += fmt.Sprintf("level score %.1f outside band [%.0f,%.0f]", *c.LevelScore, band.Min, band.Max)
			result.CorrectedLevelScore = policy.ClampScore(*c.LevelScore, level)
		}
	}

	return result
}

// Correct returns a copy with difficulty and level score unconditionally
// forced into policy range. Used only after the retry budget is exhausted,
// never as a silent auto-accept.
func Correct(c *Candidate, level policy.Level) *Candidate {
	out := *c
	out.Difficulty = policy.ClampDifficulty(c.Difficulty, level)
	score := policy.ConfigFor(level).Band.Min
	if c.LevelScore != nil {
		score = policy.ClampScore(*c.LevelScore, level)
	}
	out.LevelScore = &score
	return &out
}
