package guardrail

import (
	"context"
	"errors"
	"fmt"
	"log"

	"interview-service/internal/policy"
)

// Caller-visible error kinds for generation failures.
var (
	ErrGeneratorFailure  = errors.New("content generator failed")
	ErrIncompleteContent = errors.New("generated content missing required fields")
)

// Request carries everything the generator may use. Initial requests carry
// only role, level and topic policy; follow-ups carry the full adaptive
// context of the previous turn.
type Request struct {
	Kind            string            `json:"kind"`
	Role            string            `json:"role"`
	Level           policy.Level      `json:"level"`
	AllowedTopics   []string          `json:"allowed_topics"`
	ForbiddenTopics []string          `json:"forbidden_topics"`

	PreviousQuestion   string             `json:"previous_question,omitempty"`
	PreviousTopic      string             `json:"previous_topic,omitempty"`
	PreviousDifficulty policy.Difficulty  `json:"previous_difficulty,omitempty"`
	SubScores          map[string]float64 `json:"sub_scores,omitempty"`
	Weaknesses         []string           `json:"weaknesses,omitempty"`
	Intent             string             `json:"intent,omitempty"`
	TargetDifficulty   policy.Difficulty  `json:"target_difficulty,omitempty"`
	AskedQuestions     []string           `json:"asked_questions,omitempty"`
}

// Generator is the external, non-deterministic content source. It may fail
// outright or return out-of-policy content; the loop absorbs both.
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Candidate, error)
}

// Outcome tags how a loop result was obtained.
type Outcome string

const (
	// OutcomeAccepted: the generator produced a compliant candidate within
	// the attempt budget.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeCorrected: every attempt violated policy and the last candidate
	// was forced into range.
	OutcomeCorrected Outcome = "corrected"
)

// Result is one policy-compliant candidate plus how it was obtained.
type Result struct {
	Candidate *Candidate
	Outcome   Outcome
	Attempts  int
}

const maxAttempts = 3

// Loop wraps the generator with bounded retries and deterministic
// correction. Every return path except outright generator failure yields a
// policy-compliant candidate.
type Loop struct {
	gen Generator
}

func NewLoop(gen Generator) *Loop {
	return &Loop{gen: gen}
}

// Next obtains one compliant question or follow-up. Attempts are strictly
// sequential and the request is never altered between them; the generator is
// expected to vary its own output.
func (l *Loop) Next(ctx context.Context, req *Request) (*Result, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		candidate, err := l.attempt(ctx, req)
		if err != nil {
			if attempt == maxAttempts {
				return nil, fmt.Errorf("%w: %v (after %d attempts)", ErrGeneratorFailure, err, attempt)
			}
			log.Printf("Generation attempt %d/%d failed: %v", attempt, maxAttempts, err)
			continue
		}

		validation := Validate(candidate, req.Level)
		if validation.Valid {
			return &Result{Candidate: candidate, Outcome: OutcomeAccepted, Attempts: attempt}, nil
		}

		log.Printf("Generated %s rejected on attempt %d/%d: %s", req.Kind, attempt, maxAttempts, validation.Reason)
		if attempt == maxAttempts {
			return &Result{Candidate: Correct(candidate, req.Level), Outcome: OutcomeCorrected, Attempts: attempt}, nil
		}
	}
	// Unreachable: every branch above returns by the final attempt.
	return nil, ErrGeneratorFailure
}

// attempt runs one generator call and normalizes its output: required fields
// are enforced, follow-up gaps inherit from the request, and a missing level
// score defaults to the band minimum.
func (l *Loop) attempt(ctx context.Context, req *Request) (*Candidate, error) {
	candidate, err := l.gen.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if candidate == nil || candidate.Question == "" {
		return nil, fmt.Errorf("%w: empty question", ErrIncompleteContent)
	}
	if req.Kind == "initial" {
		if candidate.Topic == "" {
			return nil, fmt.Errorf("%w: initial question missing topic", ErrIncompleteContent)
		}
		if candidate.Difficulty == "" {
			return nil, fmt.Errorf("%w: initial question missing difficulty", ErrIncompleteContent)
		}
	} else {
		if candidate.Topic == "" {
			candidate.Topic = req.PreviousTopic
		}
		if candidate.Difficulty == "" {
			candidate.Difficulty = req.TargetDifficulty
		}
	}
	if candidate.LevelScore == nil {
		min := policy.ConfigFor(req.Level).Band.Min
		candidate.LevelScore = &min
	}
	return candidate, nil
}
