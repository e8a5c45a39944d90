package service

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"interview-service/internal/models"
	"interview-service/internal/policy"
)

// SessionStore is the persistence contract for the session aggregate. The
// store must provide atomic per-session read-modify-write; sessions are
// always read and written back as whole units.
type SessionStore interface {
	Create(ctx context.Context, session *models.InterviewSession) error
	FindByID(ctx context.Context, id string) (*models.InterviewSession, error)
	Update(ctx context.Context, id string, update bson.M) error
	FindStale(ctx context.Context, cutoff time.Time) ([]models.InterviewSession, error)
}

// AnswerEvaluator scores an answer against its question. Returns the five
// raw sub-scores plus textual feedback; the overall score is computed here,
// not by the evaluator.
type AnswerEvaluator interface {
	Evaluate(ctx context.Context, question, answer, role string, level policy.Level) (*models.Evaluation, error)
}

// VoiceEvaluation is the vocal-delivery assessment for one answer.
type VoiceEvaluation struct {
	Delivery float64  `json:"delivery"`
	Notes    []string `json:"notes,omitempty"`
}

// VoiceEvaluator assesses vocal delivery. Invoked only when voice metadata
// is present on the answer.
type VoiceEvaluator interface {
	Evaluate(ctx context.Context, transcript string, metrics *models.VoiceMetrics) (*VoiceEvaluation, error)
}

// TurnSummary is one answered turn of the transcript handed to the report
// generator.
type TurnSummary struct {
	Question   string  `json:"question"`
	Topic      string  `json:"topic"`
	Difficulty string  `json:"difficulty"`
	Answer     string  `json:"answer"`
	Overall    float64 `json:"overall"`
}

// ReportGenerator produces the final interview report.
type ReportGenerator interface {
	Generate(ctx context.Context, transcript []TurnSummary, role string, level policy.Level, aggregates models.AggregatedScores) (string, error)
}

// UsageQuota is checked and consumed by Start before a session is created.
type UsageQuota interface {
	CheckAndConsume(ctx context.Context, userID string) error
}
