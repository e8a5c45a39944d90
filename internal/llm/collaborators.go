package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"interview-service/internal/guardrail"
	"interview-service/internal/models"
	"interview-service/internal/policy"
	"interview-service/internal/service"
)

// QuestionGenerator implements guardrail.Generator over the chat client.
type QuestionGenerator struct {
	client *Client
}

func NewQuestionGenerator(client *Client) *QuestionGenerator {
	return &QuestionGenerator{client: client}
}

const questionSystemPrompt = `You are a technical interviewer. Respond with a single JSON object:
{"question": "...", "topic": "...", "difficulty": "easy|medium|hard", "level_score": 1-10}
Pick the topic from the allowed list and never from the forbidden list. Do not repeat any question from asked_questions.`

func (g *QuestionGenerator) Generate(ctx context.Context, req *guardrail.Request) (*guardrail.Candidate, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	content, err := g.client.Chat(ctx, questionSystemPrompt, string(payload))
	if err != nil {
		return nil, err
	}
	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}
	var candidate guardrail.Candidate
	if err := json.Unmarshal([]byte(raw), &candidate); err != nil {
		return nil, fmt.Errorf("malformed generator output: %v", err)
	}
	return &candidate, nil
}

// AnswerEvaluator implements service.AnswerEvaluator over the chat client.
type AnswerEvaluator struct {
	client *Client
}

func NewAnswerEvaluator(client *Client) *AnswerEvaluator {
	return &AnswerEvaluator{client: client}
}

const evaluationSystemPrompt = `You are grading an interview answer. Respond with a single JSON object:
{"technical": 1-10, "depth": 1-10, "clarity": 1-10, "problem_solving": 1-10, "communication": 1-10,
 "strengths": [...], "weaknesses": [...], "improvements": [...]}`

func (e *AnswerEvaluator) Evaluate(ctx context.Context, question, answer, role string, level policy.Level) (*models.Evaluation, error) {
	payload, err := json.Marshal(map[string]string{
		"question": question,
		"answer":   answer,
		"role":     role,
		"level":    string(level),
	})
	if err != nil {
		return nil, err
	}
	content, err := e.client.Chat(ctx, evaluationSystemPrompt, string(payload))
	if err != nil {
		return nil, err
	}
	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}
	var evaluation models.Evaluation
	if err := json.Unmarshal([]byte(raw), &evaluation); err != nil {
		return nil, fmt.Errorf("malformed evaluation output: %v", err)
	}
	if evaluation.Technical == 0 && evaluation.Depth == 0 && evaluation.Clarity == 0 {
		return nil, fmt.Errorf("evaluation output missing scores")
	}
	return &evaluation, nil
}

// VoiceEvaluator implements service.VoiceEvaluator over the chat client.
type VoiceEvaluator struct {
	client *Client
}

func NewVoiceEvaluator(client *Client) *VoiceEvaluator {
	return &VoiceEvaluator{client: client}
}

const voiceSystemPrompt = `You are assessing vocal delivery from speech metrics. Respond with a single JSON object:
{"delivery": 1-10, "notes": [...]}`

func (v *VoiceEvaluator) Evaluate(ctx context.Context, transcript string, metrics *models.VoiceMetrics) (*service.VoiceEvaluation, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"transcript": transcript,
		"metrics":    metrics,
	})
	if err != nil {
		return nil, err
	}
	content, err := v.client.Chat(ctx, voiceSystemPrompt, string(payload))
	if err != nil {
		return nil, err
	}
	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}
	var evaluation service.VoiceEvaluation
	if err := json.Unmarshal([]byte(raw), &evaluation); err != nil {
		return nil, fmt.Errorf("malformed voice evaluation output: %v", err)
	}
	return &evaluation, nil
}

// ReportGenerator implements service.ReportGenerator over the chat client.
type ReportGenerator struct {
	client *Client
}

func NewReportGenerator(client *Client) *ReportGenerator {
	return &ReportGenerator{client: client}
}

const reportSystemPrompt = `You are writing a final interview report. Summarize performance per topic, strengths, growth areas and a hiring recommendation. Respond in plain text.`

func (r *ReportGenerator) Generate(ctx context.Context, transcript []service.TurnSummary, role string, level policy.Level, aggregates models.AggregatedScores) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"role":       role,
		"level":      level,
		"aggregates": aggregates,
		"transcript": transcript,
	})
	if err != nil {
		return "", err
	}
	return r.client.Chat(ctx, reportSystemPrompt, string(payload))
}
