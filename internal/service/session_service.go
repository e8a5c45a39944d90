package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"interview-service/internal/guardrail"
	"interview-service/internal/models"
	"interview-service/internal/policy"
	"interview-service/internal/scoring"
)

// Follow-up intents: why the next question is being asked.
const (
	IntentEscalateDifficulty = "escalate_difficulty"
	IntentClarifyTechnical   = "clarify_technical"
	IntentProbeDepth         = "probe_depth"
	IntentScenarioBased      = "scenario_based"
)

// Options bundles the session policy knobs injected at construction.
type Options struct {
	SessionDuration  time.Duration
	MaxQuestions     int
	WarnBeforeExpiry time.Duration
}

// SessionService owns the session lifecycle and turn-taking state machine.
// All collaborators are injected; the service holds no global state.
type SessionService struct {
	store     SessionStore
	quota     UsageQuota
	loop      *guardrail.Loop
	evaluator AnswerEvaluator
	voice     VoiceEvaluator
	reporter  ReportGenerator
	opts      Options
}

func NewSessionService(
	store SessionStore,
	quota UsageQuota,
	generator guardrail.Generator,
	evaluator AnswerEvaluator,
	voice VoiceEvaluator,
	reporter ReportGenerator,
	opts Options,
) *SessionService {
	return &SessionService{
		store:     store,
		quota:     quota,
		loop:      guardrail.NewLoop(generator),
		evaluator: evaluator,
		voice:     voice,
		reporter:  reporter,
		opts:      opts,
	}
}

// TurnResult is what one processed answer yields: the evaluation, the next
// question (nil when the session terminated this turn), and the updated
// running aggregates.
type TurnResult struct {
	Evaluation      *models.Evaluation      `json:"evaluation"`
	NextQuestion    *models.QuestionEntry   `json:"next_question,omitempty"`
	Aggregates      models.AggregatedScores `json:"aggregates"`
	Status          string                  `json:"status"`
	DeadlineWarning bool                    `json:"deadline_warning,omitempty"`
	Corrected       bool                    `json:"corrected,omitempty"`
}

func (s *SessionService) GetSession(ctx context.Context, id string) (*models.InterviewSession, error) {
	return s.findSession(ctx, id)
}

// Start validates the usage quota, creates a session and issues the first
// question from role+level context only.
func (s *SessionService) Start(ctx context.Context, userID, role, levelStr, mode string) (*models.InterviewSession, error) {
	level := policy.ParseLevel(levelStr)

	quotaKey := userID
	if quotaKey == "" {
		quotaKey = "anonymous"
	}
	if err := s.quota.CheckAndConsume(ctx, quotaKey); err != nil {
		return nil, err
	}

	topics := policy.TopicsFor(role, level)
	result, err := s.loop.Next(ctx, &guardrail.Request{
		Kind:            models.QuestionKindInitial,
		Role:            role,
		Level:           level,
		AllowedTopics:   topics.Allowed,
		ForbiddenTopics: topics.Forbidden,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &models.InterviewSession{
		UserID:         userID,
		SessionToken:   uuid.NewString(),
		Role:           role,
		Level:          string(level),
		Mode:           mode,
		Status:         models.StatusCreated,
		WeaknessCounts: newWeaknessCounts(),
		TopicScores:    map[string][]float64{},
		Aggregates:     scoring.Aggregate(nil),
		StartTime:      now,
		Deadline:       now.Add(s.opts.SessionDuration),
		MaxQuestions:   s.opts.MaxQuestions,
	}
	session.Questions = append(session.Questions, entryFromCandidate(result.Candidate, models.QuestionKindInitial, "", ""))
	session.TotalQuestions = len(session.Questions)
	session.Status = models.StatusInProgress

	if err := s.store.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// ProcessAnswer runs one full turn: attach the answer, evaluate it (text and
// voice concurrently), score it, update the adaptive trackers and either
// issue a follow-up or terminate the session.
func (s *SessionService) ProcessAnswer(ctx context.Context, sessionID, answerText string, voiceMeta *models.VoiceMetrics) (*TurnResult, error) {
	session, err := s.findSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.StatusInProgress {
		return nil, fmt.Errorf("%w: session %s is %s", ErrSessionNotActive, sessionID, session.Status)
	}
	idx := session.PendingIndex()
	if idx < 0 {
		return nil, fmt.Errorf("%w: session %s", ErrNoPendingQuestion, sessionID)
	}

	entry := &session.Questions[idx]
	entry.Answer = &models.Answer{Text: answerText, Voice: voiceMeta, AnsweredAt: time.Now()}

	evaluation, err := s.evaluateAnswer(ctx, session, entry, voiceMeta)
	if err != nil {
		return nil, err
	}

	level := policy.Level(session.Level)
	scoring.Normalize(evaluation)
	evaluation.Overall = scoring.WeightedOverall(evaluation, level)
	entry.Evaluation = evaluation

	weakest := scoring.WeakestDimension(evaluation)
	session.WeaknessCounts[weakest]++
	session.TopicScores[entry.Topic] = append(session.TopicScores[entry.Topic], evaluation.Overall)
	session.Aggregates = scoring.Aggregate(evaluatedOf(session))

	mastered := topicMastered(session.TopicScores[entry.Topic])
	intent := followUpIntent(evaluation, mastered)
	target := policy.NextDifficulty(policy.Difficulty(entry.Difficulty), evaluation.Overall)

	now := time.Now()
	result := &TurnResult{Evaluation: evaluation, Aggregates: session.Aggregates}

	if !session.DeadlineWarned && now.After(session.Deadline.Add(-s.opts.WarnBeforeExpiry)) && now.Before(session.Deadline) {
		session.DeadlineWarned = true
		result.DeadlineWarning = true
	}

	switch {
	case now.After(session.Deadline):
		session.Status = models.StatusTimeExpired
		session.EndTime = now
	case session.TotalQuestions >= session.MaxQuestions:
		session.Status = models.StatusMaxQuestionsReached
		session.EndTime = now
	default:
		followup, corrected, err := s.nextFollowup(ctx, session, entry, evaluation, weakest, intent, target)
		if err != nil {
			return nil, err
		}
		session.Questions = append(session.Questions, *followup)
		session.TotalQuestions = len(session.Questions)
		result.NextQuestion = followup
		result.Corrected = corrected
	}
	result.Status = session.Status

	update := bson.M{
		"questions":       session.Questions,
		"total_questions": session.TotalQuestions,
		"weakness_counts": session.WeaknessCounts,
		"topic_scores":    session.TopicScores,
		"aggregates":      session.Aggregates,
		"status":          session.Status,
		"deadline_warned": session.DeadlineWarned,
	}
	if !session.EndTime.IsZero() {
		update["end_time"] = session.EndTime
	}
	if err := s.store.Update(ctx, session.ID, update); err != nil {
		return nil, err
	}
	return result, nil
}

// Complete assembles the transcript, requests the final report and marks the
// session completed.
func (s *SessionService) Complete(ctx context.Context, sessionID string) (*models.InterviewSession, error) {
	session, err := s.findSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.StatusInProgress {
		return nil, fmt.Errorf("%w: session %s is %s", ErrSessionNotActive, sessionID, session.Status)
	}

	transcript := make([]TurnSummary, 0, len(session.Questions))
	for i := range session.Questions {
		q := &session.Questions[i]
		if q.Answer == nil || q.Evaluation == nil {
			continue
		}
		transcript = append(transcript, TurnSummary{
			Question:   q.Question,
			Topic:      q.Topic,
			Difficulty: q.Difficulty,
			Answer:     q.Answer.Text,
			Overall:    q.Evaluation.Overall,
		})
	}

	report, err := s.reporter.Generate(ctx, transcript, session.Role, policy.Level(session.Level), session.Aggregates)
	if err != nil {
		return nil, err
	}

	session.Status = models.StatusCompleted
	session.EndTime = time.Now()
	session.FinalReport = report

	update := bson.M{
		"status":       session.Status,
		"end_time":     session.EndTime,
		"final_report": session.FinalReport,
	}
	if err := s.store.Update(ctx, session.ID, update); err != nil {
		return nil, err
	}
	return session, nil
}

// Abandon marks a session abandoned immediately. No further turns are
// possible afterwards.
func (s *SessionService) Abandon(ctx context.Context, sessionID string) error {
	session, err := s.findSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.IsTerminal() {
		return fmt.Errorf("%w: session %s is %s", ErrSessionNotActive, sessionID, session.Status)
	}
	return s.store.Update(ctx, session.ID, bson.M{
		"status":   models.StatusAbandoned,
		"end_time": time.Now(),
	})
}

func (s *SessionService) findSession(ctx context.Context, id string) (*models.InterviewSession, error) {
	session, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, err
	}
	return session, nil
}

// evaluateAnswer runs the text evaluation and, when voice metadata is
// present, the vocal-delivery evaluation concurrently. Either failure fails
// the whole turn; there is no partial-credit scoring.
func (s *SessionService) evaluateAnswer(ctx context.Context, session *models.InterviewSession, entry *models.QuestionEntry, voiceMeta *models.VoiceMetrics) (*models.Evaluation, error) {
	var evaluation *models.Evaluation
	var voiceEval *VoiceEvaluation

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ev, err := s.evaluator.Evaluate(gctx, entry.Question, entry.Answer.Text, session.Role, policy.Level(session.Level))
		if err != nil {
			return err
		}
		evaluation = ev
		return nil
	})
	if voiceMeta != nil {
		g.Go(func() error {
			ve, err := s.voice.Evaluate(gctx, voiceMeta.Transcript, voiceMeta)
			if err != nil {
				return err
			}
			voiceEval = ve
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if voiceEval != nil {
		// Vocal delivery is blended into the communication dimension.
		evaluation.Communication = (evaluation.Communication + voiceEval.Delivery) / 2
		evaluation.Improvements = append(evaluation.Improvements, voiceEval.Notes...)
	}
	return evaluation, nil
}

// nextFollowup requests a policy-compliant follow-up using the full adaptive
// context of the turn just scored.
func (s *SessionService) nextFollowup(
	ctx context.Context,
	session *models.InterviewSession,
	prev *models.QuestionEntry,
	evaluation *models.Evaluation,
	weakest, intent string,
	target policy.Difficulty,
) (*models.QuestionEntry, bool, error) {
	level := policy.Level(session.Level)
	topics := policy.TopicsFor(session.Role, level)

	result, err := s.loop.Next(ctx, &guardrail.Request{
		Kind:               models.QuestionKindFollowup,
		Role:               session.Role,
		Level:              level,
		AllowedTopics:      topics.Allowed,
		ForbiddenTopics:    topics.Forbidden,
		PreviousQuestion:   prev.Question,
		PreviousTopic:      prev.Topic,
		PreviousDifficulty: policy.Difficulty(prev.Difficulty),
		SubScores: map[string]float64{
			scoring.DimTechnical:      evaluation.Technical,
			scoring.DimDepth:          evaluation.Depth,
			scoring.DimClarity:        evaluation.Clarity,
			scoring.DimProblemSolving: evaluation.ProblemSolving,
			scoring.DimCommunication:  evaluation.Communication,
		},
		Weaknesses:       evaluation.Weaknesses,
		Intent:           intent,
		TargetDifficulty: target,
		AskedQuestions:   session.AskedQuestions(),
	})
	if err != nil {
		return nil, false, err
	}

	probes := ""
	if intent != IntentEscalateDifficulty {
		probes = weakest
	}
	entry := entryFromCandidate(result.Candidate, models.QuestionKindFollowup, intent, probes)
	return &entry, result.Outcome == guardrail.OutcomeCorrected, nil
}

func entryFromCandidate(c *guardrail.Candidate, kind, intent, probesWeakness string) models.QuestionEntry {
	return models.QuestionEntry{
		Question:       c.Question,
		Topic:          c.Topic,
		Difficulty:     string(c.Difficulty),
		Kind:           kind,
		Intent:         intent,
		ProbesWeakness: probesWeakness,
		AskedAt:        time.Now(),
	}
}

func newWeaknessCounts() map[string]int {
	counts := make(map[string]int, len(scoring.Dimensions))
	for _, dim := range scoring.Dimensions {
		counts[dim] = 0
	}
	return counts
}

func evaluatedOf(session *models.InterviewSession) []models.Evaluation {
	out := make([]models.Evaluation, 0, len(session.Questions))
	for i := range session.Questions {
		if session.Questions[i].Evaluation != nil {
			out = append(out, *session.Questions[i].Evaluation)
		}
	}
	return out
}

// topicMastered: at least two scores on the topic exceed 8.0.
func topicMastered(scores []float64) bool {
	if len(scores) < 2 {
		return false
	}
	high := 0
	for _, s := range scores {
		if s > 8.0 {
			high++
		}
	}
	return high >= 2
}

// followUpIntent picks why the next question is asked, in priority order.
func followUpIntent(e *models.Evaluation, mastered bool) string {
	switch {
	case mastered:
		return IntentEscalateDifficulty
	case e.Technical < 5:
		return IntentClarifyTechnical
	case e.Depth < 6:
		return IntentProbeDepth
	case e.ProblemSolving < 6:
		return IntentScenarioBased
	default:
		return IntentEscalateDifficulty
	}
}
