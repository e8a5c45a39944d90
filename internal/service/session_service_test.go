package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"interview-service/internal/guardrail"
	"interview-service/internal/models"
	"interview-service/internal/policy"
	"interview-service/internal/scoring"
)

// --- fakes ---

type fakeStore struct {
	sessions map[string]*models.InterviewSession
	nextID   int
	updates  []bson.M
	failFor  map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string]*models.InterviewSession{}, failFor: map[string]error{}}
}

func (f *fakeStore) Create(ctx context.Context, session *models.InterviewSession) error {
	f.nextID++
	session.ID = fmt.Sprintf("session-%d", f.nextID)
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeStore) FindByID(ctx context.Context, id string) (*models.InterviewSession, error) {
	if s, ok := f.sessions[id]; ok {
		return s, nil
	}
	return nil, mongo.ErrNoDocuments
}

func (f *fakeStore) Update(ctx context.Context, id string, update bson.M) error {
	if err, ok := f.failFor[id]; ok {
		return err
	}
	f.updates = append(f.updates, update)
	if s, ok := f.sessions[id]; ok {
		if status, ok := update["status"].(string); ok {
			s.Status = status
		}
	}
	return nil
}

func (f *fakeStore) FindStale(ctx context.Context, cutoff time.Time) ([]models.InterviewSession, error) {
	var stale []models.InterviewSession
	for _, s := range f.sessions {
		if s.Status == models.StatusInProgress && s.Deadline.Before(cutoff) {
			stale = append(stale, *s)
		}
	}
	return stale, nil
}

type fakeQuota struct {
	err   error
	calls []string
}

func (f *fakeQuota) CheckAndConsume(ctx context.Context, userID string) error {
	f.calls = append(f.calls, userID)
	return f.err
}

type fakeGenerator struct {
	fn    func(req *guardrail.Request) (*guardrail.Candidate, error)
	calls []*guardrail.Request
}

func (f *fakeGenerator) Generate(ctx context.Context, req *guardrail.Request) (*guardrail.Candidate, error) {
	f.calls = append(f.calls, req)
	if f.fn != nil {
		return f.fn(req)
	}
	return compliantCandidate(req), nil
}

// compliantCandidate builds policy-compliant output the way a well-behaved
// generator would: topic from the allowed list, difficulty from the level's
// allowed set.
func compliantCandidate(req *guardrail.Request) *guardrail.Candidate {
	topic := "general"
	if len(req.AllowedTopics) > 0 {
		topic = req.AllowedTopics[0]
	}
	difficulty := req.TargetDifficulty
	if difficulty == "" {
		difficulty = policy.ConfigFor(req.Level).AllowedDifficulties[0]
	}
	difficulty = policy.ClampDifficulty(difficulty, req.Level)
	return &guardrail.Candidate{
		Question:   fmt.Sprintf("Question %d about %s", len(req.AskedQuestions)+1, topic),
		Topic:      topic,
		Difficulty: difficulty,
	}
}

type fakeEvaluator struct {
	next models.Evaluation
	err  error
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, question, answer, role string, level policy.Level) (*models.Evaluation, error) {
	if f.err != nil {
		return nil, f.err
	}
	e := f.next
	return &e, nil
}

type fakeVoice struct {
	next  VoiceEvaluation
	err   error
	calls int
}

func (f *fakeVoice) Evaluate(ctx context.Context, transcript string, metrics *models.VoiceMetrics) (*VoiceEvaluation, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	e := f.next
	return &e, nil
}

type fakeReporter struct {
	report     string
	err        error
	transcript []TurnSummary
}

func (f *fakeReporter) Generate(ctx context.Context, transcript []TurnSummary, role string, level policy.Level, aggregates models.AggregatedScores) (string, error) {
	f.transcript = transcript
	return f.report, f.err
}

type fixture struct {
	store     *fakeStore
	quota     *fakeQuota
	generator *fakeGenerator
	evaluator *fakeEvaluator
	voice     *fakeVoice
	reporter  *fakeReporter
	svc       *SessionService
}

func newFixture() *fixture {
	f := &fixture{
		store:     newFakeStore(),
		quota:     &fakeQuota{},
		generator: &fakeGenerator{},
		evaluator: &fakeEvaluator{next: models.Evaluation{Technical: 7, Depth: 7, Clarity: 7, ProblemSolving: 7, Communication: 7}},
		voice:     &fakeVoice{next: VoiceEvaluation{Delivery: 8}},
		reporter:  &fakeReporter{report: "solid candidate"},
	}
	f.svc = NewSessionService(f.store, f.quota, f.generator, f.evaluator, f.voice, f.reporter, Options{
		SessionDuration:  time.Hour,
		MaxQuestions:     10,
		WarnBeforeExpiry: 5 * time.Minute,
	})
	return f
}

// --- start ---

func TestStart_JuniorBackend_FirstQuestionWithinPolicy(t *testing.T) {
	f := newFixture()

	session, err := f.svc.Start(context.Background(), "user-1", "Backend Developer", "Junior", "text")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if session.Status != models.StatusInProgress {
		t.Errorf("Expected in_progress, got %s", session.Status)
	}
	if session.TotalQuestions != 1 || len(session.Questions) != 1 {
		t.Fatalf("Expected exactly one question, got %d", session.TotalQuestions)
	}

	first := session.Questions[0]
	if first.Difficulty != string(policy.DifficultyEasy) {
		t.Errorf("Expected junior first question to be easy, got %s", first.Difficulty)
	}
	if first.Kind != models.QuestionKindInitial {
		t.Errorf("Expected initial kind, got %s", first.Kind)
	}

	topics := policy.TopicsFor("Backend Developer", policy.LevelJunior)
	inAllowed := false
	for _, topic := range topics.Allowed {
		if first.Topic == topic {
			inAllowed = true
		}
	}
	if !inAllowed {
		t.Errorf("Topic %q not drawn from the allowed list", first.Topic)
	}
	for _, topic := range topics.Forbidden {
		if first.Topic == topic {
			t.Errorf("Topic %q is forbidden for junior backend", first.Topic)
		}
	}

	if session.SessionToken == "" {
		t.Error("Expected a session token")
	}
	if len(f.quota.calls) != 1 || f.quota.calls[0] != "user-1" {
		t.Errorf("Expected one quota check for user-1, got %v", f.quota.calls)
	}
	if len(session.WeaknessCounts) != len(scoring.Dimensions) {
		t.Errorf("Expected weakness counters for every dimension, got %v", session.WeaknessCounts)
	}
}

func TestStart_AnonymousUsesPlaceholderQuotaKey(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Start(context.Background(), "", "Backend Developer", "Junior", "text"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if f.quota.calls[0] != "anonymous" {
		t.Errorf("Expected anonymous quota key, got %q", f.quota.calls[0])
	}
}

func TestStart_QuotaExceededBlocksSession(t *testing.T) {
	f := newFixture()
	f.quota.err = errors.New("quota exceeded")

	_, err := f.svc.Start(context.Background(), "user-1", "Backend Developer", "Junior", "text")
	if err == nil {
		t.Fatal("Expected quota error to propagate")
	}
	if len(f.store.sessions) != 0 {
		t.Error("Expected no session to be created")
	}
}

// --- process answer ---

func TestProcessAnswer_SessionInvariants(t *testing.T) {
	f := newFixture()
	session, err := f.svc.Start(context.Background(), "user-1", "Backend Developer", "Mid", "text")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	const turns = 4
	for i := 0; i < turns; i++ {
		result, err := f.svc.ProcessAnswer(context.Background(), session.ID, fmt.Sprintf("answer %d", i+1), nil)
		if err != nil {
			t.Fatalf("Turn %d failed: %v", i+1, err)
		}
		if result.NextQuestion == nil {
			t.Fatalf("Turn %d: expected a follow-up question", i+1)
		}
		if result.Evaluation == nil || result.Evaluation.Overall == 0 {
			t.Fatalf("Turn %d: expected a scored evaluation", i+1)
		}
	}

	// Exactly one unanswered entry, and total equals turns+1.
	pending := 0
	for i := range session.Questions {
		if session.Questions[i].Answer == nil {
			pending++
		}
	}
	if pending != 1 {
		t.Errorf("Expected exactly one pending question, got %d", pending)
	}
	if session.TotalQuestions != turns+1 {
		t.Errorf("Expected totalQuestions=%d, got %d", turns+1, session.TotalQuestions)
	}
	if session.TotalQuestions != len(session.Questions) {
		t.Error("totalQuestions out of sync with entry count")
	}
}

func TestProcessAnswer_SessionNotFound(t *testing.T) {
	f := newFixture()
	_, err := f.svc.ProcessAnswer(context.Background(), "missing", "answer", nil)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestProcessAnswer_SessionNotActive(t *testing.T) {
	f := newFixture()
	session, _ := f.svc.Start(context.Background(), "user-1", "Backend Developer", "Junior", "text")
	session.Status = models.StatusAbandoned

	_, err := f.svc.ProcessAnswer(context.Background(), session.ID, "answer", nil)
	if !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("Expected ErrSessionNotActive, got %v", err)
	}
}

func TestProcessAnswer_NoPendingQuestion(t *testing.T) {
	f := newFixture()
	session, _ := f.svc.Start(context.Background(), "user-1", "Backend Developer", "Junior", "text")
	session.Questions[0].Answer = &models.Answer{Text: "already answered"}

	_, err := f.svc.ProcessAnswer(context.Background(), session.ID, "again", nil)
	if !errors.Is(err, ErrNoPendingQuestion) {
		t.Errorf("Expected ErrNoPendingQuestion, got %v", err)
	}
}

func TestProcessAnswer_WeaknessTrackerIncrements(t *testing.T) {
	f := newFixture()
	f.evaluator.next = models.Evaluation{Technical: 8, Depth: 3, Clarity: 8, ProblemSolving: 8, Communication: 8}
	session, _ := f.svc.Start(context.Background(), "user-1", "Backend Developer", "Mid", "text")

	if _, err := f.svc.ProcessAnswer(context.Background(), session.ID, "answer", nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if session.WeaknessCounts[scoring.DimDepth] != 1 {
		t.Errorf("Expected depth weakness count 1, got %d", session.WeaknessCounts[scoring.DimDepth])
	}
}

func TestProcessAnswer_TopicScoreHistoryAppends(t *testing.T) {
	f := newFixture()
	session, _ := f.svc.Start(context.Background(), "user-1", "Backend Developer", "Mid", "text")
	topic := session.Questions[0].Topic

	if _, err := f.svc.ProcessAnswer(context.Background(), session.ID, "answer", nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(session.TopicScores[topic]) != 1 {
		t.Errorf("Expected one score for topic %q, got %v", topic, session.TopicScores[topic])
	}
}

func TestProcessAnswer_VoiceBlendsIntoCommunication(t *testing.T) {
	f := newFixture()
	f.evaluator.next = models.Evaluation{Technical: 7, Depth: 7, Clarity: 7, ProblemSolving: 7, Communication: 6}
	f.voice.next = VoiceEvaluation{Delivery: 10, Notes: []string{"slow down slightly"}}
	session, _ := f.svc.Start(context.Background(), "user-1", "Backend Developer", "Mid", "voice")

	result, err := f.svc.ProcessAnswer(context.Background(), session.ID, "answer", &models.VoiceMetrics{Transcript: "answer", WordsPerMinute: 160})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if f.voice.calls != 1 {
		t.Fatalf("Expected the voice evaluator to be invoked once, got %d", f.voice.calls)
	}
	if result.Evaluation.Communication != 8 {
		t.Errorf("Expected communication blended to 8, got %v", result.Evaluation.Communication)
	}
	found := false
	for _, note := range result.Evaluation.Improvements {
		if note == "slow down slightly" {
			found = true
		}
	}
	if !found {
		t.Error("Expected voice notes appended to improvements")
	}
}

func TestProcessAnswer_TextTurnSkipsVoiceEvaluator(t *testing.T) {
	f := newFixture()
	session, _ := f.svc.Start(context.Background(), "user-1", "Backend Developer", "Junior", "text")

	if _, err := f.svc.ProcessAnswer(context.Background(), session.ID, "answer", nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if f.voice.calls != 0 {
		t.Errorf("Expected no voice evaluation for a text answer, got %d calls", f.voice.calls)
	}
}

func TestProcessAnswer_EvaluatorFailureFailsWholeTurn(t *testing.T) {
	f := newFixture()
	session, _ := f.svc.Start(context.Background(), "user-1", "Backend Developer", "Junior", "text")
	f.evaluator.err = errors.New("evaluator down")

	_, err := f.svc.ProcessAnswer(context.Background(), session.ID, "answer", nil)
	if err == nil {
		t.Fatal("Expected turn to fail")
	}
	if len(f.store.updates) != 0 {
		t.Error("Expected no persisted update for a failed turn")
	}
}

func TestProcessAnswer_VoiceFailureFailsWholeTurn(t *testing.T) {
	f := newFixture()
	session, _ := f.svc.Start(context.Background(), "user-1", "Backend Developer", "Junior", "voice")
	f.voice.err = errors.New("voice service down")

	_, err := f.svc.ProcessAnswer(context.Background(), session.ID, "answer", &models.VoiceMetrics{Transcript: "answer"})
	if err == nil {
		t.Fatal("Expected turn to fail when voice evaluation fails")
	}
}

func TestProcessAnswer_MaxQuestionsTerminates(t *testing.T) {
	f := newFixture()
	session, _ := f.svc.Start(context.Background(), "user-1", "Backend Developer", "Junior", "text")
	session.MaxQuestions = 1

	result, err := f.svc.ProcessAnswer(context.Background(), session.ID, "answer", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Status != models.StatusMaxQuestionsReached {
		t.Errorf("Expected max_questions_reached, got %s", result.Status)
	}
	if result.NextQuestion != nil {
		t.Error("Expected no follow-up after the cap")
	}
	if result.Evaluation == nil {
		t.Error("Expected the final answer to still be evaluated")
	}
}

func TestProcessAnswer_DeadlineCrossedTerminates(t *testing.T) {
	f := newFixture()
	session, _ := f.svc.Start(context.Background(), "user-1", "Backend Developer", "Junior", "text")
	session.Deadline = time.Now().Add(-time.Minute)

	result, err := f.svc.ProcessAnswer(context.Background(), session.ID, "answer", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Status != models.StatusTimeExpired {
		t.Errorf("Expected time_expired, got %s", result.Status)
	}
	if result.NextQuestion != nil {
		t.Error("Expected no follow-up after the deadline")
	}
}

func TestProcessAnswer_DeadlineWarningIsOneShot(t *testing.T) {
	f := newFixture()
	session, _ := f.svc.Start(context.Background(), "user-1", "Backend Developer", "Mid", "text")
	session.Deadline = time.Now().Add(2 * time.Minute) // inside the 5m warn window

	first, err := f.svc.ProcessAnswer(context.Background(), session.ID, "answer 1", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !first.DeadlineWarning {
		t.Error("Expected a deadline warning on the first turn inside the window")
	}

	second, err := f.svc.ProcessAnswer(context.Background(), session.ID, "answer 2", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if second.DeadlineWarning {
		t.Error("Expected the warning to be shown only once")
	}
}

func TestProcessAnswer_FollowupCarriesAdaptiveContext(t *testing.T) {
	f := newFixture()
	session, _ := f.svc.Start(context.Background(), "user-1", "Backend Developer", "Mid", "text")
	firstQuestion := session.Questions[0].Question

	if _, err := f.svc.ProcessAnswer(context.Background(), session.ID, "answer", nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Second generator call is the follow-up request.
	if len(f.generator.calls) < 2 {
		t.Fatalf("Expected a follow-up generation call, got %d calls", len(f.generator.calls))
	}
	req := f.generator.calls[len(f.generator.calls)-1]
	if req.Kind != models.QuestionKindFollowup {
		t.Errorf("Expected followup kind, got %s", req.Kind)
	}
	if req.PreviousQuestion != firstQuestion {
		t.Error("Expected the previous question in the follow-up context")
	}
	if len(req.SubScores) != len(scoring.Dimensions) {
		t.Errorf("Expected all five sub-scores in context, got %v", req.SubScores)
	}
	if req.Intent == "" || req.TargetDifficulty == "" {
		t.Error("Expected intent and target difficulty in context")
	}
	if len(req.AskedQuestions) != 1 {
		t.Errorf("Expected asked-question history of length 1, got %d", len(req.AskedQuestions))
	}
}

// --- adaptive decisions ---

func TestTopicMastered(t *testing.T) {
	cases := []struct {
		scores []float64
		want   bool
	}{
		{[]float64{9, 9}, true},
		{[]float64{9, 7}, false},
		{[]float64{9}, false},
		{[]float64{8.0, 8.0}, false}, // must exceed 8, not equal it
		{[]float64{7, 8.5, 9.2}, true},
	}
	for _, tc := range cases {
		if got := topicMastered(tc.scores); got != tc.want {
			t.Errorf("topicMastered(%v) = %v, want %v", tc.scores, got, tc.want)
		}
	}
}

func TestFollowUpIntent_PriorityOrder(t *testing.T) {
	cases := []struct {
		technical, depth, problemSolving float64
		mastered                         bool
		want                             string
	}{
		{4, 8, 8, false, IntentClarifyTechnical},
		{9, 9, 9, true, IntentEscalateDifficulty},
		{4, 4, 4, true, IntentEscalateDifficulty}, // mastery outranks weakness
		{7, 5, 8, false, IntentProbeDepth},
		{7, 8, 5, false, IntentScenarioBased},
		{7, 8, 8, false, IntentEscalateDifficulty},
	}
	for _, tc := range cases {
		e := &models.Evaluation{Technical: tc.technical, Depth: tc.depth, ProblemSolving: tc.problemSolving, Clarity: 7, Communication: 7}
		if got := followUpIntent(e, tc.mastered); got != tc.want {
			t.Errorf("followUpIntent(tech=%v depth=%v ps=%v mastered=%v) = %s, want %s",
				tc.technical, tc.depth, tc.problemSolving, tc.mastered, got, tc.want)
		}
	}
}

func TestProcessAnswer_ProbeTagSetForWeaknessIntents(t *testing.T) {
	f := newFixture()
	f.evaluator.next = models.Evaluation{Technical: 3, Depth: 7, Clarity: 7, ProblemSolving: 7, Communication: 7}
	session, _ := f.svc.Start(context.Background(), "user-1", "Backend Developer", "Mid", "text")

	result, err := f.svc.ProcessAnswer(context.Background(), session.ID, "answer", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.NextQuestion.Intent != IntentClarifyTechnical {
		t.Errorf("Expected clarify_technical, got %s", result.NextQuestion.Intent)
	}
	if result.NextQuestion.ProbesWeakness != scoring.DimTechnical {
		t.Errorf("Expected probes_weakness=technical, got %q", result.NextQuestion.ProbesWeakness)
	}
}

// --- complete / abandon ---

func TestComplete_GeneratesReport(t *testing.T) {
	f := newFixture()
	session, _ := f.svc.Start(context.Background(), "user-1", "Backend Developer", "Mid", "text")
	if _, err := f.svc.ProcessAnswer(context.Background(), session.ID, "answer", nil); err != nil {
		t.Fatalf("Turn failed: %v", err)
	}

	completed, err := f.svc.Complete(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if completed.Status != models.StatusCompleted {
		t.Errorf("Expected completed, got %s", completed.Status)
	}
	if completed.FinalReport != "solid candidate" {
		t.Errorf("Expected the generated report, got %q", completed.FinalReport)
	}
	if completed.EndTime.IsZero() {
		t.Error("Expected a completion timestamp")
	}
	// Only answered+evaluated entries appear in the transcript.
	if len(f.reporter.transcript) != 1 {
		t.Errorf("Expected transcript of 1 answered turn, got %d", len(f.reporter.transcript))
	}
}

func TestComplete_TerminalSessionRejected(t *testing.T) {
	f := newFixture()
	session, _ := f.svc.Start(context.Background(), "user-1", "Backend Developer", "Junior", "text")
	session.Status = models.StatusTimeExpired

	if _, err := f.svc.Complete(context.Background(), session.ID); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("Expected ErrSessionNotActive, got %v", err)
	}
}

func TestAbandon_TerminalStateIsAbsorbing(t *testing.T) {
	f := newFixture()
	session, _ := f.svc.Start(context.Background(), "user-1", "Backend Developer", "Junior", "text")

	if err := f.svc.Abandon(context.Background(), session.ID); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if session.Status != models.StatusAbandoned {
		t.Errorf("Expected abandoned, got %s", session.Status)
	}
	// A second abandon must be rejected: terminal states never transition.
	if err := f.svc.Abandon(context.Background(), session.ID); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("Expected ErrSessionNotActive on re-abandon, got %v", err)
	}
}

// --- sweeper ---

func TestSweeper_ExpiresStaleSessions(t *testing.T) {
	f := newFixture()
	stale1, _ := f.svc.Start(context.Background(), "user-1", "Backend Developer", "Junior", "text")
	stale2, _ := f.svc.Start(context.Background(), "user-2", "Backend Developer", "Junior", "text")
	fresh, _ := f.svc.Start(context.Background(), "user-3", "Backend Developer", "Junior", "text")
	stale1.Deadline = time.Now().Add(-time.Hour)
	stale2.Deadline = time.Now().Add(-time.Minute)

	NewSweeper(f.store, time.Minute).Sweep(context.Background())

	if stale1.Status != models.StatusTimeExpired || stale2.Status != models.StatusTimeExpired {
		t.Errorf("Expected stale sessions expired, got %s/%s", stale1.Status, stale2.Status)
	}
	if fresh.Status != models.StatusInProgress {
		t.Errorf("Expected fresh session untouched, got %s", fresh.Status)
	}
}

func TestSweeper_FailureOnOneSessionDoesNotHaltScan(t *testing.T) {
	f := newFixture()
	stale1, _ := f.svc.Start(context.Background(), "user-1", "Backend Developer", "Junior", "text")
	stale2, _ := f.svc.Start(context.Background(), "user-2", "Backend Developer", "Junior", "text")
	stale1.Deadline = time.Now().Add(-time.Hour)
	stale2.Deadline = time.Now().Add(-time.Hour)
	f.store.failFor[stale1.ID] = errors.New("write conflict")

	NewSweeper(f.store, time.Minute).Sweep(context.Background())

	if stale2.Status != models.StatusTimeExpired {
		t.Error("Expected the scan to continue past the failing session")
	}
}
