package models

import "time"

// Session lifecycle states. Terminal states are absorbing: once a session
// reaches one of them it is read-only.
const (
	StatusCreated             = "created"
	StatusInProgress          = "in_progress"
	StatusCompleted           = "completed"
	StatusAbandoned           = "abandoned"
	StatusTimeExpired         = "time_expired"
	StatusMaxQuestionsReached = "max_questions_reached"
)

// Question entry kinds.
const (
	QuestionKindInitial  = "initial"
	QuestionKindFollowup = "followup"
)

// VoiceMetrics is opaque numeric metadata produced by the voice capture layer.
// The engine never interprets it, it is only forwarded to the voice evaluator.
type VoiceMetrics struct {
	Transcript     string  `bson:"transcript" json:"transcript"`
	WordsPerMinute float64 `bson:"words_per_minute" json:"words_per_minute"`
	FillerWords    int     `bson:"filler_words" json:"filler_words"`
	PauseRatio     float64 `bson:"pause_ratio" json:"pause_ratio"`
}

type Answer struct {
	Text       string        `bson:"text" json:"text"`
	Voice      *VoiceMetrics `bson:"voice,omitempty" json:"voice,omitempty"`
	AnsweredAt time.Time     `bson:"answered_at" json:"answered_at"`
}

// Evaluation holds the five sub-scores plus the weighted overall score.
type Evaluation struct {
	Technical      float64  `bson:"technical" json:"technical"`
	Depth          float64  `bson:"depth" json:"depth"`
	Clarity        float64  `bson:"clarity" json:"clarity"`
	ProblemSolving float64  `bson:"problem_solving" json:"problem_solving"`
	Communication  float64  `bson:"communication" json:"communication"`
	Overall        float64  `bson:"overall" json:"overall"`
	Strengths      []string `bson:"strengths" json:"strengths"`
	Weaknesses     []string `bson:"weaknesses" json:"weaknesses"`
	Improvements   []string `bson:"improvements" json:"improvements"`
}

// QuestionEntry is one turn of the interview. It is mutated exactly twice
// after creation: the answer is attached, then the evaluation.
type QuestionEntry struct {
	Question       string      `bson:"question" json:"question"`
	Topic          string      `bson:"topic" json:"topic"`
	Difficulty     string      `bson:"difficulty" json:"difficulty"`
	Kind           string      `bson:"kind" json:"kind"`
	Intent         string      `bson:"intent,omitempty" json:"intent,omitempty"`
	ProbesWeakness string      `bson:"probes_weakness,omitempty" json:"probes_weakness,omitempty"`
	Answer         *Answer     `bson:"answer,omitempty" json:"answer,omitempty"`
	Evaluation     *Evaluation `bson:"evaluation,omitempty" json:"evaluation,omitempty"`
	AskedAt        time.Time   `bson:"asked_at" json:"asked_at"`
}

// AggregatedScores is the running snapshot recomputed after every answer.
type AggregatedScores struct {
	Technical      float64 `bson:"technical" json:"technical"`
	Depth          float64 `bson:"depth" json:"depth"`
	Clarity        float64 `bson:"clarity" json:"clarity"`
	ProblemSolving float64 `bson:"problem_solving" json:"problem_solving"`
	Communication  float64 `bson:"communication" json:"communication"`
	Overall        float64 `bson:"overall" json:"overall"`
	Strongest      string  `bson:"strongest" json:"strongest"`
	Weakest        string  `bson:"weakest" json:"weakest"`
}

type InterviewSession struct {
	ID           string `bson:"_id,omitempty" json:"id"`
	UserID       string `bson:"user_id,omitempty" json:"user_id,omitempty"`
	SessionToken string `bson:"session_token" json:"session_token"`
	Role         string `bson:"role" json:"role"`
	Level        string `bson:"level" json:"level"`
	Mode         string `bson:"mode" json:"mode"`
	Status       string `bson:"status" json:"status"`

	Questions      []QuestionEntry `bson:"questions" json:"questions"`
	TotalQuestions int             `bson:"total_questions" json:"total_questions"`

	WeaknessCounts map[string]int       `bson:"weakness_counts" json:"weakness_counts"`
	TopicScores    map[string][]float64 `bson:"topic_scores" json:"topic_scores"`
	Aggregates     AggregatedScores     `bson:"aggregates" json:"aggregates"`

	StartTime      time.Time `bson:"start_time" json:"start_time"`
	Deadline       time.Time `bson:"deadline" json:"deadline"`
	DeadlineWarned bool      `bson:"deadline_warned" json:"deadline_warned"`
	MaxQuestions   int       `bson:"max_questions" json:"max_questions"`
	EndTime        time.Time `bson:"end_time,omitempty" json:"end_time,omitempty"`
	FinalReport    string    `bson:"final_report,omitempty" json:"final_report,omitempty"`
}

// PendingIndex returns the index of the single unanswered entry, or -1 if
// every entry has been answered.
func (s *InterviewSession) PendingIndex() int {
	for i := range s.Questions {
		if s.Questions[i].Answer == nil {
			return i
		}
	}
	return -1
}

// IsTerminal reports whether the session has reached an absorbing state.
func (s *InterviewSession) IsTerminal() bool {
	switch s.Status {
	case StatusCompleted, StatusAbandoned, StatusTimeExpired, StatusMaxQuestionsReached:
		return true
	}
	return false
}

// AskedQuestions returns the text of every question issued so far, in order.
// Forwarded to the generator so it does not repeat itself.
func (s *InterviewSession) AskedQuestions() []string {
	out := make([]string, 0, len(s.Questions))
	for i := range s.Questions {
		out = append(out, s.Questions[i].Question)
	}
	return out
}
