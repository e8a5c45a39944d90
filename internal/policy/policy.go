package policy

import "strings"

type Level string

const (
	LevelJunior Level = "junior"
	LevelMid    Level = "mid"
	LevelSenior Level = "senior"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// difficultyRank orders the difficulty ladder: easy < medium < hard.
var difficultyRank = map[Difficulty]int{
	DifficultyEasy:   0,
	DifficultyMedium: 1,
	DifficultyHard:   2,
}

// DifficultyBand is an inclusive numeric range on a 1-10 scale.
type DifficultyBand struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// TopicPolicy lists topics a role may and may not be asked about at a level.
type TopicPolicy struct {
	Allowed   []string `json:"allowed"`
	Forbidden []string `json:"forbidden"`
}

// LevelConfig bundles everything the policy knows about one experience level.
type LevelConfig struct {
	Band                DifficultyBand         `json:"band"`
	AllowedDifficulties []Difficulty           `json:"allowed_difficulties"`
	TopicsByRole        map[string]TopicPolicy `json:"topics_by_role"`
}

const defaultRoleBucket = "_default"

var levelConfigs = map[Level]LevelConfig{
	LevelJunior: {
		Band:                DifficultyBand{Min: 1, Max: 4},
		AllowedDifficulties: []Difficulty{DifficultyEasy},
		TopicsByRole: map[string]TopicPolicy{
			"backend": {
				Allowed:   []string{"http basics", "rest apis", "sql fundamentals", "data structures", "version control", "testing basics"},
				Forbidden: []string{"distributed consensus", "sharding strategies", "capacity planning", "team leadership"},
			},
			"frontend": {
				Allowed:   []string{"html semantics", "css layout", "javascript fundamentals", "dom events", "accessibility basics"},
				Forbidden: []string{"rendering pipeline internals", "micro-frontend architecture", "team leadership"},
			},
			"fullstack": {
				Allowed:   []string{"http basics", "javascript fundamentals", "sql fundamentals", "rest apis", "version control"},
				Forbidden: []string{"distributed consensus", "capacity planning", "team leadership"},
			},
			defaultRoleBucket: {
				Allowed:   []string{"programming fundamentals", "data structures", "debugging", "version control"},
				Forbidden: []string{"system design at scale", "team leadership"},
			},
		},
	},
	LevelMid: {
		Band:                DifficultyBand{Min: 3, Max: 7},
		AllowedDifficulties: []Difficulty{DifficultyEasy, DifficultyMedium},
		TopicsByRole: map[string]TopicPolicy{
			"backend": {
				Allowed:   []string{"api design", "database indexing", "caching", "concurrency basics", "message queues", "testing strategy"},
				Forbidden: []string{"org design", "executive communication"},
			},
			"frontend": {
				Allowed:   []string{"state management", "performance profiling", "build tooling", "component architecture", "testing strategy"},
				Forbidden: []string{"org design", "executive communication"},
			},
			"fullstack": {
				Allowed:   []string{"api design", "state management", "caching", "database indexing", "deployment basics"},
				Forbidden: []string{"org design", "executive communication"},
			},
			defaultRoleBucket: {
				Allowed:   []string{"system design basics", "code review", "testing strategy", "debugging production issues"},
				Forbidden: []string{"org design", "executive communication"},
			},
		},
	},
	LevelSenior: {
		Band:                DifficultyBand{Min: 6, Max: 10},
		AllowedDifficulties: []Difficulty{DifficultyMedium, DifficultyHard},
		TopicsByRole: map[string]TopicPolicy{
			"backend": {
				Allowed:   []string{"distributed systems", "scalability", "data modeling tradeoffs", "observability", "incident response", "architecture reviews"},
				Forbidden: []string{"syntax trivia", "tool-specific trivia"},
			},
			"frontend": {
				Allowed:   []string{"rendering performance", "design systems", "micro-frontend architecture", "accessibility at scale", "architecture reviews"},
				Forbidden: []string{"syntax trivia", "tool-specific trivia"},
			},
			"fullstack": {
				Allowed:   []string{"system design", "scalability", "api versioning", "observability", "architecture reviews"},
				Forbidden: []string{"syntax trivia", "tool-specific trivia"},
			},
			defaultRoleBucket: {
				Allowed:   []string{"system design", "technical strategy", "mentoring", "incident response"},
				Forbidden: []string{"syntax trivia", "tool-specific trivia"},
			},
		},
	},
}

// ParseLevel normalizes a level string. Unrecognized input maps to junior,
// the most restrictive band.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mid", "mid-level", "intermediate":
		return LevelMid
	case "senior":
		return LevelSenior
	default:
		return LevelJunior
	}
}

// ConfigFor returns the config for a level. Total: every input yields a
// config, unknown levels fall back to the junior config.
func ConfigFor(level Level) LevelConfig {
	if cfg, ok := levelConfigs[level]; ok {
		return cfg
	}
	return levelConfigs[LevelJunior]
}

// AllowsDifficulty reports whether a difficulty label is permitted at a level.
func AllowsDifficulty(d Difficulty, level Level) bool {
	for _, allowed := range ConfigFor(level).AllowedDifficulties {
		if d == allowed {
			return true
		}
	}
	return false
}

// ClampDifficulty maps a difficulty to the nearest member of the level's
// allowed set. Labels outside the easy/medium/hard ladder clamp to the lowest
// allowed difficulty. Idempotent: clamping an already-allowed value is a no-op.
func ClampDifficulty(d Difficulty, level Level) Difficulty {
	cfg := ConfigFor(level)
	if AllowsDifficulty(d, level) {
		return d
	}
	rank, known := difficultyRank[d]
	best := cfg.AllowedDifficulties[0]
	if !known {
		return best
	}
	bestDist := -1
	for _, allowed := range cfg.AllowedDifficulties {
		dist := difficultyRank[allowed] - rank
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			best = allowed
			bestDist = dist
		}
	}
	return best
}

// ClampScore forces a numeric level score into the level's band.
func ClampScore(v float64, level Level) float64 {
	band := ConfigFor(level).Band
	if v < band.Min {
		return band.Min
	}
	if v > band.Max {
		return band.Max
	}
	return v
}

// TopicsFor returns the topic policy for a role at a level, falling back to
// the generic bucket when the role is not recognized.
func TopicsFor(role string, level Level) TopicPolicy {
	cfg := ConfigFor(level)
	if tp, ok := cfg.TopicsByRole[roleBucket(role)]; ok {
		return tp
	}
	return cfg.TopicsByRole[defaultRoleBucket]
}

// roleBucket maps free-text role names onto the policy's role buckets.
// "fullstack" is checked first since it contains both other keywords.
func roleBucket(role string) string {
	r := strings.ToLower(role)
	switch {
	case strings.Contains(r, "fullstack"), strings.Contains(r, "full stack"), strings.Contains(r, "full-stack"):
		return "fullstack"
	case strings.Contains(r, "backend"), strings.Contains(r, "back end"), strings.Contains(r, "back-end"):
		return "backend"
	case strings.Contains(r, "frontend"), strings.Contains(r, "front end"), strings.Contains(r, "front-end"):
		return "frontend"
	default:
		return defaultRoleBucket
	}
}

// NextDifficulty walks the easy < medium < hard ladder from the turn's
// overall score: above 8 steps up a rung, 5 or below steps down, anything
// else holds. The ladder never leaves the easy..hard range.
func NextDifficulty(current Difficulty, overall float64) Difficulty {
	rank, known := difficultyRank[current]
	if !known {
		return current
	}
	switch {
	case overall > 8 && rank < difficultyRank[DifficultyHard]:
		rank++
	case overall <= 5 && rank > difficultyRank[DifficultyEasy]:
		rank--
	}
	for d, r := range difficultyRank {
		if r == rank {
			return d
		}
	}
	return current
}
