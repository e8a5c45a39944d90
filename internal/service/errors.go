package service

import "errors"

// Caller-visible error kinds. Handlers translate these into HTTP statuses;
// the engine itself never retries them.
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionNotActive  = errors.New("session is not in progress")
	ErrNoPendingQuestion = errors.New("no unanswered question in session")
)
