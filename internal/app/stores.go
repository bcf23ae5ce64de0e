package app

import (
	"context"

	"studyhub-quiz-service/internal/domain"
)

// SessionStore persists sessions and their question sets. Creation is
// all-or-nothing: either the session, every question, and the optional owner
// attempt land together, or nothing is persisted.
type SessionStore interface {
	CreateSession(ctx context.Context, session domain.Session, questions []domain.Question, owner *domain.Attempt) error
	GetSession(ctx context.Context, id string) (domain.Session, error)
	DeactivateSession(ctx context.Context, id string) error
}

// QuestionRepository serves the ordered, immutable question list for a
// session (from cache or backing store).
type QuestionRepository interface {
	GetQuestions(ctx context.Context, sessionID string) ([]domain.Question, error)
}

// AttemptStore manages participant records.
// ListAttempts reports still-accumulating score and time for attempts that
// have not completed yet, so the leaderboard can rank them live.
type AttemptStore interface {
	CreateAttempt(ctx context.Context, attempt domain.Attempt) error
	GetAttempt(ctx context.Context, id string) (domain.Attempt, error)
	ListAttempts(ctx context.Context, sessionID string) ([]domain.Attempt, error)
}

// AnswerSink is the capability the runner drives: record one answer per
// question, then aggregate the final result. Two concrete adapters exist,
// one writing quiz-mode answers inline onto question rows (overwrite is
// idempotent) and one inserting challenge-mode answer rows guarded by a
// uniqueness constraint.
type AnswerSink interface {
	// SubmitAnswer records an answer (selected may be empty on timeout) and
	// reports whether it was correct.
	SubmitAnswer(ctx context.Context, attemptID, questionID, selected string, timeTakenSeconds int) (bool, error)
	// CompleteAttempt recomputes score and total time from the recorded
	// answers and persists them onto the attempt. Pure aggregation over
	// immutable answers, so re-invocation yields the same result.
	CompleteAttempt(ctx context.Context, attemptID string) (domain.AttemptResult, error)
}
