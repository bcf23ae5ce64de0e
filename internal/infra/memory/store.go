package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"studyhub-quiz-service/internal/app"
	"studyhub-quiz-service/internal/domain"
)

// Store is an in-memory implementation of the session and attempt stores,
// used for tests and for running the server without Postgres.
type Store struct {
	mu        sync.RWMutex
	now       func() time.Time
	sessions  map[string]domain.Session
	questions map[string][]domain.Question          // session id -> ordered questions
	attempts  map[string]*domain.Attempt            // attempt id
	answers   map[string]map[string]domain.Answer   // attempt id -> question id
}

func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock is test-only for deterministic completion timestamps.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{
		now:       now,
		sessions:  make(map[string]domain.Session),
		questions: make(map[string][]domain.Question),
		attempts:  make(map[string]*domain.Attempt),
		answers:   make(map[string]map[string]domain.Answer),
	}
}

func (s *Store) CreateSession(_ context.Context, session domain.Session, questions []domain.Question, owner *domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = session
	qs := make([]domain.Question, len(questions))
	copy(qs, questions)
	s.questions[session.ID] = qs
	if owner != nil {
		attempt := *owner
		s.attempts[attempt.ID] = &attempt
	}
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) DeactivateSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.Active = false
	s.sessions[id] = session
	return nil
}

// LoadQuestions serves the question cache; ordering follows insertion order,
// which is position order by construction.
func (s *Store) LoadQuestions(_ context.Context, sessionID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, domain.ErrSessionNotFound
	}
	qs := make([]domain.Question, len(s.questions[sessionID]))
	copy(qs, s.questions[sessionID])
	return qs, nil
}

func (s *Store) CreateAttempt(_ context.Context, attempt domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := attempt
	s.attempts[a.ID] = &a
	return nil
}

func (s *Store) GetAttempt(_ context.Context, id string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[id]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return *attempt, nil
}

// ListAttempts returns the session's attempts ordered by join time. Attempts
// still in progress carry the score and time accumulated so far.
func (s *Store) ListAttempts(_ context.Context, sessionID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	var out []domain.Attempt
	for _, attempt := range s.attempts {
		if attempt.SessionID != sessionID {
			continue
		}
		a := *attempt
		if !a.Completed {
			a.Score, a.TotalTimeSeconds = s.aggregateLocked(session, a.ID)
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// aggregateLocked counts correct answers and sums time for one attempt,
// reading inline question rows for quizzes and answer rows for challenges.
func (s *Store) aggregateLocked(session domain.Session, attemptID string) (score, totalTime int) {
	if session.Mode == domain.ModeQuiz {
		for _, q := range s.questions[session.ID] {
			if q.UserCorrect {
				score++
			}
			totalTime += q.TimeTakenSeconds
		}
		return score, totalTime
	}
	for _, answer := range s.answers[attemptID] {
		if answer.IsCorrect {
			score++
		}
		totalTime += answer.TimeTakenSeconds
	}
	return score, totalTime
}

func (s *Store) findQuestionLocked(sessionID, questionID string) (int, bool) {
	for i, q := range s.questions[sessionID] {
		if q.ID == questionID {
			return i, true
		}
	}
	return 0, false
}

// QuizAnswers returns the inline quiz-mode answer adapter: the owner's
// answer is written back onto the question row, and overwriting is the
// idempotent exception to answer immutability.
func (s *Store) QuizAnswers() app.AnswerSink { return quizSink{s} }

// ChallengeAnswers returns the challenge-mode adapter: one answer row per
// (attempt, question), duplicates rejected.
func (s *Store) ChallengeAnswers() app.AnswerSink { return challengeSink{s} }

type quizSink struct{ store *Store }

func (q quizSink) SubmitAnswer(_ context.Context, attemptID, questionID, selected string, timeTakenSeconds int) (bool, error) {
	s := q.store
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[attemptID]
	if !ok {
		return false, domain.ErrAttemptNotFound
	}
	i, ok := s.findQuestionLocked(attempt.SessionID, questionID)
	if !ok {
		return false, domain.ErrQuestionNotFound
	}

	question := &s.questions[attempt.SessionID][i]
	correct := selected != "" && domain.OptionKey(selected) == question.CorrectAnswer
	question.UserAnswer = selected
	question.UserCorrect = correct
	question.TimeTakenSeconds = timeTakenSeconds
	return correct, nil
}

func (q quizSink) CompleteAttempt(_ context.Context, attemptID string) (domain.AttemptResult, error) {
	s := q.store
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.AttemptResult{}, domain.ErrAttemptNotFound
	}
	session := s.sessions[attempt.SessionID]
	score, totalTime := s.aggregateLocked(session, attemptID)
	s.completeLocked(attempt, score, totalTime)
	return domain.AttemptResult{Score: score, TotalTimeSeconds: totalTime}, nil
}

type challengeSink struct{ store *Store }

func (c challengeSink) SubmitAnswer(_ context.Context, attemptID, questionID, selected string, timeTakenSeconds int) (bool, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[attemptID]
	if !ok {
		return false, domain.ErrAttemptNotFound
	}
	i, ok := s.findQuestionLocked(attempt.SessionID, questionID)
	if !ok {
		return false, domain.ErrQuestionNotFound
	}
	if _, exists := s.answers[attemptID][questionID]; exists {
		return false, domain.ErrAnswerExists
	}

	question := s.questions[attempt.SessionID][i]
	correct := selected != "" && domain.OptionKey(selected) == question.CorrectAnswer
	if s.answers[attemptID] == nil {
		s.answers[attemptID] = make(map[string]domain.Answer)
	}
	s.answers[attemptID][questionID] = domain.Answer{
		ID:               uuid.NewString(),
		AttemptID:        attemptID,
		QuestionID:       questionID,
		Selected:         selected,
		IsCorrect:        correct,
		TimeTakenSeconds: timeTakenSeconds,
		CreatedAt:        s.now(),
	}
	return correct, nil
}

func (c challengeSink) CompleteAttempt(_ context.Context, attemptID string) (domain.AttemptResult, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.AttemptResult{}, domain.ErrAttemptNotFound
	}
	session := s.sessions[attempt.SessionID]
	score, totalTime := s.aggregateLocked(session, attemptID)
	s.completeLocked(attempt, score, totalTime)
	return domain.AttemptResult{Score: score, TotalTimeSeconds: totalTime}, nil
}

// completeLocked persists the aggregation. completed_at is set at most once;
// recomputation over the same answers yields the same values.
func (s *Store) completeLocked(attempt *domain.Attempt, score, totalTime int) {
	attempt.Score = score
	attempt.TotalTimeSeconds = totalTime
	if !attempt.Completed {
		attempt.Completed = true
		at := s.now()
		attempt.CompletedAt = &at
	}
}
