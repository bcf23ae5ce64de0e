package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"studyhub-quiz-service/internal/domain"
)

// QuizService contains the quiz/challenge use cases: session creation,
// joining, the per-attempt timed run, and the leaderboard projection.
type QuizService struct {
	sessions         SessionStore
	questions        QuestionRepository
	attempts         AttemptStore
	quizAnswers      AnswerSink
	challengeAnswers AnswerSink
	registry         *RunnerRegistry
	log              *zap.Logger

	now      func() time.Time
	newTimer TimerFunc
	newID    func() string
}

// Deps wires the service. Now, NewTimer, and NewID are optional overrides
// for deterministic tests.
type Deps struct {
	Sessions         SessionStore
	Questions        QuestionRepository
	Attempts         AttemptStore
	QuizAnswers      AnswerSink
	ChallengeAnswers AnswerSink
	Log              *zap.Logger

	Now      func() time.Time
	NewTimer TimerFunc
	NewID    func() string
}

func NewQuizService(d Deps) *QuizService {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewTimer == nil {
		d.NewTimer = systemTimer
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return &QuizService{
		sessions:         d.Sessions,
		questions:        d.Questions,
		attempts:         d.Attempts,
		quizAnswers:      d.QuizAnswers,
		challengeAnswers: d.ChallengeAnswers,
		registry:         NewRunnerRegistry(),
		log:              d.Log,
		now:              d.Now,
		newTimer:         d.NewTimer,
		newID:            d.NewID,
	}
}

// QuestionInput is one imported question awaiting validation.
type QuestionInput struct {
	Text          string
	OptionA       string
	OptionB       string
	OptionC       string
	OptionD       string
	CorrectAnswer string
}

// CreateSessionInput describes a new session and its full question set.
type CreateSessionInput struct {
	Mode        domain.Mode
	Topic       string
	Difficulty  domain.Difficulty
	OwnerName   string // quiz mode only
	OwnerUserID string
	ExpiresAt   *time.Time
	Questions   []QuestionInput
}

// CreateSession validates the imported question set and persists the session,
// its questions, and (for quiz mode) the single owner attempt atomically.
// A malformed set is rejected before anything is persisted.
func (s *QuizService) CreateSession(ctx context.Context, in CreateSessionInput) (domain.Session, error) {
	if in.Mode != domain.ModeQuiz && in.Mode != domain.ModeChallenge {
		return domain.Session{}, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidQuestionSet, in.Mode)
	}
	if err := validateQuestions(in.Questions); err != nil {
		return domain.Session{}, err
	}

	now := s.now()
	session := domain.Session{
		ID:             s.newID(),
		Mode:           in.Mode,
		Topic:          in.Topic,
		Difficulty:     in.Difficulty,
		TotalQuestions: len(in.Questions),
		Active:         true,
		ExpiresAt:      in.ExpiresAt,
		CreatedAt:      now,
	}

	questions := make([]domain.Question, len(in.Questions))
	for i, q := range in.Questions {
		questions[i] = domain.Question{
			ID:            s.newID(),
			SessionID:     session.ID,
			Position:      i + 1,
			Text:          q.Text,
			OptionA:       q.OptionA,
			OptionB:       q.OptionB,
			OptionC:       q.OptionC,
			OptionD:       q.OptionD,
			CorrectAnswer: domain.OptionKey(q.CorrectAnswer),
		}
	}

	var owner *domain.Attempt
	if in.Mode == domain.ModeQuiz {
		name := in.OwnerName
		if name == "" {
			name = "owner"
		}
		owner = &domain.Attempt{
			ID:          s.newID(),
			SessionID:   session.ID,
			UserID:      in.OwnerUserID,
			DisplayName: name,
			CreatedAt:   now,
		}
	}

	if err := s.sessions.CreateSession(ctx, session, questions, owner); err != nil {
		return domain.Session{}, err
	}
	s.log.Info("session created",
		zap.String("sessionId", session.ID),
		zap.String("mode", string(session.Mode)),
		zap.Int("questions", session.TotalQuestions))
	return session, nil
}

func validateQuestions(questions []QuestionInput) error {
	if len(questions) == 0 {
		return fmt.Errorf("%w: empty question list", domain.ErrInvalidQuestionSet)
	}
	for i, q := range questions {
		if q.Text == "" {
			return fmt.Errorf("%w: question %d: missing text", domain.ErrInvalidQuestionSet, i+1)
		}
		key := domain.OptionKey(q.CorrectAnswer)
		if !key.Valid() {
			return fmt.Errorf("%w: question %d: correct answer must be one of A-D", domain.ErrInvalidQuestionSet, i+1)
		}
		options := map[domain.OptionKey]string{
			domain.OptionA: q.OptionA,
			domain.OptionB: q.OptionB,
			domain.OptionC: q.OptionC,
			domain.OptionD: q.OptionD,
		}
		for _, k := range domain.OptionKeys {
			if options[k] == "" {
				return fmt.Errorf("%w: question %d: option %s is empty", domain.ErrInvalidQuestionSet, i+1, k)
			}
		}
	}
	return nil
}

// GetSession fetches session metadata.
func (s *QuizService) GetSession(ctx context.Context, id string) (domain.Session, error) {
	return s.sessions.GetSession(ctx, id)
}

// Questions returns the ordered question list for a session.
func (s *QuizService) Questions(ctx context.Context, sessionID string) ([]domain.Question, error) {
	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.questions.GetQuestions(ctx, sessionID)
}

// DeactivateSession flips a session inactive. Sessions are never deleted.
func (s *QuizService) DeactivateSession(ctx context.Context, id string) error {
	if _, err := s.sessions.GetSession(ctx, id); err != nil {
		return err
	}
	return s.sessions.DeactivateSession(ctx, id)
}

// Join registers a participant and starts (or resumes) their timed run.
// For quiz sessions the single owner attempt created with the session is
// reused; for challenges a fresh attempt is created, anonymous or not.
func (s *QuizService) Join(ctx context.Context, sessionID, displayName, userID string) (domain.Attempt, RunnerSnapshot, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Attempt{}, RunnerSnapshot{}, err
	}
	now := s.now()
	if session.Closed(now) {
		return domain.Attempt{}, RunnerSnapshot{}, domain.ErrSessionClosed
	}

	questions, err := s.questions.GetQuestions(ctx, sessionID)
	if err != nil {
		return domain.Attempt{}, RunnerSnapshot{}, err
	}
	if len(questions) == 0 {
		return domain.Attempt{}, RunnerSnapshot{}, domain.ErrNoQuestions
	}

	var attempt domain.Attempt
	var sink AnswerSink
	switch session.Mode {
	case domain.ModeQuiz:
		attempt, err = s.quizOwnerAttempt(ctx, session, userID, now)
		if err != nil {
			return domain.Attempt{}, RunnerSnapshot{}, err
		}
		sink = s.quizAnswers
	default:
		if displayName == "" {
			return domain.Attempt{}, RunnerSnapshot{}, domain.ErrNameRequired
		}
		attempt = domain.Attempt{
			ID:          s.newID(),
			SessionID:   sessionID,
			UserID:      userID,
			DisplayName: displayName,
			CreatedAt:   now,
		}
		if err := s.attempts.CreateAttempt(ctx, attempt); err != nil {
			return domain.Attempt{}, RunnerSnapshot{}, err
		}
		sink = s.challengeAnswers
	}

	if attempt.Completed {
		return attempt, finishedSnapshot(attempt, session.TotalQuestions), nil
	}

	runner, err := NewRunnerWithClock(attempt.ID, questions, session.Difficulty.TimeLimitSeconds(), sink, s.log, s.now, s.newTimer)
	if err != nil {
		return domain.Attempt{}, RunnerSnapshot{}, err
	}
	runner = s.registry.Put(attempt.ID, runner)
	runner.Start()

	s.log.Info("participant joined",
		zap.String("sessionId", sessionID),
		zap.String("attemptId", attempt.ID),
		zap.String("displayName", attempt.DisplayName))
	return attempt, runner.Snapshot(), nil
}

// quizOwnerAttempt returns the 1:1 attempt created with a quiz session,
// recreating it if the row is somehow missing.
func (s *QuizService) quizOwnerAttempt(ctx context.Context, session domain.Session, userID string, now time.Time) (domain.Attempt, error) {
	existing, err := s.attempts.ListAttempts(ctx, session.ID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if len(existing) > 0 {
		return existing[0], nil
	}
	attempt := domain.Attempt{
		ID:          s.newID(),
		SessionID:   session.ID,
		UserID:      userID,
		DisplayName: "owner",
		CreatedAt:   now,
	}
	if err := s.attempts.CreateAttempt(ctx, attempt); err != nil {
		return domain.Attempt{}, err
	}
	return attempt, nil
}

// AttemptState returns the current run snapshot. Completed attempts without
// a live runner are rendered from their persisted result.
func (s *QuizService) AttemptState(ctx context.Context, attemptID string) (RunnerSnapshot, error) {
	if runner, ok := s.registry.Get(attemptID); ok {
		return runner.Snapshot(), nil
	}
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return RunnerSnapshot{}, err
	}
	if !attempt.Completed {
		return RunnerSnapshot{}, domain.ErrAttemptNotFound
	}
	session, err := s.sessions.GetSession(ctx, attempt.SessionID)
	if err != nil {
		return RunnerSnapshot{}, err
	}
	return finishedSnapshot(attempt, session.TotalQuestions), nil
}

// Answer locks in a manual choice for an attempt's active question.
func (s *QuizService) Answer(ctx context.Context, attemptID string, key domain.OptionKey) (RunnerSnapshot, error) {
	runner, ok := s.registry.Get(attemptID)
	if !ok {
		return RunnerSnapshot{}, domain.ErrAttemptNotFound
	}
	if err := runner.Answer(ctx, key); err != nil {
		return RunnerSnapshot{}, err
	}
	return runner.Snapshot(), nil
}

// Advance moves an attempt past a revealed question, completing the run on
// the last one. A finished run is dropped from the registry; its state stays
// readable through the persisted attempt.
func (s *QuizService) Advance(ctx context.Context, attemptID string) (RunnerSnapshot, error) {
	runner, ok := s.registry.Get(attemptID)
	if !ok {
		return RunnerSnapshot{}, domain.ErrAttemptNotFound
	}
	if err := runner.Advance(ctx); err != nil {
		return RunnerSnapshot{}, err
	}
	snap := runner.Snapshot()
	if snap.State == StateFinished {
		s.registry.Delete(attemptID)
		s.log.Info("attempt completed",
			zap.String("attemptId", attemptID),
			zap.Int("score", snap.Result.Score),
			zap.Int("totalTimeSeconds", snap.Result.TotalTimeSeconds))
	}
	return snap, nil
}

// Leaderboard projects the ranked view over a session's attempts.
func (s *QuizService) Leaderboard(ctx context.Context, sessionID string) (domain.Leaderboard, error) {
	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		return domain.Leaderboard{}, err
	}
	attempts, err := s.attempts.ListAttempts(ctx, sessionID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return ProjectLeaderboard(sessionID, attempts, s.now()), nil
}

func finishedSnapshot(attempt domain.Attempt, total int) RunnerSnapshot {
	idx := total - 1
	if idx < 0 {
		idx = 0
	}
	return RunnerSnapshot{
		AttemptID:       attempt.ID,
		Index:           idx,
		Total:           total,
		ProgressPercent: 100,
		State:           StateFinished,
		Result: &domain.AttemptResult{
			Score:            attempt.Score,
			TotalTimeSeconds: attempt.TotalTimeSeconds,
		},
	}
}
