package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"studyhub-quiz-service/internal/app"
	"studyhub-quiz-service/internal/domain"
)

const pgUniqueViolation = "23505"

// Store is the bun-backed implementation of the session and attempt stores.
type Store struct {
	db  *bun.DB
	now func() time.Time
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db, now: time.Now}
}

type sessionRow struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	ID             string     `bun:"id,pk"`
	Mode           string     `bun:"mode,notnull"`
	Topic          string     `bun:"topic,notnull"`
	Difficulty     string     `bun:"difficulty,notnull"`
	TotalQuestions int        `bun:"total_questions,notnull"`
	Active         bool       `bun:"active,notnull"`
	ExpiresAt      *time.Time `bun:"expires_at"`
	CreatedAt      time.Time  `bun:"created_at,notnull"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:q"`

	ID            string `bun:"id,pk"`
	SessionID     string `bun:"session_id,notnull"`
	Ordinal       int    `bun:"ordinal,notnull"`
	Prompt        string `bun:"prompt,notnull"`
	OptionA       string `bun:"option_a,notnull"`
	OptionB       string `bun:"option_b,notnull"`
	OptionC       string `bun:"option_c,notnull"`
	OptionD       string `bun:"option_d,notnull"`
	CorrectAnswer string `bun:"correct_answer,notnull"`

	// inline quiz-mode answer fields
	UserAnswer       string `bun:"user_answer,notnull,default:''"`
	UserCorrect      bool   `bun:"user_correct,notnull,default:false"`
	TimeTakenSeconds int    `bun:"time_taken_seconds,notnull,default:0"`
}

type attemptRow struct {
	bun.BaseModel `bun:"table:attempts,alias:a"`

	ID               string     `bun:"id,pk"`
	SessionID        string     `bun:"session_id,notnull"`
	UserID           string     `bun:"user_id,notnull,default:''"`
	DisplayName      string     `bun:"display_name,notnull"`
	Score            int        `bun:"score,notnull,default:0"`
	TotalTimeSeconds int        `bun:"total_time_seconds,notnull,default:0"`
	Completed        bool       `bun:"completed,notnull,default:false"`
	CompletedAt      *time.Time `bun:"completed_at"`
	CreatedAt        time.Time  `bun:"created_at,notnull"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:ans"`

	ID               string    `bun:"id,pk"`
	AttemptID        string    `bun:"attempt_id,notnull"`
	QuestionID       string    `bun:"question_id,notnull"`
	Selected         string    `bun:"selected,notnull,default:''"`
	IsCorrect        bool      `bun:"is_correct,notnull,default:false"`
	TimeTakenSeconds int       `bun:"time_taken_seconds,notnull,default:0"`
	CreatedAt        time.Time `bun:"created_at,notnull"`
}

// CreateSession inserts the session, its full question set, and the optional
// quiz owner attempt in one transaction. All-or-nothing: a failure leaves no
// partial session behind.
func (s *Store) CreateSession(ctx context.Context, session domain.Session, questions []domain.Question, owner *domain.Attempt) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		srow := sessionToRow(session)
		if _, err := tx.NewInsert().Model(&srow).Exec(ctx); err != nil {
			return err
		}

		qrows := make([]questionRow, len(questions))
		for i, q := range questions {
			qrows[i] = questionToRow(q)
		}
		if _, err := tx.NewInsert().Model(&qrows).Exec(ctx); err != nil {
			return err
		}

		if owner != nil {
			arow := attemptToRow(*owner)
			if _, err := tx.NewInsert().Model(&arow).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetSession(ctx context.Context, id string) (domain.Session, error) {
	var row sessionRow
	err := s.db.NewSelect().Model(&row).Where("s.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	return sessionFromRow(row), nil
}

func (s *Store) DeactivateSession(ctx context.Context, id string) error {
	res, err := s.db.NewUpdate().
		Model((*sessionRow)(nil)).
		Set("active = FALSE").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *Store) CreateAttempt(ctx context.Context, attempt domain.Attempt) error {
	row := attemptToRow(attempt)
	_, err := s.db.NewInsert().Model(&row).Exec(ctx)
	return err
}

func (s *Store) GetAttempt(ctx context.Context, id string) (domain.Attempt, error) {
	var row attemptRow
	err := s.db.NewSelect().Model(&row).Where("a.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, err
	}
	return attemptFromRow(row), nil
}

// ListAttempts returns a session's attempts ordered by join time. For
// attempts still in progress the score and time are aggregated live from the
// answers recorded so far, so the leaderboard can rank them.
func (s *Store) ListAttempts(ctx context.Context, sessionID string) ([]domain.Attempt, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var rows []attemptRow
	if err := s.db.NewSelect().
		Model(&rows).
		Where("a.session_id = ?", sessionID).
		Order("a.created_at ASC", "a.id ASC").
		Scan(ctx); err != nil {
		return nil, err
	}

	attempts := make([]domain.Attempt, len(rows))
	for i, row := range rows {
		attempts[i] = attemptFromRow(row)
	}

	for i := range attempts {
		if attempts[i].Completed {
			continue
		}
		score, totalTime, err := s.aggregate(ctx, session, attempts[i].ID)
		if err != nil {
			return nil, err
		}
		attempts[i].Score = score
		attempts[i].TotalTimeSeconds = totalTime
	}
	return attempts, nil
}

type aggregateRow struct {
	Score     int `bun:"score"`
	TotalTime int `bun:"total_time"`
}

// aggregate counts correct answers and sums time for one attempt, reading
// inline question rows for quizzes and answer rows for challenges.
func (s *Store) aggregate(ctx context.Context, session domain.Session, attemptID string) (int, int, error) {
	var agg aggregateRow
	var err error
	if session.Mode == domain.ModeQuiz {
		err = s.db.NewSelect().
			Model((*questionRow)(nil)).
			ColumnExpr("count(*) FILTER (WHERE q.user_correct) AS score").
			ColumnExpr("COALESCE(SUM(q.time_taken_seconds), 0) AS total_time").
			Where("q.session_id = ?", session.ID).
			Scan(ctx, &agg)
	} else {
		err = s.db.NewSelect().
			Model((*answerRow)(nil)).
			ColumnExpr("count(*) FILTER (WHERE ans.is_correct) AS score").
			ColumnExpr("COALESCE(SUM(ans.time_taken_seconds), 0) AS total_time").
			Where("ans.attempt_id = ?", attemptID).
			Scan(ctx, &agg)
	}
	if err != nil {
		return 0, 0, err
	}
	return agg.Score, agg.TotalTime, nil
}

// QuizAnswers returns the inline quiz-mode answer adapter: the owner's
// answer is written back onto the question row, overwrite being the
// idempotent exception to answer immutability.
func (s *Store) QuizAnswers() app.AnswerSink { return quizSink{s} }

// ChallengeAnswers returns the challenge-mode adapter: one answer row per
// (attempt, question), duplicates rejected by the unique constraint.
func (s *Store) ChallengeAnswers() app.AnswerSink { return challengeSink{s} }

type quizSink struct{ store *Store }

func (q quizSink) SubmitAnswer(ctx context.Context, attemptID, questionID, selected string, timeTakenSeconds int) (bool, error) {
	s := q.store

	var question questionRow
	err := s.db.NewSelect().Model(&question).Where("q.id = ?", questionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrQuestionNotFound
	}
	if err != nil {
		return false, err
	}

	correct := selected != "" && selected == question.CorrectAnswer
	_, err = s.db.NewUpdate().
		Model((*questionRow)(nil)).
		Set("user_answer = ?", selected).
		Set("user_correct = ?", correct).
		Set("time_taken_seconds = ?", timeTakenSeconds).
		Where("id = ?", questionID).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return correct, nil
}

func (q quizSink) CompleteAttempt(ctx context.Context, attemptID string) (domain.AttemptResult, error) {
	s := q.store
	attempt, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	session, err := s.GetSession(ctx, attempt.SessionID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	return s.complete(ctx, session, attemptID)
}

type challengeSink struct{ store *Store }

func (c challengeSink) SubmitAnswer(ctx context.Context, attemptID, questionID, selected string, timeTakenSeconds int) (bool, error) {
	s := c.store

	var question questionRow
	err := s.db.NewSelect().Model(&question).Where("q.id = ?", questionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrQuestionNotFound
	}
	if err != nil {
		return false, err
	}

	correct := selected != "" && selected == question.CorrectAnswer
	row := answerRow{
		ID:               uuid.NewString(),
		AttemptID:        attemptID,
		QuestionID:       questionID,
		Selected:         selected,
		IsCorrect:        correct,
		TimeTakenSeconds: timeTakenSeconds,
		CreatedAt:        s.now(),
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return false, domain.ErrAnswerExists
		}
		return false, err
	}
	return correct, nil
}

func (c challengeSink) CompleteAttempt(ctx context.Context, attemptID string) (domain.AttemptResult, error) {
	s := c.store
	attempt, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	session, err := s.GetSession(ctx, attempt.SessionID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	return s.complete(ctx, session, attemptID)
}

// complete recomputes the aggregation from the recorded answers and persists
// it. completed_at is set at most once; re-invocation recomputes the same
// values from the same immutable answer set.
func (s *Store) complete(ctx context.Context, session domain.Session, attemptID string) (domain.AttemptResult, error) {
	score, totalTime, err := s.aggregate(ctx, session, attemptID)
	if err != nil {
		return domain.AttemptResult{}, err
	}

	res, err := s.db.NewUpdate().
		Model((*attemptRow)(nil)).
		Set("score = ?", score).
		Set("total_time_seconds = ?", totalTime).
		Set("completed = TRUE").
		Set("completed_at = COALESCE(completed_at, ?)", s.now()).
		Where("id = ?", attemptID).
		Exec(ctx)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.AttemptResult{}, domain.ErrAttemptNotFound
	}
	return domain.AttemptResult{Score: score, TotalTimeSeconds: totalTime}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == pgUniqueViolation
}

func sessionToRow(s domain.Session) sessionRow {
	return sessionRow{
		ID:             s.ID,
		Mode:           string(s.Mode),
		Topic:          s.Topic,
		Difficulty:     string(s.Difficulty),
		TotalQuestions: s.TotalQuestions,
		Active:         s.Active,
		ExpiresAt:      s.ExpiresAt,
		CreatedAt:      s.CreatedAt,
	}
}

func sessionFromRow(r sessionRow) domain.Session {
	return domain.Session{
		ID:             r.ID,
		Mode:           domain.Mode(r.Mode),
		Topic:          r.Topic,
		Difficulty:     domain.Difficulty(r.Difficulty),
		TotalQuestions: r.TotalQuestions,
		Active:         r.Active,
		ExpiresAt:      r.ExpiresAt,
		CreatedAt:      r.CreatedAt,
	}
}

func questionToRow(q domain.Question) questionRow {
	return questionRow{
		ID:               q.ID,
		SessionID:        q.SessionID,
		Ordinal:          q.Position,
		Prompt:           q.Text,
		OptionA:          q.OptionA,
		OptionB:          q.OptionB,
		OptionC:          q.OptionC,
		OptionD:          q.OptionD,
		CorrectAnswer:    string(q.CorrectAnswer),
		UserAnswer:       q.UserAnswer,
		UserCorrect:      q.UserCorrect,
		TimeTakenSeconds: q.TimeTakenSeconds,
	}
}

func attemptToRow(a domain.Attempt) attemptRow {
	return attemptRow{
		ID:               a.ID,
		SessionID:        a.SessionID,
		UserID:           a.UserID,
		DisplayName:      a.DisplayName,
		Score:            a.Score,
		TotalTimeSeconds: a.TotalTimeSeconds,
		Completed:        a.Completed,
		CompletedAt:      a.CompletedAt,
		CreatedAt:        a.CreatedAt,
	}
}

func attemptFromRow(r attemptRow) domain.Attempt {
	return domain.Attempt{
		ID:               r.ID,
		SessionID:        r.SessionID,
		UserID:           r.UserID,
		DisplayName:      r.DisplayName,
		Score:            r.Score,
		TotalTimeSeconds: r.TotalTimeSeconds,
		Completed:        r.Completed,
		CompletedAt:      r.CompletedAt,
		CreatedAt:        r.CreatedAt,
	}
}
