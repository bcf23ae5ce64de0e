package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"studyhub-quiz-service/internal/domain"
)

// QuestionLoader loads ordered question sets from Postgres on the read side.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context, sessionID string) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, session_id, ordinal, prompt,
		       option_a, option_b, option_c, option_d, correct_answer,
		       user_answer, user_correct, time_taken_seconds
		FROM questions
		WHERE session_id = $1
		ORDER BY ordinal`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var q domain.Question
		var correct string
		if err := rows.Scan(&q.ID, &q.SessionID, &q.Position, &q.Text,
			&q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD, &correct,
			&q.UserAnswer, &q.UserCorrect, &q.TimeTakenSeconds); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.CorrectAnswer = domain.OptionKey(correct)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	if len(questions) == 0 {
		// distinguish "unknown session" from "session with no questions"
		var one int
		err := l.pool.QueryRow(ctx, `SELECT 1 FROM sessions WHERE id = $1`, sessionID).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("check session: %w", err)
		}
	}
	return questions, nil
}
