package domain

import "time"

// Mode distinguishes the two session flavors. A quiz has a single implicit
// participant (its owner); a challenge has many named participants.
type Mode string

const (
	ModeQuiz      Mode = "quiz"
	ModeChallenge Mode = "challenge"
)

// Difficulty drives the per-question time budget.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// TimeLimitSeconds returns the per-question budget for a difficulty.
// Easy and medium get 60 seconds, hard gets 180. Anything unrecognized
// falls back to 60.
func (d Difficulty) TimeLimitSeconds() int {
	if d == DifficultyHard {
		return 180
	}
	return 60
}

// Session is one quiz or challenge instance with a fixed ordered question set.
// It is read-only after creation; a challenge can be deactivated but never deleted.
type Session struct {
	ID             string     `json:"id"`
	Mode           Mode       `json:"mode"`
	Topic          string     `json:"topic"`
	Difficulty     Difficulty `json:"difficulty"`
	TotalQuestions int        `json:"totalQuestions"`
	Active         bool       `json:"active"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Closed reports whether the session no longer accepts participants.
func (s Session) Closed(now time.Time) bool {
	if !s.Active {
		return true
	}
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// Question is one multiple-choice item. Immutable after insertion, with the
// exception of the inline answer fields used by quiz-mode sessions, where the
// owner's answer is written back onto the question row.
type Question struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"sessionId"`
	Position      int       `json:"position"` // 1-based within the session
	Text          string    `json:"text"`
	OptionA       string    `json:"optionA"`
	OptionB       string    `json:"optionB"`
	OptionC       string    `json:"optionC"`
	OptionD       string    `json:"optionD"`
	CorrectAnswer OptionKey `json:"correctAnswer"`

	// Inline quiz-mode answer state. Challenge-mode answers live in the
	// answers table instead.
	UserAnswer       string `json:"userAnswer,omitempty"`
	UserCorrect      bool   `json:"userCorrect,omitempty"`
	TimeTakenSeconds int    `json:"timeTakenSeconds,omitempty"`
}

// Option returns the text for one of the four option slots.
func (q Question) Option(key OptionKey) string {
	switch key {
	case OptionA:
		return q.OptionA
	case OptionB:
		return q.OptionB
	case OptionC:
		return q.OptionC
	case OptionD:
		return q.OptionD
	}
	return ""
}

// Attempt is one participant's play-through of a session. The score and
// total time are written by the completion aggregation exactly once.
type Attempt struct {
	ID               string     `json:"id"`
	SessionID        string     `json:"sessionId"`
	UserID           string     `json:"userId,omitempty"` // empty for anonymous participants
	DisplayName      string     `json:"displayName"`
	Score            int        `json:"score"`
	TotalTimeSeconds int        `json:"totalTimeSeconds"`
	Completed        bool       `json:"completed"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// Answer is one participant's response to one question. An empty Selected
// means the countdown expired before a choice was made. At most one answer
// exists per (attempt, question) pair.
type Answer struct {
	ID               string    `json:"id"`
	AttemptID        string    `json:"attemptId"`
	QuestionID       string    `json:"questionId"`
	Selected         string    `json:"selected"`
	IsCorrect        bool      `json:"isCorrect"`
	TimeTakenSeconds int       `json:"timeTakenSeconds"`
	CreatedAt        time.Time `json:"createdAt"`
}

// AttemptResult is the outcome of completing an attempt.
type AttemptResult struct {
	Score            int `json:"score"`
	TotalTimeSeconds int `json:"totalTimeSeconds"`
}
