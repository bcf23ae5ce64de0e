package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no session exists for an id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionClosed is returned when a session is deactivated or expired.
	ErrSessionClosed = errors.New("session is closed")
	// ErrAttemptNotFound is returned when no attempt exists for an id.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrQuestionNotFound indicates a submitted question id is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrNoQuestions is returned when a session has no loadable questions;
	// the runner must not start in that case.
	ErrNoQuestions = errors.New("no questions found")
	// ErrInvalidQuestionSet rejects a malformed imported question list before
	// any session is created. Wrapped with the offending detail.
	ErrInvalidQuestionSet = errors.New("invalid question set")
	// ErrInvalidOption is returned for a selection outside A-D.
	ErrInvalidOption = errors.New("invalid option")
	// ErrNameRequired is returned when a participant joins without a display name.
	ErrNameRequired = errors.New("display name required")
	// ErrQuestionLocked is returned for an answer arriving after the current
	// question was already locked by a choice or a timeout.
	ErrQuestionLocked = errors.New("question already locked")
	// ErrQuestionActive is returned for an advance before the current
	// question is locked and revealed.
	ErrQuestionActive = errors.New("question still active")
	// ErrAnswerExists enforces the one-answer-per-question contract for
	// challenge participants.
	ErrAnswerExists = errors.New("answer already recorded")
	// ErrAttemptFinished is returned for actions against a finished run.
	ErrAttemptFinished = errors.New("attempt already finished")
)
