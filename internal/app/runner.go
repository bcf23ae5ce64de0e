package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"studyhub-quiz-service/internal/domain"
)

// RunnerState is the per-question phase of a run.
type RunnerState int

const (
	// StateActive accepts exactly one answer before the countdown expires.
	StateActive RunnerState = iota
	// StateLocked is the transient phase between locking in and revealing.
	StateLocked
	// StateRevealed shows correctness and waits for an advance.
	StateRevealed
	// StateFinished means every question was traversed and the attempt completed.
	StateFinished
)

func (s RunnerState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateLocked:
		return "locked"
	case StateRevealed:
		return "revealed"
	case StateFinished:
		return "finished"
	}
	return "unknown"
}

// TimerFunc schedules fn after d and returns a stop function. Injected so
// tests can fire timeouts deterministically.
type TimerFunc func(d time.Duration, fn func()) (stop func() bool)

func systemTimer(d time.Duration, fn func()) func() bool {
	t := time.AfterFunc(d, fn)
	return t.Stop
}

// Runner drives one attempt through its session's ordered questions: one
// question at a time, one answer per question (explicit choice or timeout),
// then reveal, then advance. A single timer slot is replaced on every
// question entry and cancelled on every lock, so two timers never coexist
// for the same attempt.
type Runner struct {
	attemptID    string
	questions    []domain.Question
	limitSeconds int
	sink         AnswerSink
	log          *zap.Logger
	now          func() time.Time
	newTimer     TimerFunc

	mu        sync.Mutex
	started   bool
	idx       int
	state     RunnerState
	selected  string
	correct   bool
	startedAt time.Time
	deadline  time.Time
	stopTimer func() bool
	timerGen  int
	result    *domain.AttemptResult
}

// NewRunner builds a runner over an ordered question list. An empty list is
// rejected up front; the run must not start without questions.
func NewRunner(attemptID string, questions []domain.Question, limitSeconds int, sink AnswerSink, log *zap.Logger) (*Runner, error) {
	return NewRunnerWithClock(attemptID, questions, limitSeconds, sink, log, time.Now, systemTimer)
}

// NewRunnerWithClock is test-only for deterministic countdowns and elapsed times.
func NewRunnerWithClock(attemptID string, questions []domain.Question, limitSeconds int, sink AnswerSink, log *zap.Logger, now func() time.Time, newTimer TimerFunc) (*Runner, error) {
	if len(questions) == 0 {
		return nil, domain.ErrNoQuestions
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		attemptID:    attemptID,
		questions:    questions,
		limitSeconds: limitSeconds,
		sink:         sink,
		log:          log,
		now:          now,
		newTimer:     newTimer,
	}, nil
}

// Start activates the first question. Calling it again is a no-op, so a
// rejoining participant cannot reset their run.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.beginQuestionLocked(0)
}

// Answer locks in a manual choice for the active question. A selection
// arriving after the question locked (choice already made, or the countdown
// hit zero) is rejected without effect.
func (r *Runner) Answer(ctx context.Context, key domain.OptionKey) error {
	if !key.Valid() {
		return domain.ErrInvalidOption
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateFinished {
		return domain.ErrAttemptFinished
	}
	if r.state != StateActive {
		return domain.ErrQuestionLocked
	}

	r.lockLocked()
	elapsed := r.elapsedLocked()
	question := r.questions[r.idx]
	r.selected = string(key)
	r.correct = key == question.CorrectAnswer

	r.submitLocked(ctx, question.ID, r.selected, elapsed)
	r.state = StateRevealed
	return nil
}

// Advance moves past a revealed question: to the next one, or on the last
// index to completion. While the question is still active it has no effect.
func (r *Runner) Advance(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StateFinished:
		return domain.ErrAttemptFinished
	case StateRevealed:
	default:
		return domain.ErrQuestionActive
	}

	if r.idx == len(r.questions)-1 {
		// Completion must not be reported as successful if the aggregation
		// fails; the caller may re-invoke advance later.
		result, err := r.sink.CompleteAttempt(ctx, r.attemptID)
		if err != nil {
			return err
		}
		r.result = &result
		r.state = StateFinished
		return nil
	}

	r.beginQuestionLocked(r.idx + 1)
	return nil
}

// Finished reports whether the run has completed.
func (r *Runner) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == StateFinished
}

// RunnerSnapshot is a point-in-time view of a run for rendering.
type RunnerSnapshot struct {
	AttemptID        string
	Index            int // 0-based
	Total            int
	ProgressPercent  int
	State            RunnerState
	RemainingSeconds int
	Question         domain.Question
	Selected         string
	CorrectOption    domain.OptionKey // set once revealed
	WasCorrect       bool
	Result           *domain.AttemptResult // set once finished
}

// Snapshot renders the current run state. The correct option is only
// disclosed once the question is revealed.
func (r *Runner) Snapshot() RunnerSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := RunnerSnapshot{
		AttemptID:       r.attemptID,
		Index:           r.idx,
		Total:           len(r.questions),
		ProgressPercent: (r.idx + 1) * 100 / len(r.questions),
		State:           r.state,
		Question:        r.questions[r.idx],
		Selected:        r.selected,
		Result:          r.result,
	}
	if r.state == StateActive {
		remaining := r.deadline.Sub(r.now())
		if remaining > 0 {
			snap.RemainingSeconds = int((remaining + time.Second - 1) / time.Second)
		}
	}
	if r.state == StateRevealed || r.state == StateFinished {
		snap.CorrectOption = r.questions[r.idx].CorrectAnswer
		snap.WasCorrect = r.correct
	}
	return snap
}

// beginQuestionLocked resets the per-question state and replaces the timer slot.
func (r *Runner) beginQuestionLocked(idx int) {
	r.idx = idx
	r.state = StateActive
	r.selected = ""
	r.correct = false
	r.startedAt = r.now()
	r.deadline = r.startedAt.Add(time.Duration(r.limitSeconds) * time.Second)

	r.cancelTimerLocked()
	gen := r.timerGen
	r.stopTimer = r.newTimer(time.Duration(r.limitSeconds)*time.Second, func() {
		r.timeout(gen)
	})
}

// timeout is the countdown-expired path: an empty answer, marked incorrect.
// The generation guard keeps a stale timer from firing against a later question.
func (r *Runner) timeout(gen int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.timerGen || r.state != StateActive {
		return
	}

	r.lockLocked()
	elapsed := r.elapsedLocked()
	question := r.questions[r.idx]
	r.selected = ""
	r.correct = false

	r.submitLocked(context.Background(), question.ID, "", elapsed)
	r.state = StateRevealed
}

// lockLocked transitions out of Active and retires the timer slot.
func (r *Runner) lockLocked() {
	r.state = StateLocked
	r.timerGen++
	r.cancelTimerLocked()
}

func (r *Runner) cancelTimerLocked() {
	if r.stopTimer != nil {
		r.stopTimer()
		r.stopTimer = nil
	}
}

// submitLocked records the answer with at-most-once semantics: a failed
// write is logged and not retried, and the run still advances to Revealed.
func (r *Runner) submitLocked(ctx context.Context, questionID, selected string, elapsed int) {
	if _, err := r.sink.SubmitAnswer(ctx, r.attemptID, questionID, selected, elapsed); err != nil {
		r.log.Error("answer submission failed",
			zap.String("attemptId", r.attemptID),
			zap.String("questionId", questionID),
			zap.Error(err))
	}
}

// elapsedLocked is wall-clock whole seconds since the question became active.
func (r *Runner) elapsedLocked() int {
	elapsed := int(r.now().Sub(r.startedAt) / time.Second)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}
