package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"studyhub-quiz-service/internal/app"
	"studyhub-quiz-service/internal/domain"
)

// Handler exposes the quiz/challenge use cases as a JSON REST API. There is
// no push channel: clients re-query attempt state and the leaderboard.
type Handler struct {
	service *app.QuizService
	log     *zap.Logger
}

func NewHandler(service *app.QuizService, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{service: service, log: log}
}

// Register wires the routes onto the engine.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	v1 := r.Group("/api/v1")
	v1.POST("/sessions", h.createSession)
	v1.GET("/sessions/:id", h.getSession)
	v1.GET("/sessions/:id/questions", h.listQuestions)
	v1.POST("/sessions/:id/join", h.joinSession)
	v1.POST("/sessions/:id/deactivate", h.deactivateSession)
	v1.GET("/sessions/:id/leaderboard", h.leaderboard)
	v1.GET("/attempts/:id", h.attemptState)
	v1.POST("/attempts/:id/answer", h.answer)
	v1.POST("/attempts/:id/advance", h.advance)
}

type questionPayload struct {
	Text          string `json:"text"`
	OptionA       string `json:"optionA"`
	OptionB       string `json:"optionB"`
	OptionC       string `json:"optionC"`
	OptionD       string `json:"optionD"`
	CorrectAnswer string `json:"correctAnswer"`
}

type createSessionRequest struct {
	Mode        string            `json:"mode"`
	Topic       string            `json:"topic"`
	Difficulty  string            `json:"difficulty"`
	OwnerName   string            `json:"ownerName"`
	OwnerUserID string            `json:"ownerUserId"`
	ExpiresAt   *time.Time        `json:"expiresAt"`
	Questions   []questionPayload `json:"questions"`
}

func (h *Handler) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	in := app.CreateSessionInput{
		Mode:        domain.Mode(req.Mode),
		Topic:       req.Topic,
		Difficulty:  domain.Difficulty(req.Difficulty),
		OwnerName:   req.OwnerName,
		OwnerUserID: req.OwnerUserID,
		ExpiresAt:   req.ExpiresAt,
	}
	for _, q := range req.Questions {
		in.Questions = append(in.Questions, app.QuestionInput{
			Text:          q.Text,
			OptionA:       q.OptionA,
			OptionB:       q.OptionB,
			OptionC:       q.OptionC,
			OptionD:       q.OptionD,
			CorrectAnswer: q.CorrectAnswer,
		})
	}

	session, err := h.service.CreateSession(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *Handler) getSession(c *gin.Context) {
	session, err := h.service.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) listQuestions(c *gin.Context) {
	questions, err := h.service.Questions(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": questions})
}

func (h *Handler) deactivateSession(c *gin.Context) {
	if err := h.service.DeactivateSession(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type joinRequest struct {
	DisplayName string `json:"displayName"`
	UserID      string `json:"userId"`
}

type joinResponse struct {
	Attempt domain.Attempt   `json:"attempt"`
	State   snapshotResponse `json:"state"`
}

func (h *Handler) joinSession(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	attempt, snap, err := h.service.Join(c.Request.Context(), c.Param("id"), req.DisplayName, req.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, joinResponse{Attempt: attempt, State: snapshotView(snap)})
}

func (h *Handler) attemptState(c *gin.Context) {
	snap, err := h.service.AttemptState(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshotView(snap))
}

type answerRequest struct {
	Option string `json:"option"`
}

func (h *Handler) answer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	snap, err := h.service.Answer(c.Request.Context(), c.Param("id"), domain.OptionKey(req.Option))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshotView(snap))
}

func (h *Handler) advance(c *gin.Context) {
	snap, err := h.service.Advance(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshotView(snap))
}

func (h *Handler) leaderboard(c *gin.Context) {
	lb, err := h.service.Leaderboard(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	resp := leaderboardResponse{
		SessionID: lb.SessionID,
		Entries:   lb.Entries,
		UpdatedAt: lb.UpdatedAt,
		Empty:     len(lb.Entries) == 0,
	}
	if resp.Empty {
		resp.Message = "No attempts yet. Be the first!"
	}
	c.JSON(http.StatusOK, resp)
}

type leaderboardResponse struct {
	SessionID string                    `json:"sessionId"`
	Empty     bool                      `json:"empty"`
	Message   string                    `json:"message,omitempty"`
	Entries   []domain.LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time                 `json:"updatedAt"`
}

// Option styling statuses shown once a question is revealed.
const (
	optionCorrect = "correct"
	optionWrong   = "wrong"
	optionNeutral = "neutral"
)

type optionView struct {
	Key    string `json:"key"`
	Text   string `json:"text"`
	Status string `json:"status"`
}

type questionView struct {
	ID       string       `json:"id"`
	Position int          `json:"position"`
	Text     string       `json:"text"`
	Options  []optionView `json:"options"`
}

type resultView struct {
	Score            int `json:"score"`
	TotalTimeSeconds int `json:"totalTimeSeconds"`
}

type snapshotResponse struct {
	AttemptID        string        `json:"attemptId"`
	State            string        `json:"state"`
	QuestionNumber   int           `json:"questionNumber"`
	TotalQuestions   int           `json:"totalQuestions"`
	ProgressPercent  int           `json:"progressPercent"`
	RemainingSeconds int           `json:"remainingSeconds"`
	Question         *questionView `json:"question,omitempty"`
	Selected         string        `json:"selected,omitempty"`
	CorrectOption    string        `json:"correctOption,omitempty"`
	WasCorrect       *bool         `json:"wasCorrect,omitempty"`
	Result           *resultView   `json:"result,omitempty"`
}

// snapshotView renders a runner snapshot without leaking the correct answer
// before the reveal. Post-reveal the correct option is marked success, the
// chosen-but-wrong option failure, and the rest neutral.
func snapshotView(snap app.RunnerSnapshot) snapshotResponse {
	resp := snapshotResponse{
		AttemptID:        snap.AttemptID,
		State:            snap.State.String(),
		QuestionNumber:   snap.Index + 1,
		TotalQuestions:   snap.Total,
		ProgressPercent:  snap.ProgressPercent,
		RemainingSeconds: snap.RemainingSeconds,
		Selected:         snap.Selected,
	}

	if snap.Result != nil {
		resp.Result = &resultView{
			Score:            snap.Result.Score,
			TotalTimeSeconds: snap.Result.TotalTimeSeconds,
		}
	}
	if snap.State == app.StateFinished || snap.Question.ID == "" {
		return resp
	}

	revealed := snap.State == app.StateRevealed
	view := questionView{
		ID:       snap.Question.ID,
		Position: snap.Question.Position,
		Text:     snap.Question.Text,
	}
	for _, key := range domain.OptionKeys {
		status := optionNeutral
		if revealed {
			switch {
			case key == snap.CorrectOption:
				status = optionCorrect
			case string(key) == snap.Selected:
				status = optionWrong
			}
		}
		view.Options = append(view.Options, optionView{
			Key:    string(key),
			Text:   snap.Question.Option(key),
			Status: status,
		})
	}
	resp.Question = &view

	if revealed {
		resp.CorrectOption = string(snap.CorrectOption)
		wasCorrect := snap.WasCorrect
		resp.WasCorrect = &wasCorrect
	}
	return resp
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrAttemptNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrNoQuestions):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrSessionClosed):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidQuestionSet),
		errors.Is(err, domain.ErrInvalidOption),
		errors.Is(err, domain.ErrNameRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrQuestionLocked),
		errors.Is(err, domain.ErrQuestionActive),
		errors.Is(err, domain.ErrAnswerExists),
		errors.Is(err, domain.ErrAttemptFinished):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
