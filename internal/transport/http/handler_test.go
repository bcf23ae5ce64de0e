package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"studyhub-quiz-service/internal/app"
	"studyhub-quiz-service/internal/domain"
	"studyhub-quiz-service/internal/infra/memory"
)

func TestChallengeFlowOverHTTP(t *testing.T) {
	engine := newTestEngine()

	// Create a challenge session.
	rec := doJSON(t, engine, http.MethodPost, "/api/v1/sessions", createSessionRequest{
		Mode:       "challenge",
		Topic:      "arithmetic",
		Difficulty: "easy",
		Questions:  samplePayloads(),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var session domain.Session
	decode(t, rec, &session)
	if session.Mode != domain.ModeChallenge || session.TotalQuestions != 2 {
		t.Fatalf("unexpected session %+v", session)
	}

	// Join with a display name.
	rec = doJSON(t, engine, http.MethodPost, "/api/v1/sessions/"+session.ID+"/join", joinRequest{DisplayName: "Alice"})
	if rec.Code != http.StatusOK {
		t.Fatalf("join: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var joined joinResponse
	decode(t, rec, &joined)
	if joined.State.State != "active" || joined.State.RemainingSeconds <= 0 {
		t.Fatalf("expected an active countdown, got %+v", joined.State)
	}
	if joined.State.CorrectOption != "" {
		t.Fatal("correct option must not leak before the reveal")
	}
	for _, opt := range joined.State.Question.Options {
		if opt.Status != optionNeutral {
			t.Fatalf("pre-reveal option status must be neutral, got %+v", opt)
		}
	}

	attemptID := joined.Attempt.ID

	// Answer the first question correctly.
	rec = doJSON(t, engine, http.MethodPost, "/api/v1/attempts/"+attemptID+"/answer", answerRequest{Option: "B"})
	if rec.Code != http.StatusOK {
		t.Fatalf("answer: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var snap snapshotResponse
	decode(t, rec, &snap)
	if snap.State != "revealed" || snap.WasCorrect == nil || !*snap.WasCorrect || snap.CorrectOption != "B" {
		t.Fatalf("unexpected reveal %+v", snap)
	}
	assertStatus(t, snap, "B", optionCorrect)

	// A second choice for the locked question conflicts.
	rec = doJSON(t, engine, http.MethodPost, "/api/v1/attempts/"+attemptID+"/answer", answerRequest{Option: "A"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("locked answer: expected 409, got %d", rec.Code)
	}

	// Advance, answer the second question wrong, advance to completion.
	rec = doJSON(t, engine, http.MethodPost, "/api/v1/attempts/"+attemptID+"/advance", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("advance: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &snap)
	if snap.State != "active" || snap.QuestionNumber != 2 {
		t.Fatalf("expected question 2 active, got %+v", snap)
	}

	rec = doJSON(t, engine, http.MethodPost, "/api/v1/attempts/"+attemptID+"/answer", answerRequest{Option: "C"})
	decode(t, rec, &snap)
	if snap.WasCorrect == nil || *snap.WasCorrect {
		t.Fatalf("expected wrong reveal, got %+v", snap)
	}
	assertStatus(t, snap, "A", optionCorrect)
	assertStatus(t, snap, "C", optionWrong)

	rec = doJSON(t, engine, http.MethodPost, "/api/v1/attempts/"+attemptID+"/advance", nil)
	decode(t, rec, &snap)
	if snap.State != "finished" || snap.Result == nil || snap.Result.Score != 1 {
		t.Fatalf("expected finished with score 1, got %+v", snap)
	}

	// Finished state is still readable.
	rec = doJSON(t, engine, http.MethodGet, "/api/v1/attempts/"+attemptID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("attempt state: expected 200, got %d", rec.Code)
	}
	decode(t, rec, &snap)
	if snap.State != "finished" || snap.Result == nil {
		t.Fatalf("expected persisted finished state, got %+v", snap)
	}

	// Leaderboard shows the finished attempt.
	rec = doJSON(t, engine, http.MethodGet, "/api/v1/sessions/"+session.ID+"/leaderboard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("leaderboard: expected 200, got %d", rec.Code)
	}
	var lb leaderboardResponse
	decode(t, rec, &lb)
	if lb.Empty || len(lb.Entries) != 1 {
		t.Fatalf("expected one entry, got %+v", lb)
	}
	if lb.Entries[0].Badge != domain.BadgeTrophy || lb.Entries[0].InProgress {
		t.Fatalf("unexpected leading entry %+v", lb.Entries[0])
	}
}

func TestEmptyLeaderboardMessage(t *testing.T) {
	engine := newTestEngine()

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/sessions", createSessionRequest{
		Mode:       "challenge",
		Difficulty: "easy",
		Questions:  samplePayloads(),
	})
	var session domain.Session
	decode(t, rec, &session)

	rec = doJSON(t, engine, http.MethodGet, "/api/v1/sessions/"+session.ID+"/leaderboard", nil)
	var lb leaderboardResponse
	decode(t, rec, &lb)
	if !lb.Empty || lb.Message != "No attempts yet. Be the first!" {
		t.Fatalf("expected the empty-board call to action, got %+v", lb)
	}
}

func TestErrorMapping(t *testing.T) {
	engine := newTestEngine()

	// Unknown session.
	rec := doJSON(t, engine, http.MethodPost, "/api/v1/sessions/missing/join", joinRequest{DisplayName: "Alice"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown session: expected 404, got %d", rec.Code)
	}

	// Malformed question batch.
	rec = doJSON(t, engine, http.MethodPost, "/api/v1/sessions", createSessionRequest{
		Mode:       "challenge",
		Difficulty: "easy",
		Questions:  []questionPayload{{Text: "q", CorrectAnswer: "Z"}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad batch: expected 400, got %d", rec.Code)
	}

	// Valid session, nameless challenge join.
	rec = doJSON(t, engine, http.MethodPost, "/api/v1/sessions", createSessionRequest{
		Mode:       "challenge",
		Difficulty: "easy",
		Questions:  samplePayloads(),
	})
	var session domain.Session
	decode(t, rec, &session)

	rec = doJSON(t, engine, http.MethodPost, "/api/v1/sessions/"+session.ID+"/join", joinRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("nameless join: expected 400, got %d", rec.Code)
	}

	// Deactivated session is gone.
	rec = doJSON(t, engine, http.MethodPost, "/api/v1/sessions/"+session.ID+"/deactivate", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("deactivate: expected 204, got %d", rec.Code)
	}
	rec = doJSON(t, engine, http.MethodPost, "/api/v1/sessions/"+session.ID+"/join", joinRequest{DisplayName: "Alice"})
	if rec.Code != http.StatusGone {
		t.Fatalf("closed join: expected 410, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	engine := newTestEngine()
	rec := doJSON(t, engine, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("expected ok health, got %d %q", rec.Code, rec.Body.String())
	}
}

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	service := app.NewQuizService(app.Deps{
		Sessions:         store,
		Questions:        memory.NewQuestionCache(store, time.Minute),
		Attempts:         store,
		QuizAnswers:      store.QuizAnswers(),
		ChallengeAnswers: store.ChallengeAnswers(),
	})

	engine := gin.New()
	NewHandler(service, nil).Register(engine)
	return engine
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func assertStatus(t *testing.T, snap snapshotResponse, key, want string) {
	t.Helper()
	if snap.Question == nil {
		t.Fatal("expected a question in the snapshot")
	}
	for _, opt := range snap.Question.Options {
		if opt.Key == key {
			if opt.Status != want {
				t.Fatalf("option %s: expected status %s, got %s", key, want, opt.Status)
			}
			return
		}
	}
	t.Fatalf("option %s not found", key)
}

func samplePayloads() []questionPayload {
	return []questionPayload{
		{
			Text:    "What is 2 + 2?",
			OptionA: "3", OptionB: "4", OptionC: "5", OptionD: "22",
			CorrectAnswer: "B",
		},
		{
			Text:    "What is 9 * 9?",
			OptionA: "81", OptionB: "18", OptionC: "72", OptionD: "99",
			CorrectAnswer: "A",
		},
	}
}
