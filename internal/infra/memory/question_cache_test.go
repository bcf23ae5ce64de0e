package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"studyhub-quiz-service/internal/domain"
)

func TestQuestionCacheCaches(t *testing.T) {
	store, _ := seedChallenge(t)
	loader := &countingLoader{QuestionLoader: store}
	cache := NewQuestionCache(loader, time.Minute)

	questions, err := cache.GetQuestions(context.Background(), "s1")
	if err != nil {
		t.Fatalf("get questions: %v", err)
	}
	if len(questions) != 2 || loader.calls != 1 {
		t.Fatalf("expected 2 questions from one load, got %d questions, %d loads", len(questions), loader.calls)
	}

	if _, err := cache.GetQuestions(context.Background(), "s1"); err != nil {
		t.Fatalf("get questions 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestQuestionCacheExpires(t *testing.T) {
	store, _ := seedChallenge(t)
	loader := &countingLoader{QuestionLoader: store}
	cache := NewQuestionCache(loader, time.Minute)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.clock = func() time.Time { return now }

	if _, err := cache.GetQuestions(context.Background(), "s1"); err != nil {
		t.Fatalf("get questions: %v", err)
	}

	// Jitter stretches the TTL by at most 10%, so 2 minutes is past expiry.
	now = now.Add(2 * time.Minute)
	if _, err := cache.GetQuestions(context.Background(), "s1"); err != nil {
		t.Fatalf("get questions after expiry: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after expiry, loader calls %d", loader.calls)
	}
}

func TestQuestionCachePropagatesLoaderError(t *testing.T) {
	store := NewStore()
	cache := NewQuestionCache(store, time.Minute)

	if _, err := cache.GetQuestions(context.Background(), "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

type countingLoader struct {
	QuestionLoader
	calls int
}

func (l *countingLoader) LoadQuestions(ctx context.Context, sessionID string) ([]domain.Question, error) {
	l.calls++
	return l.QuestionLoader.LoadQuestions(ctx, sessionID)
}
