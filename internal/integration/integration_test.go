package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"studyhub-quiz-service/internal/app"
	"studyhub-quiz-service/internal/domain"
	pginfra "studyhub-quiz-service/internal/infra/postgres"
	pgmigrations "studyhub-quiz-service/internal/infra/postgres/migrations"
	infraredis "studyhub-quiz-service/internal/infra/redis"
)

func TestChallengeEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	runMigrations(t, ctx, pgURL)

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(pgURL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	store := pginfra.NewStore(db)
	loader := pginfra.NewQuestionLoader(pool)
	service := app.NewQuizService(app.Deps{
		Sessions:         store,
		Questions:        infraredis.NewQuestionCache(redisClient, loader, 5*time.Minute),
		Attempts:         store,
		QuizAnswers:      store.QuizAnswers(),
		ChallengeAnswers: store.ChallengeAnswers(),
	})

	session, err := service.CreateSession(ctx, app.CreateSessionInput{
		Mode:       domain.ModeChallenge,
		Topic:      "arithmetic",
		Difficulty: domain.DifficultyEasy,
		Questions: []app.QuestionInput{
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
		},
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	// Question reads go through the redis cache over the pgx loader.
	questions, err := service.Questions(ctx, session.ID)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(questions) != 2 || questions[0].Position != 1 {
		t.Fatalf("expected 2 ordered questions, got %+v", questions)
	}

	attempt, snap, err := service.Join(ctx, session.ID, "Alice", "u1")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if snap.State != app.StateActive {
		t.Fatalf("expected active run, got %s", snap.State)
	}

	questionIDs := []string{questions[0].ID, questions[1].ID}

	if _, err := service.Answer(ctx, attempt.ID, domain.OptionB); err != nil {
		t.Fatalf("answer q1: %v", err)
	}
	if _, err := service.Advance(ctx, attempt.ID); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := service.Answer(ctx, attempt.ID, domain.OptionC); err != nil {
		t.Fatalf("answer q2: %v", err)
	}
	snap, err = service.Advance(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("final advance: %v", err)
	}
	if snap.State != app.StateFinished || snap.Result == nil || snap.Result.Score != 1 {
		t.Fatalf("expected finished with score 1, got %+v", snap)
	}

	// The unique (attempt, question) constraint blocks a rewrite.
	if _, err := store.ChallengeAnswers().SubmitAnswer(ctx, attempt.ID, questionIDs[0], "A", 1); !errors.Is(err, domain.ErrAnswerExists) {
		t.Fatalf("expected duplicate answer rejection, got %v", err)
	}

	// Re-running the completion recomputes the same aggregate.
	again, err := store.ChallengeAnswers().CompleteAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("repeat complete: %v", err)
	}
	if again.Score != snap.Result.Score || again.TotalTimeSeconds != snap.Result.TotalTimeSeconds {
		t.Fatalf("completion must be idempotent, got %+v then %+v", snap.Result, again)
	}

	lb, err := service.Leaderboard(ctx, session.ID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(lb.Entries))
	}
	if lb.Entries[0].Score != 1 || lb.Entries[0].InProgress || lb.Entries[0].Badge != domain.BadgeTrophy {
		t.Fatalf("unexpected entry %+v", lb.Entries[0])
	}
}

func runMigrations(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
