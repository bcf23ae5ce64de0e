package cli

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"studyhub-quiz-service/internal/app"
	"studyhub-quiz-service/internal/config"
	"studyhub-quiz-service/internal/domain"
	"studyhub-quiz-service/internal/infra/memory"
	pginfra "studyhub-quiz-service/internal/infra/postgres"
	redisinfra "studyhub-quiz-service/internal/infra/redis"
	"studyhub-quiz-service/internal/logger"
	transport "studyhub-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.New(cfg.Server.Mode, cfg.Log.File)
	defer log.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)

	deps := app.Deps{Log: log}

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()

		store := pginfra.NewStore(db)
		loader := pginfra.NewQuestionLoader(pool)
		deps.Sessions = store
		deps.Attempts = store
		deps.QuizAnswers = store.QuizAnswers()
		deps.ChallengeAnswers = store.ChallengeAnswers()
		if redisClient != nil {
			deps.Questions = redisinfra.NewQuestionCache(redisClient, loader, questionTTL)
		} else {
			deps.Questions = memory.NewQuestionCache(loader, questionTTL)
		}
	} else {
		store := memory.NewStore()
		seedDemoSession(ctx, store, log)
		deps.Sessions = store
		deps.Attempts = store
		deps.QuizAnswers = store.QuizAnswers()
		deps.ChallengeAnswers = store.ChallengeAnswers()
		if redisClient != nil {
			deps.Questions = redisinfra.NewQuestionCache(redisClient, store, questionTTL)
		} else {
			deps.Questions = memory.NewQuestionCache(store, questionTTL)
		}
	}

	service := app.NewQuizService(deps)

	if cfg.Server.Mode != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	transport.NewHandler(service, log).Register(engine)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting quiz service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedDemoSession gives the persistence-free dev setup something to play with.
func seedDemoSession(ctx context.Context, store *memory.Store, log *zap.Logger) {
	session := domain.Session{
		ID:             "demo-challenge",
		Mode:           domain.ModeChallenge,
		Topic:          "arithmetic",
		Difficulty:     domain.DifficultyEasy,
		TotalQuestions: 2,
		Active:         true,
		CreatedAt:      time.Now(),
	}
	questions := []domain.Question{
		{
			ID: "demo-q1", SessionID: session.ID, Position: 1,
			Text:    "What is 2 + 2?",
			OptionA: "3", OptionB: "4", OptionC: "5", OptionD: "22",
			CorrectAnswer: domain.OptionB,
		},
		{
			ID: "demo-q2", SessionID: session.ID, Position: 2,
			Text:    "What is 9 * 9?",
			OptionA: "18", OptionB: "72", OptionC: "81", OptionD: "99",
			CorrectAnswer: domain.OptionC,
		},
	}
	if err := store.CreateSession(ctx, session, questions, nil); err != nil {
		log.Warn("failed to seed demo session", zap.Error(err))
		return
	}
	log.Info("seeded demo session", zap.String("sessionId", session.ID))
}
