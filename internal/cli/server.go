package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/file"
	"quiz-attempt-service/internal/infra/httpgateway"
	"quiz-attempt-service/internal/infra/memory"
	pgstore "quiz-attempt-service/internal/infra/postgres"
	redisinfra "quiz-attempt-service/internal/infra/redis"
	"quiz-attempt-service/internal/infra/sqlite"
	transport "quiz-attempt-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz attempt server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := config.NewLogger(cfg)
	if log.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return errors.Wrap(err, "connect postgres")
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	switch {
	case pool != nil:
		loader = pgstore.NewQuizLoader(pool)
	case cfg.Quiz.Dir != "":
		loader = file.NewQuizLoader(cfg.Quiz.Dir)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL, log)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	gateways, closeGateways, err := buildGateways(cfg, pool)
	if err != nil {
		return err
	}
	defer closeGateways()

	opts := []app.ServiceOption{app.WithLogger(log)}
	var attempts app.AttemptRepository
	if redisClient != nil {
		attempts = redisinfra.NewAttemptStore(redisClient, redisTTL)
		cache := redisinfra.NewSubmissionCache(redisClient, config.TTLDuration(cfg.Submissions.CacheTTL, 5*time.Minute))
		gateways = cache.Wraps(gateways)
		opts = append(opts, app.WithInvalidator(cache))
	} else {
		attempts = memory.NewAttemptStore()
	}
	service := app.NewAttemptService(attempts, quizRepo, gateways, opts...)

	sweeper := app.NewSweeper(service,
		config.TTLDuration(cfg.Attempts.SweepInterval, time.Minute),
		config.TTLDuration(cfg.Attempts.IdleTTL, 30*time.Minute))
	if err := sweeper.Start(); err != nil {
		return errors.Wrap(err, "start sweeper")
	}
	defer sweeper.Stop()

	router := transport.NewRouter(service, transport.RouterOptions{
		SigningKey: cfg.Auth.SigningKey,
		Issuer:     cfg.Auth.Issuer,
		Logger:     log,
	})
	if cfg.Auth.SigningKey == "" {
		log.Warn("auth.signing_key not set; trusting userId query parameter")
	}

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"port":        finalPort,
			"submissions": cfg.Submissions.Backend,
		}).Info("starting quiz attempt service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildGateways picks where submissions are recorded.
func buildGateways(cfg config.Config, pool *pgxpool.Pool) (app.GatewayFactory, func(), error) {
	noop := func() {}
	switch cfg.Submissions.Backend {
	case "", "memory":
		return app.StoreGateways(memory.NewSubmissionStore()), noop, nil
	case "postgres":
		if pool == nil {
			return nil, noop, errors.New("submissions.backend=postgres requires postgres.url")
		}
		return app.StoreGateways(pgstore.NewSubmissionStore(pool)), noop, nil
	case "sqlite":
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, noop, err
		}
		return app.StoreGateways(store), func() { _ = store.Close() }, nil
	case "http":
		if cfg.Submissions.BaseURL == "" {
			return nil, noop, errors.New("submissions.backend=http requires submissions.base_url")
		}
		client := httpgateway.NewClient(cfg.Submissions.BaseURL, config.TTLDuration(cfg.Submissions.Timeout, 10*time.Second))
		return client.Gateways(), noop, nil
	default:
		return nil, noop, errors.Errorf("unknown submissions.backend %q", cfg.Submissions.Backend)
	}
}

// sampleQuizzes keeps the service usable without a quiz directory or database.
func sampleQuizzes() map[string]domain.QuizDefinition {
	return map[string]domain.QuizDefinition{
		"quiz-1": {
			ID:          "quiz-1",
			Title:       "Arithmetic warm-up",
			Description: "Two quick questions, five minutes.",
			Questions: []domain.Question{
				{
					ID:       "q1",
					Kind:     domain.KindSingleChoice,
					Prompt:   "What is 2 + 2?",
					Required: true,
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5"},
					},
				},
				{
					ID:     "q2",
					Kind:   domain.KindMultiChoice,
					Prompt: "Which numbers are even?",
					Options: []domain.Option{
						{ID: "o1", Text: "2", Correct: true},
						{ID: "o2", Text: "3"},
						{ID: "o3", Text: "4", Correct: true},
					},
				},
				{
					ID:     "q3",
					Kind:   domain.KindShortText,
					Prompt: "Explain how you checked your answers.",
				},
			},
			Settings: domain.Settings{
				TimeLimitMinutes:    5,
				PassingScorePercent: 60,
				AllowRetake:         true,
				ShowCorrectAnswers:  true,
			},
		},
	}
}
