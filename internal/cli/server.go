package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	natsinfra "live-quiz-service/internal/infra/nats"
	pgstore "live-quiz-service/internal/infra/postgres"
	redisstore "live-quiz-service/internal/infra/redis"
	transport "live-quiz-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
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
	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
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
	publicURL := cfg.Server.PublicURL
	if publicURL == "" {
		publicURL = "http://localhost:" + finalPort
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
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgstore.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizCache
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var sessions app.SessionStore
	switch {
	case pool != nil:
		sessions = pgstore.NewSessionStore(pool)
	case redisClient != nil:
		sessions = redisstore.NewSessionStore(redisClient, redisTTL)
	default:
		sessions = memory.NewSessionStore()
	}
	if cfg.NATS.URL != "" {
		conn, js, err := natsinfra.Connect(cfg.NATS.URL, cfg.NATS.Stream, cfg.NATS.Subject)
		if err != nil {
			return err
		}
		defer conn.Drain()
		sessions = natsinfra.NewSessionPublisher(sessions, js, cfg.NATS.Subject, logger)
	}

	finishedTTL := config.TTLDuration(cfg.Room.FinishedTTL, 30*time.Minute)
	lobbyTTL := config.TTLDuration(cfg.Room.LobbyTTL, 2*time.Hour)
	conns := app.NewConnections(logger)
	opts := app.RegistryOptions{
		Logger:      logger,
		FinishedTTL: finishedTTL,
		LobbyTTL:    lobbyTTL,
		OnEvict:     conns.CloseRoom,
	}
	if redisClient != nil {
		// Claims outlive the longest a room can stay addressable.
		opts.Codes = redisstore.NewCodeReserver(redisClient, finishedTTL+lobbyTTL)
	}
	registry := app.NewRegistry(quizRepo, sessions, opts)

	router := transport.NewRouter(
		transport.NewWSHandler(registry, conns, logger),
		transport.NewRoomsHandler(registry, sessions, publicURL, logger),
		transport.NewQuizzesHandler(sessions, quizRepo, logger),
	)
	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting quiz service", "port", finalPort, "publicURL", publicURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return registry.Run(gctx, config.TTLDuration(cfg.Room.SweepInterval, time.Minute))
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		registry.Close(shutdownCtx)
		conns.Close()
		return err
	})
	return g.Wait()
}

// sampleQuizzes is served when no Postgres is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:   "quiz-1",
			Name: "Warm-up",
			Questions: []domain.Question{
				{
					Text:    "What is 2 + 2?",
					Options: []string{"3", "4", "5"},
					Correct: []int{1},
				},
				{
					Text:    "Which of these are prime?",
					Type:    domain.QuestionMultiple,
					Options: []string{"2", "4", "7", "9"},
					Correct: []int{0, 2},
					Points:  200,
				},
				{
					Text:      "What gas do plants absorb?",
					Options:   []string{"Oxygen", "Carbon dioxide", "Nitrogen"},
					Correct:   []int{1},
					TimeLimit: 20,
				},
			},
		},
	}
}
