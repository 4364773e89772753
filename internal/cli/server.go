package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/config"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/memory"
	pgstore "quiz-battle-service/internal/infra/postgres"
	redisinfra "quiz-battle-service/internal/infra/redis"
	transport "quiz-battle-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the battle server",
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

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
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
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgstore.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var registry app.MatchRegistry
	if redisClient != nil {
		registry = redisinfra.NewMatchRegistry(redisClient, redisTTL)
	} else {
		registry = memory.NewMatchRegistry()
	}

	var events app.EventSink
	if redisClient != nil {
		events = redisinfra.NewEventPublisher(redisClient, cfg.Battle.EventsChannel)
	} else {
		events = memory.NewEventSink()
	}

	var summaries app.SummaryStore
	if pool != nil {
		summaries = pgstore.NewSummaryStore(pool)
	}

	policy := app.DefaultPolicy()
	if cfg.Battle.MaxParticipants > 0 {
		policy.MaxParticipants = cfg.Battle.MaxParticipants
	}
	if cfg.Battle.TimeoutForfeitThreshold > 0 {
		policy.TimeoutForfeitThreshold = cfg.Battle.TimeoutForfeitThreshold
	}

	service := app.NewBattleService(registry, quizRepo, summaries, events, policy)
	wsHandler := transport.NewWSHandler(service)
	readHandler := transport.NewReadHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.HandleFunc("/match", readHandler.GetMatch)
	mux.HandleFunc("/summary", readHandler.GetSummary)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting battle service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes provides a minimal question set for redis/postgres-less runs.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID: "quiz-1",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Kind:   domain.KindSingleChoice,
					Options: []domain.Option{
						{ID: "o1", Text: "3", Correct: false},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5", Correct: false},
					},
					Points:           1,
					TimeLimitSeconds: 20,
				},
				{
					ID:     "q2",
					Prompt: "The capital of France is Paris.",
					Kind:   domain.KindTrueFalse,
					Options: []domain.Option{
						{ID: "t", Text: "True", Correct: true},
						{ID: "f", Text: "False", Correct: false},
					},
					Points:           1,
					TimeLimitSeconds: 10,
				},
				{
					ID:               "q3",
					Prompt:           "Name the Go keyword that starts a new goroutine.",
					Kind:             domain.KindShortAnswer,
					Answer:           "go",
					Points:           2,
					TimeLimitSeconds: 15,
				},
			},
		},
	}
}
