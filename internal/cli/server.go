package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"brocode-session-service/internal/app"
	"brocode-session-service/internal/config"
	"brocode-session-service/internal/infra/api"
	"brocode-session-service/internal/infra/memory"
	pgloader "brocode-session-service/internal/infra/postgres"
	redisinfra "brocode-session-service/internal/infra/redis"
	transport "brocode-session-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the challenge session server",
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

	platform := api.NewClient(
		cfg.Platform.BaseURL,
		cfg.Platform.Token,
		config.Duration(cfg.Platform.Timeout, 15*time.Second),
	)

	// The countdown persists through Redis when available, so a restart
	// resumes the remaining time instead of granting a fresh clock.
	var store app.KeyValueStore
	if redisClient != nil {
		store = redisinfra.NewKVStore(redisClient)
	} else {
		store = memory.NewKVStore()
	}

	questionTTL := config.Duration(cfg.Challenge.QuestionTTL, 10*time.Minute)
	var questions app.QuestionSource = platform
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		var loader memory.QuestionLoader = pgloader.NewQuestionLoader(pool)
		if redisClient != nil {
			questions = redisinfra.NewQuestionSource(redisClient, loader, questionTTL)
		} else {
			questions = memory.NewQuestionSource(loader, questionTTL)
		}
	}

	sessionCfg := app.Config{
		Duration:    config.Duration(cfg.Challenge.Duration, app.DefaultDuration),
		MaxAttempts: cfg.Challenge.MaxAttempts,
		Shuffle:     cfg.Challenge.Shuffle,
		Seed:        cfg.Challenge.Seed,
	}
	factory := func(sessionKey string) *app.Controller {
		perSession := sessionCfg
		perSession.SessionKey = sessionKey
		return app.NewController(platform, questions, platform, platform, store, perSession)
	}
	wsHandler := transport.NewSessionHandler(factory)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting challenge session service on :%s", finalPort)
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
