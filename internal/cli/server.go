package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"poker-quiz-bot/internal/app"
	"poker-quiz-bot/internal/config"
	"poker-quiz-bot/internal/infra/file"
	"poker-quiz-bot/internal/infra/memory"
	pgstore "poker-quiz-bot/internal/infra/postgres"
	infraredis "poker-quiz-bot/internal/infra/redis"
	"poker-quiz-bot/internal/logger"
	"poker-quiz-bot/internal/metrics"
	"poker-quiz-bot/internal/schedule"
	transport "poker-quiz-bot/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz bot",
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
	log := logger.Setup(cfg.Log.Level, cfg.Log.Format)
	metrics.Init()

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

	mode, err := app.ParseMode(cfg.Quiz.Mode)
	if err != nil {
		return err
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

	bank, err := loadBank(ctx, cfg, pool, redisClient, log)
	if err != nil {
		return err
	}

	var sessions app.SessionRepository = memory.NewSessionStore()
	if redisClient != nil {
		sessions = infraredis.NewSessionStore(redisClient, redisTTL, log)
	}

	var ledger app.ScoreLedger = memory.NewScoreLedger()
	if pool != nil {
		ledger = pgstore.NewScoreLedger(pool)
	}

	snapshots, err := snapshotStore(cfg, redisClient)
	if err != nil {
		return err
	}

	hub := transport.NewHub(log)
	service := app.NewQuizService(bank, sessions, ledger, hub, app.NewPersistenceGateway(snapshots, log), app.Options{
		Mode:       mode,
		BotMembers: cfg.Quiz.BotMembers,
		Logger:     log,
	})
	service.Restore(ctx)

	openSpec, closeSpec := cfg.Quiz.OpenSchedule, cfg.Quiz.CloseSchedule
	if openSpec == "" && closeSpec == "" {
		openSpec, closeSpec = schedule.DefaultOpenSpec, schedule.DefaultCloseSpec
	}
	runner, err := schedule.NewRunner(service, schedule.Config{
		OpenSpec:  openSpec,
		CloseSpec: closeSpec,
		Location:  cfg.Location(),
		Timeout:   time.Minute,
	}, log)
	if err != nil {
		return err
	}
	runner.Start()
	service.SetNextReveal(runner.NextClose)

	wsHandler := transport.NewWSHandler(service, hub, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.HandleFunc("/leaderboard", transport.LeaderboardHandler(service, log))
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Str("mode", string(mode)).Int("questions", bank.Len()).Msg("starting quiz bot")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runner.Stop(shutdownCtx)
	return server.Shutdown(shutdownCtx)
}

// loadBank picks the catalog source: Postgres when configured (cached in
// Redis if available), otherwise the catalog file.
func loadBank(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, client *redis.Client, log zerolog.Logger) (*app.QuestionBank, error) {
	var loader app.CatalogLoader
	switch {
	case pool != nil:
		loader = pgstore.NewCatalogLoader(pool)
		if client != nil {
			loader = infraredis.NewCatalogCache(client, loader, config.TTLDuration(cfg.Quiz.CatalogTTL, 10*time.Minute))
		}
	case cfg.Quiz.CatalogPath != "":
		loader = file.NewCatalogLoader(cfg.Quiz.CatalogPath)
	default:
		return nil, fmt.Errorf("no question catalog configured: set quiz.catalog_path or postgres.url")
	}

	questions, err := loader.LoadCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return app.NewQuestionBank(questions, app.WithLogger(log))
}

func snapshotStore(cfg config.Config, client *redis.Client) (app.SnapshotStore, error) {
	switch cfg.Quiz.Snapshot.Backend {
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("snapshot backend redis requires redis.addr")
		}
		return infraredis.NewSnapshotStore(client), nil
	case "file":
		return file.NewSnapshotStore(cfg.Quiz.Snapshot.Path), nil
	case "memory":
		return memory.NewSnapshotStore(), nil
	}
	return nil, fmt.Errorf("unknown snapshot backend %q", cfg.Quiz.Snapshot.Backend)
}
