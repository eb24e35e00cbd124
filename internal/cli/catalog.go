package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"poker-quiz-bot/internal/app"
	"poker-quiz-bot/internal/config"
	"poker-quiz-bot/internal/infra/file"
	pgstore "poker-quiz-bot/internal/infra/postgres"
	infraredis "poker-quiz-bot/internal/infra/redis"
	"poker-quiz-bot/internal/logger"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewCatalogCmd groups catalog maintenance commands.
func NewCatalogCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the question catalog",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Validate a JSON or YAML catalog and upsert it into Postgres",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return importCatalog(cmd.Context(), *configPath, args[0])
		},
	})
	return cmd
}

func importCatalog(ctx context.Context, configPath, path string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.Setup(cfg.Log.Level, cfg.Log.Format)
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	questions, err := file.ParseCatalog(data, filepath.Ext(path))
	if err != nil {
		return err
	}
	// reject the whole file before touching the database
	if _, err := app.NewQuestionBank(questions); err != nil {
		return err
	}

	if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
		return err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	n, err := pgstore.NewCatalogLoader(pool).Import(ctx, questions)
	if err != nil {
		return err
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer client.Close()
		if err := infraredis.NewCatalogCache(client, nil, 0).Invalidate(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to invalidate cached catalog")
		}
	}

	log.Info().Int("questions", n).Str("file", path).Msg("catalog imported")
	return nil
}
