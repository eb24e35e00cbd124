package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"poker-quiz-bot/internal/config"
	infraredis "poker-quiz-bot/internal/infra/redis"
	"poker-quiz-bot/internal/logger"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewSessionsCmd prints the session records mirrored to Redis by running servers.
func NewSessionsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "Show the live quiz sessions recorded in Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Redis.Addr == "" {
				return fmt.Errorf("redis addr not configured")
			}
			log := logger.Setup(cfg.Log.Level, cfg.Log.Format)
			client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
			defer client.Close()

			store := infraredis.NewSessionStore(client, config.TTLDuration(cfg.Redis.TTL, 24*time.Hour), log)
			return printSessions(cmd.Context(), store, cmd.OutOrStdout())
		},
	}
}

func printSessions(ctx context.Context, store *infraredis.SessionStore, w io.Writer) error {
	keys, err := store.StoredKeys(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	for _, key := range keys {
		snap, ok, err := store.Stored(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			// expired between scan and read
			continue
		}
		if err := enc.Encode(struct {
			Session int64 `json:"session"`
			Answers int   `json:"answers"`
			Current *int  `json:"current_question_id"`
		}{key, len(snap.OpenAnswers), snap.CurrentQuestionID}); err != nil {
			return err
		}
	}
	return nil
}
