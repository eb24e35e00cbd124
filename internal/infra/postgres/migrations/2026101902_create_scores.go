package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed sql/create_scores.sql
var createScoresSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createScoresSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS answer_history; DROP TABLE IF EXISTS scores`)
			return err
		},
	)
}
