package postgres

import (
	"context"
	"errors"
	"fmt"

	"poker-quiz-bot/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const scoreColumns = `user_id, display_name, correct, total, streak, best_streak, last_answer_at`

// ScoreLedger keeps per-user scores and the answer history in Postgres. Each
// answer is applied under a row lock so concurrent answers from the same user
// never lose an increment.
type ScoreLedger struct {
	pool *pgxpool.Pool
}

func NewScoreLedger(pool *pgxpool.Pool) *ScoreLedger {
	return &ScoreLedger{pool: pool}
}

func (l *ScoreLedger) RecordAnswer(ctx context.Context, ev domain.AnswerEvent) (domain.ScoreRecord, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO scores (user_id, display_name) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
		ev.UserID, ev.DisplayName,
	); err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("ensure score row: %w", err)
	}

	rec, err := scanScore(tx.QueryRow(ctx, `SELECT `+scoreColumns+` FROM scores WHERE user_id=$1 FOR UPDATE`, ev.UserID))
	if err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("lock score row: %w", err)
	}
	rec = rec.Apply(ev)

	if _, err := tx.Exec(ctx,
		`UPDATE scores SET display_name=$2, correct=$3, total=$4, streak=$5, best_streak=$6, last_answer_at=$7 WHERE user_id=$1`,
		rec.UserID, rec.DisplayName, rec.Correct, rec.Total, rec.Streak, rec.BestStreak, rec.LastAnswerAt,
	); err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("update score: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO answer_history (user_id, question_id, option, correct, answered_at) VALUES ($1, $2, $3, $4, $5)`,
		ev.UserID, ev.QuestionID, ev.Option, ev.Correct, ev.At,
	); err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("append history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

func (l *ScoreLedger) Leaderboard(ctx context.Context, limit int) ([]domain.ScoreRecord, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT `+scoreColumns+` FROM scores WHERE total > 0 ORDER BY correct DESC, total ASC, user_id ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	var out []domain.ScoreRecord
	for rows.Next() {
		rec, err := scanScore(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (l *ScoreLedger) UserStats(ctx context.Context, userID int64) (domain.ScoreRecord, bool, error) {
	rec, err := scanScore(l.pool.QueryRow(ctx, `SELECT `+scoreColumns+` FROM scores WHERE user_id=$1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ScoreRecord{}, false, nil
	}
	if err != nil {
		return domain.ScoreRecord{}, false, fmt.Errorf("user stats: %w", err)
	}
	return rec, rec.Total > 0, nil
}

// History returns a user's answers, oldest first.
func (l *ScoreLedger) History(ctx context.Context, userID int64) ([]domain.AnswerHistoryEntry, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT user_id, question_id, option, correct, answered_at FROM answer_history WHERE user_id=$1 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer rows.Close()

	var out []domain.AnswerHistoryEntry
	for rows.Next() {
		var e domain.AnswerHistoryEntry
		if err := rows.Scan(&e.UserID, &e.QuestionID, &e.Option, &e.Correct, &e.AnsweredAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanScore(row pgx.Row) (domain.ScoreRecord, error) {
	var rec domain.ScoreRecord
	err := row.Scan(&rec.UserID, &rec.DisplayName, &rec.Correct, &rec.Total, &rec.Streak, &rec.BestStreak, &rec.LastAnswerAt)
	return rec, err
}
