package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"poker-quiz-bot/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// CatalogLoader loads question JSONB documents from Postgres.
type CatalogLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogLoader(pool *pgxpool.Pool) *CatalogLoader {
	return &CatalogLoader{pool: pool}
}

func (l *CatalogLoader) LoadCatalog(ctx context.Context) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `SELECT id, data FROM questions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var (
			id  int
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		var q domain.Question
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, &domain.DataFormatError{Index: len(questions), QuestionID: id, Reason: err.Error()}
		}
		if q.ID == 0 {
			q.ID = id
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return questions, nil
}

// Import upserts questions by id in one transaction and returns how many were written.
func (l *CatalogLoader) Import(ctx context.Context, questions []domain.Question) (int, error) {
	batch := &pgx.Batch{}
	for _, q := range questions {
		raw, err := json.Marshal(q)
		if err != nil {
			return 0, fmt.Errorf("encode question %d: %w", q.ID, err)
		}
		batch.Queue(`INSERT INTO questions (id, data) VALUES ($1, $2::jsonb)
			ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`, q.ID, string(raw))
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	br := tx.SendBatch(ctx, batch)
	for i := range questions {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("import question %d: %w", questions[i].ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(questions), nil
}
