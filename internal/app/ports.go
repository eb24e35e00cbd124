package app

import (
	"context"

	"poker-quiz-bot/internal/domain"
)

// SessionRepository abstracts how quiz sessions are kept (in-memory, Redis, etc).
type SessionRepository interface {
	GetOrCreate(key int64) *Session
	Get(key int64) (*Session, bool)
	Keys() []int64
	DeleteIfIdle(key int64)
}

// ScoreLedger is the durable store of per-user scores and answer history.
type ScoreLedger interface {
	RecordAnswer(ctx context.Context, ev domain.AnswerEvent) (domain.ScoreRecord, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.ScoreRecord, error)
	UserStats(ctx context.Context, userID int64) (domain.ScoreRecord, bool, error)
}

// SnapshotStore persists the latest process snapshot, overwriting the previous one.
type SnapshotStore interface {
	Save(ctx context.Context, snap domain.Snapshot) error
	Load(ctx context.Context) (domain.Snapshot, error)
}

// CatalogLoader fetches the question catalog from a backing store.
type CatalogLoader interface {
	LoadCatalog(ctx context.Context) ([]domain.Question, error)
}

// Prompt is a choice prompt handed to the transport.
type Prompt struct {
	QuestionID int      `json:"questionId"`
	Text       string   `json:"text"`
	Options    []string `json:"options"`
}

// Transport is the chat client the quiz talks through. Every call may fail;
// failures are treated as per-chat soft errors.
type Transport interface {
	SendChoicePrompt(ctx context.Context, chatID int64, prompt Prompt) (string, error)
	SendText(ctx context.Context, chatID int64, text string) error
	DeleteMessage(ctx context.Context, chatID int64, handle string) error
	// ParticipantCount reports chat members including the bot account.
	ParticipantCount(ctx context.Context, chatID int64) (int, error)
	ResolveFriendlyName(ctx context.Context, userID int64) (string, error)
}
