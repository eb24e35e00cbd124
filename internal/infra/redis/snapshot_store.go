package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"poker-quiz-bot/internal/domain"

	"github.com/redis/go-redis/v9"
)

const snapshotKey = "quiz:snapshot"

// SnapshotStore keeps the process snapshot as a single JSON string. SET
// replaces the value atomically, so readers never see a partial write.
type SnapshotStore struct {
	client *redis.Client
	key    string
}

func NewSnapshotStore(client *redis.Client) *SnapshotStore {
	return &SnapshotStore{client: client, key: snapshotKey}
}

func (s *SnapshotStore) Save(ctx context.Context, snap domain.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) Load(ctx context.Context) (domain.Snapshot, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Snapshot{}, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("%w: %v", domain.ErrCorruptSnapshot, err)
	}
	return snap, nil
}
