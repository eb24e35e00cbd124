package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"poker-quiz-bot/internal/domain"
)

// SnapshotStore keeps the encoded snapshot in memory. It stores the JSON form so
// tests exercise the same encoding as the durable stores.
type SnapshotStore struct {
	mu   sync.Mutex
	data []byte
	err  error
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

func (s *SnapshotStore) Save(_ context.Context, snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	s.data = raw
	return nil
}

func (s *SnapshotStore) Load(_ context.Context) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return domain.Snapshot{}, domain.ErrSnapshotNotFound
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(s.data, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("%w: %v", domain.ErrCorruptSnapshot, err)
	}
	return snap, nil
}

// SetRaw replaces the stored bytes, e.g. to simulate a truncated write.
func (s *SnapshotStore) SetRaw(raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = raw
}

// FailWrites makes every subsequent Save return err; nil restores writes.
func (s *SnapshotStore) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
