package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"poker-quiz-bot/internal/domain"
	"poker-quiz-bot/internal/metrics"

	"github.com/rs/zerolog"
)

// PersistenceGateway writes a snapshot after every state change and restores
// the last one at startup. Write failures are logged and never escalated: the
// in-memory state stays authoritative for the running process.
type PersistenceGateway struct {
	store SnapshotStore
	log   zerolog.Logger
	mu    sync.Mutex
}

func NewPersistenceGateway(store SnapshotStore, log zerolog.Logger) *PersistenceGateway {
	return &PersistenceGateway{
		store: store,
		log:   log.With().Str("component", "persistence").Logger(),
	}
}

// Snapshot overwrites the stored snapshot with the state returned by build.
// build runs under the write lock, so the last write to land always carries
// the newest state any caller had observed.
func (g *PersistenceGateway) Snapshot(ctx context.Context, build func() domain.Snapshot) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	snap := build()
	if err := g.store.Save(ctx, snap.Normalize()); err != nil {
		metrics.SnapshotFailures.Inc()
		g.log.Error().Err(err).Msg("snapshot write failed; unsaved state is lost on restart")
		return fmt.Errorf("%w: %v", domain.ErrPersistenceWrite, err)
	}
	return nil
}

// Restore returns the last snapshot, or an empty one if none exists or it is unreadable.
func (g *PersistenceGateway) Restore(ctx context.Context) domain.Snapshot {
	snap, err := g.store.Load(ctx)
	switch {
	case err == nil:
		return snap.Normalize()
	case errors.Is(err, domain.ErrSnapshotNotFound):
		g.log.Info().Msg("no snapshot found, starting fresh")
	case errors.Is(err, domain.ErrCorruptSnapshot):
		g.log.Warn().Err(err).Msg("snapshot unreadable, starting fresh")
	default:
		g.log.Error().Err(err).Msg("snapshot load failed, starting fresh")
	}
	return domain.EmptySnapshot()
}
