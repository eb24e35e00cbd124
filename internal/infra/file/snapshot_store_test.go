package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poker-quiz-bot/internal/domain"
)

func TestSnapshotStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "snapshot.json")
	store := NewSnapshotStore(path)

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, domain.ErrSnapshotNotFound)

	snap := domain.Snapshot{
		ActiveChats: []int64{-42},
		SessionSnapshot: domain.SessionSnapshot{
			PrecedingQuestionID: domain.IntPtr(5),
		},
		UsedQuestionIDs: []int{5},
		ChatSessions: map[int64]domain.SessionSnapshot{
			-42: {CurrentQuestionID: domain.IntPtr(6), OpenAnswers: map[int64]int{1: 0}},
		},
	}.Normalize()
	require.NoError(t, store.Save(ctx, snap))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, got.Normalize())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestSnapshotStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"active_chats": [`), 0o644))

	_, err := NewSnapshotStore(path).Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrCorruptSnapshot)
}
