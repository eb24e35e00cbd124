package memory

import (
	"context"
	"testing"

	"poker-quiz-bot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaderboardOrdersByCorrectThenAttempts(t *testing.T) {
	ctx := context.Background()
	ledger := NewScoreLedger()

	record := func(user int64, name string, correct, total int) {
		for i := 0; i < total; i++ {
			_, err := ledger.RecordAnswer(ctx, domain.AnswerEvent{
				UserID:      user,
				DisplayName: name,
				QuestionID:  i + 1,
				Correct:     i < correct,
			})
			require.NoError(t, err)
		}
	}
	record(1, "A", 5, 10)
	record(2, "B", 5, 6)
	record(3, "C", 7, 20)

	top, err := ledger.Leaderboard(ctx, 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, []string{"C", "B", "A"}, []string{top[0].DisplayName, top[1].DisplayName, top[2].DisplayName})

	top, err = ledger.Leaderboard(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestRecordAnswerAppendsHistory(t *testing.T) {
	ctx := context.Background()
	ledger := NewScoreLedger()

	_, err := ledger.RecordAnswer(ctx, domain.AnswerEvent{UserID: 9, QuestionID: 4, Option: 2, Correct: true})
	require.NoError(t, err)
	rec, err := ledger.RecordAnswer(ctx, domain.AnswerEvent{UserID: 9, QuestionID: 5, Option: 0})
	require.NoError(t, err)

	assert.Equal(t, 1, rec.Correct)
	assert.Equal(t, 2, rec.Total)
	assert.Equal(t, 0, rec.Streak)
	assert.Equal(t, 1, rec.BestStreak)

	history := ledger.History()
	require.Len(t, history, 2)
	assert.Equal(t, 4, history[0].QuestionID)
	assert.False(t, history[1].Correct)

	_, ok, err := ledger.UserStats(ctx, 10)
	require.NoError(t, err)
	assert.False(t, ok)
}
