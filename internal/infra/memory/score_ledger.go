package memory

import (
	"context"
	"sort"
	"sync"

	"poker-quiz-bot/internal/domain"
)

// ScoreLedger keeps scores and answer history in memory (tests and demo runs).
type ScoreLedger struct {
	mu      sync.RWMutex
	scores  map[int64]domain.ScoreRecord
	history []domain.AnswerHistoryEntry
}

func NewScoreLedger() *ScoreLedger {
	return &ScoreLedger{scores: make(map[int64]domain.ScoreRecord)}
}

func (l *ScoreLedger) RecordAnswer(_ context.Context, ev domain.AnswerEvent) (domain.ScoreRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := l.scores[ev.UserID].Apply(ev)
	l.scores[ev.UserID] = rec
	l.history = append(l.history, domain.AnswerHistoryEntry{
		UserID:     ev.UserID,
		QuestionID: ev.QuestionID,
		Option:     ev.Option,
		Correct:    ev.Correct,
		AnsweredAt: ev.At,
	})
	return rec, nil
}

func (l *ScoreLedger) Leaderboard(_ context.Context, limit int) ([]domain.ScoreRecord, error) {
	l.mu.RLock()
	entries := make([]domain.ScoreRecord, 0, len(l.scores))
	for _, rec := range l.scores {
		entries = append(entries, rec)
	}
	l.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].RanksAbove(entries[j]) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (l *ScoreLedger) UserStats(_ context.Context, userID int64) (domain.ScoreRecord, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.scores[userID]
	return rec, ok, nil
}

// History returns a copy of the answer history in insertion order.
func (l *ScoreLedger) History() []domain.AnswerHistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.AnswerHistoryEntry(nil), l.history...)
}
