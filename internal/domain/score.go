package domain

import "time"

// ScoreRecord is the durable per-user aggregate.
type ScoreRecord struct {
	UserID       int64     `json:"userId"`
	DisplayName  string    `json:"displayName"`
	Correct      int       `json:"correct"`
	Total        int       `json:"total"`
	Streak       int       `json:"streak"`
	BestStreak   int       `json:"bestStreak"`
	LastAnswerAt time.Time `json:"lastAnswerAt"`
}

// Apply folds one answer into the record.
// correct <= total always holds; a wrong answer resets the streak.
func (r ScoreRecord) Apply(ev AnswerEvent) ScoreRecord {
	r.UserID = ev.UserID
	if ev.DisplayName != "" {
		r.DisplayName = ev.DisplayName
	}
	r.Total++
	if ev.Correct {
		r.Correct++
		r.Streak++
	} else {
		r.Streak = 0
	}
	r.BestStreak = max(r.BestStreak, r.Streak)
	r.LastAnswerAt = ev.At
	return r
}

// Accuracy returns the share of correct answers in percent.
func (r ScoreRecord) Accuracy() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Correct) / float64(r.Total) * 100
}

// RanksAbove orders records for the leaderboard: more correct answers first,
// then fewer attempts, then lower user id so equal pairs stay stable.
func (r ScoreRecord) RanksAbove(o ScoreRecord) bool {
	if r.Correct != o.Correct {
		return r.Correct > o.Correct
	}
	if r.Total != o.Total {
		return r.Total < o.Total
	}
	return r.UserID < o.UserID
}
