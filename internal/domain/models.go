package domain

import "time"

// Question is an immutable multiple-choice catalog item.
type Question struct {
	ID            int               `json:"id" yaml:"id" validate:"required,gt=0"`
	Category      string            `json:"category" yaml:"category" validate:"required"`
	Prompt        string            `json:"prompt" yaml:"prompt" validate:"required"`
	Hand          string            `json:"hand,omitempty" yaml:"hand,omitempty"`
	Options       []string          `json:"options" yaml:"options" validate:"min=2,dive,required"`
	CorrectOption int               `json:"correct_option_index" yaml:"correct_option_index" validate:"gte=0"`
	Explanation   string            `json:"explanation" yaml:"explanation" validate:"required"`
	Terms         map[string]string `json:"terms,omitempty" yaml:"terms,omitempty"`
	ReferenceKey  string            `json:"reference_key,omitempty" yaml:"reference_key,omitempty"`
}

// CorrectLabel returns the label of the correct option.
func (q Question) CorrectLabel() string {
	return q.Options[q.CorrectOption]
}

// HasOption reports whether idx addresses one of the question's options.
func (q Question) HasOption(idx int) bool {
	return idx >= 0 && idx < len(q.Options)
}

// AnswerEvent is a single scored answer handed to the score ledger.
type AnswerEvent struct {
	UserID      int64
	DisplayName string
	QuestionID  int
	Option      int
	Correct     bool
	At          time.Time
}

// AnswerHistoryEntry is the append-only audit record of one answer.
type AnswerHistoryEntry struct {
	UserID     int64     `json:"userId"`
	QuestionID int       `json:"questionId"`
	Option     int       `json:"option"`
	Correct    bool      `json:"correct"`
	AnsweredAt time.Time `json:"answeredAt"`
}

// RoundStats summarizes the answers collected for one question.
type RoundStats struct {
	Participants int `json:"participants"`
	Correct      int `json:"correct"`
}

// Percent returns the integer accuracy of the round, truncated.
func (s RoundStats) Percent() int {
	if s.Participants == 0 {
		return 0
	}
	return s.Correct * 100 / s.Participants
}

// AnswerResult summarizes the outcome of a submission for a single user.
type AnswerResult struct {
	QuestionID    int         `json:"questionId"`
	Option        int         `json:"option"`
	Correct       bool        `json:"correct"`
	CorrectOption int         `json:"correctOption"`
	Score         ScoreRecord `json:"score"`
}
