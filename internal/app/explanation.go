package app

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"poker-quiz-bot/internal/domain"
)

// FormatPrompt renders the question text posted with the choice prompt.
func FormatPrompt(q domain.Question) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Poker Quiz #%d\n\n%s", q.ID, q.Prompt)
	if q.Hand != "" {
		fmt.Fprintf(&b, "\n\nHero's hand: %s", q.Hand)
	}
	b.WriteString("\n\nYour action?")
	return b.String()
}

// FormatExplanation renders the reveal text: correct option, explanation,
// reference table, glossary and, when anyone answered, the accuracy line.
func FormatExplanation(q domain.Question, stats domain.RoundStats, table string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Quiz #%d explained\n\nAnswer: %s\n\n%s", q.ID, q.CorrectLabel(), q.Explanation)

	if table != "" {
		fmt.Fprintf(&b, "\n\n%s", table)
	}

	if len(q.Terms) > 0 {
		terms := make([]string, 0, len(q.Terms))
		for term := range q.Terms {
			terms = append(terms, term)
		}
		sort.Strings(terms)
		b.WriteString("\n\nGlossary")
		for _, term := range terms {
			fmt.Fprintf(&b, "\n• %s: %s", term, q.Terms[term])
		}
	}

	if stats.Participants > 0 {
		fmt.Fprintf(&b, "\n\nAccuracy: %d%% (%d/%d)", stats.Percent(), stats.Correct, stats.Participants)
	}
	return b.String()
}

// FormatFeedback renders the private feedback for one answer.
func FormatFeedback(q domain.Question, option int, correct bool) string {
	if correct {
		return fmt.Sprintf("Correct! (%s)", q.Options[option])
	}
	return fmt.Sprintf("Wrong (%s)\nAnswer: %s", q.Options[option], q.CorrectLabel())
}

// FormatTimeUntil renders a positive duration as "2h 5m", "45m" or
// "less than a minute", truncating to whole minutes.
func FormatTimeUntil(d time.Duration) string {
	mins := int(d / time.Minute)
	switch {
	case mins <= 0:
		return "less than a minute"
	case mins < 60:
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dh %dm", mins/60, mins%60)
}
