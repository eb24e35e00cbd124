package app

import (
	"testing"

	"poker-quiz-bot/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestReferenceTablesResolve(t *testing.T) {
	tables := DefaultReferenceTables().Merge(ReferenceTables{"CUSTOM": "custom table"})

	cases := []struct {
		name     string
		question domain.Question
		key      string
	}{
		{
			name:     "explicit key wins",
			question: domain.Question{Category: "postflop", Prompt: "Hero is on the BTN, folds to hero", ReferenceKey: "CUSTOM"},
			key:      "CUSTOM",
		},
		{
			name:     "open from seat",
			question: domain.Question{Category: "preflop", Prompt: "Folds to Hero on the BTN. 100bb deep."},
			key:      "BTN_RFI",
		},
		{
			name:     "defend versus open",
			question: domain.Question{Category: "preflop", Prompt: "Hero in the BB vs BTN open to 2.5bb."},
			key:      "BB_vs_BTN",
		},
		{
			name:     "not preflop",
			question: domain.Question{Category: "river", Prompt: "Hero is on the BTN and opens."},
		},
		{
			name:     "two seats without vs",
			question: domain.Question{Category: "preflop", Prompt: "CO opens, Hero is on the BTN. Folds to hero?"},
		},
		{
			name:     "no open wording",
			question: domain.Question{Category: "preflop", Prompt: "Hero is on the SB with a limp behind."},
		},
		{
			name:     "unknown explicit key",
			question: domain.Question{Category: "preflop", Prompt: "Hero is on the BTN, folds to hero", ReferenceKey: "MISSING"},
		},
		{
			name:     "inferred key without table",
			question: domain.Question{Category: "preflop", Prompt: "Hero in the HJ vs UTG open."},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			table, ok := tables.Resolve(tc.question)
			if tc.key == "" {
				assert.False(t, ok)
				assert.Empty(t, table)
				return
			}
			assert.True(t, ok)
			assert.Equal(t, tables[tc.key], table)
		})
	}
}

func TestDefaultReferenceTablesTrimmed(t *testing.T) {
	for key, table := range DefaultReferenceTables() {
		assert.NotEmpty(t, table, key)
		assert.NotEqual(t, '\n', rune(table[len(table)-1]), key)
	}
}
