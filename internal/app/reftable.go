package app

import (
	_ "embed"
	"regexp"
	"strings"

	"poker-quiz-bot/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed reftables.yaml
var defaultReferenceTables []byte

// ReferenceTables maps a lookup key (e.g. "BTN_RFI", "BB_vs_CO") to a preformatted table.
type ReferenceTables map[string]string

// DefaultReferenceTables returns the embedded preflop range tables.
func DefaultReferenceTables() ReferenceTables {
	tables, err := ParseReferenceTables(defaultReferenceTables)
	if err != nil {
		panic("embedded reference tables: " + err.Error())
	}
	return tables
}

// ParseReferenceTables decodes a YAML mapping of key to table text.
func ParseReferenceTables(raw []byte) (ReferenceTables, error) {
	tables := ReferenceTables{}
	if err := yaml.Unmarshal(raw, &tables); err != nil {
		return nil, err
	}
	for k, v := range tables {
		tables[k] = strings.TrimRight(v, "\n")
	}
	return tables, nil
}

// Merge returns a copy of t overlaid with extra.
func (t ReferenceTables) Merge(extra ReferenceTables) ReferenceTables {
	out := make(ReferenceTables, len(t)+len(extra))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Resolve returns the table for q. An explicit reference key wins; otherwise the
// key is inferred from the prompt text. Anything unresolvable yields no table.
func (t ReferenceTables) Resolve(q domain.Question) (string, bool) {
	key := q.ReferenceKey
	if key == "" {
		var ok bool
		if key, ok = inferReferenceKey(q); !ok {
			return "", false
		}
	}
	table, ok := t[key]
	return table, ok && table != ""
}

// Best-effort key inference over free-text prompts. These rules are heuristic:
// they only cover the phrasings the catalog uses today and must keep returning
// nothing whenever a prompt is ambiguous.
const positions = `UTG|HJ|CO|BTN|SB|BB`

var (
	positionRe = regexp.MustCompile(`\b(` + positions + `)\b`)
	versusRe   = regexp.MustCompile(`\b(` + positions + `)\s+(?i:vs\.?|versus)\s+(` + positions + `)\b`)
	heroSeatRe = regexp.MustCompile(`(?i:hero(?:'s)?\s+(?:is\s+)?(?:in|on|at)\s+(?:the\s+)?)(` + positions + `)\b`)
	openRe     = regexp.MustCompile(`(?i)\b(open|opens|rfi|raise first in|folds to)\b`)
)

func inferReferenceKey(q domain.Question) (string, bool) {
	if !strings.EqualFold(q.Category, "preflop") {
		return "", false
	}
	text := q.Prompt

	if m := versusRe.FindAllStringSubmatch(text, -1); len(m) > 0 {
		if len(m) > 1 {
			return "", false
		}
		if m[0][1] == m[0][2] {
			return "", false
		}
		return m[0][1] + "_vs_" + m[0][2], true
	}

	seats := heroSeatRe.FindAllStringSubmatch(text, -1)
	if len(seats) != 1 || !openRe.MatchString(text) {
		return "", false
	}
	hero := seats[0][1]
	// a second seat mentioned alongside an open usually means facing a raise
	for _, p := range positionRe.FindAllString(text, -1) {
		if p != hero {
			return "", false
		}
	}
	return hero + "_RFI", true
}
