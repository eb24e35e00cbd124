package app

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"poker-quiz-bot/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

var catalogValidator = validator.New()

// QuestionBank is the immutable catalog plus its draw-without-replacement state.
type QuestionBank struct {
	questions []domain.Question
	byID      map[int]int
	tables    ReferenceTables
	log       zerolog.Logger

	mu   sync.Mutex
	rnd  *rand.Rand
	used map[int]struct{}
}

// BankOption customizes a QuestionBank.
type BankOption func(*QuestionBank)

// WithRand makes draws deterministic in tests.
func WithRand(rnd *rand.Rand) BankOption {
	return func(b *QuestionBank) { b.rnd = rnd }
}

// WithReferenceTables replaces the built-in reference tables.
func WithReferenceTables(t ReferenceTables) BankOption {
	return func(b *QuestionBank) { b.tables = t }
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) BankOption {
	return func(b *QuestionBank) { b.log = log.With().Str("component", "question_bank").Logger() }
}

// NewQuestionBank validates the catalog and builds a bank. Any malformed record
// fails the whole load; a partial catalog is never returned.
func NewQuestionBank(questions []domain.Question, opts ...BankOption) (*QuestionBank, error) {
	if len(questions) == 0 {
		return nil, &domain.DataFormatError{Index: -1, Reason: "catalog is empty"}
	}
	b := &QuestionBank{
		questions: make([]domain.Question, 0, len(questions)),
		byID:      make(map[int]int, len(questions)),
		tables:    DefaultReferenceTables(),
		log:       zerolog.Nop(),
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		used:      make(map[int]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	for i, q := range questions {
		if err := validateQuestion(i, q); err != nil {
			return nil, err
		}
		if _, dup := b.byID[q.ID]; dup {
			return nil, &domain.DataFormatError{Index: i, QuestionID: q.ID, Reason: "duplicate id"}
		}
		b.byID[q.ID] = len(b.questions)
		b.questions = append(b.questions, q)
	}
	return b, nil
}

func validateQuestion(idx int, q domain.Question) error {
	if err := catalogValidator.Struct(q); err != nil {
		return &domain.DataFormatError{Index: idx, QuestionID: q.ID, Reason: err.Error()}
	}
	if !q.HasOption(q.CorrectOption) {
		return &domain.DataFormatError{
			Index:      idx,
			QuestionID: q.ID,
			Reason:     fmt.Sprintf("correct option %d out of range for %d options", q.CorrectOption, len(q.Options)),
		}
	}
	return nil
}

// Len returns the catalog size.
func (b *QuestionBank) Len() int { return len(b.questions) }

// Lookup finds a question by id.
func (b *QuestionBank) Lookup(id int) (domain.Question, bool) {
	idx, ok := b.byID[id]
	if !ok {
		return domain.Question{}, false
	}
	return b.questions[idx], true
}

// DrawNext returns a question not drawn since the last reset. When every
// question has been drawn the exhaustion set is cleared first.
func (b *QuestionBank) DrawNext() domain.Question {
	b.mu.Lock()
	defer b.mu.Unlock()

	available := make([]int, 0, len(b.questions)-len(b.used))
	for i, q := range b.questions {
		if _, ok := b.used[q.ID]; !ok {
			available = append(available, i)
		}
	}
	if len(available) == 0 {
		b.log.Info().Int("questions", len(b.questions)).Msg("catalog exhausted, starting a new cycle")
		clear(b.used)
		available = available[:0]
		for i := range b.questions {
			available = append(available, i)
		}
	}

	q := b.questions[available[b.rnd.Intn(len(available))]]
	b.used[q.ID] = struct{}{}
	return q
}

// UsedIDs returns the exhaustion set in ascending order.
func (b *QuestionBank) UsedIDs() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]int, 0, len(b.used))
	for id := range b.used {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// RestoreUsed replaces the exhaustion set. Ids no longer in the catalog are dropped.
func (b *QuestionBank) RestoreUsed(ids []int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.used)
	for _, id := range ids {
		if _, ok := b.byID[id]; ok {
			b.used[id] = struct{}{}
		}
	}
}

// LookupReferenceTable returns the supplementary table for a question, if any.
func (b *QuestionBank) LookupReferenceTable(q domain.Question) (string, bool) {
	return b.tables.Resolve(q)
}
