package memory

import (
	"context"

	"poker-quiz-bot/internal/domain"
)

// StaticCatalogLoader is a simple loader backed by an in-memory slice (useful for tests/demos).
type StaticCatalogLoader struct {
	questions []domain.Question
}

func NewStaticCatalogLoader(questions []domain.Question) *StaticCatalogLoader {
	return &StaticCatalogLoader{questions: questions}
}

func (l *StaticCatalogLoader) LoadCatalog(_ context.Context) ([]domain.Question, error) {
	return append([]domain.Question(nil), l.questions...), nil
}
