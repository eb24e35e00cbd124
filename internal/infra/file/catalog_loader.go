package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"poker-quiz-bot/internal/domain"

	"gopkg.in/yaml.v3"
)

// CatalogLoader reads the question catalog from a JSON or YAML file, chosen
// by extension.
type CatalogLoader struct {
	path string
}

func NewCatalogLoader(path string) *CatalogLoader {
	return &CatalogLoader{path: path}
}

func (l *CatalogLoader) LoadCatalog(_ context.Context) ([]domain.Question, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data, filepath.Ext(l.path))
}

// ParseCatalog decodes a catalog document. ext selects YAML for ".yaml" and
// ".yml"; anything else is decoded as JSON.
func ParseCatalog(data []byte, ext string) ([]domain.Question, error) {
	var questions []domain.Question
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &questions); err != nil {
			return nil, &domain.DataFormatError{Index: -1, Reason: err.Error()}
		}
	default:
		if err := json.Unmarshal(data, &questions); err != nil {
			return nil, &domain.DataFormatError{Index: -1, Reason: err.Error()}
		}
	}
	return questions, nil
}
