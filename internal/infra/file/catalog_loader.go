package file

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"qrquest/internal/domain"
)

type catalogDocument struct {
	Questions []domain.Question `yaml:"questions"`
}

// CatalogLoader reads the question catalog from a YAML document.
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
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a catalog document.
func ParseCatalog(data []byte) ([]domain.Question, error) {
	var doc catalogDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(doc.Questions))
	for _, q := range doc.Questions {
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("question %q: %w", q.ID, err)
		}
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("question %q: duplicate id", q.ID)
		}
		seen[q.ID] = struct{}{}
	}
	return doc.Questions, nil
}
