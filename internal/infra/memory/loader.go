package memory

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"quiz-lobby-service/internal/domain"
)

// StaticLoader is a loader backed by an in-memory map (useful for tests/demos).
type StaticLoader struct {
	sets map[string]domain.QuestionSet
}

func NewStaticLoader(sets map[string]domain.QuestionSet) *StaticLoader {
	return &StaticLoader{sets: sets}
}

func (l *StaticLoader) LoadQuestionSet(_ context.Context, setID string) (domain.QuestionSet, error) {
	if set, ok := l.sets[setID]; ok {
		return set, nil
	}
	return domain.QuestionSet{}, domain.ErrQuestionSetNotFound
}

type questionFile struct {
	Sets []domain.QuestionSet `yaml:"question_sets"`
}

// LoadFile reads question sets from a YAML file.
func LoadFile(path string) (*StaticLoader, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question file: %w", err)
	}
	return ParseQuestionSets(raw)
}

// ParseQuestionSets decodes and validates YAML question sets.
func ParseQuestionSets(raw []byte) (*StaticLoader, error) {
	var file questionFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode question file: %w", err)
	}
	sets := make(map[string]domain.QuestionSet, len(file.Sets))
	for _, set := range file.Sets {
		if set.ID == "" {
			return nil, fmt.Errorf("question set without id")
		}
		if _, dup := sets[set.ID]; dup {
			return nil, fmt.Errorf("duplicate question set %q", set.ID)
		}
		for i, q := range set.Questions {
			if err := q.Validate(); err != nil {
				return nil, fmt.Errorf("question set %q, question %d: %w", set.ID, i, err)
			}
		}
		sets[set.ID] = set
	}
	return NewStaticLoader(sets), nil
}
