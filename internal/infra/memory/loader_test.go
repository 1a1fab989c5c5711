package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"quiz-lobby-service/internal/domain"
)

const questionYAML = `
question_sets:
  - id: capitals
    title: Capitals
    questions:
      - id: fr
        prompt: Capital of France?
        choices: [Lyon, Paris, Nice]
        correct_choice_index: 1
        time_limit_seconds: 15
      - id: jp
        prompt: Capital of Japan?
        choices: [Tokyo, Osaka]
        correct_choice_index: 0
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.yaml")
	if err := os.WriteFile(path, []byte(questionYAML), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	loader, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}

	set, err := loader.LoadQuestionSet(context.Background(), "capitals")
	if err != nil {
		t.Fatalf("load set: %v", err)
	}
	if len(set.Questions) != 2 || set.Questions[0].CorrectChoiceIndex != 1 || set.Questions[0].TimeLimitSeconds != 15 {
		t.Fatalf("unexpected set %+v", set)
	}
	if set.Questions[1].TimeLimitSeconds != 0 {
		t.Fatalf("expected lobby default time limit for second question, got %d", set.Questions[1].TimeLimitSeconds)
	}
}

func TestParseQuestionSetsRejectsBadContent(t *testing.T) {
	cases := map[string]string{
		"missing id": `
question_sets:
  - questions: []
`,
		"choice out of range": `
question_sets:
  - id: broken
    questions:
      - id: q
        choices: [a, b]
        correct_choice_index: 2
`,
		"single choice": `
question_sets:
  - id: broken
    questions:
      - id: q
        choices: [a]
`,
	}
	for name, raw := range cases {
		if _, err := ParseQuestionSets([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	_, err := ParseQuestionSets([]byte(cases["choice out of range"]))
	if !errors.Is(err, domain.ErrInvalidQuestion) {
		t.Fatalf("expected invalid question error, got %v", err)
	}
}
