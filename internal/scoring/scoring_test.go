package scoring

import (
	"testing"

	"quiz-lobby-service/internal/domain"
)

func question() domain.Question {
	return domain.Question{
		ID:                 "q1",
		Prompt:             "What is 2 + 2?",
		Choices:            []string{"3", "4", "5"},
		CorrectChoiceIndex: 1,
		TimeLimitSeconds:   10,
	}
}

func choice(i int) *int { return &i }

func TestScoreCorrectAnswerWithTimeBonus(t *testing.T) {
	rules := Rules{BasePoints: 100, TimeBonusWeight: 1.0, MultiplierCap: 5, StreakStep: 1}
	out := rules.Score(Input{
		Question:              question(),
		Choice:                choice(1),
		TimeRemainingFraction: 0.8,
		Multiplier:            1,
		Streak:                0,
	})
	if out.Points != 180 || out.Streak != 1 || out.Multiplier != 2 || !out.Correct {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestScoreIncorrectAndAbsentReset(t *testing.T) {
	rules := DefaultRules()
	cases := map[string]*int{"incorrect": choice(0), "absent": nil}
	for name, c := range cases {
		out := rules.Score(Input{Question: question(), Choice: c, TimeRemainingFraction: 1, Multiplier: 4, Streak: 7})
		if out != (Outcome{Multiplier: 1}) {
			t.Fatalf("%s: expected reset outcome, got %+v", name, out)
		}
	}
}

func TestScoreAppliesCurrentMultiplierAndCap(t *testing.T) {
	rules := Rules{BasePoints: 100, TimeBonusWeight: 0.5, MultiplierCap: 3, StreakStep: 2}
	out := rules.Score(Input{Question: question(), Choice: choice(1), TimeRemainingFraction: 0.5, Multiplier: 3, Streak: 9})
	// base 100 + round(100*0.5*0.5)=25, times current multiplier 3
	if out.Points != 375 {
		t.Fatalf("expected 375 points, got %d", out.Points)
	}
	if out.Streak != 10 || out.Multiplier != 3 {
		t.Fatalf("expected streak 10 capped multiplier 3, got %+v", out)
	}
}

func TestScoreStreakStep(t *testing.T) {
	rules := Rules{BasePoints: 10, TimeBonusWeight: 0, MultiplierCap: 10, StreakStep: 3}
	mult, streak := 1, 0
	want := []int{1, 1, 2, 2, 2, 3}
	for i, w := range want {
		out := rules.Score(Input{Question: question(), Choice: choice(1), Multiplier: mult, Streak: streak})
		mult, streak = out.Multiplier, out.Streak
		if mult != w {
			t.Fatalf("answer %d: expected multiplier %d, got %d", i+1, w, mult)
		}
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	rules := DefaultRules()
	in := Input{Question: question(), Choice: choice(1), TimeRemainingFraction: 0.333, Multiplier: 2, Streak: 3}
	first := rules.Score(in)
	for i := 0; i < 100; i++ {
		if got := rules.Score(in); got != first {
			t.Fatalf("non-deterministic score: %+v vs %+v", got, first)
		}
	}
}

func TestRemainingFractionClamps(t *testing.T) {
	if f := RemainingFraction(-1, 10); f != 0 {
		t.Fatalf("expected 0, got %v", f)
	}
	if f := RemainingFraction(12, 10); f != 1 {
		t.Fatalf("expected 1, got %v", f)
	}
	if f := RemainingFraction(8, 10); f != 0.8 {
		t.Fatalf("expected 0.8, got %v", f)
	}
	if f := RemainingFraction(1, 0); f != 0 {
		t.Fatalf("expected 0 for empty window, got %v", f)
	}
}
