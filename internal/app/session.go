package app

import (
	"sort"
	"time"

	"quiz-lobby-service/internal/domain"
	"quiz-lobby-service/internal/scoring"
)

// session is the per-lobby game state once the host starts. It is only
// touched from the owning coordinator's goroutine.
type session struct {
	id        string
	phase     domain.Phase
	questions []domain.Question
	index     int
	startedAt time.Time

	window   time.Duration
	deadline time.Time
	answers  map[string]domain.AnswerRecord
	outcomes map[string]scoring.Outcome

	history     []domain.AnswerRecord
	lastResults *domain.QuestionEnded
	standings   []domain.Standing
	finishedAt  time.Time
}

func newSession(id string, questions []domain.Question, now time.Time) *session {
	return &session{
		id:        id,
		phase:     domain.PhaseStarting,
		questions: questions,
		startedAt: now,
	}
}

func (s *session) current() domain.Question {
	return s.questions[s.index]
}

func (s *session) hasNext() bool {
	return s.index+1 < len(s.questions)
}

// openQuestion resets per-question state for question i.
func (s *session) openQuestion(i int, window time.Duration, deadline time.Time) {
	s.phase = domain.PhaseQuestionActive
	s.index = i
	s.window = window
	s.deadline = deadline
	s.answers = make(map[string]domain.AnswerRecord)
	s.outcomes = make(map[string]scoring.Outcome)
}

// computeStandings orders players by score, then correct answers, then join
// order. Tied players share a rank.
func computeStandings(players []*domain.Player, history []domain.AnswerRecord) []domain.Standing {
	correct := make(map[string]int)
	for _, rec := range history {
		if rec.IsCorrect {
			correct[rec.PlayerID]++
		}
	}

	standings := make([]domain.Standing, 0, len(players))
	for _, p := range players {
		standings = append(standings, domain.Standing{
			PlayerID:       p.ID,
			DisplayName:    p.DisplayName,
			Score:          p.Score,
			CorrectAnswers: correct[p.ID],
		})
	}
	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].Score != standings[j].Score {
			return standings[i].Score > standings[j].Score
		}
		return standings[i].CorrectAnswers > standings[j].CorrectAnswers
	})
	for i := range standings {
		standings[i].Rank = i + 1
		if i > 0 && standings[i].Score == standings[i-1].Score &&
			standings[i].CorrectAnswers == standings[i-1].CorrectAnswers {
			standings[i].Rank = standings[i-1].Rank
		}
	}
	return standings
}
