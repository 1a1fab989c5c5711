package domain

import (
	"fmt"
	"time"
)

// LobbyStatus is the coarse lifecycle state of a lobby.
type LobbyStatus string

const (
	LobbyWaiting  LobbyStatus = "waiting"
	LobbyPlaying  LobbyStatus = "playing"
	LobbyFinished LobbyStatus = "finished"
)

// Phase is the current stage of a game session.
type Phase string

const (
	PhaseWaiting         Phase = "waiting"
	PhaseStarting        Phase = "starting"
	PhaseQuestionActive  Phase = "question_active"
	PhaseQuestionResults Phase = "question_results"
	PhaseFinished        Phase = "finished"
)

// ConnectionState tracks whether a player's transport is live.
type ConnectionState string

const (
	Connected    ConnectionState = "connected"
	GracePeriod  ConnectionState = "grace_period"
	Disconnected ConnectionState = "disconnected"
)

// ExpiredPlayerPolicy decides what happens to a player whose grace period
// elapses while a game is running.
type ExpiredPlayerPolicy string

const (
	// KeepAsSpectator leaves the player on the roster without further scoring.
	KeepAsSpectator ExpiredPlayerPolicy = "spectator"
	// RemoveExpired drops the player from the roster.
	RemoveExpired ExpiredPlayerPolicy = "remove"
)

// Settings are chosen by the host when the lobby is created.
type Settings struct {
	MaxPlayers               int    `json:"maxPlayers" yaml:"max_players"`
	QuestionTimeLimitSeconds int    `json:"questionTimeLimitSeconds" yaml:"question_time_limit_seconds"`
	QuestionSetID            string `json:"questionSetId" yaml:"question_set_id"`
}

// Profile is the cosmetic identity a player presents when joining.
type Profile struct {
	DisplayName string `json:"displayName"`
	Character   string `json:"character"`
}

// Player is a lobby member. Owned by exactly one lobby.
type Player struct {
	ID              string
	DisplayName     string
	Character       string
	Score           int
	Multiplier      int
	Streak          int
	IsReady         bool
	IsHost          bool
	Spectator       bool
	ConnectionState ConnectionState
	JoinedAt        time.Time
	LastActivityAt  time.Time
}

// View returns the wire representation of the player.
func (p *Player) View() PlayerView {
	return PlayerView{
		ID:              p.ID,
		DisplayName:     p.DisplayName,
		Character:       p.Character,
		Score:           p.Score,
		Multiplier:      p.Multiplier,
		Streak:          p.Streak,
		IsReady:         p.IsReady,
		IsHost:          p.IsHost,
		Spectator:       p.Spectator,
		ConnectionState: p.ConnectionState,
	}
}

// PlayerView is the snapshot-friendly view of a player.
type PlayerView struct {
	ID              string          `json:"id"`
	DisplayName     string          `json:"displayName"`
	Character       string          `json:"character,omitempty"`
	Score           int             `json:"score"`
	Multiplier      int             `json:"multiplier"`
	Streak          int             `json:"streak"`
	IsReady         bool            `json:"isReady"`
	IsHost          bool            `json:"isHost"`
	Spectator       bool            `json:"spectator,omitempty"`
	ConnectionState ConnectionState `json:"connectionState"`
}

// MaxTimeLimitSeconds bounds per-question and lobby time limits.
const MaxTimeLimitSeconds = 3600

// Question is a multiple choice question with exactly one correct choice.
type Question struct {
	ID                 string   `json:"id" yaml:"id"`
	Prompt             string   `json:"prompt" yaml:"prompt"`
	Choices            []string `json:"choices" yaml:"choices"`
	CorrectChoiceIndex int      `json:"correctChoiceIndex" yaml:"correct_choice_index"`
	TimeLimitSeconds   int      `json:"timeLimitSeconds,omitempty" yaml:"time_limit_seconds"`
}

// Public strips the answer so the question can be broadcast.
func (q Question) Public() PublicQuestion {
	choices := make([]string, len(q.Choices))
	copy(choices, q.Choices)
	return PublicQuestion{ID: q.ID, Prompt: q.Prompt, Choices: choices}
}

// Validate checks that the question is answerable.
func (q Question) Validate() error {
	if len(q.Choices) < 2 {
		return fmt.Errorf("%w: need at least two choices", ErrInvalidQuestion)
	}
	if q.CorrectChoiceIndex < 0 || q.CorrectChoiceIndex >= len(q.Choices) {
		return fmt.Errorf("%w: correct choice %d out of range", ErrInvalidQuestion, q.CorrectChoiceIndex)
	}
	if q.TimeLimitSeconds < 0 {
		return fmt.Errorf("%w: negative time limit", ErrInvalidQuestion)
	}
	if q.TimeLimitSeconds > MaxTimeLimitSeconds {
		return fmt.Errorf("%w: time limit %ds above %ds", ErrInvalidQuestion, q.TimeLimitSeconds, MaxTimeLimitSeconds)
	}
	return nil
}

// PublicQuestion is a question without its correct choice.
type PublicQuestion struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Choices []string `json:"choices"`
}

// QuestionSet is an ordered collection of questions.
type QuestionSet struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title,omitempty" yaml:"title"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// AnswerRecord is created once per player per question and never mutated.
type AnswerRecord struct {
	PlayerID      string    `json:"playerId"`
	QuestionIndex int       `json:"questionIndex"`
	ChoiceIndex   int       `json:"choiceIndex"`
	SubmittedAt   time.Time `json:"submittedAt"`
	IsCorrect     bool      `json:"isCorrect"`
	PointsAwarded int       `json:"pointsAwarded"`
}

// Standing is one row of the final scoreboard.
type Standing struct {
	Rank           int    `json:"rank"`
	PlayerID       string `json:"playerId"`
	DisplayName    string `json:"displayName"`
	Score          int    `json:"score"`
	CorrectAnswers int    `json:"correctAnswers"`
}

// SessionSummary is handed to the results archive once a session finishes.
type SessionSummary struct {
	SessionID      string         `json:"sessionId"`
	LobbyCode      string         `json:"lobbyCode"`
	QuestionSetID  string         `json:"questionSetId"`
	TotalQuestions int            `json:"totalQuestions"`
	StartedAt      time.Time      `json:"startedAt"`
	FinishedAt     time.Time      `json:"finishedAt"`
	Standings      []Standing     `json:"standings"`
	Answers        []AnswerRecord `json:"answers"`
}
