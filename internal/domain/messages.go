package domain

import "time"

// MessageType names an outbound message.
type MessageType string

const (
	MsgSnapshot        MessageType = "lobby.snapshot"
	MsgPlayerJoined    MessageType = "player.joined"
	MsgPlayerLeft      MessageType = "player.left"
	MsgPlayerUpdated   MessageType = "player.updated"
	MsgHostChanged     MessageType = "host.changed"
	MsgSessionStarting MessageType = "session.starting"
	MsgQuestionStarted MessageType = "question.started"
	MsgProgressUpdate  MessageType = "progress.update"
	MsgQuestionEnded   MessageType = "question.ended"
	MsgSessionFinished MessageType = "session.finished"
	MsgSessionPaused   MessageType = "session.paused"
	MsgSessionResumed  MessageType = "session.resumed"
	MsgLobbyClosed     MessageType = "lobby.closed"

	// Private messages carry no sequence number.
	MsgAnswerReceived MessageType = "answer.received"
	MsgLobbyCreated   MessageType = "lobby.created"
	MsgError          MessageType = "error"
)

// Message is a frame sent to a client. Broadcast deltas carry a strictly
// increasing Seq per lobby; snapshots carry the Seq of the last delta they
// already include; private messages have Seq zero.
type Message struct {
	Seq     uint64      `json:"seq,omitempty"`
	Type    MessageType `json:"type"`
	Payload any         `json:"payload"`
}

// LobbySnapshot is the complete state of a lobby and its session.
type LobbySnapshot struct {
	Seq       uint64       `json:"seq"`
	Code      string       `json:"code"`
	HostID    string       `json:"hostId"`
	Status    LobbyStatus  `json:"status"`
	Settings  Settings     `json:"settings"`
	CreatedAt time.Time    `json:"createdAt"`
	Players   []PlayerView `json:"players"`
	Session   *SessionView `json:"session,omitempty"`
}

// SessionView is the client-visible part of a running game session.
type SessionView struct {
	ID                   string          `json:"id"`
	Phase                Phase           `json:"phase"`
	CurrentQuestionIndex int             `json:"currentQuestionIndex"`
	TotalQuestions       int             `json:"totalQuestions"`
	Question             *PublicQuestion `json:"question,omitempty"`
	Deadline             *time.Time      `json:"deadline,omitempty"`
	Answered             int             `json:"answered"`
	Expected             int             `json:"expected"`
	Paused               bool            `json:"paused,omitempty"`
	LastResults          *QuestionEnded  `json:"lastResults,omitempty"`
	Standings            []Standing      `json:"standings,omitempty"`
}

type PlayerJoined struct {
	Player PlayerView `json:"player"`
}

type PlayerLeft struct {
	PlayerID string `json:"playerId"`
}

type PlayerUpdated struct {
	Player PlayerView `json:"player"`
}

type HostChanged struct {
	HostID string `json:"hostId"`
}

type SessionStarting struct {
	SessionID        string    `json:"sessionId"`
	CountdownSeconds float64   `json:"countdownSeconds"`
	StartsAt         time.Time `json:"startsAt"`
	TotalQuestions   int       `json:"totalQuestions"`
}

type QuestionStarted struct {
	Index            int            `json:"index"`
	Total            int            `json:"total"`
	Question         PublicQuestion `json:"question"`
	Deadline         time.Time      `json:"deadline"`
	TimeLimitSeconds int            `json:"timeLimitSeconds"`
	Expected         int            `json:"expected"`
}

type ProgressUpdate struct {
	QuestionIndex int `json:"questionIndex"`
	Answered      int `json:"answered"`
	Expected      int `json:"expected"`
}

// PlayerResult is one player's outcome for a finished question.
type PlayerResult struct {
	PlayerID      string `json:"playerId"`
	Answered      bool   `json:"answered"`
	Correct       bool   `json:"correct"`
	PointsAwarded int    `json:"pointsAwarded"`
	Score         int    `json:"score"`
	Streak        int    `json:"streak"`
	Multiplier    int    `json:"multiplier"`
}

type QuestionEnded struct {
	Index              int            `json:"index"`
	CorrectChoiceIndex int            `json:"correctChoiceIndex"`
	Results            []PlayerResult `json:"results"`
}

type SessionFinished struct {
	Standings []Standing `json:"standings"`
}

type SessionPaused struct {
	Phase Phase `json:"phase"`
}

type SessionResumed struct {
	Phase    Phase      `json:"phase"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

type LobbyClosed struct {
	Reason string `json:"reason"`
}

type AnswerReceived struct {
	QuestionIndex int       `json:"questionIndex"`
	ChoiceIndex   int       `json:"choiceIndex"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

type LobbyCreated struct {
	Code string `json:"code"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
