package domain

import (
	"context"
	"errors"
)

var (
	// ErrLobbyNotFound is returned for an unknown lobby code.
	ErrLobbyNotFound = errors.New("lobby not found")
	// ErrLobbyFull is returned when a join would exceed the lobby's max players.
	ErrLobbyFull = errors.New("lobby is full")
	// ErrAlreadyStarted is returned when joining or starting a lobby that left the waiting state.
	ErrAlreadyStarted = errors.New("lobby already started")
	// ErrLobbyClosed is returned when the lobby was torn down while a request was in flight.
	ErrLobbyClosed = errors.New("lobby closed")
	// ErrNotMember is returned when a player acts on a lobby they have not joined.
	ErrNotMember = errors.New("player is not a member of this lobby")
	// ErrNotHost is returned for host-only commands issued by another player.
	ErrNotHost = errors.New("only the host can do that")
	// ErrNotEnoughPlayers is returned when starting with fewer than two players.
	ErrNotEnoughPlayers = errors.New("at least two players are required")
	// ErrPlayersNotReady is returned when starting before every player is ready.
	ErrPlayersNotReady = errors.New("not every player is ready")
	// ErrNotWaiting is returned for lobby-only commands once a game is running.
	ErrNotWaiting = errors.New("lobby is not waiting for players")
	// ErrNoActiveQuestion is returned when answering outside the answer window.
	ErrNoActiveQuestion = errors.New("no question is accepting answers")
	// ErrStaleQuestion is returned when an answer targets a question that is not current.
	ErrStaleQuestion = errors.New("answer is for a different question")
	// ErrDuplicateAnswer is returned for a second answer to the same question.
	ErrDuplicateAnswer = errors.New("answer already submitted")
	// ErrDeadlinePassed is returned when an answer arrives after the deadline.
	ErrDeadlinePassed = errors.New("answer deadline passed")
	// ErrInvalidChoice is returned when the choice index is out of range.
	ErrInvalidChoice = errors.New("invalid choice")
	// ErrSpectator is returned when a spectator tries to answer.
	ErrSpectator = errors.New("spectators cannot answer")
	// ErrInvalidSettings is returned when lobby settings are out of range.
	ErrInvalidSettings = errors.New("invalid lobby settings")
	// ErrQuestionSetNotFound indicates the question set could not be loaded.
	ErrQuestionSetNotFound = errors.New("question set not found")
	// ErrInvalidQuestion indicates malformed question content.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrNoQuestions indicates a question set without questions.
	ErrNoQuestions = errors.New("question set is empty")
	// ErrCodeExhausted is returned when no free lobby code could be generated.
	ErrCodeExhausted = errors.New("could not allocate a lobby code")
	// ErrUnauthorized is returned when a credential fails verification.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrBadRequest covers malformed client payloads.
	ErrBadRequest = errors.New("malformed request")
)

// Kind is the error taxonomy used to decide how a failure is surfaced.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindStateConflict Kind = "state_conflict"
	KindConnectivity  Kind = "connectivity"
	KindInternal      Kind = "internal"
)

type classified struct {
	code string
	kind Kind
}

var classes = map[error]classified{
	ErrLobbyNotFound:       {"not_found", KindValidation},
	ErrLobbyFull:           {"full", KindStateConflict},
	ErrAlreadyStarted:      {"already_started", KindStateConflict},
	ErrLobbyClosed:         {"lobby_closed", KindStateConflict},
	ErrNotMember:           {"not_member", KindValidation},
	ErrNotHost:             {"not_host", KindStateConflict},
	ErrNotEnoughPlayers:    {"not_enough_players", KindStateConflict},
	ErrPlayersNotReady:     {"players_not_ready", KindStateConflict},
	ErrNotWaiting:          {"not_waiting", KindStateConflict},
	ErrNoActiveQuestion:    {"no_active_question", KindStateConflict},
	ErrStaleQuestion:       {"stale_question", KindStateConflict},
	ErrDuplicateAnswer:     {"duplicate_answer", KindValidation},
	ErrDeadlinePassed:      {"deadline_passed", KindStateConflict},
	ErrInvalidChoice:       {"invalid_choice", KindValidation},
	ErrSpectator:           {"spectator", KindStateConflict},
	ErrInvalidSettings:     {"invalid_settings", KindValidation},
	ErrQuestionSetNotFound: {"question_set_not_found", KindValidation},
	ErrNoQuestions:         {"no_questions", KindValidation},
	ErrInvalidQuestion:     {"invalid_question", KindValidation},
	ErrCodeExhausted:       {"code_exhausted", KindInternal},
	ErrUnauthorized:        {"unauthorized", KindValidation},
	ErrBadRequest:          {"bad_request", KindValidation},
}

func classify(err error) classified {
	if err == nil {
		return classified{}
	}
	for sentinel, c := range classes {
		if errors.Is(err, sentinel) {
			return c
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return classified{"timeout", KindConnectivity}
	}
	return classified{"internal", KindInternal}
}

// ErrorCode maps an error to the short code sent to clients.
func ErrorCode(err error) string {
	return classify(err).code
}

// ErrorKind classifies an error within the taxonomy.
func ErrorKind(err error) Kind {
	return classify(err).kind
}
