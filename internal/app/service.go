package app

import (
	"context"

	"quiz-lobby-service/internal/broadcast"
	"quiz-lobby-service/internal/domain"
)

// QuestionRepository loads question sets (from cache/backing store).
type QuestionRepository interface {
	GetQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// LobbyService contains the lobby use cases. It resolves lobby codes and
// loads content; everything else is delegated to the lobby's coordinator.
type LobbyService struct {
	lobbies   *Registry
	questions QuestionRepository
}

func NewLobbyService(lobbies *Registry, questions QuestionRepository) *LobbyService {
	return &LobbyService{lobbies: lobbies, questions: questions}
}

// Registry exposes the lobby registry.
func (s *LobbyService) Registry() *Registry {
	return s.lobbies
}

// Create opens a lobby hosted by hostID.
func (s *LobbyService) Create(ctx context.Context, hostID string, profile domain.Profile, settings domain.Settings) (domain.LobbySnapshot, error) {
	settings, err := s.lobbies.cfg.normalizeSettings(settings)
	if err != nil {
		return domain.LobbySnapshot{}, err
	}
	// Hosts cannot open lobbies for unknown question sets.
	if _, err := s.loadQuestions(ctx, settings.QuestionSetID); err != nil {
		return domain.LobbySnapshot{}, err
	}
	c, err := s.lobbies.Create(ctx, hostID, profile, settings)
	if err != nil {
		return domain.LobbySnapshot{}, err
	}
	return c.Snapshot(ctx)
}

// Join adds a player to a lobby, or reconnects an existing member.
func (s *LobbyService) Join(ctx context.Context, code, playerID string, profile domain.Profile) (domain.LobbySnapshot, error) {
	_, snap, err := s.lobbies.Join(ctx, code, playerID, profile)
	return snap, err
}

// Connect attaches a message stream for a lobby member.
func (s *LobbyService) Connect(ctx context.Context, code, playerID string) (*broadcast.Subscription, error) {
	c, err := s.lobbies.Get(code)
	if err != nil {
		return nil, err
	}
	return c.Connect(ctx, playerID)
}

// Disconnect reports that the transport behind subID dropped.
func (s *LobbyService) Disconnect(ctx context.Context, code, playerID string, subID uint64) error {
	c, err := s.lobbies.Get(code)
	if err != nil {
		return err
	}
	return c.Disconnect(ctx, playerID, subID)
}

// Leave removes a player from a lobby.
func (s *LobbyService) Leave(ctx context.Context, code, playerID string) error {
	return s.lobbies.Leave(ctx, code, playerID)
}

// SetReady marks a player ready or not ready.
func (s *LobbyService) SetReady(ctx context.Context, code, playerID string, ready bool) error {
	c, err := s.lobbies.Get(code)
	if err != nil {
		return err
	}
	return c.SetReady(ctx, playerID, ready)
}

// Start loads the lobby's question set and starts the game.
func (s *LobbyService) Start(ctx context.Context, code, playerID string) error {
	c, err := s.lobbies.Get(code)
	if err != nil {
		return err
	}
	questions, err := s.loadQuestions(ctx, c.Settings().QuestionSetID)
	if err != nil {
		return err
	}
	return c.Start(ctx, playerID, questions)
}

// SubmitAnswer records an answer. questionIndex < 0 targets the current question.
func (s *LobbyService) SubmitAnswer(ctx context.Context, code, playerID string, questionIndex, choiceIndex int) error {
	c, err := s.lobbies.Get(code)
	if err != nil {
		return err
	}
	return c.SubmitAnswer(ctx, playerID, questionIndex, choiceIndex)
}

// Close tears a lobby down on the host's request.
func (s *LobbyService) Close(ctx context.Context, code, playerID string) error {
	c, err := s.lobbies.Get(code)
	if err != nil {
		return err
	}
	return c.Close(ctx, playerID)
}

// Snapshot returns the current state of a lobby.
func (s *LobbyService) Snapshot(ctx context.Context, code string) (domain.LobbySnapshot, error) {
	c, err := s.lobbies.Get(code)
	if err != nil {
		return domain.LobbySnapshot{}, err
	}
	snap, err := c.Snapshot(ctx)
	if err == domain.ErrLobbyClosed {
		err = domain.ErrLobbyNotFound
	}
	return snap, err
}

// Shutdown closes every lobby.
func (s *LobbyService) Shutdown(ctx context.Context) error {
	return s.lobbies.Shutdown(ctx)
}

func (s *LobbyService) loadQuestions(ctx context.Context, setID string) ([]domain.Question, error) {
	set, err := s.questions.GetQuestionSet(ctx, setID)
	if err != nil {
		return nil, err
	}
	if len(set.Questions) == 0 {
		return nil, domain.ErrNoQuestions
	}
	return set.Questions, nil
}
