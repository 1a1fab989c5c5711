package app

import (
	"time"

	"quiz-lobby-service/internal/broadcast"
	"quiz-lobby-service/internal/domain"
	"quiz-lobby-service/internal/scoring"
)

// GameConfig tunes lobby behaviour.
type GameConfig struct {
	Rules            scoring.Rules
	Countdown        time.Duration
	ResultsPause     time.Duration
	GracePeriod      time.Duration
	AbandonAfter     time.Duration
	ExpiredPolicy    domain.ExpiredPlayerPolicy
	SubscriberBuffer int

	DefaultMaxPlayers        int
	DefaultQuestionTimeLimit int
	MaxPlayersLimit          int
	MaxQuestionTimeLimit     int
}

// DefaultGameConfig returns production defaults.
func DefaultGameConfig() GameConfig {
	return GameConfig{
		Rules:                    scoring.DefaultRules(),
		Countdown:                3 * time.Second,
		ResultsPause:             5 * time.Second,
		GracePeriod:              30 * time.Second,
		AbandonAfter:             2 * time.Minute,
		ExpiredPolicy:            domain.KeepAsSpectator,
		SubscriberBuffer:         broadcast.DefaultBuffer,
		DefaultMaxPlayers:        8,
		DefaultQuestionTimeLimit: 20,
		MaxPlayersLimit:          100,
		MaxQuestionTimeLimit:     domain.MaxTimeLimitSeconds,
	}
}

// normalizeSettings fills defaults and validates ranges.
func (c GameConfig) normalizeSettings(s domain.Settings) (domain.Settings, error) {
	if s.MaxPlayers == 0 {
		s.MaxPlayers = c.DefaultMaxPlayers
	}
	if s.QuestionTimeLimitSeconds == 0 {
		s.QuestionTimeLimitSeconds = c.DefaultQuestionTimeLimit
	}
	if s.MaxPlayers < 2 || (c.MaxPlayersLimit > 0 && s.MaxPlayers > c.MaxPlayersLimit) {
		return s, domain.ErrInvalidSettings
	}
	if s.QuestionTimeLimitSeconds < 1 || s.QuestionSetID == "" {
		return s, domain.ErrInvalidSettings
	}
	if c.MaxQuestionTimeLimit > 0 && s.QuestionTimeLimitSeconds > c.MaxQuestionTimeLimit {
		return s, domain.ErrInvalidSettings
	}
	return s, nil
}
