package app

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"quiz-lobby-service/internal/domain"
	"quiz-lobby-service/internal/timer"
)

const (
	codeAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength     = 6
	codeAttempts   = 32
	releaseTimeout = 5 * time.Second
)

// LobbyDirectory reserves lobby codes, possibly across instances.
type LobbyDirectory interface {
	// Reserve claims code. It reports false when the code is already taken.
	Reserve(ctx context.Context, code string) (bool, error)
	Release(ctx context.Context, code string) error
}

// Registry maps lobby codes to live coordinators.
type Registry struct {
	cfg       GameConfig
	timers    *timer.Service
	directory LobbyDirectory
	archive   archiveSink
	logger    zerolog.Logger
	newCode   func() string

	mu      sync.RWMutex
	lobbies map[string]*Coordinator
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithCodeGenerator overrides random code generation.
func WithCodeGenerator(gen func() string) RegistryOption {
	return func(r *Registry) {
		r.newCode = gen
	}
}

// WithArchive receives every finished session.
func WithArchive(a archiveSink) RegistryOption {
	return func(r *Registry) {
		r.archive = a
	}
}

// NewRegistry creates an empty registry. directory may be nil.
func NewRegistry(cfg GameConfig, timers *timer.Service, directory LobbyDirectory, logger zerolog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		cfg:       cfg,
		timers:    timers,
		directory: directory,
		logger:    logger,
		newCode:   randomCode,
		lobbies:   make(map[string]*Coordinator),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NormalizeCode makes user-entered codes comparable.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func randomCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	return string(b)
}

// Create allocates a unique code and starts a coordinator with hostID as its
// first member.
func (r *Registry) Create(ctx context.Context, hostID string, profile domain.Profile, settings domain.Settings) (*Coordinator, error) {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code := NormalizeCode(r.newCode())

		r.mu.Lock()
		if _, taken := r.lobbies[code]; taken {
			r.mu.Unlock()
			continue
		}
		// Hold the slot while the directory is consulted.
		r.lobbies[code] = nil
		r.mu.Unlock()

		ok, err := r.reserve(ctx, code)
		if err != nil || !ok {
			r.mu.Lock()
			delete(r.lobbies, code)
			r.mu.Unlock()
			if err != nil {
				return nil, err
			}
			continue
		}

		c := newCoordinator(code, hostID, profile, settings, coordinatorDeps{
			cfg:     r.cfg,
			timers:  r.timers,
			archive: r.archive,
			onClose: r.remove,
			logger:  r.logger,
		})
		r.mu.Lock()
		r.lobbies[code] = c
		r.mu.Unlock()
		r.logger.Info().Str("lobby", code).Str("host", hostID).Msg("lobby created")
		return c, nil
	}
	return nil, domain.ErrCodeExhausted
}

func (r *Registry) reserve(ctx context.Context, code string) (bool, error) {
	if r.directory == nil {
		return true, nil
	}
	return r.directory.Reserve(ctx, code)
}

// Get returns the live coordinator for code.
func (r *Registry) Get(code string) (*Coordinator, error) {
	r.mu.RLock()
	c := r.lobbies[NormalizeCode(code)]
	r.mu.RUnlock()
	if c == nil {
		return nil, domain.ErrLobbyNotFound
	}
	return c, nil
}

// Join routes a join to the lobby with the given code.
func (r *Registry) Join(ctx context.Context, code, playerID string, profile domain.Profile) (*Coordinator, domain.LobbySnapshot, error) {
	c, err := r.Get(code)
	if err != nil {
		return nil, domain.LobbySnapshot{}, err
	}
	snap, err := c.Join(ctx, playerID, profile)
	if err == domain.ErrLobbyClosed {
		err = domain.ErrLobbyNotFound
	}
	return c, snap, err
}

// Leave removes a player from the lobby with the given code.
func (r *Registry) Leave(ctx context.Context, code, playerID string) error {
	c, err := r.Get(code)
	if err != nil {
		return err
	}
	return c.Leave(ctx, playerID)
}

// Len returns the number of live lobbies.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.lobbies {
		if c != nil {
			n++
		}
	}
	return n
}

// Shutdown closes every lobby and waits until they are gone or ctx ends.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	live := make([]*Coordinator, 0, len(r.lobbies))
	for _, c := range r.lobbies {
		if c != nil {
			live = append(live, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range live {
		if err := c.Shutdown(ctx, "server_shutdown"); err != nil {
			return err
		}
	}
	for _, c := range live {
		select {
		case <-c.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// remove runs on the coordinator goroutine during teardown.
func (r *Registry) remove(code string) {
	r.mu.Lock()
	delete(r.lobbies, code)
	r.mu.Unlock()
	if r.directory == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := r.directory.Release(ctx, code); err != nil {
			r.logger.Warn().Err(err).Str("lobby", code).Msg("release lobby code")
		}
	}()
}
