// Package timer issues cancellable one-shot deadlines.
package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Handle identifies a started timer. The zero Handle is never issued.
type Handle uint64

// Service starts one-shot timers on an injectable clock. Each handle's
// callback runs at most once, and never after Cancel returned for it.
type Service struct {
	clock  clockwork.Clock
	logger zerolog.Logger

	mu     sync.Mutex
	next   Handle
	active map[Handle]*entry
}

type entry struct {
	timer clockwork.Timer
	stop  chan struct{}
}

// NewService creates a timer service. Pass clockwork.NewRealClock() in
// production and a fake clock in tests.
func NewService(clock clockwork.Clock, logger zerolog.Logger) *Service {
	return &Service{
		clock:  clock,
		logger: logger,
		active: make(map[Handle]*entry),
	}
}

// Clock returns the clock the service schedules against.
func (s *Service) Clock() clockwork.Clock {
	return s.clock
}

// Start schedules onExpire to run after d. onExpire receives the handle so
// the owner can tell a live deadline from a stale one.
func (s *Service) Start(d time.Duration, onExpire func(Handle)) Handle {
	s.mu.Lock()
	s.next++
	h := s.next
	e := &entry{timer: s.clock.NewTimer(d), stop: make(chan struct{})}
	s.active[h] = e
	s.mu.Unlock()

	go func() {
		select {
		case <-e.timer.Chan():
			if s.claim(h) {
				onExpire(h)
			}
		case <-e.stop:
		}
	}()
	return h
}

// Cancel stops a timer. It is idempotent and safe after natural expiry; it
// reports whether a pending timer was actually cancelled.
func (s *Service) Cancel(h Handle) bool {
	if h == 0 {
		return false
	}
	s.mu.Lock()
	e, ok := s.active[h]
	if ok {
		delete(s.active, h)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	stopAndDrainTimer(e.timer)
	close(e.stop)
	return true
}

// Active reports whether h is still pending.
func (s *Service) Active(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[h]
	return ok
}

// Len returns the number of pending timers.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Stop cancels every pending timer.
func (s *Service) Stop() {
	s.mu.Lock()
	pending := s.active
	s.active = make(map[Handle]*entry)
	s.mu.Unlock()

	for h, e := range pending {
		stopAndDrainTimer(e.timer)
		close(e.stop)
		s.logger.Debug().Uint64("timer", uint64(h)).Msg("cancelled timer on shutdown")
	}
}

// claim removes h from the active set; only the caller that removes it may fire.
func (s *Service) claim(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[h]; !ok {
		return false
	}
	delete(s.active, h)
	return true
}

func stopAndDrainTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
