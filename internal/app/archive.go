package app

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"quiz-lobby-service/internal/domain"
)

// ResultsArchive stores or forwards finished sessions.
type ResultsArchive interface {
	Record(ctx context.Context, summary domain.SessionSummary) error
}

// Archiver hands finished sessions to every archive in the background so a
// slow store never blocks a lobby. Failed writes are retried with
// exponential backoff.
type Archiver struct {
	archives   []ResultsArchive
	timeout    time.Duration
	maxRetries uint64
	logger     zerolog.Logger

	wg sync.WaitGroup
}

// NewArchiver creates an archiver over the given archives.
func NewArchiver(logger zerolog.Logger, archives ...ResultsArchive) *Archiver {
	return &Archiver{
		archives:   archives,
		timeout:    10 * time.Second,
		maxRetries: 5,
		logger:     logger,
	}
}

// Submit records summary asynchronously.
func (a *Archiver) Submit(summary domain.SessionSummary) {
	for _, archive := range a.archives {
		a.wg.Add(1)
		go func(archive ResultsArchive) {
			defer a.wg.Done()
			a.record(archive, summary)
		}(archive)
	}
}

func (a *Archiver) record(archive ResultsArchive, summary domain.SessionSummary) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return archive.Record(ctx, summary)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, a.maxRetries), ctx))
	if err != nil {
		a.logger.Warn().
			Err(err).
			Str("session_id", summary.SessionID).
			Str("lobby", summary.LobbyCode).
			Int("attempts", attempts).
			Msg("archive session results")
		return
	}
	a.logger.Debug().Str("session_id", summary.SessionID).Int("attempts", attempts).Msg("session results archived")
}

// Flush waits for pending writes.
func (a *Archiver) Flush() {
	a.wg.Wait()
}
