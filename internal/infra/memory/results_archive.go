package memory

import (
	"context"
	"sync"

	"quiz-lobby-service/internal/domain"
)

// ResultsArchive keeps finished sessions in memory. It backs local runs and
// tests; production deployments archive to Postgres.
type ResultsArchive struct {
	mu        sync.RWMutex
	summaries []domain.SessionSummary
}

func NewResultsArchive() *ResultsArchive {
	return &ResultsArchive{}
}

func (a *ResultsArchive) Record(_ context.Context, summary domain.SessionSummary) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summaries = append(a.summaries, summary)
	return nil
}

// Summaries returns recorded sessions in arrival order.
func (a *ResultsArchive) Summaries() []domain.SessionSummary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]domain.SessionSummary, len(a.summaries))
	copy(out, a.summaries)
	return out
}
