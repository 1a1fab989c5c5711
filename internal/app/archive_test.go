package app_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"quiz-lobby-service/internal/app"
	"quiz-lobby-service/internal/domain"
	"quiz-lobby-service/internal/infra/memory"
)

type flakyArchive struct {
	failures int32
	calls    atomic.Int32
	inner    *memory.ResultsArchive
}

func (a *flakyArchive) Record(ctx context.Context, summary domain.SessionSummary) error {
	if a.calls.Add(1) <= a.failures {
		return errors.New("temporarily unavailable")
	}
	return a.inner.Record(ctx, summary)
}

func TestArchiverRetriesUntilRecorded(t *testing.T) {
	flaky := &flakyArchive{failures: 2, inner: memory.NewResultsArchive()}
	steady := memory.NewResultsArchive()
	archiver := app.NewArchiver(zerolog.Nop(), flaky, steady)

	archiver.Submit(domain.SessionSummary{SessionID: "s1", LobbyCode: "ABC123"})
	archiver.Flush()

	if flaky.calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", flaky.calls.Load())
	}
	if got := flaky.inner.Summaries(); len(got) != 1 || got[0].SessionID != "s1" {
		t.Fatalf("expected flaky archive to record after retries, got %+v", got)
	}
	if got := steady.Summaries(); len(got) != 1 {
		t.Fatalf("expected steady archive to record once, got %+v", got)
	}
}
