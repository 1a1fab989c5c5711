package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"quiz-lobby-service/internal/domain"
)

type fakeJetStream struct {
	msgs []*nats.Msg
	opts int
	err  error
}

func (f *fakeJetStream) PublishMsg(_ context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.msgs = append(f.msgs, msg)
	f.opts = len(opts)
	return &jetstream.PubAck{Stream: "QUIZ_RESULTS", Sequence: uint64(len(f.msgs))}, nil
}

func TestRecordPublishesSummary(t *testing.T) {
	js := &fakeJetStream{}
	p := &ResultsPublisher{js: js, config: DefaultJetStreamConfig()}
	summary := domain.SessionSummary{
		SessionID:  "sess-1",
		LobbyCode:  "ABC123",
		FinishedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Standings:  []domain.Standing{{Rank: 1, PlayerID: "a", Score: 180}},
	}

	if err := p.Record(context.Background(), summary); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(js.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(js.msgs))
	}
	msg := js.msgs[0]
	if msg.Subject != "quiz.results.session.finished.ABC123" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	if msg.Header.Get("Session-ID") != "sess-1" {
		t.Fatalf("expected session header, got %v", msg.Header)
	}
	if js.opts != 2 {
		t.Fatalf("expected msg id and stream expectations, got %d options", js.opts)
	}

	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.EventID != "sess-1" || env.Payload.Standings[0].Score != 180 {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestRecordWrapsPublishErrors(t *testing.T) {
	cause := errors.New("no responders")
	p := &ResultsPublisher{js: &fakeJetStream{err: cause}, config: DefaultJetStreamConfig()}
	if err := p.Record(context.Background(), domain.SessionSummary{SessionID: "s"}); !errors.Is(err, cause) {
		t.Fatalf("expected wrapped publish error, got %v", err)
	}
}
