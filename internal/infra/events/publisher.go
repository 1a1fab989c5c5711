// Package events publishes finished sessions to NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"quiz-lobby-service/internal/domain"
)

const eventSessionFinished = "session.finished"

type JetStreamConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration
	Replicas        int
	DuplicateWindow time.Duration
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "QUIZ_RESULTS",
		SubjectPrefix:   "quiz.results",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          7 * 24 * time.Hour,
		Replicas:        1,
		DuplicateWindow: 2 * time.Hour,
	}
}

// msgPublisher is the slice of jetstream.JetStream the publisher needs.
type msgPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// ResultsPublisher announces finished sessions on
// {prefix}.session.finished.{lobbyCode}. The session id is the JetStream
// message id, so archive retries are deduplicated by the stream.
type ResultsPublisher struct {
	nc     *nats.Conn
	js     msgPublisher
	config JetStreamConfig
}

func NewResultsPublisher(ctx context.Context, cfg JetStreamConfig) (*ResultsPublisher, error) {
	opts := []nats.Option{
		nats.Name("quiz-lobby-service"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	if err := ensureStream(ctx, js, cfg); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return &ResultsPublisher{nc: nc, js: js, config: cfg}, nil
}

func ensureStream(ctx context.Context, js jetstream.JetStream, cfg JetStreamConfig) error {
	sc := jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Finished quiz sessions",
		Subjects:    []string{fmt.Sprintf("%s.>", cfg.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    cfg.Replicas,
		Duplicates:  cfg.DuplicateWindow,
	}
	_, err := js.CreateOrUpdateStream(ctx, sc)
	if err != nil {
		return fmt.Errorf("create or update stream: %w", err)
	}
	log.Info().Str("stream", cfg.StreamName).Msg("JetStream stream ready")
	return nil
}

type envelope struct {
	EventID   string                `json:"eventId"`
	EventType string                `json:"eventType"`
	LobbyCode string                `json:"lobbyCode"`
	Timestamp time.Time             `json:"timestamp"`
	Payload   domain.SessionSummary `json:"payload"`
}

// Record publishes summary and waits for the stream ack.
func (p *ResultsPublisher) Record(ctx context.Context, summary domain.SessionSummary) error {
	subject := fmt.Sprintf("%s.%s.%s", p.config.SubjectPrefix, eventSessionFinished, summary.LobbyCode)

	data, err := json.Marshal(envelope{
		EventID:   summary.SessionID,
		EventType: eventSessionFinished,
		LobbyCode: summary.LobbyCode,
		Timestamp: summary.FinishedAt.UTC(),
		Payload:   summary,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ack, err := p.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{eventSessionFinished},
			"Lobby-Code": []string{summary.LobbyCode},
			"Session-ID": []string{summary.SessionID},
		},
	},
		jetstream.WithMsgID(summary.SessionID),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Info().
		Str("subject", subject).
		Str("session_id", summary.SessionID).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("published session results")
	return nil
}

func (p *ResultsPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}
