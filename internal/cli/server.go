package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"quiz-lobby-service/internal/app"
	"quiz-lobby-service/internal/auth"
	"quiz-lobby-service/internal/config"
	"quiz-lobby-service/internal/domain"
	"quiz-lobby-service/internal/infra/events"
	"quiz-lobby-service/internal/infra/memory"
	"quiz-lobby-service/internal/infra/postgres"
	redisinfra "quiz-lobby-service/internal/infra/redis"
	"quiz-lobby-service/internal/scoring"
	"quiz-lobby-service/internal/timer"
	transport "quiz-lobby-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz lobby server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	questions, err := questionRepository(cfg, pool, redisClient)
	if err != nil {
		return err
	}

	var archives []app.ResultsArchive
	if cfg.Postgres.URL != "" {
		db := postgres.OpenBun(cfg.Postgres.URL)
		defer db.Close()
		archives = append(archives, postgres.NewResultsArchive(db))
	}
	if cfg.NATS.URL != "" {
		jsCfg := events.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATS.URL
		if cfg.NATS.Stream != "" {
			jsCfg.StreamName = cfg.NATS.Stream
		}
		if cfg.NATS.SubjectPrefix != "" {
			jsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		}
		publisher, err := events.NewResultsPublisher(ctx, jsCfg)
		if err != nil {
			return err
		}
		defer publisher.Close()
		archives = append(archives, publisher)
	}
	if len(archives) == 0 {
		archives = append(archives, memory.NewResultsArchive())
	}
	archiver := app.NewArchiver(log.Logger, archives...)

	var directory app.LobbyDirectory = memory.NewLobbyDirectory()
	if redisClient != nil {
		directory = redisinfra.NewLobbyDirectory(redisClient, config.DurationOr(cfg.Redis.TTL, 6*time.Hour))
	}

	verifier, err := identityVerifier(cfg)
	if err != nil {
		return err
	}

	timers := timer.NewService(clockwork.NewRealClock(), log.Logger)
	defer timers.Stop()

	registry := app.NewRegistry(gameConfig(cfg.Game), timers, directory, log.Logger, app.WithArchive(archiver))
	service := app.NewLobbyService(registry, questions)

	mux := http.NewServeMux()
	transport.Routes(mux,
		transport.NewWSHandler(service, verifier, log.Logger),
		transport.NewLobbyHandler(service, log.Logger),
	)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: config.DurationOr(cfg.Server.ReadTimeout, 15*time.Second),
		// Websocket writes carry their own deadlines.
		WriteTimeout: config.DurationOr(cfg.Server.WriteTimeout, 0),
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting quiz lobby service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := service.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("closing lobbies")
	}
	archiver.Flush()
	return server.Shutdown(shutdownCtx)
}

// questionRepository picks the question source (YAML file, Postgres or the
// built-in sample) and the cache in front of it.
func questionRepository(cfg config.Config, pool *pgxpool.Pool, client *redis.Client) (app.QuestionRepository, error) {
	var loader memory.QuestionLoader = memory.NewStaticLoader(sampleQuestionSets())
	switch {
	case cfg.Questions.File != "":
		fileLoader, err := memory.LoadFile(cfg.Questions.File)
		if err != nil {
			return nil, err
		}
		loader = fileLoader
	case pool != nil:
		loader = postgres.NewQuestionSetLoader(pool)
	}

	ttl := config.DurationOr(cfg.Questions.TTL, 10*time.Minute)
	if client != nil {
		return redisinfra.NewQuestionRepository(client, loader, ttl), nil
	}
	return memory.NewQuestionRepository(loader, ttl), nil
}

func identityVerifier(cfg config.Config) (transport.IdentityVerifier, error) {
	if cfg.Auth.Secret == "" {
		log.Warn().Msg("auth.secret not set, trusting player ids from clients")
		return auth.DevVerifier{}, nil
	}
	return auth.NewJWTVerifier(auth.JWTConfig{
		Secret:   []byte(cfg.Auth.Secret),
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
	})
}

// gameConfig overlays configured values on the defaults.
func gameConfig(g config.Game) app.GameConfig {
	out := app.DefaultGameConfig()
	out.Rules = scoring.Rules{
		BasePoints:      intOr(g.BasePoints, out.Rules.BasePoints),
		TimeBonusWeight: out.Rules.TimeBonusWeight,
		MultiplierCap:   intOr(g.MultiplierCap, out.Rules.MultiplierCap),
		StreakStep:      intOr(g.StreakStep, out.Rules.StreakStep),
	}
	if g.TimeBonusWeight != nil && *g.TimeBonusWeight >= 0 {
		out.Rules.TimeBonusWeight = *g.TimeBonusWeight
	}
	out.Countdown = config.DurationOr(g.Countdown, out.Countdown)
	out.ResultsPause = config.DurationOr(g.ResultsPause, out.ResultsPause)
	out.GracePeriod = config.DurationOr(g.GracePeriod, out.GracePeriod)
	out.AbandonAfter = config.DurationOr(g.AbandonAfter, out.AbandonAfter)
	if g.ExpiredPlayerPolicy == string(domain.RemoveExpired) {
		out.ExpiredPolicy = domain.RemoveExpired
	}
	out.SubscriberBuffer = intOr(g.SubscriberBuffer, out.SubscriberBuffer)
	out.DefaultMaxPlayers = intOr(g.DefaultMaxPlayers, out.DefaultMaxPlayers)
	out.DefaultQuestionTimeLimit = intOr(g.DefaultQuestionTimeLimit, out.DefaultQuestionTimeLimit)
	return out
}

func intOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// sampleQuestionSets is served when neither a file nor Postgres is configured.
func sampleQuestionSets() map[string]domain.QuestionSet {
	return map[string]domain.QuestionSet{
		"sample": {
			ID:    "sample",
			Title: "Warm-up",
			Questions: []domain.Question{
				{ID: "q1", Prompt: "What is 2 + 2?", Choices: []string{"3", "4", "5", "22"}, CorrectChoiceIndex: 1, TimeLimitSeconds: 15},
				{ID: "q2", Prompt: "Which planet is known as the red planet?", Choices: []string{"Venus", "Jupiter", "Mars", "Mercury"}, CorrectChoiceIndex: 2},
				{ID: "q3", Prompt: "How many sides does a hexagon have?", Choices: []string{"5", "6", "8"}, CorrectChoiceIndex: 1},
			},
		},
	}
}
