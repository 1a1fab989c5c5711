package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. QUIZ_REDIS_ADDR.
const EnvPrefix = "QUIZ_"

type Config struct {
	Server struct {
		Port         string `yaml:"port" env:"PORT"`
		ReadTimeout  string `yaml:"read_timeout" env:"READ_TIMEOUT"`
		WriteTimeout string `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	} `yaml:"server" envPrefix:"SERVER_"`
	Log struct {
		Level  string `yaml:"level" env:"LEVEL"`
		Format string `yaml:"format" env:"FORMAT"`
	} `yaml:"log" envPrefix:"LOG_"`
	Redis struct {
		Addr     string `yaml:"addr" env:"ADDR"`
		Password string `yaml:"password" env:"PASSWORD"`
		DB       int    `yaml:"db" env:"DB"`
		TTL      string `yaml:"ttl" env:"TTL"`
	} `yaml:"redis" envPrefix:"REDIS_"`
	Postgres struct {
		URL string `yaml:"url" env:"URL"`
	} `yaml:"postgres" envPrefix:"POSTGRES_"`
	NATS struct {
		URL           string `yaml:"url" env:"URL"`
		Stream        string `yaml:"stream" env:"STREAM"`
		SubjectPrefix string `yaml:"subject_prefix" env:"SUBJECT_PREFIX"`
	} `yaml:"nats" envPrefix:"NATS_"`
	Questions struct {
		TTL  string `yaml:"ttl" env:"TTL"`
		File string `yaml:"file" env:"FILE"`
	} `yaml:"questions" envPrefix:"QUESTIONS_"`
	Auth struct {
		Secret   string `yaml:"secret" env:"SECRET"`
		Issuer   string `yaml:"issuer" env:"ISSUER"`
		Audience string `yaml:"audience" env:"AUDIENCE"`
	} `yaml:"auth" envPrefix:"AUTH_"`
	Game Game `yaml:"game" envPrefix:"GAME_"`
}

// Game holds lobby tuning. Zero values fall back to built-in defaults, except
// TimeBonusWeight where an explicit 0 turns the time bonus off.
type Game struct {
	BasePoints               int      `yaml:"base_points" env:"BASE_POINTS"`
	TimeBonusWeight          *float64 `yaml:"time_bonus_weight" env:"TIME_BONUS_WEIGHT"`
	MultiplierCap            int      `yaml:"multiplier_cap" env:"MULTIPLIER_CAP"`
	StreakStep               int      `yaml:"streak_step" env:"STREAK_STEP"`
	Countdown                string   `yaml:"countdown" env:"COUNTDOWN"`
	ResultsPause             string   `yaml:"results_pause" env:"RESULTS_PAUSE"`
	GracePeriod              string   `yaml:"grace_period" env:"GRACE_PERIOD"`
	AbandonAfter             string   `yaml:"abandon_after" env:"ABANDON_AFTER"`
	ExpiredPlayerPolicy      string   `yaml:"expired_player_policy" env:"EXPIRED_PLAYER_POLICY"`
	SubscriberBuffer         int      `yaml:"subscriber_buffer" env:"SUBSCRIBER_BUFFER"`
	DefaultMaxPlayers        int      `yaml:"default_max_players" env:"DEFAULT_MAX_PLAYERS"`
	DefaultQuestionTimeLimit int      `yaml:"default_question_time_limit" env:"DEFAULT_QUESTION_TIME_LIMIT"`
}

// Load reads YAML config from path and applies QUIZ_* environment
// overrides. A missing file is not an error; the environment alone is used.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// DurationOr parses a duration string or returns the fallback if empty or invalid.
func DurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
