package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
server:
  port: "9000"
redis:
  addr: localhost:6379
  ttl: 1h
game:
  base_points: 50
  grace_period: 45s
  time_bonus_weight: 0
  expired_player_policy: remove
`

func TestLoadYAMLWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("QUIZ_REDIS_ADDR", "redis:6380")
	t.Setenv("QUIZ_GAME_MULTIPLIER_CAP", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9000" {
		t.Fatalf("expected port from yaml, got %q", cfg.Server.Port)
	}
	if cfg.Redis.Addr != "redis:6380" {
		t.Fatalf("expected env override, got %q", cfg.Redis.Addr)
	}
	if cfg.Game.BasePoints != 50 || cfg.Game.MultiplierCap != 3 || cfg.Game.ExpiredPlayerPolicy != "remove" {
		t.Fatalf("unexpected game config %+v", cfg.Game)
	}
	if d := DurationOr(cfg.Game.GracePeriod, time.Second); d != 45*time.Second {
		t.Fatalf("expected 45s grace, got %v", d)
	}
	if cfg.Game.TimeBonusWeight == nil || *cfg.Game.TimeBonusWeight != 0 {
		t.Fatalf("expected explicit zero time bonus weight, got %v", cfg.Game.TimeBonusWeight)
	}
}

func TestLoadMissingFileUsesEnv(t *testing.T) {
	t.Setenv("QUIZ_POSTGRES_URL", "postgres://localhost/quiz")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Postgres.URL != "postgres://localhost/quiz" {
		t.Fatalf("expected env value, got %q", cfg.Postgres.URL)
	}
	if cfg.Game.TimeBonusWeight != nil {
		t.Fatalf("expected unset time bonus weight, got %v", *cfg.Game.TimeBonusWeight)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestDurationOr(t *testing.T) {
	if d := DurationOr("", time.Minute); d != time.Minute {
		t.Fatalf("expected fallback for empty, got %v", d)
	}
	if d := DurationOr("soon", time.Minute); d != time.Minute {
		t.Fatalf("expected fallback for invalid, got %v", d)
	}
	if d := DurationOr("90s", time.Minute); d != 90*time.Second {
		t.Fatalf("expected 90s, got %v", d)
	}
}
