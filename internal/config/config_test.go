package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.APIAddr != ":8081" {
		t.Fatalf("unexpected addrs %q %q", cfg.ListenAddr, cfg.APIAddr)
	}
	if cfg.JoinTimeout != 10*time.Second || cfg.ForfeitTimeout != 30*time.Second {
		t.Fatalf("unexpected timeouts %v %v", cfg.JoinTimeout, cfg.ForfeitTimeout)
	}
	if cfg.BotDepth != 5 || cfg.BotDelay != 500*time.Millisecond {
		t.Fatalf("unexpected bot settings %d %v", cfg.BotDepth, cfg.BotDelay)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JOIN_TIMEOUT", "3s")
	t.Setenv("FORFEIT_TIMEOUT", "45")
	t.Setenv("BOT_DELAY", "0s")
	t.Setenv("BOT_DEPTH", "7")
	t.Setenv("RANDOM_SEED", "42")
	t.Setenv("IDLE_TIMEOUT", "soon")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JoinTimeout != 3*time.Second {
		t.Fatalf("JoinTimeout=%v", cfg.JoinTimeout)
	}
	if cfg.ForfeitTimeout != 45*time.Second {
		t.Fatalf("ForfeitTimeout=%v", cfg.ForfeitTimeout)
	}
	if cfg.BotDelay != 0 || cfg.BotDepth != 7 || cfg.RandomSeed != 42 {
		t.Fatalf("bot settings %v %d %d", cfg.BotDelay, cfg.BotDepth, cfg.RandomSeed)
	}
	if cfg.IdleTimeout != 15*time.Minute {
		t.Fatalf("malformed value should keep default, got %v", cfg.IdleTimeout)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("origins %v", cfg.AllowedOrigins)
	}
}

func TestLoadRequiresRedis(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without REDIS_URL")
	}
}
