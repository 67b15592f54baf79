package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	ListenAddr string
	APIAddr    string

	RedisURL    string
	DatabaseURL string

	MessagesLocale string
	MessagesDir    string

	// AllowedOrigins feeds both websocket origin checks and API CORS.
	AllowedOrigins []string

	JoinTimeout    time.Duration
	ForfeitTimeout time.Duration
	TeardownGrace  time.Duration
	BotDelay       time.Duration
	BotDepth       int
	IdleTimeout    time.Duration
	SweepInterval  time.Duration
	SnapshotTTL    time.Duration

	// 0 seeds from the clock
	RandomSeed int64
}

// Load reads .env (if present) and then the process environment.
// Malformed numeric or duration values keep their defaults.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{
		ListenAddr:     ":8080",
		APIAddr:        ":8081",
		MessagesLocale: "en",
		JoinTimeout:    10 * time.Second,
		ForfeitTimeout: 30 * time.Second,
		TeardownGrace:  2 * time.Second,
		BotDelay:       500 * time.Millisecond,
		BotDepth:       5,
		IdleTimeout:    15 * time.Minute,
		SweepInterval:  time.Minute,
		SnapshotTTL:    24 * time.Hour,
	}

	if v := env("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := env("API_ADDR"); v != "" {
		cfg.APIAddr = v
	}
	cfg.RedisURL = env("REDIS_URL")
	cfg.DatabaseURL = env("DATABASE_URL")
	if v := env("MESSAGES_LOCALE"); v != "" {
		cfg.MessagesLocale = v
	}
	cfg.MessagesDir = env("MESSAGES_DIR")
	if v := env("ALLOWED_ORIGINS"); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, s)
			}
		}
	}

	durationVar(&cfg.JoinTimeout, "JOIN_TIMEOUT")
	durationVar(&cfg.ForfeitTimeout, "FORFEIT_TIMEOUT")
	durationVar(&cfg.TeardownGrace, "TEARDOWN_GRACE")
	durationVar(&cfg.IdleTimeout, "IDLE_TIMEOUT")
	durationVar(&cfg.SweepInterval, "SWEEP_INTERVAL")
	durationVar(&cfg.SnapshotTTL, "SNAPSHOT_TTL")

	// zero is valid here: the bot replies inline
	if v := env("BOT_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.BotDelay = d
		}
	}
	if v := env("BOT_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BotDepth = n
		}
	}
	if v := env("RANDOM_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.RandomSeed = n
		}
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// durationVar accepts Go durations ("30s") or bare seconds ("30").
func durationVar(dst *time.Duration, key string) {
	v := env(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		*dst = time.Duration(n) * time.Second
	}
}
