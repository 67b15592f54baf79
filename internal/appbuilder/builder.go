package appbuilder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/connect4-server/internal/config"
	"github.com/park285/connect4-server/internal/gateway"
	"github.com/park285/connect4-server/internal/httpapi"
	"github.com/park285/connect4-server/internal/lifecycle"
	"github.com/park285/connect4-server/internal/msgcat"
	"github.com/park285/connect4-server/internal/repository"
	"github.com/park285/connect4-server/internal/store"
)

type Deps struct {
	Redis       *redis.Client
	Repo        repository.Repository
	Leaderboard *store.Leaderboard
	Snapshots   *store.Snapshots
	Catalog     *msgcat.Catalog
	Hub         *gateway.Hub
	Manager     *lifecycle.Manager
	Gateway     *gateway.Server
	API         *httpapi.Server

	log *zap.Logger
}

// New connects storage and assembles the match server. Redis is required;
// without DATABASE_URL completed matches are kept in memory.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cat, err := msgcat.New(cfg.MessagesLocale, cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("init messages: %w", err)
	}

	rdb, err := store.Open(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	var repo repository.Repository
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := repository.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			_ = rdb.Close()
			return nil, err
		}
		if err := repository.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			_ = rdb.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		repo = repository.NewPostgres(db)
	} else {
		logger.Warn("appbuilder_memory_repository", zap.String("reason", "DATABASE_URL not set"))
		repo = repository.NewMemory()
	}

	lb := store.NewLeaderboard(rdb)
	snaps := store.NewSnapshots(rdb, cfg.SnapshotTTL)
	hub := gateway.NewHub(cat, logger)

	mgr := lifecycle.NewManager(lifecycle.Config{
		ForfeitTimeout: cfg.ForfeitTimeout,
		TeardownGrace:  cfg.TeardownGrace,
		JoinTimeout:    cfg.JoinTimeout,
		BotDelay:       cfg.BotDelay,
		BotDepth:       cfg.BotDepth,
		IdleTimeout:    cfg.IdleTimeout,
		Seed:           cfg.RandomSeed,
		Notifier:       hub,
		Matches:        repo,
		Wins:           lb,
		Snapshots:      snaps,
		Logger:         logger,
	})
	if err := mgr.StartJanitor(cfg.SweepInterval); err != nil {
		mgr.Close()
		_ = repo.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("start janitor: %w", err)
	}

	gw := gateway.NewServer(hub, mgr, gateway.Options{OriginPatterns: originHosts(cfg.AllowedOrigins)})
	api := httpapi.New(httpapi.Deps{
		Stats:        mgr,
		Leaderboard:  lb,
		Matches:      repo,
		Snapshots:    snaps,
		AllowOrigins: strings.Join(cfg.AllowedOrigins, ","),
		Logger:       logger,
	})

	return &Deps{
		Redis:       rdb,
		Repo:        repo,
		Leaderboard: lb,
		Snapshots:   snaps,
		Catalog:     cat,
		Hub:         hub,
		Manager:     mgr,
		Gateway:     gw,
		API:         api,
		log:         logger,
	}, nil
}

// Handler routes /ws to the gateway.
func (d *Deps) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", d.Gateway)
	return mux
}

// Close stops timers, drains queued writes and releases storage, in that order.
func (d *Deps) Close(ctx context.Context) error {
	var errs []error
	if err := d.API.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("api shutdown: %w", err))
	}
	d.Hub.Close()
	d.Manager.Close()
	if err := d.Repo.Close(); err != nil {
		errs = append(errs, fmt.Errorf("repository close: %w", err))
	}
	if err := d.Redis.Close(); err != nil {
		errs = append(errs, fmt.Errorf("redis close: %w", err))
	}
	if len(errs) > 0 {
		d.log.Warn("appbuilder_close", zap.Error(errors.Join(errs...)))
	}
	return errors.Join(errs...)
}

// originHosts turns "https://host:port" entries into the host patterns the
// websocket handshake expects.
func originHosts(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}
