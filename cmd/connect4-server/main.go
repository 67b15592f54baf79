package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/connect4-server/internal/appbuilder"
	appcfg "github.com/park285/connect4-server/internal/config"
	"github.com/park285/connect4-server/internal/obslog"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	deps, err := appbuilder.New(initCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("init_failed", zap.Error(err))
	}

	wsServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           deps.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("ws_listen", zap.String("addr", cfg.ListenAddr))
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ws_server_error", zap.Error(err))
			stop()
		}
	}()
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.APIAddr))
		if err := deps.API.Listen(cfg.APIAddr); err != nil {
			logger.Error("api_server_error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ws_shutdown", zap.Error(err))
	}
	if err := deps.Close(shutdownCtx); err != nil {
		logger.Warn("close", zap.Error(err))
	}
}
