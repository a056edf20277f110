package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sketchwars/sketchwars-backend/internal/auth"
	"github.com/sketchwars/sketchwars-backend/internal/bus"
	"github.com/sketchwars/sketchwars-backend/internal/config"
	"github.com/sketchwars/sketchwars-backend/internal/game"
	"github.com/sketchwars/sketchwars-backend/internal/server"
	"github.com/sketchwars/sketchwars-backend/internal/store"
	"github.com/sketchwars/sketchwars-backend/internal/words"
	"github.com/sketchwars/sketchwars-backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := store.Connect(ctx, cfg.RedisAddr(), cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("redis connection failed", "addr", cfg.RedisAddr(), "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	catalog, err := words.Load()
	if err != nil {
		logger.Error("word catalog load failed", "error", err)
		os.Exit(1)
	}

	st := store.New(rdb, cfg.RedisDB, logger)
	b := bus.New(rdb, logger)
	engine := game.New(st, b, catalog, game.DefaultConfig(), logger)
	verifier := auth.NewVerifier(cfg.SecretKeyBase)
	wsHandler := ws.NewHandler(engine, b, verifier, logger)
	srv := server.New(cfg, rdb, st, engine, wsHandler, logger)

	// Deadline sentinels and the idle-room reaper run for the lifetime of
	// the process.
	go func() {
		if err := engine.WatchDeadlines(ctx); err != nil {
			logger.Error("deadline watcher stopped", "error", err)
		}
	}()
	go engine.StartReaper(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	engine.Close()
	logger.Info("server stopped")
}
