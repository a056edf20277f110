package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sketchwars/sketchwars-backend/internal/config"
	"github.com/sketchwars/sketchwars-backend/internal/game"
	"github.com/sketchwars/sketchwars-backend/internal/store"
	"github.com/sketchwars/sketchwars-backend/internal/ws"
)

// Server holds the HTTP surface: REST endpoints, the socket entry point and
// the health check.
type Server struct {
	cfg    *config.Config
	rdb    *redis.Client
	store  *store.Store
	engine *game.Engine
	ws     *ws.Handler
	logger *slog.Logger

	http *http.Server
}

func New(cfg *config.Config, rdb *redis.Client, st *store.Store, engine *game.Engine, wsHandler *ws.Handler, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		rdb:    rdb,
		store:  st,
		engine: engine,
		ws:     wsHandler,
		logger: logger,
	}
	s.http = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.RegisterRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute,
	}
	return s
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "port", s.cfg.Port, "env", s.cfg.AppEnv)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
