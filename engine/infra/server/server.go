package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opsai/opsflow/engine/service"
	"github.com/opsai/opsflow/pkg/config"
	"github.com/opsai/opsflow/pkg/logger"
)

// Server hosts the HTTP API and owns graceful shutdown of the engine behind
// it: stop accepting requests first, then let in-flight executions reach a
// step boundary.
type Server struct {
	cfg  *config.ServerConfig
	svc  *service.Service
	http *http.Server
}

func New(cfg *config.ServerConfig, svc *service.Service, log logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := NewRouter(svc, log)
	return &Server{
		cfg: cfg,
		svc: svc,
		http: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run serves until ctx is canceled, then drains connections and stops the
// engine.
func (s *Server) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)

	if err := s.svc.Start(ctx); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.svc.Stop()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}
	s.svc.Stop()
	log.Info("shutdown complete")
	return nil
}
