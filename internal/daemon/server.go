package daemon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rkudryashov/tgmux/internal/api"
	"go.uber.org/zap"
)

// Server manages the HTTP server lifecycle for the daemon.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer creates the HTTP admin server on the configured listen address.
func NewServer(p Params, handlers *api.Handlers, logger *zap.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              p.Config.ListenAddr,
			Handler:           api.NewRouter(handlers),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start begins serving requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("http server stopping")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}
}
