// Package server exposes the forged HTTP API over the core services.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/Oudwins/taskforge/forged/core"
	"github.com/Oudwins/taskforge/internals/logbuf"
	"github.com/Oudwins/taskforge/internals/timeouts"
)

type Server struct {
	Core    *core.Core
	Logger  *slog.Logger
	Logbuf  *logbuf.Logger
	Metrics http.Handler

	// onShutdown is called by POST /shutdown. The owner cancels the daemon
	// context from it.
	onShutdown func()
	httpServer *http.Server
}

// New builds the server. metrics may be nil, in which case /metrics is not
// mounted.
func New(c *core.Core, metrics http.Handler, onShutdown func()) *Server {
	buffer := logbuf.New(
		slog.String("version", c.Config.Version),
	)
	return &Server{
		Core:       c,
		Logger:     c.Logger,
		Logbuf:     buffer,
		Metrics:    metrics,
		onShutdown: onShutdown,
	}
}

// Serve accepts connections on listener until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: timeouts.ReadHeader,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.ServerShutdown)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.Logger.Error("shutdown failed", slog.String("error", err.Error()))
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	s.Logger.Info("listening", slog.String("addr", listener.Addr().String()))
	return s.Serve(ctx, listener)
}

func (s *Server) Shutdown() {
	if s.onShutdown == nil {
		s.Logger.Warn("shutdown requested but no handler is set")
		return
	}
	go s.onShutdown()
}
