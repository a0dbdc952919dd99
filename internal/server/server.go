package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"

	"chatrelay/internal/registry"

	"go.uber.org/zap"
)

// Server defines fields used in HTTP processing
type Server struct {
	logger     *zap.SugaredLogger
	httpServer *http.Server
	onShutdown []func()
}

// NewServer wires handlers for the message API and the push channel endpoint
// into an http.Server configured via provided options
func NewServer(logger *zap.Logger, auth Authenticator, svc Deliverer, users UserDirectory, reg *registry.Registry, opts ...Option) (*Server, error) {
	h := &handler{
		logger:   logger.Sugar(),
		auth:     auth,
		delivery: svc,
		users:    users,
	}

	mux := http.NewServeMux()
	mux.Handle("/session/login", log(enforcePostJson(http.HandlerFunc(h.login)), logger))
	mux.Handle("/session/logout", log(http.HandlerFunc(h.logout), logger))
	mux.Handle("/messages/send", log(enforcePostJson(http.HandlerFunc(h.sendMessage)), logger))
	mux.Handle("/messages/get", log(enforcePostJson(http.HandlerFunc(h.conversation)), logger))
	mux.Handle("/peers/get", log(enforcePostJson(http.HandlerFunc(h.peers)), logger))
	mux.Handle("/ws", log(h.serveWS(reg), logger))

	httpServer := &http.Server{
		Addr:    "0.0.0.0:9000",
		Handler: mux,
	}

	for _, opt := range opts {
		opt.apply(httpServer)
	}

	return &Server{
		logger:     logger.Sugar(),
		httpServer: httpServer,
	}, nil
}

// RegisterOnShutdown appends a function called after the HTTP server has stopped.
// Functions run in registration order on the Start goroutine.
func (s *Server) RegisterOnShutdown(f func()) {
	s.onShutdown = append(s.onShutdown, f)
}

// Start calls ListenAndServe on http.Server instance inside Server struct
// and implements graceful shutdown via goroutine waiting for signals
func (s *Server) Start() error {
	idleConnsClosed := make(chan struct{})

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		s.logger.Info("Shutting down HTTP server")

		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			s.logger.Errorf("srv.Shutdown: %v", err)
		}
		s.logger.Info("HTTP server is stopped")

		close(idleConnsClosed)
	}()

	s.logger.Infof("Starting HTTP server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}

	<-idleConnsClosed

	for _, f := range s.onShutdown {
		f()
	}

	return nil
}
