// Package server accepts whiteboard clients over TCP and WebSocket and runs
// each connection against the shared dispatcher.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Server accepts TCP connections and hands them to a Handler.
type Server struct {
	handler      *Handler
	logger       *slog.Logger
	maxLineBytes int

	mu       sync.Mutex
	listener net.Listener
}

// New creates a server that runs accepted connections with handler.
func New(handler *Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		handler:      handler,
		logger:       logger,
		maxLineBytes: handler.maxLineBytes,
	}
}

// Listen binds the TCP listener. Use port 0 to pick a free port.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is canceled or the listener fails.
// It returns once every accepted connection has finished.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("server is not listening")
	}

	s.logger.Info("accepting connections", "addr", ln.Addr().String())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		ln.Close()
		s.handler.Shutdown()
		return nil
	})

	var acceptErr error
	for {
		conn, err := ln.Accept()
		if err != nil {
			if gctx.Err() == nil {
				acceptErr = fmt.Errorf("accept: %w", err)
			}
			break
		}

		lineConn := NewTCPConn(conn, s.maxLineBytes)
		g.Go(func() error {
			// A failed connection never stops the server.
			s.handler.Serve(gctx, lineConn)
			return nil
		})
	}

	// Stops the watcher and open connections when the listener failed on
	// its own.
	cancel()
	g.Wait()
	s.logger.Info("server stopped")
	return acceptErr
}

// ListenAndServe binds addr and serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if err := s.Listen(addr); err != nil {
		return err
	}
	return s.Serve(ctx)
}
