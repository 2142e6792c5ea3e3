// Package server exposes the database over a line-delimited TCP protocol:
// the first line authenticates with a connection string, every following
// line is a command answered with a single JSON envelope.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/tinycache/tinycache/auth"
	"github.com/tinycache/tinycache/config"
	"github.com/tinycache/tinycache/engine"
	"github.com/tinycache/tinycache/logger"
)

// Server accepts TCP clients, gates them through authentication, and feeds
// request lines to the dispatcher.
type Server struct {
	cfg    *config.Config
	engine *engine.Engine
	auth   *auth.Manager
	log    *logger.Logger

	active atomic.Int64
}

// New wires a server over its collaborators.
func New(cfg *config.Config, eng *engine.Engine, authMgr *auth.Manager, log *logger.Logger) *Server {
	return &Server{
		cfg:    cfg,
		engine: eng,
		auth:   authMgr,
		log:    log,
	}
}

// ActiveConnections reports the number of clients currently connected.
func (s *Server) ActiveConnections() int64 { return s.active.Load() }

// ListenAndServe binds the configured address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts clients on ln until ctx is done, then closes the listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info(logger.LevelSystem, "", "database listening on "+ln.Addr().String())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return nil
				}
				return err
			}
			s.log.Info(logger.LevelSystem, "", "new connection from "+conn.RemoteAddr().String())
			go s.handleConn(conn)
		}
	})
	return g.Wait()
}

// handleConn runs one client: admission, authentication, then the request
// loop. The connection closes on session expiry, read error, or client
// disconnect.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	if s.active.Load() >= int64(s.cfg.MaxConnections) {
		fmt.Fprint(conn, "ERROR: Max connections reached\n")
		s.log.Error(logger.LevelSystem, "", "max connections reached, rejecting new client")
		return
	}
	s.active.Add(1)
	defer s.active.Add(-1)

	if err := s.cfg.Validate(); err != nil {
		fmt.Fprintf(conn, "ERROR: %s\n", err)
		s.log.Error(logger.LevelSystem, "", "configuration validation failed: "+err.Error())
		return
	}

	reader := bufio.NewReader(conn)
	connStr, err := reader.ReadString('\n')
	if err != nil {
		s.log.Error(logger.LevelSystem, "", "failed to read from socket: "+err.Error())
		return
	}
	connStr = strings.TrimSpace(connStr)

	session, err := s.auth.Authenticate(connStr)
	if err != nil {
		fmt.Fprintf(conn, "AUTH ERROR %s\n", err)
		s.log.Warn(logger.LevelApplication, "", "authentication failed for "+conn.RemoteAddr().String()+": "+err.Error())
		return
	}
	if _, err := fmt.Fprintf(conn, "AUTH OK %s\n", session.ID); err != nil {
		s.log.Error(logger.LevelSystem, "", "failed to write auth response: "+err.Error())
		return
	}

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		request := strings.TrimSpace(line)
		if request == "" {
			continue
		}

		if _, ok := s.auth.ValidateSession(session.ID); !ok {
			fmt.Fprint(conn, "Session expired. Please reconnect.\n")
			return
		}

		response := s.Process(request)
		if _, err := conn.Write([]byte(response)); err != nil {
			s.log.Error(logger.LevelSystem, "", "failed to write response: "+err.Error())
			return
		}
	}
}
