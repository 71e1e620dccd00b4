package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/wirectl/internal/observability"
	"github.com/danmuck/wirectl/internal/wire"
)

// Server accepts line-protocol clients and tracks them in a registry.
type Server struct {
	cfg      Config
	handler  Handler
	registry *Registry

	mu           sync.Mutex
	ln           net.Listener
	acceptCancel context.CancelFunc
}

func NewServer(cfg Config, h Handler) (*Server, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if h == nil {
		h = NopHandler{}
	}
	return &Server{
		cfg:      cfg,
		handler:  h,
		registry: NewRegistry(),
	}, nil
}

// Start binds the configured address. A bind failure leaves the server in
// the not-started state.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return ErrAlreadyStarted
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("transport: bind %s: %w", s.cfg.ListenAddr(), err)
	}
	s.ln = ln
	log.Info().Str("addr", ln.Addr().String()).Msg("transport listening")
	return nil
}

// Addr is the bound listener address, nil before Start. With BindPort 0
// this is where the ephemeral port shows up.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Count is the number of currently registered connections.
func (s *Server) Count() int {
	return s.registry.Len()
}

// Connections is an id-ordered snapshot of the registered conns.
func (s *Server) Connections() []*Conn {
	return s.registry.Snapshot()
}

// AcceptOne blocks for one client, wraps it with a fresh id, registers it,
// and returns it. It does not fire the connect notification; that belongs
// to the Listen loop so manual accept patterns stay possible.
func (s *Server) AcceptOne() (*Conn, error) {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return nil, ErrNotStarted
	}
	sock, err := ln.Accept()
	if err != nil {
		return nil, err
	}
	return s.adopt(sock)
}

func (s *Server) adopt(sock net.Conn) (*Conn, error) {
	dec, err := wire.NewDecoder(s.cfg.Conn.MaxMessageSize, s.cfg.Conn.Delimiter)
	if err != nil {
		_ = sock.Close()
		return nil, err
	}
	c, err := newConn(s.registry.NextID(), sock, dec, s.handler, s.cfg.Conn)
	if err != nil {
		_ = sock.Close()
		return nil, err
	}
	c.metricsLabel = s.label()
	c.onClosed = func(c *Conn) {
		s.registry.Remove(c.ID())
		observability.RecordConnClosed(s.label())
		log.Info().
			Uint64("conn_id", c.ID()).
			Str("remote", c.RemoteAddr()).
			Int("active_clients", s.registry.Len()).
			Msg("client disconnected")
	}
	s.registry.Add(c)
	observability.RecordConnAccepted(s.label())
	log.Info().
		Uint64("conn_id", c.ID()).
		Str("remote", sock.RemoteAddr().String()).
		Int("active_clients", s.registry.Len()).
		Msg("client connected")
	return c, nil
}

// Listen accepts clients and fires the connect notification for each until
// StopListening or Stop. The cancellation signal is observed after an
// accept completes; Stop closes the listening socket so a pending accept
// returns promptly instead of waiting for one more client.
func (s *Server) Listen() error {
	ctx := s.beginAccept()
	for {
		c, err := s.AcceptOne()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if errors.Is(err, ErrNotStarted) {
				return err
			}
			return fmt.Errorf("transport: accept: %w", err)
		}
		if ctx.Err() != nil {
			c.Disconnect()
			return nil
		}
		s.handler.OnConnect(c)
	}
}

func (s *Server) beginAccept() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acceptCancel != nil {
		s.acceptCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.acceptCancel = cancel
	return ctx
}

// StopListening signals the accept loop to exit after its current accept.
// It does not close the listening socket; a loop blocked in Accept keeps
// blocking until the next client arrives or Stop closes the listener.
func (s *Server) StopListening() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acceptCancel != nil {
		s.acceptCancel()
		s.acceptCancel = nil
	}
}

// Broadcast sends one frame to every registered connection in id order.
// Every conn is attempted; the first failure is surfaced after the sweep.
func (s *Server) Broadcast(msg string) error {
	var firstErr error
	for _, c := range s.registry.Snapshot() {
		if err := c.Send(msg); err != nil {
			observability.RecordBroadcastFailure(s.label())
			log.Warn().
				Uint64("conn_id", c.ID()).
				Err(err).
				Msg("broadcast send failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Stop ends the accept loop, closes the listening socket, and forcibly
// disconnects every registered connection. Safe to call when already
// stopped; the listener part is then a no-op.
func (s *Server) Stop() {
	s.StopListening()
	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	for _, c := range s.registry.Drain() {
		c.Disconnect()
	}
}

func (s *Server) label() string {
	return s.cfg.ListenAddr()
}
