package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/wirectl/internal/admin"
	"github.com/danmuck/wirectl/internal/observability"
	"github.com/danmuck/wirectl/internal/transport"
)

func main() {
	logger := observability.InitLogger("wirectl")

	cfg := defaultDaemonConfig()
	if len(os.Args) > 1 {
		var err error
		cfg, err = loadDaemonConfig(os.Args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "wirectl: %v\n", err)
			os.Exit(1)
		}
	}

	if err := run(cfg, logger); err != nil {
		fmt.Fprintf(os.Stderr, "wirectl: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg daemonConfig, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	relay := &relayHandler{mode: cfg.Mode}
	srv, err := transport.NewServer(cfg.Transport, relay)
	if err != nil {
		return err
	}
	relay.server = srv

	if err := srv.Start(); err != nil {
		return err
	}
	logger.Info().
		Str("id", cfg.ID).
		Str("addr", srv.Addr().String()).
		Str("mode", cfg.Mode).
		Msg("wirectl up")

	if cfg.AdminAddr != "" {
		adm := admin.New(cfg.ID, srv, cfg.CorsOrigins)
		go func() {
			if err := adm.Run(cfg.AdminAddr); err != nil {
				logger.Error().Err(err).Msg("admin endpoint failed")
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Listen() }()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		srv.Stop()
		return <-serveErr
	case err := <-serveErr:
		srv.Stop()
		return err
	}
}

// relayHandler starts the push loop for each accepted client and reflects
// messages according to the configured mode.
type relayHandler struct {
	mode   string
	server *transport.Server
}

func (h *relayHandler) OnConnect(c *transport.Conn) {
	go c.Listen()
}

func (h *relayHandler) OnMessage(c *transport.Conn, msg string) {
	switch h.mode {
	case modeBroadcast:
		if err := h.server.Broadcast(msg); err != nil {
			log.Warn().Err(err).Msg("broadcast failed")
		}
	default:
		if err := c.Send(msg); err != nil {
			log.Warn().Uint64("conn_id", c.ID()).Err(err).Msg("echo failed")
		}
	}
}

func (h *relayHandler) OnDisconnect(*transport.Conn) {}
