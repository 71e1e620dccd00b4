package transport

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/danmuck/wirectl/internal/wire"
)

// ConnConfig defines per-connection framing and send behavior.
type ConnConfig struct {
	MaxMessageSize int
	SendTimeout    time.Duration
	Delimiter      byte
}

// DefaultConnConfig returns the line-protocol connection defaults.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		MaxMessageSize: wire.DefaultMaxMessageSize,
		SendTimeout:    0,
		Delimiter:      wire.DefaultDelimiter,
	}
}

func (c ConnConfig) WithDefaults() ConnConfig {
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = wire.DefaultMaxMessageSize
	}
	if c.Delimiter == 0 {
		c.Delimiter = wire.DefaultDelimiter
	}
	return c
}

func (c ConnConfig) Validate() error {
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: max message size must be positive, got %d", ErrInvalidConfig, c.MaxMessageSize)
	}
	if c.SendTimeout < 0 {
		return fmt.Errorf("%w: send timeout must not be negative, got %v", ErrInvalidConfig, c.SendTimeout)
	}
	return nil
}

// Config defines the server bind point plus per-connection settings.
type Config struct {
	BindAddr string
	BindPort int
	Conn     ConnConfig
}

func DefaultConfig() Config {
	return Config{
		BindAddr: "0.0.0.0",
		BindPort: 3333,
		Conn:     DefaultConnConfig(),
	}
}

func (c Config) WithDefaults() Config {
	if c.BindAddr == "" {
		c.BindAddr = DefaultConfig().BindAddr
	}
	c.Conn = c.Conn.WithDefaults()
	return c
}

func (c Config) Validate() error {
	if c.BindPort < 0 || c.BindPort > 65535 {
		return fmt.Errorf("%w: bind port out of range, got %d", ErrInvalidConfig, c.BindPort)
	}
	return c.Conn.Validate()
}

// ListenAddr renders the bind point for net.Listen.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.BindAddr, strconv.Itoa(c.BindPort))
}
