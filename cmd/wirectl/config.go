package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/wirectl/internal/transport"
)

const (
	modeEcho      = "echo"
	modeBroadcast = "broadcast"
)

// wirectl config.toml key mapping to daemon runtime settings.
type fileConfig struct {
	ID             string   `toml:"id"`
	BindAddr       string   `toml:"bind_addr"`
	BindPort       int      `toml:"bind_port"`
	MaxMessageSize int      `toml:"max_message_size"`
	SendTimeoutMS  int64    `toml:"send_timeout_ms"`
	Mode           string   `toml:"mode"`
	AdminAddr      string   `toml:"admin_addr"`
	CorsOrigins    []string `toml:"cors_origins"`
}

type daemonConfig struct {
	ID          string
	Mode        string
	AdminAddr   string
	CorsOrigins []string
	Transport   transport.Config
}

func defaultDaemonConfig() daemonConfig {
	return daemonConfig{
		ID:        "wirectl.local",
		Mode:      modeEcho,
		Transport: transport.DefaultConfig(),
	}
}

// wirectl loader for TOML config with default overlay.
func loadDaemonConfig(path string) (daemonConfig, error) {
	cfg := defaultDaemonConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return daemonConfig{}, fmt.Errorf("load wirectl config: %w", err)
	}

	if meta.IsDefined("id") {
		cfg.ID = strings.TrimSpace(raw.ID)
	}
	if meta.IsDefined("bind_addr") {
		cfg.Transport.BindAddr = strings.TrimSpace(raw.BindAddr)
	}
	if meta.IsDefined("bind_port") {
		cfg.Transport.BindPort = raw.BindPort
	}
	if meta.IsDefined("max_message_size") {
		cfg.Transport.Conn.MaxMessageSize = raw.MaxMessageSize
	}
	if meta.IsDefined("send_timeout_ms") {
		cfg.Transport.Conn.SendTimeout = time.Duration(raw.SendTimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("mode") {
		cfg.Mode = strings.TrimSpace(strings.ToLower(raw.Mode))
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = raw.CorsOrigins
	}

	if cfg.Mode != modeEcho && cfg.Mode != modeBroadcast {
		return daemonConfig{}, fmt.Errorf("load wirectl config: unknown mode %q", cfg.Mode)
	}
	cfg.Transport = cfg.Transport.WithDefaults()
	if err := cfg.Transport.Validate(); err != nil {
		return daemonConfig{}, fmt.Errorf("load wirectl config: %w", err)
	}
	return cfg, nil
}
