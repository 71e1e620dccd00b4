// Package admin exposes a read-only HTTP status surface over a running
// transport server.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/wirectl/internal/observability"
	"github.com/danmuck/wirectl/internal/transport"
)

// connView is the JSON shape for one registered connection.
type connView struct {
	ID         uint64 `json:"id"`
	RemoteAddr string `json:"remote_addr"`
	RemotePort int    `json:"remote_port"`
	Connected  bool   `json:"connected"`
	IdleMS     int64  `json:"idle_ms"`
}

// Server wraps the gin router serving status routes for one transport.
type Server struct {
	id        string
	transport *transport.Server
	router    *gin.Engine
	startedAt time.Time
}

func New(id string, ts *transport.Server, corsOrigins []string) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		id:        id,
		transport: ts,
		router:    r,
		startedAt: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.startedAt).String(),
			"service": s.id,
			"clients": s.transport.Count(),
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":   s.transport.Addr() != nil,
			"service": s.id,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/connections", func(c *gin.Context) {
		conns := s.transport.Connections()
		views := make([]connView, 0, len(conns))
		for _, conn := range conns {
			views = append(views, connView{
				ID:         conn.ID(),
				RemoteAddr: conn.RemoteAddr(),
				RemotePort: conn.RemotePort(),
				Connected:  conn.Connected(),
				IdleMS:     conn.SinceLastMessage().Milliseconds(),
			})
		}
		c.JSON(http.StatusOK, gin.H{"connections": views})
	})
}

// Router exposes the underlying engine for tests and embedding.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves the status routes until the listener fails.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
