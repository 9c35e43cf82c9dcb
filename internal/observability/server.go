// Package observability owns the task's prometheus metrics and the optional
// HTTP endpoint that exposes them.
package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Server serves /health and /metrics for the lifetime of one task.
type Server struct {
	ID      string
	started time.Time
	router  *gin.Engine
	http    *http.Server
	ln      net.Listener
}

func NewServer(id string) *Server {
	RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log.Logger))
	r.Use(RequestMetricsMiddleware())

	s := &Server{ID: id, started: time.Now(), router: r}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"task":   s.ID,
			"uptime": time.Since(s.started).String(),
		})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.http = &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("observability.Server.Start serve failed")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("observability.Server.Start listening")
	return nil
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
