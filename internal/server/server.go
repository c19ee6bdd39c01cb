// Package server exposes the generator over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	cors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/xupit3r/vsmserve/internal/config"
	"github.com/xupit3r/vsmserve/internal/gate"
	"github.com/xupit3r/vsmserve/internal/llm"
)

// Generator produces the full response text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Info() llm.Info
}

// StatsSource reports admission queue counts.
type StatsSource interface {
	Stats() gate.Stats
}

// Server is the HTTP front of the generator.
type Server struct {
	cfg    config.ServerConfig
	gen    Generator
	stats  StatsSource
	log    logrus.FieldLogger
	engine *gin.Engine
}

// New builds the router. stats may be nil.
func New(cfg config.ServerConfig, gen Generator, stats StatsSource, log logrus.FieldLogger) *Server {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	s := &Server{cfg: cfg, gen: gen, stats: stats, log: log}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(
		requestID(),
		accessLog(log),
		recovery(log),
		securityHeaders(),
		cors.New(corsConfig(cfg.CORSOrigins)),
	)

	r.POST("/generate", s.handleGenerate)
	r.GET("/healthz", s.handleHealth)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})

	s.engine = r
	return s
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", requestIDHeader}
	cfg.ExposeHeaders = []string{requestIDHeader}
	return cfg
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then drains in-flight requests for
// at most the shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", ln.Addr().String()).Info("HTTP server listening")
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		srv.Close()
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
