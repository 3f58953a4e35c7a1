// Package api exposes escalation runs and ledger reads over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/leasehold/internal/config"
	"github.com/example/leasehold/internal/ctxutil"
	"github.com/example/leasehold/internal/metrics"
	"github.com/example/leasehold/internal/ports/primary"
	"github.com/example/leasehold/internal/version"
)

// ActorHeader optionally names the caller of a run trigger, e.g. the cron job.
const ActorHeader = "X-Leasehold-Actor"

// Server serves the trigger and read API.
type Server struct {
	gin     *gin.Engine
	service primary.EscalationService
	config  config.ServerConfig
	logger  *zap.Logger
}

// NewServer creates the API server and registers its routes.
func NewServer(service primary.EscalationService, cfg config.ServerConfig, logger *zap.Logger, debug bool) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := gin.New()
	engine.Use(
		ginzap.Ginzap(logger, time.RFC3339, true),
		ginzap.RecoveryWithZap(logger, true),
	)

	s := &Server{
		gin:     engine,
		service: service,
		config:  cfg,
		logger:  logger.Named("api"),
	}

	engine.GET("/healthz", s.healthz)
	engine.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	v1 := engine.Group("/v1")
	v1.POST("/escalations/run", s.requireTriggerToken(), s.runEscalations)
	v1.GET("/tickets/:id/escalations", s.listEscalations)
	v1.GET("/policies/resolve", s.resolvePolicy)

	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.gin
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.gin,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", zap.String("addr", s.config.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	s.logger.Info("shutting down API server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown: %w", err)
	}
	return nil
}

// requireTriggerToken checks the bearer token when one is configured and
// records the caller as the run actor.
func (s *Server) requireTriggerToken() gin.HandlerFunc {
	expected := s.config.TriggerToken
	return func(c *gin.Context) {
		if expected != "" {
			token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
				metrics.APITriggers.WithLabelValues("unauthorized").Inc()
				respondUnauthorized(c)
				return
			}
		}

		actor := c.GetHeader(ActorHeader)
		if actor == "" {
			actor = "api"
		}
		c.Request = c.Request.WithContext(ctxutil.WithActorID(c.Request.Context(), actor))
		c.Next()
	}
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.String()})
}
