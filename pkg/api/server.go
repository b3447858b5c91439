package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/moncoffretelec/coffret/pkg/apiresponses"
	"github.com/moncoffretelec/coffret/pkg/config"
	"github.com/moncoffretelec/coffret/pkg/intake"
	"github.com/moncoffretelec/coffret/pkg/metrics"
	"github.com/moncoffretelec/coffret/pkg/ratelimit"
	"github.com/moncoffretelec/coffret/pkg/submission"
	"github.com/moncoffretelec/coffret/pkg/system"
)

const (
	// MaxBodyBytes caps the size of a submission body.
	MaxBodyBytes = 1 << 20
	RootMessage  = "Backend MonCoffretElec OK"
)

// Submitter runs one submission. *submission.Service implements it.
type Submitter interface {
	Submit(ctx context.Context, rec intake.Record) (submission.Result, error)
}

type Server struct {
	gin         *gin.Engine
	config      config.Config
	submissions Submitter
	sendLimiter *ratelimit.IPRateLimiter
	log         *zap.SugaredLogger
	version     string
}

func NewServer(log *zap.Logger, cfg config.Config, debug bool, submissions Submitter, version string) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		ginzap.Ginzap(log, time.RFC3339, true),
		ginzap.RecoveryWithZap(log, true),
	)
	if err := engine.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		log.Sugar().Warnw("Ignoring invalid trusted proxies", "proxies", cfg.Server.TrustedProxies, "error", err)
	}

	corsCfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.Server.AllowedOrigins
	}
	engine.Use(cors.New(corsCfg))

	limits := ratelimit.DefaultSubmitConfig()
	if cfg.Limits.RatePerIP > 0 {
		limits.Rate = cfg.Limits.RatePerIP
	}
	if cfg.Limits.Burst > 0 {
		limits.Burst = cfg.Limits.Burst
	}

	s := &Server{
		gin:         engine,
		config:      cfg,
		submissions: submissions,
		sendLimiter: ratelimit.New(limits),
		log:         log.Sugar(),
		version:     version,
	}

	engine.GET("/", s.root)
	engine.GET("/healthz", s.healthz)
	engine.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))
	engine.POST("/send",
		s.sendLimiter.Middleware(apiresponses.RespondTooManyRequests),
		s.requestLogger(),
		limitBody(MaxBodyBytes),
		s.send,
	)

	if cfg.Frontend.Dir != "" {
		engine.NoRoute(ServeSPA("/", cfg.Frontend.Dir))
	}

	return s
}

// Handler exposes the engine for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.gin
}

// Close releases background resources. It is safe to call more than once.
func (s *Server) Close() {
	if s.sendLimiter != nil {
		s.sendLimiter.Stop()
	}
}

// Listen serves on the configured address until ctx is cancelled.
func (s *Server) Listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Server.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then drains
// in-flight requests for at most the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.gin,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	s.log.Infow("HTTP server listening", "address", ln.Addr().String())
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.log.Infow("Shutting down HTTP server", "timeout", timeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	return nil
}

func (s *Server) root(c *gin.Context) {
	c.String(http.StatusOK, RootMessage)
}

type health struct {
	Status         string `json:"status"`
	MailConfigured bool   `json:"mailConfigured"`
	Version        string `json:"version"`
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, health{
		Status:         "ok",
		MailConfigured: s.config.MailConfigured(),
		Version:        s.version,
	})
}

// requestLogger stores a request-scoped logger carrying a request id.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		system.SetReqLogger(c, s.log.With("requestID", requestID, "clientIP", c.ClientIP()))
		c.Next()
	}
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}
