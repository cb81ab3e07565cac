// Package api is the synchronous HTTP/JSON gateway.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/matheus3301/dmserver/internal/auth"
	"github.com/matheus3301/dmserver/internal/chat"
	"github.com/matheus3301/dmserver/internal/message"
	"github.com/matheus3301/dmserver/internal/status"
	"github.com/nrednav/cuid2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Config controls the HTTP listeners.
type Config struct {
	ListenAddr     string
	MetricsAddr    string
	AllowedOrigins []string
	BodyLimit      string
	RequestTimeout time.Duration
}

// Pinger reports whether the record store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the operations the gateway exposes.
type Deps struct {
	Chats    *chat.Resolver
	Messages *message.Service
	Status   *status.Machine
	Verifier auth.Verifier
	Store    Pinger
	// Live serves the WebSocket endpoint. Optional.
	Live http.Handler
	// Online reports how many users are connected. Optional.
	Online func() int
}

// Server owns the API listener and the optional metrics listener.
type Server struct {
	cfg     Config
	echo    *echo.Echo
	metrics *echo.Echo
	logger  *zap.Logger
}

// NewServer builds the echo instance and registers every route.
func NewServer(cfg Config, deps Deps, logger *zap.Logger) *Server {
	logger = logger.Named("api")
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "64K"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	// Request metrics live in a registry per server so several servers can
	// coexist in one process; the metrics handler gathers it together with
	// the default registry.
	reg := prometheus.NewRegistry()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string {
			return cuid2.Generate()
		},
	}))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "dm",
		Registerer: reg,
	}))
	e.Use(requestLogger(logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderXRequestID},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
	}))

	health := newHealthService(deps.Store, deps.Online)
	e.GET("/healthz", health.Check)
	if deps.Live != nil {
		e.GET("/ws", echo.WrapHandler(deps.Live))
	}

	chats := newChatService(deps.Chats)
	messages := newMessageService(deps.Messages, deps.Status)

	g := e.Group("/api", middleware.ContextTimeout(cfg.RequestTimeout), authenticate(deps.Verifier))
	g.POST("/chats", chats.Resolve)
	g.GET("/chats", chats.List)
	g.GET("/chats/:id", chats.Get)
	g.GET("/chats/:id/messages", messages.List)
	g.POST("/messages", messages.Create)
	g.PATCH("/messages/:messageId/status", messages.UpdateStatus)

	s := &Server{cfg: cfg, echo: e, logger: logger}
	if cfg.MetricsAddr != "" {
		m := echo.New()
		m.HideBanner = true
		m.HidePort = true
		m.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
			Gatherer: prometheus.Gatherers{prometheus.DefaultGatherer, reg},
		}))
		s.metrics = m
	}
	return s
}

// Handler exposes the API router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start binds the listeners and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	s.echo.Listener = ln
	go s.serve(s.echo, "api")
	s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))

	if s.metrics != nil {
		mln, err := net.Listen("tcp", s.cfg.MetricsAddr)
		if err != nil {
			_ = s.echo.Close()
			return fmt.Errorf("listen %s: %w", s.cfg.MetricsAddr, err)
		}
		s.metrics.Listener = mln
		go s.serve(s.metrics, "metrics")
		s.logger.Info("metrics server listening", zap.String("addr", mln.Addr().String()))
	}
	return nil
}

// Addr returns the bound API address once Start has succeeded.
func (s *Server) Addr() net.Addr {
	if s.echo.Listener == nil {
		return nil
	}
	return s.echo.Listener.Addr()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.metrics != nil {
		errs = append(errs, s.metrics.Shutdown(ctx))
	}
	errs = append(errs, s.echo.Shutdown(ctx))
	return errors.Join(errs...)
}

func (s *Server) serve(e *echo.Echo, name string) {
	if err := e.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("server stopped", zap.String("server", name), zap.Error(err))
	}
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			}
			if uid, ok := c.Get(userKey).(string); ok {
				fields = append(fields, zap.String("user_id", uid))
			}
			if v.Status >= http.StatusInternalServerError {
				logger.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Debug("request", fields...)
			return nil
		},
	})
}
