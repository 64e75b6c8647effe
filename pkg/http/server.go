package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"KPISentinel/pkg/http/middleware"
	applogger "KPISentinel/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type serverConfig struct {
	host            string
	port            int
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
	cors            bool
	slow            time.Duration
	logger          *applogger.Logger
	extra           []echo.MiddlewareFunc
}

// ServerOption configures Server.
type ServerOption func(*serverConfig)

func defaultServerConfig() serverConfig {
	return serverConfig{
		host:            "0.0.0.0",
		port:            8080,
		readTimeout:     10 * time.Second,
		writeTimeout:    10 * time.Second,
		shutdownTimeout: 10 * time.Second,
		cors:            true,
		slow:            time.Second,
	}
}

// Server is the echo instance plus its listener lifecycle.
type Server struct {
	echo *echo.Echo
	cfg  serverConfig

	mu       sync.Mutex
	listener net.Listener
	served   chan struct{}
}

// NewServer builds the echo instance, installs the middleware chain and the
// /healthz and /metrics routes, then lets handler register its own.
func NewServer(handler Handler, opts ...ServerOption) *Server {
	cfg := defaultServerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = applogger.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.readTimeout
	e.Server.WriteTimeout = cfg.writeTimeout

	e.Use(
		middleware.Recover(cfg.logger),
		middleware.RequestLogging(cfg.logger),
		middleware.Metrics(cfg.logger, cfg.slow),
	)
	if cfg.cors {
		e.Use(middleware.CORS(middleware.CORSConfig{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{
				echo.HeaderOrigin,
				echo.HeaderContentType,
				echo.HeaderAccept,
				echo.HeaderAuthorization,
			},
		}))
	}
	e.Use(cfg.extra...)

	e.GET("/healthz", func(c echo.Context) error {
		return SuccessResponse(c, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if handler != nil {
		handler.RegisterRoutes(e)
	}
	return &Server{echo: e, cfg: cfg}
}

// Start binds the listen address and serves in the background. A bind
// failure is returned directly.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return errors.New("http server already started")
	}

	addr := net.JoinHostPort(s.cfg.host, strconv.Itoa(s.cfg.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = ln
	s.echo.Listener = ln
	s.served = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		s.cfg.logger.Info("http server listening", applogger.String("addr", ln.Addr().String()))
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.cfg.logger.Error("http server stopped unexpectedly", applogger.Error(err))
		}
	}(s.served)
	return nil
}

// Addr reports the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop drains in-flight requests, bounded by the shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	done := s.served
	s.mu.Unlock()
	if done == nil {
		return nil
	}

	if s.cfg.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.shutdownTimeout)
		defer cancel()
	}
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.cfg.logger.Info("http server stopped")
	return nil
}

// Echo exposes the router, mostly for tests driving ServeHTTP directly.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func WithHost(host string) ServerOption {
	return func(c *serverConfig) { c.host = host }
}

func WithPort(port int) ServerOption {
	return func(c *serverConfig) { c.port = port }
}

// WithTimeouts sets the read, write and graceful-shutdown timeouts.
func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(c *serverConfig) {
		c.readTimeout, c.writeTimeout, c.shutdownTimeout = read, write, shutdown
	}
}

func WithCORS(enabled bool) ServerOption {
	return func(c *serverConfig) { c.cors = enabled }
}

func WithLogger(l *applogger.Logger) ServerOption {
	return func(c *serverConfig) { c.logger = l }
}

// WithSlowThreshold sets the latency above which requests are logged as slow.
func WithSlowThreshold(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.slow = d }
}

// WithMiddleware appends middleware after the built-in chain.
func WithMiddleware(mw ...echo.MiddlewareFunc) ServerOption {
	return func(c *serverConfig) { c.extra = append(c.extra, mw...) }
}
