package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"KPISentinel/internal/usecase"
	"KPISentinel/pkg/config"
	xhttp "KPISentinel/pkg/http"
	pkgkafka "KPISentinel/pkg/kafka"
	applogger "KPISentinel/pkg/logger"
	"KPISentinel/pkg/queue"
)

// NamedCloser is a resource released on shutdown, in registration order.
type NamedCloser struct {
	Name   string
	Closer io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	httpServer *xhttp.Server
	monitor    *usecase.Monitor
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	delivery   *queue.RedisQueue
	closers    []NamedCloser
}

// New creates a new App instance with all dependencies.
// consumer, kh and delivery may be nil when the matching feature is disabled.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	httpServer *xhttp.Server,
	monitor *usecase.Monitor,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	delivery *queue.RedisQueue,
) *App {
	return &App{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		monitor:    monitor,
		consumer:   consumer,
		kh:         kh,
		delivery:   delivery,
	}
}

// AddCloser registers a resource released after every component has stopped.
func (a *App) AddCloser(name string, c io.Closer) {
	if c != nil {
		a.closers = append(a.closers, NamedCloser{Name: name, Closer: c})
	}
}

// Start launches every component without blocking.
func (a *App) Start(ctx context.Context) error {
	if err := a.monitor.Start(ctx); err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}

	if a.delivery != nil {
		if err := a.delivery.Start(); err != nil {
			return fmt.Errorf("start alert delivery queue: %w", err)
		}
	}

	// Start consumer if configured
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("start kafka consumer: %w", err)
		}
		a.logger.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	// Start HTTP server
	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}
	return nil
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		_ = a.Shutdown(context.Background())
		return err
	}
	a.logger.Info("kpi sentinel running",
		applogger.String("env", a.cfg.Environment),
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Int("window", a.cfg.Series.WindowSize))

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	return a.Shutdown(ctx)
}

// Shutdown stops ingestion first, then the monitor (letting an in-flight pass finish),
// then releases sinks and clients.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down...")
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	// Stop consumer
	if a.consumer != nil {
		stopCtx, cancel := context.WithTimeout(ctx, timeout)
		if err := a.consumer.Stop(stopCtx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
		}
		cancel()
	}

	// Shutdown HTTP server
	if err := a.httpServer.Stop(ctx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}

	monCtx, cancel := context.WithTimeout(ctx, timeout)
	if err := a.monitor.Stop(monCtx); err != nil {
		a.logger.Warn("monitor stop error", applogger.Error(err))
	}
	cancel()

	if a.delivery != nil {
		qCtx, cancel := context.WithTimeout(ctx, timeout)
		if err := a.delivery.Stop(qCtx); err != nil {
			a.logger.Warn("alert delivery queue stop error", applogger.Error(err))
		}
		cancel()
	}

	// Flush collected error logs while the producer is still open.
	a.logger.RemoveCollector()

	for _, c := range a.closers {
		if err := c.Closer.Close(); err != nil {
			a.logger.Warn("close error", applogger.String("resource", c.Name), applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
