package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"KPISentinel/internal/domain/models"
	domrepo "KPISentinel/internal/domain/repository"
	domsvc "KPISentinel/internal/domain/service"
	applogger "KPISentinel/pkg/logger"
)

// DefaultMonitorInterval is the period between scan passes.
const DefaultMonitorInterval = 30 * time.Second

// MonitorConfig tunes the scan loop.
type MonitorConfig struct {
	Interval    time.Duration
	ScanOnStart bool
	SinkTimeout time.Duration
}

// ScanReport summarizes one pass.
type ScanReport struct {
	Scanned      int           `json:"scanned"`
	Alerts       int           `json:"alerts"`
	Skipped      int           `json:"skipped"`
	SinkFailures int           `json:"sink_failures"`
	Duration     time.Duration `json:"duration"`
}

// Monitor periodically classifies every known metric and forwards anomalies to the sink.
// There is no deduplication: a persisting anomaly alerts on every pass.
type Monitor struct {
	store    domrepo.SeriesStore
	analyzer domsvc.AnomalyClassifier
	sink     domsvc.NotificationSink
	metrics  domrepo.Metrics
	logger   *applogger.Logger
	cfg      MonitorConfig
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	scanMu sync.Mutex
}

func NewMonitor(
	store domrepo.SeriesStore,
	analyzer domsvc.AnomalyClassifier,
	sink domsvc.NotificationSink,
	metrics domrepo.Metrics,
	logger *applogger.Logger,
	cfg MonitorConfig,
) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultMonitorInterval
	}
	return &Monitor{
		store:    store,
		analyzer: analyzer,
		sink:     sink,
		metrics:  metrics,
		logger:   logger.With(applogger.String("component", "monitor")),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Start launches the scan loop. Calling Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go m.loop(ctx, m.stopCh, m.doneCh)
	m.logger.Info("monitor started", applogger.Duration("interval_ms", m.cfg.Interval))
	return nil
}

// Stop prevents further passes and waits for an in-flight pass to finish or ctx to expire.
// Calling Stop on a stopped monitor is a no-op.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	close(m.stopCh)
	done := m.doneCh
	m.mu.Unlock()

	select {
	case <-done:
		m.logger.Info("monitor stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("monitor stop: %w", ctx.Err())
	}
}

// Running reports whether the scan loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) loop(ctx context.Context, stopCh chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	// A pass that has begun runs to completion even after Stop.
	scanCtx := context.WithoutCancel(ctx)

	if m.cfg.ScanOnStart {
		m.ScanOnce(scanCtx)
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			m.release(stopCh)
			return
		case <-ticker.C:
			select {
			case <-stopCh:
				return
			default:
			}
			m.ScanOnce(scanCtx)
		}
	}
}

// release marks the monitor stopped when its loop exits on its own, unless Stop
// or a restart already replaced this run.
func (m *Monitor) release(stopCh chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running && m.stopCh == stopCh {
		m.running = false
		close(stopCh)
	}
}

// ScanOnce evaluates every metric known at the start of the pass.
// A failing metric or sink is logged and counted; the pass always continues.
func (m *Monitor) ScanOnce(ctx context.Context) ScanReport {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()

	start := m.now()
	names := m.store.ListMetricNames()
	report := ScanReport{}

	for _, name := range names {
		report.Scanned++
		verdict, err := m.evaluate(name)
		if err != nil {
			report.Skipped++
			m.logger.Error("metric evaluation failed", applogger.String("metric", name), applogger.Error(err))
			continue
		}
		if !verdict.IsAnomaly() {
			continue
		}

		alert := models.NewAlert(name, verdict, m.now())
		report.Alerts++
		m.metrics.RecordAlert(string(alert.Direction))
		if err := m.deliver(ctx, alert); err != nil {
			report.SinkFailures++
			m.logger.Error("alert delivery failed",
				applogger.String("metric", name),
				applogger.String("direction", string(alert.Direction)),
				applogger.Error(err))
		}
	}

	report.Duration = m.now().Sub(start)
	m.metrics.RecordSeries(len(names))
	m.metrics.RecordLatency("monitor_scan", report.Duration.Seconds())
	m.logger.Debug("scan complete",
		applogger.Int("scanned", report.Scanned),
		applogger.Int("alerts", report.Alerts),
		applogger.Int("skipped", report.Skipped),
		applogger.Int("sink_failures", report.SinkFailures))
	return report
}

func (m *Monitor) evaluate(name string) (v models.Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluate %s: panic: %v", name, r)
		}
	}()
	return m.analyzer.Classify(m.store.Snapshot(name)), nil
}

func (m *Monitor) deliver(ctx context.Context, alert models.Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s sink: panic: %v", m.sink.Name(), r)
		}
	}()
	if m.cfg.SinkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.SinkTimeout)
		defer cancel()
	}
	return m.sink.Notify(ctx, alert)
}
