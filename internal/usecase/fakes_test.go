package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"KPISentinel/internal/domain/models"
)

type recordingMetrics struct {
	mu         sync.Mutex
	ingested   map[string]int
	rejected   map[string]int
	alerts     map[string]int
	sinkErrors map[string]int
	latencies  map[string]int
	series     int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		ingested:   map[string]int{},
		rejected:   map[string]int{},
		alerts:     map[string]int{},
		sinkErrors: map[string]int{},
		latencies:  map[string]int{},
	}
}

func (m *recordingMetrics) RecordIngested(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingested[source]++
}

func (m *recordingMetrics) RecordRejected(source, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[source+"/"+reason]++
}

func (m *recordingMetrics) RecordAlert(direction string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[direction]++
}

func (m *recordingMetrics) RecordSinkError(sink string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinkErrors[sink]++
}

func (m *recordingMetrics) RecordSeries(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series = n
}

func (m *recordingMetrics) RecordLatency(op string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies[op]++
}

type captureSink struct {
	name    string
	err     error
	panics  bool
	mu      sync.Mutex
	alerts  []models.Alert
	hasDead bool
}

func (s *captureSink) Name() string { return s.name }

func (s *captureSink) Notify(ctx context.Context, a models.Alert) error {
	if _, ok := ctx.Deadline(); ok {
		s.mu.Lock()
		s.hasDead = true
		s.mu.Unlock()
	}
	if s.panics {
		panic("sink exploded")
	}
	s.mu.Lock()
	s.alerts = append(s.alerts, a)
	s.mu.Unlock()
	return s.err
}

func (s *captureSink) received() []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

var errSinkDown = errors.New("sink down")

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
