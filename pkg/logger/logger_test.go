package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu     sync.Mutex
	topics []string
	got    chan []AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	p.topics = append(p.topics, topic)
	p.mu.Unlock()
	p.got <- payload.([]AggregatedLogEntry)
	return nil
}

func TestLogger_FieldsAreWritten(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.DebugLevel).With(String("component", "monitor"))

	l.Info("scan complete", Int("scanned", 3), Float64("value", 1.5), Bool("ok", true))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "scan complete", entry["message"])
	assert.Equal(t, "monitor", entry["component"])
	assert.Equal(t, 3.0, entry["scanned"])
	assert.Equal(t, 1.5, entry["value"])
	assert.Equal(t, true, entry["ok"])
}

func TestLogger_CollectorAggregatesErrors(t *testing.T) {
	pub := &capturePublisher{got: make(chan []AggregatedLogEntry, 1)}
	l := NewNop()
	l.AddCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 2,
		Topic:          "kpi-logs",
		Publisher:      pub,
	})
	defer l.RemoveCollector()

	err := errors.New("boom")
	// One call site, so the two webhook failures share a fingerprint.
	for _, sink := range []string{"webhook", "webhook", "kafka"} {
		l.Error("sink failed", String("sink", sink), Error(err))
	}

	select {
	case logs := <-pub.got:
		require.Len(t, logs, 2)
		total := 0
		for _, e := range logs {
			assert.Equal(t, "error", e.Level)
			total += e.Count
		}
		assert.Equal(t, 3, total)
	case <-time.After(2 * time.Second):
		t.Fatal("collector did not flush")
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, []string{"kpi-logs"}, pub.topics)
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	assert.Error(t, err)
}

func TestLogger_ChildSeesLateCollector(t *testing.T) {
	pub := &capturePublisher{got: make(chan []AggregatedLogEntry, 1)}
	root := NewNop()
	child := root.With(String("component", "monitor"))

	root.AddCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 1,
		Topic:          "kpi-logs",
		Publisher:      pub,
	})
	defer root.RemoveCollector()

	child.Error("metric evaluation failed", String("metric", "cpu"))

	select {
	case logs := <-pub.got:
		require.Len(t, logs, 1)
		assert.Equal(t, "metric evaluation failed", logs[0].Message)
	case <-time.After(2 * time.Second):
		t.Fatal("collector did not flush")
	}
}

func TestFingerprint(t *testing.T) {
	a := fingerprint("error", "sink failed", map[string]interface{}{"sink": "kafka", "attempt": 2}, "notify.go:40")
	b := fingerprint("error", "sink failed", map[string]interface{}{"attempt": 2, "sink": "kafka"}, "notify.go:40")
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, fingerprint("error", "sink failed", map[string]interface{}{"sink": "webhook", "attempt": 2}, "notify.go:40"))
	assert.NotEqual(t, a, fingerprint("error", "sink failed", map[string]interface{}{"sink": "kafka", "attempt": 2}, "notify.go:41"))
}

func TestCollector_CloseFlushesPending(t *testing.T) {
	pub := &capturePublisher{got: make(chan []AggregatedLogEntry, 1)}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Topic: "kpi-logs", Publisher: pub})

	c.AddLog("error", "flush on close", nil, "x.go:1")
	c.Close()
	c.Close()

	select {
	case logs := <-pub.got:
		require.Len(t, logs, 1)
		assert.Equal(t, "flush on close", logs[0].Message)
	default:
		t.Fatal("Close did not flush pending entries")
	}
}

func TestLogger_ZerologCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	zl := NewWithWriter(&buf, zerolog.DebugLevel).With(String("component", "kafka")).Zerolog()

	zl.Info().Int("workers", 4).Msg("consumer started")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kafka", entry["component"])
	assert.Equal(t, 4.0, entry["workers"])
}

func TestError_NilIsSafe(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, zerolog.DebugLevel).Error("no cause", Error(nil))
	assert.Contains(t, buf.String(), "no cause")

	k, v := Error(nil).GetKeyValue()
	assert.Equal(t, "error", k)
	assert.Nil(t, v)
}
