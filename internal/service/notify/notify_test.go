package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"KPISentinel/internal/domain/models"
	xhttp "KPISentinel/pkg/http"
	applogger "KPISentinel/pkg/logger"
	"KPISentinel/pkg/metrics"
)

var testAlert = models.Alert{
	Metric:     "orders_per_min",
	Timestamp:  time.Date(2024, 3, 1, 11, 59, 0, 0, time.UTC),
	Value:      1000,
	Direction:  models.DirectionHigh,
	Mean:       100,
	StdDev:     0.5,
	Reason:     "value 1000.00 is unusually HIGH (mean=100.00, std=0.50)",
	DetectedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
}

func TestFormatAlertLine(t *testing.T) {
	assert.Equal(t,
		"[ALERT] 2024-03-01T11:59:00Z: KPI 'orders_per_min' anomaly detected. Value=1000. Reason: value 1000.00 is unusually HIGH (mean=100.00, std=0.50)",
		FormatAlertLine(testAlert))

	a := testAlert
	a.Value = -2.25
	assert.Contains(t, FormatAlertLine(a), "Value=-2.25.")

	a.DetectedAt = a.DetectedAt.Add(time.Hour)
	assert.Contains(t, FormatAlertLine(a), "[ALERT] 2024-03-01T11:59:00Z:", "scan time must not leak into the line")
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(applogger.NewWithWriter(&buf, zerolog.DebugLevel))

	require.NoError(t, sink.Notify(context.Background(), testAlert))
	assert.Equal(t, "log", sink.Name())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, FormatAlertLine(testAlert), entry["message"])
	assert.Equal(t, "orders_per_min", entry["metric"])
	assert.Equal(t, "HIGH", entry["direction"])
}

type stubSink struct {
	name   string
	err    error
	panics bool
	closed bool
	mu     sync.Mutex
	got    []models.Alert
}

func (s *stubSink) Name() string { return s.name }

func (s *stubSink) Notify(_ context.Context, a models.Alert) error {
	if s.panics {
		panic("boom")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, a)
	return s.err
}

func (s *stubSink) Close() error {
	s.closed = true
	return nil
}

func TestMulti_AttemptsEverySink(t *testing.T) {
	down := errors.New("down")
	first := &stubSink{name: "first", err: down}
	second := &stubSink{name: "second", panics: true}
	third := &stubSink{name: "third"}

	multi := NewMulti(metrics.Nop{}, first, nil, second, third)
	assert.Equal(t, []string{"first", "second", "third"}, multi.Sinks())

	err := multi.Notify(context.Background(), testAlert)
	require.Error(t, err)
	assert.ErrorIs(t, err, down)
	assert.Contains(t, err.Error(), "second sink: panic: boom")
	assert.Len(t, first.got, 1)
	assert.Len(t, third.got, 1)

	require.NoError(t, multi.Close())
	assert.True(t, first.closed)
	assert.True(t, third.closed)
}

func TestMulti_AllHealthy(t *testing.T) {
	multi := NewMulti(metrics.Nop{}, &stubSink{name: "a"}, &stubSink{name: "b"})
	assert.NoError(t, multi.Notify(context.Background(), testAlert))
}

func TestWebhookSink(t *testing.T) {
	var received webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "kpi-sentinel-webhook", r.Header.Get("User-Agent"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, time.Second)
	require.NoError(t, sink.Notify(context.Background(), testAlert))
	assert.Equal(t, FormatAlertLine(testAlert), received.Text)
	assert.Equal(t, "orders_per_min", received.Alert.Metric)
	assert.Equal(t, models.DirectionHigh, received.Alert.Direction)
}

func TestWebhookSink_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookSink(srv.URL, time.Second).Notify(context.Background(), testAlert)
	require.Error(t, err)
	var statusErr *xhttp.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.Code)
	assert.Equal(t, "nope", statusErr.Body)
}

type stubQueue struct {
	msgType string
	payload interface{}
	err     error
}

func (q *stubQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	q.msgType = msgType
	q.payload = payload
	return q.err
}

func TestQueueSink(t *testing.T) {
	q := &stubQueue{}
	sink := NewQueueSink(q, "alert.deliver")
	require.NoError(t, sink.Notify(context.Background(), testAlert))
	assert.Equal(t, "alert.deliver", q.msgType)
	assert.Equal(t, testAlert, q.payload)

	q.err = errors.New("redis down")
	assert.ErrorIs(t, sink.Notify(context.Background(), testAlert), q.err)
}

type stubPublisher struct {
	key     string
	payload interface{}
	closed  bool
}

func (p *stubPublisher) Publish(_ context.Context, key string, payload interface{}) error {
	p.key = key
	p.payload = payload
	return nil
}

func (p *stubPublisher) Close() error {
	p.closed = true
	return nil
}

func TestKafkaSink(t *testing.T) {
	pub := &stubPublisher{}
	sink := NewKafkaSink(pub)
	require.NoError(t, sink.Notify(context.Background(), testAlert))
	assert.Equal(t, "orders_per_min", pub.key)
	assert.Equal(t, testAlert, pub.payload)
	require.NoError(t, sink.Close())
	assert.True(t, pub.closed)
}

type stubAlertLog struct {
	rows []models.Alert
	err  error
}

func (l *stubAlertLog) Insert(_ context.Context, a models.Alert) error {
	if l.err != nil {
		return l.err
	}
	l.rows = append(l.rows, a)
	return nil
}

func (l *stubAlertLog) Recent(context.Context, string, int) ([]models.Alert, error) {
	return l.rows, nil
}

func (l *stubAlertLog) Close() error { return nil }

func TestClickHouseSink(t *testing.T) {
	log := &stubAlertLog{}
	sink := NewClickHouseSink(log)
	require.NoError(t, sink.Notify(context.Background(), testAlert))
	assert.Len(t, log.rows, 1)

	log.err = errors.New("insert failed")
	assert.ErrorIs(t, sink.Notify(context.Background(), testAlert), log.err)
}

func TestBroadcaster(t *testing.T) {
	hub := NewBroadcaster(1, applogger.NewNop())
	fast, unsubFast := hub.Subscribe()
	slow, _ := hub.Subscribe()
	assert.Equal(t, 2, hub.Subscribers())

	require.NoError(t, hub.Notify(context.Background(), testAlert))

	var msg BroadcastMessage
	require.NoError(t, json.Unmarshal(<-fast.C, &msg))
	assert.Equal(t, MessageTypeAlert, msg.Type)
	assert.Equal(t, "orders_per_min", msg.Alert.Metric)

	// slow never drained its single-slot buffer and is dropped on the next alert.
	require.NoError(t, hub.Notify(context.Background(), testAlert))
	assert.Equal(t, 1, hub.Subscribers())
	<-slow.C
	_, open := <-slow.C
	assert.False(t, open)

	<-fast.C
	unsubFast()
	unsubFast()
	assert.Zero(t, hub.Subscribers())

	require.NoError(t, hub.Close())
	late, _ := hub.Subscribe()
	_, open = <-late.C
	assert.False(t, open)
}
