package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type scriptedHandler struct {
	mu    sync.Mutex
	calls int
	errs  []error
	panic bool
}

func (h *scriptedHandler) Topic() string { return "kpi-samples" }

func (h *scriptedHandler) Handle(context.Context, []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.panic {
		panic("boom")
	}
	if h.calls <= len(h.errs) {
		return h.errs[h.calls-1]
	}
	return nil
}

func newTestConsumer(t *testing.T, opts ...ConsumerOption) *Consumer {
	t.Helper()
	opts = append([]ConsumerOption{
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond),
	}, opts...)
	c, err := NewConsumer(opts...)
	require.NoError(t, err)
	return c
}

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue([]byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, "raw", string(b))

	b, err = encodeValue("text")
	require.NoError(t, err)
	assert.Equal(t, "text", string(b))

	b, err = encodeValue(map[string]float64{"value": 1.5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":1.5}`, string(b))

	_, err = encodeValue(make(chan int))
	assert.Error(t, err)
}

func TestCompressionCodec(t *testing.T) {
	assert.Equal(t, kafka.Snappy, compressionCodec("snappy"))
	assert.Equal(t, kafka.Zstd, compressionCodec("zstd"))
	assert.Equal(t, kafka.Gzip, compressionCodec("gzip"))
	assert.Equal(t, kafka.Gzip, compressionCodec("unknown"))
}

func TestProperty01_BackoffStaysWithinBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lo := time.Duration(rapid.Int64Range(1, int64(time.Second)).Draw(t, "min"))
		hi := lo + time.Duration(rapid.Int64Range(0, int64(10*time.Second)).Draw(t, "extra"))
		attempt := rapid.IntRange(-3, 80).Draw(t, "attempt")

		d := backoffWithJitter(lo, hi, attempt)
		if d <= 0 || d > hi {
			t.Fatalf("backoff %v outside (0, %v]", d, hi)
		}
	})
}

func TestErrSkipRetryWraps(t *testing.T) {
	cause := errors.New("bad payload")
	err := fmt.Errorf("%w: %w", ErrSkipRetry, cause)
	assert.ErrorIs(t, err, ErrSkipRetry)
	assert.ErrorIs(t, err, cause)
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}

func TestNewConsumer_Defaults(t *testing.T) {
	_, err := NewConsumer()
	require.Error(t, err)

	c := newTestConsumer(t, WithConsumerWorkers(0), WithConsumerGroupID(""))
	assert.Equal(t, 1, c.cfg.WorkerCount)
	assert.Equal(t, "kpi-sentinel", c.cfg.GroupID)
	assert.Nil(t, c.dlq)

	c = newTestConsumer(t, WithConsumerDLQ("kpi-samples-dlq"))
	assert.NotNil(t, c.dlq)
}

func TestConsumer_RetriesTransientErrors(t *testing.T) {
	c := newTestConsumer(t)
	h := &scriptedHandler{errs: []error{errors.New("a"), errors.New("b")}}

	require.NoError(t, c.handleWithRetry(h, kafka.Message{Topic: h.Topic()}))
	assert.Equal(t, 3, h.calls)
}

func TestConsumer_GivesUpAfterRetryMax(t *testing.T) {
	c := newTestConsumer(t)
	fail := errors.New("down")
	h := &scriptedHandler{errs: []error{fail, fail, fail, fail}}

	err := c.handleWithRetry(h, kafka.Message{Topic: h.Topic()})
	assert.ErrorIs(t, err, fail)
	assert.Equal(t, 3, h.calls)
}

func TestConsumer_PermanentErrorSkipsRetry(t *testing.T) {
	c := newTestConsumer(t)
	h := &scriptedHandler{errs: []error{fmt.Errorf("%w: malformed", ErrSkipRetry)}}

	err := c.handleWithRetry(h, kafka.Message{Topic: h.Topic()})
	assert.ErrorIs(t, err, ErrSkipRetry)
	assert.Equal(t, 1, h.calls)
}

func TestConsumer_PanicIsPermanent(t *testing.T) {
	c := newTestConsumer(t)
	h := &scriptedHandler{panic: true}

	err := c.handleWithRetry(h, kafka.Message{Topic: h.Topic()})
	assert.ErrorIs(t, err, ErrSkipRetry)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 1, h.calls)
}

func TestConsumer_StopAbandonsRetries(t *testing.T) {
	c := newTestConsumer(t, WithConsumerRetry(5, time.Hour, time.Hour))
	require.NoError(t, c.Stop(context.Background()))

	h := &scriptedHandler{errs: []error{errors.New("down")}}
	err := c.handleWithRetry(h, kafka.Message{Topic: h.Topic()})
	assert.ErrorIs(t, err, errAbandoned)
	assert.Equal(t, 1, h.calls)
}

func TestConsumer_HookSeesEveryAttempt(t *testing.T) {
	c := newTestConsumer(t)
	var attempts []int
	c.SetHook(HookFuncs{
		After: func(_ context.Context, _ kafka.Message, attempt int, _ error) {
			attempts = append(attempts, attempt)
		},
	})
	c.SetHook(nil)
	h := &scriptedHandler{errs: []error{errors.New("a")}}

	require.NoError(t, c.handleWithRetry(h, kafka.Message{Topic: h.Topic()}))
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestConsumer_BeforeHookErrorSkipsHandler(t *testing.T) {
	c := newTestConsumer(t, WithConsumerRetry(0, time.Millisecond, time.Millisecond))
	rejected := errors.New("rejected by hook")
	c.SetHook(HookFuncs{
		Before: func(ctx context.Context, _ kafka.Message) (context.Context, error) {
			return ctx, rejected
		},
	})
	h := &scriptedHandler{}

	err := c.handleWithRetry(h, kafka.Message{Topic: h.Topic()})
	assert.ErrorIs(t, err, rejected)
	assert.Zero(t, h.calls)
}

func TestConsumer_Lifecycle(t *testing.T) {
	c := newTestConsumer(t)
	assert.Error(t, c.Start(), "no handlers")

	h := &scriptedHandler{}
	c.RegisterHandler(h)
	c.RegisterHandler(&scriptedHandler{})
	assert.Len(t, c.handlers, 1)
	assert.Same(t, h, c.handlers["kpi-samples"])

	require.NoError(t, c.Stop(context.Background()))
	require.NoError(t, c.Stop(context.Background()))
	assert.Error(t, c.Start(), "stopped consumers do not restart")
}

func TestConsumer_PartitionLocksAreStable(t *testing.T) {
	c := newTestConsumer(t)
	a := c.partitionLock("kpi-samples", 0)
	assert.Same(t, a, c.partitionLock("kpi-samples", 0))
	assert.NotSame(t, a, c.partitionLock("kpi-samples", 1))
	assert.NotSame(t, a, c.partitionLock("other", 0))
}
