package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// ErrSkipRetry marks a handler error as permanent: the message goes straight to the DLQ.
var ErrSkipRetry = errors.New("kafka: permanent handler error")

var errAbandoned = errors.New("kafka: consumer stopping")

// MessageHandler handles the payloads of one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type partitionKey struct {
	topic     string
	partition int
}

// Consumer fetches from one reader per registered topic and fans messages out to a worker pool.
// Offsets are committed once a message is handled or dead-lettered; at most one message per
// partition is in flight.
type Consumer struct {
	cfg     ConsumerConfig
	log     zerolog.Logger
	hook    ConsumerHook
	metrics *clientMetrics

	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	dlq      *kafka.Writer

	queue    chan kafka.Message
	ctx      context.Context
	cancel   context.CancelFunc
	fetchers sync.WaitGroup
	workers  sync.WaitGroup
	stopOnce sync.Once

	mu      sync.Mutex
	started bool
	locks   map[partitionKey]*sync.Mutex
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer: at least one broker is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		cfg:      cfg,
		log:      cfg.Logger.With().Str("component", "kafka_consumer").Logger(),
		hook:     NoopHook{},
		metrics:  kafkaMetrics(),
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]*kafka.Reader),
		queue:    make(chan kafka.Message, cfg.BufferSize),
		ctx:      ctx,
		cancel:   cancel,
		locks:    make(map[partitionKey]*sync.Mutex),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.Hash{}}
	}
	return c, nil
}

// RegisterHandler binds h to its topic. It must be called before Start; the first handler for a topic wins.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, dup := c.handlers[h.Topic()]; dup {
		c.log.Warn().Str("topic", h.Topic()).Msg("handler already registered, ignoring")
		return
	}
	c.handlers[h.Topic()] = h
}

// SetHook replaces the lifecycle hook. Nil keeps the current one.
func (c *Consumer) SetHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start opens the readers and launches the fetch loops and workers. It does not block.
func (c *Consumer) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.started:
		return errors.New("kafka consumer: already started")
	case c.ctx.Err() != nil:
		return errors.New("kafka consumer: stopped")
	case len(c.handlers) == 0:
		return errors.New("kafka consumer: no handlers registered")
	}
	c.started = true

	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			GroupID:  c.cfg.GroupID,
			Topic:    topic,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
	}
	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.workers.Add(1)
		go c.work()
	}
	for topic, r := range c.readers {
		c.fetchers.Add(1)
		go c.fetch(topic, r)
	}
	c.log.Info().
		Int("topics", len(c.readers)).
		Int("workers", c.cfg.WorkerCount).
		Str("group", c.cfg.GroupID).
		Msg("kafka consumer started")
	return nil
}

// Stop halts fetching, lets workers drain what was already fetched, then closes the readers.
// Messages abandoned mid-retry are left uncommitted and will be redelivered.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		c.cancel()
		c.fetchers.Wait()
		close(c.queue)
		err = waitGroup(ctx, &c.workers)

		c.mu.Lock()
		defer c.mu.Unlock()
		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn().Err(cerr).Str("topic", topic).Msg("close reader")
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.log.Warn().Err(cerr).Msg("close dead-letter writer")
			}
		}
		if err == nil {
			c.log.Info().Msg("kafka consumer stopped")
		}
	})
	return err
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for kafka workers: %w", ctx.Err())
	}
}

func (c *Consumer) fetch(topic string, r *kafka.Reader) {
	defer c.fetchers.Done()
	failures := 0
	for {
		msg, err := r.FetchMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			failures++
			c.log.Warn().Err(err).Str("topic", topic).Int("failures", failures).Msg("fetch failed")
			if !c.sleep(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, failures)) {
				return
			}
			continue
		}
		failures = 0

		select {
		case c.queue <- msg:
			c.metrics.backlog.WithLabelValues(topic).Set(float64(len(c.queue)))
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Consumer) work() {
	defer c.workers.Done()
	for msg := range c.queue {
		c.process(msg)
	}
}

func (c *Consumer) process(msg kafka.Message) {
	h, ok := c.handlers[msg.Topic]
	if !ok {
		return
	}
	lock := c.partitionLock(msg.Topic, msg.Partition)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	err := c.handleWithRetry(h, msg)
	c.metrics.observeHandled(msg.Topic, time.Since(start), err)

	switch {
	case err == nil:
	case errors.Is(err, errAbandoned):
		return
	case c.dlq == nil:
		c.log.Error().Err(err).
			Str("topic", msg.Topic).Int("partition", msg.Partition).Int64("offset", msg.Offset).
			Msg("message failed, no dead-letter topic configured")
		return
	default:
		if dlqErr := c.deadLetter(msg, err); dlqErr != nil {
			c.log.Error().Err(dlqErr).Str("dlq", c.cfg.DLQTopic).Msg("dead-letter write failed")
			return
		}
		c.metrics.deadLettered.WithLabelValues(msg.Topic).Inc()
		c.log.Warn().Err(err).
			Str("topic", msg.Topic).Int64("offset", msg.Offset).Str("dlq", c.cfg.DLQTopic).
			Msg("message dead-lettered")
	}
	c.commit(msg)
}

func (c *Consumer) handleWithRetry(h MessageHandler, msg kafka.Message) error {
	for attempt := 1; ; attempt++ {
		err := c.attempt(h, msg, attempt)
		if err == nil || errors.Is(err, ErrSkipRetry) || attempt > c.cfg.RetryMax {
			return err
		}
		if !c.sleep(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			return fmt.Errorf("%w after %d attempts: %w", errAbandoned, attempt, err)
		}
	}
}

func (c *Consumer) attempt(h MessageHandler, msg kafka.Message, n int) error {
	ctx, err := c.hook.BeforeHandle(context.Background(), msg)
	if ctx == nil {
		ctx = context.Background()
	}
	if err == nil {
		err = safeHandle(ctx, h, msg.Value)
	}
	c.hook.AfterHandle(ctx, msg, n, err)
	return err
}

// safeHandle turns a handler panic into a permanent failure.
func safeHandle(ctx context.Context, h MessageHandler, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: handler panic: %v", ErrSkipRetry, r)
		}
	}()
	return h.Handle(ctx, payload)
}

func (c *Consumer) deadLetter(msg kafka.Message, cause error) error {
	headers := make([]kafka.Header, 0, len(msg.Headers)+4)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "source_topic", Value: []byte(msg.Topic)},
		kafka.Header{Key: "source_partition", Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: "source_offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
	)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.dlq.WriteMessages(ctx, kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
		Time:    time.Now(),
	})
}

func (c *Consumer) commit(msg kafka.Message) {
	r := c.readers[msg.Topic]
	const tries = 3
	for i := 1; ; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := r.CommitMessages(ctx, msg)
		cancel()
		if err == nil {
			return
		}
		if i == tries {
			c.log.Error().Err(err).Str("topic", msg.Topic).Int64("offset", msg.Offset).Msg("commit failed")
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, i))
	}
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	key := partitionKey{topic: topic, partition: partition}
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

// sleep waits for d and reports false if the consumer stopped first.
func (c *Consumer) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// backoffWithJitter doubles lo per attempt, caps at hi, and subtracts up to half as jitter.
func backoffWithJitter(lo, hi time.Duration, attempt int) time.Duration {
	if lo <= 0 {
		lo = 50 * time.Millisecond
	}
	if hi < lo {
		hi = lo
	}
	d := lo
	for i := 1; i < attempt && d < hi; i++ {
		d *= 2
	}
	if d > hi {
		d = hi
	}
	if half := d / 2; half > 0 {
		d -= time.Duration(rand.Int63n(int64(half)))
	}
	return d
}
