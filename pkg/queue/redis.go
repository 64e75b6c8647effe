package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"KPISentinel/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a reliable-enough work queue on three Redis keys:
// a ready list, a delayed sorted set scored by due time (unix ms) and a dead list.
type RedisQueue struct {
	log  *logger.Logger
	cfg  Config
	rdb  *redis.Client
	keys queueKeys

	poll    time.Duration
	promote time.Duration

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	seq    atomic.Uint64
}

type queueKeys struct {
	ready   string
	delayed string
	dead    string
}

func keysFor(prefix string) queueKeys {
	return queueKeys{
		ready:   prefix + ":messages",
		delayed: prefix + ":retry",
		dead:    prefix + ":dlq",
	}
}

type Option func(*RedisQueue)

func WithKeyPrefix(prefix string) Option {
	return func(q *RedisQueue) { q.keys = keysFor(prefix) }
}

// WithPolling sets how long a worker blocks on the ready list and how often due retries are promoted.
func WithPolling(block, promote time.Duration) Option {
	return func(q *RedisQueue) {
		if block > 0 {
			q.poll = block
		}
		if promote > 0 {
			q.promote = promote
		}
	}
}

func NewRedisQueue(l *logger.Logger, cfg Config, rdb *redis.Client, opts ...Option) *RedisQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if l == nil {
		l = logger.NewNop()
	}
	q := &RedisQueue{
		log:     l.With(logger.String("component", "redis_queue")),
		cfg:     cfg,
		rdb:     rdb,
		keys:    keysFor("kpisentinel:queue"),
		poll:    time.Second,
		promote: time.Second,
		jobs:    make(map[string]Job),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// RegisterJob binds job to its message type. The first job for a type wins.
func (q *RedisQueue) RegisterJob(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, dup := q.jobs[job.Type()]; dup {
		q.log.Warn("job already registered", logger.String("type", job.Type()), logger.String("job", job.Name()))
		return
	}
	q.jobs[job.Type()] = job
}

// Start checks connectivity and launches the workers and the retry promoter.
func (q *RedisQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return errors.New("queue already running")
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.rdb.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	q.ctx, q.cancel = context.WithCancel(context.Background())
	q.running = true
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	q.wg.Add(1)
	go q.promoteLoop()

	q.log.Info("redis queue started",
		logger.Int("workers", q.cfg.Workers),
		logger.String("key", q.keys.ready),
		logger.String("addr", q.rdb.Options().Addr))
	return nil
}

// Stop cancels polling and waits for in-flight jobs. Jobs see their context canceled.
func (q *RedisQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.log.Info("redis queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for queue workers: %w", ctx.Err())
	}
}

// Enqueue pushes payload as JSON onto the ready list.
func (q *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	q.mu.RLock()
	running := q.running
	_, known := q.jobs[msgType]
	q.mu.RUnlock()
	if !running {
		return errors.New("queue not running")
	}
	if !known {
		return fmt.Errorf("no job registered for type %q", msgType)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	now := time.Now()
	raw, err := json.Marshal(envelope{
		ID:         strconv.FormatInt(now.UnixNano(), 36) + "-" + strconv.FormatUint(q.seq.Add(1), 10),
		Type:       msgType,
		Payload:    body,
		EnqueuedAt: now.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.keys.ready, raw).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", q.keys.ready, err)
	}
	return nil
}

// PublishMessage implements Publisher.
func (q *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return q.Enqueue(ctx, msgType, payload)
}

func (q *RedisQueue) work() {
	defer q.wg.Done()
	for q.ctx.Err() == nil {
		res, err := q.rdb.BRPop(q.ctx, q.poll, q.keys.ready).Result()
		switch {
		case err == nil:
		case errors.Is(err, redis.Nil), q.ctx.Err() != nil:
			continue
		default:
			q.log.Error("brpop failed", logger.Error(err))
			q.pause(time.Second)
			continue
		}
		if len(res) < 2 {
			continue
		}

		var env envelope
		if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
			q.log.Error("dropping undecodable message", logger.Error(err))
			continue
		}
		q.settle(env, q.run(&env))
	}
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeRetry
	outcomeDead
	outcomeAbandoned
)

// run executes the job for env once and decides what happens to it next.
// On failure env.Attempts and env.LastError are updated.
func (q *RedisQueue) run(env *envelope) outcome {
	q.mu.RLock()
	job, ok := q.jobs[env.Type]
	q.mu.RUnlock()
	if !ok {
		env.LastError = "no job registered for type " + env.Type
		return outcomeDead
	}

	parent := q.ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx := parent
	if q.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, q.cfg.JobTimeout)
		defer cancel()
	}

	err := job.Handle(ctx, env.Payload)
	switch {
	case err == nil:
		return outcomeDone
	case parent.Err() != nil:
		return outcomeAbandoned
	}

	env.Attempts++
	env.LastError = err.Error()
	q.log.Warn("job failed",
		logger.String("id", env.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", env.Attempts),
		logger.Error(err))
	if env.Attempts > q.cfg.RetryLimit {
		return outcomeDead
	}
	return outcomeRetry
}

func (q *RedisQueue) retryAt(env envelope, now time.Time) time.Time {
	return now.Add(time.Duration(env.Attempts) * q.cfg.RetryDelay)
}

// settle records the outcome in Redis. Abandoned messages go back on the ready list.
func (q *RedisQueue) settle(env envelope, o outcome) {
	if o == outcomeDone {
		return
	}
	raw, err := json.Marshal(env)
	if err != nil {
		q.log.Error("marshal envelope", logger.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch o {
	case outcomeRetry:
		due := q.retryAt(env, time.Now())
		err = q.rdb.ZAdd(ctx, q.keys.delayed, redis.Z{Score: float64(due.UnixMilli()), Member: raw}).Err()
	case outcomeDead:
		q.log.Error("message dead-lettered",
			logger.String("id", env.ID),
			logger.String("type", env.Type),
			logger.String("last_error", env.LastError))
		err = q.rdb.LPush(ctx, q.keys.dead, raw).Err()
	case outcomeAbandoned:
		err = q.rdb.RPush(ctx, q.keys.ready, raw).Err()
	}
	if err != nil {
		q.log.Error("settle message", logger.String("id", env.ID), logger.Error(err))
	}
}

func (q *RedisQueue) promoteLoop() {
	defer q.wg.Done()
	t := time.NewTicker(q.promote)
	defer t.Stop()
	for {
		select {
		case <-q.ctx.Done():
			return
		case <-t.C:
			if err := q.promoteDue(time.Now()); err != nil && q.ctx.Err() == nil {
				q.log.Error("promote retries", logger.Error(err))
			}
		}
	}
}

// promoteDue moves retries whose due time has passed back onto the ready list.
func (q *RedisQueue) promoteDue(now time.Time) error {
	due, err := q.rdb.ZRangeByScore(q.ctx, q.keys.delayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return err
	}
	for _, member := range due {
		// ZRem decides ownership when several instances promote concurrently.
		removed, err := q.rdb.ZRem(q.ctx, q.keys.delayed, member).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		if err := q.rdb.LPush(q.ctx, q.keys.ready, member).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (q *RedisQueue) pause(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-q.ctx.Done():
	}
}
