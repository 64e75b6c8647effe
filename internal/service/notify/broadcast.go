package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"KPISentinel/internal/domain/models"
	applogger "KPISentinel/pkg/logger"
)

const MessageTypeAlert = "alert"

// BroadcastMessage is the frame pushed to live subscribers.
type BroadcastMessage struct {
	Type      string       `json:"type"`
	Alert     models.Alert `json:"alert"`
	Timestamp time.Time    `json:"timestamp"`
}

// Subscription is one live subscriber. C is closed when the subscriber is dropped.
type Subscription struct {
	C  <-chan []byte
	ch chan []byte
	id uint64
}

// Broadcaster fans alerts out to in-process subscribers such as WebSocket clients.
// A subscriber whose buffer is full is dropped rather than blocking the monitor.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
	closed bool
	logger *applogger.Logger
}

func NewBroadcaster(buffer int, l *applogger.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = 32
	}
	return &Broadcaster{subs: make(map[uint64]*Subscription), buffer: buffer, logger: l}
}

func (b *Broadcaster) Name() string { return "websocket" }

// Subscribe registers a new subscriber. The returned func unsubscribes; it is safe to call twice.
func (b *Broadcaster) Subscribe() (*Subscription, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan []byte, b.buffer)
	if b.closed {
		close(ch)
		return &Subscription{C: ch, ch: ch}, func() {}
	}
	b.nextID++
	sub := &Subscription{C: ch, ch: ch, id: b.nextID}
	b.subs[sub.id] = sub
	return sub, func() { b.drop(sub.id) }
}

// Subscribers returns the number of live subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) Notify(_ context.Context, a models.Alert) error {
	frame, err := json.Marshal(BroadcastMessage{Type: MessageTypeAlert, Alert: a, Timestamp: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		select {
		case sub.ch <- frame:
		default:
			delete(b.subs, id)
			close(sub.ch)
			b.logger.Warn("dropping slow subscriber", applogger.Int64("subscriber", int64(id)))
		}
	}
	return nil
}

func (b *Broadcaster) drop(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// Close disconnects every subscriber.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
	return nil
}
