package repository

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"KPISentinel/internal/domain/models"
	domrepo "KPISentinel/internal/domain/repository"
)

// DefaultWindowSize is the number of samples retained per metric.
const DefaultWindowSize = 100

// ringBuffer is a fixed-capacity circular buffer of samples in arrival order.
type ringBuffer struct {
	data []models.Sample
	head int
	size int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{data: make([]models.Sample, capacity)}
}

func (rb *ringBuffer) push(s models.Sample) {
	capacity := len(rb.data)
	rb.data[(rb.head+rb.size)%capacity] = s
	if rb.size < capacity {
		rb.size++
		return
	}
	rb.head = (rb.head + 1) % capacity
}

func (rb *ringBuffer) slice() []models.Sample {
	out := make([]models.Sample, rb.size)
	for i := 0; i < rb.size; i++ {
		out[i] = rb.data[(rb.head+i)%len(rb.data)]
	}
	return out
}

type series struct {
	mu  sync.Mutex
	buf *ringBuffer
}

// MemorySeriesStore keeps the last W samples of every metric in memory.
// The name index is write-locked only when a metric is first seen; each
// series carries its own lock so distinct metrics never contend on append.
type MemorySeriesStore struct {
	mu     sync.RWMutex
	series map[string]*series
	window int
}

// NewMemorySeriesStore creates a store with window w (DefaultWindowSize when w <= 0).
func NewMemorySeriesStore(w int) *MemorySeriesStore {
	if w <= 0 {
		w = DefaultWindowSize
	}
	return &MemorySeriesStore{series: make(map[string]*series), window: w}
}

// Window returns the per-metric capacity.
func (s *MemorySeriesStore) Window() int { return s.window }

// Append records a sample, creating the series on first use and evicting the oldest when full.
// Timestamps are not ordered; arrival order is what is kept.
func (s *MemorySeriesStore) Append(name string, ts time.Time, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return models.NewInputError("value", "ERR_INVALID_VALUE", fmt.Errorf("%w: got %v", models.ErrInvalidValue, value))
	}
	sr := s.getOrCreate(name)
	sr.mu.Lock()
	sr.buf.push(models.Sample{Timestamp: ts, Value: value})
	sr.mu.Unlock()
	return nil
}

// Snapshot returns a point-in-time copy of the series. Unknown metrics yield an empty slice.
func (s *MemorySeriesStore) Snapshot(name string) []models.Sample {
	sr := s.get(name)
	if sr == nil {
		return []models.Sample{}
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.buf.slice()
}

// ListMetricNames returns the known metric names, sorted.
func (s *MemorySeriesStore) ListMetricNames() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.series))
	for name := range s.series {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Len returns the number of retained samples for a metric.
func (s *MemorySeriesStore) Len(name string) int {
	sr := s.get(name)
	if sr == nil {
		return 0
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.buf.size
}

func (s *MemorySeriesStore) get(name string) *series {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.series[name]
}

func (s *MemorySeriesStore) getOrCreate(name string) *series {
	if sr := s.get(name); sr != nil {
		return sr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sr, ok := s.series[name]; ok {
		return sr
	}
	sr := &series{buf: newRingBuffer(s.window)}
	s.series[name] = sr
	return sr
}

var _ domrepo.SeriesStore = (*MemorySeriesStore)(nil)
