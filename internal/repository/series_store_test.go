package repository

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"KPISentinel/internal/domain/models"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestSeriesStore_AppendAndSnapshot(t *testing.T) {
	s := NewMemorySeriesStore(3)
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Append("cpu", t0.Add(time.Duration(i)*time.Second), float64(i)))
	}

	snap := s.Snapshot("cpu")
	require.Len(t, snap, 3)
	assert.Equal(t, []float64{3, 4, 5}, models.Values(snap))
	assert.Equal(t, 3, s.Len("cpu"))
}

func TestSeriesStore_UnknownMetric(t *testing.T) {
	s := NewMemorySeriesStore(0)
	assert.Equal(t, DefaultWindowSize, s.Window())

	snap := s.Snapshot("missing")
	assert.NotNil(t, snap)
	assert.Empty(t, snap)
	assert.Equal(t, 0, s.Len("missing"))
	assert.Empty(t, s.ListMetricNames())
}

func TestSeriesStore_RejectsNonFinite(t *testing.T) {
	s := NewMemorySeriesStore(10)
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		err := s.Append("cpu", t0, v)
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrInvalidValue))
		var inErr *models.InputError
		require.True(t, errors.As(err, &inErr))
		assert.Equal(t, "value", inErr.Field)
	}
	assert.Equal(t, 0, s.Len("cpu"))
}

func TestSeriesStore_SnapshotIsCopy(t *testing.T) {
	s := NewMemorySeriesStore(5)
	require.NoError(t, s.Append("cpu", t0, 1))
	snap := s.Snapshot("cpu")
	snap[0].Value = 99

	assert.Equal(t, 1.0, s.Snapshot("cpu")[0].Value)
}

func TestSeriesStore_ArrivalOrderKept(t *testing.T) {
	s := NewMemorySeriesStore(5)
	require.NoError(t, s.Append("cpu", t0.Add(time.Hour), 1))
	require.NoError(t, s.Append("cpu", t0, 2))

	snap := s.Snapshot("cpu")
	assert.Equal(t, []float64{1, 2}, models.Values(snap))
}

func TestSeriesStore_ListMetricNamesSorted(t *testing.T) {
	s := NewMemorySeriesStore(5)
	for _, name := range []string{"mem", "cpu", "disk"} {
		require.NoError(t, s.Append(name, t0, 1))
	}
	assert.Equal(t, []string{"cpu", "disk", "mem"}, s.ListMetricNames())
}

func TestSeriesStore_ConcurrentAppendAndSnapshot(t *testing.T) {
	const (
		writers = 8
		perW    = 500
		window  = 100
	)
	s := NewMemorySeriesStore(window)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			name := fmt.Sprintf("m%d", w%2)
			for i := 0; i < perW; i++ {
				_ = s.Append(name, t0, float64(i))
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perW; i++ {
				snap := s.Snapshot("m0")
				assert.LessOrEqual(t, len(snap), window)
				_ = s.ListMetricNames()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, window, s.Len("m0"))
	assert.Equal(t, window, s.Len("m1"))
}

// Property: the store holds exactly the last min(n, W) appended values, in order.
func TestProperty01_SnapshotIsLastWindow(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := rapid.IntRange(1, 20).Draw(t, "window")
		vals := rapid.SliceOf(rapid.Float64Range(-1e6, 1e6)).Draw(t, "values")

		s := NewMemorySeriesStore(w)
		for i, v := range vals {
			if err := s.Append("m", t0.Add(time.Duration(i)*time.Second), v); err != nil {
				t.Fatalf("append: %v", err)
			}
		}

		want := vals
		if len(want) > w {
			want = want[len(want)-w:]
		}
		got := models.Values(s.Snapshot("m"))
		if len(got) != len(want) {
			t.Fatalf("len = %d, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("index %d: got %v want %v", i, got[i], want[i])
			}
		}
		if s.Len("m") > w {
			t.Fatalf("len %d exceeds window %d", s.Len("m"), w)
		}
	})
}
