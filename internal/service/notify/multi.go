package notify

import (
	"context"
	"errors"
	"fmt"
	"io"

	"KPISentinel/internal/domain/models"
	domrepo "KPISentinel/internal/domain/repository"
	domsvc "KPISentinel/internal/domain/service"
)

// Multi fans an alert out to every sink. All sinks are attempted even when some fail.
type Multi struct {
	sinks   []domsvc.NotificationSink
	metrics domrepo.Metrics
}

func NewMulti(metrics domrepo.Metrics, sinks ...domsvc.NotificationSink) *Multi {
	out := make([]domsvc.NotificationSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Multi{sinks: out, metrics: metrics}
}

func (m *Multi) Name() string { return "multi" }

// Sinks returns the configured sink names, in delivery order.
func (m *Multi) Sinks() []string {
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = s.Name()
	}
	return names
}

func (m *Multi) Notify(ctx context.Context, alert models.Alert) error {
	var errs []error
	for _, s := range m.sinks {
		if err := m.notifyOne(ctx, s, alert); err != nil {
			m.metrics.RecordSinkError(s.Name())
			errs = append(errs, fmt.Errorf("%s sink: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) notifyOne(ctx context.Context, s domsvc.NotificationSink, alert models.Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Notify(ctx, alert)
}

// Close closes every sink that holds resources.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s sink: %w", s.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

var _ domsvc.NotificationSink = (*Multi)(nil)
