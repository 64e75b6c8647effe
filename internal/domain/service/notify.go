package service

import (
	"context"

	"KPISentinel/internal/domain/models"
)

// NotificationSink delivers alerts. Failures are reported to the caller and are never fatal.
type NotificationSink interface {
	Name() string
	Notify(ctx context.Context, alert models.Alert) error
}
