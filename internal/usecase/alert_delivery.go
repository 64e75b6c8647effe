package usecase

import (
	"context"
	"fmt"

	"KPISentinel/internal/domain/models"
	domrepo "KPISentinel/internal/domain/repository"
	domsvc "KPISentinel/internal/domain/service"
	"KPISentinel/pkg/queue"
)

// AlertDeliveryType is the queue message type carrying a models.Alert.
const AlertDeliveryType = "alert.deliver"

// AlertDeliveryJob drains queued alerts into a downstream sink. Errors are
// returned so the queue retries and eventually dead-letters the alert.
type AlertDeliveryJob struct {
	target  domsvc.NotificationSink
	metrics domrepo.Metrics
}

func NewAlertDeliveryJob(target domsvc.NotificationSink, metrics domrepo.Metrics) *AlertDeliveryJob {
	return &AlertDeliveryJob{target: target, metrics: metrics}
}

func (j *AlertDeliveryJob) Name() string { return "alert-delivery-" + j.target.Name() }

func (j *AlertDeliveryJob) Type() string { return AlertDeliveryType }

func (j *AlertDeliveryJob) Handle(ctx context.Context, payload interface{}) error {
	alert, err := queue.ParsePayload[models.Alert](payload)
	if err != nil {
		return fmt.Errorf("alert payload: %w", err)
	}
	if err := j.target.Notify(ctx, *alert); err != nil {
		j.metrics.RecordSinkError(j.target.Name())
		return fmt.Errorf("deliver %s alert for %s: %w", alert.Direction, alert.Metric, err)
	}
	return nil
}

var _ queue.Job = (*AlertDeliveryJob)(nil)
