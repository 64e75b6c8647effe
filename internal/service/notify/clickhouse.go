package notify

import (
	"context"
	"fmt"

	"KPISentinel/internal/domain/models"
	domrepo "KPISentinel/internal/domain/repository"
)

// ClickHouseSink appends alerts to the alert log table.
type ClickHouseSink struct {
	log domrepo.AlertLog
}

func NewClickHouseSink(log domrepo.AlertLog) *ClickHouseSink {
	return &ClickHouseSink{log: log}
}

func (s *ClickHouseSink) Name() string { return "clickhouse" }

func (s *ClickHouseSink) Notify(ctx context.Context, a models.Alert) error {
	if err := s.log.Insert(ctx, a); err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}
