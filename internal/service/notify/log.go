package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"KPISentinel/internal/domain/models"
	applogger "KPISentinel/pkg/logger"
)

// FormatAlertLine renders the console form of an alert, stamped with the triggering sample time.
func FormatAlertLine(a models.Alert) string {
	return fmt.Sprintf("[ALERT] %s: KPI '%s' anomaly detected. Value=%s. Reason: %s",
		a.Timestamp.Format(time.RFC3339), a.Metric, strconv.FormatFloat(a.Value, 'f', -1, 64), a.Reason)
}

// LogSink writes alerts to the structured log. It never fails.
type LogSink struct {
	logger *applogger.Logger
}

func NewLogSink(l *applogger.Logger) *LogSink {
	return &LogSink{logger: l}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Notify(_ context.Context, a models.Alert) error {
	s.logger.Warn(FormatAlertLine(a),
		applogger.String("metric", a.Metric),
		applogger.String("direction", string(a.Direction)),
		applogger.Float64("value", a.Value),
		applogger.Float64("mean", a.Mean),
		applogger.Float64("std_dev", a.StdDev),
		applogger.Time("sample_ts", a.Timestamp),
	)
	return nil
}
