package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"KPISentinel/internal/domain/models"
	domrepo "KPISentinel/internal/domain/repository"
	pkgch "KPISentinel/pkg/clickhouse"
	applogger "KPISentinel/pkg/logger"
)

// AlertLogSchema returns the idempotent DDL for the alert audit table.
func AlertLogSchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            metric      LowCardinality(String),
            ts          DateTime64(3, 'UTC'),
            value       Float64,
            direction   LowCardinality(String),
            mean        Float64,
            std_dev     Float64,
            reason      String,
            detected_at DateTime64(3, 'UTC')
        ) ENGINE = MergeTree ORDER BY (metric, detected_at)`, database, table),
	}
}

// CHAlertLog implements AlertLog backed by ClickHouse.
type CHAlertLog struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

// NewCHAlertLog writes to database.table; the schema must already exist.
func NewCHAlertLog(ch *pkgch.Client, database, table string) *CHAlertLog {
	return &CHAlertLog{db: ch.DB(), table: database + "." + table}
}

// SetLogger injects a structured logger.
func (s *CHAlertLog) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHAlertLog) Insert(ctx context.Context, a models.Alert) error {
	q := fmt.Sprintf("INSERT INTO %s (metric, ts, value, direction, mean, std_dev, reason, detected_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q,
		a.Metric,
		a.Timestamp.UTC(),
		a.Value,
		string(a.Direction),
		a.Mean,
		a.StdDev,
		a.Reason,
		a.DetectedAt.UTC(),
	)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse insert alert error",
				applogger.String("table", s.table),
				applogger.String("metric", a.Metric),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// Recent returns the newest alerts for a metric, newest first. An empty metric matches all.
func (s *CHAlertLog) Recent(ctx context.Context, metric string, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	q := fmt.Sprintf(`
        SELECT metric, ts, value, direction, mean, std_dev, reason, detected_at
        FROM %s
        WHERE (? = '' OR metric = ?)
        ORDER BY detected_at DESC
        LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, metric, metric, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	out := make([]models.Alert, 0, limit)
	for rows.Next() {
		var (
			a   models.Alert
			dir string
			ts  time.Time
			det time.Time
		)
		if err := rows.Scan(&a.Metric, &ts, &a.Value, &dir, &a.Mean, &a.StdDev, &a.Reason, &det); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Direction = models.Direction(dir)
		a.Timestamp = ts.UTC()
		a.DetectedAt = det.UTC()
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHAlertLog) Close() error {
	return nil // Managed by pkg
}

var _ domrepo.AlertLog = (*CHAlertLog)(nil)
