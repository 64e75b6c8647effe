package models

import "time"

// Alert is emitted once per scan pass for every metric with a HIGH or LOW verdict.
type Alert struct {
	Metric     string    `json:"metric_name"`
	Timestamp  time.Time `json:"timestamp"`
	Value      float64   `json:"value"`
	Direction  Direction `json:"direction"`
	Mean       float64   `json:"mean"`
	StdDev     float64   `json:"std_dev"`
	Reason     string    `json:"reason"`
	DetectedAt time.Time `json:"detected_at"`
}

// NewAlert builds an alert from an anomalous verdict.
func NewAlert(metric string, v Verdict, detectedAt time.Time) Alert {
	return Alert{
		Metric:     metric,
		Timestamp:  v.Timestamp,
		Value:      v.Value,
		Direction:  v.Direction,
		Mean:       v.Mean,
		StdDev:     v.StdDev,
		Reason:     v.Reason,
		DetectedAt: detectedAt,
	}
}
