package models

import "time"

// VerdictStatus classifies the outcome of an anomaly check.
type VerdictStatus string

const (
	VerdictInsufficientData VerdictStatus = "insufficient_data"
	VerdictNoAnomaly        VerdictStatus = "no_anomaly"
	VerdictAnomaly          VerdictStatus = "anomaly"
)

// Direction tells on which side of the band an anomalous value fell.
type Direction string

const (
	DirectionHigh Direction = "HIGH"
	DirectionLow  Direction = "LOW"
)

// Verdict is derived from a series snapshot, never stored.
// Direction, Timestamp, Value, Mean, StdDev and Reason are only set for VerdictAnomaly.
type Verdict struct {
	Status    VerdictStatus `json:"status"`
	Direction Direction     `json:"direction,omitempty"`
	Timestamp time.Time     `json:"timestamp,omitzero"`
	Value     float64       `json:"value,omitempty"`
	Mean      float64       `json:"mean,omitempty"`
	StdDev    float64       `json:"std_dev,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

// IsAnomaly reports whether the verdict is HIGH or LOW.
func (v Verdict) IsAnomaly() bool { return v.Status == VerdictAnomaly }

// Forecast is a one-step-ahead estimate. Available is false for an empty series.
type Forecast struct {
	Value     float64 `json:"value"`
	Available bool    `json:"available"`
}
