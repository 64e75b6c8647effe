package service

import (
	"KPISentinel/internal/domain/models"
)

// AnomalyClassifier classifies the newest sample of a series against the rest.
type AnomalyClassifier interface {
	Classify(samples []models.Sample) models.Verdict
}

// Forecaster produces a one-step-ahead estimate from ordered values.
type Forecaster interface {
	Forecast(values []float64) models.Forecast
}

// Analyzer is the full analysis engine.
type Analyzer interface {
	AnomalyClassifier
	Forecaster
}
