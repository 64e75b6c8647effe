package analytics

import (
	"fmt"

	"github.com/montanaflynn/stats"

	"KPISentinel/internal/domain/models"
	domsvc "KPISentinel/internal/domain/service"
)

const (
	// DefaultK is the band half-width in standard deviations.
	DefaultK = 2.0
	// DefaultMinSamples is the smallest series that can be classified.
	DefaultMinSamples = 10
	// DefaultAlpha is the exponential smoothing factor.
	DefaultAlpha = 0.3
)

// Analyzer classifies the newest sample against the preceding ones and forecasts
// with exponential smoothing. The zero value is not usable; use NewAnalyzer.
type Analyzer struct {
	K          float64
	MinSamples int
	Alpha      float64
}

// NewAnalyzer builds an Analyzer, substituting defaults for non-positive arguments.
func NewAnalyzer(k float64, minSamples int, alpha float64) *Analyzer {
	if k <= 0 {
		k = DefaultK
	}
	if minSamples < 2 {
		minSamples = DefaultMinSamples
	}
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &Analyzer{K: k, MinSamples: minSamples, Alpha: alpha}
}

var defaultAnalyzer = NewAnalyzer(DefaultK, DefaultMinSamples, DefaultAlpha)

// Classify uses the default parameters.
func Classify(samples []models.Sample) models.Verdict {
	return defaultAnalyzer.Classify(samples)
}

// Forecast smooths values with the given alpha.
func Forecast(values []float64, alpha float64) models.Forecast {
	if len(values) == 0 {
		return models.Forecast{}
	}
	s := values[0]
	for _, v := range values[1:] {
		s = alpha*v + (1-alpha)*s
	}
	return models.Forecast{Value: s, Available: true}
}

// Classify compares the last sample with the population mean and standard deviation
// of all earlier samples. Values exactly on the band edge are not anomalous.
func (a *Analyzer) Classify(samples []models.Sample) models.Verdict {
	if len(samples) < a.MinSamples {
		return models.Verdict{Status: models.VerdictInsufficientData}
	}
	last := samples[len(samples)-1]
	ref := models.Values(samples[:len(samples)-1])

	mean, err := stats.Mean(ref)
	if err != nil {
		return models.Verdict{Status: models.VerdictInsufficientData}
	}
	// A flat reference has zero spread even when the float mean is off by an ulp.
	lo, _ := stats.Min(ref)
	hi, _ := stats.Max(ref)
	std, err := stats.StandardDeviationPopulation(ref)
	if err != nil || std == 0 || lo == hi {
		return models.Verdict{Status: models.VerdictNoAnomaly}
	}

	var dir models.Direction
	switch {
	case last.Value > mean+a.K*std:
		dir = models.DirectionHigh
	case last.Value < mean-a.K*std:
		dir = models.DirectionLow
	default:
		return models.Verdict{Status: models.VerdictNoAnomaly}
	}
	return models.Verdict{
		Status:    models.VerdictAnomaly,
		Direction: dir,
		Timestamp: last.Timestamp,
		Value:     last.Value,
		Mean:      mean,
		StdDev:    std,
		Reason:    fmt.Sprintf("value %.2f is unusually %s (mean=%.2f, std=%.2f)", last.Value, dir, mean, std),
	}
}

// Forecast applies the analyzer's alpha.
func (a *Analyzer) Forecast(values []float64) models.Forecast {
	return Forecast(values, a.Alpha)
}

var _ domsvc.Analyzer = (*Analyzer)(nil)
