package analytics

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"time"
)

// ErrNoVelocityData is returned when a forecast has no positive velocity
// history to sample from.
var ErrNoVelocityData = errors.New("no positive velocity history")

// RiskLevel buckets for forecast risk.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Quantile is one confidence level of a completion forecast.
type Quantile struct {
	Level         float64   `json:"level"` // e.g. 0.5
	Days          float64   `json:"days"`
	ProjectedDate time.Time `json:"projected_date"`
}

// CompletionForecast is the result of a Monte-Carlo completion simulation.
type CompletionForecast struct {
	ProjectKey      string     `json:"project_key"`
	RemainingPoints float64    `json:"remaining_points"`
	Runs            int        `json:"runs"`
	MeanVelocity    float64    `json:"mean_velocity"`
	VelocityStdDev  float64    `json:"velocity_std_dev"`
	MeanDays        float64    `json:"mean_days"`
	Quantiles       []Quantile `json:"quantiles"`
	RiskProbability float64    `json:"risk_probability"` // P(days > 1.5 x mean)
	RiskLevel       string     `json:"risk_level"`
}

// DefaultConfidenceLevels are used when the caller passes none.
var DefaultConfidenceLevels = []float64{0.5, 0.8, 0.95}

// MonteCarloCompletionForecast simulates completion of remainingPoints by
// sampling velocity from the project's history. The seed makes runs
// reproducible; quantile days are non-decreasing in confidence level.
func (e *Engine) MonteCarloCompletionForecast(ctx context.Context, projectKey string, remainingPoints float64, runs int, levels []float64, seed int64) (*CompletionForecast, error) {
	if runs <= 0 {
		runs = 1000
	}
	if len(levels) == 0 {
		levels = DefaultConfidenceLevels
	}
	if remainingPoints <= 0 {
		return nil, errors.New("remaining points must be positive")
	}

	history, err := e.ProjectVelocityWithHistory(ctx, projectKey, 5, true)
	if err != nil {
		return nil, err
	}
	hasPositive := false
	for _, s := range history.Sprints {
		if s.Velocity > 0 {
			hasPositive = true
			break
		}
	}
	if !hasPositive {
		return nil, ErrNoVelocityData
	}

	rng := rand.New(rand.NewSource(seed))
	days := make([]float64, runs)
	var total float64
	for i := 0; i < runs; i++ {
		v := rng.NormFloat64()*history.StdDev + history.MeanVelocity
		if v < 0.1 {
			v = 0.1
		}
		days[i] = remainingPoints / v
		total += days[i]
	}
	sort.Float64s(days)
	meanDays := total / float64(runs)

	now := time.Now().UTC()
	forecast := &CompletionForecast{
		ProjectKey:      projectKey,
		RemainingPoints: remainingPoints,
		Runs:            runs,
		MeanVelocity:    history.MeanVelocity,
		VelocityStdDev:  history.StdDev,
		MeanDays:        meanDays,
	}
	for _, level := range levels {
		idx := int(level*float64(runs)) - 1
		if idx < 0 {
			idx = 0
		}
		if idx >= runs {
			idx = runs - 1
		}
		d := days[idx]
		forecast.Quantiles = append(forecast.Quantiles, Quantile{
			Level:         level,
			Days:          d,
			ProjectedDate: now.Add(time.Duration(d * 24 * float64(time.Hour))),
		})
	}

	threshold := 1.5 * meanDays
	over := 0
	for _, d := range days {
		if d > threshold {
			over++
		}
	}
	forecast.RiskProbability = float64(over) / float64(runs)
	switch {
	case forecast.RiskProbability > 0.30:
		forecast.RiskLevel = RiskHigh
	case forecast.RiskProbability > 0.10:
		forecast.RiskLevel = RiskMedium
	default:
		forecast.RiskLevel = RiskLow
	}
	return forecast, nil
}
