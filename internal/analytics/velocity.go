package analytics

import (
	"context"
	"fmt"
	"time"
)

// TrendUnknown is reported when there is no sprint history to compare.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
	TrendUnknown   = "unknown"
)

// SprintVelocity is one sprint's contribution to a velocity history.
type SprintVelocity struct {
	SprintID        int64   `json:"sprint_id"`
	TrackerSprintID int64   `json:"tracker_sprint_id"`
	SprintName      string  `json:"sprint_name"`
	CompletedPoints float64 `json:"completed_points"`
	DurationDays    float64 `json:"duration_days"`
	Velocity        float64 `json:"velocity"` // points per day
}

// VelocityReport is a project's velocity history with statistics and a
// next-sprint forecast.
type VelocityReport struct {
	ProjectKey       string           `json:"project_key"`
	Sprints          []SprintVelocity `json:"sprints"` // oldest first
	MeanVelocity     float64          `json:"mean_velocity"`
	StdDev           float64          `json:"std_dev"`
	Consistency      float64          `json:"consistency"` // 0..100
	TrendDirection   string           `json:"trend_direction"`
	ForecastVelocity float64          `json:"forecast_velocity"`
	ConfidenceLow    float64          `json:"confidence_low"`
	ConfidenceHigh   float64          `json:"confidence_high"`
}

// ProjectVelocityWithHistory computes velocity per sprint for the last
// sprintCount sprints of a project and derives the trend and forecast.
// A project with no sprint history yields an empty report with trend
// "unknown" rather than an error.
func (e *Engine) ProjectVelocityWithHistory(ctx context.Context, projectKey string, sprintCount int, includeCurrent bool) (*VelocityReport, error) {
	if sprintCount <= 0 {
		sprintCount = 5
	}
	ws, err := e.workstreamByKey(ctx, projectKey)
	if err != nil {
		return nil, err
	}
	sprints, err := e.projectSprints(ctx, ws.ID, sprintCount, includeCurrent)
	if err != nil {
		return nil, err
	}

	report := &VelocityReport{
		ProjectKey:     projectKey,
		Sprints:        []SprintVelocity{},
		TrendDirection: TrendUnknown,
	}
	now := time.Now().UTC()
	var velocities []float64
	for _, s := range sprints {
		issues, err := e.sprintIssues(ctx, projectKey, s.TrackerSprintID)
		if err != nil {
			return nil, fmt.Errorf("issues for sprint %s: %w", s.Name, err)
		}
		var completed float64
		for _, issue := range issues {
			if isDone(issue) {
				completed += storyPoints(issue)
			}
		}
		duration := s.DurationDays(now)
		velocity := completed / duration
		velocities = append(velocities, velocity)
		report.Sprints = append(report.Sprints, SprintVelocity{
			SprintID:        s.ID,
			TrackerSprintID: s.TrackerSprintID,
			SprintName:      s.Name,
			CompletedPoints: completed,
			DurationDays:    duration,
			Velocity:        velocity,
		})
	}
	if len(velocities) == 0 {
		return report, nil
	}

	report.MeanVelocity = mean(velocities)
	report.StdDev = stdDev(velocities, report.MeanVelocity)
	report.Consistency = consistency(report.MeanVelocity, report.StdDev)
	report.TrendDirection = trendDirection(velocities)
	report.ForecastVelocity = report.MeanVelocity
	report.ConfidenceLow = report.MeanVelocity - report.StdDev
	if report.ConfidenceLow < 0 {
		report.ConfidenceLow = 0
	}
	report.ConfidenceHigh = report.MeanVelocity + report.StdDev
	return report, nil
}

// consistency is 100 minus the coefficient of variation, floored at 0.
func consistency(m, std float64) float64 {
	if m == 0 {
		return 0
	}
	c := 100 - std/m*100
	if c < 0 {
		return 0
	}
	return c
}

// trendDirection compares the mean of the earliest three sprints to the
// mean of the latest three. A shift beyond 10% in either direction marks
// the trend.
func trendDirection(velocities []float64) string {
	if len(velocities) < 2 {
		return TrendStable
	}
	n := 3
	if len(velocities) < n {
		n = len(velocities)
	}
	early := mean(velocities[:n])
	late := mean(velocities[len(velocities)-n:])
	switch {
	case early == 0 && late > 0:
		return TrendImproving
	case early == 0:
		return TrendStable
	case late > early*1.10:
		return TrendImproving
	case late < early*0.90:
		return TrendDeclining
	default:
		return TrendStable
	}
}
