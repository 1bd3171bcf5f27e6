package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/scullers68/sprint-reports/internal/types"
)

// BurndownPoint is one dated observation of a project's sprint progress.
type BurndownPoint struct {
	Date            time.Time `json:"date"`
	TotalPoints     float64   `json:"total_points"`
	CompletedPoints float64   `json:"completed_points"`
	RemainingPoints float64   `json:"remaining_points"`
	IdealRemaining  float64   `json:"ideal_remaining"`
	InProgress      int       `json:"in_progress_issues"`
	Blocked         int       `json:"blocked_issues"`
	Velocity        float64   `json:"velocity"`
	Completion      float64   `json:"completion_percentage"`
}

// BurnupPoint extends a burndown observation with scope movement.
type BurnupPoint struct {
	Date                time.Time `json:"date"`
	CumulativeCompleted float64   `json:"cumulative_completed"`
	ScopeAdded          float64   `json:"scope_added"`
	ScopeRemoved        float64   `json:"scope_removed"`
	NetScopeChange      float64   `json:"net_scope_change"`
	TotalScope          float64   `json:"total_scope"`
}

// BurndownReport is the chart-ready series for one (sprint, project) pair.
type BurndownReport struct {
	ProjectKey string          `json:"project_key"`
	SprintID   int64           `json:"sprint_id"`
	Points     []BurndownPoint `json:"points"`
	Burnup     []BurnupPoint   `json:"burnup,omitempty"`
	Live       bool            `json:"live"` // true when derived from live issues
}

// ProjectBurndown builds the burndown (and optional burnup) series from
// the recorded ProjectSprintMetrics rows. When no rows exist, a single
// current point is derived from live tracker issues.
func (e *Engine) ProjectBurndown(ctx context.Context, projectKey string, sprintID int64, includeBurnup bool) (*BurndownReport, error) {
	ws, err := e.workstreamByKey(ctx, projectKey)
	if err != nil {
		return nil, err
	}
	sprint, err := e.store.GetSprint(ctx, sprintID)
	if err != nil {
		return nil, fmt.Errorf("sprint %d: %w", sprintID, err)
	}

	metrics, err := e.store.ListMetrics(ctx, sprintID, ws.ID)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}

	report := &BurndownReport{ProjectKey: projectKey, SprintID: sprintID}
	if len(metrics) == 0 {
		point, err := e.liveBurndownPoint(ctx, projectKey, sprint)
		if err != nil {
			return nil, err
		}
		report.Points = []BurndownPoint{point}
		report.Live = true
		return report, nil
	}

	initialTotal := metrics[0].TotalStoryPoints
	for _, m := range metrics {
		remaining := m.TotalStoryPoints - m.CompletedStoryPoints
		report.Points = append(report.Points, BurndownPoint{
			Date:            m.MetricsDate,
			TotalPoints:     m.TotalStoryPoints,
			CompletedPoints: m.CompletedStoryPoints,
			RemainingPoints: remaining,
			IdealRemaining:  idealRemaining(sprint, m.MetricsDate, initialTotal),
			InProgress:      m.InProgressIssues,
			Blocked:         m.BlockedIssues,
			Velocity:        m.Velocity,
			Completion:      m.CompletionPercentage,
		})
		if includeBurnup {
			report.Burnup = append(report.Burnup, BurnupPoint{
				Date:                m.MetricsDate,
				CumulativeCompleted: m.CompletedStoryPoints,
				ScopeAdded:          m.ScopeAddedPoints,
				ScopeRemoved:        m.ScopeRemovedPoints,
				NetScopeChange:      m.ScopeAddedPoints - m.ScopeRemovedPoints,
				TotalScope:          m.TotalStoryPoints,
			})
		}
	}
	return report, nil
}

// idealRemaining is the linear line from the initial total at sprint
// start to zero at sprint end.
func idealRemaining(sprint *types.Sprint, at time.Time, initialTotal float64) float64 {
	if sprint.StartDate == nil || sprint.EndDate == nil {
		return initialTotal
	}
	total := sprint.EndDate.Sub(*sprint.StartDate)
	if total <= 0 {
		return 0
	}
	elapsed := at.Sub(*sprint.StartDate)
	if elapsed <= 0 {
		return initialTotal
	}
	if elapsed >= total {
		return 0
	}
	return initialTotal * (1 - elapsed.Seconds()/total.Seconds())
}

// liveBurndownPoint derives one current observation from tracker issues.
func (e *Engine) liveBurndownPoint(ctx context.Context, projectKey string, sprint *types.Sprint) (BurndownPoint, error) {
	issues, err := e.sprintIssues(ctx, projectKey, sprint.TrackerSprintID)
	if err != nil {
		return BurndownPoint{}, fmt.Errorf("live issues: %w", err)
	}

	var total, completed float64
	inProgress, blocked := 0, 0
	for _, issue := range issues {
		pts := storyPoints(issue)
		total += pts
		switch {
		case isDone(issue):
			completed += pts
		case isBlocked(issue):
			blocked++
		default:
			inProgress++
		}
	}

	completion := 0.0
	if total > 0 {
		completion = completed / total * 100
	}
	now := time.Now().UTC()
	return BurndownPoint{
		Date:            now,
		TotalPoints:     total,
		CompletedPoints: completed,
		RemainingPoints: total - completed,
		IdealRemaining:  idealRemaining(sprint, now, total),
		InProgress:      inProgress,
		Blocked:         blocked,
		Velocity:        completed / sprint.DurationDays(now),
		Completion:      completion,
	}, nil
}
