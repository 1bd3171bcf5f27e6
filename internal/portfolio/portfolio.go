// Package portfolio owns the meta-board data model: project workstreams
// associated with sprints, per-project roll-ups, and portfolio-level
// health.
package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/scullers68/sprint-reports/internal/analytics"
	"github.com/scullers68/sprint-reports/internal/storage"
	"github.com/scullers68/sprint-reports/internal/types"
)

// Health buckets for a project within a sprint.
const (
	HealthOnTrack   = "on_track"
	HealthAtRisk    = "at_risk"
	HealthBehind    = "behind"
	HealthBlocked   = "blocked"
	HealthCompleted = "completed"
)

// Overall portfolio health.
const (
	PortfolioHealthy  = "healthy"
	PortfolioAtRisk   = "at_risk"
	PortfolioCritical = "critical"
)

// Filters narrow which workstreams a portfolio includes.
type Filters struct {
	WorkstreamType types.WorkstreamType // "" = any
	Category       string               // "" = any
}

// ProjectMetrics is one project's live figures within the sprint.
type ProjectMetrics struct {
	TotalIssues     int     `json:"total_issues"`
	CompletedIssues int     `json:"completed_issues"`
	InProgress      int     `json:"in_progress_issues"`
	Blocked         int     `json:"blocked_issues"`
	TotalPoints     float64 `json:"total_points"`
	CompletedPoints float64 `json:"completed_points"`
	Completion      float64 `json:"completion_percentage"`
}

// ProjectSummary is one workstream's entry in a portfolio view.
type ProjectSummary struct {
	ProjectKey      string               `json:"project_key"`
	ProjectName     string               `json:"project_name"`
	WorkstreamType  types.WorkstreamType `json:"workstream_type"`
	AssociationType types.AssociationType `json:"association_type"`
	Priority        int                  `json:"priority"`
	Metrics         ProjectMetrics       `json:"metrics"`
	Health          string               `json:"health"`
	RiskScore       float64              `json:"risk_score"`
}

// HealthIndicator is one portfolio-level gauge with its target.
type HealthIndicator struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Target float64 `json:"target"`
	Status string  `json:"status"` // on_track | at_risk | behind
}

// Portfolio is the aggregated cross-project view for one sprint.
type Portfolio struct {
	BoardID           int64             `json:"board_id"`
	SprintID          int64             `json:"sprint_id"`
	SprintName        string            `json:"sprint_name"`
	Projects          []ProjectSummary  `json:"projects"`
	HealthCounts      map[string]int    `json:"health_counts"`
	OverallCompletion float64           `json:"overall_completion"`
	AverageRisk       float64           `json:"average_risk"`
	OverallHealth     string            `json:"overall_health"`
	Indicators        []HealthIndicator `json:"indicators"`
}

// Aggregator composes portfolio views from local associations plus the
// analytics engine's per-project figures.
type Aggregator struct {
	store     storage.Storage
	analytics *analytics.Engine
}

// New creates an Aggregator.
func New(store storage.Storage, engine *analytics.Engine) *Aggregator {
	return &Aggregator{store: store, analytics: engine}
}

// GetProjectPortfolio builds the cross-project roll-up for a board's
// sprint (explicit, or the most recent active one).
func (a *Aggregator) GetProjectPortfolio(ctx context.Context, boardID, sprintID int64, filters Filters) (*Portfolio, error) {
	sprint, err := a.resolveSprint(ctx, boardID, sprintID)
	if err != nil {
		return nil, err
	}
	assocs, err := a.store.ListAssociationsBySprint(ctx, sprint.ID, true)
	if err != nil {
		return nil, fmt.Errorf("list associations: %w", err)
	}

	p := &Portfolio{
		BoardID:      boardID,
		SprintID:     sprint.ID,
		SprintName:   sprint.Name,
		HealthCounts: map[string]int{},
	}
	var completionSum, riskSum float64
	for _, assoc := range assocs {
		ws, err := a.store.GetWorkstream(ctx, assoc.ProjectWorkstreamID)
		if err != nil {
			return nil, fmt.Errorf("workstream %d: %w", assoc.ProjectWorkstreamID, err)
		}
		if filters.WorkstreamType != "" && ws.WorkstreamType != filters.WorkstreamType {
			continue
		}
		if filters.Category != "" && ws.Category != filters.Category {
			continue
		}

		metrics, err := a.projectMetrics(ctx, ws.ProjectKey, sprint)
		if err != nil {
			return nil, err
		}
		assessment, err := a.analytics.AssessProjectRisks(ctx, ws.ProjectKey, sprint.ID, false)
		if err != nil {
			return nil, err
		}
		health := deriveHealth(sprint, metrics)

		p.Projects = append(p.Projects, ProjectSummary{
			ProjectKey:      ws.ProjectKey,
			ProjectName:     ws.ProjectName,
			WorkstreamType:  ws.WorkstreamType,
			AssociationType: assoc.AssociationType,
			Priority:        assoc.Priority,
			Metrics:         metrics,
			Health:          health,
			RiskScore:       assessment.Score,
		})
		p.HealthCounts[health]++
		completionSum += metrics.Completion
		riskSum += assessment.Score
	}

	if n := len(p.Projects); n > 0 {
		p.OverallCompletion = completionSum / float64(n)
		p.AverageRisk = riskSum / float64(n)
	}
	p.OverallHealth = OverallHealth(p.HealthCounts)
	p.Indicators = indicators(p)
	return p, nil
}

// projectMetrics tallies a project's live tracker issues for the sprint.
func (a *Aggregator) projectMetrics(ctx context.Context, projectKey string, sprint *types.Sprint) (ProjectMetrics, error) {
	snap, err := a.analytics.ProjectSnapshot(ctx, projectKey, sprint)
	if err != nil {
		return ProjectMetrics{}, err
	}
	return ProjectMetrics{
		TotalIssues:     snap.TotalIssues,
		CompletedIssues: snap.CompletedIssues,
		InProgress:      snap.InProgress,
		Blocked:         snap.Blocked,
		TotalPoints:     snap.TotalPoints,
		CompletedPoints: snap.CompletedPoints,
		Completion:      snap.Completion,
	}, nil
}

// deriveHealth buckets a project by completion and blockage.
func deriveHealth(sprint *types.Sprint, m ProjectMetrics) string {
	if m.Completion >= 100 {
		return HealthCompleted
	}
	totalIssues := m.TotalIssues
	if totalIssues > 0 && float64(m.Blocked)/float64(totalIssues) > 0.20 {
		return HealthBlocked
	}

	// Compare completion to elapsed sprint time.
	lag := 0.0
	if sprint.StartDate != nil && sprint.EndDate != nil {
		total := sprint.EndDate.Sub(*sprint.StartDate)
		elapsed := time.Now().UTC().Sub(*sprint.StartDate)
		if total > 0 && elapsed > 0 {
			expected := elapsed.Seconds() / total.Seconds() * 100
			if expected > 100 {
				expected = 100
			}
			lag = expected - m.Completion
		}
	}
	switch {
	case lag > 20:
		return HealthBehind
	case lag > 10 || m.Blocked > 0:
		return HealthAtRisk
	default:
		return HealthOnTrack
	}
}

// OverallHealth rolls health bucket counts into one portfolio grade.
// Risk projects are those at risk, behind, or blocked; a share of 30% or
// more is critical.
func OverallHealth(counts map[string]int) string {
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return PortfolioHealthy
	}
	risky := counts[HealthAtRisk] + counts[HealthBehind] + counts[HealthBlocked]
	share := float64(risky) / float64(total)
	switch {
	case share >= 0.30:
		return PortfolioCritical
	case share >= 0.10:
		return PortfolioAtRisk
	default:
		return PortfolioHealthy
	}
}

func indicators(p *Portfolio) []HealthIndicator {
	status := func(value, target float64, higherBetter bool) string {
		ratio := 1.0
		if target > 0 {
			ratio = value / target
		}
		if !higherBetter && target > 0 {
			ratio = target / maxFloat(value, 0.001)
		}
		switch {
		case ratio >= 0.9:
			return HealthOnTrack
		case ratio >= 0.7:
			return HealthAtRisk
		default:
			return HealthBehind
		}
	}

	avgVelocity := 0.0
	// Velocity indicator uses completed points as its proxy at the
	// portfolio level.
	var completedPoints, totalPoints float64
	for _, proj := range p.Projects {
		completedPoints += proj.Metrics.CompletedPoints
		totalPoints += proj.Metrics.TotalPoints
	}
	if totalPoints > 0 {
		avgVelocity = completedPoints / totalPoints * 100
	}

	return []HealthIndicator{
		{
			Name: "completion", Value: p.OverallCompletion, Target: 100,
			Status: status(p.OverallCompletion, 100, true),
		},
		{
			Name: "risk", Value: p.AverageRisk, Target: 15,
			Status: status(p.AverageRisk, 15, false),
		},
		{
			Name: "velocity", Value: avgVelocity, Target: 100,
			Status: status(avgVelocity, 100, true),
		},
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// resolveSprint picks the explicit sprint or the board's most recent
// active one.
func (a *Aggregator) resolveSprint(ctx context.Context, boardID, sprintID int64) (*types.Sprint, error) {
	if sprintID != 0 {
		s, err := a.store.GetSprint(ctx, sprintID)
		if err != nil {
			return nil, fmt.Errorf("sprint %d: %w", sprintID, err)
		}
		return s, nil
	}
	sprints, err := a.store.ListSprints(ctx, storage.SprintFilter{
		BoardID: boardID,
		State:   types.SprintActive,
	})
	if err != nil {
		return nil, fmt.Errorf("list active sprints: %w", err)
	}
	if len(sprints) == 0 {
		return nil, fmt.Errorf("board %d: %w", boardID, analytics.ErrNoActiveSprint)
	}
	latest := sprints[0]
	for _, s := range sprints[1:] {
		if latest.StartDate == nil || (s.StartDate != nil && s.StartDate.After(*latest.StartDate)) {
			latest = s
		}
	}
	return latest, nil
}
