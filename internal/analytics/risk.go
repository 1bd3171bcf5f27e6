package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/scullers68/sprint-reports/internal/types"
)

// RiskCritical extends the forecast risk buckets for assessment scoring.
const RiskCritical = "critical"

// RiskFactor is one weighted contribution to a project's risk score.
type RiskFactor struct {
	Name     string  `json:"name"`
	Severity string  `json:"severity"`
	Points   float64 `json:"points"`
	Detail   string  `json:"detail"`
}

// RiskAssessment is the weighted risk picture for one project.
type RiskAssessment struct {
	ProjectKey  string       `json:"project_key"`
	SprintID    int64        `json:"sprint_id,omitempty"`
	Score       float64      `json:"score"`
	OverallRisk string       `json:"overall_risk"`
	Factors     []RiskFactor `json:"factors"`
}

// AssessProjectRisks scores a project against the weighted risk factors:
// velocity consistency and trend, capacity utilization, schedule lag, and
// blocked work.
func (e *Engine) AssessProjectRisks(ctx context.Context, projectKey string, sprintID int64, includeCapacity bool) (*RiskAssessment, error) {
	assessment := &RiskAssessment{ProjectKey: projectKey, SprintID: sprintID}
	add := func(name, severity string, points float64, detail string) {
		assessment.Factors = append(assessment.Factors, RiskFactor{
			Name: name, Severity: severity, Points: points, Detail: detail,
		})
		assessment.Score += points
	}

	velocity, err := e.ProjectVelocityWithHistory(ctx, projectKey, 5, true)
	if err != nil {
		return nil, err
	}
	if len(velocity.Sprints) > 0 && velocity.Consistency < 50 {
		add("velocity_consistency", RiskMedium, 20,
			fmt.Sprintf("consistency %.0f below 50", velocity.Consistency))
	}
	if velocity.TrendDirection == TrendDeclining {
		add("velocity_trend", RiskHigh, 30, "velocity trend declining")
	}

	if includeCapacity && sprintID != 0 {
		dist, err := e.AnalyzeCapacityDistribution(ctx, sprintID, false)
		if err != nil {
			return nil, err
		}
		if dist.TotalCapacity > 0 {
			utilization := dist.TotalAllocated / dist.TotalCapacity * 100
			if utilization > 120 {
				add("capacity_utilization", RiskHigh, 35,
					fmt.Sprintf("utilization %.0f%% above 120%%", utilization))
			} else if utilization < 60 {
				add("capacity_utilization", RiskLow, 10,
					fmt.Sprintf("utilization %.0f%% below 60%%", utilization))
			}
		}
	}

	if sprintID != 0 {
		if err := e.scheduleAndBlockageRisk(ctx, projectKey, sprintID, add); err != nil {
			return nil, err
		}
	}

	switch {
	case assessment.Score >= 60:
		assessment.OverallRisk = RiskCritical
	case assessment.Score >= 35:
		assessment.OverallRisk = RiskHigh
	case assessment.Score >= 15:
		assessment.OverallRisk = RiskMedium
	default:
		assessment.OverallRisk = RiskLow
	}
	return assessment, nil
}

// scheduleAndBlockageRisk adds factors for schedule lag and blocked work
// using the latest recorded metrics, falling back to live issues.
func (e *Engine) scheduleAndBlockageRisk(ctx context.Context, projectKey string, sprintID int64, add func(string, string, float64, string)) error {
	sprint, err := e.store.GetSprint(ctx, sprintID)
	if err != nil {
		return fmt.Errorf("sprint %d: %w", sprintID, err)
	}

	completion, blocked, totalIssues, err := e.currentProgress(ctx, projectKey, sprint)
	if err != nil {
		return err
	}

	if sprint.StartDate != nil && sprint.EndDate != nil {
		total := sprint.EndDate.Sub(*sprint.StartDate)
		elapsed := time.Now().UTC().Sub(*sprint.StartDate)
		if total > 0 && elapsed > 0 {
			expected := elapsed.Seconds() / total.Seconds() * 100
			if expected > 100 {
				expected = 100
			}
			if expected-completion > 20 {
				add("schedule_lag", RiskHigh, 25,
					fmt.Sprintf("completion %.0f%% lags elapsed time %.0f%%", completion, expected))
			}
		}
	}

	if totalIssues > 0 {
		blockedShare := float64(blocked) / float64(totalIssues)
		if blockedShare > 0.20 {
			add("blocked_issues", RiskCritical, 40,
				fmt.Sprintf("%d of %d issues blocked", blocked, totalIssues))
		} else if blocked > 0 {
			add("blocked_issues", RiskMedium, 15,
				fmt.Sprintf("%d of %d issues blocked", blocked, totalIssues))
		}
	}
	return nil
}

// currentProgress returns completion percent, blocked count, and total
// issues from the latest metrics row or live issues.
func (e *Engine) currentProgress(ctx context.Context, projectKey string, sprint *types.Sprint) (float64, int, int, error) {
	ws, err := e.workstreamByKey(ctx, projectKey)
	if err != nil {
		return 0, 0, 0, err
	}
	metrics, err := e.store.ListMetrics(ctx, sprint.ID, ws.ID)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("list metrics: %w", err)
	}
	if len(metrics) > 0 {
		latest := metrics[len(metrics)-1]
		return latest.CompletionPercentage, latest.BlockedIssues, latest.TotalIssues, nil
	}

	issues, err := e.sprintIssues(ctx, projectKey, sprint.TrackerSprintID)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("live issues: %w", err)
	}
	var total, completed float64
	blocked := 0
	for _, issue := range issues {
		pts := storyPoints(issue)
		total += pts
		if isDone(issue) {
			completed += pts
		} else if isBlocked(issue) {
			blocked++
		}
	}
	completion := 0.0
	if total > 0 {
		completion = completed / total * 100
	}
	return completion, blocked, len(issues), nil
}
