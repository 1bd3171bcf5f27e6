package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/scullers68/sprint-reports/internal/storage"
	"github.com/scullers68/sprint-reports/internal/tracker"
	"github.com/scullers68/sprint-reports/internal/types"
)

// seedActiveSprint creates an active sprint halfway through its window and
// associates it with the workstream.
func seedActiveSprint(t *testing.T, store storage.Storage, wsID, trackerID int64) *types.Sprint {
	t.Helper()
	ctx := context.Background()
	start := time.Now().UTC().Add(-5 * 24 * time.Hour)
	end := time.Now().UTC().Add(5 * 24 * time.Hour)
	sprint := &types.Sprint{
		TrackerSprintID: trackerID,
		BoardID:         1,
		Name:            "Current",
		State:           types.SprintActive,
		StartDate:       &start,
		EndDate:         &end,
	}
	id, err := store.CreateSprint(ctx, sprint)
	if err != nil {
		t.Fatalf("CreateSprint failed: %v", err)
	}
	sprint.ID = id
	if _, err := store.CreateAssociation(ctx, &types.ProjectSprintAssociation{
		SprintID:            id,
		ProjectWorkstreamID: wsID,
		AssociationType:     types.AssociationPrimary,
		Priority:            1,
		Active:              true,
	}); err != nil {
		t.Fatalf("CreateAssociation failed: %v", err)
	}
	return sprint
}

func factorNames(a *RiskAssessment) map[string]bool {
	names := map[string]bool{}
	for _, f := range a.Factors {
		names[f.Name] = true
	}
	return names
}

func TestAssessProjectRisksCritical(t *testing.T) {
	engine, store, issues := setupAnalytics(t)
	wsID, sprints := seedProject(t, store, "WEB", 4)

	// Velocity collapses from 4/day to 0.4/day across the closed sprints.
	for i, s := range sprints {
		points := 40.0
		if i >= 2 {
			points = 4
		}
		issues.byJQL[sprintJQL("WEB", s.TrackerSprintID)] = []tracker.IssueDTO{
			issueWith("Done", points),
		}
	}

	// The current sprint is stalled: nothing done, 3 of 10 blocked.
	current := seedActiveSprint(t, store, wsID, 2000)
	var stalled []tracker.IssueDTO
	for i := 0; i < 10; i++ {
		status := "In Progress"
		if i < 3 {
			status = "Blocked"
		}
		stalled = append(stalled, issueWith(status, 1))
	}
	issues.byJQL[sprintJQL("WEB", 2000)] = stalled

	assessment, err := engine.AssessProjectRisks(context.Background(), "WEB", current.ID, false)
	if err != nil {
		t.Fatalf("AssessProjectRisks failed: %v", err)
	}
	if assessment.OverallRisk != RiskCritical {
		t.Errorf("overall = %s (score %.0f), want critical", assessment.OverallRisk, assessment.Score)
	}

	names := factorNames(assessment)
	for _, want := range []string{"velocity_trend", "velocity_consistency", "schedule_lag", "blocked_issues"} {
		if !names[want] {
			t.Errorf("missing factor %s in %v", want, names)
		}
	}
}

func TestAssessProjectRisksHealthy(t *testing.T) {
	engine, store, issues := setupAnalytics(t)
	wsID, _ := seedProject(t, store, "WEB", 0)
	current := seedActiveSprint(t, store, wsID, 2001)

	// Halfway through the sprint with half the points done and nothing
	// blocked.
	issues.byJQL[sprintJQL("WEB", 2001)] = []tracker.IssueDTO{
		issueWith("Done", 10),
		issueWith("In Progress", 10),
	}

	assessment, err := engine.AssessProjectRisks(context.Background(), "WEB", current.ID, false)
	if err != nil {
		t.Fatalf("AssessProjectRisks failed: %v", err)
	}
	if assessment.OverallRisk != RiskLow || assessment.Score != 0 {
		t.Errorf("overall = %s score %.0f factors %v, want low/0",
			assessment.OverallRisk, assessment.Score, assessment.Factors)
	}
}
