package analytics

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/scullers68/sprint-reports/internal/storage"
	"github.com/scullers68/sprint-reports/internal/storage/sqlite"
	"github.com/scullers68/sprint-reports/internal/tracker"
	"github.com/scullers68/sprint-reports/internal/types"
)

// fakeIssues answers SearchIssues by exact JQL string.
type fakeIssues struct {
	byJQL map[string][]tracker.IssueDTO
}

func (f *fakeIssues) SearchIssues(ctx context.Context, jql string, fields []string, maxResults int) ([]tracker.IssueDTO, error) {
	return f.byJQL[jql], nil
}

func issueWith(status string, points float64) tracker.IssueDTO {
	return tracker.IssueDTO{
		Fields: tracker.IssueFieldsDTO{
			Status:      &tracker.NamedDTO{Name: status},
			StoryPoints: &points,
		},
	}
}

func sprintJQL(projectKey string, trackerSprintID int64) string {
	return fmt.Sprintf("project = %s AND sprint = %d", projectKey, trackerSprintID)
}

func setupAnalytics(t *testing.T) (*Engine, storage.Storage, *fakeIssues) {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "analytics.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	issues := &fakeIssues{byJQL: map[string][]tracker.IssueDTO{}}
	return New(store, issues), store, issues
}

// seedProject creates a workstream and n closed 10-day sprints associated
// with it, returning the workstream id and sprint ids.
func seedProject(t *testing.T, store storage.Storage, projectKey string, n int) (int64, []*types.Sprint) {
	t.Helper()
	ctx := context.Background()
	wsID, err := store.CreateWorkstream(ctx, &types.ProjectWorkstream{
		ProjectKey:     projectKey,
		ProjectName:    projectKey + " workstream",
		WorkstreamType: types.WorkstreamStandard,
		Active:         true,
	})
	if err != nil {
		t.Fatalf("CreateWorkstream failed: %v", err)
	}

	var sprints []*types.Sprint
	for i := 0; i < n; i++ {
		start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 14*i)
		end := start.AddDate(0, 0, 10)
		sprint := &types.Sprint{
			TrackerSprintID: int64(1000 + i),
			Name:            fmt.Sprintf("%s Sprint %d", projectKey, i+1),
			State:           types.SprintClosed,
			StartDate:       &start,
			EndDate:         &end,
			BoardID:         1,
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
		sprints = append(sprints, sprint)
	}
	return wsID, sprints
}

func TestProjectVelocityWithHistory(t *testing.T) {
	engine, store, issues := setupAnalytics(t)
	_, sprints := seedProject(t, store, "WEB", 3)

	// 10, 20, 30 completed points over 10-day sprints.
	for i, s := range sprints {
		points := float64(10 * (i + 1))
		issues.byJQL[sprintJQL("WEB", s.TrackerSprintID)] = []tracker.IssueDTO{
			issueWith("Done", points),
			issueWith("In Progress", 5), // not counted
		}
	}

	report, err := engine.ProjectVelocityWithHistory(context.Background(), "WEB", 5, false)
	if err != nil {
		t.Fatalf("velocity failed: %v", err)
	}
	if len(report.Sprints) != 3 {
		t.Fatalf("expected 3 sprints, got %d", len(report.Sprints))
	}
	// Oldest first.
	if report.Sprints[0].CompletedPoints != 10 || report.Sprints[2].CompletedPoints != 30 {
		t.Errorf("sprint order wrong: %+v", report.Sprints)
	}
	if report.Sprints[1].Velocity != 2.0 {
		t.Errorf("velocity = %v, want 2.0 points/day", report.Sprints[1].Velocity)
	}
	if report.MeanVelocity != 2.0 {
		t.Errorf("mean velocity = %v, want 2.0", report.MeanVelocity)
	}
	if report.ForecastVelocity != report.MeanVelocity {
		t.Errorf("forecast velocity = %v", report.ForecastVelocity)
	}
	if report.ConfidenceLow >= report.ConfidenceHigh {
		t.Errorf("confidence interval inverted: [%v, %v]", report.ConfidenceLow, report.ConfidenceHigh)
	}
}

func TestProjectVelocityNoHistory(t *testing.T) {
	engine, store, _ := setupAnalytics(t)
	seedProject(t, store, "EMPTY", 0)

	report, err := engine.ProjectVelocityWithHistory(context.Background(), "EMPTY", 5, true)
	if err != nil {
		t.Fatalf("empty history must not error: %v", err)
	}
	if len(report.Sprints) != 0 || report.TrendDirection != TrendUnknown {
		t.Errorf("report = %+v, want empty with unknown trend", report)
	}
}

func TestProjectVelocityUnknownProject(t *testing.T) {
	engine, _, _ := setupAnalytics(t)
	_, err := engine.ProjectVelocityWithHistory(context.Background(), "NOPE", 5, true)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTrendDirection(t *testing.T) {
	tests := []struct {
		name       string
		velocities []float64
		want       string
	}{
		{"improving", []float64{1, 1, 1, 3, 3, 3}, TrendImproving},
		{"declining", []float64{3, 3, 3, 1, 1, 1}, TrendDeclining},
		{"stable", []float64{2, 2.1, 1.9, 2}, TrendStable},
		{"single sprint", []float64{2}, TrendStable},
		{"from zero", []float64{0, 0, 0, 2, 2, 2}, TrendImproving},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := trendDirection(tt.velocities); got != tt.want {
				t.Errorf("trendDirection(%v) = %s, want %s", tt.velocities, got, tt.want)
			}
		})
	}
}

func TestConsistency(t *testing.T) {
	if got := consistency(10, 0); got != 100 {
		t.Errorf("zero deviation consistency = %v, want 100", got)
	}
	if got := consistency(10, 2); got != 80 {
		t.Errorf("consistency = %v, want 80", got)
	}
	if got := consistency(0, 5); got != 0 {
		t.Errorf("zero-mean consistency = %v, want 0", got)
	}
	if got := consistency(1, 5); got != 0 {
		t.Errorf("high-variance consistency = %v, want floored at 0", got)
	}
}

func TestMonteCarloForecastDeterministicVelocity(t *testing.T) {
	engine, store, issues := setupAnalytics(t)
	_, sprints := seedProject(t, store, "WEB", 3)

	// Constant 2 points/day: 20 points over each 10-day sprint.
	for _, s := range sprints {
		issues.byJQL[sprintJQL("WEB", s.TrackerSprintID)] = []tracker.IssueDTO{issueWith("Done", 20)}
	}

	forecast, err := engine.MonteCarloCompletionForecast(context.Background(), "WEB", 20, 500, nil, 42)
	if err != nil {
		t.Fatalf("forecast failed: %v", err)
	}
	// Zero variance collapses every run to remaining/mean = 10 days.
	if forecast.MeanDays != 10 {
		t.Errorf("mean days = %v, want 10", forecast.MeanDays)
	}
	if len(forecast.Quantiles) != len(DefaultConfidenceLevels) {
		t.Fatalf("quantiles = %d, want %d", len(forecast.Quantiles), len(DefaultConfidenceLevels))
	}
	for i, q := range forecast.Quantiles {
		if q.Days != 10 {
			t.Errorf("quantile %v days = %v, want 10", q.Level, q.Days)
		}
		if i > 0 && q.Days < forecast.Quantiles[i-1].Days {
			t.Errorf("quantile days decreased at level %v", q.Level)
		}
	}
	if forecast.RiskProbability != 0 || forecast.RiskLevel != RiskLow {
		t.Errorf("risk = %v/%s, want 0/low", forecast.RiskProbability, forecast.RiskLevel)
	}
}

func TestMonteCarloForecastReproducible(t *testing.T) {
	engine, store, issues := setupAnalytics(t)
	_, sprints := seedProject(t, store, "WEB", 3)
	for i, s := range sprints {
		issues.byJQL[sprintJQL("WEB", s.TrackerSprintID)] = []tracker.IssueDTO{
			issueWith("Done", float64(10*(i+1))),
		}
	}
	ctx := context.Background()

	a, err := engine.MonteCarloCompletionForecast(ctx, "WEB", 50, 1000, nil, 7)
	if err != nil {
		t.Fatalf("forecast failed: %v", err)
	}
	b, err := engine.MonteCarloCompletionForecast(ctx, "WEB", 50, 1000, nil, 7)
	if err != nil {
		t.Fatalf("forecast failed: %v", err)
	}
	if a.MeanDays != b.MeanDays {
		t.Errorf("same seed diverged: %v vs %v", a.MeanDays, b.MeanDays)
	}
	for i := range a.Quantiles {
		if a.Quantiles[i].Days != b.Quantiles[i].Days {
			t.Errorf("quantile %v diverged", a.Quantiles[i].Level)
		}
	}
}

func TestMonteCarloForecastNoVelocity(t *testing.T) {
	engine, store, issues := setupAnalytics(t)
	_, sprints := seedProject(t, store, "WEB", 2)
	for _, s := range sprints {
		issues.byJQL[sprintJQL("WEB", s.TrackerSprintID)] = []tracker.IssueDTO{
			issueWith("In Progress", 8),
		}
	}

	_, err := engine.MonteCarloCompletionForecast(context.Background(), "WEB", 20, 100, nil, 1)
	if !errors.Is(err, ErrNoVelocityData) {
		t.Errorf("expected ErrNoVelocityData, got %v", err)
	}
}

func TestAnalyzeCapacityDistribution(t *testing.T) {
	engine, store, _ := setupAnalytics(t)
	ctx := context.Background()
	wsID, sprints := seedProject(t, store, "WEB", 1)
	sprintID := sprints[0].ID

	capID, err := store.UpsertTeamCapacity(ctx, &types.DisciplineTeamCapacity{
		SprintID:       sprintID,
		DisciplineTeam: "backend",
		CapacityPoints: 40,
		CapacityType:   types.CapacityStoryPoints,
	})
	if err != nil {
		t.Fatalf("UpsertTeamCapacity failed: %v", err)
	}
	if _, err := store.CreateAllocation(ctx, &types.ProjectCapacityAllocation{
		SprintID:            sprintID,
		ProjectWorkstreamID: wsID,
		TeamCapacityID:      capID,
		AllocatedPoints:     30,
		UtilizedPoints:      24,
		Priority:            1,
		Active:              true,
	}); err != nil {
		t.Fatalf("CreateAllocation failed: %v", err)
	}

	dist, err := engine.AnalyzeCapacityDistribution(ctx, sprintID, true)
	if err != nil {
		t.Fatalf("AnalyzeCapacityDistribution failed: %v", err)
	}
	if len(dist.Teams) != 1 {
		t.Fatalf("teams = %d, want 1", len(dist.Teams))
	}
	team := dist.Teams[0]
	if team.Team != "backend" || team.Allocated != 30 || team.Available != 10 {
		t.Errorf("unexpected team summary %+v", team)
	}
	if team.Utilization != 75 || team.OverCapacity {
		t.Errorf("utilization = %v over=%v, want 75/false", team.Utilization, team.OverCapacity)
	}
	if len(team.Projects) != 1 || team.Projects[0].Share != 0.75 {
		t.Errorf("project shares = %+v", team.Projects)
	}
	if dist.TotalCapacity != 40 || dist.TotalAllocated != 30 {
		t.Errorf("totals = %v/%v", dist.TotalCapacity, dist.TotalAllocated)
	}
}

func TestCapacityConflicts(t *testing.T) {
	engine, store, _ := setupAnalytics(t)
	ctx := context.Background()
	wsID, sprints := seedProject(t, store, "WEB", 1)
	sprintID := sprints[0].ID

	// Over-allocated team: 70 against 40 is 175% utilization.
	overID, err := store.UpsertTeamCapacity(ctx, &types.DisciplineTeamCapacity{
		SprintID: sprintID, DisciplineTeam: "backend",
		CapacityPoints: 40, CapacityType: types.CapacityStoryPoints,
	})
	if err != nil {
		t.Fatalf("UpsertTeamCapacity failed: %v", err)
	}
	// Under-utilized team: 10 against 40.
	underID, err := store.UpsertTeamCapacity(ctx, &types.DisciplineTeamCapacity{
		SprintID: sprintID, DisciplineTeam: "design",
		CapacityPoints: 40, CapacityType: types.CapacityStoryPoints,
	})
	if err != nil {
		t.Fatalf("UpsertTeamCapacity failed: %v", err)
	}
	for _, alloc := range []*types.ProjectCapacityAllocation{
		{SprintID: sprintID, ProjectWorkstreamID: wsID, TeamCapacityID: overID, AllocatedPoints: 70, Priority: 1, Active: true},
		{SprintID: sprintID, ProjectWorkstreamID: wsID, TeamCapacityID: underID, AllocatedPoints: 10, Priority: 3, Active: true},
	} {
		if _, err := store.CreateAllocation(ctx, alloc); err != nil {
			t.Fatalf("CreateAllocation failed: %v", err)
		}
	}

	conflicts, err := engine.CapacityConflicts(ctx, sprintID)
	if err != nil {
		t.Fatalf("CapacityConflicts failed: %v", err)
	}

	kinds := map[string]string{}
	for _, c := range conflicts {
		kinds[c.Team+"/"+c.Kind] = c.Severity
	}
	if kinds["backend/"+ConflictOverAllocation] != RiskHigh {
		t.Errorf("backend over-allocation severity = %q, want high (conflicts: %+v)", kinds["backend/"+ConflictOverAllocation], conflicts)
	}
	if _, ok := kinds["design/"+ConflictUnderUtilization]; !ok {
		t.Errorf("design under-utilization not flagged: %+v", conflicts)
	}
}

func TestProjectRankingsByPriority(t *testing.T) {
	engine, store, _ := setupAnalytics(t)
	ctx := context.Background()

	start := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	sprintID, err := store.CreateSprint(ctx, &types.Sprint{
		TrackerSprintID: 500, Name: "Active", State: types.SprintActive,
		StartDate: &start, BoardID: 3,
	})
	if err != nil {
		t.Fatalf("CreateSprint failed: %v", err)
	}

	for i, key := range []string{"LOW", "HIGH"} {
		wsID, err := store.CreateWorkstream(ctx, &types.ProjectWorkstream{
			ProjectKey: key, ProjectName: key, WorkstreamType: types.WorkstreamStandard, Active: true,
		})
		if err != nil {
			t.Fatalf("CreateWorkstream failed: %v", err)
		}
		priority := 5 - 4*i // LOW gets 5, HIGH gets 1
		if _, err := store.CreateAssociation(ctx, &types.ProjectSprintAssociation{
			SprintID: sprintID, ProjectWorkstreamID: wsID,
			AssociationType: types.AssociationPrimary, Priority: priority, Active: true,
		}); err != nil {
			t.Fatalf("CreateAssociation failed: %v", err)
		}
	}

	// sprintID 0 resolves the board's active sprint.
	ranks, err := engine.ProjectRankings(ctx, 3, RankByPriority, 0, 10)
	if err != nil {
		t.Fatalf("ProjectRankings failed: %v", err)
	}
	if len(ranks) != 2 {
		t.Fatalf("ranks = %d, want 2", len(ranks))
	}
	if ranks[0].ProjectKey != "HIGH" || ranks[0].Rank != 1 {
		t.Errorf("top rank = %+v, want HIGH first", ranks[0])
	}
	if ranks[1].ProjectKey != "LOW" {
		t.Errorf("second rank = %+v, want LOW", ranks[1])
	}
}

func TestProjectRankingsNoActiveSprint(t *testing.T) {
	engine, _, _ := setupAnalytics(t)
	_, err := engine.ProjectRankings(context.Background(), 99, RankByPriority, 0, 10)
	if !errors.Is(err, ErrNoActiveSprint) {
		t.Errorf("expected ErrNoActiveSprint, got %v", err)
	}
}
