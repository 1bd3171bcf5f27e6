// Package analytics computes derived sprint and portfolio figures:
// velocity history, Monte-Carlo completion forecasts, burndown series,
// risk assessment, capacity distribution, and project rankings.
//
// All analytics read local state; live issue figures come through the
// tracker client when historical rows are absent.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/scullers68/sprint-reports/internal/storage"
	"github.com/scullers68/sprint-reports/internal/tracker"
	"github.com/scullers68/sprint-reports/internal/types"
)

// IssueSource is the slice of the tracker client analytics consumes.
type IssueSource interface {
	SearchIssues(ctx context.Context, jql string, fields []string, maxResults int) ([]tracker.IssueDTO, error)
}

// Engine computes analytics over local state plus live tracker data.
type Engine struct {
	store  storage.Storage
	issues IssueSource
}

// New creates an analytics engine.
func New(store storage.Storage, issues IssueSource) *Engine {
	return &Engine{store: store, issues: issues}
}

// doneStatuses are the tracker statuses counted as completed work.
var doneStatuses = map[string]bool{
	"done":     true,
	"closed":   true,
	"resolved": true,
}

func isDone(issue tracker.IssueDTO) bool {
	if issue.Fields.Status == nil {
		return false
	}
	return doneStatuses[strings.ToLower(issue.Fields.Status.Name)]
}

func isBlocked(issue tracker.IssueDTO) bool {
	if issue.Fields.Status != nil && strings.EqualFold(issue.Fields.Status.Name, "blocked") {
		return true
	}
	for _, l := range issue.Fields.Labels {
		if strings.EqualFold(l, "blocked") {
			return true
		}
	}
	return false
}

func storyPoints(issue tracker.IssueDTO) float64 {
	if issue.Fields.StoryPoints == nil {
		return 0
	}
	return *issue.Fields.StoryPoints
}

// workstreamByKey resolves a project workstream or reports NotFound.
func (e *Engine) workstreamByKey(ctx context.Context, projectKey string) (*types.ProjectWorkstream, error) {
	ws, err := e.store.GetWorkstreamByKey(ctx, projectKey)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", projectKey, err)
	}
	return ws, nil
}

// projectSprints returns the sprints associated with a workstream,
// oldest first, optionally including the active sprint, capped at limit.
func (e *Engine) projectSprints(ctx context.Context, workstreamID int64, limit int, includeCurrent bool) ([]*types.Sprint, error) {
	assocs, err := e.store.ListAssociationsByWorkstream(ctx, workstreamID, true)
	if err != nil {
		return nil, fmt.Errorf("list associations: %w", err)
	}

	var sprints []*types.Sprint
	for _, a := range assocs {
		s, err := e.store.GetSprint(ctx, a.SprintID)
		if err != nil {
			return nil, fmt.Errorf("load sprint %d: %w", a.SprintID, err)
		}
		if s.State == types.SprintClosed || (includeCurrent && s.State == types.SprintActive) {
			sprints = append(sprints, s)
		}
	}

	// Oldest first by start date so trend comparisons read left to right.
	sortSprintsByStart(sprints)
	if limit > 0 && len(sprints) > limit {
		sprints = sprints[len(sprints)-limit:]
	}
	return sprints, nil
}

func sortSprintsByStart(sprints []*types.Sprint) {
	sort.SliceStable(sprints, func(i, j int) bool {
		return sprintStartsBefore(sprints[i], sprints[j])
	})
}

func sprintStartsBefore(a, b *types.Sprint) bool {
	switch {
	case a.StartDate == nil:
		return true
	case b.StartDate == nil:
		return false
	default:
		return a.StartDate.Before(*b.StartDate)
	}
}

// sprintIssues fetches a sprint's issues for one project.
func (e *Engine) sprintIssues(ctx context.Context, projectKey string, trackerSprintID int64) ([]tracker.IssueDTO, error) {
	jql := fmt.Sprintf("project = %s AND sprint = %d", projectKey, trackerSprintID)
	return e.issues.SearchIssues(ctx, jql, nil, 0)
}

// Snapshot is a project's live per-sprint issue figures.
type Snapshot struct {
	TotalIssues     int     `json:"total_issues"`
	CompletedIssues int     `json:"completed_issues"`
	InProgress      int     `json:"in_progress_issues"`
	Blocked         int     `json:"blocked_issues"`
	TotalPoints     float64 `json:"total_points"`
	CompletedPoints float64 `json:"completed_points"`
	Completion      float64 `json:"completion_percentage"`
}

// ProjectSnapshot fetches a project's current sprint issues from the
// tracker and tallies them.
func (e *Engine) ProjectSnapshot(ctx context.Context, projectKey string, sprint *types.Sprint) (Snapshot, error) {
	issues, err := e.sprintIssues(ctx, projectKey, sprint.TrackerSprintID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("issues for %s in sprint %s: %w", projectKey, sprint.Name, err)
	}

	var snap Snapshot
	snap.TotalIssues = len(issues)
	for _, issue := range issues {
		pts := storyPoints(issue)
		snap.TotalPoints += pts
		switch {
		case isDone(issue):
			snap.CompletedIssues++
			snap.CompletedPoints += pts
		case isBlocked(issue):
			snap.Blocked++
		default:
			snap.InProgress++
		}
	}
	if snap.TotalPoints > 0 {
		snap.Completion = snap.CompletedPoints / snap.TotalPoints * 100
	}
	return snap, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64, m float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}
