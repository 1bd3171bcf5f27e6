package portfolio

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/scullers68/sprint-reports/internal/types"
)

// RecordMetrics snapshots a project's live figures into a dated
// ProjectSprintMetrics row. One row exists per (sprint, project, date);
// recording twice on the same day is a duplicate.
func (a *Aggregator) RecordMetrics(ctx context.Context, sprintID, workstreamID int64) (*types.ProjectSprintMetrics, error) {
	sprint, err := a.store.GetSprint(ctx, sprintID)
	if err != nil {
		return nil, fmt.Errorf("sprint %d: %w", sprintID, err)
	}
	ws, err := a.store.GetWorkstream(ctx, workstreamID)
	if err != nil {
		return nil, fmt.Errorf("workstream %d: %w", workstreamID, err)
	}

	snap, err := a.analytics.ProjectSnapshot(ctx, ws.ProjectKey, sprint)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	breakdown, _ := json.Marshal(snap)
	m := &types.ProjectSprintMetrics{
		SprintID:              sprintID,
		ProjectWorkstreamID:   workstreamID,
		MetricsDate:           time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		TotalIssues:           snap.TotalIssues,
		CompletedIssues:       snap.CompletedIssues,
		InProgressIssues:      snap.InProgress,
		BlockedIssues:         snap.Blocked,
		TotalStoryPoints:      snap.TotalPoints,
		CompletedStoryPoints:  snap.CompletedPoints,
		CompletionPercentage:  snap.Completion,
		Velocity:              snap.CompletedPoints / sprint.DurationDays(now),
		DetailedBreakdownJSON: string(breakdown),
	}
	id, err := a.store.InsertMetrics(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("insert metrics: %w", err)
	}
	m.ID = id
	return m, nil
}

// RecordAllMetrics snapshots every active association of a sprint.
// Failures are collected per project; a failing project does not stop the
// rest.
func (a *Aggregator) RecordAllMetrics(ctx context.Context, sprintID int64) ([]*types.ProjectSprintMetrics, []error) {
	assocs, err := a.store.ListAssociationsBySprint(ctx, sprintID, true)
	if err != nil {
		return nil, []error{fmt.Errorf("list associations: %w", err)}
	}

	var recorded []*types.ProjectSprintMetrics
	var errs []error
	for _, assoc := range assocs {
		m, err := a.RecordMetrics(ctx, sprintID, assoc.ProjectWorkstreamID)
		if err != nil {
			errs = append(errs, fmt.Errorf("workstream %d: %w", assoc.ProjectWorkstreamID, err))
			continue
		}
		recorded = append(recorded, m)
	}
	return recorded, errs
}
