package analytics

import (
	"context"
	"fmt"

	"github.com/scullers68/sprint-reports/internal/types"
)

// ProjectAllocationShare is one project's slice of a team's capacity.
type ProjectAllocationShare struct {
	ProjectWorkstreamID int64   `json:"project_workstream_id"`
	AllocatedPoints     float64 `json:"allocated_points"`
	UtilizedPoints      float64 `json:"utilized_points"`
	Priority            int     `json:"priority"`
	Share               float64 `json:"share"` // fraction of team capacity
}

// TeamCapacitySummary is one discipline team's capacity picture for a
// sprint.
type TeamCapacitySummary struct {
	Team         string                   `json:"team"`
	CapacityType types.CapacityType       `json:"capacity_type"`
	Capacity     float64                  `json:"capacity"`
	Allocated    float64                  `json:"allocated"`
	Available    float64                  `json:"available"` // max(0, capacity - allocated)
	Utilization  float64                  `json:"utilization"`
	OverCapacity bool                     `json:"over_capacity"`
	Projects     []ProjectAllocationShare `json:"projects,omitempty"`
}

// CapacityDistribution is the sprint-wide capacity roll-up.
type CapacityDistribution struct {
	SprintID       int64                 `json:"sprint_id"`
	Teams          []TeamCapacitySummary `json:"teams"`
	TotalCapacity  float64               `json:"total_capacity"`
	TotalAllocated float64               `json:"total_allocated"`
}

// AnalyzeCapacityDistribution sums each discipline team's active project
// allocations for a sprint and reports totals and over-capacity flags.
func (e *Engine) AnalyzeCapacityDistribution(ctx context.Context, sprintID int64, includeProjects bool) (*CapacityDistribution, error) {
	if _, err := e.store.GetSprint(ctx, sprintID); err != nil {
		return nil, fmt.Errorf("sprint %d: %w", sprintID, err)
	}
	capacities, err := e.store.ListTeamCapacities(ctx, sprintID)
	if err != nil {
		return nil, fmt.Errorf("list capacities: %w", err)
	}
	allocations, err := e.store.ListAllocations(ctx, sprintID, true)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}

	byCapacityID := map[int64][]*types.ProjectCapacityAllocation{}
	for _, a := range allocations {
		byCapacityID[a.TeamCapacityID] = append(byCapacityID[a.TeamCapacityID], a)
	}

	dist := &CapacityDistribution{SprintID: sprintID}
	for _, c := range capacities {
		allocated := 0.0
		var shares []ProjectAllocationShare
		for _, a := range byCapacityID[c.ID] {
			allocated += a.AllocatedPoints
			if includeProjects {
				share := 0.0
				if c.CapacityPoints > 0 {
					share = a.AllocatedPoints / c.CapacityPoints
				}
				shares = append(shares, ProjectAllocationShare{
					ProjectWorkstreamID: a.ProjectWorkstreamID,
					AllocatedPoints:     a.AllocatedPoints,
					UtilizedPoints:      a.UtilizedPoints,
					Priority:            a.Priority,
					Share:               share,
				})
			}
		}

		snapshot := types.DisciplineTeamCapacity{
			CapacityPoints: c.CapacityPoints,
			Allocated:      allocated,
		}
		dist.Teams = append(dist.Teams, TeamCapacitySummary{
			Team:         c.DisciplineTeam,
			CapacityType: c.CapacityType,
			Capacity:     c.CapacityPoints,
			Allocated:    allocated,
			Available:    snapshot.Remaining(),
			Utilization:  snapshot.Utilization(),
			OverCapacity: allocated > c.CapacityPoints,
			Projects:     shares,
		})
		dist.TotalCapacity += c.CapacityPoints
		dist.TotalAllocated += allocated
	}
	return dist, nil
}

// Capacity conflict kinds.
const (
	ConflictOverAllocation   = "over_allocation"
	ConflictUnderUtilization = "under_utilization"
	ConflictPriorityMismatch = "priority_mismatch"
)

// CapacityConflict flags one problematic team/allocation pattern.
type CapacityConflict struct {
	Team        string  `json:"team"`
	Kind        string  `json:"kind"`
	Severity    string  `json:"severity"`
	Utilization float64 `json:"utilization,omitempty"`
	Detail      string  `json:"detail"`
}

// CapacityConflicts classifies each team's allocation health:
// over-allocation above 110% utilization (high above 150%),
// under-utilization below 50%, and priority mismatches where
// high-priority projects hold too little share or low-priority too much.
func (e *Engine) CapacityConflicts(ctx context.Context, sprintID int64) ([]CapacityConflict, error) {
	dist, err := e.AnalyzeCapacityDistribution(ctx, sprintID, true)
	if err != nil {
		return nil, err
	}

	var conflicts []CapacityConflict
	for _, team := range dist.Teams {
		switch {
		case team.Utilization > 150:
			conflicts = append(conflicts, CapacityConflict{
				Team: team.Team, Kind: ConflictOverAllocation, Severity: RiskHigh,
				Utilization: team.Utilization,
				Detail:      fmt.Sprintf("allocated %.1f against capacity %.1f", team.Allocated, team.Capacity),
			})
		case team.Utilization > 110:
			conflicts = append(conflicts, CapacityConflict{
				Team: team.Team, Kind: ConflictOverAllocation, Severity: RiskMedium,
				Utilization: team.Utilization,
				Detail:      fmt.Sprintf("allocated %.1f against capacity %.1f", team.Allocated, team.Capacity),
			})
		case team.Utilization < 50 && team.Capacity > 0:
			conflicts = append(conflicts, CapacityConflict{
				Team: team.Team, Kind: ConflictUnderUtilization, Severity: RiskLow,
				Utilization: team.Utilization,
				Detail:      fmt.Sprintf("only %.0f%% of capacity allocated", team.Utilization),
			})
		}

		for _, p := range team.Projects {
			switch {
			case p.Priority > 0 && p.Priority <= 2 && p.Share < 0.20:
				conflicts = append(conflicts, CapacityConflict{
					Team: team.Team, Kind: ConflictPriorityMismatch, Severity: RiskMedium,
					Detail: fmt.Sprintf("high-priority project %d holds %.0f%% of capacity",
						p.ProjectWorkstreamID, p.Share*100),
				})
			case p.Priority >= 5 && p.Share > 0.40:
				conflicts = append(conflicts, CapacityConflict{
					Team: team.Team, Kind: ConflictPriorityMismatch, Severity: RiskMedium,
					Detail: fmt.Sprintf("low-priority project %d holds %.0f%% of capacity",
						p.ProjectWorkstreamID, p.Share*100),
				})
			}
		}
	}
	return conflicts, nil
}
