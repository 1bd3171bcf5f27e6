package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/scullers68/sprint-reports/internal/storage"
	"github.com/scullers68/sprint-reports/internal/types"
)

// Ranking criteria.
const (
	RankByPriority            = "priority"
	RankByCompletion          = "completion"
	RankByRiskScore           = "risk_score"
	RankByVelocity            = "velocity"
	RankByCapacityUtilization = "capacity_utilization"
)

// ProjectRank is one project's position in a ranking.
type ProjectRank struct {
	Rank          int     `json:"rank"`
	ProjectKey    string  `json:"project_key"`
	ProjectName   string  `json:"project_name"`
	Score         float64 `json:"score"`
	Justification string  `json:"justification"`
}

// ProjectRankings orders a board's active projects by the chosen
// criterion. All criteria rank higher scores first except risk score,
// where lower is better. sprintID 0 resolves to the board's most recent
// active sprint.
func (e *Engine) ProjectRankings(ctx context.Context, boardID int64, criteria string, sprintID int64, limit int) ([]ProjectRank, error) {
	if limit <= 0 {
		limit = 20
	}
	sprint, err := e.resolveSprint(ctx, boardID, sprintID)
	if err != nil {
		return nil, err
	}
	assocs, err := e.store.ListAssociationsBySprint(ctx, sprint.ID, true)
	if err != nil {
		return nil, fmt.Errorf("list associations: %w", err)
	}

	var ranks []ProjectRank
	for _, a := range assocs {
		ws, err := e.store.GetWorkstream(ctx, a.ProjectWorkstreamID)
		if err != nil {
			return nil, fmt.Errorf("workstream %d: %w", a.ProjectWorkstreamID, err)
		}
		score, justification, err := e.scoreProject(ctx, ws, a, sprint, criteria)
		if err != nil {
			return nil, err
		}
		ranks = append(ranks, ProjectRank{
			ProjectKey:    ws.ProjectKey,
			ProjectName:   ws.ProjectName,
			Score:         score,
			Justification: justification,
		})
	}

	ascending := criteria == RankByRiskScore
	sort.SliceStable(ranks, func(i, j int) bool {
		if ascending {
			return ranks[i].Score < ranks[j].Score
		}
		return ranks[i].Score > ranks[j].Score
	})
	if len(ranks) > limit {
		ranks = ranks[:limit]
	}
	for i := range ranks {
		ranks[i].Rank = i + 1
	}
	return ranks, nil
}

func (e *Engine) scoreProject(ctx context.Context, ws *types.ProjectWorkstream, assoc *types.ProjectSprintAssociation, sprint *types.Sprint, criteria string) (float64, string, error) {
	switch criteria {
	case RankByPriority:
		// Priority 1 is most important; invert so higher score ranks first.
		score := 100 - float64(assoc.Priority)
		return score, fmt.Sprintf("association priority %d", assoc.Priority), nil

	case RankByCompletion:
		completion, _, _, err := e.currentProgress(ctx, ws.ProjectKey, sprint)
		if err != nil {
			return 0, "", err
		}
		return completion, fmt.Sprintf("completion %.0f%%", completion), nil

	case RankByRiskScore:
		assessment, err := e.AssessProjectRisks(ctx, ws.ProjectKey, sprint.ID, true)
		if err != nil {
			return 0, "", err
		}
		return assessment.Score,
			fmt.Sprintf("risk score %.0f (%s)", assessment.Score, assessment.OverallRisk), nil

	case RankByVelocity:
		velocity, err := e.ProjectVelocityWithHistory(ctx, ws.ProjectKey, 5, true)
		if err != nil {
			return 0, "", err
		}
		return velocity.MeanVelocity,
			fmt.Sprintf("mean velocity %.2f points/day", velocity.MeanVelocity), nil

	case RankByCapacityUtilization:
		allocations, err := e.store.ListAllocations(ctx, sprint.ID, true)
		if err != nil {
			return 0, "", fmt.Errorf("list allocations: %w", err)
		}
		var allocated, utilized float64
		for _, a := range allocations {
			if a.ProjectWorkstreamID == ws.ID {
				allocated += a.AllocatedPoints
				utilized += a.UtilizedPoints
			}
		}
		utilization := 0.0
		if allocated > 0 {
			utilization = utilized / allocated * 100
		}
		return utilization, fmt.Sprintf("capacity utilization %.0f%%", utilization), nil

	default:
		return 0, "", &types.ValidationError{Field: "criteria", Reason: fmt.Sprintf("unknown criteria %q", criteria)}
	}
}

// resolveSprint picks the explicit sprint or the board's most recent
// active one.
func (e *Engine) resolveSprint(ctx context.Context, boardID, sprintID int64) (*types.Sprint, error) {
	if sprintID != 0 {
		s, err := e.store.GetSprint(ctx, sprintID)
		if err != nil {
			return nil, fmt.Errorf("sprint %d: %w", sprintID, err)
		}
		return s, nil
	}
	sprints, err := e.store.ListSprints(ctx, storage.SprintFilter{
		BoardID: boardID,
		State:   types.SprintActive,
	})
	if err != nil {
		return nil, fmt.Errorf("list active sprints: %w", err)
	}
	if len(sprints) == 0 {
		return nil, fmt.Errorf("board %d: %w", boardID, ErrNoActiveSprint)
	}
	latest := sprints[0]
	for _, s := range sprints[1:] {
		if sprintStartsBefore(latest, s) {
			latest = s
		}
	}
	return latest, nil
}

// ErrNoActiveSprint reports ranking/portfolio calls against a board with
// no resolvable sprint.
var ErrNoActiveSprint = errors.New("no active sprint")
