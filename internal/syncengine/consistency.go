package syncengine

import (
	"context"
	"fmt"
	"strings"

	"github.com/scullers68/sprint-reports/internal/storage"
	"github.com/scullers68/sprint-reports/internal/tracker"
	"github.com/scullers68/sprint-reports/internal/types"
)

// FieldMismatch is one diverging field on an entity present on both sides.
type FieldMismatch struct {
	TrackerSprintID int64  `json:"tracker_sprint_id"`
	Field           string `json:"field"`
	Local           string `json:"local"`
	Remote          string `json:"remote"`
}

// ConsistencyReport is the outcome of an offline local-vs-remote check.
// Producing it never mutates state.
type ConsistencyReport struct {
	MissingLocal  []int64         `json:"missing_local"`  // remote sprints with no local row
	MissingRemote []int64         `json:"missing_remote"` // local sprints absent from the remote set
	Mismatches    []FieldMismatch `json:"mismatches"`
	Consistent    bool            `json:"consistent"`
}

// ValidateConsistency compares the remote sprint set for a board against
// local state and reports divergence without changing anything.
func (e *Engine) ValidateConsistency(ctx context.Context, boardID int64) (*ConsistencyReport, error) {
	remote, err := e.client.GetSprints(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("fetch remote sprints: %w", err)
	}
	local, err := e.store.ListSprints(ctx, storage.SprintFilter{BoardID: boardID})
	if err != nil {
		return nil, fmt.Errorf("list local sprints: %w", err)
	}

	localByTrackerID := make(map[int64]*types.Sprint, len(local))
	for _, s := range local {
		localByTrackerID[s.TrackerSprintID] = s
	}

	report := &ConsistencyReport{}
	remoteIDs := make(map[int64]bool, len(remote))
	for _, dto := range remote {
		remoteIDs[dto.ID] = true
		s, ok := localByTrackerID[dto.ID]
		if !ok {
			report.MissingLocal = append(report.MissingLocal, dto.ID)
			continue
		}
		report.Mismatches = append(report.Mismatches, compareSprint(s, dto)...)
	}
	for _, s := range local {
		if !remoteIDs[s.TrackerSprintID] {
			report.MissingRemote = append(report.MissingRemote, s.TrackerSprintID)
		}
	}

	report.Consistent = len(report.MissingLocal) == 0 &&
		len(report.MissingRemote) == 0 && len(report.Mismatches) == 0
	return report, nil
}

func compareSprint(local *types.Sprint, dto tracker.SprintDTO) []FieldMismatch {
	var out []FieldMismatch
	for _, f := range comparableFields(local, dto) {
		lv := fmt.Sprintf("%v", f.local)
		rv := fmt.Sprintf("%v", f.remote)
		if !strings.EqualFold(lv, rv) {
			out = append(out, FieldMismatch{
				TrackerSprintID: dto.ID,
				Field:           f.name,
				Local:           lv,
				Remote:          rv,
			})
		}
	}
	return out
}
