package syncengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scullers68/sprint-reports/internal/tracker"
	"github.com/scullers68/sprint-reports/internal/types"
)

func TestValidateConsistencyCleanState(t *testing.T) {
	remote := []tracker.SprintDTO{{
		ID:            40,
		Name:          "S40",
		State:         "active",
		Goal:          "Ship it",
		StartDate:     dt("2026-03-02T00:00:00Z"),
		EndDate:       dt("2026-03-16T00:00:00Z"),
		OriginBoardID: 2,
	}}
	engine, _, _ := setupEngine(t, remote)
	ctx := context.Background()

	_, _, err := engine.SyncSprintsBidirectional(ctx, 2, false, "")
	require.NoError(t, err)

	report, err := engine.ValidateConsistency(ctx, 2)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Empty(t, report.MissingLocal)
	assert.Empty(t, report.MissingRemote)
	assert.Empty(t, report.Mismatches)
}

func TestValidateConsistencyReportsMissingRows(t *testing.T) {
	engine, store, client := setupEngine(t, []tracker.SprintDTO{
		{ID: 41, Name: "S41", State: "active", OriginBoardID: 2},
	})
	ctx := context.Background()

	// A local row the remote no longer has.
	_, err := store.CreateSprint(ctx, &types.Sprint{
		TrackerSprintID: 42,
		BoardID:         2,
		Name:            "S42",
		State:           types.SprintClosed,
	})
	require.NoError(t, err)

	report, err := engine.ValidateConsistency(ctx, 2)
	require.NoError(t, err)
	assert.False(t, report.Consistent)
	assert.Equal(t, []int64{41}, report.MissingLocal)
	assert.Equal(t, []int64{42}, report.MissingRemote)

	// The check never writes.
	_, err = store.GetSprintByTrackerID(ctx, 41)
	assert.Error(t, err)
	assert.Equal(t, int64(1), client.APICalls())
}

func TestValidateConsistencyReportsFieldDrift(t *testing.T) {
	remote := []tracker.SprintDTO{{
		ID:            43,
		Name:          "Renamed upstream",
		State:         "active",
		OriginBoardID: 2,
	}}
	engine, store, _ := setupEngine(t, remote)
	ctx := context.Background()

	_, err := store.CreateSprint(ctx, &types.Sprint{
		TrackerSprintID: 43,
		BoardID:         2,
		Name:            "Original name",
		State:           types.SprintActive,
	})
	require.NoError(t, err)

	report, err := engine.ValidateConsistency(ctx, 2)
	require.NoError(t, err)
	assert.False(t, report.Consistent)
	require.Len(t, report.Mismatches, 1)
	m := report.Mismatches[0]
	assert.Equal(t, int64(43), m.TrackerSprintID)
	assert.Equal(t, "name", m.Field)
	assert.Equal(t, "Original name", m.Local)
	assert.Equal(t, "Renamed upstream", m.Remote)

	// State matches case-insensitively, so it is not a mismatch.
	for _, mm := range report.Mismatches {
		assert.NotEqual(t, "state", mm.Field)
	}
}
