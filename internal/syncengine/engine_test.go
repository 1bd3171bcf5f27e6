package syncengine

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scullers68/sprint-reports/internal/storage"
	"github.com/scullers68/sprint-reports/internal/storage/sqlite"
	"github.com/scullers68/sprint-reports/internal/tracker"
	"github.com/scullers68/sprint-reports/internal/types"
)

type fakeTracker struct {
	sprints []tracker.SprintDTO
	err     error
	calls   atomic.Int64
}

func (f *fakeTracker) GetSprints(ctx context.Context, boardID int64) ([]tracker.SprintDTO, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.sprints, f.err
}

func (f *fakeTracker) APICalls() int64 { return f.calls.Load() }
func (f *fakeTracker) ResetAPICalls() { f.calls.Store(0) }

func setupEngine(t *testing.T, remote []tracker.SprintDTO, opts ...Option) (*Engine, storage.Storage, *fakeTracker) {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "sync.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	client := &fakeTracker{sprints: remote}
	return New(store, client, opts...), store, client
}

func dt(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestSyncCreatesSprint(t *testing.T) {
	remote := []tracker.SprintDTO{{
		ID:            10,
		Name:          "S1",
		State:         "active",
		Goal:          "Ship",
		StartDate:     dt("2026-02-02T00:00:00Z"),
		EndDate:       dt("2026-02-16T00:00:00Z"),
		OriginBoardID: 1,
	}}
	engine, store, _ := setupEngine(t, remote)
	ctx := context.Background()

	synced, history, err := engine.SyncSprintsBidirectional(ctx, 1, false, "")
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if len(synced) != 1 {
		t.Fatalf("expected 1 synced sprint, got %d", len(synced))
	}
	if history.Status != types.SyncCompleted {
		t.Errorf("history status = %s, want completed", history.Status)
	}
	if history.EntitiesCreated != 1 || history.EntitiesProcessed != 1 {
		t.Errorf("counters: created=%d processed=%d", history.EntitiesCreated, history.EntitiesProcessed)
	}
	if history.APICallsMade != 1 {
		t.Errorf("APICallsMade = %d, want 1", history.APICallsMade)
	}
	if history.BatchID == "" {
		t.Error("batch id not assigned")
	}

	sprint, err := store.GetSprintByTrackerID(ctx, 10)
	if err != nil {
		t.Fatalf("sprint row missing: %v", err)
	}
	if sprint.Name != "S1" || sprint.State != types.SprintActive || sprint.BoardID != 1 {
		t.Errorf("unexpected sprint %+v", sprint)
	}

	meta, err := store.GetSyncMetadataByTrackerID(ctx, types.EntitySprint, "10")
	if err != nil {
		t.Fatalf("sync metadata missing: %v", err)
	}
	if meta.Status != types.SyncCompleted || meta.ContentHash == "" || meta.LastSuccessful == nil {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if meta.EntityID != sprint.ID {
		t.Errorf("metadata entity id = %d, want %d", meta.EntityID, sprint.ID)
	}
}

func TestSyncMetadataSingleRowPerSprint(t *testing.T) {
	remote := []tracker.SprintDTO{{ID: 16, Name: "S1", State: "active", OriginBoardID: 1}}
	engine, store, _ := setupEngine(t, remote)
	ctx := context.Background()

	if _, _, err := engine.SyncSprintsBidirectional(ctx, 1, false, ""); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	sprint, err := store.GetSprintByTrackerID(ctx, 16)
	if err != nil {
		t.Fatalf("sprint row missing: %v", err)
	}

	// The entity and tracker lookups land on the same row.
	byEntity, err := store.GetSyncMetadata(ctx, types.EntitySprint, sprint.ID)
	if err != nil {
		t.Fatalf("metadata by entity id missing: %v", err)
	}
	byTracker, err := store.GetSyncMetadataByTrackerID(ctx, types.EntitySprint, "16")
	if err != nil {
		t.Fatalf("metadata by tracker id missing: %v", err)
	}
	if byEntity.ID != byTracker.ID {
		t.Errorf("metadata rows diverge: entity lookup id=%d, tracker lookup id=%d", byEntity.ID, byTracker.ID)
	}
	if byTracker.ContentHash == "" || byTracker.LastSuccessful == nil {
		t.Errorf("tracker lookup returned an unfinished row: %+v", byTracker)
	}

	// No leftover row keyed to entity id 0 from before the sprint existed.
	if _, err := store.GetSyncMetadata(ctx, types.EntitySprint, 0); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("orphan metadata row at entity id 0: %v", err)
	}
}

func TestSyncSkipsUnchangedByHash(t *testing.T) {
	remote := []tracker.SprintDTO{{ID: 11, Name: "S1", State: "active", OriginBoardID: 1}}
	engine, _, _ := setupEngine(t, remote)
	ctx := context.Background()

	if _, _, err := engine.SyncSprintsBidirectional(ctx, 1, false, ""); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}
	_, history, err := engine.SyncSprintsBidirectional(ctx, 1, false, "")
	if err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if history.EntitiesSkipped != 1 {
		t.Errorf("skipped = %d, want 1 (content hash unchanged)", history.EntitiesSkipped)
	}
	if history.EntitiesCreated != 0 || history.EntitiesUpdated != 0 {
		t.Errorf("unchanged sprint was written: %+v", history)
	}
}

func TestSyncUpdatesChangedSprint(t *testing.T) {
	remote := []tracker.SprintDTO{{ID: 12, Name: "S1", State: "active", OriginBoardID: 1}}
	engine, store, client := setupEngine(t, remote)
	ctx := context.Background()

	if _, _, err := engine.SyncSprintsBidirectional(ctx, 1, false, ""); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}

	client.sprints = []tracker.SprintDTO{{ID: 12, Name: "S1", State: "closed", OriginBoardID: 1}}
	_, history, err := engine.SyncSprintsBidirectional(ctx, 1, false, "")
	if err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if history.EntitiesUpdated != 1 {
		t.Errorf("updated = %d, want 1", history.EntitiesUpdated)
	}
	// No concurrent local edit, so the divergence is not a conflict.
	if history.ConflictsDetected != 0 {
		t.Errorf("conflicts = %d, want 0", history.ConflictsDetected)
	}

	sprint, err := store.GetSprintByTrackerID(ctx, 12)
	if err != nil {
		t.Fatalf("sprint row missing: %v", err)
	}
	if sprint.State != types.SprintClosed {
		t.Errorf("state = %s, want closed", sprint.State)
	}
}

func TestSyncDetectsAndAutoResolvesConflict(t *testing.T) {
	remote := []tracker.SprintDTO{{ID: 13, Name: "S1", State: "active", OriginBoardID: 1}}
	engine, store, client := setupEngine(t, remote)
	ctx := context.Background()

	if _, _, err := engine.SyncSprintsBidirectional(ctx, 1, false, ""); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}

	sprint, err := store.GetSprintByTrackerID(ctx, 13)
	if err != nil {
		t.Fatalf("sprint row missing: %v", err)
	}
	// A local edit after the last successful sync makes the remote
	// divergence a conflict. The sleep keeps updated_at strictly later.
	time.Sleep(20 * time.Millisecond)
	if err := store.UpdateSprint(ctx, sprint.ID, map[string]interface{}{"name": "S1-local"}); err != nil {
		t.Fatalf("local edit failed: %v", err)
	}

	client.sprints = []tracker.SprintDTO{{ID: 13, Name: "S1-remote", State: "active", OriginBoardID: 1}}
	_, history, err := engine.SyncSprintsBidirectional(ctx, 1, false, "")
	if err != nil {
		t.Fatalf("conflicting sync failed: %v", err)
	}
	if history.ConflictsDetected != 1 || history.ConflictsResolved != 1 {
		t.Fatalf("conflicts detected=%d resolved=%d, want 1/1", history.ConflictsDetected, history.ConflictsResolved)
	}

	meta, err := store.GetSyncMetadataByTrackerID(ctx, types.EntitySprint, "13")
	if err != nil {
		t.Fatalf("metadata missing: %v", err)
	}
	conflicts, err := store.ListConflicts(ctx, meta.ID, false)
	if err != nil {
		t.Fatalf("ListConflicts failed: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict row, got %d", len(conflicts))
	}
	c := conflicts[0]
	if c.FieldName != "name" || !c.Resolved || c.Strategy != types.ResolveRemoteWins {
		t.Errorf("unexpected conflict %+v", c)
	}
	if c.ResolvedValue != `"S1-remote"` {
		t.Errorf("resolved value = %s, want remote", c.ResolvedValue)
	}

	// Remote wins: the local edit is overwritten.
	sprint, err = store.GetSprintByTrackerID(ctx, 13)
	if err != nil {
		t.Fatalf("sprint row missing: %v", err)
	}
	if sprint.Name != "S1-remote" {
		t.Errorf("name = %s, want S1-remote", sprint.Name)
	}
}

func TestSyncLocalWinsPolicyKeepsLocalValue(t *testing.T) {
	remote := []tracker.SprintDTO{{ID: 14, Name: "S1", State: "active", OriginBoardID: 1}}
	engine, store, client := setupEngine(t, remote, WithResolutionPolicy(types.ResolveLocalWins))
	ctx := context.Background()

	if _, _, err := engine.SyncSprintsBidirectional(ctx, 1, false, ""); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}
	sprint, err := store.GetSprintByTrackerID(ctx, 14)
	if err != nil {
		t.Fatalf("sprint row missing: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := store.UpdateSprint(ctx, sprint.ID, map[string]interface{}{"name": "S1-local"}); err != nil {
		t.Fatalf("local edit failed: %v", err)
	}

	client.sprints = []tracker.SprintDTO{{ID: 14, Name: "S1-remote", State: "active", OriginBoardID: 1}}
	if _, _, err := engine.SyncSprintsBidirectional(ctx, 1, false, ""); err != nil {
		t.Fatalf("conflicting sync failed: %v", err)
	}

	sprint, err = store.GetSprintByTrackerID(ctx, 14)
	if err != nil {
		t.Fatalf("sprint row missing: %v", err)
	}
	if sprint.Name != "S1-local" {
		t.Errorf("name = %s, want local edit preserved", sprint.Name)
	}
}

func TestSyncIncrementalSkipsOldSprints(t *testing.T) {
	remote := []tracker.SprintDTO{{
		ID:            15,
		Name:          "Old",
		State:         "closed",
		StartDate:     dt("2025-01-01T00:00:00Z"),
		EndDate:       dt("2025-01-15T00:00:00Z"),
		CompleteDate:  dt("2025-01-15T00:00:00Z"),
		OriginBoardID: 1,
	}}
	engine, _, _ := setupEngine(t, remote)
	ctx := context.Background()

	if _, _, err := engine.SyncSprintsBidirectional(ctx, 1, false, ""); err != nil {
		t.Fatalf("seed sync failed: %v", err)
	}

	history, err := engine.SyncIncremental(ctx, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 1)
	if err != nil {
		t.Fatalf("incremental sync failed: %v", err)
	}
	if history.OperationType != types.OpIncrementalSync {
		t.Errorf("operation = %s, want incremental", history.OperationType)
	}
	if history.EntitiesSkipped != 1 {
		t.Errorf("skipped = %d, want 1", history.EntitiesSkipped)
	}
}

func TestSyncCancelledFetch(t *testing.T) {
	engine, store, client := setupEngine(t, nil)
	client.err = context.Canceled
	ctx := context.Background()

	_, history, err := engine.SyncSprintsBidirectional(ctx, 1, false, "batch-cancel")
	if err == nil {
		t.Fatal("expected error from cancelled sync")
	}
	if history.Status != types.SyncFailed || history.ErrorMessage != "cancelled" {
		t.Errorf("history = %+v, want failed/cancelled", history)
	}

	// The batch outcome is persisted even on failure.
	stored, err := store.LatestSuccessfulSync(ctx)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("cancelled batch recorded as successful: %+v, %v", stored, err)
	}
}

func TestHashSprint(t *testing.T) {
	a := tracker.SprintDTO{ID: 1, Name: "S", State: "active", StartDate: dt("2026-02-02T00:00:00Z")}
	b := tracker.SprintDTO{ID: 1, Name: "S", State: "active", StartDate: dt("2026-02-02T00:00:00Z")}
	if HashSprint(a) != HashSprint(b) {
		t.Error("equal sprints must hash equal")
	}

	// Zone changes that keep the same instant hash equal.
	syd := a.StartDate.In(time.FixedZone("AEDT", 11*3600))
	c := a
	c.StartDate = &syd
	if HashSprint(a) != HashSprint(c) {
		t.Error("hash must be zone-independent")
	}

	d := a
	d.Name = "Renamed"
	if HashSprint(a) == HashSprint(d) {
		t.Error("different sprints must hash differently")
	}
}

func TestResolveConflictManual(t *testing.T) {
	engine, store, _ := setupEngine(t, nil)
	ctx := context.Background()

	metaID, err := store.UpsertSyncMetadata(ctx, &types.SyncMetadata{
		EntityType: types.EntitySprint,
		TrackerID:  "20",
		Direction:  types.DirectionBidirectional,
	})
	if err != nil {
		t.Fatalf("seed metadata failed: %v", err)
	}
	conflictID, err := store.CreateConflict(ctx, &types.ConflictResolution{
		SyncMetadataID: metaID,
		ConflictType:   types.ConflictField,
		FieldName:      "goal",
		LocalValue:     `"local goal"`,
		RemoteValue:    `"remote goal"`,
	})
	if err != nil {
		t.Fatalf("seed conflict failed: %v", err)
	}

	_, err = engine.ResolveConflict(ctx, conflictID, types.ResolveManual, "", "", "alice")
	var verr *types.ValidationError
	if !errors.As(err, &verr) || verr.Field != "resolved_value" {
		t.Fatalf("manual without value: expected validation error, got %v", err)
	}

	resolved, err := engine.ResolveConflict(ctx, conflictID, types.ResolveManual, `"merged goal"`, "agreed in standup", "alice")
	if err != nil {
		t.Fatalf("manual resolution failed: %v", err)
	}
	if !resolved.Resolved || resolved.ResolvedValue != `"merged goal"` || resolved.ResolvedBy != "alice" {
		t.Errorf("unexpected resolution %+v", resolved)
	}

	stored, err := store.GetConflict(ctx, conflictID)
	if err != nil {
		t.Fatalf("GetConflict failed: %v", err)
	}
	if stored.Notes != "agreed in standup" {
		t.Errorf("notes not persisted: %q", stored.Notes)
	}
}

func TestResolveConflictStrategies(t *testing.T) {
	engine, store, _ := setupEngine(t, nil)
	ctx := context.Background()

	metaID, err := store.UpsertSyncMetadata(ctx, &types.SyncMetadata{
		EntityType: types.EntitySprint,
		TrackerID:  "21",
		Direction:  types.DirectionBidirectional,
	})
	if err != nil {
		t.Fatalf("seed metadata failed: %v", err)
	}
	newConflict := func() int64 {
		id, err := store.CreateConflict(ctx, &types.ConflictResolution{
			SyncMetadataID: metaID,
			ConflictType:   types.ConflictField,
			FieldName:      "name",
			LocalValue:     `"local"`,
			RemoteValue:    `"remote"`,
		})
		if err != nil {
			t.Fatalf("seed conflict failed: %v", err)
		}
		return id
	}

	local, err := engine.ResolveConflict(ctx, newConflict(), types.ResolveLocalWins, "", "", "bob")
	if err != nil {
		t.Fatalf("local-wins failed: %v", err)
	}
	if local.ResolvedValue != `"local"` {
		t.Errorf("local-wins resolved %s", local.ResolvedValue)
	}

	remoteRes, err := engine.ResolveConflict(ctx, newConflict(), types.ResolveRemoteWins, "", "", "bob")
	if err != nil {
		t.Fatalf("remote-wins failed: %v", err)
	}
	if remoteRes.ResolvedValue != `"remote"` {
		t.Errorf("remote-wins resolved %s", remoteRes.ResolvedValue)
	}

	_, err = engine.ResolveConflict(ctx, newConflict(), types.ResolveMerge, "", "", "bob")
	if !errors.Is(err, ErrNotImplemented) {
		t.Errorf("merge: expected ErrNotImplemented, got %v", err)
	}
}
