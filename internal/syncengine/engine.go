// Package syncengine drives bidirectional synchronization between the
// local store and the tracker, detecting changes via content hashes and
// recording field-level conflicts.
package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scullers68/sprint-reports/internal/storage"
	"github.com/scullers68/sprint-reports/internal/tracker"
	"github.com/scullers68/sprint-reports/internal/types"
)

// TrackerAPI is the slice of the tracker client the engine consumes.
type TrackerAPI interface {
	GetSprints(ctx context.Context, boardID int64) ([]tracker.SprintDTO, error)
	APICalls() int64
	ResetAPICalls()
}

// EventSink receives audit notifications for sync operations. Sync never
// fails because a sink write failed.
type EventSink interface {
	DataAccess(ctx context.Context, actor, resourceType, resourceID, description string, success bool, correlationID string)
}

// Option configures an Engine.
type Option func(*Engine)

// WithResolutionPolicy overrides the default remote-wins auto-resolution.
func WithResolutionPolicy(strategy types.ResolutionStrategy) Option {
	return func(e *Engine) { e.policy = strategy }
}

// WithEventSink attaches an audit sink.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithMessageHandler attaches a progress callback (one line per notable
// event, suitable for CLI output or logs).
func WithMessageHandler(fn func(string)) Option {
	return func(e *Engine) { e.onMessage = fn }
}

// Engine synchronizes sprints between the tracker and local storage.
type Engine struct {
	store     storage.Storage
	client    TrackerAPI
	policy    types.ResolutionStrategy
	sink      EventSink
	onMessage func(string)
}

// New creates a sync engine. The default conflict policy is remote-wins.
func New(store storage.Storage, client TrackerAPI, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		client: client,
		policy: types.ResolveRemoteWins,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) message(format string, args ...interface{}) {
	if e.onMessage != nil {
		e.onMessage(fmt.Sprintf(format, args...))
	}
}

func (e *Engine) audit(ctx context.Context, resourceID, description string, success bool, batchID string) {
	if e.sink != nil {
		e.sink.DataAccess(ctx, "sync-engine", "sprint", resourceID, description, success, batchID)
	}
}

// SyncSprintsBidirectional runs one sync batch for a board (0 = all
// boards). incremental applies the skip rule against each entity's last
// successful sync. An empty batchID gets a fresh UUID. Per-entity failures
// are counted and do not abort the batch.
func (e *Engine) SyncSprintsBidirectional(ctx context.Context, boardID int64, incremental bool, batchID string) ([]*types.Sprint, *types.SyncHistory, error) {
	op := types.OpFullSync
	if incremental {
		op = types.OpIncrementalSync
	}
	return e.syncSprints(ctx, boardID, incremental, batchID, op, time.Time{})
}

// SyncIncremental runs an incremental batch. A zero since falls back to
// the creation time of the most recent successful sync batch.
func (e *Engine) SyncIncremental(ctx context.Context, since time.Time, boardID int64) (*types.SyncHistory, error) {
	if since.IsZero() {
		last, err := e.store.LatestSuccessfulSync(ctx, types.OpFullSync, types.OpIncrementalSync)
		if err == nil {
			since = last.CreatedAt
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("find last successful sync: %w", err)
		}
	}
	_, history, err := e.syncSprints(ctx, boardID, true, "", types.OpIncrementalSync, since)
	return history, err
}

func (e *Engine) syncSprints(ctx context.Context, boardID int64, incremental bool, batchID string, op types.OperationType, since time.Time) ([]*types.Sprint, *types.SyncHistory, error) {
	if batchID == "" {
		batchID = uuid.NewString()
	}
	started := time.Now()

	history := &types.SyncHistory{
		BatchID:       batchID,
		OperationType: op,
		Status:        types.SyncInProgress,
	}
	historyID, err := e.store.CreateSyncHistory(ctx, history)
	if err != nil {
		return nil, nil, fmt.Errorf("open sync batch: %w", err)
	}
	history.ID = historyID

	e.client.ResetAPICalls()
	remote, fetchErr := e.client.GetSprints(ctx, boardID)

	var synced []*types.Sprint
	var entityErrs []string
	if fetchErr == nil {
		e.message("sync %s: %d remote sprints", batchID, len(remote))
		for _, dto := range remote {
			if ctx.Err() != nil {
				fetchErr = ctx.Err()
				break
			}
			e.cacheSprint(ctx, dto)

			sprint, outcome, err := e.syncOne(ctx, dto, incremental, since, batchID)
			history.EntitiesProcessed++
			switch outcome.kind {
			case outcomeCreated:
				history.EntitiesCreated++
			case outcomeUpdated:
				history.EntitiesUpdated++
			case outcomeSkipped:
				history.EntitiesSkipped++
			}
			history.ConflictsDetected += outcome.conflicts
			history.ConflictsResolved += outcome.conflicts // auto-resolved by policy
			if err != nil {
				entityErrs = append(entityErrs, fmt.Sprintf("sprint %d: %v", dto.ID, err))
				e.audit(ctx, strconv.FormatInt(dto.ID, 10), "sync entity failed", false, batchID)
				continue
			}
			if sprint != nil {
				synced = append(synced, sprint)
			}
		}
	}

	history.DurationSeconds = time.Since(started).Seconds()
	history.APICallsMade = int(e.client.APICalls())
	switch {
	case fetchErr != nil && errors.Is(fetchErr, context.Canceled):
		history.Status = types.SyncFailed
		history.ErrorMessage = "cancelled"
	case fetchErr != nil:
		history.Status = types.SyncFailed
		history.ErrorMessage = fetchErr.Error()
	default:
		history.Status = types.SyncCompleted
		if len(entityErrs) > 0 {
			history.ErrorMessage = strings.Join(entityErrs, "; ")
		}
	}
	if err := e.store.UpdateSyncHistory(ctx, history); err != nil {
		return synced, history, fmt.Errorf("close sync batch: %w", err)
	}

	e.audit(ctx, "", fmt.Sprintf("sync batch %s: %d processed, %d created, %d updated, %d skipped",
		batchID, history.EntitiesProcessed, history.EntitiesCreated,
		history.EntitiesUpdated, history.EntitiesSkipped),
		history.Status == types.SyncCompleted, batchID)

	if fetchErr != nil {
		return synced, history, fmt.Errorf("sync batch %s: %w", batchID, fetchErr)
	}
	return synced, history, nil
}

type outcomeKind int

const (
	outcomeSkipped outcomeKind = iota
	outcomeCreated
	outcomeUpdated
	outcomeFailed
)

type entityOutcome struct {
	kind      outcomeKind
	conflicts int
}

// remoteModified is the freshest timestamp the tracker reports for a
// sprint; used by the incremental skip rule.
func remoteModified(dto tracker.SprintDTO) *time.Time {
	latest := dto.StartDate
	for _, t := range []*time.Time{dto.EndDate, dto.CompleteDate} {
		if t != nil && (latest == nil || t.After(*latest)) {
			latest = t
		}
	}
	return latest
}

// syncOne applies a single remote sprint. The sprint row and its sync
// metadata commit atomically; a failure rolls back this entity only.
func (e *Engine) syncOne(ctx context.Context, dto tracker.SprintDTO, incremental bool, since time.Time, batchID string) (*types.Sprint, entityOutcome, error) {
	trackerID := strconv.FormatInt(dto.ID, 10)
	now := time.Now().UTC()
	modified := remoteModified(dto)

	meta, err := e.store.GetSyncMetadataByTrackerID(ctx, types.EntitySprint, trackerID)
	if errors.Is(err, storage.ErrNotFound) {
		meta = &types.SyncMetadata{
			EntityType: types.EntitySprint,
			TrackerID:  trackerID,
			Direction:  types.DirectionBidirectional,
		}
	} else if err != nil {
		return nil, entityOutcome{kind: outcomeFailed}, fmt.Errorf("load sync metadata: %w", err)
	}

	// Incremental skip: remote unchanged since the last successful sync.
	if incremental && meta.LastSuccessful != nil && modified != nil {
		cutoff := *meta.LastSuccessful
		if !since.IsZero() && since.After(cutoff) {
			cutoff = since
		}
		if !modified.After(cutoff) {
			return nil, entityOutcome{kind: outcomeSkipped}, nil
		}
	}

	remoteHash := HashSprint(dto)
	if meta.ContentHash != "" && meta.ContentHash == remoteHash {
		return nil, entityOutcome{kind: outcomeSkipped}, nil
	}

	local, err := e.store.GetSprintByTrackerID(ctx, dto.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, entityOutcome{kind: outcomeFailed}, fmt.Errorf("load sprint: %w", err)
	}

	var outcome entityOutcome
	var result *types.Sprint
	txErr := e.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		meta.Status = types.SyncInProgress
		meta.LastAttempt = &now
		meta.BatchID = batchID
		meta.RemoteModified = modified

		if local == nil {
			sprint := sprintFromDTO(dto)
			sprint.SyncStatus = types.SyncCompleted
			if err := sprint.Validate(); err != nil {
				return err
			}
			// The sprint row is created before the metadata claim so the
			// claim carries the final entity id; the upsert keys on it.
			id, err := tx.CreateSprint(ctx, sprint)
			if err != nil {
				return fmt.Errorf("create sprint: %w", err)
			}
			sprint.ID = id
			meta.EntityID = id
			metaID, err := tx.UpsertSyncMetadata(ctx, meta)
			if err != nil {
				return fmt.Errorf("claim sync metadata: %w", err)
			}
			meta.ID = metaID
			outcome = entityOutcome{kind: outcomeCreated}
			result = sprint
		} else {
			meta.EntityID = local.ID
			// Claim the metadata row first so conflict rows can link to it.
			metaID, err := tx.UpsertSyncMetadata(ctx, meta)
			if err != nil {
				return fmt.Errorf("claim sync metadata: %w", err)
			}
			meta.ID = metaID
			conflicts, updates := e.detectConflicts(local, dto, meta)
			for _, c := range conflicts {
				c.SyncMetadataID = meta.ID
				if _, err := tx.CreateConflict(ctx, c); err != nil {
					return fmt.Errorf("record conflict: %w", err)
				}
			}
			if len(updates) > 0 {
				updates["sync_status"] = string(types.SyncCompleted)
				if err := tx.UpdateSprint(ctx, local.ID, updates); err != nil {
					return fmt.Errorf("update sprint: %w", err)
				}
			}
			outcome = entityOutcome{kind: outcomeUpdated, conflicts: len(conflicts)}
			updated := applyDTO(*local, dto)
			result = &updated
		}

		meta.Status = types.SyncCompleted
		// Stamped after the entity writes so the row's updated_at never
		// trails it; otherwise the next sync would see a phantom local edit.
		finished := time.Now().UTC()
		meta.LastSuccessful = &finished
		meta.ErrorCount = 0
		meta.LastError = ""
		meta.ContentHash = remoteHash
		if _, err := tx.UpsertSyncMetadata(ctx, meta); err != nil {
			return fmt.Errorf("save sync metadata: %w", err)
		}
		return nil
	})
	if txErr != nil {
		e.recordEntityFailure(ctx, meta, txErr, batchID)
		return nil, entityOutcome{kind: outcomeFailed}, txErr
	}
	return result, outcome, nil
}

// recordEntityFailure bumps the error count outside the rolled-back
// transaction so the failure survives.
func (e *Engine) recordEntityFailure(ctx context.Context, meta *types.SyncMetadata, cause error, batchID string) {
	now := time.Now().UTC()
	meta.Status = types.SyncFailed
	meta.LastAttempt = &now
	meta.ErrorCount++
	meta.LastError = cause.Error()
	meta.BatchID = batchID
	if _, err := e.store.UpsertSyncMetadata(ctx, meta); err != nil {
		e.message("record sync failure for %s %s: %v", meta.EntityType, meta.TrackerID, err)
	}
}

// cacheSprint refreshes the read-optimized sprint cache. Cache failures
// are reported but never fail the sync.
func (e *Engine) cacheSprint(ctx context.Context, dto tracker.SprintDTO) {
	raw, err := json.Marshal(dto)
	if err != nil {
		return
	}
	cached := &types.CachedSprint{
		TrackerSprintID: dto.ID,
		BoardID:         dto.OriginBoardID,
		Name:            dto.Name,
		State:           types.SprintState(dto.State),
		RawJSON:         string(raw),
		LastFetchedAt:   time.Now().UTC(),
	}
	if err := e.store.UpsertCachedSprint(ctx, cached); err != nil {
		e.message("cache sprint %d: %v", dto.ID, err)
	}
}

func sprintFromDTO(dto tracker.SprintDTO) *types.Sprint {
	return &types.Sprint{
		TrackerSprintID:    dto.ID,
		Name:               dto.Name,
		State:              types.SprintState(strings.ToLower(dto.State)),
		Goal:               dto.Goal,
		StartDate:          dto.StartDate,
		EndDate:            dto.EndDate,
		CompleteDate:       dto.CompleteDate,
		BoardID:            dto.OriginBoardID,
		TrackerLastUpdated: remoteModified(dto),
	}
}

func applyDTO(local types.Sprint, dto tracker.SprintDTO) types.Sprint {
	local.Name = dto.Name
	local.State = types.SprintState(strings.ToLower(dto.State))
	local.Goal = dto.Goal
	local.StartDate = dto.StartDate
	local.EndDate = dto.EndDate
	local.CompleteDate = dto.CompleteDate
	if dto.OriginBoardID != 0 {
		local.BoardID = dto.OriginBoardID
	}
	local.TrackerLastUpdated = remoteModified(dto)
	return local
}

// syncedField is one comparable sprint field for conflict detection.
type syncedField struct {
	name   string
	local  interface{}
	remote interface{}
}

func comparableFields(local *types.Sprint, dto tracker.SprintDTO) []syncedField {
	return []syncedField{
		{"name", local.Name, dto.Name},
		{"state", string(local.State), strings.ToLower(dto.State)},
		{"goal", local.Goal, dto.Goal},
		{"start_date", canonicalTime(local.StartDate), canonicalTime(dto.StartDate)},
		{"end_date", canonicalTime(local.EndDate), canonicalTime(dto.EndDate)},
		{"complete_date", canonicalTime(local.CompleteDate), canonicalTime(dto.CompleteDate)},
	}
}

// detectConflicts compares the local sprint to the remote payload.
// A conflict exists when the values differ and the local row was modified
// after the last successful sync (a concurrent local edit). All diverging
// fields produce update entries; only concurrent edits produce conflict
// rows, auto-resolved by the engine's policy.
func (e *Engine) detectConflicts(local *types.Sprint, dto tracker.SprintDTO, meta *types.SyncMetadata) ([]*types.ConflictResolution, map[string]interface{}) {
	localEdited := meta.LastSuccessful != nil && local.UpdatedAt.After(*meta.LastSuccessful)
	now := time.Now().UTC()

	var conflicts []*types.ConflictResolution
	updates := map[string]interface{}{}
	for _, f := range comparableFields(local, dto) {
		if f.local == f.remote {
			continue
		}
		updates[f.name] = f.remote
		if !localEdited {
			continue
		}

		localJSON, _ := json.Marshal(f.local)
		remoteJSON, _ := json.Marshal(f.remote)
		resolved := string(remoteJSON)
		if e.policy == types.ResolveLocalWins {
			resolved = string(localJSON)
			delete(updates, f.name)
		}
		conflicts = append(conflicts, &types.ConflictResolution{
			ConflictType:  types.ConflictField,
			FieldName:     f.name,
			LocalValue:    string(localJSON),
			RemoteValue:   string(remoteJSON),
			Strategy:      e.policy,
			ResolvedValue: resolved,
			ResolvedBy:    "sync-engine",
			ResolvedAt:    &now,
			Resolved:      true,
			Notes:         fmt.Sprintf("Auto-resolved: %s", e.policy),
		})
	}
	return conflicts, updates
}
