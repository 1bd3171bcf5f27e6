package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/scullers68/sprint-reports/internal/storage"
	"github.com/scullers68/sprint-reports/internal/types"
)

const syncMetadataColumns = `id, entity_type, entity_id, tracker_id, status,
	last_attempt, last_successful, local_modified, remote_modified, error_count,
	last_error, direction, content_hash, batch_id, created_at, updated_at`

func scanSyncMetadata(row interface{ Scan(...interface{}) error }) (*types.SyncMetadata, error) {
	var m types.SyncMetadata
	var lastAttempt, lastSuccessful, localMod, remoteMod sql.NullTime
	err := row.Scan(&m.ID, &m.EntityType, &m.EntityID, &m.TrackerID, &m.Status,
		&lastAttempt, &lastSuccessful, &localMod, &remoteMod, &m.ErrorCount,
		&m.LastError, &m.Direction, &m.ContentHash, &m.BatchID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.LastAttempt = timePtr(lastAttempt)
	m.LastSuccessful = timePtr(lastSuccessful)
	m.LocalModified = timePtr(localMod)
	m.RemoteModified = timePtr(remoteMod)
	return &m, nil
}

// GetSyncMetadata returns the row for (entityType, entityID).
func (s *Store) GetSyncMetadata(ctx context.Context, entityType types.EntityType, entityID int64) (*types.SyncMetadata, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+syncMetadataColumns+`
		FROM sync_metadata WHERE entity_type = ? AND entity_id = ?`,
		string(entityType), entityID)
	m, err := scanSyncMetadata(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return m, err
}

// GetSyncMetadataByTrackerID returns the row for (entityType, trackerID).
func (s *Store) GetSyncMetadataByTrackerID(ctx context.Context, entityType types.EntityType, trackerID string) (*types.SyncMetadata, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+syncMetadataColumns+`
		FROM sync_metadata WHERE entity_type = ? AND tracker_id = ?`,
		string(entityType), trackerID)
	m, err := scanSyncMetadata(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return m, err
}

func upsertSyncMetadata(ctx context.Context, e execer, m *types.SyncMetadata) (int64, error) {
	now := time.Now().UTC()
	if m.ID != 0 {
		// A row with a known id updates in place; this is the only path
		// that may re-key entity_id, and it never inserts.
		_, err := e.ExecContext(ctx, `
			UPDATE sync_metadata SET entity_id = ?, tracker_id = ?, status = ?,
				last_attempt = ?, last_successful = ?, local_modified = ?,
				remote_modified = ?, error_count = ?, last_error = ?,
				direction = ?, content_hash = ?, batch_id = ?, updated_at = ?
			WHERE id = ?`,
			m.EntityID, m.TrackerID,
			orDefault(string(m.Status), string(types.SyncPending)),
			nullTime(m.LastAttempt), nullTime(m.LastSuccessful),
			nullTime(m.LocalModified), nullTime(m.RemoteModified),
			m.ErrorCount, m.LastError, orDefault(string(m.Direction), string(types.DirectionRemoteToLocal)),
			m.ContentHash, m.BatchID, now, m.ID)
		return m.ID, err
	}
	_, err := e.ExecContext(ctx, `
		INSERT INTO sync_metadata (entity_type, entity_id, tracker_id, status,
			last_attempt, last_successful, local_modified, remote_modified,
			error_count, last_error, direction, content_hash, batch_id,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_type, entity_id) DO UPDATE SET
			tracker_id = excluded.tracker_id,
			status = excluded.status,
			last_attempt = excluded.last_attempt,
			last_successful = excluded.last_successful,
			local_modified = excluded.local_modified,
			remote_modified = excluded.remote_modified,
			error_count = excluded.error_count,
			last_error = excluded.last_error,
			direction = excluded.direction,
			content_hash = excluded.content_hash,
			batch_id = excluded.batch_id,
			updated_at = excluded.updated_at`,
		string(m.EntityType), m.EntityID, m.TrackerID,
		orDefault(string(m.Status), string(types.SyncPending)),
		nullTime(m.LastAttempt), nullTime(m.LastSuccessful),
		nullTime(m.LocalModified), nullTime(m.RemoteModified),
		m.ErrorCount, m.LastError, orDefault(string(m.Direction), string(types.DirectionRemoteToLocal)),
		m.ContentHash, m.BatchID, now, now)
	if err != nil {
		return 0, err
	}
	// On conflict LastInsertId is unreliable; re-read the key.
	var id int64
	err = e.QueryRowContext(ctx, `SELECT id FROM sync_metadata WHERE entity_type = ? AND entity_id = ?`,
		string(m.EntityType), m.EntityID).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpsertSyncMetadata writes the per-entity sync state and returns the
// row id. New rows key on (entity_type, entity_id); rows carrying an id
// update in place.
func (s *Store) UpsertSyncMetadata(ctx context.Context, m *types.SyncMetadata) (int64, error) {
	return upsertSyncMetadata(ctx, s.db, m)
}

func (t *storeTx) UpsertSyncMetadata(ctx context.Context, m *types.SyncMetadata) (int64, error) {
	return upsertSyncMetadata(ctx, t.tx, m)
}

// CreateSyncHistory opens a batch row and returns its id.
func (s *Store) CreateSyncHistory(ctx context.Context, h *types.SyncHistory) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_history (batch_id, operation_type, entities_processed,
			entities_created, entities_updated, entities_deleted, entities_skipped,
			conflicts_detected, conflicts_resolved, duration_seconds, api_calls_made,
			status, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.BatchID, string(h.OperationType), h.EntitiesProcessed, h.EntitiesCreated,
		h.EntitiesUpdated, h.EntitiesDeleted, h.EntitiesSkipped, h.ConflictsDetected,
		h.ConflictsResolved, h.DurationSeconds, h.APICallsMade,
		orDefault(string(h.Status), string(types.SyncInProgress)), h.ErrorMessage,
		time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateSyncHistory rewrites the counters and status of a batch row.
func (s *Store) UpdateSyncHistory(ctx context.Context, h *types.SyncHistory) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_history SET entities_processed = ?, entities_created = ?,
			entities_updated = ?, entities_deleted = ?, entities_skipped = ?,
			conflicts_detected = ?, conflicts_resolved = ?, duration_seconds = ?,
			api_calls_made = ?, status = ?, error_message = ?
		WHERE id = ?`,
		h.EntitiesProcessed, h.EntitiesCreated, h.EntitiesUpdated, h.EntitiesDeleted,
		h.EntitiesSkipped, h.ConflictsDetected, h.ConflictsResolved,
		h.DurationSeconds, h.APICallsMade, string(h.Status), h.ErrorMessage, h.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// LatestSuccessfulSync returns the newest completed batch for any of the
// given operation types (all types if none given).
func (s *Store) LatestSuccessfulSync(ctx context.Context, ops ...types.OperationType) (*types.SyncHistory, error) {
	query := `SELECT id, batch_id, operation_type, entities_processed, entities_created,
		entities_updated, entities_deleted, entities_skipped, conflicts_detected,
		conflicts_resolved, duration_seconds, api_calls_made, status, error_message,
		created_at
		FROM sync_history WHERE status = 'completed'`
	var args []interface{}
	if len(ops) > 0 {
		query += ` AND operation_type IN (`
		for i, op := range ops {
			if i > 0 {
				query += `, `
			}
			query += `?`
			args = append(args, string(op))
		}
		query += `)`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT 1`

	var h types.SyncHistory
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&h.ID, &h.BatchID,
		&h.OperationType, &h.EntitiesProcessed, &h.EntitiesCreated, &h.EntitiesUpdated,
		&h.EntitiesDeleted, &h.EntitiesSkipped, &h.ConflictsDetected,
		&h.ConflictsResolved, &h.DurationSeconds, &h.APICallsMade, &h.Status,
		&h.ErrorMessage, &h.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

const conflictColumns = `id, sync_metadata_id, conflict_type, field_name, local_value,
	remote_value, strategy, resolved_value, resolved_by, resolved_at, resolved,
	notes, created_at`

func scanConflict(row interface{ Scan(...interface{}) error }) (*types.ConflictResolution, error) {
	var c types.ConflictResolution
	var resolvedAt sql.NullTime
	err := row.Scan(&c.ID, &c.SyncMetadataID, &c.ConflictType, &c.FieldName,
		&c.LocalValue, &c.RemoteValue, &c.Strategy, &c.ResolvedValue, &c.ResolvedBy,
		&resolvedAt, &c.Resolved, &c.Notes, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.ResolvedAt = timePtr(resolvedAt)
	return &c, nil
}

func insertConflict(ctx context.Context, e execer, c *types.ConflictResolution) (int64, error) {
	res, err := e.ExecContext(ctx, `
		INSERT INTO conflict_resolutions (sync_metadata_id, conflict_type, field_name,
			local_value, remote_value, strategy, resolved_value, resolved_by,
			resolved_at, resolved, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.SyncMetadataID, orDefault(string(c.ConflictType), string(types.ConflictField)),
		c.FieldName, orDefault(c.LocalValue, "null"), orDefault(c.RemoteValue, "null"),
		string(c.Strategy), orDefault(c.ResolvedValue, "null"), c.ResolvedBy,
		nullTime(c.ResolvedAt), boolToInt(c.Resolved), c.Notes, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CreateConflict records a field-level conflict and returns its id.
func (s *Store) CreateConflict(ctx context.Context, c *types.ConflictResolution) (int64, error) {
	return insertConflict(ctx, s.db, c)
}

func (t *storeTx) CreateConflict(ctx context.Context, c *types.ConflictResolution) (int64, error) {
	return insertConflict(ctx, t.tx, c)
}

// GetConflict returns one conflict row by id.
func (s *Store) GetConflict(ctx context.Context, id int64) (*types.ConflictResolution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conflictColumns+`
		FROM conflict_resolutions WHERE id = ?`, id)
	c, err := scanConflict(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return c, err
}

// UpdateConflict rewrites a conflict's resolution fields.
func (s *Store) UpdateConflict(ctx context.Context, c *types.ConflictResolution) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conflict_resolutions SET strategy = ?, resolved_value = ?,
			resolved_by = ?, resolved_at = ?, resolved = ?, notes = ?
		WHERE id = ?`,
		string(c.Strategy), orDefault(c.ResolvedValue, "null"), c.ResolvedBy,
		nullTime(c.ResolvedAt), boolToInt(c.Resolved), c.Notes, c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListConflicts returns conflicts for a sync_metadata row (0 = all rows),
// optionally unresolved only.
func (s *Store) ListConflicts(ctx context.Context, syncMetadataID int64, unresolvedOnly bool) ([]*types.ConflictResolution, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflict_resolutions WHERE 1=1`
	var args []interface{}
	if syncMetadataID != 0 {
		query += ` AND sync_metadata_id = ?`
		args = append(args, syncMetadataID)
	}
	if unresolvedOnly {
		query += ` AND resolved = 0`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var conflicts []*types.ConflictResolution
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}
