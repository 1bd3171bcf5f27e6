package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/scullers68/sprint-reports/internal/storage"
	"github.com/scullers68/sprint-reports/internal/types"
)

// sprintColumns is the select list shared by all sprint queries.
const sprintColumns = `id, tracker_sprint_id, name, state, goal, start_date, end_date,
	complete_date, board_id, tracker_last_updated, sync_status, tracker_board_name,
	tracker_project_key, tracker_api_version, created_at, updated_at`

func insertSprint(ctx context.Context, e execer, s *types.Sprint) (int64, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	res, err := e.ExecContext(ctx, `
		INSERT INTO sprints (
			tracker_sprint_id, name, state, goal, start_date, end_date, complete_date,
			board_id, tracker_last_updated, sync_status, tracker_board_name,
			tracker_project_key, tracker_api_version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.TrackerSprintID, s.Name, string(s.State), s.Goal,
		nullTime(s.StartDate), nullTime(s.EndDate), nullTime(s.CompleteDate),
		s.BoardID, nullTime(s.TrackerLastUpdated), orDefault(string(s.SyncStatus), string(types.SyncPending)),
		s.TrackerBoardName, s.TrackerProjectKey, s.TrackerAPIVersion, now, now)
	if err != nil {
		return 0, mapConstraintErr(err)
	}
	return res.LastInsertId()
}

// CreateSprint inserts a sprint and returns its local id.
func (s *Store) CreateSprint(ctx context.Context, sp *types.Sprint) (int64, error) {
	return insertSprint(ctx, s.db, sp)
}

func (t *storeTx) CreateSprint(ctx context.Context, sp *types.Sprint) (int64, error) {
	return insertSprint(ctx, t.tx, sp)
}

func scanSprint(row interface{ Scan(...interface{}) error }) (*types.Sprint, error) {
	var sp types.Sprint
	var start, end, complete, lastUpdated sql.NullTime
	err := row.Scan(&sp.ID, &sp.TrackerSprintID, &sp.Name, &sp.State, &sp.Goal,
		&start, &end, &complete, &sp.BoardID, &lastUpdated, &sp.SyncStatus,
		&sp.TrackerBoardName, &sp.TrackerProjectKey, &sp.TrackerAPIVersion,
		&sp.CreatedAt, &sp.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sp.StartDate = timePtr(start)
	sp.EndDate = timePtr(end)
	sp.CompleteDate = timePtr(complete)
	sp.TrackerLastUpdated = timePtr(lastUpdated)
	return &sp, nil
}

// GetSprint returns a sprint by local id.
func (s *Store) GetSprint(ctx context.Context, id int64) (*types.Sprint, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE id = ?`, id)
	sp, err := scanSprint(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return sp, err
}

// GetSprintByTrackerID returns a sprint by its unique tracker sprint id.
func (s *Store) GetSprintByTrackerID(ctx context.Context, trackerSprintID int64) (*types.Sprint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sprintColumns+` FROM sprints WHERE tracker_sprint_id = ?`, trackerSprintID)
	sp, err := scanSprint(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return sp, err
}

// sprintUpdateColumns whitelists the columns UpdateSprint may touch.
var sprintUpdateColumns = map[string]bool{
	"name": true, "state": true, "goal": true, "start_date": true,
	"end_date": true, "complete_date": true, "board_id": true,
	"tracker_last_updated": true, "sync_status": true, "tracker_board_name": true,
	"tracker_project_key": true, "tracker_api_version": true,
}

func updateSprint(ctx context.Context, e execer, id int64, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	cols := make([]string, 0, len(updates))
	for col := range updates {
		if !sprintUpdateColumns[col] {
			return fmt.Errorf("update sprint: unknown column %q", col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var sb strings.Builder
	args := make([]interface{}, 0, len(cols)+2)
	sb.WriteString("UPDATE sprints SET ")
	for i, col := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(col + " = ?")
		args = append(args, updates[col])
	}
	sb.WriteString(", updated_at = ? WHERE id = ?")
	args = append(args, time.Now().UTC(), id)

	res, err := e.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateSprint applies a column/value map to one sprint row.
func (s *Store) UpdateSprint(ctx context.Context, id int64, updates map[string]interface{}) error {
	return updateSprint(ctx, s.db, id, updates)
}

func (t *storeTx) UpdateSprint(ctx context.Context, id int64, updates map[string]interface{}) error {
	return updateSprint(ctx, t.tx, id, updates)
}

// ListSprints returns sprints matching the filter, most recent start first.
func (s *Store) ListSprints(ctx context.Context, filter storage.SprintFilter) ([]*types.Sprint, error) {
	query := `SELECT ` + sprintColumns + ` FROM sprints WHERE 1=1`
	var args []interface{}
	if filter.BoardID != 0 {
		query += ` AND board_id = ?`
		args = append(args, filter.BoardID)
	}
	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	if filter.ProjectKey != "" {
		query += ` AND tracker_project_key = ?`
		args = append(args, filter.ProjectKey)
	}
	query += ` ORDER BY start_date DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sprints []*types.Sprint
	for rows.Next() {
		sp, err := scanSprint(rows)
		if err != nil {
			return nil, err
		}
		sprints = append(sprints, sp)
	}
	return sprints, rows.Err()
}

// InsertSprintAnalysis appends an analysis row.
func (s *Store) InsertSprintAnalysis(ctx context.Context, a *types.SprintAnalysis) (int64, error) {
	breakdown, err := json.Marshal(a.Breakdown)
	if err != nil {
		return 0, fmt.Errorf("marshal breakdown: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sprint_analyses (sprint_id, analysis_type, total_issues,
			total_story_points, breakdown, filter_applied, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.SprintID, string(a.AnalysisType), a.TotalIssues, a.TotalStoryPoints,
		string(breakdown), a.FilterApplied, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LatestSprintAnalysis returns the most recent analysis of the given type.
func (s *Store) LatestSprintAnalysis(ctx context.Context, sprintID int64, at types.AnalysisType) (*types.SprintAnalysis, error) {
	var a types.SprintAnalysis
	var breakdown string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sprint_id, analysis_type, total_issues, total_story_points,
			breakdown, filter_applied, created_at
		FROM sprint_analyses
		WHERE sprint_id = ? AND analysis_type = ?
		ORDER BY id DESC LIMIT 1`, sprintID, string(at)).
		Scan(&a.ID, &a.SprintID, &a.AnalysisType, &a.TotalIssues,
			&a.TotalStoryPoints, &breakdown, &a.FilterApplied, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(breakdown), &a.Breakdown); err != nil {
		return nil, fmt.Errorf("unmarshal breakdown: %w", err)
	}
	return &a, nil
}

// UpsertCachedSprint writes a cache row, replacing any existing one.
func (s *Store) UpsertCachedSprint(ctx context.Context, c *types.CachedSprint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cached_sprints (tracker_sprint_id, board_id, name, state, raw,
			last_fetched_at, error_count, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tracker_sprint_id) DO UPDATE SET
			board_id = excluded.board_id,
			name = excluded.name,
			state = excluded.state,
			raw = excluded.raw,
			last_fetched_at = excluded.last_fetched_at,
			error_count = excluded.error_count,
			last_error = excluded.last_error`,
		c.TrackerSprintID, c.BoardID, c.Name, string(c.State), c.RawJSON,
		c.LastFetchedAt, c.ErrorCount, c.LastError)
	return err
}

// ListCachedSprints returns cached sprints for one board (0 = all boards).
func (s *Store) ListCachedSprints(ctx context.Context, boardID int64) ([]*types.CachedSprint, error) {
	query := `SELECT tracker_sprint_id, board_id, name, state, raw, last_fetched_at,
		error_count, last_error FROM cached_sprints`
	var args []interface{}
	if boardID != 0 {
		query += ` WHERE board_id = ?`
		args = append(args, boardID)
	}
	query += ` ORDER BY tracker_sprint_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var cached []*types.CachedSprint
	for rows.Next() {
		var c types.CachedSprint
		if err := rows.Scan(&c.TrackerSprintID, &c.BoardID, &c.Name, &c.State,
			&c.RawJSON, &c.LastFetchedAt, &c.ErrorCount, &c.LastError); err != nil {
			return nil, err
		}
		cached = append(cached, &c)
	}
	return cached, rows.Err()
}

// Helpers shared by the query files.

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// mapConstraintErr converts SQLite uniqueness violations to storage.ErrDuplicate.
func mapConstraintErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint") {
		return fmt.Errorf("%w: %v", storage.ErrDuplicate, err)
	}
	return err
}
