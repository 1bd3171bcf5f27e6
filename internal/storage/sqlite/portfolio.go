package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/scullers68/sprint-reports/internal/storage"
	"github.com/scullers68/sprint-reports/internal/types"
)

// CreateWorkstream inserts a project workstream; project_key is unique.
func (s *Store) CreateWorkstream(ctx context.Context, w *types.ProjectWorkstream) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO project_workstreams (project_key, project_name, tracker_board_id,
			tracker_board_name, workstream_type, category, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ProjectKey, w.ProjectName, w.TrackerBoardID, w.TrackerBoardName,
		orDefault(string(w.WorkstreamType), string(types.WorkstreamStandard)),
		w.Category, boolToInt(w.Active), now, now)
	if err != nil {
		return 0, mapConstraintErr(err)
	}
	return res.LastInsertId()
}

const workstreamColumns = `id, project_key, project_name, tracker_board_id,
	tracker_board_name, workstream_type, category, active, created_at, updated_at`

func scanWorkstream(row interface{ Scan(...interface{}) error }) (*types.ProjectWorkstream, error) {
	var w types.ProjectWorkstream
	err := row.Scan(&w.ID, &w.ProjectKey, &w.ProjectName, &w.TrackerBoardID,
		&w.TrackerBoardName, &w.WorkstreamType, &w.Category, &w.Active,
		&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWorkstream returns a workstream by id.
func (s *Store) GetWorkstream(ctx context.Context, id int64) (*types.ProjectWorkstream, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workstreamColumns+`
		FROM project_workstreams WHERE id = ?`, id)
	w, err := scanWorkstream(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return w, err
}

// GetWorkstreamByKey returns a workstream by its unique project key.
func (s *Store) GetWorkstreamByKey(ctx context.Context, projectKey string) (*types.ProjectWorkstream, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workstreamColumns+`
		FROM project_workstreams WHERE project_key = ?`, projectKey)
	w, err := scanWorkstream(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return w, err
}

// ListWorkstreams returns all workstreams, optionally active only.
func (s *Store) ListWorkstreams(ctx context.Context, activeOnly bool) ([]*types.ProjectWorkstream, error) {
	query := `SELECT ` + workstreamColumns + ` FROM project_workstreams`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY project_key`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var workstreams []*types.ProjectWorkstream
	for rows.Next() {
		w, err := scanWorkstream(rows)
		if err != nil {
			return nil, err
		}
		workstreams = append(workstreams, w)
	}
	return workstreams, rows.Err()
}

// CreateAssociation links a sprint and a workstream; the pair is unique.
func (s *Store) CreateAssociation(ctx context.Context, a *types.ProjectSprintAssociation) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO project_sprint_associations (sprint_id, project_workstream_id,
			association_type, priority, expected_story_points, actual_story_points,
			active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.SprintID, a.ProjectWorkstreamID,
		orDefault(string(a.AssociationType), string(types.AssociationPrimary)),
		a.Priority, a.ExpectedStoryPoints, a.ActualStoryPoints,
		boolToInt(a.Active), time.Now().UTC())
	if err != nil {
		return 0, mapConstraintErr(err)
	}
	return res.LastInsertId()
}

const associationColumns = `id, sprint_id, project_workstream_id, association_type,
	priority, expected_story_points, actual_story_points, active, created_at`

func listAssociations(ctx context.Context, e execer, where string, activeOnly bool, arg int64) ([]*types.ProjectSprintAssociation, error) {
	query := `SELECT ` + associationColumns + ` FROM project_sprint_associations WHERE ` + where
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY priority, id`

	rows, err := e.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var assocs []*types.ProjectSprintAssociation
	for rows.Next() {
		var a types.ProjectSprintAssociation
		if err := rows.Scan(&a.ID, &a.SprintID, &a.ProjectWorkstreamID,
			&a.AssociationType, &a.Priority, &a.ExpectedStoryPoints,
			&a.ActualStoryPoints, &a.Active, &a.CreatedAt); err != nil {
			return nil, err
		}
		assocs = append(assocs, &a)
	}
	return assocs, rows.Err()
}

// ListAssociationsBySprint returns a sprint's workstream links ordered by priority.
func (s *Store) ListAssociationsBySprint(ctx context.Context, sprintID int64, activeOnly bool) ([]*types.ProjectSprintAssociation, error) {
	return listAssociations(ctx, s.db, `sprint_id = ?`, activeOnly, sprintID)
}

// ListAssociationsByWorkstream returns a workstream's sprint links.
func (s *Store) ListAssociationsByWorkstream(ctx context.Context, workstreamID int64, activeOnly bool) ([]*types.ProjectSprintAssociation, error) {
	return listAssociations(ctx, s.db, `project_workstream_id = ?`, activeOnly, workstreamID)
}

// InsertMetrics appends a dated metrics roll-up; (sprint, project, date) is unique.
func (s *Store) InsertMetrics(ctx context.Context, m *types.ProjectSprintMetrics) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO project_sprint_metrics (sprint_id, project_workstream_id,
			metrics_date, total_issues, completed_issues, in_progress_issues,
			blocked_issues, total_story_points, completed_story_points,
			completion_percentage, velocity, burndown_rate, scope_added_points,
			scope_removed_points, detailed_breakdown, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.SprintID, m.ProjectWorkstreamID, m.MetricsDate.UTC(), m.TotalIssues,
		m.CompletedIssues, m.InProgressIssues, m.BlockedIssues, m.TotalStoryPoints,
		m.CompletedStoryPoints, m.CompletionPercentage, m.Velocity, m.BurndownRate,
		m.ScopeAddedPoints, m.ScopeRemovedPoints,
		orDefault(m.DetailedBreakdownJSON, "{}"), time.Now().UTC())
	if err != nil {
		return 0, mapConstraintErr(err)
	}
	return res.LastInsertId()
}

// ListMetrics returns metric rows for (sprint, workstream) ordered by date.
// Either id may be 0 to match all.
func (s *Store) ListMetrics(ctx context.Context, sprintID, workstreamID int64) ([]*types.ProjectSprintMetrics, error) {
	query := `SELECT id, sprint_id, project_workstream_id, metrics_date, total_issues,
		completed_issues, in_progress_issues, blocked_issues, total_story_points,
		completed_story_points, completion_percentage, velocity, burndown_rate,
		scope_added_points, scope_removed_points, detailed_breakdown, created_at
		FROM project_sprint_metrics WHERE 1=1`
	var args []interface{}
	if sprintID != 0 {
		query += ` AND sprint_id = ?`
		args = append(args, sprintID)
	}
	if workstreamID != 0 {
		query += ` AND project_workstream_id = ?`
		args = append(args, workstreamID)
	}
	query += ` ORDER BY metrics_date, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var metrics []*types.ProjectSprintMetrics
	for rows.Next() {
		var m types.ProjectSprintMetrics
		if err := rows.Scan(&m.ID, &m.SprintID, &m.ProjectWorkstreamID, &m.MetricsDate,
			&m.TotalIssues, &m.CompletedIssues, &m.InProgressIssues, &m.BlockedIssues,
			&m.TotalStoryPoints, &m.CompletedStoryPoints, &m.CompletionPercentage,
			&m.Velocity, &m.BurndownRate, &m.ScopeAddedPoints, &m.ScopeRemovedPoints,
			&m.DetailedBreakdownJSON, &m.CreatedAt); err != nil {
			return nil, err
		}
		metrics = append(metrics, &m)
	}
	return metrics, rows.Err()
}

// UpsertTeamCapacity writes a team's capacity for a sprint, keyed by
// (sprint_id, discipline_team).
func (s *Store) UpsertTeamCapacity(ctx context.Context, c *types.DisciplineTeamCapacity) (int64, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO discipline_team_capacities (sprint_id, discipline_team,
			capacity_points, capacity_type, allocated, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sprint_id, discipline_team) DO UPDATE SET
			capacity_points = excluded.capacity_points,
			capacity_type = excluded.capacity_type,
			allocated = excluded.allocated,
			updated_at = excluded.updated_at`,
		c.SprintID, c.DisciplineTeam, c.CapacityPoints,
		orDefault(string(c.CapacityType), string(types.CapacityStoryPoints)),
		c.Allocated, now, now)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `SELECT id FROM discipline_team_capacities
		WHERE sprint_id = ? AND discipline_team = ?`, c.SprintID, c.DisciplineTeam).Scan(&id)
	return id, err
}

// ListTeamCapacities returns capacity declarations for a sprint.
func (s *Store) ListTeamCapacities(ctx context.Context, sprintID int64) ([]*types.DisciplineTeamCapacity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sprint_id, discipline_team, capacity_points, capacity_type,
			allocated, created_at, updated_at
		FROM discipline_team_capacities WHERE sprint_id = ?
		ORDER BY discipline_team`, sprintID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var capacities []*types.DisciplineTeamCapacity
	for rows.Next() {
		var c types.DisciplineTeamCapacity
		if err := rows.Scan(&c.ID, &c.SprintID, &c.DisciplineTeam, &c.CapacityPoints,
			&c.CapacityType, &c.Allocated, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		capacities = append(capacities, &c)
	}
	return capacities, rows.Err()
}

// CreateAllocation inserts a capacity allocation; the
// (sprint, project, team capacity) triple is unique.
func (s *Store) CreateAllocation(ctx context.Context, a *types.ProjectCapacityAllocation) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO project_capacity_allocations (sprint_id, project_workstream_id,
			team_capacity_id, allocated_points, utilized_points, priority, trend,
			active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.SprintID, a.ProjectWorkstreamID, a.TeamCapacityID, a.AllocatedPoints,
		a.UtilizedPoints, a.Priority, orDefault(string(a.Trend), string(types.TrendStable)),
		boolToInt(a.Active), time.Now().UTC())
	if err != nil {
		return 0, mapConstraintErr(err)
	}
	return res.LastInsertId()
}

// ListAllocations returns allocations for a sprint, optionally active only.
func (s *Store) ListAllocations(ctx context.Context, sprintID int64, activeOnly bool) ([]*types.ProjectCapacityAllocation, error) {
	query := `SELECT id, sprint_id, project_workstream_id, team_capacity_id,
		allocated_points, utilized_points, priority, trend, active, created_at
		FROM project_capacity_allocations WHERE sprint_id = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY priority, id`

	rows, err := s.db.QueryContext(ctx, query, sprintID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var allocations []*types.ProjectCapacityAllocation
	for rows.Next() {
		var a types.ProjectCapacityAllocation
		if err := rows.Scan(&a.ID, &a.SprintID, &a.ProjectWorkstreamID,
			&a.TeamCapacityID, &a.AllocatedPoints, &a.UtilizedPoints, &a.Priority,
			&a.Trend, &a.Active, &a.CreatedAt); err != nil {
			return nil, err
		}
		allocations = append(allocations, &a)
	}
	return allocations, rows.Err()
}
