package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/scullers68/sprint-reports/internal/storage"
	"github.com/scullers68/sprint-reports/internal/types"
)

const securityEventColumns = `id, event_type, category, severity, user_id, user_email,
	source_ip, resource_type, resource_id, resource_name, success, description,
	metadata, compliance_tags, correlation_id, checksum, previous_checksum,
	retention_date, created_at`

// InsertSecurityEvent persists an event row. The checksum is written
// separately via SetSecurityEventChecksum once the row id is known.
func (s *Store) InsertSecurityEvent(ctx context.Context, e *types.SecurityEvent) (int64, error) {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return 0, fmt.Errorf("marshal metadata: %w", err)
	}
	tags, err := json.Marshal(e.ComplianceTags)
	if err != nil {
		return 0, fmt.Errorf("marshal compliance tags: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO security_events (event_type, category, severity, user_id,
			user_email, source_ip, resource_type, resource_id, resource_name,
			success, description, metadata, compliance_tags, correlation_id,
			checksum, previous_checksum, retention_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.EventType), e.Category, orDefault(string(e.Severity), string(types.SeverityInfo)),
		e.UserID, e.UserEmail, e.SourceIP, e.ResourceType, e.ResourceID,
		e.ResourceName, boolToInt(e.Success), e.Description, string(metadata),
		string(tags), e.CorrelationID, e.Checksum, e.PreviousChecksum,
		e.RetentionDate.UTC(), e.CreatedAt.UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// SetSecurityEventChecksum writes the checksum computed after insertion.
func (s *Store) SetSecurityEventChecksum(ctx context.Context, id int64, checksum string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE security_events SET checksum = ? WHERE id = ?`, checksum, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanSecurityEvent(row interface{ Scan(...interface{}) error }) (*types.SecurityEvent, error) {
	var e types.SecurityEvent
	var metadata, tags string
	err := row.Scan(&e.ID, &e.EventType, &e.Category, &e.Severity, &e.UserID,
		&e.UserEmail, &e.SourceIP, &e.ResourceType, &e.ResourceID, &e.ResourceName,
		&e.Success, &e.Description, &metadata, &tags, &e.CorrelationID,
		&e.Checksum, &e.PreviousChecksum, &e.RetentionDate, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metadata), &e.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &e.ComplianceTags); err != nil {
		return nil, fmt.Errorf("unmarshal compliance tags: %w", err)
	}
	return &e, nil
}

// GetSecurityEvent returns one event by id.
func (s *Store) GetSecurityEvent(ctx context.Context, id int64) (*types.SecurityEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+securityEventColumns+`
		FROM security_events WHERE id = ?`, id)
	e, err := scanSecurityEvent(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return e, err
}

// LatestSecurityEvent returns the highest-id event, or ErrNotFound when the
// chain is empty.
func (s *Store) LatestSecurityEvent(ctx context.Context) (*types.SecurityEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+securityEventColumns+`
		FROM security_events ORDER BY id DESC LIMIT 1`)
	e, err := scanSecurityEvent(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return e, err
}

// ListSecurityEvents returns events matching the filter in ascending id order.
func (s *Store) ListSecurityEvents(ctx context.Context, filter storage.SecurityEventFilter) ([]*types.SecurityEvent, error) {
	query := `SELECT ` + securityEventColumns + ` FROM security_events WHERE 1=1`
	var args []interface{}
	if filter.FromID > 0 {
		query += ` AND id >= ?`
		args = append(args, filter.FromID)
	}
	if filter.ToID > 0 {
		query += ` AND id <= ?`
		args = append(args, filter.ToID)
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		query += ` AND created_at <= ?`
		args = append(args, filter.Until.UTC())
	}
	if filter.ComplianceTag != "" {
		// Tags are stored as a JSON array of strings.
		query += ` AND compliance_tags LIKE ?`
		args = append(args, `%"`+strings.ReplaceAll(filter.ComplianceTag, `"`, ``)+`"%`)
	}
	if filter.MissingChecksum {
		query += ` AND checksum = ''`
	}
	if filter.RetentionDue != nil {
		query += ` AND retention_date <= ?`
		args = append(args, filter.RetentionDue.UTC())
	}
	query += ` ORDER BY id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []*types.SecurityEvent
	for rows.Next() {
		e, err := scanSecurityEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// DeleteSecurityEvents removes events by id and returns how many went away.
// Used only by retention enforcement.
func (s *Store) DeleteSecurityEvents(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.Repeat("?, ", len(ids)-1) + "?"
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM security_events WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// GetUser returns a user with role names decoded.
func (s *Store) GetUser(ctx context.Context, id string) (*types.User, error) {
	var u types.User
	var roles string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, active, superuser, roles, created_at
		FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Email, &u.Active, &u.Superuser, &roles, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(roles), &u.Roles); err != nil {
		return nil, fmt.Errorf("unmarshal roles: %w", err)
	}
	return &u, nil
}

// UpsertUser creates or replaces a user row.
func (s *Store) UpsertUser(ctx context.Context, u *types.User) error {
	roles, err := json.Marshal(u.Roles)
	if err != nil {
		return fmt.Errorf("marshal roles: %w", err)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, active, superuser, roles, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			active = excluded.active,
			superuser = excluded.superuser,
			roles = excluded.roles`,
		u.ID, u.Email, boolToInt(u.Active), boolToInt(u.Superuser),
		string(roles), u.CreatedAt.UTC())
	return err
}

// GetRoles returns the active roles among the given names.
func (s *Store) GetRoles(ctx context.Context, names []string) ([]*types.Role, error) {
	if len(names) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?, ", len(names)-1) + "?"
	args := make([]interface{}, len(names))
	for i, n := range names {
		args[i] = n
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, permissions, active FROM roles
		WHERE active = 1 AND name IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*types.Role
	for rows.Next() {
		var r types.Role
		var perms string
		if err := rows.Scan(&r.ID, &r.Name, &perms, &r.Active); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(perms), &r.Permissions); err != nil {
			return nil, fmt.Errorf("unmarshal permissions: %w", err)
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

// UpsertRole creates or replaces a role by name.
func (s *Store) UpsertRole(ctx context.Context, r *types.Role) error {
	perms, err := json.Marshal(r.Permissions)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO roles (name, permissions, active)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			permissions = excluded.permissions,
			active = excluded.active`,
		r.Name, string(perms), boolToInt(r.Active))
	return err
}
