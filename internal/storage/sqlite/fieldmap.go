package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/scullers68/sprint-reports/internal/storage"
	"github.com/scullers68/sprint-reports/internal/types"
)

// CreateTemplate inserts a field mapping template.
func (s *Store) CreateTemplate(ctx context.Context, t *types.FieldMappingTemplate) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO field_mapping_templates (name, description, context, active,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.Name, t.Description, orDefault(t.Context, "default"),
		boolToInt(t.Active), now, now)
	if err != nil {
		return 0, mapConstraintErr(err)
	}
	return res.LastInsertId()
}

func scanTemplate(row interface{ Scan(...interface{}) error }) (*types.FieldMappingTemplate, error) {
	var t types.FieldMappingTemplate
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Context, &t.Active,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTemplate returns a template by id.
func (s *Store) GetTemplate(ctx context.Context, id int64) (*types.FieldMappingTemplate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, context, active, created_at, updated_at
		FROM field_mapping_templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return t, err
}

// GetActiveTemplate returns the single active template for a context.
func (s *Store) GetActiveTemplate(ctx context.Context, context_ string) (*types.FieldMappingTemplate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, context, active, created_at, updated_at
		FROM field_mapping_templates
		WHERE context = ? AND active = 1
		ORDER BY updated_at DESC LIMIT 1`, orDefault(context_, "default"))
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return t, err
}

func marshalMappingConfig(m *types.FieldMapping) (transform, rules, defaultValue string, err error) {
	tc, err := json.Marshal(m.TransformConfig)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal transform config: %w", err)
	}
	vr, err := json.Marshal(m.ValidationRules)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal validation rules: %w", err)
	}
	dv, err := json.Marshal(m.DefaultValue)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal default value: %w", err)
	}
	return string(tc), string(vr), string(dv), nil
}

// CreateFieldMapping inserts a mapping at version 1.
func (s *Store) CreateFieldMapping(ctx context.Context, m *types.FieldMapping) (int64, error) {
	transform, rules, defaultValue, err := marshalMappingConfig(m)
	if err != nil {
		return 0, err
	}
	if m.Version == 0 {
		m.Version = 1
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO field_mappings (template_id, tracker_field_id, target_field,
			field_type, mapping_type, transform_config, validation_rules,
			default_value, required, active, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.TemplateID, m.TrackerFieldID, m.TargetField,
		orDefault(string(m.FieldType), string(types.FieldString)),
		orDefault(string(m.MappingType), string(types.MappingDirect)),
		transform, rules, defaultValue, boolToInt(m.Required),
		boolToInt(m.Active), m.Version, now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateFieldMapping rewrites a mapping row (including its version counter
// and active flag; soft deletes go through here with Active=false).
func (s *Store) UpdateFieldMapping(ctx context.Context, m *types.FieldMapping) error {
	transform, rules, defaultValue, err := marshalMappingConfig(m)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE field_mappings SET tracker_field_id = ?, target_field = ?,
			field_type = ?, mapping_type = ?, transform_config = ?,
			validation_rules = ?, default_value = ?, required = ?, active = ?,
			version = ?, updated_at = ?
		WHERE id = ?`,
		m.TrackerFieldID, m.TargetField, string(m.FieldType), string(m.MappingType),
		transform, rules, defaultValue, boolToInt(m.Required), boolToInt(m.Active),
		m.Version, time.Now().UTC(), m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanFieldMapping(row interface{ Scan(...interface{}) error }) (*types.FieldMapping, error) {
	var m types.FieldMapping
	var transform, rules, defaultValue string
	err := row.Scan(&m.ID, &m.TemplateID, &m.TrackerFieldID, &m.TargetField,
		&m.FieldType, &m.MappingType, &transform, &rules, &defaultValue,
		&m.Required, &m.Active, &m.Version, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(transform), &m.TransformConfig); err != nil {
		return nil, fmt.Errorf("unmarshal transform config: %w", err)
	}
	if err := json.Unmarshal([]byte(rules), &m.ValidationRules); err != nil {
		return nil, fmt.Errorf("unmarshal validation rules: %w", err)
	}
	if err := json.Unmarshal([]byte(defaultValue), &m.DefaultValue); err != nil {
		return nil, fmt.Errorf("unmarshal default value: %w", err)
	}
	return &m, nil
}

const fieldMappingColumns = `id, template_id, tracker_field_id, target_field,
	field_type, mapping_type, transform_config, validation_rules, default_value,
	required, active, version, created_at, updated_at`

// GetFieldMapping returns one mapping by id (active or not).
func (s *Store) GetFieldMapping(ctx context.Context, id int64) (*types.FieldMapping, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fieldMappingColumns+`
		FROM field_mappings WHERE id = ?`, id)
	m, err := scanFieldMapping(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return m, err
}

// ListActiveMappings returns a template's active mappings.
func (s *Store) ListActiveMappings(ctx context.Context, templateID int64) ([]*types.FieldMapping, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+fieldMappingColumns+`
		FROM field_mappings WHERE template_id = ? AND active = 1
		ORDER BY target_field`, templateID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var mappings []*types.FieldMapping
	for rows.Next() {
		m, err := scanFieldMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// InsertMappingVersion appends an immutable version row.
func (s *Store) InsertMappingVersion(ctx context.Context, v *types.FieldMappingVersion) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO field_mapping_versions (field_mapping_id, version, change_type,
			description, previous_config, new_config, changed_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.FieldMappingID, v.Version, string(v.ChangeType), v.Description,
		v.PreviousConfig, v.NewConfig, v.ChangedBy, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListMappingVersions returns a mapping's history, oldest first.
func (s *Store) ListMappingVersions(ctx context.Context, fieldMappingID int64) ([]*types.FieldMappingVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, field_mapping_id, version, change_type, description,
			previous_config, new_config, changed_by, created_at
		FROM field_mapping_versions WHERE field_mapping_id = ?
		ORDER BY version, id`, fieldMappingID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var versions []*types.FieldMappingVersion
	for rows.Next() {
		var v types.FieldMappingVersion
		if err := rows.Scan(&v.ID, &v.FieldMappingID, &v.Version, &v.ChangeType,
			&v.Description, &v.PreviousConfig, &v.NewConfig, &v.ChangedBy,
			&v.CreatedAt); err != nil {
			return nil, err
		}
		versions = append(versions, &v)
	}
	return versions, rows.Err()
}
