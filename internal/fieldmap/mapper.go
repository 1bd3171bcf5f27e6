// Package fieldmap translates raw tracker records into canonical domain
// fields through configurable, versioned mapping templates.
package fieldmap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/scullers68/sprint-reports/internal/storage"
	"github.com/scullers68/sprint-reports/internal/types"
)

// FieldError reports a per-field mapping failure. ApplyTemplate collects
// these instead of aborting the whole record.
type FieldError struct {
	TargetField string
	Message     string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("field %s: %s", e.TargetField, e.Message)
}

// Mapper is the field mapping service. All mutations write a
// FieldMappingVersion row so configuration changes stay auditable.
type Mapper struct {
	store storage.Storage
}

// NewMapper creates a Mapper backed by the given store.
func NewMapper(store storage.Storage) *Mapper {
	return &Mapper{store: store}
}

func mappingConfigJSON(m *types.FieldMapping) string {
	snapshot := map[string]interface{}{
		"tracker_field_id": m.TrackerFieldID,
		"target_field":     m.TargetField,
		"field_type":       m.FieldType,
		"mapping_type":     m.MappingType,
		"transform_config": m.TransformConfig,
		"validation_rules": m.ValidationRules,
		"default_value":    m.DefaultValue,
		"required":         m.Required,
		"active":           m.Active,
	}
	b, err := json.Marshal(snapshot)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// CreateMapping inserts a mapping at version 1 and records the creation.
func (m *Mapper) CreateMapping(ctx context.Context, mapping *types.FieldMapping, changedBy string) (int64, error) {
	mapping.Version = 1
	mapping.Active = true
	id, err := m.store.CreateFieldMapping(ctx, mapping)
	if err != nil {
		return 0, fmt.Errorf("create field mapping: %w", err)
	}
	mapping.ID = id

	_, err = m.store.InsertMappingVersion(ctx, &types.FieldMappingVersion{
		FieldMappingID: id,
		Version:        1,
		ChangeType:     types.MappingCreated,
		Description:    "mapping created",
		NewConfig:      mappingConfigJSON(mapping),
		ChangedBy:      changedBy,
	})
	if err != nil {
		return 0, fmt.Errorf("record mapping version: %w", err)
	}
	return id, nil
}

// UpdateMapping rewrites a mapping, bumping its version and recording the
// before/after snapshots.
func (m *Mapper) UpdateMapping(ctx context.Context, mapping *types.FieldMapping, description, changedBy string) error {
	previous, err := m.store.GetFieldMapping(ctx, mapping.ID)
	if err != nil {
		return fmt.Errorf("load field mapping %d: %w", mapping.ID, err)
	}

	mapping.Version = previous.Version + 1
	if err := m.store.UpdateFieldMapping(ctx, mapping); err != nil {
		return fmt.Errorf("update field mapping %d: %w", mapping.ID, err)
	}

	if description == "" {
		description = "mapping updated"
	}
	_, err = m.store.InsertMappingVersion(ctx, &types.FieldMappingVersion{
		FieldMappingID: mapping.ID,
		Version:        mapping.Version,
		ChangeType:     types.MappingUpdated,
		Description:    description,
		PreviousConfig: mappingConfigJSON(previous),
		NewConfig:      mappingConfigJSON(mapping),
		ChangedBy:      changedBy,
	})
	if err != nil {
		return fmt.Errorf("record mapping version: %w", err)
	}
	return nil
}

// DeleteMapping soft-deletes a mapping (active=false) and records the
// deletion. The row and its history remain.
func (m *Mapper) DeleteMapping(ctx context.Context, id int64, changedBy string) error {
	mapping, err := m.store.GetFieldMapping(ctx, id)
	if err != nil {
		return fmt.Errorf("load field mapping %d: %w", id, err)
	}
	previousConfig := mappingConfigJSON(mapping)

	mapping.Active = false
	mapping.Version++
	if err := m.store.UpdateFieldMapping(ctx, mapping); err != nil {
		return fmt.Errorf("deactivate field mapping %d: %w", id, err)
	}

	_, err = m.store.InsertMappingVersion(ctx, &types.FieldMappingVersion{
		FieldMappingID: id,
		Version:        mapping.Version,
		ChangeType:     types.MappingDeleted,
		Description:    "mapping deactivated",
		PreviousConfig: previousConfig,
		NewConfig:      mappingConfigJSON(mapping),
		ChangedBy:      changedBy,
	})
	if err != nil {
		return fmt.Errorf("record mapping version: %w", err)
	}
	return nil
}

// History returns the version trail of a mapping, oldest first.
func (m *Mapper) History(ctx context.Context, mappingID int64) ([]*types.FieldMappingVersion, error) {
	return m.store.ListMappingVersions(ctx, mappingID)
}

// ApplyTemplate maps a raw tracker record through a template's active
// mappings. templateID 0 selects the active template for the "default"
// context. Per-field failures are returned alongside the mapped values;
// the mapped value for a failed optional field falls back to the default.
func (m *Mapper) ApplyTemplate(ctx context.Context, rawRecord map[string]interface{}, templateID int64) (map[string]interface{}, []FieldError, error) {
	if templateID == 0 {
		tmpl, err := m.store.GetActiveTemplate(ctx, "default")
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return map[string]interface{}{}, nil, nil
			}
			return nil, nil, fmt.Errorf("load active template: %w", err)
		}
		templateID = tmpl.ID
	}

	mappings, err := m.store.ListActiveMappings(ctx, templateID)
	if err != nil {
		return nil, nil, fmt.Errorf("load mappings for template %d: %w", templateID, err)
	}

	mapped := make(map[string]interface{}, len(mappings))
	var fieldErrs []FieldError
	for _, mapping := range mappings {
		value, fieldErr := m.applyMapping(mapping, rawRecord)
		if fieldErr != nil {
			fieldErrs = append(fieldErrs, *fieldErr)
		}
		if value != nil {
			mapped[mapping.TargetField] = value
		}
	}
	return mapped, fieldErrs, nil
}

func (m *Mapper) applyMapping(mapping *types.FieldMapping, rawRecord map[string]interface{}) (interface{}, *FieldError) {
	raw, present := rawRecord[mapping.TrackerFieldID]

	value, ok, err := TransformValue(raw, mapping.FieldType, mapping.TransformConfig)
	if err != nil {
		return mapping.DefaultValue, &FieldError{
			TargetField: mapping.TargetField,
			Message:     err.Error(),
		}
	}
	if !ok || !present {
		if mapping.Required && mapping.DefaultValue == nil {
			return nil, &FieldError{
				TargetField: mapping.TargetField,
				Message:     "required field missing from record",
			}
		}
		return mapping.DefaultValue, nil
	}

	result := ValidateValue(value, mapping.ValidationRules, mapping.FieldType, mapping.Required)
	if !result.OK {
		return mapping.DefaultValue, &FieldError{
			TargetField: mapping.TargetField,
			Message:     fmt.Sprintf("validation failed: %v", result.Errors),
		}
	}
	return result.Normalized, nil
}

// EnsureTemplate returns the active template for a context, creating an
// empty one when none exists.
func (m *Mapper) EnsureTemplate(ctx context.Context, context_, name string) (*types.FieldMappingTemplate, error) {
	tmpl, err := m.store.GetActiveTemplate(ctx, context_)
	if err == nil {
		return tmpl, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	tmpl = &types.FieldMappingTemplate{
		Name:    name,
		Context: context_,
		Active:  true,
	}
	id, err := m.store.CreateTemplate(ctx, tmpl)
	if err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	tmpl.ID = id
	now := time.Now().UTC()
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now
	return tmpl, nil
}
