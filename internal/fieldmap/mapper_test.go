package fieldmap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/scullers68/sprint-reports/internal/storage"
	"github.com/scullers68/sprint-reports/internal/storage/sqlite"
	"github.com/scullers68/sprint-reports/internal/types"
)

func setupMapper(t *testing.T) (*Mapper, storage.Storage) {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "fieldmap.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewMapper(store), store
}

func seedTemplate(t *testing.T, m *Mapper, mappings ...*types.FieldMapping) int64 {
	t.Helper()
	ctx := context.Background()
	tmpl, err := m.EnsureTemplate(ctx, "default", "Default template")
	if err != nil {
		t.Fatalf("EnsureTemplate failed: %v", err)
	}
	for _, mapping := range mappings {
		mapping.TemplateID = tmpl.ID
		if _, err := m.CreateMapping(ctx, mapping, "tester"); err != nil {
			t.Fatalf("CreateMapping failed: %v", err)
		}
	}
	return tmpl.ID
}

func TestApplyTemplateMapsFields(t *testing.T) {
	m, _ := setupMapper(t)
	templateID := seedTemplate(t, m,
		&types.FieldMapping{
			TrackerFieldID: "customfield_10016",
			TargetField:    "story_points",
			FieldType:      types.FieldFloat,
			MappingType:    types.MappingDirect,
		},
		&types.FieldMapping{
			TrackerFieldID:  "priority",
			TargetField:     "priority_name",
			FieldType:       types.FieldString,
			MappingType:     types.MappingTransformation,
			TransformConfig: map[string]interface{}{"type": "extract_object_value", "key": "name"},
		},
	)

	record := map[string]interface{}{
		"customfield_10016": 8.0,
		"priority":          map[string]interface{}{"name": "High", "id": "2"},
	}
	mapped, fieldErrs, err := m.ApplyTemplate(context.Background(), record, templateID)
	if err != nil {
		t.Fatalf("ApplyTemplate failed: %v", err)
	}
	if len(fieldErrs) != 0 {
		t.Fatalf("unexpected field errors: %v", fieldErrs)
	}
	if mapped["story_points"] != 8.0 {
		t.Errorf("story_points = %v, want 8", mapped["story_points"])
	}
	if mapped["priority_name"] != "High" {
		t.Errorf("priority_name = %v, want High", mapped["priority_name"])
	}
}

func TestApplyTemplateRequiredFieldMissing(t *testing.T) {
	m, _ := setupMapper(t)
	templateID := seedTemplate(t, m, &types.FieldMapping{
		TrackerFieldID: "customfield_10016",
		TargetField:    "story_points",
		FieldType:      types.FieldFloat,
		MappingType:    types.MappingDirect,
		Required:       true,
	})

	mapped, fieldErrs, err := m.ApplyTemplate(context.Background(), map[string]interface{}{}, templateID)
	if err != nil {
		t.Fatalf("ApplyTemplate failed: %v", err)
	}
	if len(fieldErrs) != 1 || fieldErrs[0].TargetField != "story_points" {
		t.Fatalf("field errors = %v, want one for story_points", fieldErrs)
	}
	if _, ok := mapped["story_points"]; ok {
		t.Error("missing required field produced a value")
	}
}

func TestApplyTemplateDefaultOnValidationFailure(t *testing.T) {
	m, _ := setupMapper(t)
	templateID := seedTemplate(t, m, &types.FieldMapping{
		TrackerFieldID:  "customfield_10016",
		TargetField:     "story_points",
		FieldType:       types.FieldFloat,
		MappingType:     types.MappingDirect,
		ValidationRules: map[string]interface{}{"max_value": 100},
		DefaultValue:    0.0,
	})

	record := map[string]interface{}{"customfield_10016": 5000.0}
	mapped, fieldErrs, err := m.ApplyTemplate(context.Background(), record, templateID)
	if err != nil {
		t.Fatalf("ApplyTemplate failed: %v", err)
	}
	if len(fieldErrs) != 1 {
		t.Fatalf("expected 1 field error, got %v", fieldErrs)
	}
	if mapped["story_points"] != 0.0 {
		t.Errorf("story_points = %v, want fallback default", mapped["story_points"])
	}
}

func TestApplyTemplateNoActiveTemplate(t *testing.T) {
	m, _ := setupMapper(t)

	mapped, fieldErrs, err := m.ApplyTemplate(context.Background(), map[string]interface{}{"x": 1}, 0)
	if err != nil {
		t.Fatalf("ApplyTemplate without template failed: %v", err)
	}
	if len(mapped) != 0 || len(fieldErrs) != 0 {
		t.Errorf("expected empty result, got %v / %v", mapped, fieldErrs)
	}
}

func TestMappingVersionTrail(t *testing.T) {
	m, _ := setupMapper(t)
	ctx := context.Background()
	seedTemplate(t, m)

	tmpl, err := m.EnsureTemplate(ctx, "default", "Default template")
	if err != nil {
		t.Fatalf("EnsureTemplate failed: %v", err)
	}
	mapping := &types.FieldMapping{
		TemplateID:     tmpl.ID,
		TrackerFieldID: "labels",
		TargetField:    "tags",
		FieldType:      types.FieldList,
		MappingType:    types.MappingDirect,
	}
	id, err := m.CreateMapping(ctx, mapping, "alice")
	if err != nil {
		t.Fatalf("CreateMapping failed: %v", err)
	}

	mapping.TargetField = "labels"
	if err := m.UpdateMapping(ctx, mapping, "rename target", "bob"); err != nil {
		t.Fatalf("UpdateMapping failed: %v", err)
	}
	if err := m.DeleteMapping(ctx, id, "carol"); err != nil {
		t.Fatalf("DeleteMapping failed: %v", err)
	}

	history, err := m.History(ctx, id)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(history))
	}
	wantTypes := []types.MappingChangeType{types.MappingCreated, types.MappingUpdated, types.MappingDeleted}
	wantActors := []string{"alice", "bob", "carol"}
	for i, v := range history {
		if v.ChangeType != wantTypes[i] || v.ChangedBy != wantActors[i] {
			t.Errorf("version %d = %s by %s, want %s by %s", i+1, v.ChangeType, v.ChangedBy, wantTypes[i], wantActors[i])
		}
		if v.Version != i+1 {
			t.Errorf("version number = %d, want %d", v.Version, i+1)
		}
	}

	// Soft delete: the row survives, inactive.
	stored, err := m.store.GetFieldMapping(ctx, id)
	if err != nil {
		t.Fatalf("GetFieldMapping after delete failed: %v", err)
	}
	if stored.Active {
		t.Error("deleted mapping still active")
	}
}

func TestDiscoverMappings(t *testing.T) {
	fields := []CustomField{
		{ID: "customfield_10016", Name: "Story Points"},
		{ID: "customfield_10020", Name: "Sprint"},
		{ID: "customfield_10900", Name: "Internal Notes"},
	}
	samples := []map[string]interface{}{
		{"customfield_10016": 5.0, "customfield_10900": "free text"},
		{"customfield_10016": 8.0},
	}

	suggestions := DiscoverMappings(fields, samples)
	if len(suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %v", suggestions)
	}

	// Both samples carry story points, so it ranks first at full
	// confidence; the unrecognized notes field produces nothing.
	sp := suggestions[0]
	if sp.TargetField != "story_points" || sp.TrackerFieldID != "customfield_10016" {
		t.Fatalf("top suggestion = %+v, want story_points", sp)
	}
	if sp.Confidence != 1.0 || sp.SampleCount != 2 {
		t.Errorf("story_points confidence=%v samples=%d, want 1.0/2", sp.Confidence, sp.SampleCount)
	}

	sprint := suggestions[1]
	if sprint.TargetField != "sprint" || sprint.Confidence != 0.6 {
		t.Errorf("unused field suggestion = %+v, want name-only confidence 0.6", sprint)
	}
}
