package fieldmap

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/scullers68/sprint-reports/internal/types"
)

// templateFile is the on-disk YAML shape for seeding mapping templates.
type templateFile struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Context     string        `yaml:"context"`
	Mappings    []mappingYAML `yaml:"mappings"`
}

type mappingYAML struct {
	TrackerFieldID  string                 `yaml:"tracker_field_id"`
	TargetField     string                 `yaml:"target_field"`
	FieldType       string                 `yaml:"field_type"`
	MappingType     string                 `yaml:"mapping_type"`
	TransformConfig map[string]interface{} `yaml:"transform_config"`
	ValidationRules map[string]interface{} `yaml:"validation_rules"`
	DefaultValue    interface{}            `yaml:"default_value"`
	Required        bool                   `yaml:"required"`
}

// LoadTemplateFile parses a YAML template definition and installs it as
// the template plus its mappings, each with a version-1 history row.
// Returns the created template id.
func (m *Mapper) LoadTemplateFile(ctx context.Context, path, changedBy string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read template file: %w", err)
	}

	var tf templateFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return 0, fmt.Errorf("parse template file %s: %w", path, err)
	}
	if tf.Name == "" {
		return 0, fmt.Errorf("template file %s: name is required", path)
	}

	templateID, err := m.store.CreateTemplate(ctx, &types.FieldMappingTemplate{
		Name:        tf.Name,
		Description: tf.Description,
		Context:     tf.Context,
		Active:      true,
	})
	if err != nil {
		return 0, fmt.Errorf("create template %s: %w", tf.Name, err)
	}

	for i, my := range tf.Mappings {
		if my.TrackerFieldID == "" || my.TargetField == "" {
			return 0, fmt.Errorf("template %s: mapping %d missing tracker_field_id or target_field", tf.Name, i)
		}
		mapping := &types.FieldMapping{
			TemplateID:      templateID,
			TrackerFieldID:  my.TrackerFieldID,
			TargetField:     my.TargetField,
			FieldType:       types.FieldType(my.FieldType),
			MappingType:     types.MappingType(my.MappingType),
			TransformConfig: my.TransformConfig,
			ValidationRules: my.ValidationRules,
			DefaultValue:    my.DefaultValue,
			Required:        my.Required,
		}
		if mapping.FieldType == "" {
			mapping.FieldType = types.FieldString
		}
		if mapping.MappingType == "" {
			mapping.MappingType = types.MappingDirect
		}
		if _, err := m.CreateMapping(ctx, mapping, changedBy); err != nil {
			return 0, fmt.Errorf("template %s: mapping %s: %w", tf.Name, my.TargetField, err)
		}
	}
	return templateID, nil
}
