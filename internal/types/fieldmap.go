package types

import "time"

// FieldType is the declared canonical type of a mapped field.
type FieldType string

const (
	FieldString   FieldType = "string"
	FieldInteger  FieldType = "integer"
	FieldFloat    FieldType = "float"
	FieldBoolean  FieldType = "boolean"
	FieldList     FieldType = "list"
	FieldObject   FieldType = "object"
	FieldDate     FieldType = "date"
	FieldDateTime FieldType = "datetime"
)

// MappingType selects how a raw value reaches the canonical field.
type MappingType string

const (
	MappingDirect         MappingType = "direct"
	MappingTransformation MappingType = "transformation"
	MappingLookup         MappingType = "lookup"
)

// FieldMapping maps one tracker field to a canonical domain field.
// TransformConfig and ValidationRules are free-form JSON objects whose
// shapes are interpreted by the fieldmap package.
type FieldMapping struct {
	ID              int64                  `json:"id"`
	TemplateID      int64                  `json:"template_id"`
	TrackerFieldID  string                 `json:"tracker_field_id"`
	TargetField     string                 `json:"target_field"`
	FieldType       FieldType              `json:"field_type"`
	MappingType     MappingType            `json:"mapping_type"`
	TransformConfig map[string]interface{} `json:"transform_config,omitempty"`
	ValidationRules map[string]interface{} `json:"validation_rules,omitempty"`
	DefaultValue    interface{}            `json:"default_value,omitempty"`
	Required        bool                   `json:"required"`
	Active          bool                   `json:"active"`
	Version         int                    `json:"version"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// FieldMappingTemplate is a named set of mappings. At most one template is
// active per context.
type FieldMappingTemplate struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Context     string    `json:"context,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MappingChangeType labels a FieldMappingVersion row.
type MappingChangeType string

const (
	MappingCreated MappingChangeType = "created"
	MappingUpdated MappingChangeType = "updated"
	MappingDeleted MappingChangeType = "deleted"
)

// FieldMappingVersion is the immutable history of a mapping. Deletions are
// soft (Active=false on the mapping) plus a version row here.
type FieldMappingVersion struct {
	ID             int64             `json:"id"`
	FieldMappingID int64             `json:"field_mapping_id"`
	Version        int               `json:"version"`
	ChangeType     MappingChangeType `json:"change_type"`
	Description    string            `json:"description,omitempty"`
	PreviousConfig string            `json:"previous_config,omitempty"` // JSON snapshot
	NewConfig      string            `json:"new_config,omitempty"`      // JSON snapshot
	ChangedBy      string            `json:"changed_by,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}
