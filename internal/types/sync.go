package types

import "time"

// EntityType identifies which kind of entity a SyncMetadata row tracks.
type EntityType string

const (
	EntitySprint  EntityType = "sprint"
	EntityIssue   EntityType = "issue"
	EntityProject EntityType = "project"
	EntityBoard   EntityType = "board"
)

// SyncDirection describes which way changes flow for an entity.
type SyncDirection string

const (
	DirectionLocalToRemote SyncDirection = "local_to_remote"
	DirectionRemoteToLocal SyncDirection = "remote_to_local"
	DirectionBidirectional SyncDirection = "bidirectional"
)

// SyncMetadata is the per-entity sync state. (EntityType, EntityID) is a key.
// ContentHash is the SHA-256 of the canonicalized remote payload at the last
// successful sync; a matching hash means the entity is unchanged.
type SyncMetadata struct {
	ID             int64         `json:"id"`
	EntityType     EntityType    `json:"entity_type"`
	EntityID       int64         `json:"entity_id"`
	TrackerID      string        `json:"tracker_id"`
	Status         SyncStatus    `json:"status"`
	LastAttempt    *time.Time    `json:"last_attempt,omitempty"`
	LastSuccessful *time.Time    `json:"last_successful,omitempty"`
	LocalModified  *time.Time    `json:"local_modified,omitempty"`
	RemoteModified *time.Time    `json:"remote_modified,omitempty"`
	ErrorCount     int           `json:"error_count"`
	LastError      string        `json:"last_error,omitempty"`
	Direction      SyncDirection `json:"direction"`
	ContentHash    string        `json:"content_hash,omitempty"`
	BatchID        string        `json:"batch_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// ConflictType classifies a sync conflict.
type ConflictType string

const (
	ConflictField    ConflictType = "field_conflict"
	ConflictDeletion ConflictType = "deletion_conflict"
	ConflictCreation ConflictType = "creation_conflict"
)

// ResolutionStrategy picks how a conflict's resolved value is chosen.
type ResolutionStrategy string

const (
	ResolveLocalWins  ResolutionStrategy = "local_wins"
	ResolveRemoteWins ResolutionStrategy = "remote_wins"
	ResolveManual     ResolutionStrategy = "manual"
	ResolveMerge      ResolutionStrategy = "merge" // reserved, not auto-applied
)

// ConflictResolution records one field-level conflict against a SyncMetadata
// row. Values are stored as JSON so any field type round-trips.
type ConflictResolution struct {
	ID             int64              `json:"id"`
	SyncMetadataID int64              `json:"sync_metadata_id"`
	ConflictType   ConflictType       `json:"conflict_type"`
	FieldName      string             `json:"field_name"`
	LocalValue     string             `json:"local_value"`  // JSON
	RemoteValue    string             `json:"remote_value"` // JSON
	Strategy       ResolutionStrategy `json:"strategy,omitempty"`
	ResolvedValue  string             `json:"resolved_value,omitempty"` // JSON
	ResolvedBy     string             `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time         `json:"resolved_at,omitempty"`
	Resolved       bool               `json:"resolved"`
	Notes          string             `json:"notes,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// OperationType labels a sync batch.
type OperationType string

const (
	OpFullSync           OperationType = "full_sync"
	OpIncrementalSync    OperationType = "incremental_sync"
	OpConflictResolution OperationType = "conflict_resolution"
	OpWebhookSync        OperationType = "webhook_sync"
)

// SyncHistory summarizes one sync batch.
type SyncHistory struct {
	ID                int64         `json:"id"`
	BatchID           string        `json:"batch_id"`
	OperationType     OperationType `json:"operation_type"`
	EntitiesProcessed int           `json:"entities_processed"`
	EntitiesCreated   int           `json:"entities_created"`
	EntitiesUpdated   int           `json:"entities_updated"`
	EntitiesDeleted   int           `json:"entities_deleted"`
	EntitiesSkipped   int           `json:"entities_skipped"`
	ConflictsDetected int           `json:"conflicts_detected"`
	ConflictsResolved int           `json:"conflicts_resolved"`
	DurationSeconds   float64       `json:"duration_seconds"`
	APICallsMade      int           `json:"api_calls_made"`
	Status            SyncStatus    `json:"status"`
	ErrorMessage      string        `json:"error_message,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// ProcessingStatus tracks a webhook event through the worker pipeline.
type ProcessingStatus string

const (
	ProcessingPending   ProcessingStatus = "pending"
	ProcessingActive    ProcessingStatus = "processing"
	ProcessingCompleted ProcessingStatus = "completed"
	ProcessingFailed    ProcessingStatus = "failed"
)

// WebhookEvent is a durably persisted tracker webhook delivery.
// EventID is the external idempotency key (unique).
type WebhookEvent struct {
	ID              int64            `json:"id"`
	EventID         string           `json:"event_id"`
	EventType       string           `json:"event_type"`
	Payload         string           `json:"payload"` // raw JSON
	Status          ProcessingStatus `json:"status"`
	Attempts        int              `json:"attempts"`
	LastProcessedAt *time.Time       `json:"last_processed_at,omitempty"`
	Error           string           `json:"error,omitempty"`
	ProcessedData   string           `json:"processed_data,omitempty"` // derived canonical form, JSON
	ReceivedAt      time.Time        `json:"received_at"`
}
