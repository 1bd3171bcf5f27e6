// Package storage provides shared types for sprint-reports persistence.
//
// The concrete implementation lives in the sqlite sub-package. This package
// holds the interface and sentinel errors referenced by both the
// implementation and its consumers (syncengine, analytics, webhook, audit).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/scullers68/sprint-reports/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a uniqueness constraint
// (webhook event IDs, sprint tracker IDs, association keys).
var ErrDuplicate = errors.New("duplicate")

// Storage is the interface satisfied by *sqlite.Store. Consumers depend on
// this interface rather than the concrete type so mocks can be substituted.
type Storage interface {
	// Sprints
	CreateSprint(ctx context.Context, s *types.Sprint) (int64, error)
	GetSprint(ctx context.Context, id int64) (*types.Sprint, error)
	GetSprintByTrackerID(ctx context.Context, trackerSprintID int64) (*types.Sprint, error)
	UpdateSprint(ctx context.Context, id int64, updates map[string]interface{}) error
	ListSprints(ctx context.Context, filter SprintFilter) ([]*types.Sprint, error)

	// Sprint analyses (append-only)
	InsertSprintAnalysis(ctx context.Context, a *types.SprintAnalysis) (int64, error)
	LatestSprintAnalysis(ctx context.Context, sprintID int64, at types.AnalysisType) (*types.SprintAnalysis, error)

	// Sync metadata and history
	GetSyncMetadata(ctx context.Context, entityType types.EntityType, entityID int64) (*types.SyncMetadata, error)
	GetSyncMetadataByTrackerID(ctx context.Context, entityType types.EntityType, trackerID string) (*types.SyncMetadata, error)
	UpsertSyncMetadata(ctx context.Context, m *types.SyncMetadata) (int64, error)
	CreateSyncHistory(ctx context.Context, h *types.SyncHistory) (int64, error)
	UpdateSyncHistory(ctx context.Context, h *types.SyncHistory) error
	LatestSuccessfulSync(ctx context.Context, ops ...types.OperationType) (*types.SyncHistory, error)

	// Conflicts
	CreateConflict(ctx context.Context, c *types.ConflictResolution) (int64, error)
	GetConflict(ctx context.Context, id int64) (*types.ConflictResolution, error)
	UpdateConflict(ctx context.Context, c *types.ConflictResolution) error
	ListConflicts(ctx context.Context, syncMetadataID int64, unresolvedOnly bool) ([]*types.ConflictResolution, error)

	// Webhook events
	InsertWebhookEvent(ctx context.Context, e *types.WebhookEvent) (int64, error)
	GetWebhookEvent(ctx context.Context, id int64) (*types.WebhookEvent, error)
	UpdateWebhookEvent(ctx context.Context, e *types.WebhookEvent) error
	ListWebhookEvents(ctx context.Context, status types.ProcessingStatus, since time.Time, maxAttempts, limit int) ([]*types.WebhookEvent, error)
	CountWebhookEvents(ctx context.Context, since time.Time, failedOnly bool) (int, error)
	DeleteWebhookEventsBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Portfolio model
	CreateWorkstream(ctx context.Context, w *types.ProjectWorkstream) (int64, error)
	GetWorkstream(ctx context.Context, id int64) (*types.ProjectWorkstream, error)
	GetWorkstreamByKey(ctx context.Context, projectKey string) (*types.ProjectWorkstream, error)
	ListWorkstreams(ctx context.Context, activeOnly bool) ([]*types.ProjectWorkstream, error)
	CreateAssociation(ctx context.Context, a *types.ProjectSprintAssociation) (int64, error)
	ListAssociationsBySprint(ctx context.Context, sprintID int64, activeOnly bool) ([]*types.ProjectSprintAssociation, error)
	ListAssociationsByWorkstream(ctx context.Context, workstreamID int64, activeOnly bool) ([]*types.ProjectSprintAssociation, error)
	InsertMetrics(ctx context.Context, m *types.ProjectSprintMetrics) (int64, error)
	ListMetrics(ctx context.Context, sprintID, workstreamID int64) ([]*types.ProjectSprintMetrics, error)

	// Capacity
	UpsertTeamCapacity(ctx context.Context, c *types.DisciplineTeamCapacity) (int64, error)
	ListTeamCapacities(ctx context.Context, sprintID int64) ([]*types.DisciplineTeamCapacity, error)
	CreateAllocation(ctx context.Context, a *types.ProjectCapacityAllocation) (int64, error)
	ListAllocations(ctx context.Context, sprintID int64, activeOnly bool) ([]*types.ProjectCapacityAllocation, error)

	// Sprint cache
	UpsertCachedSprint(ctx context.Context, c *types.CachedSprint) error
	ListCachedSprints(ctx context.Context, boardID int64) ([]*types.CachedSprint, error)

	// Security events (audit chain)
	InsertSecurityEvent(ctx context.Context, e *types.SecurityEvent) (int64, error)
	SetSecurityEventChecksum(ctx context.Context, id int64, checksum string) error
	GetSecurityEvent(ctx context.Context, id int64) (*types.SecurityEvent, error)
	LatestSecurityEvent(ctx context.Context) (*types.SecurityEvent, error)
	ListSecurityEvents(ctx context.Context, filter SecurityEventFilter) ([]*types.SecurityEvent, error)
	DeleteSecurityEvents(ctx context.Context, ids []int64) (int, error)

	// Field mappings
	CreateTemplate(ctx context.Context, t *types.FieldMappingTemplate) (int64, error)
	GetActiveTemplate(ctx context.Context, context_ string) (*types.FieldMappingTemplate, error)
	GetTemplate(ctx context.Context, id int64) (*types.FieldMappingTemplate, error)
	CreateFieldMapping(ctx context.Context, m *types.FieldMapping) (int64, error)
	UpdateFieldMapping(ctx context.Context, m *types.FieldMapping) error
	GetFieldMapping(ctx context.Context, id int64) (*types.FieldMapping, error)
	ListActiveMappings(ctx context.Context, templateID int64) ([]*types.FieldMapping, error)
	InsertMappingVersion(ctx context.Context, v *types.FieldMappingVersion) (int64, error)
	ListMappingVersions(ctx context.Context, fieldMappingID int64) ([]*types.FieldMappingVersion, error)

	// RBAC
	GetUser(ctx context.Context, id string) (*types.User, error)
	UpsertUser(ctx context.Context, u *types.User) error
	GetRoles(ctx context.Context, names []string) ([]*types.Role, error)
	UpsertRole(ctx context.Context, r *types.Role) error

	// Configuration (service state such as last_sync and encrypted credentials)
	SetConfig(ctx context.Context, key, value string) error
	GetConfig(ctx context.Context, key string) (string, error)

	// Transactions
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error

	// Lifecycle
	Close() error
}

// Tx exposes the subset of storage operations the sync engine performs
// atomically per entity. A failing entity rolls back its own transaction
// only; the surrounding batch continues.
type Tx interface {
	CreateSprint(ctx context.Context, s *types.Sprint) (int64, error)
	UpdateSprint(ctx context.Context, id int64, updates map[string]interface{}) error
	UpsertSyncMetadata(ctx context.Context, m *types.SyncMetadata) (int64, error)
	CreateConflict(ctx context.Context, c *types.ConflictResolution) (int64, error)
}

// SprintFilter narrows ListSprints.
type SprintFilter struct {
	BoardID    int64             // 0 = any
	State      types.SprintState // "" = any
	ProjectKey string            // "" = any
	Limit      int               // 0 = no limit
}

// SecurityEventFilter narrows ListSecurityEvents. Zero values are ignored.
type SecurityEventFilter struct {
	FromID          int64
	ToID            int64
	Since           time.Time
	Until           time.Time
	ComplianceTag   string
	MissingChecksum bool
	RetentionDue    *time.Time // events with retention_date <= this instant
	Limit           int
}
