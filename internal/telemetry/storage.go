package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/scullers68/sprint-reports/internal/storage"
	"github.com/scullers68/sprint-reports/internal/types"
)

const storageScopeName = "github.com/scullers68/sprint-reports/storage"

// InstrumentedStorage wraps storage.Storage with OTel tracing and metrics.
// Every method gets a span and is counted in sr.storage.* metrics.
// Use WrapStorage to create one; it returns the original store unchanged
// when telemetry is disabled.
type InstrumentedStorage struct {
	inner  storage.Storage
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapStorage returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStorage(s storage.Storage) storage.Storage {
	if !Enabled() {
		return s
	}
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("sr.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("sr.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("sr.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	return &InstrumentedStorage{
		inner:  s,
		tracer: Tracer(storageScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStorage) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStorage) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

// ── Sprints ─────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) CreateSprint(ctx context.Context, sprint *types.Sprint) (int64, error) {
	attrs := []attribute.KeyValue{attribute.Int64("sr.sprint.tracker_id", sprint.TrackerSprintID)}
	ctx, span, t := s.op(ctx, "CreateSprint", attrs...)
	v, err := s.inner.CreateSprint(ctx, sprint)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) GetSprint(ctx context.Context, id int64) (*types.Sprint, error) {
	attrs := []attribute.KeyValue{attribute.Int64("sr.sprint.id", id)}
	ctx, span, t := s.op(ctx, "GetSprint", attrs...)
	v, err := s.inner.GetSprint(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) GetSprintByTrackerID(ctx context.Context, trackerSprintID int64) (*types.Sprint, error) {
	attrs := []attribute.KeyValue{attribute.Int64("sr.sprint.tracker_id", trackerSprintID)}
	ctx, span, t := s.op(ctx, "GetSprintByTrackerID", attrs...)
	v, err := s.inner.GetSprintByTrackerID(ctx, trackerSprintID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) UpdateSprint(ctx context.Context, id int64, updates map[string]interface{}) error {
	attrs := []attribute.KeyValue{
		attribute.Int64("sr.sprint.id", id),
		attribute.Int("sr.update.count", len(updates)),
	}
	ctx, span, t := s.op(ctx, "UpdateSprint", attrs...)
	err := s.inner.UpdateSprint(ctx, id, updates)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) ListSprints(ctx context.Context, filter storage.SprintFilter) ([]*types.Sprint, error) {
	ctx, span, t := s.op(ctx, "ListSprints")
	v, err := s.inner.ListSprints(ctx, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("sr.result.count", len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

// ── Analyses ────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) InsertSprintAnalysis(ctx context.Context, a *types.SprintAnalysis) (int64, error) {
	attrs := []attribute.KeyValue{attribute.String("sr.analysis.type", string(a.AnalysisType))}
	ctx, span, t := s.op(ctx, "InsertSprintAnalysis", attrs...)
	v, err := s.inner.InsertSprintAnalysis(ctx, a)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) LatestSprintAnalysis(ctx context.Context, sprintID int64, at types.AnalysisType) (*types.SprintAnalysis, error) {
	attrs := []attribute.KeyValue{attribute.Int64("sr.sprint.id", sprintID)}
	ctx, span, t := s.op(ctx, "LatestSprintAnalysis", attrs...)
	v, err := s.inner.LatestSprintAnalysis(ctx, sprintID, at)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Sync metadata and history ───────────────────────────────────────────────

func (s *InstrumentedStorage) GetSyncMetadata(ctx context.Context, entityType types.EntityType, entityID int64) (*types.SyncMetadata, error) {
	ctx, span, t := s.op(ctx, "GetSyncMetadata")
	v, err := s.inner.GetSyncMetadata(ctx, entityType, entityID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) GetSyncMetadataByTrackerID(ctx context.Context, entityType types.EntityType, trackerID string) (*types.SyncMetadata, error) {
	ctx, span, t := s.op(ctx, "GetSyncMetadataByTrackerID")
	v, err := s.inner.GetSyncMetadataByTrackerID(ctx, entityType, trackerID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) UpsertSyncMetadata(ctx context.Context, m *types.SyncMetadata) (int64, error) {
	ctx, span, t := s.op(ctx, "UpsertSyncMetadata")
	v, err := s.inner.UpsertSyncMetadata(ctx, m)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) CreateSyncHistory(ctx context.Context, h *types.SyncHistory) (int64, error) {
	attrs := []attribute.KeyValue{attribute.String("sr.sync.op", string(h.OperationType))}
	ctx, span, t := s.op(ctx, "CreateSyncHistory", attrs...)
	v, err := s.inner.CreateSyncHistory(ctx, h)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) UpdateSyncHistory(ctx context.Context, h *types.SyncHistory) error {
	ctx, span, t := s.op(ctx, "UpdateSyncHistory")
	err := s.inner.UpdateSyncHistory(ctx, h)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) LatestSuccessfulSync(ctx context.Context, ops ...types.OperationType) (*types.SyncHistory, error) {
	ctx, span, t := s.op(ctx, "LatestSuccessfulSync")
	v, err := s.inner.LatestSuccessfulSync(ctx, ops...)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Conflicts ───────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) CreateConflict(ctx context.Context, c *types.ConflictResolution) (int64, error) {
	attrs := []attribute.KeyValue{attribute.String("sr.conflict.field", c.FieldName)}
	ctx, span, t := s.op(ctx, "CreateConflict", attrs...)
	v, err := s.inner.CreateConflict(ctx, c)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) GetConflict(ctx context.Context, id int64) (*types.ConflictResolution, error) {
	ctx, span, t := s.op(ctx, "GetConflict")
	v, err := s.inner.GetConflict(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) UpdateConflict(ctx context.Context, c *types.ConflictResolution) error {
	ctx, span, t := s.op(ctx, "UpdateConflict")
	err := s.inner.UpdateConflict(ctx, c)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) ListConflicts(ctx context.Context, syncMetadataID int64, unresolvedOnly bool) ([]*types.ConflictResolution, error) {
	ctx, span, t := s.op(ctx, "ListConflicts")
	v, err := s.inner.ListConflicts(ctx, syncMetadataID, unresolvedOnly)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Webhook events ──────────────────────────────────────────────────────────

func (s *InstrumentedStorage) InsertWebhookEvent(ctx context.Context, e *types.WebhookEvent) (int64, error) {
	attrs := []attribute.KeyValue{attribute.String("sr.webhook.type", e.EventType)}
	ctx, span, t := s.op(ctx, "InsertWebhookEvent", attrs...)
	v, err := s.inner.InsertWebhookEvent(ctx, e)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) GetWebhookEvent(ctx context.Context, id int64) (*types.WebhookEvent, error) {
	ctx, span, t := s.op(ctx, "GetWebhookEvent")
	v, err := s.inner.GetWebhookEvent(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) UpdateWebhookEvent(ctx context.Context, e *types.WebhookEvent) error {
	ctx, span, t := s.op(ctx, "UpdateWebhookEvent")
	err := s.inner.UpdateWebhookEvent(ctx, e)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) ListWebhookEvents(ctx context.Context, status types.ProcessingStatus, since time.Time, maxAttempts, limit int) ([]*types.WebhookEvent, error) {
	ctx, span, t := s.op(ctx, "ListWebhookEvents")
	v, err := s.inner.ListWebhookEvents(ctx, status, since, maxAttempts, limit)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) CountWebhookEvents(ctx context.Context, since time.Time, failedOnly bool) (int, error) {
	ctx, span, t := s.op(ctx, "CountWebhookEvents")
	v, err := s.inner.CountWebhookEvents(ctx, since, failedOnly)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) DeleteWebhookEventsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, span, t := s.op(ctx, "DeleteWebhookEventsBefore")
	v, err := s.inner.DeleteWebhookEventsBefore(ctx, cutoff)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Portfolio model ─────────────────────────────────────────────────────────

func (s *InstrumentedStorage) CreateWorkstream(ctx context.Context, w *types.ProjectWorkstream) (int64, error) {
	attrs := []attribute.KeyValue{attribute.String("sr.project.key", w.ProjectKey)}
	ctx, span, t := s.op(ctx, "CreateWorkstream", attrs...)
	v, err := s.inner.CreateWorkstream(ctx, w)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) GetWorkstream(ctx context.Context, id int64) (*types.ProjectWorkstream, error) {
	ctx, span, t := s.op(ctx, "GetWorkstream")
	v, err := s.inner.GetWorkstream(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) GetWorkstreamByKey(ctx context.Context, projectKey string) (*types.ProjectWorkstream, error) {
	attrs := []attribute.KeyValue{attribute.String("sr.project.key", projectKey)}
	ctx, span, t := s.op(ctx, "GetWorkstreamByKey", attrs...)
	v, err := s.inner.GetWorkstreamByKey(ctx, projectKey)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListWorkstreams(ctx context.Context, activeOnly bool) ([]*types.ProjectWorkstream, error) {
	ctx, span, t := s.op(ctx, "ListWorkstreams")
	v, err := s.inner.ListWorkstreams(ctx, activeOnly)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) CreateAssociation(ctx context.Context, a *types.ProjectSprintAssociation) (int64, error) {
	ctx, span, t := s.op(ctx, "CreateAssociation")
	v, err := s.inner.CreateAssociation(ctx, a)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) ListAssociationsBySprint(ctx context.Context, sprintID int64, activeOnly bool) ([]*types.ProjectSprintAssociation, error) {
	ctx, span, t := s.op(ctx, "ListAssociationsBySprint")
	v, err := s.inner.ListAssociationsBySprint(ctx, sprintID, activeOnly)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) ListAssociationsByWorkstream(ctx context.Context, workstreamID int64, activeOnly bool) ([]*types.ProjectSprintAssociation, error) {
	ctx, span, t := s.op(ctx, "ListAssociationsByWorkstream")
	v, err := s.inner.ListAssociationsByWorkstream(ctx, workstreamID, activeOnly)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) InsertMetrics(ctx context.Context, m *types.ProjectSprintMetrics) (int64, error) {
	ctx, span, t := s.op(ctx, "InsertMetrics")
	v, err := s.inner.InsertMetrics(ctx, m)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) ListMetrics(ctx context.Context, sprintID, workstreamID int64) ([]*types.ProjectSprintMetrics, error) {
	ctx, span, t := s.op(ctx, "ListMetrics")
	v, err := s.inner.ListMetrics(ctx, sprintID, workstreamID)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Capacity ────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) UpsertTeamCapacity(ctx context.Context, c *types.DisciplineTeamCapacity) (int64, error) {
	attrs := []attribute.KeyValue{attribute.String("sr.team", c.DisciplineTeam)}
	ctx, span, t := s.op(ctx, "UpsertTeamCapacity", attrs...)
	v, err := s.inner.UpsertTeamCapacity(ctx, c)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListTeamCapacities(ctx context.Context, sprintID int64) ([]*types.DisciplineTeamCapacity, error) {
	ctx, span, t := s.op(ctx, "ListTeamCapacities")
	v, err := s.inner.ListTeamCapacities(ctx, sprintID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) CreateAllocation(ctx context.Context, a *types.ProjectCapacityAllocation) (int64, error) {
	ctx, span, t := s.op(ctx, "CreateAllocation")
	v, err := s.inner.CreateAllocation(ctx, a)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) ListAllocations(ctx context.Context, sprintID int64, activeOnly bool) ([]*types.ProjectCapacityAllocation, error) {
	ctx, span, t := s.op(ctx, "ListAllocations")
	v, err := s.inner.ListAllocations(ctx, sprintID, activeOnly)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Sprint cache ────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) UpsertCachedSprint(ctx context.Context, c *types.CachedSprint) error {
	ctx, span, t := s.op(ctx, "UpsertCachedSprint")
	err := s.inner.UpsertCachedSprint(ctx, c)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) ListCachedSprints(ctx context.Context, boardID int64) ([]*types.CachedSprint, error) {
	ctx, span, t := s.op(ctx, "ListCachedSprints")
	v, err := s.inner.ListCachedSprints(ctx, boardID)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Security events ─────────────────────────────────────────────────────────

func (s *InstrumentedStorage) InsertSecurityEvent(ctx context.Context, e *types.SecurityEvent) (int64, error) {
	attrs := []attribute.KeyValue{attribute.String("sr.event.type", string(e.EventType))}
	ctx, span, t := s.op(ctx, "InsertSecurityEvent", attrs...)
	v, err := s.inner.InsertSecurityEvent(ctx, e)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) SetSecurityEventChecksum(ctx context.Context, id int64, checksum string) error {
	ctx, span, t := s.op(ctx, "SetSecurityEventChecksum")
	err := s.inner.SetSecurityEventChecksum(ctx, id, checksum)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) GetSecurityEvent(ctx context.Context, id int64) (*types.SecurityEvent, error) {
	ctx, span, t := s.op(ctx, "GetSecurityEvent")
	v, err := s.inner.GetSecurityEvent(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) LatestSecurityEvent(ctx context.Context) (*types.SecurityEvent, error) {
	ctx, span, t := s.op(ctx, "LatestSecurityEvent")
	v, err := s.inner.LatestSecurityEvent(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) ListSecurityEvents(ctx context.Context, filter storage.SecurityEventFilter) ([]*types.SecurityEvent, error) {
	ctx, span, t := s.op(ctx, "ListSecurityEvents")
	v, err := s.inner.ListSecurityEvents(ctx, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("sr.result.count", len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) DeleteSecurityEvents(ctx context.Context, ids []int64) (int, error) {
	attrs := []attribute.KeyValue{attribute.Int("sr.event.count", len(ids))}
	ctx, span, t := s.op(ctx, "DeleteSecurityEvents", attrs...)
	v, err := s.inner.DeleteSecurityEvents(ctx, ids)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Field mappings ──────────────────────────────────────────────────────────

func (s *InstrumentedStorage) CreateTemplate(ctx context.Context, tmpl *types.FieldMappingTemplate) (int64, error) {
	ctx, span, t := s.op(ctx, "CreateTemplate")
	v, err := s.inner.CreateTemplate(ctx, tmpl)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) GetActiveTemplate(ctx context.Context, context_ string) (*types.FieldMappingTemplate, error) {
	ctx, span, t := s.op(ctx, "GetActiveTemplate")
	v, err := s.inner.GetActiveTemplate(ctx, context_)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) GetTemplate(ctx context.Context, id int64) (*types.FieldMappingTemplate, error) {
	ctx, span, t := s.op(ctx, "GetTemplate")
	v, err := s.inner.GetTemplate(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) CreateFieldMapping(ctx context.Context, m *types.FieldMapping) (int64, error) {
	ctx, span, t := s.op(ctx, "CreateFieldMapping")
	v, err := s.inner.CreateFieldMapping(ctx, m)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) UpdateFieldMapping(ctx context.Context, m *types.FieldMapping) error {
	ctx, span, t := s.op(ctx, "UpdateFieldMapping")
	err := s.inner.UpdateFieldMapping(ctx, m)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) GetFieldMapping(ctx context.Context, id int64) (*types.FieldMapping, error) {
	ctx, span, t := s.op(ctx, "GetFieldMapping")
	v, err := s.inner.GetFieldMapping(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) ListActiveMappings(ctx context.Context, templateID int64) ([]*types.FieldMapping, error) {
	ctx, span, t := s.op(ctx, "ListActiveMappings")
	v, err := s.inner.ListActiveMappings(ctx, templateID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) InsertMappingVersion(ctx context.Context, ver *types.FieldMappingVersion) (int64, error) {
	ctx, span, t := s.op(ctx, "InsertMappingVersion")
	v, err := s.inner.InsertMappingVersion(ctx, ver)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) ListMappingVersions(ctx context.Context, fieldMappingID int64) ([]*types.FieldMappingVersion, error) {
	ctx, span, t := s.op(ctx, "ListMappingVersions")
	v, err := s.inner.ListMappingVersions(ctx, fieldMappingID)
	s.done(ctx, span, t, err)
	return v, err
}

// ── RBAC ────────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) GetUser(ctx context.Context, id string) (*types.User, error) {
	ctx, span, t := s.op(ctx, "GetUser")
	v, err := s.inner.GetUser(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) UpsertUser(ctx context.Context, u *types.User) error {
	ctx, span, t := s.op(ctx, "UpsertUser")
	err := s.inner.UpsertUser(ctx, u)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) GetRoles(ctx context.Context, names []string) ([]*types.Role, error) {
	ctx, span, t := s.op(ctx, "GetRoles")
	v, err := s.inner.GetRoles(ctx, names)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) UpsertRole(ctx context.Context, r *types.Role) error {
	ctx, span, t := s.op(ctx, "UpsertRole")
	err := s.inner.UpsertRole(ctx, r)
	s.done(ctx, span, t, err)
	return err
}

// ── Configuration ───────────────────────────────────────────────────────────

func (s *InstrumentedStorage) SetConfig(ctx context.Context, key, value string) error {
	attrs := []attribute.KeyValue{attribute.String("sr.config.key", key)}
	ctx, span, t := s.op(ctx, "SetConfig", attrs...)
	err := s.inner.SetConfig(ctx, key, value)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) GetConfig(ctx context.Context, key string) (string, error) {
	attrs := []attribute.KeyValue{attribute.String("sr.config.key", key)}
	ctx, span, t := s.op(ctx, "GetConfig", attrs...)
	v, err := s.inner.GetConfig(ctx, key)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Transactions ────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) RunInTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	ctx, span, t := s.op(ctx, "RunInTransaction")
	err := s.inner.RunInTransaction(ctx, fn)
	s.done(ctx, span, t, err)
	return err
}

// ── Lifecycle ───────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
