// Package audit maintains the append-only, hash-chained security event
// log. Every event's checksum covers its canonical fields and links to
// the previous event's checksum, making tampering detectable.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/scullers68/sprint-reports/internal/storage"
	"github.com/scullers68/sprint-reports/internal/types"
)

// DefaultRetentionDays is applied when no retention override is set.
const DefaultRetentionDays = 365

// Option configures a Log.
type Option func(*Log)

// WithRetentionDays overrides the default retention period.
func WithRetentionDays(days int) Option {
	return func(l *Log) { l.retentionDays = days }
}

// WithWarningHandler receives non-fatal audit failures. Audit writes
// never block or fail the operation that triggered them.
func WithWarningHandler(fn func(string)) Option {
	return func(l *Log) { l.onWarning = fn }
}

// Disabled returns a Log that drops all events. Verification and
// reporting still work against whatever the store holds.
func Disabled(store storage.Storage) *Log {
	l := New(store)
	l.enabled = false
	return l
}

// Log is the audit chain writer. Chain appends are serialized under a
// process-wide mutex so two writers never observe the same tail event.
type Log struct {
	store         storage.Storage
	mu            sync.Mutex
	enabled       bool
	retentionDays int
	onWarning     func(string)
}

// New creates an enabled audit log with default retention.
func New(store storage.Storage, opts ...Option) *Log {
	l := &Log{
		store:         store,
		enabled:       true,
		retentionDays: DefaultRetentionDays,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Log) warn(format string, args ...interface{}) {
	if l.onWarning != nil {
		l.onWarning(fmt.Sprintf(format, args...))
	}
}

// canonicalEvent fixes the field order covered by the checksum. The
// checksum itself is excluded; the previous checksum is covered so links
// cannot be rewritten without detection.
type canonicalEvent struct {
	ID               int64             `json:"id"`
	EventType        string            `json:"event_type"`
	Category         string            `json:"category"`
	Severity         string            `json:"severity"`
	UserID           string            `json:"user_id"`
	UserEmail        string            `json:"user_email"`
	SourceIP         string            `json:"source_ip"`
	ResourceType     string            `json:"resource_type"`
	ResourceID       string            `json:"resource_id"`
	ResourceName     string            `json:"resource_name"`
	Success          bool              `json:"success"`
	Description      string            `json:"description"`
	Metadata         map[string]string `json:"metadata"`
	ComplianceTags   []string          `json:"compliance_tags"`
	CorrelationID    string            `json:"correlation_id"`
	PreviousChecksum string            `json:"previous_checksum"`
	RetentionDate    string            `json:"retention_date"`
	CreatedAt        string            `json:"created_at"`
}

// Checksum computes the canonical SHA-256 of an event.
func Checksum(e *types.SecurityEvent) string {
	c := canonicalEvent{
		ID:               e.ID,
		EventType:        string(e.EventType),
		Category:         e.Category,
		Severity:         string(e.Severity),
		UserID:           e.UserID,
		UserEmail:        e.UserEmail,
		SourceIP:         e.SourceIP,
		ResourceType:     e.ResourceType,
		ResourceID:       e.ResourceID,
		ResourceName:     e.ResourceName,
		Success:          e.Success,
		Description:      e.Description,
		Metadata:         e.Metadata,
		ComplianceTags:   e.ComplianceTags,
		CorrelationID:    e.CorrelationID,
		PreviousChecksum: e.PreviousChecksum,
		RetentionDate:    e.RetentionDate.UTC().Format(time.RFC3339),
		CreatedAt:        e.CreatedAt.UTC().Format(time.RFC3339),
	}
	b, _ := json.Marshal(c)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// CreateEvent appends one event to the chain: link to the current tail,
// persist, then compute and store the checksum. An event left without a
// checksum (crash between persist and checksum write) is flagged by
// verification and repaired by RepairChecksums.
func (l *Log) CreateEvent(ctx context.Context, e *types.SecurityEvent) (*types.SecurityEvent, error) {
	if !l.enabled {
		return e, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.RetentionDate.IsZero() {
		e.RetentionDate = e.CreatedAt.AddDate(0, 0, l.retentionDays)
	}
	if e.Severity == "" {
		e.Severity = types.SeverityInfo
	}

	tail, err := l.store.LatestSecurityEvent(ctx)
	switch {
	case err == nil:
		e.PreviousChecksum = tail.Checksum
	case errors.Is(err, storage.ErrNotFound):
		e.PreviousChecksum = ""
	default:
		return nil, fmt.Errorf("read chain tail: %w", err)
	}

	id, err := l.store.InsertSecurityEvent(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("persist security event: %w", err)
	}
	e.ID = id

	e.Checksum = Checksum(e)
	if err := l.store.SetSecurityEventChecksum(ctx, id, e.Checksum); err != nil {
		// Row exists but is unchecksummed; verification will flag it.
		l.warn("checksum write for event %d failed: %v", id, err)
	}
	return e, nil
}

// record is the non-blocking path used by the convenience wrappers.
func (l *Log) record(ctx context.Context, e *types.SecurityEvent) {
	if _, err := l.CreateEvent(ctx, e); err != nil {
		l.warn("audit event dropped (%s): %v", e.EventType, err)
	}
}

// Authentication records a login or token validation outcome.
func (l *Log) Authentication(ctx context.Context, eventType types.SecurityEventType, userID, email, sourceIP string, success bool, description string) {
	severity := types.SeverityInfo
	if !success {
		severity = types.SeverityMedium
	}
	l.record(ctx, &types.SecurityEvent{
		EventType:   eventType,
		Category:    "authentication",
		Severity:    severity,
		UserID:      userID,
		UserEmail:   email,
		SourceIP:    sourceIP,
		Success:     success,
		Description: description,
	})
}

// Authorization records an access-granted or access-denied decision.
func (l *Log) Authorization(ctx context.Context, userID, resourceType, resourceID, permission string, granted bool, correlationID string) {
	eventType := types.EventAccessGranted
	severity := types.SeverityInfo
	if !granted {
		eventType = types.EventAccessDenied
		severity = types.SeverityMedium
	}
	l.record(ctx, &types.SecurityEvent{
		EventType:     eventType,
		Category:      "authorization",
		Severity:      severity,
		UserID:        userID,
		ResourceType:  resourceType,
		ResourceID:    resourceID,
		Success:       granted,
		Description:   fmt.Sprintf("permission %s", permission),
		CorrelationID: correlationID,
	})
}

// DataAccess records a state read or mutation. Satisfies the sink
// interfaces of the sync engine and webhook worker.
func (l *Log) DataAccess(ctx context.Context, actor, resourceType, resourceID, description string, success bool, correlationID string) {
	severity := types.SeverityInfo
	if !success {
		severity = types.SeverityMedium
	}
	l.record(ctx, &types.SecurityEvent{
		EventType:     types.EventDataAccess,
		Category:      "data_access",
		Severity:      severity,
		UserID:        actor,
		ResourceType:  resourceType,
		ResourceID:    resourceID,
		Success:       success,
		Description:   description,
		CorrelationID: correlationID,
	})
}

// Violation records a security violation (bad signature, tamper attempt).
func (l *Log) Violation(ctx context.Context, sourceIP, description string, metadata map[string]string) {
	l.record(ctx, &types.SecurityEvent{
		EventType:   types.EventSecurityViolation,
		Category:    "security",
		Severity:    types.SeverityCritical,
		SourceIP:    sourceIP,
		Success:     false,
		Description: description,
		Metadata:    metadata,
	})
}
