package types

import "time"

// SecurityEventType is the kind of security event being recorded.
type SecurityEventType string

const (
	EventAuthentication     SecurityEventType = "authentication"
	EventAuthorization      SecurityEventType = "authorization"
	EventAccessGranted      SecurityEventType = "access_granted"
	EventAccessDenied       SecurityEventType = "access_denied"
	EventDataAccess         SecurityEventType = "data_access"
	EventDataChange         SecurityEventType = "data_change"
	EventSecurityViolation  SecurityEventType = "security_violation"
	EventSyncOperation      SecurityEventType = "sync_operation"
	EventComplianceSnapshot SecurityEventType = "compliance_snapshot"
)

// Severity grades a security event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SecurityEvent is one row in the append-only, hash-chained audit log.
//
// Checksum is SHA-256 over the canonicalized event fields (excluding the
// checksum itself); PreviousChecksum equals the checksum of the immediately
// prior event in insertion order, forming a tamper-evident chain.
type SecurityEvent struct {
	ID               int64             `json:"id"`
	EventType        SecurityEventType `json:"event_type"`
	Category         string            `json:"category,omitempty"`
	Severity         Severity          `json:"severity"`
	UserID           string            `json:"user_id,omitempty"`
	UserEmail        string            `json:"user_email,omitempty"`
	SourceIP         string            `json:"source_ip,omitempty"`
	ResourceType     string            `json:"resource_type,omitempty"`
	ResourceID       string            `json:"resource_id,omitempty"`
	ResourceName     string            `json:"resource_name,omitempty"`
	Success          bool              `json:"success"`
	Description      string            `json:"description"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	ComplianceTags   []string          `json:"compliance_tags,omitempty"`
	CorrelationID    string            `json:"correlation_id,omitempty"`
	Checksum         string            `json:"checksum,omitempty"`
	PreviousChecksum string            `json:"previous_checksum,omitempty"`
	RetentionDate    time.Time         `json:"retention_date"`
	CreatedAt        time.Time         `json:"created_at"`
}

// User is the minimal identity the authorization gate needs.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Active    bool      `json:"active"`
	Superuser bool      `json:"superuser"`
	Roles     []string  `json:"roles,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Role names a set of permission strings.
type Role struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	Active      bool     `json:"active"`
}
