// Package types defines the core data structures for the sprint-reports service.
package types

import (
	"strings"
	"time"
)

// SprintState is the lifecycle state of a sprint as reported by the tracker.
type SprintState string

const (
	SprintFuture SprintState = "future"
	SprintActive SprintState = "active"
	SprintClosed SprintState = "closed"
)

// SyncStatus tracks the per-entity sync state machine.
type SyncStatus string

const (
	SyncPending    SyncStatus = "pending"
	SyncInProgress SyncStatus = "in_progress"
	SyncCompleted  SyncStatus = "completed"
	SyncFailed     SyncStatus = "failed"
	SyncSkipped    SyncStatus = "skipped"
)

// Sprint is the canonical domain entity mirroring a tracker sprint.
// Sprints are never deleted automatically; a closed sprint is a tombstone
// (state=closed plus its final sync status).
type Sprint struct {
	ID                 int64       `json:"id"`
	TrackerSprintID    int64       `json:"tracker_sprint_id"` // unique
	Name               string      `json:"name"`
	State              SprintState `json:"state"`
	Goal               string      `json:"goal,omitempty"`
	StartDate          *time.Time  `json:"start_date,omitempty"`
	EndDate            *time.Time  `json:"end_date,omitempty"`
	CompleteDate       *time.Time  `json:"complete_date,omitempty"`
	BoardID            int64       `json:"board_id,omitempty"`
	TrackerLastUpdated *time.Time  `json:"tracker_last_updated,omitempty"`
	SyncStatus         SyncStatus  `json:"sync_status,omitempty"`
	TrackerBoardName   string      `json:"tracker_board_name,omitempty"`
	TrackerProjectKey  string      `json:"tracker_project_key,omitempty"`
	TrackerAPIVersion  string      `json:"tracker_api_version,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// Validate checks the sprint invariants: non-empty trimmed name,
// start <= end, complete >= start.
func (s *Sprint) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if s.StartDate != nil && s.EndDate != nil && s.EndDate.Before(*s.StartDate) {
		return &ValidationError{Field: "end_date", Reason: "must not precede start_date"}
	}
	if s.StartDate != nil && s.CompleteDate != nil && s.CompleteDate.Before(*s.StartDate) {
		return &ValidationError{Field: "complete_date", Reason: "must not precede start_date"}
	}
	return nil
}

// DurationDays returns the sprint length in days, minimum 1. Active sprints
// (no end yet) are measured from start to now.
func (s *Sprint) DurationDays(now time.Time) float64 {
	if s.StartDate == nil {
		return 1
	}
	end := now
	if s.State == SprintClosed && s.EndDate != nil {
		end = *s.EndDate
	} else if s.EndDate != nil && s.EndDate.Before(now) {
		end = *s.EndDate
	}
	days := end.Sub(*s.StartDate).Hours() / 24
	if days < 1 {
		return 1
	}
	return days
}

// AnalysisType classifies a SprintAnalysis run.
type AnalysisType string

const (
	AnalysisDisciplineTeam AnalysisType = "discipline_team"
	AnalysisCapacity       AnalysisType = "capacity"
	AnalysisVelocity       AnalysisType = "velocity"
	AnalysisBurndown       AnalysisType = "burndown"
)

// DisciplineBreakdown summarizes one discipline team's share of a sprint.
type DisciplineBreakdown struct {
	Issues      int      `json:"issues"`
	StoryPoints float64  `json:"story_points"`
	IssueKeys   []string `json:"issue_keys,omitempty"`
}

// SprintAnalysis is the append-only result of running an analysis on a sprint.
// The latest row per (sprint, type) is the authoritative current view.
type SprintAnalysis struct {
	ID               int64                          `json:"id"`
	SprintID         int64                          `json:"sprint_id"`
	AnalysisType     AnalysisType                   `json:"analysis_type"`
	TotalIssues      int                            `json:"total_issues"`
	TotalStoryPoints float64                        `json:"total_story_points"`
	Breakdown        map[string]DisciplineBreakdown `json:"breakdown,omitempty"`
	FilterApplied    string                         `json:"filter_applied,omitempty"`
	CreatedAt        time.Time                      `json:"created_at"`
}

// WorkstreamType classifies a project workstream.
type WorkstreamType string

const (
	WorkstreamStandard   WorkstreamType = "standard"
	WorkstreamEpic       WorkstreamType = "epic"
	WorkstreamInitiative WorkstreamType = "initiative"
)

// ProjectWorkstream is a distinct project source flowing through one or
// more sprints on a meta-board.
type ProjectWorkstream struct {
	ID               int64          `json:"id"`
	ProjectKey       string         `json:"project_key"` // unique, non-empty
	ProjectName      string         `json:"project_name"`
	TrackerBoardID   int64          `json:"tracker_board_id,omitempty"`
	TrackerBoardName string         `json:"tracker_board_name,omitempty"`
	WorkstreamType   WorkstreamType `json:"workstream_type"`
	Category         string         `json:"category,omitempty"`
	Active           bool           `json:"active"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// AssociationType classifies a sprint/workstream link.
type AssociationType string

const (
	AssociationPrimary    AssociationType = "primary"
	AssociationSecondary  AssociationType = "secondary"
	AssociationDependency AssociationType = "dependency"
)

// ProjectSprintAssociation links a Sprint to a ProjectWorkstream.
// (SprintID, ProjectWorkstreamID) is a key.
type ProjectSprintAssociation struct {
	ID                  int64           `json:"id"`
	SprintID            int64           `json:"sprint_id"`
	ProjectWorkstreamID int64           `json:"project_workstream_id"`
	AssociationType     AssociationType `json:"association_type"`
	Priority            int             `json:"priority"` // positive; lower is more important
	ExpectedStoryPoints float64         `json:"expected_story_points"`
	ActualStoryPoints   float64         `json:"actual_story_points"`
	Active              bool            `json:"active"`
	CreatedAt           time.Time       `json:"created_at"`
}

// ProjectSprintMetrics is a dated roll-up per (sprint, project).
// Invariant: completed <= total for both issues and points.
type ProjectSprintMetrics struct {
	ID                    int64     `json:"id"`
	SprintID              int64     `json:"sprint_id"`
	ProjectWorkstreamID   int64     `json:"project_workstream_id"`
	MetricsDate           time.Time `json:"metrics_date"`
	TotalIssues           int       `json:"total_issues"`
	CompletedIssues       int       `json:"completed_issues"`
	InProgressIssues      int       `json:"in_progress_issues"`
	BlockedIssues         int       `json:"blocked_issues"`
	TotalStoryPoints      float64   `json:"total_story_points"`
	CompletedStoryPoints  float64   `json:"completed_story_points"`
	CompletionPercentage  float64   `json:"completion_percentage"` // [0,100]
	Velocity              float64   `json:"velocity"`
	BurndownRate          float64   `json:"burndown_rate"`
	ScopeAddedPoints      float64   `json:"scope_added_points"`
	ScopeRemovedPoints    float64   `json:"scope_removed_points"`
	DetailedBreakdownJSON string    `json:"detailed_breakdown,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

// CapacityType is the unit a discipline team's capacity is declared in.
type CapacityType string

const (
	CapacityStoryPoints CapacityType = "story_points"
	CapacityHours       CapacityType = "hours"
	CapacityIssues      CapacityType = "issues"
)

// DisciplineTeamCapacity declares a team's capacity for one sprint.
type DisciplineTeamCapacity struct {
	ID             int64        `json:"id"`
	SprintID       int64        `json:"sprint_id"`
	DisciplineTeam string       `json:"discipline_team"`
	CapacityPoints float64      `json:"capacity_points"` // >= 0
	CapacityType   CapacityType `json:"capacity_type"`
	Allocated      float64      `json:"allocated"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Remaining is the unallocated capacity, floored at zero.
func (c *DisciplineTeamCapacity) Remaining() float64 {
	r := c.CapacityPoints - c.Allocated
	if r < 0 {
		return 0
	}
	return r
}

// Utilization is allocated/capacity as a percentage. Zero capacity
// reports zero utilization rather than dividing by zero.
func (c *DisciplineTeamCapacity) Utilization() float64 {
	if c.CapacityPoints <= 0 {
		return 0
	}
	return c.Allocated / c.CapacityPoints * 100
}

// TrendDirection describes how an allocation has been moving.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// ProjectCapacityAllocation crosses (sprint, project, discipline team).
// (SprintID, ProjectWorkstreamID, TeamCapacityID) is a key.
type ProjectCapacityAllocation struct {
	ID                  int64          `json:"id"`
	SprintID            int64          `json:"sprint_id"`
	ProjectWorkstreamID int64          `json:"project_workstream_id"`
	TeamCapacityID      int64          `json:"team_capacity_id"`
	AllocatedPoints     float64        `json:"allocated_points"`
	UtilizedPoints      float64        `json:"utilized_points"`
	Priority            int            `json:"priority"`
	Trend               TrendDirection `json:"trend"`
	Active              bool           `json:"active"`
	CreatedAt           time.Time      `json:"created_at"`
}

// CachedSprint is a read-optimized copy of tracker sprint data used for
// fast board discovery. Rows older than the staleness threshold are
// refreshed on next access.
type CachedSprint struct {
	TrackerSprintID int64       `json:"tracker_sprint_id"`
	BoardID         int64       `json:"board_id"`
	Name            string      `json:"name"`
	State           SprintState `json:"state"`
	RawJSON         string      `json:"raw,omitempty"`
	LastFetchedAt   time.Time   `json:"last_fetched_at"`
	ErrorCount      int         `json:"error_count"`
	LastError       string      `json:"last_error,omitempty"`
}

// DefaultCacheStaleness is how old a CachedSprint may be before a refresh
// is triggered.
const DefaultCacheStaleness = 2 * time.Hour

// Stale reports whether the cached row is past the staleness threshold.
func (c *CachedSprint) Stale(now time.Time, threshold time.Duration) bool {
	if threshold <= 0 {
		threshold = DefaultCacheStaleness
	}
	return now.Sub(c.LastFetchedAt) > threshold
}

// ValidationError reports a field-level validation failure.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Field + " " + e.Reason
}
