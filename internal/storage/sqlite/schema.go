package sqlite

const schema = `
-- Sprints mirror tracker sprints. Never deleted automatically; closed
-- sprints act as tombstones.
CREATE TABLE IF NOT EXISTS sprints (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tracker_sprint_id INTEGER NOT NULL UNIQUE,
    name TEXT NOT NULL CHECK(length(trim(name)) > 0),
    state TEXT NOT NULL DEFAULT 'future' CHECK(state IN ('future', 'active', 'closed')),
    goal TEXT NOT NULL DEFAULT '',
    start_date DATETIME,
    end_date DATETIME,
    complete_date DATETIME,
    board_id INTEGER NOT NULL DEFAULT 0,
    tracker_last_updated DATETIME,
    sync_status TEXT NOT NULL DEFAULT 'pending'
        CHECK(sync_status IN ('pending', 'in_progress', 'completed', 'failed', 'skipped')),
    tracker_board_name TEXT NOT NULL DEFAULT '',
    tracker_project_key TEXT NOT NULL DEFAULT '',
    tracker_api_version TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sprints_board ON sprints(board_id);
CREATE INDEX IF NOT EXISTS idx_sprints_state ON sprints(state);
CREATE INDEX IF NOT EXISTS idx_sprints_project_key ON sprints(tracker_project_key);

-- Append-only analysis results; latest per (sprint, type) is current.
CREATE TABLE IF NOT EXISTS sprint_analyses (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    sprint_id INTEGER NOT NULL REFERENCES sprints(id),
    analysis_type TEXT NOT NULL
        CHECK(analysis_type IN ('discipline_team', 'capacity', 'velocity', 'burndown')),
    total_issues INTEGER NOT NULL DEFAULT 0,
    total_story_points REAL NOT NULL DEFAULT 0,
    breakdown TEXT NOT NULL DEFAULT '{}',
    filter_applied TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sprint_analyses_sprint ON sprint_analyses(sprint_id, analysis_type, id);

-- Project workstreams flowing through meta-board sprints.
CREATE TABLE IF NOT EXISTS project_workstreams (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_key TEXT NOT NULL UNIQUE CHECK(length(trim(project_key)) > 0),
    project_name TEXT NOT NULL DEFAULT '',
    tracker_board_id INTEGER NOT NULL DEFAULT 0,
    tracker_board_name TEXT NOT NULL DEFAULT '',
    workstream_type TEXT NOT NULL DEFAULT 'standard'
        CHECK(workstream_type IN ('standard', 'epic', 'initiative')),
    category TEXT NOT NULL DEFAULT '',
    active INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Many-to-many sprint/workstream links.
CREATE TABLE IF NOT EXISTS project_sprint_associations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    sprint_id INTEGER NOT NULL REFERENCES sprints(id),
    project_workstream_id INTEGER NOT NULL REFERENCES project_workstreams(id),
    association_type TEXT NOT NULL DEFAULT 'primary'
        CHECK(association_type IN ('primary', 'secondary', 'dependency')),
    priority INTEGER NOT NULL DEFAULT 1 CHECK(priority > 0),
    expected_story_points REAL NOT NULL DEFAULT 0 CHECK(expected_story_points >= 0),
    actual_story_points REAL NOT NULL DEFAULT 0 CHECK(actual_story_points >= 0),
    active INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(sprint_id, project_workstream_id)
);

CREATE INDEX IF NOT EXISTS idx_associations_workstream ON project_sprint_associations(project_workstream_id);

-- Dated metric roll-ups per (sprint, project).
CREATE TABLE IF NOT EXISTS project_sprint_metrics (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    sprint_id INTEGER NOT NULL REFERENCES sprints(id),
    project_workstream_id INTEGER NOT NULL REFERENCES project_workstreams(id),
    metrics_date DATETIME NOT NULL,
    total_issues INTEGER NOT NULL DEFAULT 0,
    completed_issues INTEGER NOT NULL DEFAULT 0 CHECK(completed_issues <= total_issues),
    in_progress_issues INTEGER NOT NULL DEFAULT 0,
    blocked_issues INTEGER NOT NULL DEFAULT 0,
    total_story_points REAL NOT NULL DEFAULT 0,
    completed_story_points REAL NOT NULL DEFAULT 0 CHECK(completed_story_points <= total_story_points),
    completion_percentage REAL NOT NULL DEFAULT 0 CHECK(completion_percentage >= 0 AND completion_percentage <= 100),
    velocity REAL NOT NULL DEFAULT 0,
    burndown_rate REAL NOT NULL DEFAULT 0,
    scope_added_points REAL NOT NULL DEFAULT 0,
    scope_removed_points REAL NOT NULL DEFAULT 0,
    detailed_breakdown TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(sprint_id, project_workstream_id, metrics_date)
);

-- Per sprint x discipline-team capacity declarations.
CREATE TABLE IF NOT EXISTS discipline_team_capacities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    sprint_id INTEGER NOT NULL REFERENCES sprints(id),
    discipline_team TEXT NOT NULL,
    capacity_points REAL NOT NULL DEFAULT 0 CHECK(capacity_points >= 0),
    capacity_type TEXT NOT NULL DEFAULT 'story_points'
        CHECK(capacity_type IN ('story_points', 'hours', 'issues')),
    allocated REAL NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(sprint_id, discipline_team)
);

-- Capacity allocations per (sprint, project, team capacity).
CREATE TABLE IF NOT EXISTS project_capacity_allocations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    sprint_id INTEGER NOT NULL REFERENCES sprints(id),
    project_workstream_id INTEGER NOT NULL REFERENCES project_workstreams(id),
    team_capacity_id INTEGER NOT NULL REFERENCES discipline_team_capacities(id),
    allocated_points REAL NOT NULL DEFAULT 0,
    utilized_points REAL NOT NULL DEFAULT 0,
    priority INTEGER NOT NULL DEFAULT 1,
    trend TEXT NOT NULL DEFAULT 'stable' CHECK(trend IN ('increasing', 'decreasing', 'stable')),
    active INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(sprint_id, project_workstream_id, team_capacity_id)
);

-- Per-entity sync state, keyed by (entity_type, entity_id).
CREATE TABLE IF NOT EXISTS sync_metadata (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type TEXT NOT NULL CHECK(entity_type IN ('sprint', 'issue', 'project', 'board')),
    entity_id INTEGER NOT NULL,
    tracker_id TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'pending'
        CHECK(status IN ('pending', 'in_progress', 'completed', 'failed', 'skipped')),
    last_attempt DATETIME,
    last_successful DATETIME,
    local_modified DATETIME,
    remote_modified DATETIME,
    error_count INTEGER NOT NULL DEFAULT 0 CHECK(error_count >= 0),
    last_error TEXT NOT NULL DEFAULT '',
    direction TEXT NOT NULL DEFAULT 'remote_to_local'
        CHECK(direction IN ('local_to_remote', 'remote_to_local', 'bidirectional')),
    content_hash TEXT NOT NULL DEFAULT '',
    batch_id TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(entity_type, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_sync_metadata_tracker ON sync_metadata(entity_type, tracker_id);
CREATE INDEX IF NOT EXISTS idx_sync_metadata_batch ON sync_metadata(batch_id);

-- Field-level conflict records, linked to sync_metadata.
CREATE TABLE IF NOT EXISTS conflict_resolutions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    sync_metadata_id INTEGER NOT NULL REFERENCES sync_metadata(id),
    conflict_type TEXT NOT NULL DEFAULT 'field_conflict'
        CHECK(conflict_type IN ('field_conflict', 'deletion_conflict', 'creation_conflict')),
    field_name TEXT NOT NULL DEFAULT '',
    local_value TEXT NOT NULL DEFAULT 'null',
    remote_value TEXT NOT NULL DEFAULT 'null',
    strategy TEXT NOT NULL DEFAULT ''
        CHECK(strategy IN ('', 'local_wins', 'remote_wins', 'manual', 'merge')),
    resolved_value TEXT NOT NULL DEFAULT 'null',
    resolved_by TEXT NOT NULL DEFAULT '',
    resolved_at DATETIME,
    resolved INTEGER NOT NULL DEFAULT 0,
    notes TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_conflicts_metadata ON conflict_resolutions(sync_metadata_id, resolved);

-- One row per sync batch.
CREATE TABLE IF NOT EXISTS sync_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    batch_id TEXT NOT NULL,
    operation_type TEXT NOT NULL
        CHECK(operation_type IN ('full_sync', 'incremental_sync', 'conflict_resolution', 'webhook_sync')),
    entities_processed INTEGER NOT NULL DEFAULT 0,
    entities_created INTEGER NOT NULL DEFAULT 0,
    entities_updated INTEGER NOT NULL DEFAULT 0,
    entities_deleted INTEGER NOT NULL DEFAULT 0,
    entities_skipped INTEGER NOT NULL DEFAULT 0,
    conflicts_detected INTEGER NOT NULL DEFAULT 0,
    conflicts_resolved INTEGER NOT NULL DEFAULT 0,
    duration_seconds REAL NOT NULL DEFAULT 0,
    api_calls_made INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'in_progress'
        CHECK(status IN ('pending', 'in_progress', 'completed', 'failed', 'skipped')),
    error_message TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sync_history_op ON sync_history(operation_type, status, created_at);

-- Durable webhook deliveries; event_id is the idempotency key.
CREATE TABLE IF NOT EXISTS webhook_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id TEXT NOT NULL UNIQUE,
    event_type TEXT NOT NULL,
    payload TEXT NOT NULL DEFAULT '{}',
    status TEXT NOT NULL DEFAULT 'pending'
        CHECK(status IN ('pending', 'processing', 'completed', 'failed')),
    attempts INTEGER NOT NULL DEFAULT 0,
    last_processed_at DATETIME,
    error TEXT NOT NULL DEFAULT '',
    processed_data TEXT NOT NULL DEFAULT '',
    received_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_webhook_events_status ON webhook_events(status, received_at);

-- Read-optimized tracker sprint cache; rows upsert by tracker id.
CREATE TABLE IF NOT EXISTS cached_sprints (
    tracker_sprint_id INTEGER PRIMARY KEY,
    board_id INTEGER NOT NULL DEFAULT 0,
    name TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT 'future',
    raw TEXT NOT NULL DEFAULT '{}',
    last_fetched_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    error_count INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_cached_sprints_board ON cached_sprints(board_id);

-- Hash-chained audit log. checksum is written in a second step after the
-- row exists; verification flags rows that never received one.
CREATE TABLE IF NOT EXISTS security_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_type TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    severity TEXT NOT NULL DEFAULT 'info'
        CHECK(severity IN ('info', 'low', 'medium', 'high', 'critical')),
    user_id TEXT NOT NULL DEFAULT '',
    user_email TEXT NOT NULL DEFAULT '',
    source_ip TEXT NOT NULL DEFAULT '',
    resource_type TEXT NOT NULL DEFAULT '',
    resource_id TEXT NOT NULL DEFAULT '',
    resource_name TEXT NOT NULL DEFAULT '',
    success INTEGER NOT NULL DEFAULT 1,
    description TEXT NOT NULL DEFAULT '',
    metadata TEXT NOT NULL DEFAULT '{}',
    compliance_tags TEXT NOT NULL DEFAULT '[]',
    correlation_id TEXT NOT NULL DEFAULT '',
    checksum TEXT NOT NULL DEFAULT '',
    previous_checksum TEXT NOT NULL DEFAULT '',
    retention_date DATETIME NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_security_events_retention ON security_events(retention_date);
CREATE INDEX IF NOT EXISTS idx_security_events_created ON security_events(created_at);

-- Field mapping templates; one active per context.
CREATE TABLE IF NOT EXISTS field_mapping_templates (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    context TEXT NOT NULL DEFAULT 'default',
    active INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS field_mappings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    template_id INTEGER NOT NULL REFERENCES field_mapping_templates(id),
    tracker_field_id TEXT NOT NULL,
    target_field TEXT NOT NULL,
    field_type TEXT NOT NULL DEFAULT 'string'
        CHECK(field_type IN ('string', 'integer', 'float', 'boolean', 'list', 'object', 'date', 'datetime')),
    mapping_type TEXT NOT NULL DEFAULT 'direct'
        CHECK(mapping_type IN ('direct', 'transformation', 'lookup')),
    transform_config TEXT NOT NULL DEFAULT '{}',
    validation_rules TEXT NOT NULL DEFAULT '{}',
    default_value TEXT NOT NULL DEFAULT 'null',
    required INTEGER NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 1,
    version INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_field_mappings_template ON field_mappings(template_id, active);

CREATE TABLE IF NOT EXISTS field_mapping_versions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    field_mapping_id INTEGER NOT NULL REFERENCES field_mappings(id),
    version INTEGER NOT NULL,
    change_type TEXT NOT NULL CHECK(change_type IN ('created', 'updated', 'deleted')),
    description TEXT NOT NULL DEFAULT '',
    previous_config TEXT NOT NULL DEFAULT '',
    new_config TEXT NOT NULL DEFAULT '',
    changed_by TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Minimal RBAC model consumed by the authorization gate.
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL DEFAULT '',
    active INTEGER NOT NULL DEFAULT 1,
    superuser INTEGER NOT NULL DEFAULT 0,
    roles TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS roles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    permissions TEXT NOT NULL DEFAULT '[]',
    active INTEGER NOT NULL DEFAULT 1
);

-- Service state (last_sync timestamps, encrypted credentials, etc.).
CREATE TABLE IF NOT EXISTS config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
