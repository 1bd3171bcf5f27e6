package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/scullers68/sprint-reports/internal/storage"
	"github.com/scullers68/sprint-reports/internal/types"
)

const webhookColumns = `id, event_id, event_type, payload, status, attempts,
	last_processed_at, error, processed_data, received_at`

func scanWebhookEvent(row interface{ Scan(...interface{}) error }) (*types.WebhookEvent, error) {
	var e types.WebhookEvent
	var lastProcessed sql.NullTime
	err := row.Scan(&e.ID, &e.EventID, &e.EventType, &e.Payload, &e.Status,
		&e.Attempts, &lastProcessed, &e.Error, &e.ProcessedData, &e.ReceivedAt)
	if err != nil {
		return nil, err
	}
	e.LastProcessedAt = timePtr(lastProcessed)
	return &e, nil
}

// InsertWebhookEvent persists a delivery. A second insert with the same
// event_id returns storage.ErrDuplicate; callers treat that as idempotent.
func (s *Store) InsertWebhookEvent(ctx context.Context, e *types.WebhookEvent) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, event_type, payload, status, attempts,
			last_processed_at, error, processed_data, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EventID, e.EventType, orDefault(e.Payload, "{}"),
		orDefault(string(e.Status), string(types.ProcessingPending)),
		e.Attempts, nullTime(e.LastProcessedAt), e.Error, e.ProcessedData,
		time.Now().UTC())
	if err != nil {
		return 0, mapConstraintErr(err)
	}
	return res.LastInsertId()
}

// GetWebhookEvent returns one event by local id.
func (s *Store) GetWebhookEvent(ctx context.Context, id int64) (*types.WebhookEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+webhookColumns+`
		FROM webhook_events WHERE id = ?`, id)
	e, err := scanWebhookEvent(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return e, err
}

// UpdateWebhookEvent rewrites the processing fields of an event.
func (s *Store) UpdateWebhookEvent(ctx context.Context, e *types.WebhookEvent) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_events SET status = ?, attempts = ?, last_processed_at = ?,
			error = ?, processed_data = ?
		WHERE id = ?`,
		string(e.Status), e.Attempts, nullTime(e.LastProcessedAt), e.Error,
		e.ProcessedData, e.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListWebhookEvents returns events in the given status received since the
// given time, oldest first. maxAttempts > 0 excludes events at or past the
// limit; limit > 0 caps the batch size.
func (s *Store) ListWebhookEvents(ctx context.Context, status types.ProcessingStatus, since time.Time, maxAttempts, limit int) ([]*types.WebhookEvent, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhook_events WHERE status = ?`
	args := []interface{}{string(status)}
	if !since.IsZero() {
		query += ` AND received_at >= ?`
		args = append(args, since.UTC())
	}
	if maxAttempts > 0 {
		query += ` AND attempts < ?`
		args = append(args, maxAttempts)
	}
	query += ` ORDER BY received_at, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []*types.WebhookEvent
	for rows.Next() {
		e, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountWebhookEvents counts events received since the given time, optionally
// failed ones only. Feeds the throughput monitor.
func (s *Store) CountWebhookEvents(ctx context.Context, since time.Time, failedOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM webhook_events WHERE received_at >= ?`
	args := []interface{}{since.UTC()}
	if failedOnly {
		query += ` AND status = 'failed'`
	}
	var n int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// DeleteWebhookEventsBefore removes terminal events received before cutoff
// and returns how many were deleted.
func (s *Store) DeleteWebhookEventsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM webhook_events
		WHERE received_at < ? AND status IN ('completed', 'failed')`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
