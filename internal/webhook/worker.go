package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scullers68/sprint-reports/internal/fieldmap"
	"github.com/scullers68/sprint-reports/internal/storage"
	"github.com/scullers68/sprint-reports/internal/tracker"
	"github.com/scullers68/sprint-reports/internal/types"
)

const (
	// maxAttempts is the retry budget per event.
	maxAttempts = 3
	// retryBase is the re-enqueue delay base: retryBase * 2^attempts.
	retryBase = 60 * time.Second

	scanInterval    = time.Minute
	monitorInterval = time.Minute
	cleanupInterval = time.Hour
	retentionWindow = 30 * 24 * time.Hour
	retryWindow     = 24 * time.Hour
	retryBatchSize  = 50

	// Throughput alert thresholds, measured over the last five minutes.
	alertEventsPerMinute = 200
	alertFailureRate     = 0.10
)

// SyncTrigger starts a per-board sync in response to sprint lifecycle
// events. Satisfied by *syncengine.Engine.
type SyncTrigger interface {
	SyncSprintsBidirectional(ctx context.Context, boardID int64, incremental bool, batchID string) ([]*types.Sprint, *types.SyncHistory, error)
}

// FieldTranslator maps raw tracker fields to canonical form. Satisfied by
// *fieldmap.Mapper.
type FieldTranslator interface {
	ApplyTemplate(ctx context.Context, rawRecord map[string]interface{}, templateID int64) (map[string]interface{}, []fieldmap.FieldError, error)
}

// EventSink records processing outcomes in the audit chain.
type EventSink interface {
	DataAccess(ctx context.Context, actor, resourceType, resourceID, description string, success bool, correlationID string)
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithSyncTrigger wires sprint lifecycle events to the sync engine.
func WithSyncTrigger(t SyncTrigger) PoolOption {
	return func(p *Pool) { p.syncer = t }
}

// WithPoolEventSink attaches an audit sink.
func WithPoolEventSink(sink EventSink) PoolOption {
	return func(p *Pool) { p.sink = sink }
}

// WithAlertHandler receives throughput and failure alerts.
func WithAlertHandler(fn func(string)) PoolOption {
	return func(p *Pool) { p.onAlert = fn }
}

// Pool consumes queued webhook events concurrently. Each event is
// processed by exactly one worker per attempt; handlers are idempotent so
// replays after crashes are safe.
type Pool struct {
	store      storage.Storage
	queue      chan int64
	size       int
	translator FieldTranslator
	syncer     SyncTrigger
	sink       EventSink
	onAlert    func(string)
}

// NewPool creates a worker pool reading from queue. Sizes below 2 are
// raised to 2.
func NewPool(store storage.Storage, queue chan int64, size int, translator FieldTranslator, opts ...PoolOption) *Pool {
	if size < 2 {
		size = 2
	}
	p := &Pool{
		store:      store,
		queue:      queue,
		size:       size,
		translator: translator,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pool) alert(format string, args ...interface{}) {
	if p.onAlert != nil {
		p.onAlert(fmt.Sprintf(format, args...))
	}
}

// Run starts the workers and periodic tasks and blocks until the context
// is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < p.size; w++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case id := <-p.queue:
					p.Process(ctx, id)
				}
			}
		})
	}
	g.Go(func() error { return p.runPeriodic(ctx, scanInterval, p.scanBacklog) })
	g.Go(func() error { return p.runPeriodic(ctx, monitorInterval, p.monitorThroughput) })
	g.Go(func() error { return p.runPeriodic(ctx, cleanupInterval, p.cleanup) })
	return g.Wait()
}

func (p *Pool) runPeriodic(ctx context.Context, interval time.Duration, task func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			task(ctx)
		}
	}
}

// Process handles one queued event id through the attempt state machine.
func (p *Pool) Process(ctx context.Context, id int64) {
	event, err := p.store.GetWebhookEvent(ctx, id)
	if err != nil {
		p.alert("load webhook event %d: %v", id, err)
		return
	}
	if event.Status == types.ProcessingCompleted {
		return
	}

	now := time.Now().UTC()
	event.Status = types.ProcessingActive
	event.Attempts++
	event.LastProcessedAt = &now
	if err := p.store.UpdateWebhookEvent(ctx, event); err != nil {
		p.alert("claim webhook event %d: %v", id, err)
		return
	}

	processed, procErr := p.dispatch(ctx, event)
	if procErr == nil {
		event.Status = types.ProcessingCompleted
		event.Error = ""
		event.ProcessedData = processed
	} else {
		event.Status = types.ProcessingFailed
		event.Error = procErr.Error()
	}
	if err := p.store.UpdateWebhookEvent(ctx, event); err != nil {
		p.alert("finalize webhook event %d: %v", id, err)
		return
	}
	if p.sink != nil {
		p.sink.DataAccess(ctx, "webhook-worker", "webhook_event", event.EventID,
			fmt.Sprintf("processed %s (attempt %d)", event.EventType, event.Attempts),
			procErr == nil, event.EventID)
	}

	if procErr != nil && event.Attempts < maxAttempts {
		delay := retryBase * time.Duration(1<<event.Attempts)
		p.requeueAfter(ctx, id, delay)
	}
}

// requeueAfter re-queues a failed event after its backoff delay without
// holding a worker.
func (p *Pool) requeueAfter(ctx context.Context, id int64, delay time.Duration) {
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			select {
			case p.queue <- id:
			default:
			}
		}
	}()
}

// dispatch routes an event by type and returns the derived canonical
// payload to store on the event row.
func (p *Pool) dispatch(ctx context.Context, event *types.WebhookEvent) (string, error) {
	var env envelope
	if err := json.Unmarshal([]byte(event.Payload), &env); err != nil {
		return "", fmt.Errorf("parse payload: %w", err)
	}

	switch {
	case strings.Contains(event.EventType, "issue"):
		return p.handleIssue(ctx, &env)
	case strings.Contains(event.EventType, "sprint"):
		return p.handleSprint(ctx, event.EventType, &env)
	default:
		// Unknown event types complete without local effect.
		return "", nil
	}
}

// handleIssue maps the issue's raw fields to canonical form. Issues are
// not materialized as local rows; the mapped output is stored as the
// event's processed data for downstream analytics.
func (p *Pool) handleIssue(ctx context.Context, env *envelope) (string, error) {
	if len(env.Issue) == 0 {
		return "", fmt.Errorf("issue event without issue body")
	}
	var issue tracker.IssueDTO
	if err := json.Unmarshal(env.Issue, &issue); err != nil {
		return "", fmt.Errorf("parse issue: %w", err)
	}
	issue.Raw = env.Issue

	canonical, fieldErrs, err := p.translator.ApplyTemplate(ctx, issue.RawFields(), 0)
	if err != nil {
		return "", fmt.Errorf("map issue %s: %w", issue.Key, err)
	}

	processed := map[string]interface{}{
		"issue_key": issue.Key,
		"fields":    canonical,
	}
	if len(fieldErrs) > 0 {
		msgs := make([]string, len(fieldErrs))
		for i, fe := range fieldErrs {
			msgs[i] = fe.Error()
		}
		processed["field_errors"] = msgs
	}
	b, err := json.Marshal(processed)
	if err != nil {
		return "", fmt.Errorf("marshal processed data: %w", err)
	}
	return string(b), nil
}

// handleSprint applies a sprint event to the local Sprint row and, for
// lifecycle transitions, triggers a board sync.
func (p *Pool) handleSprint(ctx context.Context, eventType string, env *envelope) (string, error) {
	if len(env.Sprint) == 0 {
		return "", fmt.Errorf("sprint event without sprint body")
	}
	var dto tracker.SprintDTO
	if err := json.Unmarshal(env.Sprint, &dto); err != nil {
		return "", fmt.Errorf("parse sprint: %w", err)
	}
	state := strings.ToLower(dto.State)

	local, err := p.store.GetSprintByTrackerID(ctx, dto.ID)
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"name":  dto.Name,
			"state": state,
			"goal":  dto.Goal,
		}
		if err := p.store.UpdateSprint(ctx, local.ID, updates); err != nil {
			return "", fmt.Errorf("update sprint %d: %w", local.ID, err)
		}
	case errors.Is(err, storage.ErrNotFound):
		sprint := &types.Sprint{
			TrackerSprintID: dto.ID,
			Name:            dto.Name,
			State:           types.SprintState(state),
			Goal:            dto.Goal,
			StartDate:       dto.StartDate,
			EndDate:         dto.EndDate,
			CompleteDate:    dto.CompleteDate,
			BoardID:         dto.OriginBoardID,
			SyncStatus:      types.SyncCompleted,
		}
		if err := sprint.Validate(); err != nil {
			return "", err
		}
		if _, err := p.store.CreateSprint(ctx, sprint); err != nil {
			return "", fmt.Errorf("create sprint: %w", err)
		}
	default:
		return "", fmt.Errorf("load sprint %d: %w", dto.ID, err)
	}

	// Lifecycle transitions pull the rest of the board back in sync.
	if p.syncer != nil && (strings.HasSuffix(eventType, "started") || strings.HasSuffix(eventType, "closed")) {
		if _, _, err := p.syncer.SyncSprintsBidirectional(ctx, dto.OriginBoardID, true, ""); err != nil {
			return "", fmt.Errorf("board sync after %s: %w", eventType, err)
		}
	}

	b, _ := json.Marshal(map[string]interface{}{
		"sprint_id": dto.ID,
		"state":     state,
	})
	return string(b), nil
}

// scanBacklog re-queues pending events dropped at publish time and failed
// events still inside their retry budget.
func (p *Pool) scanBacklog(ctx context.Context) {
	since := time.Now().UTC().Add(-retryWindow)
	for _, status := range []types.ProcessingStatus{types.ProcessingPending, types.ProcessingFailed} {
		events, err := p.store.ListWebhookEvents(ctx, status, since, maxAttempts, retryBatchSize)
		if err != nil {
			p.alert("scan %s events: %v", status, err)
			continue
		}
		for _, e := range events {
			select {
			case p.queue <- e.ID:
			default:
				return // queue full; next scan resumes
			}
		}
	}
}

// monitorThroughput checks the 5-minute event rate and failure share.
func (p *Pool) monitorThroughput(ctx context.Context) {
	since := time.Now().UTC().Add(-5 * time.Minute)
	total, err := p.store.CountWebhookEvents(ctx, since, false)
	if err != nil {
		p.alert("count webhook events: %v", err)
		return
	}
	failed, err := p.store.CountWebhookEvents(ctx, since, true)
	if err != nil {
		p.alert("count failed webhook events: %v", err)
		return
	}

	perMinute := float64(total) / 5
	if perMinute > alertEventsPerMinute {
		p.alert("webhook throughput high: %.0f events/min", perMinute)
	}
	if total > 0 {
		if rate := float64(failed) / float64(total); rate > alertFailureRate {
			p.alert("webhook failure rate high: %.1f%% (%d/%d)", rate*100, failed, total)
		}
	}
}

// cleanup removes terminal events past the retention window.
func (p *Pool) cleanup(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionWindow)
	n, err := p.store.DeleteWebhookEventsBefore(ctx, cutoff)
	if err != nil {
		p.alert("webhook cleanup: %v", err)
		return
	}
	if n > 0 {
		p.alert("webhook cleanup removed %d events", n)
	}
}
