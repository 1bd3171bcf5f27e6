package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/scullers68/sprint-reports/internal/storage"
	"github.com/scullers68/sprint-reports/internal/storage/sqlite"
	"github.com/scullers68/sprint-reports/internal/types"
)

func setupLog(t *testing.T, opts ...Option) (*Log, storage.Storage) {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, opts...), store
}

func appendEvents(t *testing.T, log *Log, n int) []*types.SecurityEvent {
	t.Helper()
	ctx := context.Background()
	events := make([]*types.SecurityEvent, 0, n)
	for i := 0; i < n; i++ {
		e, err := log.CreateEvent(ctx, &types.SecurityEvent{
			EventType:   types.EventDataAccess,
			Category:    "data",
			UserID:      "alice",
			Success:     true,
			Description: "read sprint",
		})
		if err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
		events = append(events, e)
	}
	return events
}

func TestChainLinksAndVerifies(t *testing.T) {
	log, _ := setupLog(t)
	events := appendEvents(t, log, 3)

	if events[0].PreviousChecksum != "" {
		t.Errorf("genesis event has a previous checksum: %q", events[0].PreviousChecksum)
	}
	for i := 1; i < len(events); i++ {
		if events[i].PreviousChecksum != events[i-1].Checksum {
			t.Errorf("event %d not linked to its predecessor", events[i].ID)
		}
	}

	report, err := log.VerifyChain(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("VerifyChain failed: %v", err)
	}
	if !report.Valid || report.EventsChecked != 3 {
		t.Errorf("report = %+v, want valid over 3 events", report)
	}
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	log, store := setupLog(t)
	events := appendEvents(t, log, 3)
	ctx := context.Background()

	// Overwrite the middle event's checksum, as a direct database edit
	// would after changing the row.
	mid := events[1]
	if err := store.SetSecurityEventChecksum(ctx, mid.ID, "tampered"); err != nil {
		t.Fatalf("tamper failed: %v", err)
	}

	report, err := log.VerifyChain(ctx, 0, 0)
	if err != nil {
		t.Fatalf("VerifyChain failed: %v", err)
	}
	if report.Valid {
		t.Fatal("tampered chain reported valid")
	}
	if len(report.InvalidEvents) != 1 || report.InvalidEvents[0] != mid.ID {
		t.Errorf("invalid events = %v, want [%d]", report.InvalidEvents, mid.ID)
	}
	// The successor's link no longer matches the rewritten checksum.
	if len(report.BrokenLinks) != 1 || report.BrokenLinks[0].EventID != events[2].ID {
		t.Errorf("broken links = %+v, want one at event %d", report.BrokenLinks, events[2].ID)
	}

	ok, err := log.VerifyEvent(ctx, mid.ID)
	if err != nil {
		t.Fatalf("VerifyEvent failed: %v", err)
	}
	if ok {
		t.Error("tampered event verified")
	}
}

func TestVerifyChainRange(t *testing.T) {
	log, _ := setupLog(t)
	events := appendEvents(t, log, 5)

	report, err := log.VerifyChain(context.Background(), events[1].ID, events[3].ID)
	if err != nil {
		t.Fatalf("VerifyChain failed: %v", err)
	}
	if report.EventsChecked != 3 || !report.Valid {
		t.Errorf("range report = %+v, want 3 valid events", report)
	}
}

func TestRepairChecksums(t *testing.T) {
	log, store := setupLog(t)
	ctx := context.Background()

	// A row persisted without its checksum write, as after a crash
	// mid-append.
	id, err := store.InsertSecurityEvent(ctx, &types.SecurityEvent{
		EventType:     types.EventSyncOperation,
		Severity:      types.SeverityInfo,
		Description:   "interrupted append",
		RetentionDate: time.Now().AddDate(1, 0, 0),
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	repaired, err := log.RepairChecksums(ctx)
	if err != nil {
		t.Fatalf("RepairChecksums failed: %v", err)
	}
	if repaired != 1 {
		t.Fatalf("repaired = %d, want 1", repaired)
	}

	ok, err := log.VerifyEvent(ctx, id)
	if err != nil {
		t.Fatalf("VerifyEvent failed: %v", err)
	}
	if !ok {
		t.Error("repaired event does not verify")
	}
}

func TestRetentionPolicy(t *testing.T) {
	log, store := setupLog(t)
	ctx := context.Background()

	expired, err := log.CreateEvent(ctx, &types.SecurityEvent{
		EventType:     types.EventDataAccess,
		Description:   "old event",
		RetentionDate: time.Now().AddDate(0, 0, -1),
	})
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	kept, err := log.CreateEvent(ctx, &types.SecurityEvent{
		EventType:   types.EventDataAccess,
		Description: "current event",
	})
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	dry, err := log.ApplyRetentionPolicy(ctx, true)
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if !dry.DryRun || dry.Deleted != 0 {
		t.Errorf("dry run deleted rows: %+v", dry)
	}
	if len(dry.Eligible) != 1 || dry.Eligible[0] != expired.ID {
		t.Errorf("eligible = %v, want [%d]", dry.Eligible, expired.ID)
	}
	if _, err := store.GetSecurityEvent(ctx, expired.ID); err != nil {
		t.Fatalf("dry run removed the event: %v", err)
	}

	applied, err := log.ApplyRetentionPolicy(ctx, false)
	if err != nil {
		t.Fatalf("retention run failed: %v", err)
	}
	if applied.Deleted != 1 {
		t.Errorf("deleted = %d, want 1", applied.Deleted)
	}
	if _, err := store.GetSecurityEvent(ctx, kept.ID); err != nil {
		t.Errorf("in-retention event was deleted: %v", err)
	}
}

func TestDecisionEventSeverities(t *testing.T) {
	log, store := setupLog(t)
	ctx := context.Background()

	log.Authorization(ctx, "alice", "sprint", "3", "sprint.read", true, "")
	log.Authorization(ctx, "alice", "sprint", "3", "sprint.delete", false, "")
	log.Authentication(ctx, types.EventAuthentication, "alice", "alice@example.com", "10.0.0.1", false, "bad token")

	events, err := store.ListSecurityEvents(ctx, storage.SecurityEventFilter{})
	if err != nil {
		t.Fatalf("ListSecurityEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Severity != types.SeverityInfo {
		t.Errorf("granted decision severity = %s, want info", events[0].Severity)
	}
	for _, e := range events[1:] {
		if e.Severity != types.SeverityMedium {
			t.Errorf("%s severity = %s, want medium", e.EventType, e.Severity)
		}
	}
}

func TestDisabledLogDropsEvents(t *testing.T) {
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	log := Disabled(store)
	ctx := context.Background()
	if _, err := log.CreateEvent(ctx, &types.SecurityEvent{EventType: types.EventDataAccess, Description: "x"}); err != nil {
		t.Fatalf("CreateEvent on disabled log failed: %v", err)
	}

	report, err := log.VerifyChain(ctx, 0, 0)
	if err != nil {
		t.Fatalf("VerifyChain failed: %v", err)
	}
	if report.EventsChecked != 0 {
		t.Errorf("disabled log wrote %d events", report.EventsChecked)
	}
}

func TestComplianceReport(t *testing.T) {
	log, _ := setupLog(t)
	ctx := context.Background()

	for _, success := range []bool{true, true, false} {
		if _, err := log.CreateEvent(ctx, &types.SecurityEvent{
			EventType:      types.EventAuthentication,
			Category:       "auth",
			Success:        success,
			Description:    "login",
			ComplianceTags: []string{"soc2"},
		}); err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
	}
	// Outside the framework tag; must not be counted.
	if _, err := log.CreateEvent(ctx, &types.SecurityEvent{
		EventType:   types.EventDataAccess,
		Success:     true,
		Description: "untagged",
	}); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	from := time.Now().Add(-time.Hour)
	to := time.Now().Add(time.Hour)
	report, err := log.GenerateComplianceReport(ctx, "soc2", from, to)
	if err != nil {
		t.Fatalf("GenerateComplianceReport failed: %v", err)
	}
	if report.TotalEvents != 3 {
		t.Fatalf("total events = %d, want 3", report.TotalEvents)
	}
	if report.SuccessCount != 2 || report.FailureCount != 1 {
		t.Errorf("success/failure = %d/%d, want 2/1", report.SuccessCount, report.FailureCount)
	}
	if report.SuccessRate < 66 || report.SuccessRate > 67 {
		t.Errorf("success rate = %.2f, want ~66.67", report.SuccessRate)
	}
	if report.ReportChecksum == "" {
		t.Error("report checksum not set")
	}

	// Report generation itself is recorded as a snapshot event.
	chain, err := log.VerifyChain(ctx, 0, 0)
	if err != nil {
		t.Fatalf("VerifyChain failed: %v", err)
	}
	if chain.EventsChecked != 5 {
		t.Errorf("events after report = %d, want 5 (4 + snapshot)", chain.EventsChecked)
	}
	if !chain.Valid {
		t.Error("chain invalid after report snapshot")
	}
}
