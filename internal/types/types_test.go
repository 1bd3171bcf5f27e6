package types

import (
	"testing"
	"time"
)

func ts(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestSprintValidate(t *testing.T) {
	tests := []struct {
		name    string
		sprint  Sprint
		wantErr string // offending field, "" = valid
	}{
		{"valid", Sprint{Name: "Sprint 1", StartDate: ts("2026-01-01"), EndDate: ts("2026-01-14")}, ""},
		{"empty name", Sprint{Name: "   "}, "name"},
		{"end before start", Sprint{Name: "S", StartDate: ts("2026-01-14"), EndDate: ts("2026-01-01")}, "end_date"},
		{"complete before start", Sprint{Name: "S", StartDate: ts("2026-01-14"), CompleteDate: ts("2026-01-01")}, "complete_date"},
		{"no dates", Sprint{Name: "S"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sprint.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate failed: %v", err)
				}
				return
			}
			verr, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.wantErr {
				t.Errorf("expected field %q, got %q", tt.wantErr, verr.Field)
			}
		})
	}
}

func TestSprintDurationDays(t *testing.T) {
	now := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)

	closed := Sprint{Name: "S", State: SprintClosed, StartDate: ts("2026-01-01"), EndDate: ts("2026-01-15")}
	if got := closed.DurationDays(now); got != 14 {
		t.Errorf("closed sprint duration = %v, want 14", got)
	}

	active := Sprint{Name: "S", State: SprintActive, StartDate: ts("2026-01-10")}
	if got := active.DurationDays(now); got != 10 {
		t.Errorf("active sprint duration = %v, want 10", got)
	}

	// Sub-day sprints floor at 1.
	sameDay := Sprint{Name: "S", StartDate: ts("2026-01-20")}
	if got := sameDay.DurationDays(now); got != 1 {
		t.Errorf("same-day sprint duration = %v, want 1", got)
	}

	noStart := Sprint{Name: "S"}
	if got := noStart.DurationDays(now); got != 1 {
		t.Errorf("no-start duration = %v, want 1", got)
	}
}

func TestCapacityRemainingAndUtilization(t *testing.T) {
	c := DisciplineTeamCapacity{CapacityPoints: 40, Allocated: 30}
	if got := c.Remaining(); got != 10 {
		t.Errorf("Remaining = %v, want 10", got)
	}
	if got := c.Utilization(); got != 75 {
		t.Errorf("Utilization = %v, want 75", got)
	}

	over := DisciplineTeamCapacity{CapacityPoints: 40, Allocated: 60}
	if got := over.Remaining(); got != 0 {
		t.Errorf("over-allocated Remaining = %v, want 0", got)
	}
	if got := over.Utilization(); got != 150 {
		t.Errorf("over-allocated Utilization = %v, want 150", got)
	}

	zero := DisciplineTeamCapacity{}
	if got := zero.Utilization(); got != 0 {
		t.Errorf("zero-capacity Utilization = %v, want 0", got)
	}
}

func TestCachedSprintStale(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := CachedSprint{LastFetchedAt: now.Add(-3 * time.Hour)}
	if !c.Stale(now, 0) {
		t.Error("3h-old row should be stale at the default threshold")
	}
	if c.Stale(now, 4*time.Hour) {
		t.Error("3h-old row should not be stale at a 4h threshold")
	}

	fresh := CachedSprint{LastFetchedAt: now.Add(-time.Minute)}
	if fresh.Stale(now, 0) {
		t.Error("fresh row should not be stale")
	}
}
