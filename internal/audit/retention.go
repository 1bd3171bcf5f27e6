package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/scullers68/sprint-reports/internal/storage"
)

// RetentionResult summarizes one retention enforcement run.
type RetentionResult struct {
	Eligible []int64 `json:"eligible"`
	Deleted  int     `json:"deleted"`
	DryRun   bool    `json:"dry_run"`
}

// ApplyRetentionPolicy selects events whose retention date has passed and,
// unless dryRun, deletes them. Deletion breaks chain links across the
// removed range going forward; take a compliance snapshot first.
func (l *Log) ApplyRetentionPolicy(ctx context.Context, dryRun bool) (*RetentionResult, error) {
	now := time.Now().UTC()
	due, err := l.store.ListSecurityEvents(ctx, storage.SecurityEventFilter{
		RetentionDue: &now,
	})
	if err != nil {
		return nil, fmt.Errorf("list retention-due events: %w", err)
	}

	result := &RetentionResult{DryRun: dryRun}
	for _, e := range due {
		result.Eligible = append(result.Eligible, e.ID)
	}
	if dryRun || len(result.Eligible) == 0 {
		return result, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	deleted, err := l.store.DeleteSecurityEvents(ctx, result.Eligible)
	if err != nil {
		return result, fmt.Errorf("delete expired events: %w", err)
	}
	result.Deleted = deleted
	return result, nil
}
