package syncengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scullers68/sprint-reports/internal/types"
)

// ErrNotImplemented is returned for the reserved merge strategy. Callers
// wanting a merged outcome supply the pre-merged value via manual
// resolution instead.
var ErrNotImplemented = errors.New("not implemented")

// ResolveConflict applies a resolution strategy to a recorded conflict.
// local-wins and remote-wins pick the stored values; manual requires the
// caller's resolvedValue. Write-through of a manual resolution to the
// entity is a separate, explicit step.
func (e *Engine) ResolveConflict(ctx context.Context, conflictID int64, strategy types.ResolutionStrategy, resolvedValue, notes, resolvedBy string) (*types.ConflictResolution, error) {
	conflict, err := e.store.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, fmt.Errorf("load conflict %d: %w", conflictID, err)
	}

	switch strategy {
	case types.ResolveLocalWins:
		conflict.ResolvedValue = conflict.LocalValue
	case types.ResolveRemoteWins:
		conflict.ResolvedValue = conflict.RemoteValue
	case types.ResolveManual:
		if resolvedValue == "" {
			return nil, &types.ValidationError{Field: "resolved_value", Reason: "required for manual resolution"}
		}
		conflict.ResolvedValue = resolvedValue
	case types.ResolveMerge:
		return nil, fmt.Errorf("merge strategy: %w", ErrNotImplemented)
	default:
		return nil, &types.ValidationError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", strategy)}
	}

	now := time.Now().UTC()
	conflict.Strategy = strategy
	conflict.Resolved = true
	conflict.ResolvedAt = &now
	conflict.ResolvedBy = resolvedBy
	conflict.Notes = notes

	if err := e.store.UpdateConflict(ctx, conflict); err != nil {
		return nil, fmt.Errorf("save conflict %d: %w", conflictID, err)
	}
	e.audit(ctx, fmt.Sprintf("conflict/%d", conflictID),
		fmt.Sprintf("conflict resolved via %s", strategy), true, "")
	return conflict, nil
}
