package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/scullers68/sprint-reports/internal/storage"
	"github.com/scullers68/sprint-reports/internal/types"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync sprints with the tracker",
	Long: `Run a sync batch against the tracker. Full sync pulls every sprint on
the board; --incremental skips entities unchanged since the last
successful sync.

Examples:
  sprintd sync --board 42               # Full sync of board 42
  sprintd sync --board 42 --incremental # Only changed sprints
  sprintd sync --since 2026-08-01       # Incremental from an explicit instant
`,
	Run: func(cmd *cobra.Command, args []string) {
		boardID, _ := cmd.Flags().GetInt64("board")
		incremental, _ := cmd.Flags().GetBool("incremental")
		sinceRaw, _ := cmd.Flags().GetString("since")

		client := newTrackerClient()
		engine := newSyncEngine(client, newAuditLog())

		var history *types.SyncHistory
		var err error
		if sinceRaw != "" {
			since, perr := parseTimeFlag(sinceRaw)
			if perr != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", perr)
				os.Exit(1)
			}
			history, err = engine.SyncIncremental(rootCtx, since, boardID)
		} else {
			_, history, err = engine.SyncSprintsBidirectional(rootCtx, boardID, incremental, "")
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: sync failed: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(history)
			return
		}
		fmt.Printf("Sync %s: %s\n", history.BatchID, history.Status)
		fmt.Printf("  processed: %d  created: %d  updated: %d  skipped: %d  deleted: %d\n",
			history.EntitiesProcessed, history.EntitiesCreated, history.EntitiesUpdated,
			history.EntitiesSkipped, history.EntitiesDeleted)
		fmt.Printf("  conflicts detected: %d  resolved: %d\n",
			history.ConflictsDetected, history.ConflictsResolved)
		fmt.Printf("  api calls: %d  duration: %.1fs\n", history.APICallsMade, history.DurationSeconds)
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id>",
	Short: "Resolve a sync conflict",
	Long: `Apply a resolution strategy to a recorded conflict.

Strategies: local_wins, remote_wins, manual (requires --value).`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		strategy, _ := cmd.Flags().GetString("strategy")
		value, _ := cmd.Flags().GetString("value")
		notes, _ := cmd.Flags().GetString("notes")

		var conflictID int64
		if _, err := fmt.Sscanf(args[0], "%d", &conflictID); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid conflict id %q\n", args[0])
			os.Exit(1)
		}

		engine := newSyncEngine(newTrackerClient(), newAuditLog())
		conflict, err := engine.ResolveConflict(rootCtx, conflictID,
			types.ResolutionStrategy(strategy), value, notes, getActor())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(conflict)
			return
		}
		fmt.Printf("Conflict %d on %s resolved (%s): %s\n",
			conflict.ID, conflict.FieldName, conflict.Strategy, conflict.ResolvedValue)
	},
}

var verifySyncCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check local sprints against the tracker without modifying data",
	Run: func(cmd *cobra.Command, args []string) {
		boardID, _ := cmd.Flags().GetInt64("board")

		engine := newSyncEngine(newTrackerClient(), newAuditLog())
		report, err := engine.ValidateConsistency(rootCtx, boardID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(report)
			return
		}
		if report.Consistent {
			fmt.Println("Local data is consistent with the tracker.")
			return
		}
		for _, id := range report.MissingLocal {
			fmt.Printf("missing locally: tracker sprint %d\n", id)
		}
		for _, id := range report.MissingRemote {
			fmt.Printf("missing remotely: tracker sprint %d\n", id)
		}
		for _, m := range report.Mismatches {
			fmt.Printf("mismatch: sprint %d field %s: local=%q remote=%q\n",
				m.TrackerSprintID, m.Field, m.Local, m.Remote)
		}
		os.Exit(1)
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the most recent successful sync",
	Run: func(cmd *cobra.Command, args []string) {
		history, err := store.LatestSuccessfulSync(rootCtx)
		if errors.Is(err, storage.ErrNotFound) {
			fmt.Println("No successful sync recorded yet.")
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(history)
			return
		}
		fmt.Printf("Last successful sync: %s (%s) at %s\n",
			history.BatchID, history.OperationType,
			history.CreatedAt.Format(time.RFC3339))
	},
}

func init() {
	syncCmd.Flags().Int64("board", 0, "Board id (0 = all accessible boards)")
	syncCmd.Flags().Bool("incremental", false, "Skip entities unchanged since the last successful sync")
	syncCmd.Flags().String("since", "", "Incremental sync from an explicit instant (RFC3339 or YYYY-MM-DD)")

	resolveCmd.Flags().String("strategy", string(types.ResolveRemoteWins), "Resolution strategy (local_wins|remote_wins|manual)")
	resolveCmd.Flags().String("value", "", "Resolved value for manual strategy")
	resolveCmd.Flags().String("notes", "", "Resolution notes")

	verifySyncCmd.Flags().Int64("board", 0, "Board id (0 = all accessible boards)")

	syncCmd.AddCommand(resolveCmd, verifySyncCmd, syncStatusCmd)
	rootCmd.AddCommand(syncCmd)
}
