package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scullers68/sprint-reports/internal/config"
	"github.com/scullers68/sprint-reports/internal/storage"
	"github.com/scullers68/sprint-reports/internal/storage/sqlite"
	"github.com/scullers68/sprint-reports/internal/telemetry"
)

var (
	cfgPath    string
	dbPath     string
	actor      string
	jsonOutput bool

	cfg   *config.Config
	store storage.Storage

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

// getActor returns the actor recorded in audit trails.
// Priority: --actor flag > SR_ACTOR env > $USER > "system".
func getActor() string {
	if actor != "" {
		return actor
	}
	if a := os.Getenv("SR_ACTOR"); a != "" {
		return a
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "system"
}

var rootCmd = &cobra.Command{
	Use:   "sprintd",
	Short: "sprintd - Sprint reporting and tracker sync service",
	Long:  `Bidirectional sprint sync, webhook ingestion, and cross-project analytics for an issue tracker.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("sprintd version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

		// version and help never touch the database.
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return
		}

		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if dbPath != "" {
			cfg.DatabasePath = dbPath
		}

		if err := telemetry.Init(rootCtx, telemetry.Settings{
			Enabled:     cfg.OTelEnabled,
			ServiceName: "sprintd",
			Version:     Version,
			Exporter:    cfg.OTelExporter,
			Endpoint:    cfg.OTLPEndpoint,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: telemetry init failed: %v\n", err)
		}

		s, err := sqlite.New(rootCtx, cfg.DatabasePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: open database %s: %v\n", cfg.DatabasePath, err)
			os.Exit(1)
		}
		store = telemetry.WrapStorage(s)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
		}
		telemetry.Shutdown(context.Background())
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file path (default: SR_ env vars only)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "Actor name for the audit trail (default: $SR_ACTOR, $USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
