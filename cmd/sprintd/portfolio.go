package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scullers68/sprint-reports/internal/portfolio"
	"github.com/scullers68/sprint-reports/internal/types"
)

var portfolioCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Cross-project portfolio view for a board's sprint",
	Run: func(cmd *cobra.Command, args []string) {
		boardID, _ := cmd.Flags().GetInt64("board")
		sprintID, _ := cmd.Flags().GetInt64("sprint")
		wsType, _ := cmd.Flags().GetString("type")
		category, _ := cmd.Flags().GetString("category")

		agg := newPortfolio(newTrackerClient())
		view, err := agg.GetProjectPortfolio(rootCtx, boardID, sprintID, portfolio.Filters{
			WorkstreamType: types.WorkstreamType(wsType),
			Category:       category,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(view)
			return
		}
		fmt.Printf("Portfolio for sprint %q (%d projects, overall %s)\n",
			view.SprintName, len(view.Projects), view.OverallHealth)
		for _, p := range view.Projects {
			fmt.Printf("  %-12s %-10s  done %5.1f%%  risk %5.1f  %s\n",
				p.ProjectKey, p.Health, p.Metrics.Completion, p.RiskScore, p.ProjectName)
		}
		fmt.Printf("completion %.1f%%  average risk %.1f\n", view.OverallCompletion, view.AverageRisk)
		for _, ind := range view.Indicators {
			fmt.Printf("  %-12s %6.1f / %-6.1f  %s\n", ind.Name, ind.Value, ind.Target, ind.Status)
		}
	},
}

var recordMetricsCmd = &cobra.Command{
	Use:   "record",
	Short: "Snapshot today's metrics for every project in a sprint",
	Run: func(cmd *cobra.Command, args []string) {
		sprintID, _ := cmd.Flags().GetInt64("sprint")
		if sprintID == 0 {
			fmt.Fprintf(os.Stderr, "Error: --sprint is required\n")
			os.Exit(1)
		}

		agg := newPortfolio(newTrackerClient())
		recorded, errs := agg.RecordAllMetrics(rootCtx, sprintID)
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		if jsonOutput {
			outputJSON(recorded)
		} else {
			fmt.Printf("Recorded metrics for %d projects (%d failed)\n", len(recorded), len(errs))
		}
		if len(recorded) == 0 && len(errs) > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	portfolioCmd.Flags().Int64("board", 0, "Board id")
	portfolioCmd.Flags().Int64("sprint", 0, "Sprint id (0 = latest active)")
	portfolioCmd.Flags().String("type", "", "Filter by workstream type")
	portfolioCmd.Flags().String("category", "", "Filter by category")

	recordMetricsCmd.Flags().Int64("sprint", 0, "Sprint id (required)")

	portfolioCmd.AddCommand(recordMetricsCmd)
	rootCmd.AddCommand(portfolioCmd)
}
