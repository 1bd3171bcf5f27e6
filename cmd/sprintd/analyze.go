package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scullers68/sprint-reports/internal/analytics"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Sprint and project analytics",
}

var velocityCmd = &cobra.Command{
	Use:   "velocity <project-key>",
	Short: "Velocity history, trend, and next-sprint forecast",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		count, _ := cmd.Flags().GetInt("sprints")
		includeCurrent, _ := cmd.Flags().GetBool("include-current")

		engine := newAnalytics(newTrackerClient())
		report, err := engine.ProjectVelocityWithHistory(rootCtx, args[0], count, includeCurrent)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(report)
			return
		}
		if len(report.Sprints) == 0 {
			fmt.Printf("%s: no sprint history\n", report.ProjectKey)
			return
		}
		fmt.Printf("%s velocity over %d sprints\n", report.ProjectKey, len(report.Sprints))
		for _, s := range report.Sprints {
			fmt.Printf("  %-30s %6.1f pts  %5.2f pts/day\n", s.SprintName, s.CompletedPoints, s.Velocity)
		}
		fmt.Printf("mean %.2f pts/day  stddev %.2f  consistency %.0f  trend %s\n",
			report.MeanVelocity, report.StdDev, report.Consistency, report.TrendDirection)
		fmt.Printf("forecast %.2f pts/day (%.2f to %.2f)\n",
			report.ForecastVelocity, report.ConfidenceLow, report.ConfidenceHigh)
	},
}

var forecastCmd = &cobra.Command{
	Use:   "forecast <project-key>",
	Short: "Monte-Carlo completion forecast for remaining work",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		remaining, _ := cmd.Flags().GetFloat64("remaining")
		runs, _ := cmd.Flags().GetInt("runs")
		seed, _ := cmd.Flags().GetInt64("seed")

		engine := newAnalytics(newTrackerClient())
		forecast, err := engine.MonteCarloCompletionForecast(rootCtx, args[0], remaining, runs, nil, seed)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(forecast)
			return
		}
		fmt.Printf("%s: %.1f points remaining, %d runs\n", forecast.ProjectKey,
			forecast.RemainingPoints, forecast.Runs)
		for _, q := range forecast.Quantiles {
			fmt.Printf("  p%.0f: %.1f days (%s)\n", q.Level*100, q.Days,
				q.ProjectedDate.Format("2006-01-02"))
		}
		fmt.Printf("risk: %s (%.0f%% chance of exceeding 1.5x mean)\n",
			forecast.RiskLevel, forecast.RiskProbability*100)
	},
}

var burndownCmd = &cobra.Command{
	Use:   "burndown <project-key>",
	Short: "Burndown series for a project's sprint",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sprintID, _ := cmd.Flags().GetInt64("sprint")
		burnup, _ := cmd.Flags().GetBool("burnup")

		engine := newAnalytics(newTrackerClient())
		report, err := engine.ProjectBurndown(rootCtx, args[0], sprintID, burnup)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(report)
			return
		}
		if report.Live {
			fmt.Println("(no recorded metrics; showing a live snapshot)")
		}
		for _, p := range report.Points {
			fmt.Printf("  %s  remaining %6.1f  ideal %6.1f  done %5.1f%%\n",
				p.Date.Format("2006-01-02"), p.RemainingPoints, p.IdealRemaining, p.Completion)
		}
	},
}

var riskCmd = &cobra.Command{
	Use:   "risk <project-key>",
	Short: "Weighted risk assessment for a project",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sprintID, _ := cmd.Flags().GetInt64("sprint")
		includeCapacity, _ := cmd.Flags().GetBool("capacity")

		engine := newAnalytics(newTrackerClient())
		assessment, err := engine.AssessProjectRisks(rootCtx, args[0], sprintID, includeCapacity)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(assessment)
			return
		}
		fmt.Printf("%s risk: %s (score %.0f)\n", assessment.ProjectKey,
			assessment.OverallRisk, assessment.Score)
		for _, f := range assessment.Factors {
			fmt.Printf("  [%-8s] %-22s +%.0f  %s\n", f.Severity, f.Name, f.Points, f.Detail)
		}
	},
}

var capacityCmd = &cobra.Command{
	Use:   "capacity",
	Short: "Discipline team capacity distribution and conflicts",
	Run: func(cmd *cobra.Command, args []string) {
		sprintID, _ := cmd.Flags().GetInt64("sprint")
		if sprintID == 0 {
			fmt.Fprintf(os.Stderr, "Error: --sprint is required\n")
			os.Exit(1)
		}

		engine := newAnalytics(newTrackerClient())
		dist, err := engine.AnalyzeCapacityDistribution(rootCtx, sprintID, true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		conflicts, err := engine.CapacityConflicts(rootCtx, sprintID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{"distribution": dist, "conflicts": conflicts})
			return
		}
		for _, t := range dist.Teams {
			over := ""
			if t.OverCapacity {
				over = "  OVER CAPACITY"
			}
			fmt.Printf("  %-20s %6.1f / %6.1f  (%.0f%%)%s\n",
				t.Team, t.Allocated, t.Capacity, t.Utilization, over)
		}
		fmt.Printf("total allocated %.1f of %.1f\n", dist.TotalAllocated, dist.TotalCapacity)
		for _, c := range conflicts {
			fmt.Printf("conflict [%s] %s: %s\n", c.Severity, c.Kind, c.Detail)
		}
	},
}

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank a board's projects by a criterion",
	Long: fmt.Sprintf("Rank active projects on a board.\n\nCriteria: %s.",
		strings.Join([]string{
			analytics.RankByPriority, analytics.RankByCompletion,
			analytics.RankByRiskScore, analytics.RankByVelocity,
			analytics.RankByCapacityUtilization,
		}, ", ")),
	Run: func(cmd *cobra.Command, args []string) {
		boardID, _ := cmd.Flags().GetInt64("board")
		sprintID, _ := cmd.Flags().GetInt64("sprint")
		criteria, _ := cmd.Flags().GetString("by")
		limit, _ := cmd.Flags().GetInt("limit")

		engine := newAnalytics(newTrackerClient())
		ranks, err := engine.ProjectRankings(rootCtx, boardID, criteria, sprintID, limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(ranks)
			return
		}
		for _, r := range ranks {
			fmt.Printf("%3d. %-12s %8.1f  %s\n", r.Rank, r.ProjectKey, r.Score, r.Justification)
		}
	},
}

func init() {
	velocityCmd.Flags().Int("sprints", 5, "Number of past sprints to include")
	velocityCmd.Flags().Bool("include-current", false, "Include the active sprint")

	forecastCmd.Flags().Float64("remaining", 0, "Remaining story points (required)")
	forecastCmd.Flags().Int("runs", 1000, "Simulation runs")
	forecastCmd.Flags().Int64("seed", 1, "Random seed for reproducible runs")
	_ = forecastCmd.MarkFlagRequired("remaining")

	burndownCmd.Flags().Int64("sprint", 0, "Sprint id (required)")
	burndownCmd.Flags().Bool("burnup", false, "Include the burnup series")
	_ = burndownCmd.MarkFlagRequired("sprint")

	riskCmd.Flags().Int64("sprint", 0, "Sprint id for schedule and blockage factors")
	riskCmd.Flags().Bool("capacity", false, "Include capacity utilization factors")

	capacityCmd.Flags().Int64("sprint", 0, "Sprint id (required)")

	rankCmd.Flags().Int64("board", 0, "Board id")
	rankCmd.Flags().Int64("sprint", 0, "Sprint id (0 = latest active)")
	rankCmd.Flags().String("by", analytics.RankByPriority, "Ranking criterion")
	rankCmd.Flags().Int("limit", 20, "Maximum projects to rank")

	analyzeCmd.AddCommand(velocityCmd, forecastCmd, burndownCmd, riskCmd, capacityCmd, rankCmd)
	rootCmd.AddCommand(analyzeCmd)
}
