package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Verify, repair, and report on the security event chain",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit chain's checksums and links",
	Long: `Walk the security event chain and recompute every checksum. Exits
non-zero when any event fails verification.`,
	Run: func(cmd *cobra.Command, args []string) {
		fromID, _ := cmd.Flags().GetInt64("from")
		toID, _ := cmd.Flags().GetInt64("to")

		report, err := newAuditLog().VerifyChain(rootCtx, fromID, toID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(report)
		} else if report.Valid {
			fmt.Printf("Chain valid: %d events checked\n", report.EventsChecked)
		} else {
			fmt.Printf("Chain INVALID: %d events checked\n", report.EventsChecked)
			for _, id := range report.InvalidEvents {
				fmt.Printf("  checksum mismatch: event %d\n", id)
			}
			for _, link := range report.BrokenLinks {
				fmt.Printf("  broken link: event %d does not chain to %d\n", link.EventID, link.PriorID)
			}
		}
		if !report.Valid {
			os.Exit(1)
		}
	},
}

var auditRepairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Write checksums for events persisted without one",
	Run: func(cmd *cobra.Command, args []string) {
		repaired, err := newAuditLog().RepairChecksums(rootCtx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(map[string]int{"repaired": repaired})
			return
		}
		fmt.Printf("Repaired %d events\n", repaired)
	},
}

var auditRetentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Delete events whose retention period has passed",
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		result, err := newAuditLog().ApplyRetentionPolicy(rootCtx, dryRun)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(result)
			return
		}
		if dryRun {
			fmt.Printf("%d events eligible for deletion (dry run)\n", len(result.Eligible))
			return
		}
		fmt.Printf("Deleted %d of %d eligible events\n", result.Deleted, len(result.Eligible))
	},
}

var auditReportCmd = &cobra.Command{
	Use:   "report <framework>",
	Short: "Generate a compliance report for a framework tag",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fromRaw, _ := cmd.Flags().GetString("from")
		toRaw, _ := cmd.Flags().GetString("to")

		from, err := parseTimeFlag(fromRaw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		to, err := parseTimeFlag(toRaw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if to.IsZero() {
			to = time.Now().UTC()
		}

		report, err := newAuditLog().GenerateComplianceReport(rootCtx, args[0], from, to)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(report)
			return
		}
		fmt.Printf("Compliance report for %s (%s to %s)\n", report.Framework,
			report.From.Format("2006-01-02"), report.To.Format("2006-01-02"))
		fmt.Printf("  events: %d  success rate: %.1f%%\n", report.TotalEvents, report.SuccessRate)
		fmt.Printf("  checksum: %s\n", report.ReportChecksum)
	},
}

func init() {
	auditVerifyCmd.Flags().Int64("from", 0, "First event id to check (0 = start of chain)")
	auditVerifyCmd.Flags().Int64("to", 0, "Last event id to check (0 = end of chain)")
	auditRetentionCmd.Flags().Bool("dry-run", false, "Report eligible events without deleting")
	auditReportCmd.Flags().String("from", "", "Report range start (RFC3339 or YYYY-MM-DD)")
	auditReportCmd.Flags().String("to", "", "Report range end (default: now)")

	auditCmd.AddCommand(auditVerifyCmd, auditRepairCmd, auditRetentionCmd, auditReportCmd)
	rootCmd.AddCommand(auditCmd)
}
