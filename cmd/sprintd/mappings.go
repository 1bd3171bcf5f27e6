package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scullers68/sprint-reports/internal/fieldmap"
)

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Manage field mapping templates",
}

var mappingsLoadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Load a field mapping template from a YAML file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := newMapper().LoadTemplateFile(rootCtx, args[0], getActor())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(map[string]int64{"template_id": id})
			return
		}
		fmt.Printf("Loaded template %d from %s\n", id, args[0])
	},
}

var mappingsDiscoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Suggest mappings from the tracker's custom fields",
	Long: `Fetch the tracker's custom field catalogue and a sample of recent
issues, then rank likely field mappings by confidence.`,
	Run: func(cmd *cobra.Command, args []string) {
		jql, _ := cmd.Flags().GetString("jql")
		sampleSize, _ := cmd.Flags().GetInt("sample")

		client := newTrackerClient()
		fields, err := client.GetCustomFields(rootCtx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: fetch custom fields: %v\n", err)
			os.Exit(1)
		}
		issues, err := client.SearchIssues(rootCtx, jql, nil, sampleSize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: sample issues: %v\n", err)
			os.Exit(1)
		}

		catalogue := make([]fieldmap.CustomField, 0, len(fields))
		for _, f := range fields {
			catalogue = append(catalogue, fieldmap.CustomField{ID: f.ID, Name: f.Name})
		}
		samples := make([]map[string]interface{}, 0, len(issues))
		for i := range issues {
			samples = append(samples, issues[i].RawFields())
		}

		suggestions := fieldmap.DiscoverMappings(catalogue, samples)
		if jsonOutput {
			outputJSON(suggestions)
			return
		}
		if len(suggestions) == 0 {
			fmt.Println("No mapping suggestions.")
			return
		}
		for _, s := range suggestions {
			fmt.Printf("  %-24s -> %-18s %-8s confidence %.2f (%d samples)\n",
				s.TrackerFieldID, s.TargetField, s.FieldType, s.Confidence, s.SampleCount)
		}
	},
}

var mappingsHistoryCmd = &cobra.Command{
	Use:   "history <mapping-id>",
	Short: "Show a field mapping's version history",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var id int64
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid mapping id %q\n", args[0])
			os.Exit(1)
		}

		versions, err := newMapper().History(rootCtx, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(versions)
			return
		}
		for _, v := range versions {
			fmt.Printf("  v%-3d %-8s %-20s %s  %s\n", v.Version, v.ChangeType, v.ChangedBy,
				v.CreatedAt.Format("2006-01-02 15:04"), v.Description)
		}
	},
}

func init() {
	mappingsDiscoverCmd.Flags().String("jql", "order by updated desc", "JQL selecting sample issues")
	mappingsDiscoverCmd.Flags().Int("sample", 50, "Sample size")

	mappingsCmd.AddCommand(mappingsLoadCmd, mappingsDiscoverCmd, mappingsHistoryCmd)
	rootCmd.AddCommand(mappingsCmd)
}
