package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ouroscan/ouroscan/internal/insights"
)

var insightsCmd = &cobra.Command{
	Use:   "insights [path]",
	Short: "Summarize accumulated analysis history",
	Long: `Show what the engine has learned about a project so far.

Reads the project's memory store and reports recent iterations, learned
issue patterns, batch outcomes, and recorded errors. Read-only: generating
a report never modifies the store.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}

		root, _, store, err := openProject(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		report, err := insights.Build(context.Background(), store, insights.DefaultConfig())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		fmt.Printf("\n%s Insights for %s (%d records)\n", cyan("▶"), root, report.TotalRecords)

		if len(report.ImprovementHistory) > 0 {
			fmt.Printf("\nRecent iterations (mean %.1f improvements):\n", report.MeanImprovements())
			for _, it := range report.ImprovementHistory {
				fmt.Printf("  #%d: %d files, %d improvements (%s)\n",
					it.Iteration, it.FilesAnalyzed, it.ImprovementsFound,
					it.CreatedAt.Format("2006-01-02 15:04"))
			}
		}

		if len(report.RecentPatterns) > 0 {
			fmt.Printf("\nRecently learned patterns:\n")
			for _, p := range report.RecentPatterns {
				fmt.Printf("  %s %s\n", yellow("!"), p.Content)
			}
		}

		if len(report.RecentBatches) > 0 {
			fmt.Printf("\nRecent batches:\n")
			for _, b := range report.RecentBatches {
				fmt.Printf("  iteration %d batch %d: %d files, %d issues\n",
					b.Iteration, b.Batch, b.FileCount, b.IssueCount)
			}
		}

		if len(report.RecentErrors) > 0 {
			fmt.Printf("\nRecent errors:\n")
			for _, e := range report.RecentErrors {
				fmt.Printf("  %s %s\n", red("✗"), e.Content)
			}
		}

		if report.TotalRecords == 0 {
			fmt.Printf("  No history yet. Run 'ouroscan analyze' first.\n")
		}
	},
}

func init() {
	rootCmd.AddCommand(insightsCmd)
}
