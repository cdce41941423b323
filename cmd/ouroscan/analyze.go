package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ouroscan/ouroscan/internal/config"
	"github.com/ouroscan/ouroscan/internal/enhance"
	"github.com/ouroscan/ouroscan/internal/engine"
	"github.com/ouroscan/ouroscan/internal/types"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Run improvement iterations over a project",
	Long: `Scan a project for code issues, learning from each iteration.

Each iteration selects source files, runs them through the issue detector
in batches, and records findings in the project's memory store. Recalled
patterns from prior iterations are matched alongside the built-in rules.

Examples:
  # Analyze the current directory
  ouroscan analyze

  # Analyze a specific project with smaller batches
  ouroscan analyze ~/src/myproject --batch-size 25

  # Run three consecutive iterations, verbose output
  ouroscan analyze --iterations 3 --verbose`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}

		verbose, _ := cmd.Flags().GetBool("verbose")
		iterations, _ := cmd.Flags().GetInt("iterations")
		if iterations < 1 {
			iterations = 1
		}

		root, cfg, store, err := openProject(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		// Flags override the config file only when set explicitly
		if cmd.Flags().Changed("batch-size") {
			cfg.BatchSize, _ = cmd.Flags().GetInt("batch-size")
		}
		if cmd.Flags().Changed("max-depth") {
			cfg.MaxDepth, _ = cmd.Flags().GetInt("max-depth")
		}

		eng, err := engine.New(store, newEnhancedDetector(cfg.Model), engineConfig(cfg))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		cyan := color.New(color.FgCyan).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		fmt.Printf("\n%s Analyzing %s\n", cyan("▶"), root)

		for i := 0; i < iterations; i++ {
			result, err := eng.RunIteration(ctx, root)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", red("✗"), err)
				os.Exit(1)
			}
			printIteration(result, verbose)
		}
	},
}

func init() {
	analyzeCmd.Flags().Int("batch-size", 50, "files per batch")
	analyzeCmd.Flags().Int("max-depth", 3, "recursive analysis depth")
	analyzeCmd.Flags().Int("iterations", 1, "number of consecutive iterations")
	analyzeCmd.Flags().BoolP("verbose", "v", false, "show every finding with file and line")
	rootCmd.AddCommand(analyzeCmd)
}

// engineConfig maps project config onto the engine, merging user exclusions
// with the built-in ones.
func engineConfig(cfg config.Config) engine.Config {
	engCfg := engine.DefaultConfig()
	engCfg.BatchSize = cfg.BatchSize
	engCfg.MaxDepth = cfg.MaxDepth
	engCfg.Selector.Extensions = cfg.Extensions
	engCfg.Selector.ExcludePatterns = append(engCfg.Selector.ExcludePatterns, cfg.Exclude...)
	return engCfg
}

// newEnhancedDetector returns the AI detector when an API key is present,
// otherwise the no-op detector. Never fatal: enhanced analysis is an
// optional layer on top of the heuristic rules.
func newEnhancedDetector(model string) enhance.Detector {
	if model == "" {
		return enhance.FromEnv()
	}

	key := os.Getenv("ANTHROPIC_API_KEY")
	if key == "" {
		return enhance.Noop{}
	}

	det, err := enhance.NewAnthropicDetector(&enhance.AnthropicConfig{
		APIKey: key,
		Model:  model,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: enhanced analysis disabled: %v\n", err)
		return enhance.Noop{}
	}
	return det
}

func printIteration(result *types.IterationResult, verbose bool) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	fmt.Printf("\n%s Iteration %d: %d files in %d batch(es), %v\n",
		cyan("▶"), result.Iteration, result.FilesAnalyzed, result.Batches, result.Duration.Round(time.Millisecond))

	if len(result.Findings) == 0 {
		fmt.Printf("  %s No issues found\n", green("✓"))
	} else {
		fmt.Printf("  %s Found %d issue(s)\n", yellow("!"), len(result.Findings))

		if verbose {
			for i, f := range result.Findings {
				fmt.Printf("  %d. %s %s\n", i+1, severityTag(f.Severity), f.Description)
				fmt.Printf("     File: %s:%d\n", f.FilePath, f.Line)
				if f.Suggestion != "" {
					fmt.Printf("     Suggestion: %s\n", f.Suggestion)
				}
			}
		} else {
			counts := types.SeverityCounts(result.Findings)
			for _, sev := range []types.Severity{
				types.SeverityCritical, types.SeverityHigh,
				types.SeverityMedium, types.SeverityLow,
			} {
				if counts[sev] > 0 {
					fmt.Printf("  - %s: %d\n", sev, counts[sev])
				}
			}
		}
	}

	if result.HistoricalMeanImprovements > 0 {
		fmt.Printf("  Historical mean: %.1f improvements/iteration\n", result.HistoricalMeanImprovements)
	}
	fmt.Printf("  Session: %d files, %d improvements, %d patterns learned, %d enhanced\n",
		result.Metrics.FilesProcessed, result.Metrics.ImprovementsFound,
		result.Metrics.PatternsLearned, result.Metrics.EnhancedFindings)
}

// severityTag renders a colored severity label.
func severityTag(sev types.Severity) string {
	label := fmt.Sprintf("[%s]", sev)
	switch sev {
	case types.SeverityCritical:
		return color.New(color.FgRed, color.Bold).Sprint(label)
	case types.SeverityHigh:
		return color.New(color.FgRed).Sprint(label)
	case types.SeverityMedium:
		return color.New(color.FgYellow).Sprint(label)
	default:
		return label
	}
}
