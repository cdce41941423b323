// ouroscan is a self-improving static analysis tool. Every run scans a
// project for code issues, records what it found in a persistent memory
// store, and uses that accumulated history to bias future runs.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ouroscan/ouroscan/internal/config"
	"github.com/ouroscan/ouroscan/internal/memory"
)

var rootCmd = &cobra.Command{
	Use:   "ouroscan",
	Short: "Self-improving code analysis",
	Long: `ouroscan scans a project for code issues and learns from every run.

Findings are appended to a persistent memory store. Each analysis recalls
previously learned issue patterns and matches them alongside the built-in
rules, so detection improves as history accumulates.

Set ANTHROPIC_API_KEY to enable AI-enhanced analysis on top of the
heuristic rules.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openProject resolves and validates a project path, loads its config, and
// opens the memory store. The root must exist and be a directory before
// anything touches the disk: opening the store creates its database, and a
// bad path must not leave one behind. A relative store path is anchored at
// the project root so history follows the project, not the working
// directory.
func openProject(path string) (string, config.Config, *memory.SQLiteStore, error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return "", config.Config{}, nil, fmt.Errorf("resolving project path: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return "", config.Config{}, nil, fmt.Errorf("invalid project path: %s does not exist", path)
	}
	if !info.IsDir() {
		return "", config.Config{}, nil, fmt.Errorf("invalid project path: %s is not a directory", path)
	}

	cfg, err := config.LoadFromDir(root)
	if err != nil {
		return "", config.Config{}, nil, err
	}

	storePath := cfg.StorePath
	if !filepath.IsAbs(storePath) {
		storePath = filepath.Join(root, storePath)
	}

	store, err := memory.NewSQLiteStore(storePath)
	if err != nil {
		return "", config.Config{}, nil, fmt.Errorf("opening memory store: %w", err)
	}

	return root, cfg, store, nil
}
