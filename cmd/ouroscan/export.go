package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export [path]",
	Short: "Dump the memory store as JSON",
	Long: `Export every memory record in append order as a JSON array.

Useful for backups, external analysis, or inspecting exactly what the
engine has recorded. Writes to stdout unless --output is given.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		output, _ := cmd.Flags().GetString("output")

		_, _, store, err := openProject(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		records, err := store.ExportAll(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if output == "" {
			fmt.Println(string(data))
			return
		}

		if err := os.WriteFile(output, append(data, '\n'), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Exported %d records to %s\n", len(records), output)
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "write JSON to a file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}
