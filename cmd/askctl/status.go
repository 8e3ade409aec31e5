package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bull/ask-et/internal/assistant"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current snapshot and corpus statistics",
	RunE:  runStatus,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that every indexed chunk has a post in the metadata store",
	Long: `Checks the current snapshot for consistency between the metadata store
and the vector index. Exits non-zero when chunks reference posts the
metadata store does not know about.`,
	RunE: runValidate,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output the report as JSON")
	validateCmd.Flags().BoolVar(&statusJSON, "json", false, "output the report as JSON")
	rootCmd.AddCommand(statusCmd, validateCmd)
}

func loadReport(cmd *cobra.Command) (*assistant.Report, error) {
	a, err := openAssistant(cmd.Context())
	if err != nil {
		return nil, err
	}
	defer a.Close()

	report, err := a.Corpus().Report(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to build report: %w", err)
	}
	return report, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	report, err := loadReport(cmd)
	if err != nil {
		return err
	}
	if statusJSON {
		return printJSON(cmd, report)
	}

	printReport(cmd, report)
	if len(report.Topics) > 0 {
		cmd.Println()
		cmd.Printf("Topics: %s\n", strings.Join(report.Topics, ", "))
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	report, err := loadReport(cmd)
	if err != nil {
		return err
	}
	if statusJSON {
		if err := printJSON(cmd, report); err != nil {
			return err
		}
	} else {
		printReport(cmd, report)
	}

	if len(report.Unindexed) > 0 && !statusJSON {
		cmd.Println()
		cmd.Printf("Posts without chunks (%d): %s\n", len(report.Unindexed), strings.Join(report.Unindexed, ", "))
	}
	if !report.Consistent() {
		if !statusJSON {
			cmd.Println()
			cmd.Printf("Orphaned chunks reference %d unknown posts: %s\n",
				len(report.OrphanParents), strings.Join(report.OrphanParents, ", "))
		}
		return errors.New("snapshot is inconsistent, re-run ingestion")
	}
	if !statusJSON {
		cmd.Println()
		cmd.Println("Snapshot is consistent.")
	}
	return nil
}

func printReport(cmd *cobra.Command, r *assistant.Report) {
	cmd.Printf("Snapshot:   %s\n", r.SnapshotID)
	cmd.Printf("Created:    %s\n", r.CreatedAt)
	cmd.Printf("Model:      %s\n", r.ModelID)
	if r.Collection != "" {
		cmd.Printf("Backend:    %s (%s)\n", r.Backend, r.Collection)
	} else {
		cmd.Printf("Backend:    %s\n", r.Backend)
	}
	cmd.Printf("Posts:      %d (%d with text)\n", r.Stats.Documents, r.Stats.DocumentsWithText)
	cmd.Printf("Authors:    %d\n", r.Stats.Authors)
	cmd.Printf("Projects:   %d (%d on GitHub)\n", r.Stats.Projects, r.Stats.ProjectsWithGitHub)
	cmd.Printf("Chunks:     %d\n", r.Chunks)
	if len(r.Stats.DocumentCategories) > 0 {
		cmd.Printf("Categories: %s\n", strings.Join(r.Stats.DocumentCategories, ", "))
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
