package main

import (
	"strings"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Print a post from the metadata store",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVar(&statusJSON, "json", false, "output the post as JSON")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := openAssistant(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := a.Corpus().Catalog.Lookup(strings.TrimSpace(args[0]))
	if err != nil {
		return err
	}
	if statusJSON {
		return printJSON(cmd, doc)
	}

	cmd.Printf("# %s\n\n", doc.Title)
	cmd.Printf("Author:   %s\n", doc.Author)
	cmd.Printf("Date:     %s\n", doc.Date)
	if doc.Category != "" {
		cmd.Printf("Category: %s\n", doc.Category)
	}
	if len(doc.Tags) > 0 {
		cmd.Printf("Tags:     %s\n", strings.Join(doc.Tags, ", "))
	}
	if doc.URL != "" {
		cmd.Printf("URL:      %s\n", doc.URL)
	}
	if doc.Summary != "" {
		cmd.Printf("\n%s\n", doc.Summary)
	}
	if doc.Content != "" {
		cmd.Printf("\n%s\n", doc.Content)
	}
	return nil
}
