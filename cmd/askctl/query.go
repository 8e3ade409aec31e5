package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bull/ask-et/internal/answer"
	"github.com/bull/ask-et/internal/assistant"
)

var (
	queryJSON     bool
	queryMarkdown bool
	queryStages   bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question against the current snapshot",
	Long: `Answers a question about Emerging Technologies blog posts, authors
and projects from the current snapshot.

Examples:
  askctl query "blogs by Brian Profitt"
  askctl query "GPU tutorials" --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the structured answer as JSON")
	queryCmd.Flags().BoolVar(&queryMarkdown, "markdown", false, "output plain markdown")
	queryCmd.Flags().BoolVar(&queryStages, "stages", false, "show the retrieval stages that ran")
	rootCmd.AddCommand(queryCmd)
}

func openAssistant(ctx context.Context) (*assistant.Assistant, error) {
	embedder, err := cfg.NewEmbedder()
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	a, err := assistant.New(ctx, cfg, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}
	return a, nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := openAssistant(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ans := a.Ask(cmd.Context(), strings.Join(args, " "))

	switch {
	case queryJSON:
		data, err := json.MarshalIndent(ans, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal answer: %w", err)
		}
		cmd.Println(string(data))
	case queryMarkdown || !term.IsTerminal(int(os.Stdout.Fd())):
		cmd.Print(answer.Render(ans))
	default:
		printStyled(cmd.OutOrStdout(), ans)
	}

	if queryStages {
		for _, st := range ans.Stages {
			cmd.PrintErrf("%-8s %-14s %-10s count=%d %s\n", st.Stage, st.Strategy, st.Outcome, st.Count, st.Error)
		}
	}
	return nil
}

var (
	headStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	metaStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	linkStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Underline(true)
	bodyStyle   = lipgloss.NewStyle().PaddingLeft(4).Width(100)
	noticeStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("214"))
)

// printStyled writes the answer for an interactive terminal.
func printStyled(w io.Writer, ans *answer.Answer) {
	if ans.Status != answer.StatusOK {
		fmt.Fprintln(w, noticeStyle.Render(ans.Message))
		return
	}

	var sections []string
	sections = append(sections, headStyle.Render("Related Blogs"))
	for i, d := range ans.Documents {
		author := d.Author
		if author != "" {
			author = "@" + author
		}
		meta := strings.Join(nonEmpty(author, d.Date, d.Category), " • ")
		line := fmt.Sprintf("%2d. %s  %s", i+1, titleStyle.Render(d.Title), metaStyle.Render(meta))
		sections = append(sections, line)
		if d.Excerpt != "" {
			sections = append(sections, bodyStyle.Render(d.Excerpt))
		}
		if d.URL != "" {
			sections = append(sections, "    "+linkStyle.Render(d.URL))
		}
	}

	if len(ans.Projects) > 0 {
		sections = append(sections, "", headStyle.Render("Related Projects"))
		for i, p := range ans.Projects {
			sections = append(sections, fmt.Sprintf("%2d. %s  %s", i+1, titleStyle.Render(p.Name), metaStyle.Render(p.Category)))
			if p.Description != "" {
				sections = append(sections, bodyStyle.Render(p.Description))
			}
			for _, link := range p.GitHubLinks {
				sections = append(sections, "    "+linkStyle.Render(link))
			}
		}
	}

	footer := metaStyle.Render(fmt.Sprintf("intent: %s  provenance: %s", ans.Intent, ans.Provenance))
	sections = append(sections, "", footer)
	fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func nonEmpty(values ...string) []string {
	out := values[:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
