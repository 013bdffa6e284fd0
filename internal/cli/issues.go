package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/matzehuels/prerender/pkg/issue"
)

func (c *CLI) issuesCommand() *cobra.Command {
	var (
		subject     string
		limit       int
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "issues",
		Short: "List render failures recorded in the issue store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := c.openIssueStore()
			if err != nil {
				return err
			}
			defer closeStore()

			issues, err := store.List(cmd.Context(), issue.ListOptions{Context: subject, Limit: limit})
			if err != nil {
				return err
			}
			if len(issues) == 0 {
				printInfo("No issues")
				return nil
			}
			if interactive {
				return browseIssues(cmd.Context(), issues)
			}
			for _, is := range issues {
				printIssue(cmd.OutOrStdout(), is)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "context", "", "only issues for this request path or entry")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum issues to list (0 for all)")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "browse issues interactively")

	cmd.AddCommand(c.issuesClearCommand())
	return cmd
}

func (c *CLI) issuesClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all recorded issues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := c.openIssueStore()
			if err != nil {
				return err
			}
			defer closeStore()
			n, err := store.Clear(cmd.Context())
			if err != nil {
				return err
			}
			printSuccess("Cleared %d issues", n)
			return nil
		},
	}
}

// openIssueStore opens the configured store without wiring the rest of the
// pipeline.
func (c *CLI) openIssueStore() (*issue.Store, func(), error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Issues.Database == "" {
		return nil, nil, fmt.Errorf("no issue database configured (set [issues] database)")
	}
	store, err := openIssues(cfg, c.Logger)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

func printIssue(w io.Writer, is issue.Issue) {
	fmt.Fprintln(w, styleIconError.Render(iconError)+" "+StyleValue.Render(is.Context)+" "+
		StyleDim.Render(is.Kind+" · "+formatRelativeTime(is.CreatedAt)+" · "+shortID(is.ID)))
	fmt.Fprintln(w, "  "+StyleDim.Render(firstLine(is.Message)))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func browseIssues(ctx context.Context, issues []issue.Issue) error {
	p := tea.NewProgram(newIssueListModel(issues), tea.WithContext(ctx), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// firstLine trims s to its first line.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}
