package cli

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/prerender/pkg/issue"
)

// List styles
var (
	listDimStyle   = lipgloss.NewStyle().Foreground(colorDim)
	detailKeyStyle = lipgloss.NewStyle().Foreground(colorGray).Width(10)
	detailLogStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(colorDim).
			PaddingLeft(1).
			Foreground(colorGray)
)

// issueListModel is the bubbletea model for browsing issues. Enter opens
// the selected issue; esc returns to the list.
type issueListModel struct {
	issues []issue.Issue
	cursor int
	offset int
	height int
	open   bool
}

func newIssueListModel(issues []issue.Issue) issueListModel {
	return issueListModel{issues: issues, height: 15}
}

func (m issueListModel) Init() tea.Cmd {
	return nil
}

func (m issueListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc":
			if !m.open {
				return m, tea.Quit
			}
			m.open = false
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
				if m.cursor < m.offset {
					m.offset = m.cursor
				}
			}
		case "down", "j":
			if m.cursor < len(m.issues)-1 {
				m.cursor++
				if m.cursor >= m.offset+m.height {
					m.offset = m.cursor - m.height + 1
				}
			}
		case "enter":
			m.open = !m.open
		}
	case tea.WindowSizeMsg:
		m.height = max(msg.Height-6, 5)
	}
	return m, nil
}

func (m issueListModel) View() string {
	if m.open && m.cursor < len(m.issues) {
		return m.detailView(m.issues[m.cursor])
	}

	var b strings.Builder
	b.WriteString(StyleTitle.Render("Render Issues"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ open  q quit"))
	b.WriteString("\n\n")

	end := min(m.offset+m.height, len(m.issues))
	rows := [][]string{}
	for i := m.offset; i < end; i++ {
		is := m.issues[i]
		cursor := "  "
		if i == m.cursor {
			cursor = "▸ "
		}
		rows = append(rows, []string{cursor, is.Context, is.Kind, truncate(firstLine(is.Message), 48), formatRelativeTime(is.CreatedAt)})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Context", "Kind", "Message", "When").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			if m.offset+row == m.cursor {
				return lipgloss.NewStyle().Foreground(colorRed).Bold(true)
			}
			if col == 2 || col == 4 {
				return lipgloss.NewStyle().Foreground(colorDim)
			}
			return lipgloss.NewStyle()
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.cursor+1, len(m.issues))))
	return b.String()
}

func (m issueListModel) detailView(is issue.Issue) string {
	var b strings.Builder
	b.WriteString(StyleTitle.Render(is.Title))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("esc back  q quit"))
	b.WriteString("\n\n")
	for _, kv := range [][2]string{
		{"Context", is.Context},
		{"Kind", is.Kind},
		{"ID", is.ID},
		{"When", is.CreatedAt.Local().Format(time.DateTime)},
		{"Message", is.Message},
	} {
		b.WriteString(detailKeyStyle.Render(kv[0]) + " " + StyleValue.Render(kv[1]) + "\n")
	}
	if is.Logs != "" {
		b.WriteString("\n")
		b.WriteString(detailLogStyle.Render(is.Logs))
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// formatRelativeTime formats a timestamp as "3m ago", "2h ago" or a date.
func formatRelativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
	return t.Local().Format("Jan 2, 2006")
}
