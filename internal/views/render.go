package views

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

const (
	remindersPaneWidth = 64
	schedulePaneWidth  = 44
)

// AppData is one frame of the reminder tools screen.
type AppData struct {
	Header       string
	LeftPane     string
	RightPane    string
	StatusLine   string
	StatusError  bool
	Footer       string
	// Notification is the most recent due reminder, shown as a banner.
	Notification string
	Help         string
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).MarginBottom(1)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	paneStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")).Padding(0, 1)
	dueStyle   = lipgloss.NewStyle().Border(lipgloss.ThickBorder()).BorderForeground(lipgloss.Color("11")).Padding(0, 1)
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	mutedStyle = hintStyle
	onStyle    = okStyle
)

func RenderApp(data AppData) string {
	panes := lipgloss.JoinHorizontal(lipgloss.Top,
		paneStyle.Width(remindersPaneWidth).Render(data.LeftPane),
		paneStyle.Width(schedulePaneWidth).Render(data.RightPane),
	)

	status := okStyle.Render(data.StatusLine)
	if data.StatusError {
		status = errorStyle.Render(data.StatusLine)
	}

	sections := []string{titleStyle.Render(data.Header)}
	if data.Notification != "" {
		sections = append(sections, dueStyle.Render(data.Notification))
	}
	sections = append(sections, panes, status)
	if data.Help != "" {
		sections = append(sections, paneStyle.Render(data.Help))
	}
	if data.Footer != "" {
		sections = append(sections, hintStyle.Render(data.Footer))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// RenderMarkdown renders md for the terminal, falling back to the raw text.
func RenderMarkdown(md string) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	out, err := glamour.Render(md, "dark")
	if err != nil {
		return md
	}
	return strings.TrimSpace(out)
}
