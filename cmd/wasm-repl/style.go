package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	title    lipgloss.Style
	prompt   lipgloss.Style
	result   lipgloss.Style
	err      lipgloss.Style
	fn       lipgloss.Style
	typ      lipgloss.Style
	selected lipgloss.Style
	help     lipgloss.Style
}

func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{
			title: plain, prompt: plain, result: plain, err: plain,
			fn: plain, typ: plain, selected: plain.Reverse(true), help: plain,
		}
	}
	return styles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1),
		prompt: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true),
		result: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90")),
		err: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")),
		fn: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98")),
		typ: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB")),
		selected: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")),
		help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")),
	}
}

// renderLines styles each line on its own so colors survive line breaks
func renderLines(st lipgloss.Style, text string) string {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = st.Render(l)
	}
	return strings.Join(lines, "\n")
}

func (s styles) failure(err error) string {
	return renderLines(s.err, "error: "+err.Error())
}
