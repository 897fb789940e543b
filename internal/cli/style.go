package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#89b4fa"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6adc8"))
	valueStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f5e0dc"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f9e2af"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f38ba8"))
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#94e2d5"))
)

type pair struct {
	label string
	value string
}

// writePairs prints aligned label/value lines.
func writePairs(w io.Writer, pairs []pair) {
	width := 0
	for _, p := range pairs {
		width = max(width, lipgloss.Width(p.label))
	}
	label := labelStyle.Width(width + 2)
	for _, p := range pairs {
		fmt.Fprintln(w, label.Render(p.label)+valueStyle.Render(p.value))
	}
}

// bar renders a horizontal bar proportional to v/maxV.
func bar(v, maxV int64, width int) string {
	if maxV <= 0 || v <= 0 {
		return ""
	}
	n := int(float64(v) / float64(maxV) * float64(width))
	return barStyle.Render(strings.Repeat("█", max(n, 1)))
}

// writeBars prints a labelled bar chart of counts.
func writeBars(w io.Writer, rows []pair, counts []int64) {
	var top int64
	for _, c := range counts {
		top = max(top, c)
	}
	width := 0
	for _, r := range rows {
		width = max(width, lipgloss.Width(r.label))
	}
	label := labelStyle.Width(width + 2)
	for i, r := range rows {
		fmt.Fprintf(w, "%s%s %s\n", label.Render(r.label), bar(counts[i], top, 30), r.value)
	}
}
