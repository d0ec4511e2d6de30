package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	header   lipgloss.Style
	label    lipgloss.Style
	value    lipgloss.Style
	graph    lipgloss.Style
	help     lipgloss.Style
	panel    lipgloss.Style
	selected lipgloss.Style
	running  lipgloss.Style
	done     lipgloss.Style
	failed   lipgloss.Style
	barHigh  lipgloss.Style
	barMid   lipgloss.Style
	barLow   lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		header:   lipgloss.NewStyle().Foreground(t.Primary).Bold(true).MarginBottom(1),
		label:    lipgloss.NewStyle().Foreground(t.Muted).Width(14),
		value:    lipgloss.NewStyle().Foreground(t.Text),
		graph:    lipgloss.NewStyle().Foreground(t.Primary).Padding(1, 0),
		help:     lipgloss.NewStyle().Foreground(t.Muted).MarginTop(1),
		panel:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Muted).Padding(0, 1),
		selected: lipgloss.NewStyle().Foreground(t.Accent).Bold(true),
		running:  lipgloss.NewStyle().Foreground(t.Success).Bold(true),
		done:     lipgloss.NewStyle().Foreground(t.Primary).Bold(true),
		failed:   lipgloss.NewStyle().Foreground(t.Error).Bold(true),
		barHigh:  lipgloss.NewStyle().Foreground(t.Success),
		barMid:   lipgloss.NewStyle().Foreground(t.Warning),
		barLow:   lipgloss.NewStyle().Foreground(t.Error),
	}
}

// ProgressBar renders a fraction in [0, 1] as a bar of the given width.
func ProgressBar(frac float64, width int) string {
	filled := int(frac * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func (s styles) progress(frac float64, width int) string {
	bar := ProgressBar(frac, width)
	switch {
	case frac > 0.8:
		return s.barHigh.Render(bar)
	case frac > 0.4:
		return s.barMid.Render(bar)
	}
	return s.barLow.Render(bar)
}

// Sparkline renders values as a single row of block characters, sampled
// down to at most width columns.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return strings.Repeat("─", max(width, 0))
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo, hi = min(lo, v), max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}
	step := max(len(values)/width, 1)

	var b strings.Builder
	for i := 0; i < width && i*step < len(values); i++ {
		idx := int((values[i*step] - lo) / span * float64(len(chars)-1))
		b.WriteRune(chars[min(max(idx, 0), len(chars)-1)])
	}
	return b.String()
}
