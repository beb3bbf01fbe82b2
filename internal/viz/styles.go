package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type palette struct {
	header, label, value, active, muted, graph lipgloss.Style
	running, paused, failed                    lipgloss.Style
	panel                                      lipgloss.Style
}

func styles() palette {
	th := CurrentTheme
	return palette{
		header:  lipgloss.NewStyle().Foreground(th.Primary).Bold(true).MarginBottom(1),
		label:   lipgloss.NewStyle().Foreground(th.Muted).Width(12),
		value:   lipgloss.NewStyle().Foreground(th.Text),
		active:  lipgloss.NewStyle().Foreground(th.Accent).Bold(true),
		muted:   lipgloss.NewStyle().Foreground(th.Muted),
		graph:   lipgloss.NewStyle().Foreground(th.Primary).Padding(1, 0),
		running: lipgloss.NewStyle().Foreground(th.Success).Bold(true),
		paused:  lipgloss.NewStyle().Foreground(th.Warning).Bold(true),
		failed:  lipgloss.NewStyle().Foreground(th.Error).Bold(true),
		panel: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(th.Muted).
			Padding(1, 2).
			Width(48),
	}
}

// ProgressBar renders fraction (clamped to [0, 1]) as a bar of width cells.
func ProgressBar(fraction float64, width int) string {
	filled := int(fraction * float64(width))
	filled = max(0, min(filled, width))
	return lipgloss.NewStyle().Foreground(CurrentTheme.Primary).Render(strings.Repeat("█", filled)) +
		lipgloss.NewStyle().Foreground(CurrentTheme.Muted).Render(strings.Repeat("░", width-filled))
}

// Sparkline renders the last width values as block characters.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 {
		return strings.Repeat("─", width)
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	chars := []rune("▁▂▃▄▅▆▇█")
	lo, hi := bounds(values)

	var b strings.Builder
	for _, v := range values {
		if !finite(v) {
			b.WriteRune('×')
			continue
		}
		idx := int((v - lo) / (hi - lo) * float64(len(chars)-1))
		b.WriteRune(chars[max(0, min(idx, len(chars)-1))])
	}
	return b.String()
}
