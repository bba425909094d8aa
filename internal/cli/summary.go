package cli

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/maauso/jumpcutter/internal/report"
)

// RenderSummary lays the duration projection out as a two-column table.
func RenderSummary(s report.Summary) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(mutedColor)).
		Headers("", "duration").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 0 {
				return cellStyle.Foreground(mutedColor)
			}
			return cellStyle
		})

	for _, line := range s.Lines() {
		t.Row(line.Label, line.Value)
	}
	return t.Render()
}
