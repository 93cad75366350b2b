package reporting

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"stackctl/internal/color"
	"stackctl/internal/runstate"
)

// Row is one line of a status table.
type Row struct {
	Name     string
	State    string
	PID      int
	Endpoint string
	Detail   string
}

// RowsFromStore converts the store snapshots into table rows.
func RowsFromStore(store *StateStore, endpoints map[string]string) []Row {
	var rows []Row
	for _, snap := range store.GetAllServiceStates() {
		row := Row{Name: snap.Label, State: string(snap.State), PID: snap.PID, Endpoint: endpoints[snap.Label]}
		if row.Endpoint == "" && snap.Port > 0 {
			row.Endpoint = fmt.Sprintf("localhost:%d", snap.Port)
		}
		if snap.Attempts > 0 {
			row.Detail = fmt.Sprintf("ready after %d attempt(s)", snap.Attempts)
		}
		if snap.ErrorDetail != nil {
			row.Detail = snap.ErrorDetail.Error()
		}
		rows = append(rows, row)
	}
	return rows
}

// RenderTable lays rows out in aligned, colored columns.
func RenderTable(title string, rows []Row) string {
	headers := []string{"NAME", "STATE", "PID", "ENDPOINT", "DETAIL"}
	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		pid := "-"
		if r.PID > 0 {
			pid = fmt.Sprintf("%d", r.PID)
		}
		cells = append(cells, []string{r.Name, r.State, pid, r.Endpoint, r.Detail})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range cells {
		for i, c := range row {
			if w := lipgloss.Width(c); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	if title != "" {
		b.WriteString(color.HeaderStyle.Render(title))
		b.WriteString("\n")
	}
	b.WriteString(formatRow(headers, widths, func(_ int, s string) string { return color.MutedStyle.Render(s) }))
	for _, row := range cells {
		b.WriteString(formatRow(row, widths, func(col int, s string) string {
			if col == 1 {
				return stateStyle(strings.TrimSpace(s)).Render(s)
			}
			return s
		}))
	}
	return b.String()
}

func formatRow(cols []string, widths []int, style func(col int, s string) string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		padded := c
		if i < len(cols)-1 {
			padded = c + strings.Repeat(" ", widths[i]-lipgloss.Width(c))
		}
		parts[i] = style(i, padded)
	}
	return strings.TrimRight(strings.Join(parts, "  "), " ") + "\n"
}

func stateStyle(state string) lipgloss.Style {
	switch runstate.Lifecycle(state) {
	case runstate.StateReady, runstate.StateRunning:
		return color.OKStyle
	case runstate.StateFailed:
		return color.ErrorStyle
	case runstate.StateStarting, runstate.StateStopping:
		return color.WarnStyle
	}
	switch state {
	case "UP":
		return color.OKStyle
	case "DOWN":
		return color.ErrorStyle
	}
	return color.MutedStyle
}
