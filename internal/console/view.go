package console

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/stacklok/backoffice-console/internal/collection"
)

const maxCellWidth = 28

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	groupStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
)

// View implements tea.Model
func (m *Model) View() string {
	if m.mode == modeMenu {
		return m.viewMenu()
	}
	return m.viewTable()
}

func (m *Model) viewMenu() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Back-office console"))
	b.WriteString("\n\n")
	group := ""
	for i, s := range m.screens {
		if s.Group != group {
			group = s.Group
			b.WriteString(groupStyle.Render(group))
			b.WriteByte('\n')
		}
		line := "  " + s.title()
		if i == m.menuCursor {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(dimStyle.Render("↑/↓ move • enter open • q quit"))
	return b.String()
}

func (m *Model) viewTable() string {
	screen := m.screens[m.active]
	snap := screen.Controller.Snapshot()

	var b strings.Builder
	b.WriteString(titleStyle.Render(screen.title()))
	if snap.Query.FilterText != "" {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  filter: %q", snap.Query.FilterText)))
	}
	if snap.Loading {
		b.WriteString(dimStyle.Render("  loading…"))
	}
	b.WriteString("\n\n")
	b.WriteString(renderTable(screen, snap, m.cursor))
	b.WriteByte('\n')

	b.WriteString(dimStyle.Render(fmt.Sprintf("page %d/%d • %d total", snap.Query.Page+1, snap.MaxPage+1, snap.Total)))
	b.WriteByte('\n')
	if snap.Error != "" {
		b.WriteString(errorStyle.Render(snap.Error))
		b.WriteByte('\n')
	}
	if m.banner != "" {
		style := okStyle
		if m.bannerErr {
			style = errorStyle
		}
		b.WriteString(style.Render(m.banner))
		b.WriteByte('\n')
	}

	switch m.mode {
	case modeSearch:
		b.WriteString("search: " + m.search + "█")
	case modeConfirm:
		b.WriteString(errorStyle.Render(fmt.Sprintf("delete %s? (y/N)", m.pending)))
	default:
		b.WriteString(m.help(screen))
	}
	return b.String()
}

func (m *Model) help(screen Screen) string {
	keys := []string{"/ search", "n/p page", "s sort", "r refresh"}
	if screen.Mutator != nil {
		del := "d delete"
		if screen.Mutator.Busy() {
			del = dimStyle.Strikethrough(true).Render(del)
		}
		keys = append(keys, del)
	}
	keys = append(keys, "esc menu", "q quit")
	return dimStyle.Render(strings.Join(keys, " • "))
}

func renderTable(screen Screen, snap collection.Snapshot, cursor int) string {
	cols := screen.columns()
	rows := make([][]string, len(snap.Items))
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = lipgloss.Width(c)
	}
	for r, it := range snap.Items {
		if screen.Present != nil {
			it = screen.Present(it)
		}
		rows[r] = make([]string, len(cols))
		for i, c := range cols {
			cell := truncate(FormatCell(it[c]), maxCellWidth)
			rows[r][i] = cell
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	b.WriteString("  ")
	b.WriteString(headerStyle.Render(joinCells(cols, widths)))
	b.WriteByte('\n')
	if len(rows) == 0 {
		b.WriteString(dimStyle.Render("  no records"))
		b.WriteByte('\n')
		return b.String()
	}
	for r, row := range rows {
		marker := "  "
		if screen.Mutator != nil {
			if id, ok := snap.Items[r].ID(); ok && screen.Mutator.InFlight(id) {
				marker = "* "
			}
		}
		line := joinCells(row, widths)
		if r == cursor {
			line = selectedStyle.Render(line)
		}
		b.WriteString(marker + line)
		b.WriteByte('\n')
	}
	return b.String()
}

func joinCells(cells []string, widths []int) string {
	padded := make([]string, len(cells))
	for i, c := range cells {
		padded[i] = c + strings.Repeat(" ", max(widths[i]-lipgloss.Width(c), 0))
	}
	return strings.Join(padded, "  ")
}

// FormatCell renders one field value for a table cell
func FormatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
