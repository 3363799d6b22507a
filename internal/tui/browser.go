package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/slmtnm/cloudisk/internal/models"
)

// previewLimit is the largest file shown in the preview
const previewLimit = 1 << 20

const gridCellWidth = 20

func (m Model) selected() (models.FileEntry, bool) {
	listing := m.nav.Listing()
	if m.cursor < 0 || m.cursor >= len(listing) {
		return models.FileEntry{}, false
	}
	return listing[m.cursor], true
}

func (m *Model) clampCursor() {
	n := len(m.nav.Listing())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// gridColumns is how many cells fit on a row of the grid view
func (m Model) gridColumns() int {
	cols := (m.width - 8) / gridCellWidth
	if cols < 1 {
		return 1
	}
	return cols
}

func (m *Model) move(delta int) {
	m.cursor += delta
	m.clampCursor()
}

// updateBrowser handles browser view updates
func (m Model) updateBrowser(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.panelFocus {
		return m.updatePanel(msg)
	}

	step := 1
	if m.nav.View() == models.ViewGrid {
		step = m.gridColumns()
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		m.move(-step)

	case key.Matches(msg, m.keys.Down):
		m.move(step)

	case key.Matches(msg, m.keys.Left):
		if m.nav.View() == models.ViewGrid {
			m.move(-1)
		}

	case key.Matches(msg, m.keys.Right):
		if m.nav.View() == models.ViewGrid {
			m.move(1)
		}

	case key.Matches(msg, m.keys.Open):
		entry, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.clearMessages()
		if entry.IsDir() {
			m.cursor = 0
			return m, m.nav.OpenDirectory(entry)
		}
		if entry.Size > previewLimit {
			m.err = fmt.Errorf("'%s' is too large to preview (%s)", entry.Name, models.FormatSize(entry.Size))
			return m, nil
		}
		return m, m.previewFileContent(entry)

	case key.Matches(msg, m.keys.Back):
		if m.nav.Searching() {
			m.cursor = 0
			return m, m.nav.Search("")
		}
		m.clearMessages()
		m.cursor = 0
		return m, m.nav.GoBack()

	case key.Matches(msg, m.keys.Refresh):
		m.clearMessages()
		return m, m.nav.Refresh()

	case key.Matches(msg, m.keys.Download):
		entry, ok := m.selected()
		if !ok || entry.IsDir() {
			return m, nil
		}
		m.clearMessages()
		m.statusMessage = fmt.Sprintf("Downloading '%s'...", entry.Name)
		return m, m.downloadFile(entry)

	case key.Matches(msg, m.keys.Upload):
		if m.nav.Searching() {
			m.err = fmt.Errorf("leave search to upload into a directory")
			return m, nil
		}
		m.clearMessages()
		m.pickAvatar = false
		return m, m.loadLocalFiles(".")

	case key.Matches(msg, m.keys.Delete):
		if _, ok := m.selected(); ok {
			m.openDialog(dialogDelete, "", "")
		}

	case key.Matches(msg, m.keys.Mkdir):
		m.clearMessages()
		return m, m.openDialog(dialogMkdir, "directory name", "")

	case key.Matches(msg, m.keys.Search):
		return m, m.openDialog(dialogSearch, "search", m.nav.Query())

	case key.Matches(msg, m.keys.Sort):
		m.cursor = 0
		return m, m.nav.SetSort(m.nav.Sort().Next())

	case key.Matches(msg, m.keys.View):
		if m.nav.View() == models.ViewList {
			m.nav.SetView(models.ViewGrid)
		} else {
			m.nav.SetView(models.ViewList)
		}

	case key.Matches(msg, m.keys.Uploads):
		if m.uploads.Visible() {
			m.uploads.Hide()
		} else {
			m.uploads.Show()
		}

	case key.Matches(msg, m.keys.Focus):
		if m.uploads.Visible() && len(m.uploads.Tasks()) > 0 {
			m.panelFocus = true
			m.panelCursor = 0
		}

	case key.Matches(msg, m.keys.Profile):
		m.clearMessages()
		m.viewMode = ViewProfile

	case key.Matches(msg, m.keys.Help):
		m.viewMode = ViewHelp
	}
	return m, nil
}

func (m Model) heading() string {
	title := m.title
	if user := m.session.User(); user.Email != "" {
		title += " | " + user.Email
	}
	if m.nav.Searching() {
		return title + fmt.Sprintf(" | Search: %q", m.nav.Query())
	}
	return title + " | Path: /" + strings.Join(m.nav.Path(), "/")
}

func (m Model) viewBrowser() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(m.heading()))
	s.WriteString("\n")
	s.WriteString(helpStyle.Render(fmt.Sprintf("sort: %s • view: %s", m.nav.Sort(), m.nav.View())))
	s.WriteString("\n\n")

	// one banner per source, the local one wins
	switch {
	case m.err != nil:
		s.WriteString(banner(m.err))
	case m.nav.Err() != nil:
		s.WriteString(banner(m.nav.Err()))
	case m.uploads.Err() != nil:
		s.WriteString(banner(m.uploads.Err()))
	case m.session.Err() != nil:
		s.WriteString(banner(m.session.Err()))
	case m.statusMessage != "":
		s.WriteString(successStyle.Render(m.statusMessage))
		s.WriteString("\n\n")
	}

	listing := m.nav.Listing()
	switch {
	case m.nav.Loading() && len(listing) == 0:
		s.WriteString(m.spinner.View() + " Loading...\n")
	case len(listing) == 0 && m.nav.Searching():
		s.WriteString("Nothing matches your search.\n")
	case len(listing) == 0:
		s.WriteString("This directory is empty.\n")
	case m.nav.View() == models.ViewGrid:
		s.WriteString(m.viewGrid(listing))
	default:
		s.WriteString(m.viewList(listing))
	}

	if m.nav.Loading() && len(listing) > 0 {
		s.WriteString("\n" + m.spinner.View() + " Refreshing...\n")
	}

	if d := m.viewDialog(); d != "" {
		s.WriteString("\n")
		s.WriteString(d)
		s.WriteString("\n")
	}

	if m.uploads.Visible() {
		s.WriteString("\n")
		s.WriteString(m.viewPanel())
	}

	s.WriteString("\n")
	s.WriteString(m.help.View(m.keys))

	return m.center(browserStyle.Render(s.String()))
}

func (m Model) viewList(listing []models.FileEntry) string {
	var s strings.Builder
	for i, entry := range listing {
		cursor := " "
		if i == m.cursor && !m.panelFocus {
			cursor = ">"
		}

		var line string
		if entry.IsDir() {
			line = fmt.Sprintf("%s %s", cursor, directoryStyle.Render(entry.Name+"/"))
		} else {
			line = fmt.Sprintf("%s %s (%s) %s", cursor, fileStyle.Render(entry.Name),
				models.FormatSize(entry.Size), entry.Date.Format("2006-01-02 15:04"))
		}

		if i == m.cursor && !m.panelFocus {
			line = selectedStyle.Render(line)
		}
		s.WriteString(line)
		s.WriteString("\n")
	}
	return s.String()
}

func (m Model) viewGrid(listing []models.FileEntry) string {
	cols := m.gridColumns()
	cell := lipgloss.NewStyle().Width(gridCellWidth).MaxWidth(gridCellWidth)

	var rows []string
	var row []string
	for i, entry := range listing {
		name := entry.Name
		if entry.IsDir() {
			name = directoryStyle.Render(truncate(name+"/", gridCellWidth-3))
		} else {
			name = fileStyle.Render(truncate(name, gridCellWidth-3))
		}
		if i == m.cursor && !m.panelFocus {
			name = selectedStyle.Render("> " + name)
		} else {
			name = "  " + name
		}
		row = append(row, cell.Render(name))
		if len(row) == cols {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...) + "\n"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func (m Model) viewDialog() string {
	switch m.dialog {
	case dialogMkdir:
		return dialogStyle.Render("New directory: " + m.input.View() + "\n" + helpStyle.Render("enter: create • esc: cancel"))
	case dialogSearch:
		return dialogStyle.Render("Search: " + m.input.View() + "\n" + helpStyle.Render("enter: done • esc: leave search"))
	case dialogDelete:
		entry, _ := m.selected()
		what := "file"
		if entry.IsDir() {
			what = "directory and everything in it"
		}
		return dialogStyle.Render(fmt.Sprintf("Delete %s '%s'? (y/n)", what, entry.Name))
	case dialogLogout:
		return dialogStyle.Render("Sign out? (y/n)")
	}
	return ""
}
