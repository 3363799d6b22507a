package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/slmtnm/cloudisk/internal/models"
	"github.com/slmtnm/cloudisk/internal/upload"
)

// LocalItem represents a local file or directory
type LocalItem struct {
	Name  string
	IsDir bool
	Size  int64
}

type localFilesLoadedMsg struct {
	items []LocalItem
	path  string
	err   error
}

// loadLocalFiles loads files and directories from the specified path
func (m Model) loadLocalFiles(path string) tea.Cmd {
	return func() tea.Msg {
		entries, err := os.ReadDir(path)
		if err != nil {
			return localFilesLoadedMsg{err: err}
		}

		// parent entry allows going above the starting directory
		localItems := []LocalItem{{Name: "..", IsDir: true}}

		for _, entry := range entries {
			if strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			localItems = append(localItems, LocalItem{
				Name:  entry.Name(),
				IsDir: entry.IsDir(),
				Size:  info.Size(),
			})
		}

		// Sort: directories first, then files
		sort.Slice(localItems, func(i, j int) bool {
			if localItems[i].IsDir != localItems[j].IsDir {
				return localItems[i].IsDir
			}
			return localItems[i].Name < localItems[j].Name
		})

		return localFilesLoadedMsg{items: localItems, path: path}
	}
}

func parentPath(path string) string {
	parent := filepath.Dir(path)
	if parent == "." && path == "." {
		return ".."
	}
	if parent == "" {
		return "."
	}
	return parent
}

// updateUpload handles the local file picker, used for uploads and avatars
func (m Model) updateUpload(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "esc":
		m.leavePicker()
		return m, nil
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.localItems)-1 {
			m.cursor++
		}
	case "enter", "l", "o":
		if len(m.localItems) == 0 {
			return m, nil
		}
		selected := m.localItems[m.cursor]
		if selected.IsDir {
			if selected.Name == ".." {
				return m, m.loadLocalFiles(parentPath(m.localPath))
			}
			return m, m.loadLocalFiles(filepath.Join(m.localPath, selected.Name))
		}
		fullPath := filepath.Join(m.localPath, selected.Name)
		if m.pickAvatar {
			m.leavePicker()
			return m, m.session.SetAvatar(fullPath)
		}
		return m.startUpload(fullPath)
	case "backspace", "h":
		return m, m.loadLocalFiles(parentPath(m.localPath))
	}
	return m, nil
}

// startUpload queues the file and stays in the picker so several files can
// be sent one after another
func (m Model) startUpload(path string) (tea.Model, tea.Cmd) {
	src, err := upload.FileSource(path)
	if err != nil {
		m.err = err
		return m, nil
	}
	m.err = nil
	_, cmd := m.uploads.BeginUpload(src, m.nav.CurrentDir())
	m.uploads.Show()
	m.statusMessage = fmt.Sprintf("Uploading '%s'...", src.Name)
	return m, cmd
}

func (m *Model) leavePicker() {
	if m.pickAvatar {
		m.viewMode = ViewProfile
	} else {
		m.viewMode = ViewBrowser
	}
	m.pickAvatar = false
	m.cursor = 0
	m.clampCursor()
}

// viewUpload renders the local file selection view
func (m Model) viewUpload() string {
	var s strings.Builder

	displayPath := m.localPath
	if absPath, err := filepath.Abs(m.localPath); err == nil {
		displayPath = absPath
	}

	title := fmt.Sprintf("Local: %s", displayPath)
	if m.pickAvatar {
		title += " → avatar"
	} else {
		title += " → /" + strings.Join(m.nav.Path(), "/")
	}
	s.WriteString(titleStyle.Render(title))
	s.WriteString("\n\n")

	if m.err != nil {
		s.WriteString(banner(m.err))
	} else if m.statusMessage != "" {
		s.WriteString(successStyle.Render(m.statusMessage))
		s.WriteString("\n\n")
	}

	if len(m.localItems) == 0 {
		s.WriteString("No files or directories found.\n")
	} else {
		for i, item := range m.localItems {
			cursor := " "
			if i == m.cursor {
				cursor = ">"
			}

			var line string
			if item.IsDir {
				line = fmt.Sprintf("%s %s", cursor, directoryStyle.Render(item.Name+"/"))
			} else {
				line = fmt.Sprintf("%s %s (%s)", cursor, fileStyle.Render(item.Name), models.FormatSize(item.Size))
			}

			if i == m.cursor {
				line = selectedStyle.Render(line)
			}
			s.WriteString(line)
			s.WriteString("\n")
		}
	}

	if !m.pickAvatar && m.uploads.Active() > 0 {
		s.WriteString("\n")
		s.WriteString(m.viewPanel())
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("↑/k: up • ↓/j: down • ←/h: back • →/l/o/enter: select • esc: done • q: quit"))

	return m.center(browserStyle.Render(s.String()))
}

// updatePanel handles keys while the uploads panel has focus
func (m Model) updatePanel(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	tasks := m.uploads.Tasks()
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "tab", "esc":
		m.panelFocus = false
	case "up", "k":
		if m.panelCursor > 0 {
			m.panelCursor--
		}
	case "down", "j":
		if m.panelCursor < len(tasks)-1 {
			m.panelCursor++
		}
	case "x":
		if m.panelCursor < len(tasks) {
			m.uploads.RemoveTask(tasks[m.panelCursor].ID)
		}
	case "c":
		m.uploads.ClearFinished()
	case "t":
		m.uploads.Hide()
		m.panelFocus = false
	}

	if n := len(m.uploads.Tasks()); n == 0 {
		m.panelFocus = false
		m.panelCursor = 0
	} else if m.panelCursor >= n {
		m.panelCursor = n - 1
	}
	return m, nil
}

// viewPanel renders the uploads panel
func (m Model) viewPanel() string {
	tasks := m.uploads.Tasks()

	var s strings.Builder
	header := fmt.Sprintf("Uploads (%d active)", m.uploads.Active())
	if m.panelFocus {
		header = selectedStyle.Render(header)
	}
	s.WriteString(header)
	s.WriteString("\n")

	if len(tasks) == 0 {
		s.WriteString(helpStyle.Render("No uploads yet."))
		return dialogStyle.Render(s.String())
	}

	for i, task := range tasks {
		cursor := " "
		if m.panelFocus && i == m.panelCursor {
			cursor = ">"
		}

		var status string
		switch {
		case task.State == upload.StateFailed:
			status = errorStyle.Render("failed: " + task.Err.Error())
		case task.State == upload.StateDone:
			status = successStyle.Render("done")
		case task.Indeterminate:
			status = m.spinner.View() + " uploading"
		default:
			status = m.progress.ViewAs(float64(task.Progress) / 100)
		}

		s.WriteString(fmt.Sprintf("%s %s %s\n", cursor, fileStyle.Render(truncate(task.Name, 24)), status))
	}
	if m.panelFocus {
		s.WriteString(helpStyle.Render("x: remove • c: clear finished • tab: back"))
	}
	return dialogStyle.Render(s.String())
}
