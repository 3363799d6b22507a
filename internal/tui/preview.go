package tui

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/slmtnm/cloudisk/internal/models"
)

// previewFileContent fetches a file for the preview
func (m Model) previewFileContent(entry models.FileEntry) tea.Cmd {
	ctx, dir := m.ctx, m.dir
	return func() tea.Msg {
		var buf bytes.Buffer
		if _, err := dir.Download(ctx, entry.ID, &buf); err != nil {
			return previewLoadedMsg{file: entry.Name, err: err}
		}

		// Check if content is text (simple heuristic)
		if !utf8.Valid(buf.Bytes()) {
			return previewLoadedMsg{
				content: "[Binary file - cannot preview]",
				file:    entry.Name,
			}
		}

		return previewLoadedMsg{
			content: buf.String(),
			file:    entry.Name,
		}
	}
}

// downloadFile streams a file into the download directory
func (m Model) downloadFile(entry models.FileEntry) tea.Cmd {
	ctx, dir, target := m.ctx, m.dir, m.downloadDir
	return func() tea.Msg {
		if target == "" {
			target = "."
		}
		path := filepath.Join(target, filepath.Base(entry.Name))

		f, err := os.Create(path)
		if err != nil {
			return fileDownloadedMsg{filename: path, err: fmt.Errorf("failed to write file '%s': %w", path, err)}
		}
		if _, err := dir.Download(ctx, entry.ID, f); err != nil {
			f.Close()
			os.Remove(path)
			return fileDownloadedMsg{filename: path, err: err}
		}
		if err := f.Close(); err != nil {
			return fileDownloadedMsg{filename: path, err: fmt.Errorf("failed to write file '%s': %w", path, err)}
		}
		return fileDownloadedMsg{filename: path}
	}
}

func (m Model) maxPreviewScroll() int {
	maxScroll := len(m.previewLines) - (m.height - 8) // title, borders, help
	if maxScroll < 0 {
		return 0
	}
	return maxScroll
}

// updatePreview handles preview view updates
func (m Model) updatePreview(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "esc", "backspace", "h", "left":
		m.viewMode = ViewBrowser
		m.previewContent = ""
		m.previewFileName = ""
		m.previewLines = nil
		m.previewScroll = 0
		m.previewWidth = 0
	case "up", "k":
		if m.previewScroll > 0 {
			m.previewScroll--
		}
	case "down", "j":
		if m.previewScroll < m.maxPreviewScroll() {
			m.previewScroll++
		}
	case "pgup", "u":
		m.previewScroll -= 10
		if m.previewScroll < 0 {
			m.previewScroll = 0
		}
	case "pgdown", "d":
		m.previewScroll += 10
		if maxScroll := m.maxPreviewScroll(); m.previewScroll > maxScroll {
			m.previewScroll = maxScroll
		}
	case "home", "g":
		m.previewScroll = 0
	case "end", "G":
		m.previewScroll = m.maxPreviewScroll()
	}
	return m, nil
}

// viewPreview renders the file preview view
func (m Model) viewPreview() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("Preview: " + m.previewFileName))
	s.WriteString("\n\n")

	visibleHeight := m.height - 8
	if visibleHeight < 1 {
		visibleHeight = 10
	}

	var visibleLines []string
	totalLines := len(m.previewLines)

	if m.previewContent == "" {
		visibleLines = []string{"[Empty file]"}
	} else {
		start := m.previewScroll
		end := start + visibleHeight
		if end > totalLines {
			end = totalLines
		}
		if start < totalLines {
			visibleLines = m.previewLines[start:end]
		}
	}

	var content strings.Builder
	for i, line := range visibleLines {
		fmt.Fprintf(&content, "%4d │ %s\n", m.previewScroll+i+1, line)
	}

	if totalLines > visibleHeight {
		fmt.Fprintf(&content, "\n[Showing lines %d-%d of %d]",
			m.previewScroll+1,
			m.previewScroll+len(visibleLines),
			totalLines)
	}

	s.WriteString(previewStyle.Width(m.previewWidth - 8).Render(content.String()))
	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render("↑/k,↓/j: scroll • u/d: page up/down • g/G: top/bottom • ←/h/esc: back • q: quit"))

	return m.center(s.String())
}

// calculatePreviewWidth fits the preview to its longest line
func (m Model) calculatePreviewWidth() int {
	if len(m.previewLines) == 0 {
		return 80
	}

	maxLineLength := 0
	for _, line := range m.previewLines {
		// line numbers take "0000 │ "
		lineLength := utf8.RuneCountInString(line) + 6
		if lineLength > maxLineLength {
			maxLineLength = lineLength
		}
	}

	// borders and padding
	optimalWidth := maxLineLength + 8

	maxAllowedWidth := m.width - 10
	if maxAllowedWidth < 40 {
		maxAllowedWidth = 40
	}
	if optimalWidth > maxAllowedWidth {
		return maxAllowedWidth
	}
	if optimalWidth < 60 {
		return 60
	}
	return optimalWidth
}
