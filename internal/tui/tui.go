// Package tui is the terminal interface: it renders the navigator, upload
// tracker and session state and turns keys into their operations.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/slmtnm/cloudisk/internal/navigator"
	"github.com/slmtnm/cloudisk/internal/remote"
	"github.com/slmtnm/cloudisk/internal/session"
	"github.com/slmtnm/cloudisk/internal/upload"
)

// searchDelay is how long typing must pause before a search is sent
const searchDelay = 500 * time.Millisecond

// ViewMode represents the current view mode
type ViewMode int

const (
	ViewLogin ViewMode = iota
	ViewBrowser
	ViewPreview
	ViewHelp
	ViewUpload
	ViewProfile
)

// dialog is a prompt drawn over the browser
type dialog int

const (
	dialogNone dialog = iota
	dialogMkdir
	dialogDelete
	dialogSearch
	dialogLogout
)

// Options wires the model to its components
type Options struct {
	Context   context.Context
	Directory remote.Directory
	Navigator *navigator.Navigator
	Uploads   *upload.Tracker
	Session   *session.Store
	// Tokenless backends are checked with Connect and have no login form.
	Tokenless   bool
	Title       string
	DownloadDir string
	Logger      zerolog.Logger
}

// Model represents the application state
type Model struct {
	ctx     context.Context
	dir     remote.Directory
	nav     *navigator.Navigator
	uploads *upload.Tracker
	session *session.Store
	log     zerolog.Logger

	tokenless   bool
	title       string
	downloadDir string

	keys     KeyMap
	help     help.Model
	spinner  spinner.Model
	progress progress.Model

	viewMode ViewMode
	dialog   dialog
	cursor   int
	input    textinput.Model

	// login form
	email       textinput.Model
	password    textinput.Model
	registering bool

	searchSeq int

	// uploads panel
	panelFocus  bool
	panelCursor int

	previewContent  string
	previewFileName string
	previewLines    []string
	previewScroll   int
	previewWidth    int

	localItems []LocalItem
	localPath  string
	pickAvatar bool

	err           error
	statusMessage string
	width         int
	height        int
}

// Messages for async operations
type previewLoadedMsg struct {
	content string
	file    string
	err     error
}

type fileDownloadedMsg struct {
	filename string
	err      error
}

type searchTickMsg struct {
	seq int
}

// Styles - Minimalistic theme
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(lipgloss.Color("#333333")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 1)

	directoryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#0066cc")).
			Bold(true)

	fileStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bbbbbb"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#cc0000")).
			Bold(true)

	faultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ffffff")).
			Background(lipgloss.Color("#cc6600")).
			Bold(true).
			Padding(0, 1)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#006600")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	previewStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#999999")).
			Padding(1, 2)

	dialogStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#999999")).
			Padding(0, 1)

	browserStyle = lipgloss.NewStyle().
			BorderForeground(lipgloss.Color("#999999")).
			Padding(1, 2).
			Align(lipgloss.Center)

	centerStyle = lipgloss.NewStyle().
			Align(lipgloss.Center)

	verticalCenterStyle = lipgloss.NewStyle().
				AlignVertical(lipgloss.Center)
)

// New creates a new TUI model
func New(opts Options) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	email := textinput.New()
	email.Placeholder = "email"
	email.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.EchoMode = textinput.EchoPassword

	title := opts.Title
	if title == "" {
		title = "cloudisk"
	}

	return Model{
		ctx:         opts.Context,
		dir:         opts.Directory,
		nav:         opts.Navigator,
		uploads:     opts.Uploads,
		session:     opts.Session,
		log:         opts.Logger,
		tokenless:   opts.Tokenless,
		title:       title,
		downloadDir: opts.DownloadDir,
		keys:        DefaultKeyMap(),
		help:        help.New(),
		spinner:     s,
		progress:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
		input:       textinput.New(),
		email:       email,
		password:    password,
		viewMode:    ViewLogin,
	}
}

// Init resumes a stored session, if there is one
func (m Model) Init() tea.Cmd {
	var check tea.Cmd
	if m.tokenless {
		check = m.session.Connect()
	} else {
		check = m.session.CheckSession()
	}
	return tea.Batch(m.spinner.Tick, check)
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.dialog != dialogNone {
			return m.updateDialog(msg)
		}
		switch m.viewMode {
		case ViewLogin:
			return m.updateLogin(msg)
		case ViewBrowser:
			return m.updateBrowser(msg)
		case ViewPreview:
			return m.updatePreview(msg)
		case ViewHelp:
			return m.updateHelp(msg)
		case ViewUpload:
			return m.updateUpload(msg)
		case ViewProfile:
			return m.updateProfile(msg)
		}

	case session.AuthMsg:
		m.session.Update(msg)
		if m.session.IsAuth() {
			m.viewMode = ViewBrowser
			m.password.SetValue("")
			m.cursor = 0
			return m, m.nav.Refresh()
		}
		m.viewMode = ViewLogin
		return m, nil

	case session.ProfileMsg:
		m.session.Update(msg)
		if msg.Err == nil {
			m.statusMessage = "✓ Profile updated"
		}
		return m, nil

	case navigator.ListingMsg:
		cmd := m.nav.Update(msg)
		m.clampCursor()
		return m, cmd

	case navigator.CreatedMsg:
		cmd := m.nav.Update(msg)
		if msg.Err == nil {
			m.statusMessage = fmt.Sprintf("✓ Created '%s'", msg.Entry.Name)
		}
		return m, cmd

	case navigator.DeletedMsg:
		cmd := m.nav.Update(msg)
		if msg.Err == nil {
			m.statusMessage = "✓ Deleted successfully"
		}
		m.clampCursor()
		return m, cmd

	case upload.ProgressMsg, upload.DoneMsg:
		cmd := m.uploads.Update(msg)
		if done, ok := msg.(upload.DoneMsg); ok && done.Err == nil {
			m.statusMessage = fmt.Sprintf("✓ Uploaded '%s' successfully", done.Entry.Name)
		}
		return m, cmd

	case searchTickMsg:
		if msg.seq != m.searchSeq {
			return m, nil
		}
		m.cursor = 0
		return m, m.nav.Search(m.input.Value())

	case previewLoadedMsg:
		if msg.err != nil {
			m.log.Warn().Err(msg.err).Str("file", msg.file).Msg("preview failed")
			m.err = msg.err
		} else {
			m.previewContent = msg.content
			m.previewFileName = msg.file
			m.previewLines = strings.Split(msg.content, "\n")
			m.previewScroll = 0
			m.previewWidth = m.calculatePreviewWidth()
			m.viewMode = ViewPreview
			m.err = nil
		}
		return m, nil

	case fileDownloadedMsg:
		if msg.err != nil {
			m.log.Error().Err(msg.err).Str("file", msg.filename).Msg("download failed")
			m.err = msg.err
			m.statusMessage = ""
		} else {
			m.log.Info().Str("file", msg.filename).Msg("downloaded")
			m.err = nil
			m.statusMessage = fmt.Sprintf("✓ Downloaded '%s' successfully", msg.filename)
		}
		return m, nil

	case localFilesLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.localItems = msg.items
			m.localPath = msg.path
			m.cursor = 0
			m.viewMode = ViewUpload
			m.err = nil
		}
		return m, nil
	}

	return m, nil
}

// clearMessages drops the banners before a new action
func (m *Model) clearMessages() {
	m.err = nil
	m.statusMessage = ""
	m.nav.ClearErr()
	m.uploads.ClearErr()
	m.session.ClearErr()
}

// openDialog shows a prompt; text dialogs get a fresh focused input
func (m *Model) openDialog(d dialog, placeholder, value string) tea.Cmd {
	m.dialog = d
	if d != dialogMkdir && d != dialogSearch {
		return nil
	}
	m.input = textinput.New()
	m.input.Placeholder = placeholder
	m.input.SetValue(value)
	return m.input.Focus()
}

// updateDialog handles keys while a prompt is open
func (m Model) updateDialog(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.dialog {
	case dialogDelete, dialogLogout:
		switch {
		case key.Matches(msg, m.keys.Confirm):
			d := m.dialog
			m.dialog = dialogNone
			if d == dialogLogout {
				return m.logout()
			}
			if entry, ok := m.selected(); ok {
				return m, m.nav.DeleteEntry(entry)
			}
		case key.Matches(msg, m.keys.Cancel):
			m.dialog = dialogNone
		}
		return m, nil

	case dialogMkdir:
		switch msg.String() {
		case "esc":
			m.dialog = dialogNone
			return m, nil
		case "enter":
			m.dialog = dialogNone
			return m, m.nav.CreateDirectory(m.input.Value())
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case dialogSearch:
		switch msg.String() {
		case "esc":
			m.dialog = dialogNone
			m.searchSeq++
			m.cursor = 0
			return m, m.nav.Search("")
		case "enter":
			// keep the results, stop editing
			m.dialog = dialogNone
			m.searchSeq++
			m.cursor = 0
			return m, m.nav.Search(m.input.Value())
		}
		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if m.input.Value() == before {
			return m, cmd
		}
		m.searchSeq++
		seq := m.searchSeq
		return m, tea.Batch(cmd, tea.Tick(searchDelay, func(time.Time) tea.Msg {
			return searchTickMsg{seq: seq}
		}))
	}
	return m, nil
}

func (m Model) logout() (tea.Model, tea.Cmd) {
	if err := m.session.Logout(true); err != nil {
		m.err = err
	}
	m.nav.Reset()
	m.viewMode = ViewLogin
	m.cursor = 0
	m.statusMessage = "Signed out"
	m.password.Blur()
	return m, m.email.Focus()
}

// updateHelp handles help view updates
func (m Model) updateHelp(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "esc", "?":
		m.viewMode = ViewBrowser
	}
	return m, nil
}

// View renders the current view
func (m Model) View() string {
	switch m.viewMode {
	case ViewLogin:
		return m.viewLogin()
	case ViewBrowser:
		return m.viewBrowser()
	case ViewPreview:
		return m.viewPreview()
	case ViewHelp:
		return m.viewHelp()
	case ViewUpload:
		return m.viewUpload()
	case ViewProfile:
		return m.viewProfile()
	}
	return ""
}

// center places content in the middle of the terminal
func (m Model) center(content string) string {
	if m.width > 0 && m.height > 0 {
		centered := centerStyle.Width(m.width).Render(content)
		return verticalCenterStyle.Height(m.height).Render(centered)
	}
	return content
}

// banner renders err, connection failures stand out from rejections
func banner(err error) string {
	if err == nil {
		return ""
	}
	if remote.IsFault(err) {
		return faultStyle.Render("Connection problem: "+err.Error()) + "\n\n"
	}
	return errorStyle.Render("Error: "+err.Error()) + "\n\n"
}

// viewHelp renders the help view
func (m Model) viewHelp() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(m.title + " - Help"))
	s.WriteString("\n\n")

	full := m.help
	full.ShowAll = true
	s.WriteString(full.View(m.keys))
	s.WriteString("\n\n")

	s.WriteString(`Browser Features:
  - Navigate your remote files like a file system
  - Sort by name, type or date, as a list or a grid
  - Search the whole tree, results follow your typing
  - Preview text files in-place
  - Upload several files at once and follow their progress
  - Manage your avatar and sign out from the profile

Configuration:
  cloudisk reads .cloudiskrc from:
  - Current directory
  - Home directory (~/.cloudiskrc)
  - System directory (/etc/cloudiskrc)
`)
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("esc/?: back • q: quit"))

	return m.center(s.String())
}
