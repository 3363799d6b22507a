package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/slmtnm/cloudisk/internal/models"
)

// updateLogin handles the sign in form
func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.session.Pending() {
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil
	}

	if m.tokenless {
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "r", "enter":
			m.session.ClearErr()
			return m, m.session.Connect()
		}
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "tab", "shift+tab", "up", "down":
		if m.email.Focused() {
			m.email.Blur()
			return m, m.password.Focus()
		}
		m.password.Blur()
		return m, m.email.Focus()
	case "ctrl+r":
		m.registering = !m.registering
		m.session.ClearErr()
		return m, nil
	case "enter":
		if m.email.Focused() {
			m.email.Blur()
			return m, m.password.Focus()
		}
		creds := models.Credentials{Email: m.email.Value(), Password: m.password.Value()}
		m.statusMessage = ""
		if m.registering {
			return m, m.session.Register(creds)
		}
		return m, m.session.Login(creds)
	}

	var cmd tea.Cmd
	if m.email.Focused() {
		m.email, cmd = m.email.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func (m Model) viewLogin() string {
	var s strings.Builder

	action := "Sign in"
	if m.registering {
		action = "Create account"
	}
	s.WriteString(titleStyle.Render(m.title + " - " + action))
	s.WriteString("\n\n")

	if err := m.session.Err(); err != nil {
		s.WriteString(banner(err))
	} else if m.err != nil {
		s.WriteString(banner(m.err))
	} else if m.statusMessage != "" {
		s.WriteString(successStyle.Render(m.statusMessage))
		s.WriteString("\n\n")
	}

	if m.tokenless {
		if m.session.Pending() {
			s.WriteString(m.spinner.View() + " Connecting...\n")
		} else {
			s.WriteString("Could not open the bucket.\n")
		}
		s.WriteString("\n")
		s.WriteString(helpStyle.Render("r: retry • q: quit"))
		return m.center(browserStyle.Render(s.String()))
	}

	s.WriteString("Email    " + m.email.View() + "\n")
	s.WriteString("Password " + m.password.View() + "\n\n")

	if m.session.Pending() {
		s.WriteString(m.spinner.View() + " Please wait...\n\n")
	}

	other := "ctrl+r: create an account"
	if m.registering {
		other = "ctrl+r: sign in instead"
	}
	s.WriteString(helpStyle.Render("tab: next field • enter: submit • " + other + " • esc: quit"))

	return m.center(browserStyle.Render(s.String()))
}

// updateProfile handles the profile view
func (m Model) updateProfile(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "esc", "p":
		m.viewMode = ViewBrowser
	case "a":
		m.clearMessages()
		if !m.session.CanSetAvatar() {
			// records the reason
			return m, m.session.SetAvatar("")
		}
		m.pickAvatar = true
		return m, m.loadLocalFiles(".")
	case "c":
		m.clearMessages()
		return m, m.session.ClearAvatar()
	case "L":
		if !m.tokenless {
			m.openDialog(dialogLogout, "", "")
		}
	}
	return m, nil
}

func (m Model) viewProfile() string {
	var s strings.Builder
	user := m.session.User()

	s.WriteString(titleStyle.Render(m.title + " - Profile"))
	s.WriteString("\n\n")

	if err := m.session.Err(); err != nil {
		s.WriteString(banner(err))
	} else if m.err != nil {
		s.WriteString(banner(m.err))
	} else if m.statusMessage != "" {
		s.WriteString(successStyle.Render(m.statusMessage))
		s.WriteString("\n\n")
	}

	email := user.Email
	if email == "" {
		email = "-"
	}
	fmt.Fprintf(&s, "Account  %s\n", email)

	avatar := "none"
	if user.HasAvatar() {
		avatar = *user.Avatar
	}
	fmt.Fprintf(&s, "Avatar   %s\n\n", avatar)

	if user.DiskSpace > 0 {
		used := float64(user.UsedSpace) / float64(user.DiskSpace)
		fmt.Fprintf(&s, "Storage  %s\n", m.progress.ViewAs(used))
		fmt.Fprintf(&s, "         %s of %s used\n", models.FormatSize(user.UsedSpace), models.FormatSize(user.DiskSpace))
	} else {
		fmt.Fprintf(&s, "Storage  %s used\n", models.FormatSize(user.UsedSpace))
	}

	if m.session.Pending() {
		s.WriteString("\n" + m.spinner.View() + " Saving...\n")
	}

	if m.dialog == dialogLogout {
		s.WriteString("\n")
		s.WriteString(m.viewDialog())
		s.WriteString("\n")
	}

	var actions []string
	if m.session.CanSetAvatar() {
		actions = append(actions, "a: set avatar")
	}
	if m.session.CanClearAvatar() {
		actions = append(actions, "c: clear avatar")
	}
	if !m.tokenless {
		actions = append(actions, "L: sign out")
	}
	actions = append(actions, "esc: back", "q: quit")

	s.WriteString("\n")
	s.WriteString(helpStyle.Render(strings.Join(actions, " • ")))

	return m.center(browserStyle.Render(s.String()))
}
