// Package tui renders the interactive login progress screen of the authflow CLI.
package tui

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/router-for-me/authflow/internal/logging"
	"github.com/router-for-me/authflow/sdk/authflow"
	log "github.com/sirupsen/logrus"
)

const (
	maxLogLines     = 5
	logPollInterval = 250 * time.Millisecond
)

// Phase is a step of the login as shown on screen.
type Phase int

const (
	PhaseStarting Phase = iota
	PhaseAwaitingRedirect
	PhaseExchanging
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "Preparing login"
	case PhaseAwaitingRedirect:
		return "Waiting for the browser"
	case PhaseExchanging:
		return "Exchanging code for token"
	case PhaseDone:
		return "Logged in"
	case PhaseFailed:
		return "Login failed"
	default:
		return "unknown"
	}
}

// Progress is reported by a LoginFunc as the flow advances.
type Progress struct {
	Phase            Phase
	AuthorizationURL string
}

// LoginFunc runs the flow, reporting each step through progress.
type LoginFunc func(ctx context.Context, progress func(Progress)) (authflow.Status, error)

type progressMsg Progress

type resultMsg struct {
	status authflow.Status
	err    error
}

type logTickMsg time.Time

// LoginModel is the model for the login progress screen.
type LoginModel struct {
	phase     Phase
	authURL   string
	spinner   spinner.Model
	keys      LoginKeyMap
	status    authflow.Status
	err       error
	logs      []logging.LogEntry
	cancel    context.CancelFunc
	opener    authflow.Dispatcher
	width     int
	finished  bool
	cancelled bool
}

// NewLoginModel creates the login screen. cancel aborts the running flow; opener is used
// when the user asks to reopen the browser.
func NewLoginModel(cancel context.CancelFunc, opener authflow.Dispatcher) LoginModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return LoginModel{
		phase:   PhaseStarting,
		spinner: s,
		keys:    DefaultLoginKeyMap(),
		cancel:  cancel,
		opener:  opener,
		width:   80,
	}
}

// Init starts the spinner and the log poller.
func (m LoginModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, pollLogs())
}

func pollLogs() tea.Cmd {
	return tea.Tick(logPollInterval, func(t time.Time) tea.Msg { return logTickMsg(t) })
}

// Update handles messages for the login model.
func (m LoginModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case progressMsg:
		m.phase = msg.Phase
		if msg.AuthorizationURL != "" {
			m.authURL = msg.AuthorizationURL
		}
		return m, nil

	case resultMsg:
		m.finished = true
		m.status = msg.status
		m.err = msg.err
		if msg.err != nil {
			m.phase = PhaseFailed
		} else {
			m.phase = PhaseDone
		}
		m.logs = logging.GetRecentGlobalEntries(maxLogLines)
		return m, tea.Quit

	case logTickMsg:
		if m.finished {
			return m, nil
		}
		m.logs = logging.GetRecentGlobalEntries(maxLogLines)
		return m, pollLogs()

	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.cancelled = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case key.Matches(msg, m.keys.Open):
			return m, m.reopen()
		}
	}
	return m, nil
}

func (m LoginModel) reopen() tea.Cmd {
	if m.authURL == "" || m.opener == nil {
		return nil
	}
	target, err := url.Parse(m.authURL)
	if err != nil {
		return nil
	}
	opener := m.opener
	return func() tea.Msg {
		if errOpen := opener.Dispatch(context.Background(), target); errOpen != nil {
			log.Warnf("could not reopen browser: %v", errOpen)
		}
		return nil
	}
}

// View renders the login screen.
func (m LoginModel) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("Sign in"))
	b.WriteString("\n")

	switch m.phase {
	case PhaseDone:
		b.WriteString(SuccessBadge.Render("OK") + " " + Success(m.phase.String()))
		if m.status.User != nil {
			b.WriteString(" as " + m.status.User.DisplayName())
		}
		b.WriteString("\n")
	case PhaseFailed:
		b.WriteString(ErrorBadge.Render("ERR") + " " + Error(authflow.UserFriendlyMessage(m.err)))
		b.WriteString("\n")
	default:
		if m.cancelled {
			b.WriteString(WarningBadge.Render("--") + " " + Warning("Login cancelled"))
		} else {
			b.WriteString(m.spinner.View() + " " + m.phase.String() + "...")
		}
		b.WriteString("\n")
	}

	if m.authURL != "" && !m.finished {
		b.WriteString("\n")
		b.WriteString(Muted("If the browser did not open, visit:"))
		b.WriteString("\n")
		b.WriteString(URLStyle.Width(max(20, m.width-4)).Render(m.authURL))
		b.WriteString("\n")
	}

	if len(m.logs) > 0 {
		b.WriteString("\n")
		lines := make([]string, 0, len(m.logs))
		for _, e := range m.logs {
			lines = append(lines, fmt.Sprintf("%s %-5s %s", e.Timestamp.Format("15:04:05"), e.Level, e.Message))
		}
		b.WriteString(LogStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
		b.WriteString("\n")
	}

	if !m.finished {
		b.WriteString(HelpStyle.Render(m.keys.ShortHelp(m.authURL != "")))
		b.WriteString("\n")
	}
	return b.String()
}

// Phase returns the current phase.
func (m LoginModel) Phase() Phase { return m.phase }

// Result returns the final status and error once the flow has finished.
func (m LoginModel) Result() (authflow.Status, bool, error) {
	return m.status, m.finished, m.err
}

// Cancelled reports whether the user aborted the login.
func (m LoginModel) Cancelled() bool { return m.cancelled }
