// Package app provides the main TUI application that wires all views together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	core "github.com/berth-dev/skiff/internal/app"
	"github.com/berth-dev/skiff/internal/bridge"
	"github.com/berth-dev/skiff/internal/session"
	"github.com/berth-dev/skiff/internal/tui"
	"github.com/berth-dev/skiff/internal/tui/commands"
	"github.com/berth-dev/skiff/internal/tui/views"
)

var errBusy = errors.New("a query is running; press esc to cancel it first")

// App is the main TUI application that wires all views together.
type App struct {
	core  *core.App
	model *tui.Model
	keys  tui.KeyMap

	ctx    context.Context
	cancel context.CancelFunc

	chatView     views.ChatModel
	sessionsView views.SessionsModel

	batches       <-chan []bridge.Update
	changes       <-chan struct{}
	cancelPending bool // esc pressed before the run was handed back
}

// New creates an App showing sess. The store is watched so the session
// picker stays current while other instances write to it.
func New(c *core.App, sess *session.Session) *App {
	ctx, cancel := context.WithCancel(context.Background())
	model := tui.NewModel(sess)

	a := &App{
		core:     c,
		model:    model,
		keys:     tui.DefaultKeyMap,
		ctx:      ctx,
		cancel:   cancel,
		chatView: views.NewChatModel(sess, c.Config.UI.Theme, model.Width, model.Height-1),
	}
	changes, err := c.Store.Watch(ctx)
	if err != nil {
		slog.Warn("Session store watch unavailable", "error", err)
	}
	a.changes = changes
	return a
}

// Close stops background work started by the App.
func (a *App) Close() {
	a.cancel()
}

// Init returns the initial command for the TUI.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.chatView.Init(), commands.WatchStoreCmd(a.changes))
}

// Update handles messages and updates the application state.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.model.Width = msg.Width
		a.model.Height = msg.Height
		inner := tea.WindowSizeMsg{Width: msg.Width, Height: msg.Height - 1}
		var chatCmd, sessionsCmd tea.Cmd
		a.chatView, chatCmd = a.chatView.Update(inner)
		if a.model.State == tui.StateSessions {
			a.sessionsView, sessionsCmd = a.sessionsView.Update(inner)
		}
		return a, tea.Batch(chatCmd, sessionsCmd)

	case tea.KeyMsg:
		if key.Matches(msg, a.keys.CtrlC) {
			if a.model.CtrlCPending {
				return a, tea.Quit
			}
			a.model.CtrlCPending = true
			a.model.SetStatus("Press ctrl+c again to quit")
			return a, tea.Tick(time.Second, func(time.Time) tea.Msg {
				return tui.CtrlCResetMsg{}
			})
		}

	case tui.CtrlCResetMsg:
		a.model.CtrlCPending = false
		if a.model.Err == nil {
			a.model.Status = ""
		}
		return a, nil

	case tui.RunStartedMsg:
		a.model.Run = msg.Run
		a.batches = msg.Batches
		if a.cancelPending {
			a.cancelPending = false
			a.core.Cancel(msg.Run)
		}
		return a, commands.ListenRunCmd(msg.Run, msg.Batches)

	case tui.RunErrorMsg:
		a.cancelPending = false
		a.model.SetError(msg.Err)
		a.chatView.SetSession(a.model.Session)
		return a, a.chatView.SetLoading(false)

	case tui.RunUpdatesMsg:
		if a.model.Run == nil || msg.RunID != a.model.Run.ID {
			return a, nil
		}
		a.chatView.AddUpdates(msg.Updates)
		return a, commands.ListenRunCmd(a.model.Run, a.batches)

	case tui.RunFinishedMsg:
		return a, a.finishRun(msg.Outcome)

	case tui.StoreChangedMsg:
		cmds := []tea.Cmd{commands.WatchStoreCmd(a.changes)}
		if a.model.State == tui.StateSessions {
			cmds = append(cmds, commands.LoadSessionsCmd(a.core, 0))
		}
		return a, tea.Batch(cmds...)

	case tui.SessionLoadedMsg:
		a.openSession(msg.Session)
		return a, nil

	case tui.SessionsLoadMsg:
		return a, a.sessionsView.SetSessions(msg.Sessions, msg.Err)

	case tui.SessionDeletedMsg:
		if msg.Err != nil {
			a.model.SetError(fmt.Errorf("deleting session: %w", msg.Err))
			return a, nil
		}
		a.model.SetStatus("Session deleted")
		if msg.ID == a.model.Session.ID {
			a.openSession(a.core.NewSession(""))
			a.model.State = tui.StateSessions
		}
		return a, commands.LoadSessionsCmd(a.core, 0)

	case tui.CopiedMsg:
		if msg.Err != nil {
			a.model.SetError(fmt.Errorf("copying to clipboard: %w", msg.Err))
		} else {
			a.model.SetStatus("Copied last reply")
		}
		return a, nil

	case tui.ErrorMsg:
		a.model.SetError(msg.Err)
		return a, nil
	}

	switch a.model.State {
	case tui.StateSessions:
		return a.updateSessions(msg)
	default:
		return a.updateChat(msg)
	}
}

func (a *App) updateChat(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(k, a.keys.Cancel):
			switch {
			case a.model.Running():
				a.core.Cancel(a.model.Run)
				a.model.SetStatus("Cancelling...")
			case a.chatView.Loading():
				a.cancelPending = true
				a.model.SetStatus("Cancelling...")
			default:
				a.model.SetStatus("")
			}
			return a, nil

		case key.Matches(k, a.keys.NewSession):
			if a.chatView.Loading() {
				a.model.SetError(errBusy)
				return a, nil
			}
			a.openSession(a.core.NewSession(""))
			a.model.SetStatus("New session")
			return a, nil

		case key.Matches(k, a.keys.Sessions):
			if a.chatView.Loading() {
				a.model.SetError(errBusy)
				return a, nil
			}
			a.model.State = tui.StateSessions
			a.sessionsView = views.NewSessionsModel(a.model.Session.ID, a.model.Width, a.model.Height-1)
			return a, commands.LoadSessionsCmd(a.core, 0)

		case key.Matches(k, a.keys.Copy):
			text := a.chatView.LastAssistantText()
			if text == "" {
				a.model.SetStatus("Nothing to copy yet")
				return a, nil
			}
			return a, commands.CopyCmd(text)

		case key.Matches(k, a.keys.CycleMode):
			if a.chatView.Loading() {
				a.model.SetError(errBusy)
				return a, nil
			}
			mode, err := a.core.CyclePermissionMode(a.model.Session)
			if err != nil {
				a.model.SetError(err)
				return a, nil
			}
			a.chatView.SetMode(string(mode))
			a.model.SetStatus("Permission mode: " + string(mode))
			return a, nil
		}
	}

	if send, ok := msg.(views.SendChatMsg); ok {
		a.model.SetStatus("")
		a.chatView.AddPrompt(send.Content)
		return a, tea.Batch(
			a.chatView.SetLoading(true),
			commands.SendPromptCmd(a.ctx, a.core, a.model.Session, send.Content, a.core.Config.Throttle()),
		)
	}

	var cmd tea.Cmd
	a.chatView, cmd = a.chatView.Update(msg)
	return a, cmd
}

func (a *App) updateSessions(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case views.OpenSessionMsg:
		if msg.SessionID == a.model.Session.ID {
			a.model.State = tui.StateChat
			return a, nil
		}
		return a, commands.LoadSessionCmd(a.core, msg.SessionID)

	case views.DeleteSessionMsg:
		return a, commands.DeleteSessionCmd(a.core, msg.SessionID)

	case views.CloseSessionsMsg:
		a.model.State = tui.StateChat
		return a, nil
	}

	var cmd tea.Cmd
	a.sessionsView, cmd = a.sessionsView.Update(msg)
	return a, cmd
}

// openSession makes sess the active conversation and returns to the chat.
func (a *App) openSession(sess *session.Session) {
	a.model.Session = sess
	a.model.State = tui.StateChat
	a.chatView.SetSession(sess)
	if repairs := sess.Repairs(); len(repairs) > 0 {
		a.model.SetStatus(fmt.Sprintf("Session repaired on load (%d fixes)", len(repairs)))
	}
}

func (a *App) finishRun(out bridge.Outcome) tea.Cmd {
	a.model.Run = nil
	a.batches = nil
	a.chatView.SetSession(a.model.Session)

	switch {
	case out.SaveErr != nil:
		a.model.SetError(out.SaveErr)
	case out.State == bridge.StateFailed:
		a.model.SetError(out.Err)
	case out.State == bridge.StateCancelled:
		a.model.SetStatus("Cancelled")
	default:
		a.model.SetStatus(fmt.Sprintf("Done in %s · $%.4f", out.Duration().Round(100*time.Millisecond), out.CostUSD))
	}
	return a.chatView.SetLoading(false)
}

// View renders the current application state.
func (a *App) View() string {
	var content string
	switch a.model.State {
	case tui.StateSessions:
		content = a.sessionsView.View()
	default:
		content = a.chatView.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left, content, a.statusLine())
}

func (a *App) statusLine() string {
	width := a.model.Width
	if width < 1 {
		width = 1
	}
	style := tui.StatusBarStyle.Width(width)
	if a.model.Err != nil {
		return style.Render(tui.ErrorStyle.Render(a.model.Err.Error()))
	}
	if a.model.Status != "" {
		return style.Render(a.model.Status)
	}
	// The session belongs to the bridge while a query is in flight.
	sess := a.model.Session
	if a.chatView.Loading() {
		return style.Render("Running · " + shortID(sess.ID))
	}
	return style.Render(fmt.Sprintf("%s · %d messages · $%.4f", shortID(sess.ID), len(sess.Messages), sess.TotalCost))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
