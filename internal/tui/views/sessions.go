package views

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/berth-dev/skiff/internal/session"
	"github.com/berth-dev/skiff/internal/tui"
)

// ============================================================================
// Message Types
// ============================================================================

// OpenSessionMsg is sent when the user selects a session to load.
type OpenSessionMsg struct {
	SessionID string
}

// DeleteSessionMsg is sent when the user requests to delete a session.
type DeleteSessionMsg struct {
	SessionID string
}

// CloseSessionsMsg is sent when the user leaves the picker.
type CloseSessionsMsg struct{}

// ============================================================================
// SessionItem
// ============================================================================

// SessionItem implements list.Item for the session list.
type SessionItem struct {
	summary session.Summary
	now     func() time.Time
}

// NewSessionItem creates a SessionItem from a summary.
func NewSessionItem(s session.Summary) SessionItem {
	return SessionItem{summary: s, now: time.Now}
}

// Title returns the session title for list display.
func (i SessionItem) Title() string {
	return i.summary.Title
}

// Description returns the age, size and cost of the session.
func (i SessionItem) Description() string {
	return fmt.Sprintf("%s · %d messages · $%.4f",
		humanize.RelTime(i.summary.UpdatedAt, i.now(), "ago", "from now"),
		i.summary.MessageCount,
		i.summary.TotalCost,
	)
}

// FilterValue returns the value used for filtering in the list.
func (i SessionItem) FilterValue() string {
	return i.summary.Title
}

// ============================================================================
// SessionsModel
// ============================================================================

// SessionsModel is the view model for the session picker.
type SessionsModel struct {
	list    list.Model
	current string
	err     error
	width   int
	height  int
}

// NewSessionsModel creates an empty picker; current marks the open session.
func NewSessionsModel(current string, width, height int) SessionsModel {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(lipgloss.Color("#7C3AED")).
		BorderForeground(lipgloss.Color("#7C3AED"))
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(lipgloss.Color("#9CA3AF"))

	l := list.New(nil, delegate, width, height-2)
	l.Title = "Sessions"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)

	return SessionsModel{list: l, current: current, width: width, height: height}
}

// SetSessions replaces the listed sessions, keeping the cursor on the same
// session when it is still present.
func (m *SessionsModel) SetSessions(summaries []session.Summary, err error) tea.Cmd {
	m.err = err
	if err != nil {
		return nil
	}
	selected := m.Selected()
	items := make([]list.Item, len(summaries))
	cursor := 0
	for i, s := range summaries {
		items[i] = NewSessionItem(s)
		if s.ID == selected || (selected == "" && s.ID == m.current) {
			cursor = i
		}
	}
	cmd := m.list.SetItems(items)
	m.list.Select(cursor)
	return cmd
}

// Selected returns the id of the highlighted session, or "".
func (m SessionsModel) Selected() string {
	if item, ok := m.list.SelectedItem().(SessionItem); ok {
		return item.summary.ID
	}
	return ""
}

// Update handles messages for the picker.
func (m SessionsModel) Update(msg tea.Msg) (SessionsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.list.SetSize(msg.Width, msg.Height-2)
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch {
		case key.Matches(msg, tui.DefaultKeyMap.Enter):
			if id := m.Selected(); id != "" {
				return m, func() tea.Msg { return OpenSessionMsg{SessionID: id} }
			}
			return m, nil
		case key.Matches(msg, tui.DefaultKeyMap.Delete):
			if id := m.Selected(); id != "" {
				return m, func() tea.Msg { return DeleteSessionMsg{SessionID: id} }
			}
			return m, nil
		case key.Matches(msg, tui.DefaultKeyMap.Escape) && m.list.FilterState() == list.Unfiltered:
			return m, func() tea.Msg { return CloseSessionsMsg{} }
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the picker.
func (m SessionsModel) View() string {
	if m.err != nil {
		return tui.ErrorStyle.Render("Loading sessions failed: " + m.err.Error())
	}
	if len(m.list.Items()) == 0 {
		return tui.DimStyle.Render("No saved sessions yet. Press esc to go back.")
	}
	return m.list.View() + "\n" + tui.DimStyle.Render("enter: open · d: delete · /: filter · esc: back")
}
