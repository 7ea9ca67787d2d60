package commands

import (
	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/berth-dev/skiff/internal/app"
	"github.com/berth-dev/skiff/internal/tui"
)

// LoadSessionsCmd fetches recent session summaries for the picker.
func LoadSessionsCmd(a *app.App, limit int) tea.Cmd {
	return func() tea.Msg {
		summaries, err := a.List(limit)
		if err != nil {
			return tui.SessionsLoadMsg{Err: err}
		}
		return tui.SessionsLoadMsg{Sessions: summaries}
	}
}

// LoadSessionCmd reads one session from the store.
func LoadSessionCmd(a *app.App, id string) tea.Cmd {
	return func() tea.Msg {
		sess, err := a.Load(id)
		if err != nil {
			return tui.ErrorMsg{Err: err}
		}
		return tui.SessionLoadedMsg{Session: sess}
	}
}

// DeleteSessionCmd removes a session and its run history.
func DeleteSessionCmd(a *app.App, id string) tea.Cmd {
	return func() tea.Msg {
		return tui.SessionDeletedMsg{ID: id, Err: a.Delete(id)}
	}
}

// WatchStoreCmd waits for the next change signal from the store watcher.
// It returns nil once the watcher stops.
func WatchStoreCmd(changes <-chan struct{}) tea.Cmd {
	if changes == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return tui.StoreChangedMsg{}
	}
}

// CopyCmd writes text to the system clipboard.
func CopyCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return tui.CopiedMsg{Err: clipboard.WriteAll(text)}
	}
}
