package tui

import (
	"github.com/berth-dev/skiff/internal/bridge"
	"github.com/berth-dev/skiff/internal/session"
)

// ViewState represents the current screen of the TUI.
type ViewState int

const (
	StateChat ViewState = iota
	StateSessions
)

// Model holds the state shared by every screen.
type Model struct {
	State ViewState

	// Active conversation and its in-flight run, if any.
	Session *session.Session
	Run     *bridge.Run

	// Status line
	Err    error
	Status string

	// Terminal dimensions
	Width  int
	Height int

	// Ctrl+C confirmation state
	CtrlCPending bool
}

// NewModel creates a Model showing sess in the chat screen.
func NewModel(sess *session.Session) *Model {
	return &Model{
		State:   StateChat,
		Session: sess,
		Width:   80,
		Height:  24,
	}
}

// Running reports whether a query is in flight for the active session.
func (m *Model) Running() bool {
	return m.Run != nil && m.Run.State() == bridge.StateRunning
}

// SetError shows err in the status line, replacing any status text.
func (m *Model) SetError(err error) {
	m.Err = err
	if err != nil {
		m.Status = ""
	}
}

// SetStatus shows s in the status line and clears any error.
func (m *Model) SetStatus(s string) {
	m.Status = s
	m.Err = nil
}
