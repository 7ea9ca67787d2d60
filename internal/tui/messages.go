package tui

import (
	"github.com/berth-dev/skiff/internal/agent"
	"github.com/berth-dev/skiff/internal/bridge"
	"github.com/berth-dev/skiff/internal/session"
)

// ============================================================================
// Run Messages
// ============================================================================

// RunStartedMsg signals that a prompt has been submitted to the bridge.
type RunStartedMsg struct {
	Run     *bridge.Run
	Batches <-chan []bridge.Update
}

// RunUpdatesMsg carries a batch of streamed messages in arrival order.
type RunUpdatesMsg struct {
	RunID   string
	Updates []bridge.Update
}

// RunFinishedMsg signals that a run reached a terminal state.
type RunFinishedMsg struct {
	Outcome bridge.Outcome
}

// RunErrorMsg signals that a prompt could not be submitted.
type RunErrorMsg struct {
	Err error
}

// ============================================================================
// Session Messages
// ============================================================================

// SessionLoadedMsg signals that a session has been loaded from storage.
type SessionLoadedMsg struct {
	Session *session.Session
}

// SessionsLoadMsg carries the session summaries for the picker.
type SessionsLoadMsg struct {
	Sessions []session.Summary
	Err      error
}

// SessionDeletedMsg signals that a session was removed.
type SessionDeletedMsg struct {
	ID  string
	Err error
}

// StoreChangedMsg signals that the session directory changed on disk.
type StoreChangedMsg struct{}

// ModeChangedMsg signals that the permission mode of the session changed.
type ModeChangedMsg struct {
	Mode agent.PermissionMode
	Err  error
}

// ============================================================================
// Utility Messages
// ============================================================================

// CopiedMsg reports the result of a clipboard copy.
type CopiedMsg struct {
	Err error
}

// CtrlCResetMsg is sent after the double ctrl+c window expires.
type CtrlCResetMsg struct{}

// ErrorMsg is a generic error message shown in the status line.
type ErrorMsg struct {
	Err error
}
