// Package commands provides Bubble Tea commands for TUI operations.
package commands

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/berth-dev/skiff/internal/app"
	"github.com/berth-dev/skiff/internal/bridge"
	"github.com/berth-dev/skiff/internal/session"
	"github.com/berth-dev/skiff/internal/tui"
)

// SendPromptCmd submits prompt for sess and returns immediately with
// RunStartedMsg. Updates are grouped so the screen redraws at most once per
// throttle interval.
func SendPromptCmd(ctx context.Context, a *app.App, sess *session.Session, prompt string, throttle time.Duration) tea.Cmd {
	return func() tea.Msg {
		run, err := a.Send(ctx, sess, prompt)
		if err != nil {
			return tui.RunErrorMsg{Err: err}
		}
		return tui.RunStartedMsg{
			Run:     run,
			Batches: bridge.Coalesce(ctx, run.Updates(), throttle),
		}
	}
}

// ListenRunCmd waits for the next batch of updates from run.
// Returns RunUpdatesMsg for each batch, or RunFinishedMsg once the batches
// channel closes.
func ListenRunCmd(run *bridge.Run, batches <-chan []bridge.Update) tea.Cmd {
	return func() tea.Msg {
		batch, ok := <-batches
		if !ok {
			return tui.RunFinishedMsg{Outcome: run.Wait()}
		}
		return tui.RunUpdatesMsg{RunID: run.ID, Updates: batch}
	}
}
