// Package app wires the session store, the execution bridge and the run
// ledger into the operations offered to the terminal and command line
// surfaces.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/berth-dev/skiff/internal/agent"
	"github.com/berth-dev/skiff/internal/bridge"
	"github.com/berth-dev/skiff/internal/config"
	"github.com/berth-dev/skiff/internal/history"
	"github.com/berth-dev/skiff/internal/rules"
	"github.com/berth-dev/skiff/internal/session"
)

// maxTitleLen bounds titles derived from the first prompt, in runes.
const maxTitleLen = 60

// Options configures New.
type Options struct {
	DataDir string
	Config  *config.Config // nil loads config.yaml from DataDir
	Backend agent.Backend  // nil runs the claude CLI
}

// App is the controller shared by the TUI and the CLI commands.
type App struct {
	Config  *config.Config
	DataDir string
	Store   *session.FileStore
	Bridge  *bridge.Bridge
	Ledger  *history.Ledger

	rulesDoc string
}

// New opens the store and ledger under opts.DataDir.
func New(opts Options) (*App, error) {
	if opts.DataDir == "" {
		dir, err := config.DataDir()
		if err != nil {
			return nil, err
		}
		opts.DataDir = dir
	}
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load(opts.DataDir)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	store, err := session.NewFileStore(cfg.SessionsDir(opts.DataDir))
	if err != nil {
		return nil, err
	}
	ledger, err := history.Open(filepath.Join(opts.DataDir, history.FileName))
	if err != nil {
		return nil, err
	}

	var rulesDoc string
	if path := cfg.RulesFile(opts.DataDir); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			_ = ledger.Close()
			return nil, fmt.Errorf("reading rules: %w", err)
		}
		if _, err := rules.Parse(string(data)); err != nil {
			_ = ledger.Close()
			return nil, fmt.Errorf("rules file %s: %w", path, err)
		}
		rulesDoc = string(data)
	}

	backend := opts.Backend
	if backend == nil {
		backend = &agent.CLI{Binary: cfg.Claude.Binary, Timeout: cfg.QueryTimeout()}
	}

	a := &App{
		Config:   cfg,
		DataDir:  opts.DataDir,
		Store:    store,
		Ledger:   ledger,
		rulesDoc: rulesDoc,
	}
	a.Bridge = bridge.New(agent.NewWrapper(backend), store, bridge.WithRecorder(bridge.RecorderFunc(a.record)))
	return a, nil
}

// Close cancels in-flight runs and closes the ledger.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shutdownErr := a.Bridge.Shutdown(ctx)
	return errors.Join(shutdownErr, a.Ledger.Close())
}

func (a *App) record(o bridge.Outcome) error {
	run := history.Run{
		ID:         o.RunID,
		SessionID:  o.SessionID,
		Prompt:     o.Prompt,
		State:      o.State.String(),
		Messages:   o.Messages,
		CostUSD:    o.CostUSD,
		Turns:      o.Turns,
		Tokens:     o.Tokens,
		StartedAt:  o.Started,
		FinishedAt: o.Finished,
	}
	if o.Err != nil && o.State == bridge.StateFailed {
		run.Error = o.Err.Error()
	}
	return a.Ledger.Record(run)
}

// DefaultSettings is the settings snapshot given to new sessions.
func (a *App) DefaultSettings() session.Settings {
	c := a.Config.Claude
	wd, _ := os.Getwd()
	return session.Settings{
		PermissionMode:  c.PermissionMode,
		WorkDir:         wd,
		Model:           c.Model,
		SystemPrompt:    c.SystemPrompt,
		AllowedTools:    append([]string(nil), c.AllowedTools...),
		DisallowedTools: append([]string(nil), c.DisallowedTools...),
	}
}

// NewSession creates an unsaved session with the default settings.
func (a *App) NewSession(title string) *session.Session {
	return session.New(title, a.DefaultSettings())
}

// QueryConfig builds the backend options for the next prompt of sess. The
// session's own rules replace the configured rules file. sess must not have a
// run in flight.
func (a *App) QueryConfig(sess *session.Session) (agent.QueryConfig, error) {
	cfg := agent.ConfigFromSettings(sess.Settings, sess.ResumeID)
	cfg.MaxTurns = a.Config.Claude.MaxTurns

	doc := a.rulesDoc
	if strings.TrimSpace(sess.Settings.Rules) != "" {
		doc = sess.Settings.Rules
	}
	prompt, err := rules.Augment(cfg.SystemPrompt, doc)
	if err != nil {
		return agent.QueryConfig{}, fmt.Errorf("session rules: %w", err)
	}
	cfg.SystemPrompt = prompt
	return cfg, nil
}

// Send records prompt in sess and starts a query for it. It fails with
// bridge.ErrBusy while sess already has a query in flight.
func (a *App) Send(ctx context.Context, sess *session.Session, prompt string) (*bridge.Run, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, agent.ErrEmptyPrompt
	}
	return a.Bridge.Submit(ctx, sess, bridge.Request{
		Prompt:    prompt,
		Configure: a.QueryConfig,
		Prepare: func(s *session.Session) {
			if isAutoTitled(s) {
				s.SetTitle(TitleFromPrompt(prompt))
			}
			s.AddUserPrompt(prompt)
		},
	})
}

// Cancel stops run at its next event boundary.
func (a *App) Cancel(run *bridge.Run) {
	if run != nil {
		run.Cancel()
	}
}

// List returns recent session summaries; limit <= 0 uses sessions.max_recent.
func (a *App) List(limit int) ([]session.Summary, error) {
	if limit <= 0 {
		limit = a.Config.Sessions.MaxRecent
	}
	return a.Store.ListRecent(limit)
}

// Load reads a stored session.
func (a *App) Load(id string) (*session.Session, error) {
	return a.Store.Load(id)
}

// Latest loads the most recently updated session, or returns
// session.ErrNotFound when there is none.
func (a *App) Latest() (*session.Session, error) {
	recent, err := a.Store.ListRecent(1)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return nil, session.ErrNotFound
	}
	return a.Store.Load(recent[0].ID)
}

// Save persists sess.
func (a *App) Save(sess *session.Session) error {
	return a.Store.Save(sess)
}

// Delete removes a session and its run history.
func (a *App) Delete(id string) error {
	if a.Bridge.Busy(id) {
		return bridge.ErrBusy
	}
	if err := a.Store.Delete(id); err != nil {
		return err
	}
	if _, err := a.Ledger.DeleteSession(id); err != nil {
		slog.Warn("Removing run history failed", "session", id, "error", err)
	}
	return nil
}

// UpdateSettings changes the settings of an idle session and saves it.
func (a *App) UpdateSettings(sess *session.Session, fn func(*session.Settings)) error {
	return a.Bridge.UpdateSettings(sess, fn)
}

// OnSettingsChanged registers a settings-change hook.
func (a *App) OnSettingsChanged(fn func(*session.Session)) {
	a.Bridge.OnSettingsChanged(fn)
}

// CyclePermissionMode moves sess to the next permission mode.
func (a *App) CyclePermissionMode(sess *session.Session) (agent.PermissionMode, error) {
	current, _ := agent.ParsePermissionMode(sess.Settings.PermissionMode)
	next := current.Next()
	err := a.UpdateSettings(sess, func(s *session.Settings) { s.PermissionMode = string(next) })
	if err != nil {
		return current, err
	}
	return next, nil
}

// Rename sets the title of sess and saves it.
func (a *App) Rename(sess *session.Session, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("title cannot be empty")
	}
	return a.Bridge.Edit(sess, func(s *session.Session) { s.SetTitle(title) })
}

// AddSubtask appends a subtask to sess and saves it.
func (a *App) AddSubtask(sess *session.Session, title, description string, p session.Priority) (session.Subtask, error) {
	var st session.Subtask
	err := a.Bridge.Edit(sess, func(s *session.Session) { st = s.AddSubtask(title, description, p) })
	return st, err
}

// ToggleSubtask flips the completion of a subtask and saves sess.
func (a *App) ToggleSubtask(sess *session.Session, id string) error {
	var toggleErr error
	err := a.Bridge.Edit(sess, func(s *session.Session) { _, toggleErr = s.ToggleSubtask(id) })
	return errors.Join(toggleErr, err)
}

// RemoveSubtask deletes a subtask and saves sess.
func (a *App) RemoveSubtask(sess *session.Session, id string) error {
	var removeErr error
	err := a.Bridge.Edit(sess, func(s *session.Session) { removeErr = s.RemoveSubtask(id) })
	return errors.Join(removeErr, err)
}

// Cleanup deletes sessions older than sessions.retention_days.
func (a *App) Cleanup() ([]string, error) {
	removed, err := a.Store.Cleanup(a.Config.Retention(), time.Now())
	for _, id := range removed {
		if _, lerr := a.Ledger.DeleteSession(id); lerr != nil {
			slog.Warn("Removing run history failed", "session", id, "error", lerr)
		}
	}
	return removed, err
}

// Runs returns the recorded runs of a session, newest first.
func (a *App) Runs(sessionID string, limit int) ([]history.Run, error) {
	return a.Ledger.ListBySession(sessionID, limit)
}

// TitleFromPrompt derives a session title from the first line of prompt.
func TitleFromPrompt(prompt string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(prompt), "\n")
	line = strings.Join(strings.Fields(line), " ")
	if utf8.RuneCountInString(line) <= maxTitleLen {
		return line
	}
	runes := []rune(line)
	return strings.TrimSpace(string(runes[:maxTitleLen-1])) + "…"
}

// isAutoTitled reports whether sess still has the title New gave it and no
// user prompt yet.
func isAutoTitled(s *session.Session) bool {
	for _, m := range s.Messages {
		if m.Kind == session.KindUser {
			return false
		}
	}
	return s.Title == session.DefaultTitle(s.CreatedAt)
}
