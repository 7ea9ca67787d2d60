// Package bridge runs queries in the background and relays their messages to
// a single consumer while keeping the session up to date.
package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/berth-dev/skiff/internal/agent"
	"github.com/berth-dev/skiff/internal/session"
)

// ErrBusy is returned when a session already has a query in flight.
var ErrBusy = errors.New("session is busy")

// Saver persists a session. The session store satisfies it.
type Saver interface {
	Save(*session.Session) error
}

// Recorder receives the outcome of every finished run.
type Recorder interface {
	Record(Outcome) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(Outcome) error

// Record implements Recorder.
func (f RecorderFunc) Record(o Outcome) error { return f(o) }

// Request describes one prompt submission.
type Request struct {
	Prompt string
	Config agent.QueryConfig
	// Configure, when set, replaces Config. Submit calls it with the busy
	// flag and the run lock held; an error releases the flag and is returned
	// as is.
	Configure func(*session.Session) (agent.QueryConfig, error)
	// Prepare, when set, runs against the session before the query starts,
	// with the run lock held.
	Prepare func(*session.Session)
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithRecorder sets the run ledger.
func WithRecorder(r Recorder) Option {
	return func(b *Bridge) { b.recorder = r }
}

// Bridge owns the per-session busy flags.
type Bridge struct {
	wrapper  *agent.Wrapper
	saver    Saver
	recorder Recorder

	mu    sync.Mutex
	busy  map[string]*Run
	hooks []func(*session.Session)
	wg    sync.WaitGroup
}

// New returns a Bridge that queries through wrapper and saves through saver.
func New(wrapper *agent.Wrapper, saver Saver, opts ...Option) *Bridge {
	b := &Bridge{
		wrapper: wrapper,
		saver:   saver,
		busy:    make(map[string]*Run),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Submit starts a query for sess in the background. It fails with ErrBusy when
// sess already has a run in flight. Until the returned run is done the bridge
// is the only writer of sess; use Run.Session for a consistent snapshot and
// Edit for user changes. The caller must drain Run.Updates or cancel the run.
func (b *Bridge) Submit(ctx context.Context, sess *session.Session, req Request) (*Run, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, agent.ErrEmptyPrompt
	}

	b.mu.Lock()
	if _, ok := b.busy[sess.ID]; ok {
		b.mu.Unlock()
		return nil, ErrBusy
	}
	runCtx, stop := context.WithCancel(ctx)
	run := &Run{
		ID:        uuid.New().String(),
		SessionID: sess.ID,
		Prompt:    req.Prompt,
		bridge:    b,
		sess:      sess,
		updates:   make(chan Update),
		cancelCh:  make(chan struct{}),
		done:      make(chan struct{}),
		stop:      stop,
		started:   session.Now(),
	}
	b.busy[sess.ID] = run
	b.wg.Add(1)
	b.mu.Unlock()

	if req.Configure != nil {
		run.mu.Lock()
		cfg, err := req.Configure(sess)
		run.mu.Unlock()
		if err != nil {
			stop()
			b.release(run)
			b.wg.Done()
			return nil, err
		}
		req.Config = cfg
	}

	go run.loop(runCtx, req)
	return run, nil
}

// Busy reports whether sessionID has a run in flight.
func (b *Bridge) Busy(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.busy[sessionID]
	return ok
}

// Active returns the in-flight run for sessionID, or nil.
func (b *Bridge) Active(sessionID string) *Run {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.busy[sessionID]
}

func (b *Bridge) release(r *Run) {
	b.mu.Lock()
	if b.busy[r.SessionID] == r {
		delete(b.busy, r.SessionID)
	}
	b.mu.Unlock()
}

// Edit applies a user change to sess and saves it. While a run is in flight
// for sess the change is applied under that run's lock.
func (b *Bridge) Edit(sess *session.Session, fn func(*session.Session)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if run := b.busy[sess.ID]; run != nil {
		run.mu.Lock()
		defer run.mu.Unlock()
	}
	fn(sess)
	return b.saver.Save(sess)
}

// OnSettingsChanged registers fn to be called after UpdateSettings succeeds.
func (b *Bridge) OnSettingsChanged(fn func(*session.Session)) {
	b.mu.Lock()
	b.hooks = append(b.hooks, fn)
	b.mu.Unlock()
}

// UpdateSettings changes the settings of an idle session, saves it and
// notifies OnSettingsChanged subscribers. It fails with ErrBusy while a run is
// in flight.
func (b *Bridge) UpdateSettings(sess *session.Session, fn func(*session.Settings)) error {
	b.mu.Lock()
	if _, ok := b.busy[sess.ID]; ok {
		b.mu.Unlock()
		return ErrBusy
	}
	sess.UpdateSettings(fn)
	err := b.saver.Save(sess)
	hooks := append([]func(*session.Session){}, b.hooks...)
	b.mu.Unlock()
	if err != nil {
		return err
	}
	for _, h := range hooks {
		h(sess)
	}
	return nil
}

// Shutdown cancels every in-flight run and waits for them to finish or for
// ctx to end.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	runs := make([]*Run, 0, len(b.busy))
	for _, r := range b.busy {
		runs = append(runs, r)
	}
	b.mu.Unlock()
	for _, r := range runs {
		r.Cancel()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
