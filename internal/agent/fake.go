package agent

import (
	"context"
	"io"
	"sync"
	"time"
)

// Fake is a scripted Backend. Each Start replays Events (or the result of
// Script, when set) with an optional Delay before every event.
type Fake struct {
	Events   []Event
	Script   func(prompt string, cfg QueryConfig) []Event
	Delay    time.Duration
	StartErr error           // returned by Start
	Err      error           // returned instead of io.EOF once events run out
	Hold     <-chan struct{} // when set, the first event waits until Hold is closed

	mu    sync.Mutex
	calls []FakeCall
}

// FakeCall records one Start invocation.
type FakeCall struct {
	Prompt string
	Config QueryConfig
}

// Start implements Backend.
func (f *Fake) Start(ctx context.Context, prompt string, cfg QueryConfig) (EventStream, error) {
	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{Prompt: prompt, Config: cfg.Clone()})
	f.mu.Unlock()
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	events := f.Events
	if f.Script != nil {
		events = f.Script(prompt, cfg)
	}
	return &fakeStream{ctx: ctx, events: events, delay: f.Delay, hold: f.Hold, err: f.Err}, nil
}

// Calls returns the Start invocations seen so far.
func (f *Fake) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCall(nil), f.calls...)
}

// Echo returns a Fake that answers every prompt with a short canned reply.
// It backs the --dry-run flag.
func Echo() *Fake {
	return &Fake{
		Delay: 50 * time.Millisecond,
		Script: func(prompt string, cfg QueryConfig) []Event {
			return []Event{
				TextEvent{Text: "(dry run) " + prompt},
				ResultEvent{Subtype: "success", Result: "(dry run) " + prompt, NumTurns: 1, SessionID: cfg.ResumeID},
			}
		},
	}
}

type fakeStream struct {
	ctx    context.Context
	events []Event
	delay  time.Duration
	hold   <-chan struct{}
	err    error
	pos    int
}

func (s *fakeStream) Next() (Event, error) {
	if s.hold != nil {
		select {
		case <-s.hold:
			s.hold = nil
		case <-s.ctx.Done():
			return nil, ErrCancelled
		}
	}
	if s.pos >= len(s.events) {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-s.ctx.Done():
			return nil, ErrCancelled
		}
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

func (s *fakeStream) Close() error { return nil }
