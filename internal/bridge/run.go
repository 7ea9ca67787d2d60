package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/berth-dev/skiff/internal/agent"
	"github.com/berth-dev/skiff/internal/log"
	"github.com/berth-dev/skiff/internal/session"
)

// State is the lifecycle state of a run.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return "idle"
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Update is one message relayed to the consumer.
type Update struct {
	RunID     string
	SessionID string
	Message   session.Message
}

// Outcome summarises a finished run.
type Outcome struct {
	RunID     string
	SessionID string
	Prompt    string
	State     State
	Err       error // nil on completion, agent.ErrCancelled on cancel
	SaveErr   error
	Messages  int // messages delivered and applied
	CostUSD   float64
	Turns     int
	Tokens    int
	Started   time.Time
	Finished  time.Time
}

// Duration is the wall time of the run.
func (o Outcome) Duration() time.Duration {
	return o.Finished.Sub(o.Started)
}

// Run is one in-flight query.
type Run struct {
	ID        string
	SessionID string
	Prompt    string

	bridge *Bridge
	stop   context.CancelFunc

	mu        sync.Mutex // guards sess and the counters below while running
	sess      *session.Session
	delivered int
	usage     session.Usage

	updates    chan Update
	cancelCh   chan struct{}
	cancelOnce sync.Once
	cancelled  atomic.Bool
	done       chan struct{}
	finishOnce sync.Once
	outcome    Outcome
	started    time.Time
}

// Updates delivers messages in arrival order. It is closed after the run
// reaches a terminal state and the session has been saved.
func (r *Run) Updates() <-chan Update { return r.updates }

// Done is closed when the run has finished.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run finishes and returns its outcome. Updates must be
// drained concurrently or the run cancelled.
func (r *Run) Wait() Outcome {
	<-r.done
	return r.outcome
}

// State returns StateRunning until the run is done, then its terminal state.
func (r *Run) State() State {
	select {
	case <-r.done:
		return r.outcome.State
	default:
		return StateRunning
	}
}

// Cancel asks the run to stop at the next event boundary. It is safe to call
// more than once and after the run has finished.
func (r *Run) Cancel() {
	r.cancelOnce.Do(func() {
		r.cancelled.Store(true)
		close(r.cancelCh)
		r.stop()
	})
}

// Session returns a snapshot of the session as of the last applied message.
func (r *Run) Session() *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess.Clone()
}

func (r *Run) loop(ctx context.Context, req Request) {
	defer r.bridge.wg.Done()
	defer r.stop()
	defer log.RecoverPanic("bridge-run", func() {
		r.finish(StateFailed, errors.New("internal error: run panicked"))
	})

	if req.Prepare != nil {
		func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			req.Prepare(r.sess)
		}()
	}
	slog.Info("Run started", "run", r.ID, "session", r.SessionID, "mode", req.Config.PermissionMode)

	stream, err := r.bridge.wrapper.Query(ctx, req.Prompt, req.Config)
	if err != nil {
		r.finish(r.classify(err))
		return
	}
	defer stream.Close()

	for {
		if r.cancelled.Load() {
			r.finish(StateCancelled, agent.ErrCancelled)
			return
		}
		msg, err := stream.Next()
		if err != nil {
			r.finish(r.classify(err))
			return
		}
		if r.cancelled.Load() {
			r.finish(StateCancelled, agent.ErrCancelled)
			return
		}

		msg = r.normalize(msg)
		select {
		case r.updates <- Update{RunID: r.ID, SessionID: r.SessionID, Message: msg}:
		case <-r.cancelCh:
			r.finish(StateCancelled, agent.ErrCancelled)
			return
		}
		r.apply(msg)
		if msg.Kind == session.KindResult {
			r.finish(StateCompleted, nil)
			return
		}
	}
}

func (r *Run) classify(err error) (State, error) {
	switch {
	case errors.Is(err, io.EOF):
		return StateCompleted, nil
	case r.cancelled.Load() || errors.Is(err, agent.ErrCancelled):
		return StateCancelled, agent.ErrCancelled
	}
	return StateFailed, err
}

// normalize degrades a tool result that references no known tool use into a
// system message, so it can always be appended.
func (r *Run) normalize(msg session.Message) session.Message {
	if msg.Kind != session.KindToolResult {
		return msg
	}
	toolUseID := ""
	if msg.Tool != nil {
		toolUseID = msg.Tool.ToolUseID
	}
	r.mu.Lock()
	known := toolUseID != "" && r.sess.HasToolUse(toolUseID)
	r.mu.Unlock()
	if known {
		return msg
	}
	slog.Warn("Tool result without matching tool use", "run", r.ID, "tool_use_id", toolUseID)
	msg.Kind = session.KindSystem
	msg.Metadata = map[string]any{"original_kind": string(session.KindToolResult), "tool_use_id": toolUseID}
	msg.Tool = nil
	return msg
}

func (r *Run) apply(msg session.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.sess.Append(msg); err != nil {
		slog.Error("Dropping message", "run", r.ID, "kind", msg.Kind, "error", err)
		return
	}
	r.delivered++

	switch msg.Kind {
	case session.KindResult:
		if msg.Usage != nil {
			r.sess.ApplyUsage(*msg.Usage)
			r.usage = *msg.Usage
		}
	case session.KindSystem:
		if sid, ok := msg.Metadata["session_id"].(string); ok {
			r.sess.SetResumeID(sid)
		}
	}
}

// finish saves the session, records the run, releases the busy flag and
// closes the run's channels, in that order. Only the first call has effect.
func (r *Run) finish(state State, err error) {
	r.finishOnce.Do(func() { r.finalize(state, err) })
}

func (r *Run) finalize(state State, err error) {
	r.mu.Lock()
	out := Outcome{
		RunID:     r.ID,
		SessionID: r.SessionID,
		Prompt:    r.Prompt,
		State:     state,
		Err:       err,
		Messages:  r.delivered,
		CostUSD:   r.usage.CostUSD,
		Turns:     r.usage.Turns,
		Tokens:    r.usage.Tokens,
		Started:   r.started,
		Finished:  session.Now(),
	}
	if r.bridge.saver != nil {
		if saveErr := r.bridge.saver.Save(r.sess); saveErr != nil {
			out.SaveErr = fmt.Errorf("save session %s: %w", r.SessionID, saveErr)
		}
	}
	r.mu.Unlock()

	if out.SaveErr != nil {
		slog.Error("Saving session after run failed", "run", r.ID, "session", r.SessionID, "error", out.SaveErr)
	}
	if r.bridge.recorder != nil {
		if recErr := r.bridge.recorder.Record(out); recErr != nil {
			slog.Warn("Recording run failed", "run", r.ID, "error", recErr)
		}
	}

	r.bridge.release(r)
	r.outcome = out
	close(r.updates)
	close(r.done)

	slog.Info("Run finished",
		"run", r.ID,
		"session", r.SessionID,
		"state", state.String(),
		"messages", out.Messages,
		"cost_usd", out.CostUSD,
		"duration", out.Duration(),
		"error", err,
	)
}
