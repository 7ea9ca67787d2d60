package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/berth-dev/skiff/internal/session"
)

// Wrapper turns backend events into session messages for one query at a time.
type Wrapper struct {
	backend Backend
}

// NewWrapper returns a Wrapper over backend.
func NewWrapper(backend Backend) *Wrapper {
	return &Wrapper{backend: backend}
}

// Query starts a query and returns a lazy stream of its messages. The stream
// ends with exactly one KindResult message, or with an error wrapping
// ErrBackendUnavailable, or with ErrCancelled once ctx is done.
func (w *Wrapper) Query(ctx context.Context, prompt string, cfg QueryConfig) (*Stream, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}
	events, err := w.backend.Start(ctx, prompt, cfg.Clone())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		return nil, asUnavailable(err)
	}
	return &Stream{ctx: ctx, events: events}, nil
}

// Stream is the message sequence of one query. It is not safe for concurrent use.
type Stream struct {
	ctx     context.Context
	events  EventStream
	err     error
	skipped int
}

// Next returns the next message. After the result message it returns io.EOF;
// after a failure it keeps returning the same error.
func (s *Stream) Next() (session.Message, error) {
	for s.err == nil {
		if s.ctx.Err() != nil {
			s.end(ErrCancelled)
			break
		}
		ev, err := s.events.Next()
		if err != nil {
			switch {
			case s.ctx.Err() != nil || errors.Is(err, ErrCancelled):
				s.end(ErrCancelled)
			case errors.Is(err, ErrMalformedEvent):
				s.skipped++
				slog.Warn("Skipping malformed backend event", "error", err)
				continue
			case errors.Is(err, io.EOF):
				s.end(fmt.Errorf("%w: stream ended without a result", ErrBackendUnavailable))
			default:
				s.end(asUnavailable(err))
			}
			break
		}
		msg := ToMessage(ev)
		if _, ok := ev.(ResultEvent); ok {
			s.end(io.EOF)
		}
		return msg, nil
	}
	return session.Message{}, s.err
}

// Skipped reports how many malformed events were dropped.
func (s *Stream) Skipped() int {
	return s.skipped
}

// Close stops the query. It is safe to call after the stream has ended.
func (s *Stream) Close() error {
	if s.err == nil {
		s.end(ErrCancelled)
	}
	return nil
}

func (s *Stream) end(err error) {
	s.err = err
	_ = s.events.Close()
}

func asUnavailable(err error) error {
	if errors.Is(err, ErrBackendUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}
