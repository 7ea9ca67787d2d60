package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berth-dev/skiff/internal/session"
)

func listFilesEvents() []Event {
	return []Event{
		TextEvent{Text: "Here are the files..."},
		ToolUseEvent{ID: "tu_1", Name: "list_directory", Input: []byte(`{"path":"."}`)},
		ToolResultEvent{ToolUseID: "tu_1", Output: "a.txt\nb.txt"},
		ResultEvent{Subtype: "success", CostUSD: 0.002, NumTurns: 1, SessionID: "s-1"},
	}
}

func drain(t *testing.T, s *Stream) ([]session.Message, error) {
	t.Helper()
	var out []session.Message
	for {
		msg, err := s.Next()
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}
}

func TestQuery_OrderedAndTerminatesWithResult(t *testing.T) {
	w := NewWrapper(&Fake{Events: listFilesEvents()})
	stream, err := w.Query(context.Background(), "list files", QueryConfig{})
	require.NoError(t, err)

	msgs, err := drain(t, stream)
	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, msgs, 4)
	kinds := []session.Kind{msgs[0].Kind, msgs[1].Kind, msgs[2].Kind, msgs[3].Kind}
	assert.Equal(t, []session.Kind{session.KindAssistant, session.KindToolUse, session.KindToolResult, session.KindResult}, kinds)
	assert.InDelta(t, 0.002, msgs[3].Usage.CostUSD, 1e-12)

	// Stays ended.
	_, err = stream.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestQuery_StopsAtFirstResult(t *testing.T) {
	events := append(listFilesEvents(), TextEvent{Text: "trailing"})
	stream, err := NewWrapper(&Fake{Events: events}).Query(context.Background(), "x", QueryConfig{})
	require.NoError(t, err)

	msgs, err := drain(t, stream)
	assert.ErrorIs(t, err, io.EOF)
	assert.Len(t, msgs, 4)
}

func TestQuery_EmptyPrompt(t *testing.T) {
	fake := &Fake{}
	_, err := NewWrapper(fake).Query(context.Background(), "  \n", QueryConfig{})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Empty(t, fake.Calls(), "backend must not be started")
}

func TestQuery_StartFailureIsUnavailable(t *testing.T) {
	fake := &Fake{StartErr: errors.New("exec: not found")}
	_, err := NewWrapper(fake).Query(context.Background(), "hi", QueryConfig{})
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestQuery_EndWithoutResultIsUnavailable(t *testing.T) {
	stream, err := NewWrapper(&Fake{Events: listFilesEvents()[:2]}).Query(context.Background(), "hi", QueryConfig{})
	require.NoError(t, err)

	msgs, err := drain(t, stream)
	assert.Len(t, msgs, 2)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestQuery_BackendErrorMidStream(t *testing.T) {
	fake := &Fake{Events: listFilesEvents()[:1], Err: errors.New("connection reset")}
	stream, err := NewWrapper(fake).Query(context.Background(), "hi", QueryConfig{})
	require.NoError(t, err)

	msgs, err := drain(t, stream)
	assert.Len(t, msgs, 1)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestQuery_SkipsMalformedEvents(t *testing.T) {
	stream, err := NewWrapper(&malformedBackend{}).Query(context.Background(), "hi", QueryConfig{})
	require.NoError(t, err)

	msgs, err := drain(t, stream)
	assert.ErrorIs(t, err, io.EOF)
	assert.Len(t, msgs, 2)
	assert.Equal(t, 2, stream.Skipped())
}

func TestQuery_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fake := &Fake{Events: listFilesEvents(), Delay: 20 * time.Millisecond}
	stream, err := NewWrapper(fake).Query(ctx, "hi", QueryConfig{})
	require.NoError(t, err)

	first, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, session.KindAssistant, first.Kind)

	cancel()
	_, err = stream.Next()
	assert.ErrorIs(t, err, ErrCancelled)
	assert.False(t, errors.Is(err, ErrBackendUnavailable))
}

func TestQuery_ConfigIsCopied(t *testing.T) {
	fake := &Fake{Events: listFilesEvents()}
	cfg := QueryConfig{AllowedTools: []string{"Read"}, PermissionMode: ModePlan}
	stream, err := NewWrapper(fake).Query(context.Background(), "hi", cfg)
	require.NoError(t, err)
	cfg.AllowedTools[0] = "Bash"
	_, _ = drain(t, stream)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"Read"}, calls[0].Config.AllowedTools)
	assert.Equal(t, ModePlan, calls[0].Config.PermissionMode)
}

// malformedBackend interleaves undecodable lines with valid events.
type malformedBackend struct{}

func (malformedBackend) Start(context.Context, string, QueryConfig) (EventStream, error) {
	return &malformedStream{}, nil
}

type malformedStream struct{ n int }

func (s *malformedStream) Next() (Event, error) {
	s.n++
	switch s.n {
	case 1, 3:
		return nil, fmt.Errorf("%w: bad line %d", ErrMalformedEvent, s.n)
	case 2:
		return TextEvent{Text: "ok"}, nil
	case 4:
		return ResultEvent{Subtype: "success"}, nil
	}
	return nil, io.EOF
}

func (s *malformedStream) Close() error { return nil }
