package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berth-dev/skiff/internal/session"
)

func TestParseLine_Assistant(t *testing.T) {
	line := []byte(`{"type":"assistant","message":{"id":"msg_1","content":[
		{"type":"thinking","thinking":"hmm"},
		{"type":"text","text":"Here are the files..."},
		{"type":"tool_use","id":"tu_1","name":"list_directory","input":{ "path" : "." }}
	]},"session_id":"s-1"}`)

	events, err := ParseLine(line)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, TextEvent{Text: "Here are the files..."}, events[0])
	assert.Equal(t, ToolUseEvent{ID: "tu_1", Name: "list_directory", Input: json.RawMessage(`{"path":"."}`)}, events[1])
}

func TestParseLine_ToolResultContentShapes(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"string", `"a.txt\nb.txt"`, "a.txt\nb.txt"},
		{"text blocks", `[{"type":"text","text":"a.txt"},{"type":"text","text":"b.txt"}]`, "a.txt\nb.txt"},
		{"bare strings", `["a.txt","b.txt"]`, "a.txt\nb.txt"},
		{"null", `null`, ""},
		{"object", `{"files": 2}`, `{"files":2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := []byte(`{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"tu_1","content":` + tt.content + `}]}}`)
			events, err := ParseLine(line)
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, ToolResultEvent{ToolUseID: "tu_1", Output: tt.want}, events[0])
		})
	}
}

func TestParseLine_UserEchoIgnored(t *testing.T) {
	events, err := ParseLine([]byte(`{"type":"user","message":{"role":"user","content":"list files"}}`))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestParseLine_Result(t *testing.T) {
	tests := []struct {
		name string
		line string
		want ResultEvent
	}{
		{
			name: "total cost",
			line: `{"type":"result","subtype":"success","result":"done","total_cost_usd":0.002,"num_turns":1,"duration_ms":900,"session_id":"s-1","usage":{"input_tokens":100,"output_tokens":20}}`,
			want: ResultEvent{Subtype: "success", Result: "done", CostUSD: 0.002, NumTurns: 1, DurationMS: 900, SessionID: "s-1", Tokens: 120},
		},
		{
			name: "legacy cost field",
			line: `{"type":"result","subtype":"success","cost_usd":0.042,"num_turns":3}`,
			want: ResultEvent{Subtype: "success", CostUSD: 0.042, NumTurns: 3},
		},
		{
			name: "error result",
			line: `{"type":"result","subtype":"error_max_turns","is_error":true,"total_cost_usd":0.5,"cost_usd":0.1}`,
			want: ResultEvent{Subtype: "error_max_turns", IsError: true, CostUSD: 0.5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := ParseLine([]byte(tt.line))
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, tt.want, events[0])
		})
	}
}

func TestParseLine_SystemAndUnknown(t *testing.T) {
	events, err := ParseLine([]byte(`{"type":"system","subtype":"init","session_id":"s-9","tools":["Read"]}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	sys, ok := events[0].(SystemEvent)
	require.True(t, ok)
	assert.Equal(t, "init", sys.Subtype)
	assert.Equal(t, "s-9", sys.SessionID)

	events, err = ParseLine([]byte(`{"type":"telemetry","value":1}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, SubtypeUnknown, events[0].(SystemEvent).Subtype)

	events, err = ParseLine([]byte(`{"type":"assistant","message":{"content":[{"type":"image","source":{}}]}}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, SubtypeUnknown, events[0].(SystemEvent).Subtype)
}

func TestParseLine_Error(t *testing.T) {
	events, err := ParseLine([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	require.NoError(t, err)
	assert.Equal(t, []Event{ErrorEvent{Message: "Overloaded"}}, events)
}

func TestParseLine_Malformed(t *testing.T) {
	for _, line := range []string{`{"type":`, `not json`, `[1,2]`, `{"type":"assistant","message":{"content":[1,}}`} {
		_, err := ParseLine([]byte(line))
		assert.ErrorIs(t, err, ErrMalformedEvent, "line %q", line)
	}

	events, err := ParseLine([]byte("   \n"))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestToMessage(t *testing.T) {
	msg := ToMessage(ToolUseEvent{ID: "tu_1", Name: "Read", Input: json.RawMessage(`{}`)})
	assert.Equal(t, session.KindToolUse, msg.Kind)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())
	require.NotNil(t, msg.Tool)
	assert.Equal(t, "tu_1", msg.Tool.ToolUseID)

	msg = ToMessage(ResultEvent{Subtype: "success", CostUSD: 0.002, NumTurns: 1, SessionID: "s-1"})
	assert.Equal(t, session.KindResult, msg.Kind)
	require.NotNil(t, msg.Usage)
	assert.Equal(t, session.Usage{CostUSD: 0.002, Turns: 1, ResumeID: "s-1"}, *msg.Usage)

	msg = ToMessage(SystemEvent{Subtype: "init", SessionID: "s-2"})
	assert.Equal(t, session.KindSystem, msg.Kind)
	assert.Equal(t, "s-2", msg.Metadata["session_id"])

	msg = ToMessage(ErrorEvent{Message: "boom"})
	assert.Equal(t, session.KindSystem, msg.Kind)
	assert.Equal(t, "boom", msg.Content)

	msg = ToMessage(ToolResultEvent{ToolUseID: "tu_1", Output: "x", IsError: true})
	assert.Equal(t, session.KindToolResult, msg.Kind)
	assert.True(t, msg.Tool.IsError)
}

func TestToMessageCompactsToolInput(t *testing.T) {
	msg := ToMessage(ToolUseEvent{ID: "tu_1", Name: "Bash", Input: json.RawMessage("{\n  \"command\": \"ls -la\"\n}")})
	require.NotNil(t, msg.Tool)
	assert.Equal(t, `{"command":"ls -la"}`, string(msg.Tool.Input))
}
