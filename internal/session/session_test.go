package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAssignsIdentityAndDefaults(t *testing.T) {
	s := New("", Settings{})
	assert.NotEmpty(t, s.ID)
	assert.Contains(t, s.Title, "Conversation ")
	assert.Equal(t, s.CreatedAt, s.UpdatedAt)
	assert.NotNil(t, s.Messages)
	assert.NotNil(t, s.Subtasks)

	other := New("named", Settings{})
	assert.NotEqual(t, s.ID, other.ID)
	assert.Equal(t, "named", other.Title)
}

func TestAppendRejectsOrphanToolResult(t *testing.T) {
	s := New("t", Settings{})

	err := s.Append(Message{Kind: KindToolResult, Tool: &ToolPayload{ToolUseID: "missing"}})
	require.ErrorIs(t, err, ErrOrphanToolResult)
	assert.Empty(t, s.Messages)

	require.NoError(t, s.Append(Message{Kind: KindToolUse, Tool: &ToolPayload{ToolUseID: "tu_1", Name: "Read"}}))
	require.NoError(t, s.Append(Message{Kind: KindToolResult, Tool: &ToolPayload{ToolUseID: "tu_1", Output: "ok"}}))
	assert.Len(t, s.Messages, 2)
}

func TestAppendCompactsToolInput(t *testing.T) {
	s := New("t", Settings{})
	payload := &ToolPayload{ToolUseID: "tu_1", Name: "Bash", Input: json.RawMessage(`{ "command" : "ls" }`)}
	require.NoError(t, s.Append(Message{Kind: KindToolUse, Content: "Bash", Tool: payload}))

	assert.Equal(t, `{"command":"ls"}`, string(s.Messages[0].Tool.Input))
	assert.Equal(t, `{ "command" : "ls" }`, string(payload.Input), "caller's payload is left alone")

	data, err := Marshal(s)
	require.NoError(t, err)
	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, s.Messages, got.Messages)
}

func TestAppendRejectsUnknownKind(t *testing.T) {
	s := New("t", Settings{})
	assert.Error(t, s.Append(Message{Kind: "bogus"}))
}

func TestAppendKeepsArrivalOrder(t *testing.T) {
	s := New("t", Settings{})
	later := Now().Add(time.Hour)
	require.NoError(t, s.Append(Message{Kind: KindAssistant, Content: "first", Timestamp: later}))
	require.NoError(t, s.Append(Message{Kind: KindAssistant, Content: "second", Timestamp: later.Add(-time.Minute)}))

	require.Len(t, s.Messages, 2)
	assert.Equal(t, later, s.Messages[1].Timestamp)
	assert.NotEmpty(t, s.Messages[0].ID)
}

func TestMutationsAdvanceUpdatedAt(t *testing.T) {
	s := New("t", Settings{})
	steps := []func(){
		func() { s.AddUserPrompt("hi") },
		func() { s.ApplyUsage(Usage{CostUSD: 0.1, Turns: 1}) },
		func() { s.SetTitle("renamed") },
		func() { s.UpdateSettings(func(st *Settings) { st.PermissionMode = "plan" }) },
		func() { s.SetResumeID("r-1") },
		func() { s.AddSubtask("x", "", PriorityNormal) },
	}
	prev := s.UpdatedAt
	for i, step := range steps {
		step()
		assert.True(t, s.UpdatedAt.After(prev), "step %d did not advance updated_at", i)
		prev = s.UpdatedAt
	}
}

func TestApplyUsageNeverDecreasesTotals(t *testing.T) {
	s := New("t", Settings{})
	s.ApplyUsage(Usage{CostUSD: 0.25, Turns: 2, Tokens: 100, ResumeID: "a"})
	s.ApplyUsage(Usage{CostUSD: -1, Turns: -5, Tokens: -10})

	assert.InDelta(t, 0.25, s.TotalCost, 1e-9)
	assert.Equal(t, 2, s.TotalTurns)
	assert.Equal(t, 100, s.TotalTokens)
	assert.Equal(t, "a", s.ResumeID, "empty resume id keeps the previous handle")
}

func TestCloneIsDeep(t *testing.T) {
	s := New("t", Settings{AllowedTools: []string{"Read"}})
	require.NoError(t, s.Append(Message{Kind: KindToolUse, Tool: &ToolPayload{ToolUseID: "1", Input: json.RawMessage(`{}`)}}))
	s.AddSubtask("a", "", PriorityHigh)

	c := s.Clone()
	c.Messages[0].Tool.Name = "changed"
	c.Settings.AllowedTools[0] = "Bash"
	_, err := c.ToggleSubtask(c.Subtasks[0].ID)
	require.NoError(t, err)

	assert.Empty(t, s.Messages[0].Tool.Name)
	assert.Equal(t, "Read", s.Settings.AllowedTools[0])
	assert.False(t, s.Subtasks[0].Completed)
}

func TestSummaryIsProjection(t *testing.T) {
	s := New("summary", Settings{})
	s.AddUserPrompt("one")
	s.AddUserPrompt("two")
	s.ApplyUsage(Usage{CostUSD: 0.5, Turns: 3})

	sum := s.Summary()
	assert.Equal(t, s.ID, sum.ID)
	assert.Equal(t, "summary", sum.Title)
	assert.Equal(t, 2, sum.MessageCount)
	assert.Equal(t, s.UpdatedAt, sum.UpdatedAt)
	assert.Equal(t, 3, sum.TotalTurns)
}

func TestLastAssistantText(t *testing.T) {
	s := New("t", Settings{})
	assert.Empty(t, s.LastAssistantText())
	require.NoError(t, s.Append(Message{Kind: KindAssistant, Content: "one"}))
	require.NoError(t, s.Append(Message{Kind: KindAssistant, Content: "two"}))
	s.AddUserPrompt("three")
	assert.Equal(t, "two", s.LastAssistantText())
}
