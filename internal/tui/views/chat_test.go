package views

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/berth-dev/skiff/internal/bridge"
	"github.com/berth-dev/skiff/internal/session"
	"github.com/berth-dev/skiff/internal/testutil"
)

func TestFormatTranscript_Empty(t *testing.T) {
	got := FormatTranscript(nil, nil)
	if !strings.Contains(got, "No messages yet") {
		t.Errorf("empty transcript should show placeholder, got %q", got)
	}
}

func TestFormatTranscript_Kinds(t *testing.T) {
	msgs := []session.Message{
		{Kind: session.KindUser, Content: "list files"},
		{Kind: session.KindAssistant, Content: "I'll list the files."},
		{Kind: session.KindToolUse, Content: "Bash", Tool: &session.ToolPayload{ToolUseID: "tu_1", Name: "Bash", Input: []byte(`{"command":"ls"}`)}},
		{Kind: session.KindToolResult, Content: "a.go\nb.go", Tool: &session.ToolPayload{ToolUseID: "tu_1"}},
		{Kind: session.KindResult, Content: "Two files.", Usage: &session.Usage{CostUSD: 0.002, Turns: 1, Tokens: 1234}},
		{Kind: session.KindSystem, Content: "init"},
	}
	got := FormatTranscript(msgs, nil)

	for _, want := range []string{
		"You: ", "list files",
		"Claude:", "I'll list the files.",
		"Bash", `{"command":"ls"}`,
		"a.go", "b.go",
		"$0.0020", "1 turns", "1,234 tokens",
		"init",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("transcript missing %q:\n%s", want, got)
		}
	}
}

func TestFormatTranscript_UsesRenderer(t *testing.T) {
	msgs := []session.Message{{ID: "m1", Kind: session.KindAssistant, Content: "**bold**"}}
	got := FormatTranscript(msgs, func(m session.Message) string { return "<" + m.Content + ">" })
	if !strings.Contains(got, "<**bold**>") {
		t.Errorf("renderer output not used: %q", got)
	}
}

func TestTruncateLines(t *testing.T) {
	in := strings.Repeat("line\n", 12)
	got := truncateLines(in, 8)
	if strings.Count(got, "line") != 8 {
		t.Errorf("expected 8 lines kept, got %q", got)
	}
	if !strings.HasSuffix(got, "… 4 more lines") {
		t.Errorf("missing overflow marker: %q", got)
	}
	if truncateLines("a\nb", 8) != "a\nb" {
		t.Error("short output should be unchanged")
	}
}

func TestChatModel_StreamsUpdates(t *testing.T) {
	sess := session.New("Test", session.Settings{PermissionMode: "default"})
	m := NewChatModel(sess, "dark", 80, 30)

	m.AddPrompt("list files")
	m.AddUpdates([]bridge.Update{
		{Message: session.Message{ID: "a1", Kind: session.KindAssistant, Content: "first"}},
		{Message: session.Message{ID: "a2", Kind: session.KindAssistant, Content: "second"}},
	})

	if got := m.LastAssistantText(); got != "second" {
		t.Errorf("LastAssistantText = %q, want %q", got, "second")
	}
	if len(m.messages) != 3 {
		t.Errorf("expected 3 messages shown, got %d", len(m.messages))
	}
	if len(sess.Messages) != 0 {
		t.Error("the view must not write to the session")
	}
}

func TestChatModel_EnterSubmits(t *testing.T) {
	m := NewChatModel(session.New("", session.Settings{}), "dark", 80, 30)
	m.textarea.SetValue("  hello  ")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected a command on enter")
	}
	msg, ok := cmd().(SendChatMsg)
	if !ok || msg.Content != "hello" {
		t.Errorf("expected SendChatMsg{hello}, got %#v", msg)
	}
	if m.textarea.Value() != "" {
		t.Error("textarea should be cleared after submit")
	}
}

func TestChatModel_EnterIgnoredWhileLoading(t *testing.T) {
	m := NewChatModel(session.New("", session.Settings{}), "dark", 80, 30)
	m.SetLoading(true)
	m.textarea.SetValue("hello")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		if _, ok := cmd().(SendChatMsg); ok {
			t.Error("must not submit while a query is running")
		}
	}
}

func TestChatModel_SetSessionReplacesTranscript(t *testing.T) {
	m := NewChatModel(session.New("", session.Settings{}), "dark", 80, 30)
	m.AddPrompt("stale")

	sess := testutil.Conversation(t, "Files", "list files", testutil.ListFiles())
	m.SetSession(sess)

	if len(m.messages) != len(sess.Messages) {
		t.Fatalf("expected %d messages, got %d", len(sess.Messages), len(m.messages))
	}
	if got := m.LastAssistantText(); got != "I'll list the files." {
		t.Errorf("LastAssistantText = %q", got)
	}
	m.messages[0].Content = "edited"
	if sess.Messages[0].Content != "list files" {
		t.Error("the view must keep its own copy of the transcript")
	}
}
