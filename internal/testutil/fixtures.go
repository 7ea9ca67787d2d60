// Package testutil provides test helper utilities for skiff tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/berth-dev/skiff/internal/agent"
	"github.com/berth-dev/skiff/internal/session"
)

// TempFiles creates a temporary directory with the given files and returns its path.
// Files is a map of relative path -> content. Directories are created as needed.
func TempFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	for relPath, content := range files {
		absPath := filepath.Join(dir, relPath)
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			t.Fatalf("creating directory for %s: %v", relPath, err)
		}
		if err := os.WriteFile(absPath, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", relPath, err)
		}
	}

	return dir
}

// ListFiles is a short scripted query: text, one tool round trip and a
// successful result with backend session id "claude-1".
func ListFiles() []agent.Event {
	return []agent.Event{
		agent.TextEvent{Text: "I'll list the files."},
		agent.ToolUseEvent{ID: "tu_1", Name: "Bash", Input: []byte(`{"command":"ls"}`)},
		agent.ToolResultEvent{ToolUseID: "tu_1", Output: "a.go\nb.go"},
		agent.ResultEvent{Subtype: "success", Result: "Two files.", CostUSD: 0.002, NumTurns: 1, SessionID: "claude-1"},
	}
}

// TestsRule is a rules document with a single enabled constraint.
const TestsRule = `<rules><rule type="constraint"><name>tests</name><content>Run the tests.</content></rule></rules>`

// Conversation returns a session holding one prompt and the messages
// produced by events, as if the query had completed.
func Conversation(t *testing.T, title, prompt string, events []agent.Event) *session.Session {
	t.Helper()
	sess := session.New(title, session.Settings{PermissionMode: "default"})
	sess.AddUserPrompt(prompt)
	for _, ev := range events {
		msg := agent.ToMessage(ev)
		if err := sess.Append(msg); err != nil {
			t.Fatalf("appending %s message: %v", msg.Kind, err)
		}
		if msg.Usage != nil {
			sess.ApplyUsage(*msg.Usage)
		}
	}
	return sess
}
