package agent

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildArgs(t *testing.T) {
	args := buildArgs("list files", QueryConfig{})
	assert.Equal(t, []string{"-p", "list files", "--output-format", "stream-json", "--verbose"}, args)

	args = buildArgs("fix it", QueryConfig{
		PermissionMode:  ModeAcceptEdits,
		AllowedTools:    []string{"Read", "Edit"},
		DisallowedTools: []string{"Bash"},
		SystemPrompt:    "<rules></rules>",
		Model:           "sonnet",
		MaxTurns:        5,
		ResumeID:        "s-1",
	})
	assert.Equal(t, []string{
		"-p", "fix it",
		"--output-format", "stream-json",
		"--verbose",
		"--permission-mode", "acceptEdits",
		"--allowedTools", "Read,Edit",
		"--disallowedTools", "Bash",
		"--append-system-prompt", "<rules></rules>",
		"--model", "sonnet",
		"--max-turns", "5",
		"--resume", "s-1",
	}, args)
}

// fakeClaude writes an executable shell script that prints body to stdout.
func fakeClaude(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script backend needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "claude")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func TestCLI_StreamsEvents(t *testing.T) {
	bin := fakeClaude(t, `cat <<'EOF'
{"type":"system","subtype":"init","session_id":"s-1"}
{"type":"assistant","message":{"content":[{"type":"text","text":"Here are the files..."}]}}
this line is garbage
{"type":"result","subtype":"success","total_cost_usd":0.002,"num_turns":1,"session_id":"s-1"}
EOF
`)
	stream, err := NewWrapper(&CLI{Binary: bin}).Query(context.Background(), "list files", QueryConfig{})
	require.NoError(t, err)

	msgs, err := drain(t, stream)
	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, msgs, 3)
	assert.Equal(t, "Here are the files...", msgs[1].Content)
	assert.Equal(t, "s-1", msgs[2].Usage.ResumeID)
	assert.Equal(t, 1, stream.Skipped())
}

func TestCLI_NonZeroExit(t *testing.T) {
	bin := fakeClaude(t, `echo '{"type":"assistant","message":{"content":[{"type":"text","text":"partial"}]}}'
echo "auth failed" >&2
exit 3
`)
	stream, err := NewWrapper(&CLI{Binary: bin}).Query(context.Background(), "hi", QueryConfig{})
	require.NoError(t, err)

	msgs, err := drain(t, stream)
	assert.Len(t, msgs, 1)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "auth failed")
}

func TestCLI_MissingBinary(t *testing.T) {
	_, err := NewWrapper(&CLI{Binary: filepath.Join(t.TempDir(), "nope")}).Query(context.Background(), "hi", QueryConfig{})
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestCLI_Timeout(t *testing.T) {
	bin := fakeClaude(t, "exec sleep 5\n")
	stream, err := NewWrapper(&CLI{Binary: bin, Timeout: 100 * time.Millisecond}).Query(context.Background(), "hi", QueryConfig{})
	require.NoError(t, err)

	_, err = stream.Next()
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "timed out")
}

func TestCLI_Cancel(t *testing.T) {
	bin := fakeClaude(t, `echo '{"type":"assistant","message":{"content":[{"type":"text","text":"one"}]}}'
exec sleep 5
`)
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := NewWrapper(&CLI{Binary: bin}).Query(ctx, "hi", QueryConfig{})
	require.NoError(t, err)

	_, err = stream.Next()
	require.NoError(t, err)
	cancel()
	_, err = stream.Next()
	assert.ErrorIs(t, err, ErrCancelled)
}
