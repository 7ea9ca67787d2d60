package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Backend starts a streaming query against the assistant.
type Backend interface {
	Start(ctx context.Context, prompt string, cfg QueryConfig) (EventStream, error)
}

// EventStream yields backend events in order. Next returns io.EOF after the
// last event. Close releases the underlying process and is safe to call more
// than once.
type EventStream interface {
	Next() (Event, error)
	Close() error
}

// DefaultBinary is the executable used when CLI.Binary is empty.
const DefaultBinary = "claude"

// maxLineSize bounds a single stream-json line.
const maxLineSize = 10 * 1024 * 1024

// closeGrace is how long Close waits for the process before killing it.
const closeGrace = 2 * time.Second

// stderrTail is how much of the process's stderr is kept for error reports.
const stderrTail = 4096

// CLI runs queries through the claude command line tool.
type CLI struct {
	Binary  string        // defaults to DefaultBinary
	Timeout time.Duration // zero disables the per-query timeout
}

// Start spawns the CLI for one prompt and returns a stream over its stdout.
func (c *CLI) Start(ctx context.Context, prompt string, cfg QueryConfig) (EventStream, error) {
	bin := c.Binary
	if bin == "" {
		bin = DefaultBinary
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if c.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	cmd := exec.CommandContext(runCtx, path, buildArgs(prompt, cfg)...)
	cmd.Dir = cfg.WorkDir
	cmd.WaitDelay = 5 * time.Second
	stderr := &tailBuffer{max: stderrTail}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrBackendUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: starting %s: %v", ErrBackendUnavailable, bin, err)
	}
	slog.Debug("Started claude", "pid", cmd.Process.Pid, "dir", cfg.WorkDir, "mode", cfg.PermissionMode, "resume", cfg.ResumeID)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &cliStream{
		ctx:     runCtx,
		cancel:  cancel,
		cmd:     cmd,
		scanner: scanner,
		stderr:  stderr,
		timeout: c.Timeout,
	}, nil
}

// buildArgs constructs the CLI argument slice for a streaming query.
func buildArgs(prompt string, cfg QueryConfig) []string {
	args := []string{
		"-p", prompt,
		"--output-format", "stream-json",
		"--verbose",
	}
	if cfg.PermissionMode != "" && cfg.PermissionMode != ModeDefault {
		args = append(args, "--permission-mode", string(cfg.PermissionMode))
	}
	if len(cfg.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(cfg.AllowedTools, ","))
	}
	if len(cfg.DisallowedTools) > 0 {
		args = append(args, "--disallowedTools", strings.Join(cfg.DisallowedTools, ","))
	}
	if cfg.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", cfg.SystemPrompt)
	}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	if cfg.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(cfg.MaxTurns))
	}
	if cfg.ResumeID != "" {
		args = append(args, "--resume", cfg.ResumeID)
	}
	return args
}

type cliStream struct {
	ctx     context.Context
	cancel  context.CancelFunc
	cmd     *exec.Cmd
	scanner *bufio.Scanner
	stderr  *tailBuffer
	timeout time.Duration

	pending []Event
	err     error // terminal error once the process has exited
	waitOne sync.Once
}

func (s *cliStream) Next() (Event, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if s.err != nil {
			return nil, s.err
		}
		if !s.scanner.Scan() {
			s.err = s.finish(s.scanner.Err())
			continue
		}
		events, err := ParseLine(s.scanner.Bytes())
		if err != nil {
			return nil, err
		}
		s.pending = append(s.pending, events...)
	}
}

// finish waits for the process and classifies how it ended.
func (s *cliStream) finish(scanErr error) error {
	waitErr := s.wait()
	switch {
	case errors.Is(s.ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: claude timed out after %s", ErrBackendUnavailable, s.timeout)
	case s.ctx.Err() != nil:
		return ErrCancelled
	case scanErr != nil:
		return fmt.Errorf("%w: reading output: %v", ErrBackendUnavailable, scanErr)
	case waitErr != nil:
		return fmt.Errorf("%w: claude exited with error: %v\nstderr: %s", ErrBackendUnavailable, waitErr, s.stderr.String())
	}
	return io.EOF
}

func (s *cliStream) wait() error {
	var err error
	s.waitOne.Do(func() {
		err = s.cmd.Wait()
		s.cancel()
	})
	return err
}

// Close lets a process that already produced its result exit on its own,
// killing it after closeGrace.
func (s *cliStream) Close() error {
	done := make(chan struct{})
	go func() {
		_ = s.wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeGrace):
		s.cancel()
		<-done
	}
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
