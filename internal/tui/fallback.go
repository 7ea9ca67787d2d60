package tui

import (
	"errors"
	"io"
)

// ErrPromptRequired is returned when a prompt is required but not provided.
var ErrPromptRequired = errors.New("prompt required in non-interactive mode")

// FallbackRunner handles non-TTY execution by guiding users to CLI commands.
type FallbackRunner struct {
	out io.Writer
}

// NewFallbackRunner creates a new FallbackRunner writing to out.
func NewFallbackRunner(out io.Writer) *FallbackRunner {
	return &FallbackRunner{out: out}
}

// Run prints guidance for non-interactive use. It returns ErrPromptRequired
// when prompt is empty.
func (f *FallbackRunner) Run(prompt string) error {
	Fprintf(f.out, "Non-TTY environment detected.\n")
	if prompt == "" {
		Fprintf(f.out, "Use 'skiff ask <prompt>' to query without the interface.\n")
		return ErrPromptRequired
	}
	Fprintf(f.out, "Use 'skiff ask %q' to send this prompt.\n", prompt)
	return nil
}
