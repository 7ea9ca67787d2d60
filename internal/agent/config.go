// Package agent drives the claude CLI in streaming mode and turns its events
// into session messages.
package agent

import (
	"fmt"
	"slices"
	"strings"

	"github.com/berth-dev/skiff/internal/session"
)

// PermissionMode controls how the backend asks for tool permissions.
type PermissionMode string

const (
	ModeDefault     PermissionMode = "default"
	ModeAcceptEdits PermissionMode = "acceptEdits"
	ModeBypass      PermissionMode = "bypassPermissions"
	ModePlan        PermissionMode = "plan"
)

// PermissionModes lists every mode in cycling order.
var PermissionModes = []PermissionMode{ModeDefault, ModeAcceptEdits, ModeBypass, ModePlan}

// ParsePermissionMode matches s case-insensitively against the known modes.
// An empty string yields ModeDefault.
func ParsePermissionMode(s string) (PermissionMode, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ModeDefault, nil
	}
	for _, m := range PermissionModes {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	return ModeDefault, fmt.Errorf("unknown permission mode %q", s)
}

// Next returns the mode following m in PermissionModes, wrapping around.
func (m PermissionMode) Next() PermissionMode {
	i := slices.Index(PermissionModes, m)
	return PermissionModes[(i+1)%len(PermissionModes)]
}

// QueryConfig is the set of per-query options passed to the backend.
type QueryConfig struct {
	PermissionMode  PermissionMode
	AllowedTools    []string
	DisallowedTools []string
	WorkDir         string
	Model           string
	SystemPrompt    string // appended to the backend's own system prompt
	MaxTurns        int
	ResumeID        string
}

// Clone returns a copy that shares no slices with c.
func (c QueryConfig) Clone() QueryConfig {
	c.AllowedTools = slices.Clone(c.AllowedTools)
	c.DisallowedTools = slices.Clone(c.DisallowedTools)
	return c
}

// ConfigFromSettings builds a QueryConfig from a session's settings snapshot.
// Unknown permission modes fall back to ModeDefault.
func ConfigFromSettings(s session.Settings, resumeID string) QueryConfig {
	mode, err := ParsePermissionMode(s.PermissionMode)
	if err != nil {
		mode = ModeDefault
	}
	return QueryConfig{
		PermissionMode:  mode,
		AllowedTools:    slices.Clone(s.AllowedTools),
		DisallowedTools: slices.Clone(s.DisallowedTools),
		WorkDir:         s.WorkDir,
		Model:           s.Model,
		SystemPrompt:    s.SystemPrompt,
		ResumeID:        resumeID,
	}
}
