package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berth-dev/skiff/internal/session"
)

func TestParsePermissionMode(t *testing.T) {
	tests := []struct {
		in   string
		want PermissionMode
		err  bool
	}{
		{"", ModeDefault, false},
		{"default", ModeDefault, false},
		{"acceptedits", ModeAcceptEdits, false},
		{"bypassPermissions", ModeBypass, false},
		{" plan ", ModePlan, false},
		{"yolo", ModeDefault, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePermissionMode(tt.in)
			if tt.err {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPermissionModeNextCycles(t *testing.T) {
	m := ModeDefault
	var seen []PermissionMode
	for range PermissionModes {
		m = m.Next()
		seen = append(seen, m)
	}
	assert.Equal(t, []PermissionMode{ModeAcceptEdits, ModeBypass, ModePlan, ModeDefault}, seen)
}

func TestConfigFromSettings(t *testing.T) {
	s := session.Settings{
		PermissionMode: "bogus",
		WorkDir:        "/srv",
		Model:          "opus",
		AllowedTools:   []string{"Read"},
	}
	cfg := ConfigFromSettings(s, "r-1")
	assert.Equal(t, ModeDefault, cfg.PermissionMode)
	assert.Equal(t, "/srv", cfg.WorkDir)
	assert.Equal(t, "r-1", cfg.ResumeID)

	cfg.AllowedTools[0] = "Bash"
	assert.Equal(t, "Read", s.AllowedTools[0])
}
