// Package session provides the conversation data model and its file-backed persistence.
package session

import (
	"encoding/json"
	"time"
)

// Kind identifies what a Message carries.
type Kind string

const (
	KindUser       Kind = "user"
	KindAssistant  Kind = "assistant"
	KindToolUse    Kind = "tool_use"
	KindToolResult Kind = "tool_result"
	KindSystem     Kind = "system"
	KindResult     Kind = "result"
)

// Valid reports whether k is one of the known message kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindUser, KindAssistant, KindToolUse, KindToolResult, KindSystem, KindResult:
		return true
	}
	return false
}

// ToolPayload is the structured part of a tool_use or tool_result message.
type ToolPayload struct {
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Output    string          `json:"output,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// Usage is the terminal summary of a single query as reported by the backend.
type Usage struct {
	CostUSD    float64 `json:"cost_usd"`
	Turns      int     `json:"turns"`
	Tokens     int     `json:"tokens,omitempty"`
	DurationMS int64   `json:"duration_ms,omitempty"`
	IsError    bool    `json:"is_error,omitempty"`
	ResumeID   string  `json:"resume_id,omitempty"`
}

// Message represents one unit of conversation content.
type Message struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Content   string         `json:"content"`
	Tool      *ToolPayload   `json:"tool,omitempty"`
	Usage     *Usage         `json:"usage,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Settings is the per-session snapshot of query options.
type Settings struct {
	PermissionMode  string   `json:"permission_mode,omitempty"`
	WorkDir         string   `json:"work_dir,omitempty"`
	Model           string   `json:"model,omitempty"`
	SystemPrompt    string   `json:"system_prompt,omitempty"`
	AllowedTools    []string `json:"allowed_tools,omitempty"`
	DisallowedTools []string `json:"disallowed_tools,omitempty"`
	Rules           string   `json:"rules,omitempty"` // XML rules document
}

// Session represents a persisted, identified conversation with the assistant.
// ID is assigned once by New (or by the loader) and must not be changed afterwards.
type Session struct {
	ID          string
	Title       string
	Messages    []Message
	TotalCost   float64
	TotalTurns  int
	TotalTokens int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ResumeID    string
	Settings    Settings
	Subtasks    []Subtask
	Metadata    map[string]any

	// extra holds top-level fields this version does not know about so they
	// survive a load/save cycle.
	extra   map[string]json.RawMessage
	repairs []string
}

// Summary provides a lightweight view of a session for listing.
type Summary struct {
	ID           string
	Title        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
	TotalCost    float64
	TotalTurns   int
}
