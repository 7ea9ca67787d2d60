package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Now returns the current time in UTC without a monotonic clock reading, so
// values compare equal after a JSON round trip.
func Now() time.Time {
	return time.Now().UTC().Round(0)
}

// DefaultTitle returns the title given to sessions created without one.
func DefaultTitle(t time.Time) string {
	return "Conversation " + t.Local().Format("2006-01-02 15:04")
}

// New creates a session with a fresh identifier and the given settings.
// An empty title is replaced by DefaultTitle.
func New(title string, settings Settings) *Session {
	now := Now()
	if title == "" {
		title = DefaultTitle(now)
	}
	return &Session{
		ID:        uuid.New().String(),
		Title:     title,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
		Settings:  settings,
		Subtasks:  []Subtask{},
	}
}

// touch advances UpdatedAt. It always moves forward, even when the wall clock
// has not ticked since the previous mutation.
func (s *Session) touch() {
	now := Now()
	if !now.After(s.UpdatedAt) {
		now = s.UpdatedAt.Add(time.Nanosecond)
	}
	s.UpdatedAt = now
}

// Append adds a message to the transcript. Missing ids and timestamps are
// filled in, tool input is stored compacted, and a timestamp earlier than the last message is clamped so the
// transcript stays ordered by arrival.
func (s *Session) Append(msg Message) error {
	if !msg.Kind.Valid() {
		return fmt.Errorf("append message: unknown kind %q", msg.Kind)
	}
	if msg.Kind == KindToolResult {
		if msg.Tool == nil || msg.Tool.ToolUseID == "" || !s.HasToolUse(msg.Tool.ToolUseID) {
			return ErrOrphanToolResult
		}
	}
	if msg.Tool != nil && len(msg.Tool.Input) > 0 {
		tool := *msg.Tool
		tool.Input = compactJSON(tool.Input)
		msg.Tool = &tool
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = Now()
	}
	if n := len(s.Messages); n > 0 && msg.Timestamp.Before(s.Messages[n-1].Timestamp) {
		msg.Timestamp = s.Messages[n-1].Timestamp
	}
	s.Messages = append(s.Messages, msg)
	s.touch()
	return nil
}

// AddUserPrompt records a prompt typed by the user.
func (s *Session) AddUserPrompt(text string) Message {
	msg := Message{ID: uuid.New().String(), Kind: KindUser, Content: text, Timestamp: Now()}
	// A user message can never be rejected.
	_ = s.Append(msg)
	return s.Messages[len(s.Messages)-1]
}

// HasToolUse reports whether a tool_use message with the given id exists.
func (s *Session) HasToolUse(toolUseID string) bool {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.Kind == KindToolUse && m.Tool != nil && m.Tool.ToolUseID == toolUseID {
			return true
		}
	}
	return false
}

// ApplyUsage folds a terminal summary into the cumulative totals. Negative
// values are ignored so totals never decrease.
func (s *Session) ApplyUsage(u Usage) {
	if u.CostUSD > 0 {
		s.TotalCost += u.CostUSD
	}
	if u.Turns > 0 {
		s.TotalTurns += u.Turns
	}
	if u.Tokens > 0 {
		s.TotalTokens += u.Tokens
	}
	if u.ResumeID != "" {
		s.ResumeID = u.ResumeID
	}
	s.touch()
}

// SetResumeID stores the backend resumption handle.
func (s *Session) SetResumeID(id string) {
	if id == "" || id == s.ResumeID {
		return
	}
	s.ResumeID = id
	s.touch()
}

// SetTitle renames the session.
func (s *Session) SetTitle(title string) {
	s.Title = title
	s.touch()
}

// UpdateSettings applies fn to the settings snapshot.
func (s *Session) UpdateSettings(fn func(*Settings)) {
	fn(&s.Settings)
	s.touch()
}

// LastAssistantText returns the content of the most recent assistant message.
func (s *Session) LastAssistantText() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Kind == KindAssistant {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Repairs lists the fixes applied when the session was loaded.
func (s *Session) Repairs() []string {
	return s.repairs
}

// Summary projects the session into its listing form.
func (s *Session) Summary() Summary {
	return Summary{
		ID:           s.ID,
		Title:        s.Title,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		MessageCount: len(s.Messages),
		TotalCost:    s.TotalCost,
		TotalTurns:   s.TotalTurns,
	}
}

// Clone returns a deep copy that shares no mutable state with s.
func (s *Session) Clone() *Session {
	c := *s
	c.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		c.Messages[i] = m.clone()
	}
	c.Subtasks = make([]Subtask, len(s.Subtasks))
	for i, t := range s.Subtasks {
		c.Subtasks[i] = t.clone()
	}
	c.Settings.AllowedTools = slices.Clone(s.Settings.AllowedTools)
	c.Settings.DisallowedTools = slices.Clone(s.Settings.DisallowedTools)
	c.Metadata = maps.Clone(s.Metadata)
	c.extra = maps.Clone(s.extra)
	c.repairs = slices.Clone(s.repairs)
	return &c
}

func (m Message) clone() Message {
	if m.Tool != nil {
		t := *m.Tool
		t.Input = slices.Clone(m.Tool.Input)
		m.Tool = &t
	}
	if m.Usage != nil {
		u := *m.Usage
		m.Usage = &u
	}
	m.Metadata = maps.Clone(m.Metadata)
	return m
}

// compactJSON normalises raw JSON so it compares equal after being re-indented.
func compactJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var out bytes.Buffer
	if err := json.Compact(&out, raw); err != nil {
		return raw
	}
	return json.RawMessage(out.Bytes())
}
