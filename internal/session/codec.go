package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// formatVersion is written into every session file.
const formatVersion = 1

// UntitledTitle replaces a missing title on load.
const UntitledTitle = "Untitled conversation"

// wireSession is the on-disk layout of a session file.
type wireSession struct {
	Version     int            `json:"version"`
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	TotalCost   float64        `json:"total_cost"`
	TotalTurns  int            `json:"total_turns"`
	TotalTokens int            `json:"total_tokens"`
	ResumeID    string         `json:"resume_id,omitempty"`
	Settings    Settings       `json:"settings"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Messages    []Message      `json:"messages"`
	Subtasks    []Subtask      `json:"subtasks"`
}

// knownFields are consumed by the decoder; anything else is kept verbatim.
// The legacy keys come from files written by the original desktop client.
var knownFields = map[string]bool{
	"version": true, "id": true, "title": true, "created_at": true, "updated_at": true,
	"total_cost": true, "total_turns": true, "total_tokens": true, "resume_id": true,
	"settings": true, "metadata": true, "messages": true, "subtasks": true,
	// legacy
	"sdk_session_id": true, "model": true, "system_prompt": true,
	"tools_enabled": true, "custom_rules": true,
}

// Marshal encodes a session into its storable JSON form.
func Marshal(s *Session) ([]byte, error) {
	w := wireSession{
		Version:     formatVersion,
		ID:          s.ID,
		Title:       s.Title,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		TotalCost:   s.TotalCost,
		TotalTurns:  s.TotalTurns,
		TotalTokens: s.TotalTokens,
		ResumeID:    s.ResumeID,
		Settings:    s.Settings,
		Metadata:    s.Metadata,
		Messages:    s.Messages,
		Subtasks:    s.Subtasks,
	}
	if w.Messages == nil {
		w.Messages = []Message{}
	}
	if w.Subtasks == nil {
		w.Subtasks = []Subtask{}
	}

	if len(s.extra) == 0 {
		data, err := json.MarshalIndent(w, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshalling session: %w", err)
		}
		return data, nil
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshalling session: %w", err)
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, fmt.Errorf("merging unknown fields: %w", err)
	}
	for k, v := range s.extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	data, err = json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling session: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a session, repairing missing or malformed fields with
// defaults instead of failing. It only returns an error when data is not a
// JSON object at all.
func Unmarshal(data []byte) (*Session, error) {
	d, err := newDecoder(data)
	if err != nil {
		return nil, err
	}

	s := &Session{}
	decodeField(d, "id", &s.ID)
	decodeField(d, "title", &s.Title)
	s.CreatedAt = d.time("created_at")
	s.UpdatedAt = d.time("updated_at")
	decodeField(d, "total_cost", &s.TotalCost)
	decodeField(d, "total_turns", &s.TotalTurns)
	decodeField(d, "total_tokens", &s.TotalTokens)
	if !decodeField(d, "resume_id", &s.ResumeID) {
		decodeField(d, "sdk_session_id", &s.ResumeID)
	}
	if !decodeField(d, "settings", &s.Settings) {
		decodeField(d, "model", &s.Settings.Model)
		decodeField(d, "system_prompt", &s.Settings.SystemPrompt)
		decodeField(d, "tools_enabled", &s.Settings.AllowedTools)
		decodeField(d, "custom_rules", &s.Settings.Rules)
	}
	decodeField(d, "metadata", &s.Metadata)

	d.repairHeader(s)
	s.Messages = d.messages(s.CreatedAt)
	s.Subtasks = d.subtasks(s.CreatedAt)

	for k, v := range d.fields {
		if knownFields[k] {
			continue
		}
		if s.extra == nil {
			s.extra = make(map[string]json.RawMessage)
		}
		s.extra[k] = v
	}
	s.repairs = d.repairs
	return s, nil
}

// unmarshalSummary decodes only what a Summary needs.
func unmarshalSummary(data []byte) (Summary, error) {
	d, err := newDecoder(data)
	if err != nil {
		return Summary{}, err
	}
	s := &Session{}
	decodeField(d, "id", &s.ID)
	decodeField(d, "title", &s.Title)
	s.CreatedAt = d.time("created_at")
	s.UpdatedAt = d.time("updated_at")
	decodeField(d, "total_cost", &s.TotalCost)
	decodeField(d, "total_turns", &s.TotalTurns)
	d.repairHeader(s)

	var raw []json.RawMessage
	decodeField(d, "messages", &raw)
	sum := s.Summary()
	sum.MessageCount = len(raw)
	return sum, nil
}

type decoder struct {
	fields  map[string]json.RawMessage
	repairs []string
}

func newDecoder(data []byte) (*decoder, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	if fields == nil {
		return nil, errors.New("decoding session: document is null")
	}
	return &decoder{fields: fields}, nil
}

func (d *decoder) repair(format string, args ...any) {
	d.repairs = append(d.repairs, fmt.Sprintf(format, args...))
}

// decodeField decodes key into dst and reports whether the key was present
// and valid. A present but invalid value is recorded as a repair.
func decodeField[T any](d *decoder, key string, dst *T) bool {
	raw, ok := d.fields[key]
	if !ok || string(raw) == "null" {
		return false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		d.repair("%s: %v", key, err)
		return false
	}
	*dst = v
	return true
}

func (d *decoder) time(key string) time.Time {
	var s string
	if !decodeField(d, key, &s) {
		return time.Time{}
	}
	t, err := parseTime(s)
	if err != nil {
		d.repair("%s: %v", key, err)
		return time.Time{}
	}
	return t
}

// parseTime accepts RFC 3339 and the zone-less ISO 8601 form written by the
// original client, which is interpreted as local time.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC().Round(0), nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
	}
	return t.UTC().Round(0), nil
}

// repairHeader substitutes defaults for missing or out-of-range scalars.
func (d *decoder) repairHeader(s *Session) {
	if s.ID == "" {
		s.ID = uuid.New().String()
		d.repair("id: missing, assigned %s", s.ID)
	}
	if strings.TrimSpace(s.Title) == "" {
		s.Title = UntitledTitle
	}
	switch {
	case s.CreatedAt.IsZero() && s.UpdatedAt.IsZero():
		s.CreatedAt = Now()
		s.UpdatedAt = s.CreatedAt
		d.repair("timestamps: missing, reset to now")
	case s.CreatedAt.IsZero():
		s.CreatedAt = s.UpdatedAt
	case s.UpdatedAt.IsZero() || s.UpdatedAt.Before(s.CreatedAt):
		s.UpdatedAt = s.CreatedAt
	}
	if s.TotalCost < 0 || math.IsNaN(s.TotalCost) || math.IsInf(s.TotalCost, 0) {
		d.repair("total_cost: %v reset to 0", s.TotalCost)
		s.TotalCost = 0
	}
	if s.TotalTurns < 0 {
		d.repair("total_turns: %d reset to 0", s.TotalTurns)
		s.TotalTurns = 0
	}
	if s.TotalTokens < 0 {
		s.TotalTokens = 0
	}
}

// wireMessage tolerates the legacy "role" key and non-string content.
type wireMessage struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Role      Kind            `json:"role"`
	Content   json.RawMessage `json:"content"`
	Tool      *ToolPayload    `json:"tool"`
	Usage     *Usage          `json:"usage"`
	Timestamp string          `json:"timestamp"`
	Metadata  map[string]any  `json:"metadata"`
}

func (d *decoder) messages(fallback time.Time) []Message {
	var raws []json.RawMessage
	out := []Message{}
	if !decodeField(d, "messages", &raws) {
		return out
	}

	last := fallback
	for i, raw := range raws {
		var w wireMessage
		if err := json.Unmarshal(raw, &w); err != nil {
			d.repair("messages[%d]: dropped: %v", i, err)
			continue
		}
		m := Message{
			ID:       w.ID,
			Kind:     w.Kind,
			Tool:     w.Tool,
			Usage:    w.Usage,
			Metadata: w.Metadata,
		}
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		if m.Kind == "" {
			m.Kind = w.Role
		}
		if !m.Kind.Valid() {
			if m.Metadata == nil {
				m.Metadata = make(map[string]any)
			}
			m.Metadata["original_kind"] = string(m.Kind)
			m.Kind = KindSystem
		}
		m.Content = decodeContent(w.Content)
		if m.Tool != nil {
			m.Tool.Input = compactJSON(m.Tool.Input)
		}

		ts, err := parseTime(w.Timestamp)
		if err != nil {
			ts = last
		}
		if ts.Before(last) && i > 0 {
			ts = last
		}
		m.Timestamp = ts
		last = ts
		out = append(out, m)
	}
	return out
}

// decodeContent returns string content verbatim and any other JSON value as
// its raw text.
func decodeContent(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(compactJSON(raw))
}

type wireSubtask struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority"`
	Completed   bool     `json:"is_completed"`
	CreatedAt   string   `json:"created_at"`
	CompletedAt string   `json:"completed_at"`
	Seq         *int     `json:"seq"`
}

func (d *decoder) subtasks(fallback time.Time) []Subtask {
	var raws []json.RawMessage
	out := []Subtask{}
	if !decodeField(d, "subtasks", &raws) {
		return out
	}
	for i, raw := range raws {
		var w wireSubtask
		if err := json.Unmarshal(raw, &w); err != nil {
			d.repair("subtasks[%d]: dropped: %v", i, err)
			continue
		}
		t := Subtask{
			ID:          w.ID,
			Title:       w.Title,
			Description: w.Description,
			Priority:    w.Priority.clamp(),
			Completed:   w.Completed,
			Seq:         i,
		}
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		if w.Seq != nil {
			t.Seq = *w.Seq
		}
		created, err := parseTime(w.CreatedAt)
		if err != nil {
			created = fallback
		}
		t.CreatedAt = created
		if w.CompletedAt != "" {
			if done, err := parseTime(w.CompletedAt); err == nil {
				t.CompletedAt = &done
			}
		}
		out = append(out, t)
	}
	return out
}
