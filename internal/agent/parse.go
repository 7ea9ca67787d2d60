package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// streamLine is one NDJSON line of claude --output-format stream-json.
type streamLine struct {
	Type         string          `json:"type"`
	Subtype      string          `json:"subtype"`
	SessionID    string          `json:"session_id"`
	Message      json.RawMessage `json:"message"`
	Result       string          `json:"result"`
	IsError      bool            `json:"is_error"`
	TotalCostUSD *float64        `json:"total_cost_usd"`
	CostUSD      *float64        `json:"cost_usd"`
	NumTurns     int             `json:"num_turns"`
	DurationMS   int64           `json:"duration_ms"`
	Usage        *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error json.RawMessage `json:"error"`
}

type lineMessage struct {
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

// ParseLine decodes one stream-json line into zero or more events. Lines of
// unrecognised shape become a SystemEvent with SubtypeUnknown; lines that are
// not JSON objects return an error wrapping ErrMalformedEvent.
func ParseLine(line []byte) ([]Event, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, nil
	}
	var sl streamLine
	if err := json.Unmarshal(line, &sl); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch sl.Type {
	case "assistant":
		blocks, err := messageBlocks(sl.Message)
		if err != nil {
			return nil, err
		}
		return assistantEvents(blocks), nil
	case "user":
		blocks, err := messageBlocks(sl.Message)
		if err != nil {
			return nil, err
		}
		return userEvents(blocks), nil
	case "system":
		return []Event{SystemEvent{Subtype: sl.Subtype, SessionID: sl.SessionID, Data: compact(line)}}, nil
	case "result":
		return []Event{resultEvent(sl)}, nil
	case "error":
		return []Event{ErrorEvent{Message: errorText(sl.Error)}}, nil
	case "stream_event":
		// Partial deltas; the complete assistant line follows.
		return nil, nil
	}
	return []Event{SystemEvent{Subtype: SubtypeUnknown, SessionID: sl.SessionID, Data: compact(line)}}, nil
}

// messageBlocks returns the content blocks of an assistant or user message.
// Plain string content carries no blocks.
func messageBlocks(raw json.RawMessage) ([]json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var msg lineMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: message: %v", ErrMalformedEvent, err)
	}
	content := bytes.TrimSpace(msg.Content)
	if len(content) == 0 || content[0] != '[' {
		return nil, nil
	}
	var blocks []json.RawMessage
	if err := json.Unmarshal(content, &blocks); err != nil {
		return nil, fmt.Errorf("%w: content: %v", ErrMalformedEvent, err)
	}
	return blocks, nil
}

func assistantEvents(raw []json.RawMessage) []Event {
	var events []Event
	for _, r := range raw {
		var b contentBlock
		if err := json.Unmarshal(r, &b); err != nil {
			events = append(events, SystemEvent{Subtype: SubtypeUnknown, Data: compact(r)})
			continue
		}
		switch b.Type {
		case "text":
			if strings.TrimSpace(b.Text) != "" {
				events = append(events, TextEvent{Text: b.Text})
			}
		case "tool_use":
			events = append(events, ToolUseEvent{ID: b.ID, Name: b.Name, Input: compact(b.Input)})
		case "thinking", "redacted_thinking":
		default:
			events = append(events, SystemEvent{Subtype: SubtypeUnknown, Data: compact(r)})
		}
	}
	return events
}

// userEvents keeps only tool results; user text is an echo of the prompt.
func userEvents(raw []json.RawMessage) []Event {
	var events []Event
	for _, r := range raw {
		var b contentBlock
		if err := json.Unmarshal(r, &b); err != nil || b.Type != "tool_result" {
			continue
		}
		events = append(events, ToolResultEvent{
			ToolUseID: b.ToolUseID,
			Output:    contentText(b.Content),
			IsError:   b.IsError,
		})
	}
	return events
}

func resultEvent(sl streamLine) ResultEvent {
	ev := ResultEvent{
		Subtype:    sl.Subtype,
		Result:     sl.Result,
		NumTurns:   sl.NumTurns,
		DurationMS: sl.DurationMS,
		IsError:    sl.IsError,
		SessionID:  sl.SessionID,
	}
	switch {
	case sl.TotalCostUSD != nil:
		ev.CostUSD = *sl.TotalCostUSD
	case sl.CostUSD != nil:
		ev.CostUSD = *sl.CostUSD
	}
	if sl.Usage != nil {
		ev.Tokens = sl.Usage.InputTokens + sl.Usage.OutputTokens
	}
	return ev
}

// contentText flattens tool result content, which is either a string or an
// array of text blocks (or bare strings).
func contentText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) == nil {
		var parts []string
		for _, item := range items {
			if json.Unmarshal(item, &s) == nil {
				parts = append(parts, s)
				continue
			}
			var b contentBlock
			if json.Unmarshal(item, &b) == nil && b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return string(compact(raw))
}

func errorText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "backend error"
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	return string(compact(raw))
}

func compact(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return append(json.RawMessage(nil), raw...)
	}
	return buf.Bytes()
}
