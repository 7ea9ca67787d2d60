package agent

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/berth-dev/skiff/internal/session"
)

// Event is one typed backend event. The set of implementations is closed.
type Event interface {
	event()
}

// TextEvent is a block of assistant text.
type TextEvent struct {
	Text string
}

// ToolUseEvent is a tool invocation requested by the assistant.
type ToolUseEvent struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResultEvent is the output of a tool invocation.
type ToolResultEvent struct {
	ToolUseID string
	Output    string
	IsError   bool
}

// SystemEvent covers init and status lines, and any line whose shape is not
// recognised (Subtype "unknown").
type SystemEvent struct {
	Subtype   string
	SessionID string
	Data      json.RawMessage
}

// ResultEvent is the terminal summary of a query.
type ResultEvent struct {
	Subtype    string
	Result     string
	CostUSD    float64
	NumTurns   int
	DurationMS int64
	IsError    bool
	SessionID  string
	Tokens     int
}

// ErrorEvent is an error reported in-band by the backend.
type ErrorEvent struct {
	Message string
}

func (TextEvent) event()       {}
func (ToolUseEvent) event()    {}
func (ToolResultEvent) event() {}
func (SystemEvent) event()     {}
func (ResultEvent) event()     {}
func (ErrorEvent) event()      {}

// SubtypeUnknown is the SystemEvent subtype given to unrecognised lines.
const SubtypeUnknown = "unknown"

// ToMessage converts an event into a session message with a fresh id and
// timestamp.
func ToMessage(ev Event) session.Message {
	msg := session.Message{ID: uuid.New().String(), Timestamp: session.Now()}
	switch e := ev.(type) {
	case TextEvent:
		msg.Kind = session.KindAssistant
		msg.Content = e.Text
	case ToolUseEvent:
		msg.Kind = session.KindToolUse
		msg.Content = e.Name
		msg.Tool = &session.ToolPayload{ToolUseID: e.ID, Name: e.Name, Input: compact(e.Input)}
	case ToolResultEvent:
		msg.Kind = session.KindToolResult
		msg.Content = e.Output
		msg.Tool = &session.ToolPayload{ToolUseID: e.ToolUseID, Output: e.Output, IsError: e.IsError}
	case SystemEvent:
		msg.Kind = session.KindSystem
		msg.Content = e.Subtype
		msg.Metadata = map[string]any{"subtype": e.Subtype}
		if e.SessionID != "" {
			msg.Metadata["session_id"] = e.SessionID
		}
	case ResultEvent:
		msg.Kind = session.KindResult
		msg.Content = e.Result
		msg.Usage = &session.Usage{
			CostUSD:    e.CostUSD,
			Turns:      e.NumTurns,
			Tokens:     e.Tokens,
			DurationMS: e.DurationMS,
			IsError:    e.IsError,
			ResumeID:   e.SessionID,
		}
		if e.Subtype != "" {
			msg.Metadata = map[string]any{"subtype": e.Subtype}
		}
	case ErrorEvent:
		msg.Kind = session.KindSystem
		msg.Content = e.Message
		msg.Metadata = map[string]any{"subtype": "error"}
	default:
		msg.Kind = session.KindSystem
		msg.Metadata = map[string]any{"subtype": SubtypeUnknown}
	}
	return msg
}
