package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no stored session matches an identifier.
	ErrNotFound = errors.New("session not found")

	// ErrOrphanToolResult is returned by Append for a tool result whose
	// tool_use_id does not match any earlier tool use in the session.
	ErrOrphanToolResult = errors.New("tool result without matching tool use")

	// ErrSubtaskNotFound is returned when a subtask id is unknown.
	ErrSubtaskNotFound = errors.New("subtask not found")

	// ErrInvalidID is returned for identifiers that cannot name a session file.
	ErrInvalidID = errors.New("invalid session id")
)

// CorruptError reports a stored session that could not be recovered.
type CorruptError struct {
	ID  string
	Err error
}

func (e *CorruptError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("corrupt session: %v", e.Err)
	}
	return fmt.Sprintf("corrupt session %s: %v", e.ID, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }
