package session

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority orders subtasks; higher values sort first.
type Priority int

const (
	PriorityLow    Priority = -1
	PriorityNormal Priority = 0
	PriorityHigh   Priority = 1
)

func (p Priority) String() string {
	switch {
	case p > PriorityNormal:
		return "high"
	case p < PriorityNormal:
		return "low"
	default:
		return "normal"
	}
}

// ParsePriority accepts "high", "normal" or "low" (case-insensitive).
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return PriorityHigh, nil
	case "", "normal":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	}
	return PriorityNormal, fmt.Errorf("unknown priority %q", s)
}

// clamp maps out-of-range stored values onto the three known priorities.
func (p Priority) clamp() Priority {
	switch {
	case p > PriorityHigh:
		return PriorityHigh
	case p < PriorityLow:
		return PriorityLow
	}
	return p
}

// Subtask is a to-do item owned by a session.
type Subtask struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    Priority   `json:"priority"`
	Completed   bool       `json:"is_completed"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Seq         int        `json:"seq"`
}

func (t Subtask) clone() Subtask {
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		t.CompletedAt = &c
	}
	return t
}

// AddSubtask appends a new incomplete subtask.
func (s *Session) AddSubtask(title, description string, priority Priority) Subtask {
	seq := 0
	for _, t := range s.Subtasks {
		if t.Seq >= seq {
			seq = t.Seq + 1
		}
	}
	t := Subtask{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		Priority:    priority.clamp(),
		CreatedAt:   Now(),
		Seq:         seq,
	}
	s.Subtasks = append(s.Subtasks, t)
	s.touch()
	return t
}

// ToggleSubtask flips the completion flag of the subtask with the given id.
func (s *Session) ToggleSubtask(id string) (Subtask, error) {
	for i := range s.Subtasks {
		t := &s.Subtasks[i]
		if t.ID != id {
			continue
		}
		t.Completed = !t.Completed
		if t.Completed {
			now := Now()
			t.CompletedAt = &now
		} else {
			t.CompletedAt = nil
		}
		s.touch()
		return *t, nil
	}
	return Subtask{}, ErrSubtaskNotFound
}

// RemoveSubtask deletes the subtask with the given id.
func (s *Session) RemoveSubtask(id string) error {
	i := slices.IndexFunc(s.Subtasks, func(t Subtask) bool { return t.ID == id })
	if i < 0 {
		return ErrSubtaskNotFound
	}
	s.Subtasks = slices.Delete(s.Subtasks, i, i+1)
	s.touch()
	return nil
}

// SortedSubtasks returns the subtasks in display order: incomplete first, then
// by priority descending, then by creation order.
func (s *Session) SortedSubtasks() []Subtask {
	out := slices.Clone(s.Subtasks)
	slices.SortStableFunc(out, func(a, b Subtask) int {
		if a.Completed != b.Completed {
			if a.Completed {
				return 1
			}
			return -1
		}
		if a.Priority != b.Priority {
			return int(b.Priority) - int(a.Priority)
		}
		return a.Seq - b.Seq
	})
	return out
}
