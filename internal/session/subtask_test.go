package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortedSubtasksOrdering(t *testing.T) {
	s := New("t", Settings{})
	low := s.AddSubtask("low", "", PriorityLow)
	normal1 := s.AddSubtask("normal-1", "", PriorityNormal)
	high := s.AddSubtask("high", "", PriorityHigh)
	normal2 := s.AddSubtask("normal-2", "", PriorityNormal)
	doneHigh := s.AddSubtask("done-high", "", PriorityHigh)

	_, err := s.ToggleSubtask(doneHigh.ID)
	require.NoError(t, err)

	var titles []string
	for _, st := range s.SortedSubtasks() {
		titles = append(titles, st.Title)
	}
	assert.Equal(t, []string{high.Title, normal1.Title, normal2.Title, low.Title, doneHigh.Title}, titles)

	// Stored order is untouched.
	assert.Equal(t, "low", s.Subtasks[0].Title)
}

func TestToggleSubtaskSetsCompletion(t *testing.T) {
	s := New("t", Settings{})
	st := s.AddSubtask("x", "desc", PriorityNormal)

	got, err := s.ToggleSubtask(st.ID)
	require.NoError(t, err)
	assert.True(t, got.Completed)
	require.NotNil(t, got.CompletedAt)

	got, err = s.ToggleSubtask(st.ID)
	require.NoError(t, err)
	assert.False(t, got.Completed)
	assert.Nil(t, got.CompletedAt)

	_, err = s.ToggleSubtask("nope")
	assert.ErrorIs(t, err, ErrSubtaskNotFound)
}

func TestRemoveSubtask(t *testing.T) {
	s := New("t", Settings{})
	a := s.AddSubtask("a", "", PriorityNormal)
	b := s.AddSubtask("b", "", PriorityNormal)

	require.NoError(t, s.RemoveSubtask(a.ID))
	require.Len(t, s.Subtasks, 1)
	assert.Equal(t, b.ID, s.Subtasks[0].ID)
	assert.ErrorIs(t, s.RemoveSubtask(a.ID), ErrSubtaskNotFound)

	c := s.AddSubtask("c", "", PriorityNormal)
	assert.Greater(t, c.Seq, b.Seq, "creation order keeps increasing after removal")
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in   string
		want Priority
		err  bool
	}{
		{"high", PriorityHigh, false},
		{"HIGH", PriorityHigh, false},
		{"", PriorityNormal, false},
		{"normal", PriorityNormal, false},
		{"low", PriorityLow, false},
		{"urgent", PriorityNormal, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePriority(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, got.clamp())
		})
	}
	assert.Equal(t, "high", PriorityHigh.String())
	assert.Equal(t, "low", Priority(-7).String())
}
