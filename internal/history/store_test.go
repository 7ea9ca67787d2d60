package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "data", FileName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func sampleRun(id, sessionID, state string, started time.Time, cost float64) Run {
	return Run{
		ID:         id,
		SessionID:  sessionID,
		Prompt:     "list files",
		State:      state,
		Messages:   4,
		CostUSD:    cost,
		Turns:      1,
		Tokens:     100,
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
	}
}

func TestRecordAndListBySession(t *testing.T) {
	l := openTestLedger(t)
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, l.Record(sampleRun("r1", "s1", "completed", base, 0.002)))
	require.NoError(t, l.Record(sampleRun("r2", "s1", "failed", base.Add(time.Minute), 0)))
	require.NoError(t, l.Record(sampleRun("r3", "s2", "completed", base.Add(2*time.Minute), 0.01)))

	runs, err := l.ListBySession("s1", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].ID)
	assert.Equal(t, "r1", runs[1].ID)
	assert.Equal(t, "list files", runs[1].Prompt)
	assert.True(t, runs[1].StartedAt.Equal(base))
	assert.Equal(t, 1500*time.Millisecond, runs[1].Duration())

	limited, err := l.ListBySession("s1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := l.ListBySession("missing", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecentAndTotals(t *testing.T) {
	l := openTestLedger(t)
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, l.Record(sampleRun("r1", "s1", "completed", base, 0.25)))
	require.NoError(t, l.Record(sampleRun("r2", "s2", "cancelled", base.Add(time.Hour), 0)))
	require.NoError(t, l.Record(sampleRun("r3", "s2", "failed", base.Add(2*time.Hour), 0.5)))

	recent, err := l.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "r3", recent[0].ID)

	totals, err := l.Totals()
	require.NoError(t, err)
	assert.Equal(t, 3, totals.Runs)
	assert.Equal(t, 1, totals.Failed)
	assert.Equal(t, 1, totals.Cancelled)
	assert.InDelta(t, 0.75, totals.CostUSD, 1e-9)
	assert.Equal(t, 3, totals.Turns)
	assert.Equal(t, 300, totals.Tokens)
}

func TestRecordReplacesAndDeleteSession(t *testing.T) {
	l := openTestLedger(t)
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	run := sampleRun("r1", "s1", "running", base, 0)
	require.NoError(t, l.Record(run))
	run.State = "completed"
	run.Error = ""
	require.NoError(t, l.Record(run))

	runs, err := l.ListBySession("s1", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "completed", runs[0].State)

	n, err := l.DeleteSession("s1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	totals, err := l.Totals()
	require.NoError(t, err)
	assert.Zero(t, totals.Runs)
}
