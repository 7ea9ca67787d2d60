package session

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "sessions"))
	require.NoError(t, err)
	return store
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	want := fullSession(t)

	require.NoError(t, store.Save(want))
	got, err := store.Load(want.ID)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStoreSaveIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	want := fullSession(t)

	require.NoError(t, store.Save(want))
	first, err := os.ReadFile(filepath.Join(store.Dir(), want.ID+".json"))
	require.NoError(t, err)

	require.NoError(t, store.Save(want))
	second, err := os.ReadFile(filepath.Join(store.Dir(), want.ID+".json"))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	got, err := store.Load(want.ID)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// No temporary files are left behind.
	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStoreSaveOverwrites(t *testing.T) {
	store := newTestStore(t)
	s := New("first", Settings{})
	require.NoError(t, store.Save(s))

	s.SetTitle("second")
	s.AddUserPrompt("hello")
	require.NoError(t, store.Save(s))

	got, err := store.Load(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Title)
	assert.Len(t, got.Messages, 1)
}

func TestStoreLoadNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Load("does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreLoadCorrupt(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "broken.json"), []byte("{{{"), 0644))

	_, err := store.Load("broken")
	var corrupt *CorruptError
	require.True(t, errors.As(err, &corrupt), "got %v", err)
	assert.Equal(t, "broken", corrupt.ID)
	assert.Contains(t, err.Error(), "broken")
}

func TestStoreLoadRepairsAndTrustsFileName(t *testing.T) {
	store := newTestStore(t)
	doc := `{"id": "other", "title": "x", "created_at": "2026-01-01T00:00:00Z", "messages": [42]}`
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "real.json"), []byte(doc), 0644))

	sess, err := store.Load("real")
	require.NoError(t, err)
	assert.Equal(t, "real", sess.ID)
	assert.Empty(t, sess.Messages)
	assert.NotEmpty(t, sess.Repairs())
}

func TestStoreRejectsPathLikeIDs(t *testing.T) {
	store := newTestStore(t)
	for _, id := range []string{"", "..", "../escape", "a/b", `a\b`, ".hidden"} {
		_, err := store.Load(id)
		assert.ErrorIs(t, err, ErrInvalidID, "id %q", id)
	}
	assert.ErrorIs(t, store.Save(&Session{ID: "../x"}), ErrInvalidID)
}

func saveAt(t *testing.T, store *FileStore, title string, updated time.Time) *Session {
	t.Helper()
	s := New(title, Settings{})
	s.CreatedAt = updated.Add(-time.Hour)
	s.UpdatedAt = updated
	require.NoError(t, store.Save(s))
	return s
}

func TestListRecentOrdersByUpdatedAt(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	oldest := saveAt(t, store, "oldest", base)
	newest := saveAt(t, store, "newest", base.Add(2*time.Hour))
	middle := saveAt(t, store, "middle", base.Add(time.Hour))
	middle.AddUserPrompt("one")
	middle.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, store.Save(middle))

	got, err := store.ListRecent(0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{newest.ID, middle.ID, oldest.ID}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, 1, got[1].MessageCount)

	limited, err := store.ListRecent(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
	assert.Equal(t, newest.ID, limited[0].ID)
}

func TestListRecentSkipsCorruptFiles(t *testing.T) {
	store := newTestStore(t)
	good := saveAt(t, store, "good", time.Now().UTC())
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "bad.json"), []byte("this is not json"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "array.json"), []byte("[1,2,3]"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "notes.txt"), []byte("ignored"), 0644))

	got, err := store.ListRecent(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, good.ID, got[0].ID)
}

func TestStoreDelete(t *testing.T) {
	store := newTestStore(t)
	s := New("gone", Settings{})
	require.NoError(t, store.Save(s))

	require.NoError(t, store.Delete(s.ID))
	_, err := store.Load(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(s.ID), ErrNotFound)
}

func TestStoreCleanup(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	stale := saveAt(t, store, "stale", now.Add(-40*24*time.Hour))
	fresh := saveAt(t, store, "fresh", now.Add(-2*24*time.Hour))

	removed, err := store.Cleanup(30*24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, []string{stale.ID}, removed)

	_, err = store.Load(fresh.ID)
	assert.NoError(t, err)

	removed, err = store.Cleanup(0, now)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestStoreSearch(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	refactor := saveAt(t, store, "Refactor parser", base)
	other := New("Unrelated", Settings{})
	other.AddUserPrompt("please check the PARSER tests")
	require.NoError(t, store.Save(other))
	saveAt(t, store, "Write docs", base.Add(time.Hour))

	got, err := store.Search("parser")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, refactor.ID, got[0].ID, "title matches come first")
	assert.Equal(t, other.ID, got[1].ID)

	all, err := store.Search("  ")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStoreExportFormats(t *testing.T) {
	store := newTestStore(t)
	s := fullSession(t)
	require.NoError(t, store.Save(s))

	var js bytes.Buffer
	require.NoError(t, store.Export(s.ID, FormatJSON, &js))
	back, err := Unmarshal(js.Bytes())
	require.NoError(t, err)
	assert.Equal(t, s, back)

	var md bytes.Buffer
	require.NoError(t, store.Export(s.ID, FormatMarkdown, &md))
	assert.True(t, strings.HasPrefix(md.String(), "# List project files\n"))
	assert.Contains(t, md.String(), "## Tool use")
	assert.Contains(t, md.String(), `{"path":"."}`)

	var html bytes.Buffer
	require.NoError(t, store.Export(s.ID, FormatHTML, &html))
	assert.Contains(t, html.String(), "<title>List project files</title>")
	assert.Contains(t, html.String(), `class="message tool_use"`)

	assert.Error(t, store.Export(s.ID, "pdf", &bytes.Buffer{}))
	assert.ErrorIs(t, store.Export("missing", FormatJSON, &bytes.Buffer{}), ErrNotFound)
}

func TestStoreWatchSignalsOnSave(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := store.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Save(New("watched", Settings{})))

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("no change signal after save")
	}

	cancel()
	for range changes {
	}
}
