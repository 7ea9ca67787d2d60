package session

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const fileExt = ".json"

// listConcurrency bounds the number of session files read in parallel.
const listConcurrency = 8

// FileStore persists sessions as one JSON file per session inside a directory.
// It assumes a single writer per session id; concurrent saves of the same id
// are last-writer-wins.
type FileStore struct {
	dir string
}

// NewFileStore opens (creating if needed) a store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory holding session files.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(s.dir, id+fileExt), nil
}

// Save writes the full current state of sess, replacing any earlier save.
// The file is written to a temporary sibling and renamed into place, so a
// failed save never leaves a partially written session behind.
func (s *FileStore) Save(sess *Session) error {
	path, err := s.path(sess.ID)
	if err != nil {
		return err
	}
	data, err := Marshal(sess)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+sess.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write session %s: %w", sess.ID, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync session %s: %w", sess.ID, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close session %s: %w", sess.ID, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		cleanup()
		return fmt.Errorf("chmod session %s: %w", sess.ID, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace session %s: %w", sess.ID, err)
	}
	return nil
}

// Load reads the session with the given id. It returns ErrNotFound when no
// file exists and a *CorruptError when the file cannot be read or is not a
// JSON object. Any other damage is repaired on a best-effort basis.
func (s *FileStore) Load(id string) (*Session, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, &CorruptError{ID: id, Err: err}
	}

	sess, err := Unmarshal(data)
	if err != nil {
		return nil, &CorruptError{ID: id, Err: err}
	}
	// The file name is authoritative for the identifier.
	if sess.ID != id {
		sess.repairs = append(sess.repairs, fmt.Sprintf("id: %q replaced by file name", sess.ID))
		sess.ID = id
	}
	if len(sess.repairs) > 0 {
		slog.Warn("Repaired session on load", "session", id, "repairs", sess.repairs)
	}
	return sess, nil
}

// Delete removes the stored session.
func (s *FileStore) Delete(id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("remove session %s: %w", id, err)
	}
	return nil
}

// ids returns the identifiers of every session file in the directory.
func (s *FileStore) ids() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read session directory: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, fileExt))
	}
	return ids, nil
}

// summaries reads every session file concurrently. Files that cannot be
// decoded are logged and skipped so one bad file never hides the others.
func (s *FileStore) summaries() ([]Summary, error) {
	ids, err := s.ids()
	if err != nil {
		return nil, err
	}

	results := make([]*Summary, len(ids))
	var g errgroup.Group
	g.SetLimit(listConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			data, err := os.ReadFile(filepath.Join(s.dir, id+fileExt))
			if err != nil {
				slog.Warn("Skipping unreadable session", "session", id, "error", err)
				return nil
			}
			sum, err := unmarshalSummary(data)
			if err != nil {
				slog.Warn("Skipping corrupt session", "session", id, "error", err)
				return nil
			}
			sum.ID = id
			results[i] = &sum
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Summary, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	slices.SortFunc(out, func(a, b Summary) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// ListRecent returns up to limit session summaries ordered by last update,
// most recent first. A limit of zero or less returns every session.
func (s *FileStore) ListRecent(limit int) ([]Summary, error) {
	all, err := s.summaries()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Cleanup deletes sessions whose last update is older than retention and
// returns their ids. A non-positive retention disables cleanup.
func (s *FileStore) Cleanup(retention time.Duration, now time.Time) ([]string, error) {
	if retention <= 0 {
		return nil, nil
	}
	all, err := s.summaries()
	if err != nil {
		return nil, err
	}
	cutoff := now.Add(-retention)
	var removed []string
	for _, sum := range all {
		if !sum.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := s.Delete(sum.ID); err != nil {
			return removed, err
		}
		removed = append(removed, sum.ID)
	}
	return removed, nil
}
