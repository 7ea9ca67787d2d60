package session

import (
	"log/slog"
	"strings"

	"github.com/sahilm/fuzzy"
)

// Search returns sessions whose title fuzzily matches query, followed by
// sessions whose message content contains query (case-insensitive). Title
// matches are ordered by match score, content matches by recency.
func (s *FileStore) Search(query string) ([]Summary, error) {
	query = strings.TrimSpace(query)
	all, err := s.summaries()
	if err != nil {
		return nil, err
	}
	if query == "" {
		return all, nil
	}

	titles := make([]string, len(all))
	for i, sum := range all {
		titles[i] = sum.Title
	}

	seen := make(map[string]bool)
	var out []Summary
	for _, m := range fuzzy.Find(query, titles) {
		sum := all[m.Index]
		seen[sum.ID] = true
		out = append(out, sum)
	}

	needle := strings.ToLower(query)
	for _, sum := range all {
		if seen[sum.ID] {
			continue
		}
		sess, err := s.Load(sum.ID)
		if err != nil {
			slog.Warn("Skipping session during search", "session", sum.ID, "error", err)
			continue
		}
		for _, m := range sess.Messages {
			if strings.Contains(strings.ToLower(m.Content), needle) {
				out = append(out, sum)
				break
			}
		}
	}
	return out, nil
}
