// Package history keeps an append-only log of finished practice sessions.
// Entries are stored as JSON lines in a local file, enough for a single
// training team to review scores over time. Logging is best-effort: the
// scorecard the rep sees never depends on the log being writable.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Entry is a single finished session written to the store.
type Entry struct {
	Timestamp     time.Time          `json:"timestamp"`
	UserID        string             `json:"user_id"`
	Modality      string             `json:"modality"`
	RouteKey      string             `json:"route"`
	IndustryKey   string             `json:"industry"`
	DifficultyKey string             `json:"difficulty"`
	Turns         int                `json:"turns"`
	Score         float64            `json:"score"`
	SectionScores map[string]float64 `json:"section_scores,omitempty"`
}

// Store persists entries as JSON lines in a local file.
// Safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a Store that writes to the given path.
// The file is created on first append if it does not exist.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Append writes one entry to the log. A zero Timestamp is filled with the
// current UTC time.
func (s *Store) Append(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("history: marshal: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("history: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("history: write: %w", err)
	}
	return nil
}
