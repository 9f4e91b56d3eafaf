package history

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestStore_Append(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sessions.jsonl")
	store := NewStore(path)

	first := Entry{
		UserID:        "u1",
		Modality:      "text",
		RouteKey:      "cold_call",
		IndustryKey:   "roofing",
		DifficultyKey: "easy",
		Turns:         4,
		Score:         72.5,
		SectionScores: map[string]float64{"opening": 80},
	}
	if err := store.Append(first); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := store.Append(Entry{UserID: "u2", Modality: "voice", Score: 41}); err != nil {
		t.Fatalf("Append() second error = %v", err)
	}

	entries := readEntries(t, path)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	got := entries[0]
	if got.UserID != "u1" || got.RouteKey != "cold_call" || got.Score != 72.5 {
		t.Errorf("first entry = %+v, want fields from %+v", got, first)
	}
	if got.Timestamp.IsZero() {
		t.Error("zero timestamp was not filled in")
	}
	if got.SectionScores["opening"] != 80 {
		t.Errorf("SectionScores[opening] = %v, want 80", got.SectionScores["opening"])
	}
	if entries[1].Modality != "voice" {
		t.Errorf("second entry modality = %q, want voice", entries[1].Modality)
	}
}

func TestStore_AppendKeepsTimestamp(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sessions.jsonl")
	store := NewStore(path)

	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.Append(Entry{UserID: "u1", Timestamp: ts}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	entries := readEntries(t, path)
	if !entries[0].Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", entries[0].Timestamp, ts)
	}
}

func TestStore_ConcurrentAppend(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sessions.jsonl")
	store := NewStore(path)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Append(Entry{UserID: "u", Modality: "text"}); err != nil {
				t.Errorf("Append() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := len(readEntries(t, path)); got != 10 {
		t.Errorf("got %d entries, want 10", got)
	}
}

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		entries = append(entries, e)
	}
	return entries
}
