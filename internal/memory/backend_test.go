package memory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLongTermMemoryMissingFileIsEmpty(t *testing.T) {
	idx := newTestIndex(t)
	got, err := idx.LongTermMemory()
	if err != nil || got != "" {
		t.Fatalf("LongTermMemory on fresh agent = (%q, %v)", got, err)
	}
}

func TestAppendLongTermSeparatesSections(t *testing.T) {
	idx := newTestIndex(t)
	if err := idx.AppendLongTerm("first fact"); err != nil {
		t.Fatal(err)
	}
	if err := idx.AppendLongTerm("second fact"); err != nil {
		t.Fatal(err)
	}
	got, err := idx.LongTermMemory()
	if err != nil {
		t.Fatal(err)
	}
	if got != "first fact\n\nsecond fact" {
		t.Fatalf("long-term memory = %q", got)
	}
}

func TestAppendDailyNoteCreatesDatedFile(t *testing.T) {
	idx := newTestIndex(t)
	if err := idx.AppendDailyNote("met with the team"); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(filepath.Join(idx.memRoot, "memory"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("daily notes dir = %v, %v", entries, err)
	}
	name := entries[0].Name()
	if !dailyFileRe.MatchString(name) {
		t.Errorf("daily note name %q is not YYYY-MM-DD.md", name)
	}
}

func TestRecentDailyNotesWindow(t *testing.T) {
	idx := newTestIndex(t)
	dir := filepath.Join(idx.memRoot, "memory")
	for _, name := range []string{"2024-03-01.md", "2024-03-02.md", "2024-03-03.md", "2024-03-04.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("note "+name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	notes, err := idx.RecentDailyNotes(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 2 {
		t.Fatalf("window = %d notes, want 2", len(notes))
	}
	if notes[0].Date.Day() != 3 || notes[1].Date.Day() != 4 {
		t.Errorf("window picked wrong days: %v %v", notes[0].Date, notes[1].Date)
	}
}

func TestHybridSearchContextRendersBlock(t *testing.T) {
	idx := newTestIndex(t)
	if err := os.WriteFile(filepath.Join(idx.memRoot, "MEMORY.md"), []byte("The deploy key lives in vault.\n\nUnrelated trivia."), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Reindex(context.Background()); err != nil {
		t.Fatal(err)
	}
	block, err := idx.HybridSearchContext(context.Background(), "deploy key", 5)
	if err != nil {
		t.Fatalf("HybridSearchContext: %v", err)
	}
	if !strings.Contains(block, "deploy key") || !strings.Contains(block, "MEMORY.md") {
		t.Errorf("context block = %q", block)
	}
}
