package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw-kernel/internal/config"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	root := t.TempDir()
	idx, err := Open("testagent", root, config.MemoryConfig{}, config.ProvidersConfig{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestReindexProducesThreeChunksFromThreeParagraphs(t *testing.T) {
	idx := newTestIndex(t)
	if err := os.WriteFile(filepath.Join(idx.memRoot, "MEMORY.md"), []byte("A\n\nB\n\nC"), 0o644); err != nil {
		t.Fatal(err)
	}

	count, err := idx.Reindex(context.Background())
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if count != 3 {
		t.Fatalf("Reindex produced %d chunks, want 3", count)
	}
}

func TestHybridSearchRanksExactMatchFirst(t *testing.T) {
	idx := newTestIndex(t)
	if err := os.WriteFile(filepath.Join(idx.memRoot, "MEMORY.md"), []byte("A\n\nsomething else entirely\n\nanother unrelated note"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Reindex(context.Background()); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	chunks, err := idx.HybridSearch(context.Background(), "A", 10, 1.0, 0.0)
	if err != nil {
		t.Fatalf("HybridSearch: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("HybridSearch returned no results")
	}
	if chunks[0].Content != "A" {
		t.Errorf("top result = %q, want %q", chunks[0].Content, "A")
	}
}

func TestHybridSearchEmptyQueryIsWellDefined(t *testing.T) {
	idx := newTestIndex(t)
	if err := os.WriteFile(filepath.Join(idx.memRoot, "MEMORY.md"), []byte("one\n\ntwo\n\nthree\n\nfour\n\nfive\n\nsix"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Reindex(context.Background()); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	chunks, err := idx.HybridSearch(context.Background(), "", 5, 0.6, 0.4)
	if err != nil {
		t.Fatalf("HybridSearch(\"\"): %v", err)
	}
	if len(chunks) > 5 {
		t.Errorf("HybridSearch(\"\") returned %d results, want <= 5", len(chunks))
	}
}

func TestReindexIfChangedSkipsWhenUnmodified(t *testing.T) {
	idx := newTestIndex(t)
	if err := os.WriteFile(filepath.Join(idx.memRoot, "MEMORY.md"), []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := idx.ReindexIfChanged(context.Background()); err != nil {
		t.Fatalf("first ReindexIfChanged: %v", err)
	}
	count, err := idx.ReindexIfChanged(context.Background())
	if err != nil {
		t.Fatalf("second ReindexIfChanged: %v", err)
	}
	if count != 0 {
		t.Errorf("ReindexIfChanged with no modification returned %d, want 0", count)
	}
}

func TestSearchFiltersByDateAndTag(t *testing.T) {
	idx := newTestIndex(t)
	dailyDir := filepath.Join(idx.memRoot, "memory")

	write := func(name, content string) {
		if err := os.WriteFile(filepath.Join(dailyDir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("2024-01-01.md", "---\ntags: [work]\n---\nfirst note")
	write("2024-01-02.md", "---\ntags: [personal]\n---\nsecond note")
	write("2024-01-03.md", "third note, no front matter")

	all, err := idx.Search(nil, nil, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Search(nil,nil,nil) = %d entries, want 3", len(all))
	}
	if !all[0].Date.Before(all[1].Date) || !all[1].Date.Before(all[2].Date) {
		t.Error("Search results not sorted ascending by date")
	}

	work, err := idx.Search(nil, nil, []string{"work"})
	if err != nil {
		t.Fatalf("Search(tags=work): %v", err)
	}
	if len(work) != 1 || work[0].Content != "first note" {
		t.Fatalf("Search(tags=work) = %+v, want one entry \"first note\"", work)
	}

	from := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	ranged, err := idx.Search(&from, nil, nil)
	if err != nil {
		t.Fatalf("Search(from=2024-01-02): %v", err)
	}
	if len(ranged) != 2 {
		t.Fatalf("Search(from=2024-01-02) = %d entries, want 2", len(ranged))
	}
}
