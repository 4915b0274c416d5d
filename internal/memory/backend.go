package memory

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

// Backend bundles the six memory operations the agent loop's system
// prompt assembly and write-back path need (three reads, two appends and
// a forced reindex) rather than inlining three separate lookups into the
// loop.
var _ Backend = (*Index)(nil)

type Backend interface {
	// LongTermMemory returns the raw contents of MEMORY.md, or "" if the
	// agent has none yet.
	LongTermMemory() (string, error)
	// RecentDailyNotes returns the last n daily notes (by filename date),
	// most recent last.
	RecentDailyNotes(n int) ([]MemoryEntry, error)
	// HybridSearchContext runs HybridSearch and renders the results as a
	// single prompt-ready block, or "" if nothing matched.
	HybridSearchContext(ctx context.Context, query string, limit int) (string, error)
	// AppendLongTerm appends a section to MEMORY.md.
	AppendLongTerm(section string) error
	// AppendDailyNote appends content to today's daily note file.
	AppendDailyNote(content string) error
	// IndexNow forces a full reindex, returning the chunk count produced.
	IndexNow(ctx context.Context) (int, error)
}

// LongTermMemory reads MEMORY.md directly from disk (the file itself is
// the source of truth; the chunk/vector tables are a derived cache used
// only for HybridSearch).
func (idx *Index) LongTermMemory() (string, error) {
	raw, err := os.ReadFile(filepath.Join(idx.memRoot, "MEMORY.md"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(raw), nil
}

// RecentDailyNotes returns the n most recent daily notes under
// <memRoot>/memory, oldest first within the returned window (matching
// Search's ascending-by-date order).
func (idx *Index) RecentDailyNotes(n int) ([]MemoryEntry, error) {
	all, err := idx.Search(nil, nil, nil)
	if err != nil {
		return nil, err
	}
	if n <= 0 || len(all) <= n {
		return all, nil
	}
	return all[len(all)-n:], nil
}

// HybridSearchContext runs HybridSearch with the index's configured
// vector/text weights (defaulting to 0.6/0.4 when both are zero) and
// renders the results as a prompt-ready block.
func (idx *Index) HybridSearchContext(ctx context.Context, query string, limit int) (string, error) {
	wVec, wText := idx.weights.VectorWeight, idx.weights.TextWeight
	if wVec == 0 && wText == 0 {
		wVec, wText = 0.6, 0.4
	}
	chunks, err := idx.HybridSearch(ctx, query, limit, wVec, wText)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", nil
	}
	var b []byte
	for _, c := range chunks {
		b = append(b, []byte("### "+c.Source+"\n"+c.Content+"\n\n")...)
	}
	return string(b), nil
}

// AppendLongTerm appends section (with a blank-line separator) to
// MEMORY.md, creating it if absent.
func (idx *Index) AppendLongTerm(section string) error {
	path := filepath.Join(idx.memRoot, "MEMORY.md")
	return appendWithSeparator(path, section)
}

// AppendDailyNote appends content to today's <memRoot>/memory/YYYY-MM-DD.md.
func (idx *Index) AppendDailyNote(content string) error {
	name := time.Now().UTC().Format("2006-01-02") + ".md"
	path := filepath.Join(idx.memRoot, "memory", name)
	return appendWithSeparator(path, content)
}

func appendWithSeparator(path, content string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err == nil && info.Size() > 0 {
		if _, err := f.WriteString("\n\n"); err != nil {
			return err
		}
	}
	_, err = f.WriteString(content)
	return err
}

// IndexNow forces a full reindex.
func (idx *Index) IndexNow(ctx context.Context) (int, error) {
	return idx.Reindex(ctx)
}
