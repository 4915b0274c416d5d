package memory

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/philippgille/chromem-go"
)

// source pairs a markdown file's display name (MEMORY.md, or the daily
// file's basename) with its absolute path.
type source struct {
	name string
	path string
}

func (idx *Index) sources() ([]source, error) {
	var out []source

	longTerm := filepath.Join(idx.memRoot, "MEMORY.md")
	if _, err := os.Stat(longTerm); err == nil {
		out = append(out, source{name: "MEMORY.md", path: longTerm})
	}

	dailyDir := filepath.Join(idx.memRoot, "memory")
	entries, err := os.ReadDir(dailyDir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		out = append(out, source{name: e.Name(), path: filepath.Join(dailyDir, e.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

// maxMtime returns the latest modification time across every source file.
func (idx *Index) maxMtime() (time.Time, error) {
	srcs, err := idx.sources()
	if err != nil {
		return time.Time{}, err
	}
	var latest time.Time
	for _, s := range srcs {
		info, err := os.Stat(s.path)
		if err != nil {
			continue
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}
	return latest, nil
}

func (idx *Index) stampPath() string {
	return filepath.Join(idx.memRoot, ".last_index")
}

func (idx *Index) readStamp() (int64, error) {
	raw, err := os.ReadFile(idx.stampPath())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
}

func (idx *Index) writeStamp(t time.Time) error {
	tmp := idx.stampPath() + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatInt(t.UnixNano(), 10)), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, idx.stampPath())
}

// Reindex clears the chunk table, FTS table, and vector collection, then
// rebuilds them from MEMORY.md and every memory/*.md file. It returns the
// total chunk count produced.
func (idx *Index) Reindex(ctx context.Context) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var staleIDs []string
	rows, err := idx.db.QueryContext(ctx, "SELECT id FROM chunks")
	if err != nil {
		return 0, err
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		staleIDs = append(staleIDs, chunkIDString(id))
	}
	rows.Close()

	if _, err := idx.db.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return 0, err
	}
	if _, err := idx.db.ExecContext(ctx, "DELETE FROM memory_fts"); err != nil {
		return 0, err
	}
	if len(staleIDs) > 0 {
		if err := idx.vecColl.Delete(ctx, nil, nil, staleIDs...); err != nil {
			return 0, err
		}
	}

	srcs, err := idx.sources()
	if err != nil {
		return 0, err
	}

	count := 0
	var latest time.Time
	for _, s := range srcs {
		raw, err := os.ReadFile(s.path)
		if err != nil {
			continue
		}
		if info, err := os.Stat(s.path); err == nil && info.ModTime().After(latest) {
			latest = info.ModTime()
		}

		body := raw
		if s.name != "MEMORY.md" {
			_, stripped := parseFrontMatter(string(raw))
			body = []byte(stripped)
		}

		for _, chunk := range chunkSource(string(body)) {
			res, err := idx.db.ExecContext(ctx,
				"INSERT INTO chunks (source, content) VALUES (?, ?)", s.name, chunk)
			if err != nil {
				return count, err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return count, err
			}

			if _, err := idx.db.ExecContext(ctx,
				"INSERT INTO memory_fts (rowid, content) VALUES (?, ?)", id, chunk); err != nil {
				return count, err
			}

			if err := idx.vecColl.AddDocument(ctx, chromem.Document{
				ID:      chunkIDString(id),
				Content: chunk,
				Metadata: map[string]string{
					"source": s.name,
				},
			}); err != nil {
				return count, err
			}
			count++
		}
	}

	if err := idx.writeStamp(latest); err != nil {
		return count, err
	}
	return count, nil
}

// ReindexIfChanged compares the latest source mtime against the persisted
// .last_index stamp and reindexes only when a file has changed since.
func (idx *Index) ReindexIfChanged(ctx context.Context) (int, error) {
	latest, err := idx.maxMtime()
	if err != nil {
		logReindexError(idx.agentID, err)
		return 0, err
	}
	if latest.IsZero() {
		return 0, nil
	}

	stamp, err := idx.readStamp()
	if err != nil {
		logReindexError(idx.agentID, err)
		stamp = 0
	}
	if latest.UnixNano() <= stamp {
		return 0, nil
	}

	count, err := idx.Reindex(ctx)
	if err != nil {
		logReindexError(idx.agentID, err)
		return 0, err
	}
	return count, nil
}
