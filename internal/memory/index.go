// Package memory implements the per-agent hybrid vector+BM25 search index
// over an agent's markdown notes (long-term MEMORY.md plus dated entries
// under memory/YYYY-MM-DD.md).
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/goclaw-kernel/internal/config"
)

// embeddingDim is the fixed vector width (D) every embedding must produce.
const embeddingDim = 384

// EmbeddingFunc computes an embedding vector for a chunk of text.
type EmbeddingFunc = chromem.EmbeddingFunc

// IndexedChunk is one retrievable unit of memory content.
type IndexedChunk struct {
	ID      int64
	Source  string
	Content string
	Score   float64
}

// Index is the per-agent memory store: a chunk table plus an FTS5 virtual
// table in SQLite (the system of record for chunk text) paired with a
// chromem-go vector collection keyed by chunk id. The markdown files under
// the agent's memory root remain the ultimate source of truth; both tables
// are derivable caches rebuilt on every full reindex.
type Index struct {
	agentID string
	memRoot string // <memory_root>/<agent_id>
	weights config.MemoryConfig

	mu      sync.Mutex
	db      *sql.DB
	vecDB   *chromem.DB
	vecColl *chromem.Collection
	embed   EmbeddingFunc
}

// Open creates or opens the memory index rooted at memRoot
// (<memory_root>/<agent_id>), creating the directory and schema as needed.
func Open(agentID, memRoot string, cfg config.MemoryConfig, providers config.ProvidersConfig) (*Index, error) {
	if err := os.MkdirAll(memRoot, 0o755); err != nil {
		return nil, fmt.Errorf("memory: create root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(memRoot, "memory"), 0o755); err != nil {
		return nil, fmt.Errorf("memory: create daily-notes dir: %w", err)
	}

	dbPath := filepath.Join(memRoot, agentID+".sqlite")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("memory: open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: enable WAL: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: migrate: %w", err)
	}

	vecDB, err := chromem.NewPersistentDB(filepath.Join(memRoot, "vectors"), false)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: open vector store: %w", err)
	}
	embed := resolveEmbeddingFunc(cfg, providers)
	coll, err := vecDB.GetOrCreateCollection("chunks", nil, embed)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: open vector collection: %w", err)
	}

	return &Index{
		agentID: agentID,
		memRoot: memRoot,
		weights: cfg,
		db:      db,
		vecDB:   vecDB,
		vecColl: coll,
		embed:   embed,
	}, nil
}

// Close releases the underlying SQLite handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			source  TEXT NOT NULL,
			content TEXT NOT NULL
		);
	`)
	if err != nil {
		return err
	}

	var exists int
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='memory_fts'`,
	).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		_, err = db.Exec(`CREATE VIRTUAL TABLE memory_fts USING fts5(content);`)
		if err != nil {
			return err
		}
	}
	return nil
}

// resolveEmbeddingFunc prefers a configured OpenAI-compatible key for real
// embeddings; with none configured it falls back to a fixed-dimension zero
// vector so the index still functions fully offline (FTS carries search).
func resolveEmbeddingFunc(cfg config.MemoryConfig, providers config.ProvidersConfig) EmbeddingFunc {
	model := cfg.EmbeddingModel
	if model == "" {
		model = "text-embedding-3-small"
	}
	if providers.OpenAI.APIKey != "" && !strings.EqualFold(cfg.Backend, "offline") {
		return chromem.NewEmbeddingFuncOpenAI(providers.OpenAI.APIKey, chromem.EmbeddingModelOpenAI(model))
	}
	return stubEmbeddingFunc
}

// stubEmbeddingFunc emits a fixed-length zero vector. It keeps the vector
// collection schema-valid without requiring network access; hybrid_search
// treats an all-zero similarity side as contributing nothing (see
// vectorScores' handling of undefined similarities).
func stubEmbeddingFunc(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, embeddingDim), nil
}

func chunkIDString(id int64) string {
	return strconv.FormatInt(id, 10)
}

func logReindexError(agentID string, err error) {
	slog.Warn("memory: reindex failed, keeping last successful index", "agent", agentID, "error", err)
}
