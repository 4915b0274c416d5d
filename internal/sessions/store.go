package sessions

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const archivedDirName = "archived"

// Store persists sessions under <root>/<agent_id>/<safe(key)>.json using
// an atomic write-to-temp-then-rename pattern, and accepts both the
// current {meta,messages} encoding and a legacy bare-array encoding.
type Store struct {
	root string

	mu    sync.RWMutex
	cache map[string]*Data
}

// NewStore constructs a Store rooted at dir. The directory is not created
// until the first Save.
func NewStore(dir string) *Store {
	return &Store{root: dir, cache: make(map[string]*Data)}
}

// safeFilename replaces ':' with '_' so a session key is usable as a
// single path component.
func safeFilename(key string) string {
	return strings.ReplaceAll(key, ":", "_")
}

// agentDirFor resolves the agent subdirectory a key is stored under.
func agentDirFor(key string) string {
	id := ParseIDOrDefault(key)
	if id.AgentID == "" {
		return DefaultAgentID
	}
	return id.AgentID
}

func (s *Store) sessionPath(key string) string {
	return filepath.Join(s.root, agentDirFor(key), safeFilename(key)+".json")
}

func (s *Store) archivePath(key string) string {
	return filepath.Join(s.root, agentDirFor(key), archivedDirName, safeFilename(key)+".json")
}

// Save atomically persists data under key: marshal to JSON, write to
// a "<target>.*.tmp" temp file in the same directory, fsync, then rename
// onto the target. The rename is
// atomic on POSIX and replaces the target file on Windows.
func (s *Store) Save(key string, data *Data) error {
	path := s.sessionPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("sessions: mkdir: %w", err)
	}
	buf, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("sessions: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("sessions: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sessions: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sessions: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("sessions: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("sessions: rename: %w", err)
	}

	s.mu.Lock()
	s.cache[key] = data
	s.mu.Unlock()
	return nil
}

// legacyArray is the pre-Meta persisted encoding: a bare JSON array of
// messages.
type legacyArray = []Message

// parseSessionJSON tries the current {meta,messages} encoding first, then
// falls back to a bare legacy message array, synthesizing a default Meta
// from key.
func parseSessionJSON(key string, buf []byte) (*Data, error) {
	var d Data
	if err := json.Unmarshal(buf, &d); err == nil && (d.Meta.ID.AgentID != "" || d.Messages != nil) {
		return &d, nil
	}
	var legacy legacyArray
	if err := json.Unmarshal(buf, &legacy); err != nil {
		return nil, fmt.Errorf("sessions: unrecognized encoding: %w", err)
	}
	id := ParseIDOrDefault(key)
	now := time.Now().UTC()
	meta := Meta{ID: id, CreatedAt: now, UpdatedAt: now}
	if len(legacy) > 0 {
		meta.CreatedAt = legacy[0].Timestamp
		meta.UpdatedAt = legacy[len(legacy)-1].Timestamp
	}
	return &Data{Meta: meta, Messages: legacy}, nil
}

// Load reads the session for key, accepting both the current and legacy
// encodings. Returns (nil, nil) if the file does not exist.
func (s *Store) Load(key string) (*Data, error) {
	path := s.sessionPath(key)
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("sessions: read: %w", err)
	}
	data, err := parseSessionJSON(key, buf)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache[key] = data
	s.mu.Unlock()
	return data, nil
}

// LoadOrCreate loads the session for key, creating an empty one if it
// does not exist on disk.
func (s *Store) LoadOrCreate(key string) (*Data, error) {
	data, err := s.Load(key)
	if err != nil {
		return nil, err
	}
	if data == nil {
		id := ParseIDOrDefault(key)
		data = NewData(id)
	}
	return data, nil
}

// LoadAll enumerates every agent subdirectory under root except the
// reserved "archived" name, skipping non-.json files; corrupt files are
// logged and skipped, never fatal .
func (s *Store) LoadAll() (map[string]*Data, error) {
	out := make(map[string]*Data)
	agentDirs, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("sessions: read root: %w", err)
	}
	for _, ad := range agentDirs {
		if !ad.IsDir() {
			continue
		}
		agentDirPath := filepath.Join(s.root, ad.Name())
		entries, err := os.ReadDir(agentDirPath)
		if err != nil {
			slog.Warn("sessions: skip unreadable agent dir", "dir", agentDirPath, "error", err)
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue // skips archived/ and any other subdirectory
			}
			if !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			full := filepath.Join(agentDirPath, e.Name())
			buf, err := os.ReadFile(full)
			if err != nil {
				slog.Warn("sessions: skip unreadable session file", "file", full, "error", err)
				continue
			}
			key := recoverKeyFromFilename(ad.Name(), e.Name())
			data, err := parseSessionJSON(key, buf)
			if err != nil {
				slog.Warn("sessions: skip corrupt session file", "file", full, "error", err)
				continue
			}
			out[key] = data
		}
	}
	s.mu.Lock()
	for k, v := range out {
		s.cache[k] = v
	}
	s.mu.Unlock()
	return out, nil
}

// recoverKeyFromFilename reverses safeFilename for the common case where
// the original key had no literal underscores standing in for colons
// that matter; the agent directory name anchors the agent id regardless.
func recoverKeyFromFilename(agentDir, filename string) string {
	name := strings.TrimSuffix(filename, ".json")
	return strings.ReplaceAll(name, "_", ":")
}

// ArchiveInactive moves every session file whose mtime is older than
// maxInactive into its agent's archived/ subdirectory, returning the
// count moved.
func (s *Store) ArchiveInactive(maxInactive time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxInactive)
	moved := 0

	agentDirs, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("sessions: read root: %w", err)
	}
	for _, ad := range agentDirs {
		if !ad.IsDir() {
			continue
		}
		agentDirPath := filepath.Join(s.root, ad.Name())
		entries, err := os.ReadDir(agentDirPath)
		if err != nil {
			continue
		}
		archiveDir := filepath.Join(agentDirPath, archivedDirName)
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			info, err := e.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			if err := os.MkdirAll(archiveDir, 0o755); err != nil {
				return moved, fmt.Errorf("sessions: mkdir archive: %w", err)
			}
			src := filepath.Join(agentDirPath, e.Name())
			dst := filepath.Join(archiveDir, e.Name())
			if err := os.Rename(src, dst); err != nil {
				slog.Warn("sessions: failed to archive", "file", src, "error", err)
				continue
			}
			moved++
		}
	}
	return moved, nil
}

// Delete removes the session for key from disk and cache.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
	path := s.sessionPath(key)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sessions: delete: %w", err)
	}
	return nil
}
