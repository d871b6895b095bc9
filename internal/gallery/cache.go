package gallery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vkravcenko/attendance/internal/codec"
)

// CacheFileName is the JSON sidecar holding cached reference encodings,
// stored inside the gallery directory. Keyed by source filename; an entry
// is valid only while the file's SHA-256 still matches, so edits and
// replacements invalidate it regardless of modtime.
const CacheFileName = ".embeddings.json"

const cacheVersion = 2

type cacheFile struct {
	Version int                   `json:"version"`
	Entries map[string]cacheEntry `json:"entries"`
}

type cacheEntry struct {
	SHA256    string          `json:"sha256"`
	ModTime   time.Time       `json:"mod_time"`
	Embedding codec.Embedding `json:"embedding"`
	Faces     int             `json:"faces"` // detections found; only the first embedding is kept
}

// loadCache reads the sidecar. A missing, unreadable or version-mismatched
// sidecar is treated as empty; the cache is purely derived state.
func loadCache(dir string) map[string]cacheEntry {
	data, err := os.ReadFile(filepath.Join(dir, CacheFileName))
	if err != nil {
		return map[string]cacheEntry{}
	}

	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil || cf.Version != cacheVersion {
		return map[string]cacheEntry{}
	}
	if cf.Entries == nil {
		return map[string]cacheEntry{}
	}
	return cf.Entries
}

// saveCache rewrites the sidecar atomically.
func saveCache(dir string, entries map[string]cacheEntry) error {
	data, err := json.MarshalIndent(cacheFile{Version: cacheVersion, Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling encoding cache: %w", err)
	}

	path := filepath.Join(dir, CacheFileName)
	tmp, err := os.CreateTemp(dir, CacheFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing encoding cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing encoding cache: %w", err)
	}
	return nil
}
