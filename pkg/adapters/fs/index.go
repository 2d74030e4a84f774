package fs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// indexEntry represents collected metadata for a single committed file.
type indexEntry struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Type         string    `json:"type,omitempty"`
	LastModified time.Time `json:"lastModified"`
}

// indexState represents the persistent index state.
type indexState struct {
	Version int                    `json:"version"`
	Entries map[string]*indexEntry `json:"entries"` // Key is relative path (e.g. "documents/BXC...v1.bali")
	dirty   bool
	mu      sync.RWMutex
}

// index caches the type of stored files so listings need not decode them.
// Entries are invalidated by mtime, which covers rewritten drafts.
type index struct {
	Path  string // Path to {root}/{systemDir}/index.json
	state *indexState
}

// newIndex initializes an index under the given root.
func newIndex(root, systemDir string) *index {
	return &index{
		Path: filepath.Join(root, systemDir, "index.json"),
		state: &indexState{
			Version: 1,
			Entries: make(map[string]*indexEntry),
		},
	}
}

// Load reads the index from disk. If not found or invalid, the index starts empty.
func (x *index) Load() error {
	x.state.mu.Lock()
	defer x.state.mu.Unlock()

	data, err := os.ReadFile(x.Path)
	if os.IsNotExist(err) {
		return nil // Start fresh
	}
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}

	if err := json.Unmarshal(data, x.state); err != nil {
		// Treat corruption as an empty index to self-heal.
		x.state.Entries = make(map[string]*indexEntry)
		return nil
	}
	if x.state.Entries == nil {
		x.state.Entries = make(map[string]*indexEntry)
	}

	x.state.dirty = false
	return nil
}

// Save persists the index to disk if it's dirty.
func (x *index) Save() error {
	x.state.mu.RLock()
	if !x.state.dirty {
		x.state.mu.RUnlock()
		return nil
	}
	data, err := json.MarshalIndent(x.state, "", "  ")
	x.state.mu.RUnlock()

	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(x.Path), 0700); err != nil {
		return err
	}

	if err := writeFileAtomic(x.Path, data, 0600); err != nil {
		return err
	}

	x.state.mu.Lock()
	x.state.dirty = false
	x.state.mu.Unlock()

	return nil
}

// Get retrieves an entry if it exists and is fresh.
func (x *index) Get(relPath string, currentMtime time.Time) (*indexEntry, bool) {
	x.state.mu.RLock()
	defer x.state.mu.RUnlock()

	entry, ok := x.state.Entries[relPath]
	if !ok || !entry.LastModified.Equal(currentMtime) {
		return nil, false
	}
	return entry, true
}

// Set updates an entry in the index.
func (x *index) Set(relPath string, entry *indexEntry) {
	x.state.mu.Lock()
	defer x.state.mu.Unlock()

	x.state.Entries[relPath] = entry
	x.state.dirty = true
}

// Prune removes entries that are not in the 'keep' set.
func (x *index) Prune(keep map[string]bool) {
	x.state.mu.Lock()
	defer x.state.mu.Unlock()

	for path := range x.state.Entries {
		if !keep[path] {
			delete(x.state.Entries, path)
			x.state.dirty = true
		}
	}
}

// Len returns the number of entries in the index.
func (x *index) Len() int {
	x.state.mu.RLock()
	defer x.state.mu.RUnlock()
	return len(x.state.Entries)
}
