package index

import (
	"os"
	"path/filepath"
	"sync"
)

// Handle is a stable reference to the current store. The ingest worker swaps
// in a new snapshot after each successful build; readers see either the old
// or the new store, never a partial one.
type Handle struct {
	mu       sync.RWMutex
	cacheDir string
	store    *Store
}

// NewHandle starts unset; cacheDir locates the persisted artifacts so Clear
// works before any store is attached.
func NewHandle(cacheDir string) *Handle {
	return &Handle{cacheDir: cacheDir}
}

func (h *Handle) Set(s *Store) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.store = s
}

// Search delegates to the current store; an unset handle behaves as an
// empty index.
func (h *Handle) Search(query []float32, k int) []Hit {
	h.mu.RLock()
	s := h.store
	h.mu.RUnlock()
	if s == nil {
		return nil
	}
	return s.Search(query, k)
}

func (h *Handle) Count() int {
	h.mu.RLock()
	s := h.store
	h.mu.RUnlock()
	if s == nil {
		return 0
	}
	return s.Count()
}

func (h *Handle) Dimension() int {
	h.mu.RLock()
	s := h.store
	h.mu.RUnlock()
	if s == nil {
		return 0
	}
	return s.Dimension()
}

// Clear removes the persisted artifacts and detaches the store. The
// artifacts are removed even when no store is attached yet, so clearing
// right after a restart still discards a previously persisted index.
func (h *Handle) Clear() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.store != nil {
		if err := h.store.Clear(); err != nil {
			return err
		}
		h.store = nil
		return nil
	}
	for _, name := range []string{IndexFile, MetaFile} {
		if err := os.Remove(filepath.Join(h.cacheDir, name)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
