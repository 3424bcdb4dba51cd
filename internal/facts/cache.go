package facts

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// CachedStore is a read-through cache in front of another Store.
// Failed loads are not cached.
type CachedStore struct {
	next Store

	mu   sync.RWMutex
	data map[string]PatchFacts
}

// NewCachedStore wraps next with an in-memory cache
func NewCachedStore(next Store) *CachedStore {
	return &CachedStore{
		next: next,
		data: make(map[string]PatchFacts),
	}
}

// Load returns the cached patch or loads it from the wrapped store
func (c *CachedStore) Load(ctx context.Context, patch string) (PatchFacts, error) {
	c.mu.RLock()
	pf, ok := c.data[patch]
	c.mu.RUnlock()
	if ok {
		return pf, nil
	}

	pf, err := c.next.Load(ctx, patch)
	if err != nil {
		return PatchFacts{}, err
	}

	c.mu.Lock()
	c.data[patch] = pf
	c.mu.Unlock()
	return pf, nil
}

// Invalidate drops a cached patch
func (c *CachedStore) Invalidate(patch string) {
	c.mu.Lock()
	delete(c.data, patch)
	c.mu.Unlock()
}

// Clear drops every cached patch
func (c *CachedStore) Clear() {
	c.mu.Lock()
	c.data = make(map[string]PatchFacts)
	c.mu.Unlock()
}

// Cached reports whether patch is currently held in memory
func (c *CachedStore) Cached(patch string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.data[patch]
	return ok
}

// Watch invalidates cache entries whenever files under a DirStore root
// change. It returns once the watcher is installed; the watch runs until
// ctx is done.
func (c *CachedStore) Watch(ctx context.Context, dir *DirStore, logger *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(dir.Root()); err != nil {
		watcher.Close()
		return err
	}
	patches, _ := dir.Patches()
	for _, p := range patches {
		if err := watcher.Add(filepath.Join(dir.Root(), p)); err != nil {
			logger.Warn("cannot watch patch directory", zap.String("patch", p), zap.Error(err))
		}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				patch := patchForPath(dir.Root(), ev.Name)
				if patch == "" {
					continue
				}
				if ev.Has(fsnotify.Create) && filepath.Dir(ev.Name) == filepath.Clean(dir.Root()) {
					_ = watcher.Add(ev.Name)
				}
				c.Invalidate(patch)
				logger.Debug("patch invalidated", zap.String("patch", patch), zap.String("op", ev.Op.String()))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("fact watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

// patchForPath maps a changed path to the patch id it belongs to
func patchForPath(root, name string) string {
	rel, err := filepath.Rel(root, name)
	if err != nil || rel == "." || rel == ".." || filepath.IsAbs(rel) {
		return ""
	}
	first := rel
	if dir, _ := filepath.Split(rel); dir != "" {
		first = filepath.Clean(dir)
		for filepath.Dir(first) != "." {
			first = filepath.Dir(first)
		}
	}
	if !validPatchID(first) {
		return ""
	}
	return first
}
