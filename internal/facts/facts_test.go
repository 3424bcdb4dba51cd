package facts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const fixtureRoot = "../../data/patches"

// TestDirStore_LoadFixture tests that the bundled patch loads with every list populated
func TestDirStore_LoadFixture(t *testing.T) {
	store := NewDirStore(fixtureRoot)

	pf, err := store.Load(context.Background(), "14.99")
	require.NoError(t, err)

	assert.Equal(t, "14.99", pf.Patch)
	assert.NotEmpty(t, pf.Items)
	assert.NotEmpty(t, pf.Champions)
	assert.NotEmpty(t, pf.Runes)
	assert.NotEmpty(t, pf.GuideDocs)

	_, ok := pf.ItemIDs()[3123]
	assert.True(t, ok, "Executioner's Calling should be in the fixture")

	anti := pf.ItemsWithTag(TagGrievousWounds)
	require.GreaterOrEqual(t, len(anti), 2)
	assert.Equal(t, 3123, anti[0].ID)

	c, ok := pf.Champion("soraka")
	assert.True(t, ok)
	assert.Equal(t, "Soraka", c.Name)
}

// TestDirStore_UnknownPatch tests that missing and malformed ids map to ErrPatchNotFound
func TestDirStore_UnknownPatch(t *testing.T) {
	store := NewDirStore(fixtureRoot)

	for _, patch := range []string{"0.0", "", "..", "../patches", `14.99\..`} {
		_, err := store.Load(context.Background(), patch)
		assert.True(t, errors.Is(err, ErrPatchNotFound), "patch %q: got %v", patch, err)
	}
}

// TestDirStore_GuidesOptional tests that a patch without guides.json loads with no documents
func TestDirStore_GuidesOptional(t *testing.T) {
	root := t.TempDir()
	store := NewDirStore(root)

	require.NoError(t, store.Write(PatchFacts{
		Patch: "1.0",
		Items: []Item{{ID: 1, Name: "A", Tags: []string{"x"}}},
	}))
	require.NoError(t, os.Remove(filepath.Join(root, "1.0", "guides.json")))

	pf, err := store.Load(context.Background(), "1.0")
	require.NoError(t, err)
	assert.Empty(t, pf.GuideDocs)
	assert.Len(t, pf.Items, 1)
}

// TestDirStore_WriteKeepsGuides tests that rewriting a patch without guides keeps the existing file
func TestDirStore_WriteKeepsGuides(t *testing.T) {
	store := NewDirStore(t.TempDir())

	require.NoError(t, store.Write(PatchFacts{
		Patch:     "2.0",
		GuideDocs: []GuideDocument{{ID: "ahri", Champion: "Ahri", Text: "charm"}},
	}))
	require.NoError(t, store.Write(PatchFacts{
		Patch: "2.0",
		Items: []Item{{ID: 7, Name: "Seven"}},
	}))

	pf, err := store.Load(context.Background(), "2.0")
	require.NoError(t, err)
	require.Len(t, pf.GuideDocs, 1)
	assert.Equal(t, "ahri", pf.GuideDocs[0].ID)
	assert.Len(t, pf.Items, 1)

	patches, err := store.Patches()
	require.NoError(t, err)
	assert.Equal(t, []string{"2.0"}, patches)
}

// TestSQLStore_ImportLoad tests a full patch round trip through SQLite
func TestSQLStore_ImportLoad(t *testing.T) {
	ctx := context.Background()
	src, err := NewDirStore(fixtureRoot).Load(ctx, "14.99")
	require.NoError(t, err)

	store, err := OpenSQLStore(ctx, DriverSQLite, filepath.Join(t.TempDir(), "facts.db"), "")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Import(ctx, src))
	// importing twice replaces rather than duplicates
	require.NoError(t, store.Import(ctx, src))

	got, err := store.Load(ctx, "14.99")
	require.NoError(t, err)

	assert.Len(t, got.Items, len(src.Items))
	assert.Len(t, got.Champions, len(src.Champions))
	assert.Len(t, got.Runes, len(src.Runes))
	assert.Len(t, got.GuideDocs, len(src.GuideDocs))
	assert.Equal(t, src.ItemIDs(), got.ItemIDs())
	assert.Equal(t, src.GuideDocs[0], got.GuideDocs[0])

	exec := got.ItemsWithTag(TagGrievousWounds)
	require.NotEmpty(t, exec)
	assert.Equal(t, 3123, exec[0].ID)
}

// TestSQLStore_UnknownPatch tests that a patch with no registry row is not found
func TestSQLStore_UnknownPatch(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLStore(ctx, DriverSQLite, filepath.Join(t.TempDir(), "facts.db"), "")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load(ctx, "9.9")
	assert.ErrorIs(t, err, ErrPatchNotFound)
}

// TestOpenSQLStore_BadDriver tests that unknown drivers are rejected before opening
func TestOpenSQLStore_BadDriver(t *testing.T) {
	_, err := OpenSQLStore(context.Background(), "mysql", "x", "")
	assert.Error(t, err)

	_, err = OpenSQLStore(context.Background(), DriverLibSQL, "", "")
	assert.Error(t, err)
}

type countingStore struct {
	calls int
	pf    PatchFacts
	err   error
}

func (s *countingStore) Load(ctx context.Context, patch string) (PatchFacts, error) {
	s.calls++
	if s.err != nil {
		return PatchFacts{}, s.err
	}
	pf := s.pf
	pf.Patch = patch
	return pf, nil
}

// TestCachedStore tests read-through caching and invalidation
func TestCachedStore(t *testing.T) {
	inner := &countingStore{pf: PatchFacts{Items: []Item{{ID: 1}}}}
	cache := NewCachedStore(inner)
	ctx := context.Background()

	_, err := cache.Load(ctx, "1.0")
	require.NoError(t, err)
	_, err = cache.Load(ctx, "1.0")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.True(t, cache.Cached("1.0"))

	cache.Invalidate("1.0")
	assert.False(t, cache.Cached("1.0"))
	_, err = cache.Load(ctx, "1.0")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

// TestCachedStore_ErrorsNotCached tests that failed loads are retried
func TestCachedStore_ErrorsNotCached(t *testing.T) {
	inner := &countingStore{err: ErrPatchNotFound}
	cache := NewCachedStore(inner)

	_, err := cache.Load(context.Background(), "x")
	assert.ErrorIs(t, err, ErrPatchNotFound)
	_, err = cache.Load(context.Background(), "x")
	assert.ErrorIs(t, err, ErrPatchNotFound)
	assert.Equal(t, 2, inner.calls)
	assert.False(t, cache.Cached("x"))
}

// TestCachedStore_Watch tests that writing a patch file drops the cached entry
func TestCachedStore_Watch(t *testing.T) {
	root := t.TempDir()
	dir := NewDirStore(root)
	require.NoError(t, dir.Write(PatchFacts{Patch: "3.0", Items: []Item{{ID: 1, Name: "One"}}}))

	cache := NewCachedStore(dir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, cache.Watch(ctx, dir, zap.NewNop()))

	_, err := cache.Load(ctx, "3.0")
	require.NoError(t, err)
	require.True(t, cache.Cached("3.0"))

	require.NoError(t, dir.Write(PatchFacts{Patch: "3.0", Items: []Item{{ID: 2, Name: "Two"}}}))

	assert.Eventually(t, func() bool { return !cache.Cached("3.0") }, 2*time.Second, 10*time.Millisecond)

	pf, err := cache.Load(ctx, "3.0")
	require.NoError(t, err)
	require.Len(t, pf.Items, 1)
	assert.Equal(t, 2, pf.Items[0].ID)
}

func TestPatchForPath(t *testing.T) {
	root := filepath.Join("data", "patches")
	assert.Equal(t, "14.99", patchForPath(root, filepath.Join(root, "14.99", "items.json")))
	assert.Equal(t, "14.99", patchForPath(root, filepath.Join(root, "14.99")))
	assert.Equal(t, "", patchForPath(root, root))
	assert.Equal(t, "", patchForPath(root, filepath.Join("elsewhere", "x.json")))
}
