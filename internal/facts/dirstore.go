package facts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// DirStore reads patch data from <root>/<patch>/{items,champs,runes,guides}.json
type DirStore struct {
	root string
}

// NewDirStore creates a store rooted at dir
func NewDirStore(dir string) *DirStore {
	return &DirStore{root: dir}
}

// Root returns the directory holding patch folders
func (s *DirStore) Root() string {
	return s.root
}

// Load reads every file of a patch. guides.json is optional.
func (s *DirStore) Load(ctx context.Context, patch string) (PatchFacts, error) {
	if !validPatchID(patch) {
		return PatchFacts{}, fmt.Errorf("%w: %q", ErrPatchNotFound, patch)
	}

	patchDir := filepath.Join(s.root, patch)
	info, err := os.Stat(patchDir)
	if err != nil || !info.IsDir() {
		return PatchFacts{}, fmt.Errorf("%w: %s", ErrPatchNotFound, patch)
	}

	pf := PatchFacts{Patch: patch}
	if err := readJSON(filepath.Join(patchDir, "items.json"), &pf.Items); err != nil {
		return PatchFacts{}, err
	}
	if err := readJSON(filepath.Join(patchDir, "champs.json"), &pf.Champions); err != nil {
		return PatchFacts{}, err
	}
	if err := readJSON(filepath.Join(patchDir, "runes.json"), &pf.Runes); err != nil {
		return PatchFacts{}, err
	}
	if err := readJSON(filepath.Join(patchDir, "guides.json"), &pf.GuideDocs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return PatchFacts{}, err
	}

	return pf, ctx.Err()
}

// Patches lists the patch ids present under the root, sorted.
func (s *DirStore) Patches() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read patch root: %w", err)
	}
	var patches []string
	for _, e := range entries {
		if e.IsDir() && validPatchID(e.Name()) {
			patches = append(patches, e.Name())
		}
	}
	sort.Strings(patches)
	return patches, nil
}

// Write stores pf as a patch directory. An existing guides.json is kept
// when pf carries no guide documents.
func (s *DirStore) Write(pf PatchFacts) error {
	if !validPatchID(pf.Patch) {
		return fmt.Errorf("invalid patch id %q", pf.Patch)
	}
	patchDir := filepath.Join(s.root, pf.Patch)
	if err := os.MkdirAll(patchDir, 0755); err != nil {
		return fmt.Errorf("failed to create patch directory: %w", err)
	}

	files := map[string]any{
		"items.json":  nonNil(pf.Items),
		"champs.json": nonNil(pf.Champions),
		"runes.json":  nonNil(pf.Runes),
	}
	guidesPath := filepath.Join(patchDir, "guides.json")
	if len(pf.GuideDocs) > 0 {
		files["guides.json"] = pf.GuideDocs
	} else if _, err := os.Stat(guidesPath); errors.Is(err, fs.ErrNotExist) {
		files["guides.json"] = []GuideDocument{}
	}

	for name, v := range files {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(patchDir, name), data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
