// Package facts loads per-patch reference data (items, champions, runes and
// guide documents) keyed by patch identifier.
package facts

import (
	"context"
	"errors"
	"strings"
)

// ErrPatchNotFound is returned when no data is registered for a patch id.
var ErrPatchNotFound = errors.New("patch not found")

// TagGrievousWounds marks items that apply anti-healing.
const TagGrievousWounds = "GrievousWounds"

// Item holds a single item row for a patch
type Item struct {
	ID          int            `json:"id"`
	Name        string         `json:"name"`
	Price       int            `json:"price"`
	Tags        []string       `json:"tags"`
	Stats       map[string]any `json:"stats,omitempty"`
	Description string         `json:"description,omitempty"`
}

// HasTag reports whether the item carries tag.
func (i Item) HasTag(tag string) bool {
	for _, t := range i.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Champion holds champion metadata for a patch
type Champion struct {
	Key   string   `json:"key"`
	Name  string   `json:"name"`
	Tags  []string `json:"tags"`
	Notes string   `json:"notes,omitempty"`
}

// Rune holds a rune and its tree name
type Rune struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Tree string `json:"tree"`
}

// GuideDocument is an unstructured guide text associated with a champion.
type GuideDocument struct {
	ID       string `json:"id"`
	Champion string `json:"champ,omitempty"`
	Text     string `json:"text"`
}

// PatchFacts is the full reference data set for one patch. Values are
// shared read-only between concurrent runs and must not be mutated.
type PatchFacts struct {
	Patch     string          `json:"patch"`
	Items     []Item          `json:"items"`
	Champions []Champion      `json:"champions"`
	Runes     []Rune          `json:"runes"`
	GuideDocs []GuideDocument `json:"guides"`
}

// ItemIDs returns the set of item ids known for the patch.
func (p PatchFacts) ItemIDs() map[int]struct{} {
	ids := make(map[int]struct{}, len(p.Items))
	for _, it := range p.Items {
		ids[it.ID] = struct{}{}
	}
	return ids
}

// ItemsWithTag returns items carrying tag, in fact-store order.
func (p PatchFacts) ItemsWithTag(tag string) []Item {
	var out []Item
	for _, it := range p.Items {
		if it.HasTag(tag) {
			out = append(out, it)
		}
	}
	return out
}

// Champion looks a champion up by display name, case-insensitively.
func (p PatchFacts) Champion(name string) (Champion, bool) {
	for _, c := range p.Champions {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Champion{}, false
}

// Store is a read-only lookup of patch data.
type Store interface {
	Load(ctx context.Context, patch string) (PatchFacts, error)
}

// validPatchID rejects ids that could escape a patch root.
func validPatchID(patch string) bool {
	if patch == "" || patch == "." || strings.Contains(patch, "..") {
		return false
	}
	return !strings.ContainsAny(patch, `/\`)
}
