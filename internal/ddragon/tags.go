package ddragon

import (
	"sort"
	"strings"

	"aramcoach/internal/facts"
)

// Functional tags added on top of the Data Dragon categories
const (
	TagAntiShield = "AntiShield"
	TagArmorPen   = "ArmorPen"
	TagMagicPen   = "MagicPen"
)

var functionalTags = []struct {
	tag      string
	keywords []string
}{
	{facts.TagGrievousWounds, []string{"executioner", "mortal reminder", "chempunk", "morello", "oblivion", "thornmail"}},
	{TagAntiShield, []string{"serpent"}},
	{TagArmorPen, []string{"mortal reminder", "lord dominik", "serpent", "black cleaver", "last whisper"}},
	{TagMagicPen, []string{"shadowflame", "luden", "sorcerer", "void staff", "liandry"}},
}

// AugmentTags returns tags plus any functional tags implied by the item
// name, deduplicated and sorted.
func AugmentTags(name string, tags []string) []string {
	lowered := strings.ToLower(name)
	set := make(map[string]struct{}, len(tags)+2)
	for _, t := range tags {
		set[t] = struct{}{}
	}
	for _, ft := range functionalTags {
		for _, kw := range ft.keywords {
			if strings.Contains(lowered, kw) {
				set[ft.tag] = struct{}{}
				break
			}
		}
	}

	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
