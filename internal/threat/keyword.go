package threat

import (
	"context"

	"aramcoach/internal/advice"
	"aramcoach/internal/priors"
)

type bucket struct {
	label  string
	champs []string
}

// Buckets are checked in this order, so reasons come out in this order too.
var keywordBuckets = []bucket{
	{"healer", []string{"Soraka", "Sona", "Yuumi"}},
	{"shield", []string{"Janna", "Karma"}},
	{"tank", []string{"Sion", "Zac", "Cho'Gath"}},
	{"poke", []string{"Ziggs", "Xerath", "Lux"}},
}

// KeywordEstimator adds one point per keyword bucket the unit belongs to.
// It only looks at names.
type KeywordEstimator struct{}

// NewKeywordEstimator creates a keyword estimator
func NewKeywordEstimator() *KeywordEstimator {
	return &KeywordEstimator{}
}

// Range is [1, 1+number of buckets]
func (KeywordEstimator) Range() (float64, float64) {
	return 1, 1 + float64(len(keywordBuckets))
}

// Score never fails
func (k KeywordEstimator) Score(ctx context.Context, patch string, ally, enemy []string) ([]advice.ThreatEntry, error) {
	out := make([]advice.ThreatEntry, 0, len(enemy))
	for _, champ := range enemy {
		score := 1.0
		reasons := []string{}
		key := priors.NormalizeName(champ)
		for _, b := range keywordBuckets {
			for _, c := range b.champs {
				if priors.NormalizeName(c) == key {
					score++
					reasons = append(reasons, "enemy has "+b.label)
					break
				}
			}
		}
		out = append(out, advice.ThreatEntry{Unit: champ, Score: score, Reasons: reasons})
	}
	return out, nil
}
