// Package retrieval ranks guide documents against a champion or question
// query with Okapi BM25.
package retrieval

import (
	"math"
	"sort"
	"strings"

	"aramcoach/internal/facts"
)

// Mode selects which document field is tokenized.
type Mode string

const (
	// ModeChampion indexes the champion name of each document.
	ModeChampion Mode = "champion"
	// ModeText indexes the full document text.
	ModeText Mode = "text"
)

// Default BM25 parameters
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// Ranker scores a corpus with BM25. The zero value is not usable; use NewRanker.
type Ranker struct {
	mode Mode
	k1   float64
	b    float64
}

// Option configures a Ranker
type Option func(*Ranker)

// WithParams overrides k1 and b
func WithParams(k1, b float64) Option {
	return func(r *Ranker) {
		r.k1 = k1
		r.b = b
	}
}

// NewRanker creates a ranker for mode. Unknown modes fall back to ModeChampion.
func NewRanker(mode Mode, opts ...Option) *Ranker {
	if mode != ModeText {
		mode = ModeChampion
	}
	r := &Ranker{mode: mode, k1: DefaultK1, b: DefaultB}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mode returns the indexing mode
func (r *Ranker) Mode() Mode {
	return r.mode
}

// Rank returns at most k documents with a positive score, best first.
// Equal scores keep corpus order.
func (r *Ranker) Rank(corpus []facts.GuideDocument, query string, k int) []facts.GuideDocument {
	terms := Tokenize(query)
	if len(corpus) == 0 || len(terms) == 0 || k <= 0 {
		return []facts.GuideDocument{}
	}

	docs := make([][]string, len(corpus))
	var totalLen int
	for i, d := range corpus {
		docs[i] = Tokenize(r.field(d))
		totalLen += len(docs[i])
	}
	avgLen := float64(totalLen) / float64(len(docs))

	df := make(map[string]int)
	for _, toks := range docs {
		seen := make(map[string]struct{}, len(toks))
		for _, t := range toks {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			df[t]++
		}
	}

	n := float64(len(docs))
	type scored struct {
		idx   int
		score float64
	}
	results := make([]scored, 0, len(docs))
	for i, toks := range docs {
		tf := make(map[string]int, len(toks))
		for _, t := range toks {
			tf[t]++
		}
		norm := 1.0
		if avgLen > 0 {
			norm = 1 - r.b + r.b*float64(len(toks))/avgLen
		}

		var score float64
		for _, q := range terms {
			f := float64(tf[q])
			if f == 0 {
				continue
			}
			nq := float64(df[q])
			idf := math.Log(1 + (n-nq+0.5)/(nq+0.5))
			score += idf * f * (r.k1 + 1) / (f + r.k1*norm)
		}
		if score > 0 {
			results = append(results, scored{idx: i, score: score})
		}
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].score > results[b].score
	})

	if len(results) > k {
		results = results[:k]
	}
	out := make([]facts.GuideDocument, len(results))
	for i, s := range results {
		out[i] = corpus[s.idx]
	}
	return out
}

func (r *Ranker) field(d facts.GuideDocument) string {
	if r.mode == ModeText {
		return d.Text
	}
	return d.Champion
}

// Tokenize lowercases s and splits it on whitespace.
func Tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// PreGameQuery joins ally and enemy champion names.
func PreGameQuery(ally, enemy []string) string {
	names := make([]string, 0, len(ally)+len(enemy))
	names = append(names, ally...)
	names = append(names, enemy...)
	return strings.Join(names, " ")
}

// InGameQuery joins the acting champion with the question tokens.
func InGameQuery(champ, question string) string {
	return strings.Join(append([]string{champ}, strings.Fields(question)...), " ")
}
