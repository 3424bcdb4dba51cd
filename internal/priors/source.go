// Package priors provides per-champion ARAM win rates used to seed threat
// scores. Sources are best effort: a champion with no data is simply absent
// from the returned map.
package priors

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Source looks up win rates in [0,1] keyed by NormalizeName(champion).
type Source interface {
	WinRates(ctx context.Context, champs []string) (map[string]float64, error)
}

// NormalizeName lowercases a champion name and strips apostrophes and spaces.
// Wukong maps to its internal key monkeyking.
func NormalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer("'", "", " ", "").Replace(n)
	if n == "wukong" {
		n = "monkeyking"
	}
	return n
}

// StaticSource serves a fixed table
type StaticSource map[string]float64

// WinRates returns the entries of s that match champs
func (s StaticSource) WinRates(ctx context.Context, champs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(champs))
	for key, wr := range s {
		for _, c := range champs {
			if NormalizeName(key) == NormalizeName(c) {
				out[NormalizeName(c)] = wr
			}
		}
	}
	return out, nil
}

// ChainSource asks each source in turn for the champions still missing.
// A failing source is logged and skipped.
type ChainSource struct {
	sources []Source
	logger  *zap.Logger
}

// NewChainSource chains sources in priority order
func NewChainSource(logger *zap.Logger, sources ...Source) *ChainSource {
	return &ChainSource{sources: sources, logger: logger}
}

// WinRates merges source results. It only fails when every source failed.
func (c *ChainSource) WinRates(ctx context.Context, champs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(champs))
	var errs []error

	missing := champs
	for _, src := range c.sources {
		if len(missing) == 0 {
			break
		}
		got, err := src.WinRates(ctx, missing)
		if err != nil {
			c.logger.Warn("prior source failed", zap.Error(err))
			errs = append(errs, err)
			continue
		}
		var next []string
		for _, champ := range missing {
			if wr, ok := got[NormalizeName(champ)]; ok {
				out[NormalizeName(champ)] = wr
			} else {
				next = append(next, champ)
			}
		}
		missing = next
	}

	if len(errs) == len(c.sources) && len(errs) > 0 {
		return out, errors.Join(errs...)
	}
	return out, nil
}

type cachedRate struct {
	rate    float64
	fetched time.Time
}

// CachedSource memoizes per-champion results for ttl. Misses are not cached.
type CachedSource struct {
	next Source
	ttl  time.Duration
	now  func() time.Time

	mu    sync.RWMutex
	rates map[string]cachedRate
}

// NewCachedSource wraps next with a TTL cache
func NewCachedSource(next Source, ttl time.Duration) *CachedSource {
	return &CachedSource{
		next:  next,
		ttl:   ttl,
		now:   time.Now,
		rates: make(map[string]cachedRate),
	}
}

// WinRates serves fresh entries from memory and fetches the rest
func (c *CachedSource) WinRates(ctx context.Context, champs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(champs))
	var missing []string

	now := c.now()
	c.mu.RLock()
	for _, champ := range champs {
		key := NormalizeName(champ)
		if r, ok := c.rates[key]; ok && now.Sub(r.fetched) < c.ttl {
			out[key] = r.rate
			continue
		}
		missing = append(missing, champ)
	}
	c.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}

	got, err := c.next.WinRates(ctx, missing)
	if err != nil {
		return out, err
	}

	c.mu.Lock()
	for key, wr := range got {
		c.rates[key] = cachedRate{rate: wr, fetched: now}
		out[key] = wr
	}
	c.mu.Unlock()
	return out, nil
}
