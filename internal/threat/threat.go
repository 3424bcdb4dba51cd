// Package threat estimates how dangerous each enemy champion is.
package threat

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"aramcoach/internal/advice"
	"aramcoach/internal/llm"
	"aramcoach/internal/priors"
)

// ErrThreatIncomplete is returned when a generator-backed estimate leaves
// out a requested enemy.
var ErrThreatIncomplete = errors.New("threat estimate incomplete")

// Estimator scores every enemy unit. Output has one entry per enemy in
// input order, each score within Range.
type Estimator interface {
	Score(ctx context.Context, patch string, ally, enemy []string) ([]advice.ThreatEntry, error)
	Range() (lo, hi float64)
}

// Modes
const (
	ModeKeyword = "keyword"
	ModePrior   = "prior"
	ModeHybrid  = "hybrid"
)

// New builds the estimator for mode. Prior and hybrid modes need a source;
// hybrid mode also needs a generator.
func New(mode string, src priors.Source, gen llm.Generator, norm Normalization, logger *zap.Logger) (Estimator, error) {
	switch mode {
	case "", ModeKeyword:
		return NewKeywordEstimator(), nil
	case ModePrior:
		if src == nil {
			return nil, fmt.Errorf("threat mode %q needs a prior source", mode)
		}
		return NewPriorEstimator(src, norm, logger), nil
	case ModeHybrid:
		if src == nil || gen == nil {
			return nil, fmt.Errorf("threat mode %q needs a prior source and a generator", mode)
		}
		return NewHybridEstimator(NewPriorEstimator(src, norm, logger), gen, logger), nil
	}
	return nil, fmt.Errorf("unknown threat mode %q", mode)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
