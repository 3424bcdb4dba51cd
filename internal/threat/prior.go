package threat

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"aramcoach/internal/advice"
	"aramcoach/internal/priors"
)

// Normalization maps a win rate to a prior: p = clamp((wr-Offset)/Scale, 0, 1).
type Normalization struct {
	Offset float64
	Scale  float64
}

// DefaultNormalization maps 40% to 0 and 60% to 1.
var DefaultNormalization = Normalization{Offset: 0.4, Scale: 0.2}

// defaultPrior is used for champions without a win rate
const defaultPrior = 0.5

// PriorEstimator scores 1 + 9p from a normalized win-rate prior.
type PriorEstimator struct {
	source priors.Source
	norm   Normalization
	logger *zap.Logger
}

// NewPriorEstimator creates a prior estimator. A zero Scale uses the defaults.
func NewPriorEstimator(src priors.Source, norm Normalization, logger *zap.Logger) *PriorEstimator {
	if norm.Scale <= 0 {
		norm = DefaultNormalization
	}
	return &PriorEstimator{source: src, norm: norm, logger: logger}
}

// Range is [1, 10]
func (p *PriorEstimator) Range() (float64, float64) {
	return 1, 10
}

// Score never fails. A failing source leaves every champion at the default prior.
func (p *PriorEstimator) Score(ctx context.Context, patch string, ally, enemy []string) ([]advice.ThreatEntry, error) {
	rates, err := p.source.WinRates(ctx, enemy)
	if err != nil {
		p.logger.Warn("win rates unavailable, using default prior", zap.String("patch", patch), zap.Error(err))
	}

	out := make([]advice.ThreatEntry, 0, len(enemy))
	for _, champ := range enemy {
		prior := defaultPrior
		reason := fmt.Sprintf("no win rate, default prior %.2f", defaultPrior)
		if wr, ok := rates[priors.NormalizeName(champ)]; ok {
			prior = p.normalize(wr)
			reason = fmt.Sprintf("win rate %.1f%%, prior %.2f", wr*100, prior)
		}
		out = append(out, advice.ThreatEntry{
			Unit:    champ,
			Score:   clamp(1+9*prior, 1, 10),
			Reasons: []string{reason},
		})
	}
	return out, nil
}

func (p *PriorEstimator) normalize(wr float64) float64 {
	return clamp((wr-p.norm.Offset)/p.norm.Scale, 0, 1)
}
