package threat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"aramcoach/internal/advice"
	"aramcoach/internal/llm"
	"aramcoach/internal/priors"
)

const threatSystemPrompt = "You are a League of Legends ARAM analyst. For every enemy champion in the request, " +
	"rate how threatening it is for the ally team on a 1 to 10 scale. Return ONE JSON object only, no prose: " +
	`{"threats": [{"unit": "<champion>", "score": <1-10>, "reason": "<short reason>"}]}. ` +
	"Include every enemy exactly once."

// HybridEstimator averages the prior score with a generator's rating.
type HybridEstimator struct {
	prior     *PriorEstimator
	generator llm.Generator
	logger    *zap.Logger
}

// NewHybridEstimator creates a hybrid estimator
func NewHybridEstimator(prior *PriorEstimator, gen llm.Generator, logger *zap.Logger) *HybridEstimator {
	return &HybridEstimator{prior: prior, generator: gen, logger: logger}
}

// Range is [1, 10]
func (h *HybridEstimator) Range() (float64, float64) {
	return 1, 10
}

type generatedThreat struct {
	Unit   string  `json:"unit"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// Score fails with ErrThreatIncomplete when the generator answers but skips
// an enemy. Any other generator failure falls back to the prior scores.
func (h *HybridEstimator) Score(ctx context.Context, patch string, ally, enemy []string) ([]advice.ThreatEntry, error) {
	base, err := h.prior.Score(ctx, patch, ally, enemy)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]any{
		"patch":       patch,
		"ally_comp":   ally,
		"enemy_comp":  enemy,
		"prior_score": base,
	})
	if err != nil {
		return nil, err
	}

	raw, err := h.generator.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: threatSystemPrompt},
		{Role: llm.RoleUser, Content: string(payload)},
	})
	if err != nil {
		h.logger.Warn("threat generator failed, using priors only", zap.Error(err))
		return base, nil
	}

	var resp struct {
		Threats []generatedThreat `json:"threats"`
	}
	if err := json.Unmarshal([]byte(llm.StripCodeFence(raw)), &resp); err != nil {
		h.logger.Warn("threat generator returned invalid JSON, using priors only", zap.Error(err))
		return base, nil
	}

	byUnit := make(map[string]generatedThreat, len(resp.Threats))
	for _, t := range resp.Threats {
		byUnit[priors.NormalizeName(t.Unit)] = t
	}

	var missing []string
	out := make([]advice.ThreatEntry, len(base))
	for i, entry := range base {
		gen, ok := byUnit[priors.NormalizeName(entry.Unit)]
		if !ok {
			missing = append(missing, entry.Unit)
			continue
		}
		reasons := append([]string{}, entry.Reasons...)
		if gen.Reason != "" {
			reasons = append(reasons, gen.Reason)
		}
		out[i] = advice.ThreatEntry{
			Unit:    entry.Unit,
			Score:   clamp(0.5*entry.Score+0.5*clamp(gen.Score, 1, 10), 1, 10),
			Reasons: reasons,
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrThreatIncomplete, strings.Join(missing, ", "))
	}
	return out, nil
}
