package threat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"aramcoach/internal/llm"
	"aramcoach/internal/priors"
)

// TestKeyword_EachMatchesOneBucket tests that Ziggs, Sion and Janna each score at least 2
func TestKeyword_EachMatchesOneBucket(t *testing.T) {
	scores, err := NewKeywordEstimator().Score(context.Background(), "14.99", []string{"Garen"}, []string{"Ziggs", "Sion", "Janna"})
	require.NoError(t, err)
	require.Len(t, scores, 3)

	want := map[string]string{"Ziggs": "enemy has poke", "Sion": "enemy has tank", "Janna": "enemy has shield"}
	for _, s := range scores {
		assert.GreaterOrEqual(t, s.Score, 2.0, s.Unit)
		assert.Equal(t, []string{want[s.Unit]}, s.Reasons)
	}
}

func TestKeyword_NoMatch(t *testing.T) {
	scores, _ := NewKeywordEstimator().Score(context.Background(), "", nil, []string{"Garen", "cho'gath"})
	assert.Equal(t, 1.0, scores[0].Score)
	assert.Empty(t, scores[0].Reasons)
	assert.Equal(t, 2.0, scores[1].Score)
	assert.Equal(t, "cho'gath", scores[1].Unit)
}

type brokenSource struct{}

func (brokenSource) WinRates(ctx context.Context, champs []string) (map[string]float64, error) {
	return nil, errors.New("offline")
}

// TestPrior_Scores tests the win-rate mapping and the default prior
func TestPrior_Scores(t *testing.T) {
	est := NewPriorEstimator(priors.StaticSource{"Soraka": 0.55, "Janna": 0.30, "Zed": 0.70}, Normalization{}, zap.NewNop())

	scores, err := est.Score(context.Background(), "14.99", nil, []string{"Soraka", "Janna", "Zed", "Garen"})
	require.NoError(t, err)

	assert.InDelta(t, 1+9*0.75, scores[0].Score, 1e-9)
	assert.InDelta(t, 1.0, scores[1].Score, 1e-9)
	assert.InDelta(t, 10.0, scores[2].Score, 1e-9)
	assert.InDelta(t, 5.5, scores[3].Score, 1e-9)
	assert.Contains(t, scores[3].Reasons[0], "default prior")
}

// TestPrior_SourceDown tests that a failed source degrades to the default prior
func TestPrior_SourceDown(t *testing.T) {
	est := NewPriorEstimator(brokenSource{}, DefaultNormalization, zap.NewNop())

	scores, err := est.Score(context.Background(), "14.99", nil, []string{"Lux", "Ashe"})
	require.NoError(t, err)
	for _, s := range scores {
		assert.Equal(t, 5.5, s.Score)
	}
}

func newHybrid(gen llm.Generator) *HybridEstimator {
	prior := NewPriorEstimator(priors.StaticSource{"Soraka": 0.6}, DefaultNormalization, zap.NewNop())
	return NewHybridEstimator(prior, gen, zap.NewNop())
}

// TestHybrid_Blend tests the 50/50 blend and clamping of generator scores
func TestHybrid_Blend(t *testing.T) {
	gen := &llm.StaticGenerator{Responses: []string{"```json\n" +
		`{"threats":[{"unit":"soraka","score":2,"reason":"squishy"},{"unit":"Janna","score":40}]}` + "\n```"}}

	scores, err := newHybrid(gen).Score(context.Background(), "14.99", nil, []string{"Soraka", "Janna"})
	require.NoError(t, err)

	assert.InDelta(t, 0.5*10+0.5*2, scores[0].Score, 1e-9)
	assert.Contains(t, scores[0].Reasons, "squishy")
	assert.InDelta(t, 0.5*5.5+0.5*10, scores[1].Score, 1e-9)
}

// TestHybrid_Incomplete tests that an omitted unit fails the call
func TestHybrid_Incomplete(t *testing.T) {
	gen := &llm.StaticGenerator{Responses: []string{`{"threats":[{"unit":"Soraka","score":5}]}`}}

	_, err := newHybrid(gen).Score(context.Background(), "14.99", nil, []string{"Soraka", "Janna"})
	assert.ErrorIs(t, err, ErrThreatIncomplete)
	assert.Contains(t, err.Error(), "Janna")
}

// TestHybrid_GeneratorFailure tests fallback to priors on I/O and parse failures
func TestHybrid_GeneratorFailure(t *testing.T) {
	for _, gen := range []*llm.StaticGenerator{
		{Err: errors.New("timeout")},
		{Responses: []string{"not json"}},
	} {
		scores, err := newHybrid(gen).Score(context.Background(), "14.99", nil, []string{"Soraka"})
		require.NoError(t, err)
		assert.Equal(t, 10.0, scores[0].Score)
	}
}

func TestNew(t *testing.T) {
	est, err := New("", nil, nil, Normalization{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &KeywordEstimator{}, est)

	_, err = New(ModePrior, nil, nil, Normalization{}, zap.NewNop())
	assert.Error(t, err)
	_, err = New(ModeHybrid, priors.StaticSource{}, nil, Normalization{}, zap.NewNop())
	assert.Error(t, err)
	_, err = New("learned", nil, nil, Normalization{}, zap.NewNop())
	assert.Error(t, err)
}

// TestScoreProperties checks count, order and bounds for every estimator
func TestScoreProperties(t *testing.T) {
	names := []string{"Soraka", "Sona", "Yuumi", "Janna", "Karma", "Sion", "Zac", "Cho'Gath", "Ziggs", "Xerath", "Lux", "Garen", "Ahri", "Zed"}

	rapid.Check(t, func(t *rapid.T) {
		enemy := rapid.SliceOfNDistinct(rapid.SampledFrom(names), 0, 5, rapid.ID[string]).Draw(t, "enemy")
		rates := rapid.MapOf(rapid.SampledFrom(names), rapid.Float64Range(0, 1)).Draw(t, "rates")

		src := priors.StaticSource{}
		for k, v := range rates {
			src[k] = v
		}
		estimators := []Estimator{
			NewKeywordEstimator(),
			NewPriorEstimator(src, DefaultNormalization, zap.NewNop()),
		}

		for _, est := range estimators {
			scores, err := est.Score(context.Background(), "14.99", nil, enemy)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(scores) != len(enemy) {
				t.Fatalf("got %d entries for %d enemies", len(scores), len(enemy))
			}
			lo, hi := est.Range()
			for i, s := range scores {
				if s.Unit != enemy[i] {
					t.Fatalf("entry %d is %q, want %q", i, s.Unit, enemy[i])
				}
				if s.Score < lo || s.Score > hi {
					t.Fatalf("%s score %v outside [%v, %v]", s.Unit, s.Score, lo, hi)
				}
			}
		}
	})
}
