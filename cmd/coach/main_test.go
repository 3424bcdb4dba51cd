package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"aramcoach/internal/advice"
	"aramcoach/internal/config"
	"aramcoach/internal/pipeline"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	c, err := config.Load("")
	require.NoError(t, err)
	return c
}

// TestNewApp tests wiring the default pipeline against the bundled patch
func TestNewApp(t *testing.T) {
	root, err := filepath.Abs("../../data/patches")
	require.NoError(t, err)

	c := testConfig(t)
	c.Data.Root = root
	c.Priors.Static = map[string]float64{"soraka": 0.56}
	c.Threat.Mode = "prior"
	require.NoError(t, c.Validate())

	a, err := newApp(context.Background(), c, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.patches)

	st, err := a.ctrl.PreGame(context.Background(), pipeline.PreGameRequest{
		AllyComp:  []string{"Ahri"},
		EnemyComp: []string{"Soraka", "Lux"},
	}, nil)
	require.NoError(t, err)
	require.True(t, st.Succeeded())
	require.Len(t, st.Threats, 2)
	assert.Greater(t, st.Threats[0].Score, st.Threats[1].Score)
}

func TestNewApp_BadThreatMode(t *testing.T) {
	c := testConfig(t)
	c.Data.Root = "."
	c.Threat.Mode = "prior"

	_, err := newApp(context.Background(), c, zap.NewNop())
	assert.Error(t, err)
}

func sampleStrategy() *advice.StrategyDraft {
	return &advice.StrategyDraft{
		TLDR:        []string{"Poke before fights.", "Hold Grievous Wounds for Soraka."},
		Assumptions: map[string]any{"patch": "14.99"},
		Threats:     []advice.Threat{{Name: "Soraka", Why: "healing"}},
		Role:        advice.RolePoke,
		BuildPlan: []advice.BuildPlanStep{{
			Trigger: "anti_heal",
			Items:   []advice.BuildItem{{ID: 3165, Name: "Morellonomicon"}},
			Why:     "Counter heavy healing",
		}},
		Evidence: []advice.Evidence{advice.ItemEvidence(3165), advice.DocEvidence("soraka")},
	}
}

func TestRenderStrategy(t *testing.T) {
	out := renderStrategy(sampleStrategy())
	for _, want := range []string{"Poke before fights.", "Morellonomicon (3165)", "Soraka: healing", "item:3165", "doc:soraka"} {
		assert.Contains(t, out, want)
	}
}

func TestPrintValue(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printValue(&buf, "yaml", sampleStrategy()))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "poke", decoded["role"])
	evidence, ok := decoded["evidence"].([]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"type": "item", "id": 3165}, evidence[0])

	buf.Reset()
	require.NoError(t, printValue(&buf, "json", sampleStrategy()))
	assert.True(t, strings.HasPrefix(buf.String(), "{"))

	assert.Error(t, printValue(&buf, "xml", sampleStrategy()))
}
