package guardrail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"aramcoach/internal/advice"
	"aramcoach/internal/facts"
)

func patchFacts() facts.PatchFacts {
	return facts.PatchFacts{
		Patch: "14.99",
		Items: []facts.Item{{ID: 3123, Name: "Executioner's Calling", Price: 800, Tags: []string{"GrievousWounds"}}},
	}
}

func draftWith(tldr []string, ids ...int) advice.StrategyDraft {
	var items []advice.BuildItem
	for _, id := range ids {
		items = append(items, advice.BuildItem{ID: id, Name: "x"})
	}
	d := advice.StrategyDraft{
		TLDR:        tldr,
		Assumptions: map[string]any{"patch": "14.99"},
		Role:        advice.RolePoke,
	}
	if len(items) > 0 {
		d.BuildPlan = []advice.BuildPlanStep{{Trigger: "anti_heal", Items: items, Why: "test"}}
	}
	return d
}

// TestVerify_UnknownItem tests that a missing item id fails verification
func TestVerify_UnknownItem(t *testing.T) {
	res, final := NewVerifier().Verify(patchFacts(), nil, draftWith([]string{"Do not say dragon."}, 999))

	assert.False(t, res.OK)
	assert.Nil(t, final)
	assert.Equal(t, 1, res.Attempts)
	assert.Contains(t, res.Violations, advice.Violation{Type: advice.ViolationUnknownItem, ItemID: 999})
	// checks are independent
	assert.Contains(t, res.Violations, advice.Violation{Type: advice.ViolationSRContent, Terms: []string{"dragon"}})
}

// TestVerify_OK tests a clean draft and attempts accumulation
func TestVerify_OK(t *testing.T) {
	draft := draftWith([]string{"Group and poke.", "Buy anti-heal early."}, 3123)
	prior := &advice.VerifyResult{OK: false, Attempts: 1}

	res, final := NewVerifier().Verify(patchFacts(), prior, draft)

	assert.True(t, res.OK)
	assert.Empty(t, res.Violations)
	assert.Equal(t, 2, res.Attempts)
	require.NotNil(t, final)
	assert.Equal(t, draft, *final)
}

func TestVerify_AllChecks(t *testing.T) {
	draft := draftWith([]string{"Take BARON", "a", "b", "Rift Herald spawns"}, 3123, 1, 1)

	res, final := NewVerifier().Verify(patchFacts(), nil, draft)

	assert.Nil(t, final)
	assert.Equal(t, []advice.Violation{
		{Type: advice.ViolationTLDRTooLong},
		{Type: advice.ViolationSRContent, Terms: []string{"baron", "rift herald"}},
		{Type: advice.ViolationUnknownItem, ItemID: 1},
		{Type: advice.ViolationUnknownItem, ItemID: 1},
	}, res.Violations)
}

// TestVerify_Properties checks that a clean draft always passes with attempts incremented once
func TestVerify_Properties(t *testing.T) {
	words := []string{"group", "poke", "kite", "trade", "wait", "engage", "peel", "bait"}
	rapid.Check(t, func(t *rapid.T) {
		tldr := rapid.SliceOfN(rapid.SampledFrom(words), 1, 3).Draw(t, "tldr")
		prev := rapid.IntRange(0, 10).Draw(t, "prev")

		res, final := NewVerifier().Verify(patchFacts(), &advice.VerifyResult{Attempts: prev}, draftWith(tldr, 3123))
		if !res.OK || final == nil {
			t.Fatalf("clean draft rejected: %+v", res.Violations)
		}
		if res.Attempts != prev+1 {
			t.Fatalf("attempts %d, want %d", res.Attempts, prev+1)
		}

		badID := rapid.IntRange(1, 3000).Draw(t, "badID")
		res, final = NewVerifier().Verify(patchFacts(), nil, draftWith(tldr, badID))
		if res.OK || final != nil {
			t.Fatalf("unknown item %d accepted", badID)
		}
	})
}
