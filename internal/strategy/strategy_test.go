package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"aramcoach/internal/advice"
	"aramcoach/internal/facts"
	"aramcoach/internal/llm"
)

func testFacts() facts.PatchFacts {
	return facts.PatchFacts{
		Patch: "14.99",
		Items: []facts.Item{
			{ID: 1001, Name: "Boots", Tags: []string{"Boots"}},
			{ID: 3123, Name: "Executioner's Calling", Tags: []string{"GrievousWounds"}},
			{ID: 3165, Name: "Morellonomicon", Tags: []string{"GrievousWounds"}},
			{ID: 3075, Name: "Thornmail", Tags: []string{"GrievousWounds"}},
		},
	}
}

func preGame(ally, enemy []string) Request {
	return Request{
		Patch:  "14.99",
		Inputs: advice.Inputs{Mode: advice.ModePreGame, AllyComp: ally, EnemyComp: enemy},
		Facts:  testFacts(),
		Docs:   []facts.GuideDocument{{ID: "ahri", Champion: "Ahri", Text: "charm"}},
		Threats: []advice.ThreatEntry{
			{Unit: "Soraka", Score: 2, Reasons: []string{"enemy has healer"}},
			{Unit: "Garen", Score: 1, Reasons: []string{}},
		},
	}
}

// TestHeuristic_AntiHeal tests the anti-heal step, evidence and threat summaries
func TestHeuristic_AntiHeal(t *testing.T) {
	draft, err := NewHeuristic().Draft(context.Background(), preGame([]string{"Ahri"}, []string{"Soraka", "Garen"}))
	require.NoError(t, err)
	require.NoError(t, draft.Validate())

	assert.Equal(t, advice.RoleFrontToBack, draft.Role)
	assert.Equal(t, []string{"Play front_to_back; respect enemy spikes.", "Group for fights; trade when sums up."}, draft.TLDR)

	require.Len(t, draft.BuildPlan, 1)
	step := draft.BuildPlan[0]
	assert.Equal(t, "anti_heal", step.Trigger)
	assert.Equal(t, []advice.BuildItem{{ID: 3123, Name: "Executioner's Calling"}, {ID: 3165, Name: "Morellonomicon"}}, step.Items)
	assert.Equal(t, "early if they snowball", step.Timing)

	assert.Equal(t, []advice.Evidence{
		advice.ItemEvidence(3123), advice.ItemEvidence(3165), advice.DocEvidence("ahri"),
	}, draft.Evidence)

	assert.Equal(t, []advice.Threat{{Name: "Soraka", Why: "enemy has healer"}, {Name: "Garen", Why: "high impact"}}, draft.Threats)
	assert.Equal(t, "14.99", draft.Assumptions["patch"])
	assert.Equal(t, []string{"Ahri"}, draft.Assumptions["ally_comp"])
}

func TestHeuristic_Roles(t *testing.T) {
	tests := []struct {
		lead string
		want advice.Role
	}{
		{"Xerath", advice.RolePoke},
		{"Ashe", advice.RolePoke},
		{"Malphite", advice.RoleEngage},
		{"Sion", advice.RoleEngage},
		{"Garen", advice.RoleFrontToBack},
	}
	for _, tt := range tests {
		draft, _ := NewHeuristic().Draft(context.Background(), preGame([]string{tt.lead}, []string{"Garen"}))
		assert.Equal(t, tt.want, draft.Role, tt.lead)
		assert.Empty(t, draft.BuildPlan, tt.lead)
	}

	// in-game uses my champ over the ally list
	req := preGame([]string{"Garen"}, nil)
	req.Inputs = advice.Inputs{Mode: advice.ModeInGame, MyChamp: "Lux", Question: "when to ult?"}
	draft, _ := NewHeuristic().Draft(context.Background(), req)
	assert.Equal(t, advice.RolePoke, draft.Role)
	assert.Equal(t, "Lux", draft.Assumptions["my_champ"])
	assert.Equal(t, "when to ult?", draft.Assumptions["question"])
	assert.Equal(t, []string{}, draft.Assumptions["enemy_comp"])
}

func TestHeuristic_MatchesNamesAnyCase(t *testing.T) {
	for _, enemy := range []string{"soraka", "SORAKA", " Soraka "} {
		draft, _ := NewHeuristic().Draft(context.Background(), preGame([]string{"ahri"}, []string{enemy}))
		require.Len(t, draft.BuildPlan, 1, enemy)
		assert.Equal(t, "anti_heal", draft.BuildPlan[0].Trigger, enemy)
	}

	draft, _ := NewHeuristic().Draft(context.Background(), preGame([]string{"ZIGGS"}, []string{"Garen"}))
	assert.Equal(t, advice.RolePoke, draft.Role)
}

// TestHeuristic_NoAntiHealItems tests that a patch without anti-heal items yields no step
func TestHeuristic_NoAntiHealItems(t *testing.T) {
	req := preGame([]string{"Ahri"}, []string{"Vladimir"})
	req.Facts.Items = req.Facts.Items[:1]

	draft, _ := NewHeuristic().Draft(context.Background(), req)
	assert.Empty(t, draft.BuildPlan)
	assert.Equal(t, []advice.Evidence{advice.DocEvidence("ahri")}, draft.Evidence)
}

const goodResponse = `{
  "tldr": ["Poke them down.", "Buy anti-heal."],
  "assumptions": {"patch": "14.99"},
  "threats": [{"name": "Soraka", "why": "heals"}],
  "role": "poke",
  "build_plan": [{"trigger": "anti_heal", "items": [{"id": 3165, "name": "Morellonomicon"}], "why": "heals"}],
  "evidence": [{"type": "item", "id": 3165}, {"type": "doc", "id": "ahri"}]
}`

// TestGeneratorDrafter tests a well-formed response and the prompt payload
func TestGeneratorDrafter(t *testing.T) {
	gen := &llm.StaticGenerator{Responses: []string{"```json\n" + goodResponse + "\n```"}}
	req := preGame([]string{"Ahri"}, []string{"Soraka"})
	req.Violations = []advice.Violation{{Type: advice.ViolationUnknownItem, ItemID: 999}}

	draft, err := NewGeneratorDrafter(gen, &llm.TokenBudget{}).Draft(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, advice.RolePoke, draft.Role)
	assert.Equal(t, 3165, draft.BuildPlan[0].Items[0].ID)

	require.Len(t, gen.Requests, 1)
	msgs := gen.Requests[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(msgs[1].Content), &payload))
	assert.Equal(t, "14.99", payload["patch"])
	assert.Contains(t, payload, "facts")
	assert.Contains(t, payload, "retrieval")
	assert.Contains(t, payload, "threat")
	assert.Contains(t, msgs[1].Content, "item 999 does not exist")
}

// TestParseDraft_Rejects tests strict decoding
func TestParseDraft_Rejects(t *testing.T) {
	tests := map[string]string{
		"not json":     "sure, here is your plan",
		"extra key":    strings.Replace(goodResponse, `"role"`, `"notes": "x", "role"`, 1),
		"missing key":  strings.Replace(goodResponse, `"threats": [{"name": "Soraka", "why": "heals"}],`, "", 1),
		"bad role":     strings.Replace(goodResponse, `"role": "poke"`, `"role": "carry"`, 1),
		"empty items":  strings.Replace(goodResponse, `[{"id": 3165, "name": "Morellonomicon"}]`, `[]`, 1),
		"bad evidence": strings.Replace(goodResponse, `"type": "doc"`, `"type": "snippet"`, 1),
		"trailing":     goodResponse + `{}`,
		"threat why":   strings.Replace(goodResponse, `{"name": "Soraka", "why": "heals"}`, `{"name": "Soraka"}`, 1),
		"step why":     strings.Replace(goodResponse, `}], "why": "heals"}]`, `}]}]`, 1),
		"item name":    strings.Replace(goodResponse, `{"id": 3165, "name": "Morellonomicon"}`, `{"id": 3165}`, 1),
	}
	for name, raw := range tests {
		_, err := ParseDraft(raw)
		assert.Error(t, err, name)
	}
}

func TestParseDraft_NamesMissingNestedKeys(t *testing.T) {
	raw := strings.Replace(goodResponse, `{"name": "Soraka", "why": "heals"}`, `{"name": "Soraka"}`, 1)
	raw = strings.Replace(raw, `{"id": 3165, "name": "Morellonomicon"}`, `{"id": 3165}`, 1)

	_, err := ParseDraft(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threats[0].why")
	assert.Contains(t, err.Error(), "build_plan[0].items[0].name")
}

type failingDrafter struct{}

func (failingDrafter) Draft(ctx context.Context, req Request) (advice.StrategyDraft, error) {
	return advice.StrategyDraft{}, errors.New("generator unavailable")
}

// TestFallback tests heuristic substitution and strict propagation
func TestFallback(t *testing.T) {
	req := preGame([]string{"Ahri"}, []string{"Soraka"})

	lenient := &Fallback{Primary: failingDrafter{}, Heuristic: NewHeuristic(), Logger: zap.NewNop()}
	draft, err := lenient.Draft(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, advice.RoleFrontToBack, draft.Role)

	strict := &Fallback{Primary: failingDrafter{}, Heuristic: NewHeuristic(), Strict: true, Logger: zap.NewNop()}
	_, err = strict.Draft(context.Background(), req)
	assert.ErrorIs(t, err, ErrStrategyGenerationFailed)
	assert.Contains(t, err.Error(), "generator unavailable")
}

// TestFallback_MalformedResponse tests that a schema failure from the generator falls back
func TestFallback_MalformedResponse(t *testing.T) {
	gen := &llm.StaticGenerator{Responses: []string{`{"tldr": "oops"}`}}
	d := &Fallback{
		Primary:   NewGeneratorDrafter(gen, &llm.TokenBudget{}),
		Heuristic: NewHeuristic(),
		Logger:    zap.NewNop(),
	}

	draft, err := d.Draft(context.Background(), preGame([]string{"Ziggs"}, []string{"Soraka"}))
	require.NoError(t, err)
	assert.Equal(t, advice.RolePoke, draft.Role)
	assert.Equal(t, 1, gen.Calls())
}

func TestNew_NoGenerator(t *testing.T) {
	assert.IsType(t, &Heuristic{}, New(nil, true, 0, zap.NewNop()))
}
